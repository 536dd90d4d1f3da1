package csvdata

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"time"

	"tradegate/internal/domain"
)

// Daily candle files carry one bar per row:
//
//	date,symbol,open,high,low,close,volume
//	2024-01-02,NVDA,100.0,101.0,99.0,100.5,1000000
//
// Rows may cover many instruments; the loader groups them by symbol and
// sorts each series by date.
const dateLayout = "2006-01-02"

// LoadDailyCandles reads a daily bar CSV into per-instrument series.
func LoadDailyCandles(path string) (map[string][]domain.Candle, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening candle file: %w", err)
	}
	defer file.Close()

	return ReadDailyCandles(file)
}

// ReadDailyCandles parses daily bars from the reader.
func ReadDailyCandles(r io.Reader) (map[string][]domain.Candle, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 7

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading candle header: %w", err)
	}
	if header[0] != "date" || header[1] != "symbol" {
		return nil, fmt.Errorf("unexpected candle header %v, want date,symbol,open,high,low,close,volume", header)
	}

	out := make(map[string][]domain.Candle)
	line := 1
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading candle row: %w", err)
		}
		line++

		date, err := time.Parse(dateLayout, row[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid date %q: %w", line, row[0], err)
		}
		fields := make([]float64, 5)
		for i, raw := range row[2:] {
			fields[i], err = strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid number %q: %w", line, raw, err)
			}
		}

		symbol := row[1]
		out[symbol] = append(out[symbol], domain.Candle{
			Date:   date,
			Open:   fields[0],
			High:   fields[1],
			Low:    fields[2],
			Close:  fields[3],
			Volume: fields[4],
		})
	}

	for symbol := range out {
		series := out[symbol]
		sort.Slice(series, func(i, j int) bool { return series[i].Date.Before(series[j].Date) })
	}
	return out, nil
}
