package csvdata

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"tradegate/internal/domain"
)

// Advisory files are JSON arrays of proposals:
//
//	[{"instrument":"NVDA","direction":"LONG","entry_price":100.0,
//	  "stop_price":98.0,"target1":104.0,"target2":108.0,
//	  "size_class":"NORMAL","sector":"TECH","atr":2.0,"beta":1.5,
//	  "volume_ratio":1.2,"date":"2024-01-02"}]
type advisoryRow struct {
	Instrument  string  `json:"instrument"`
	Direction   string  `json:"direction"`
	EntryPrice  float64 `json:"entry_price"`
	StopPrice   float64 `json:"stop_price"`
	Target1     float64 `json:"target1"`
	Target2     float64 `json:"target2"`
	SizeClass   string  `json:"size_class"`
	Sector      string  `json:"sector"`
	ATR         float64 `json:"atr"`
	Beta        float64 `json:"beta"`
	VolumeRatio float64 `json:"volume_ratio"`
	Date        string  `json:"date"`
}

// LoadAdvisories reads an advisory proposal file for replay runs.
func LoadAdvisories(path string) ([]*domain.TradeProposal, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening advisory file: %w", err)
	}

	var rows []advisoryRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("parsing advisory file: %w", err)
	}

	proposals := make([]*domain.TradeProposal, 0, len(rows))
	for i, row := range rows {
		date, err := time.Parse(dateLayout, row.Date)
		if err != nil {
			return nil, fmt.Errorf("advisory %d: invalid date %q: %w", i, row.Date, err)
		}
		direction := domain.Direction(row.Direction)
		if direction != domain.Long && direction != domain.Short {
			return nil, fmt.Errorf("advisory %d: invalid direction %q", i, row.Direction)
		}
		if row.EntryPrice <= 0 || row.StopPrice <= 0 {
			return nil, fmt.Errorf("advisory %d: entry and stop prices must be positive", i)
		}

		proposals = append(proposals, &domain.TradeProposal{
			Instrument:  row.Instrument,
			Direction:   direction,
			EntryPrice:  row.EntryPrice,
			StopPrice:   row.StopPrice,
			Target1:     row.Target1,
			Target2:     row.Target2,
			SizeClass:   domain.SizeClass(row.SizeClass),
			Sector:      row.Sector,
			ATR:         row.ATR,
			Beta:        row.Beta,
			VolumeRatio: row.VolumeRatio,
			CreatedAt:   date,
		})
	}
	return proposals, nil
}
