package csvdata

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradegate/internal/domain"
)

func TestReadDailyCandles(t *testing.T) {
	input := strings.Join([]string{
		"date,symbol,open,high,low,close,volume",
		"2024-01-03,NVDA,100,102,99.5,101,2000",
		"2024-01-02,NVDA,100,101,99,100.5,1000",
		"2024-01-02,XOM,80,81,79,80.5,500",
	}, "\n")

	candles, err := ReadDailyCandles(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, candles, 2)

	nvda := candles["NVDA"]
	require.Len(t, nvda, 2)
	// Rows were out of order in the file; the series comes back sorted.
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), nvda[0].Date)
	assert.Equal(t, 100.5, nvda[0].Close)
	assert.Equal(t, 101.0, nvda[1].Close)

	require.Len(t, candles["XOM"], 1)
	assert.Equal(t, 500.0, candles["XOM"][0].Volume)
}

func TestReadDailyCandles_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "wrong header", input: "time,ticker,o,h,l,c,v\n"},
		{name: "bad date", input: "date,symbol,open,high,low,close,volume\nyesterday,NVDA,1,1,1,1,1\n"},
		{name: "bad number", input: "date,symbol,open,high,low,close,volume\n2024-01-02,NVDA,1,1,1,abc,1\n"},
		{name: "short row", input: "date,symbol,open,high,low,close,volume\n2024-01-02,NVDA,1,1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadDailyCandles(strings.NewReader(tt.input))
			assert.Error(t, err)
		})
	}
}

func TestLoadAdvisories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "advisories.json")
	content := `[
		{"instrument":"NVDA","direction":"LONG","entry_price":100,"stop_price":98,
		 "target1":104,"target2":108,"size_class":"NORMAL","sector":"TECH",
		 "atr":2.0,"beta":1.5,"volume_ratio":1.2,"date":"2024-01-02"},
		{"instrument":"XOM","direction":"SHORT","entry_price":80,"stop_price":82,
		 "target1":76,"target2":72,"size_class":"REDUCED","sector":"ENERGY",
		 "atr":1.0,"beta":0.8,"volume_ratio":1.0,"date":"2024-01-03"}
	]`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	proposals, err := LoadAdvisories(path)
	require.NoError(t, err)
	require.Len(t, proposals, 2)

	assert.Equal(t, domain.Long, proposals[0].Direction)
	assert.Equal(t, "TECH", proposals[0].Sector)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), proposals[0].CreatedAt)
	assert.Equal(t, domain.Short, proposals[1].Direction)
	assert.Equal(t, domain.SizeReduced, proposals[1].SizeClass)
}

func TestLoadAdvisories_Invalid(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		content string
	}{
		{name: "not json", content: "garbage"},
		{name: "bad direction", content: `[{"instrument":"NVDA","direction":"SIDEWAYS","entry_price":100,"stop_price":98,"date":"2024-01-02"}]`},
		{name: "bad date", content: `[{"instrument":"NVDA","direction":"LONG","entry_price":100,"stop_price":98,"date":"soon"}]`},
		{name: "zero entry", content: `[{"instrument":"NVDA","direction":"LONG","entry_price":0,"stop_price":98,"date":"2024-01-02"}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, strings.ReplaceAll(tt.name, " ", "_")+".json")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))
			_, err := LoadAdvisories(path)
			assert.Error(t, err)
		})
	}
}
