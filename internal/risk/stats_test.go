package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradegate/internal/ports"
)

// closesFromReturns builds a daily close series starting at 100 with one bar
// per calendar day.
func closesFromReturns(start time.Time, returns []float64) []ports.DailyClose {
	closes := make([]ports.DailyClose, 0, len(returns)+1)
	price := 100.0
	closes = append(closes, ports.DailyClose{Date: start, Close: price})
	for i, r := range returns {
		price *= 1 + r
		closes = append(closes, ports.DailyClose{
			Date:  start.AddDate(0, 0, i+1),
			Close: price,
		})
	}
	return closes
}

func TestPearson(t *testing.T) {
	t.Run("perfect positive correlation", func(t *testing.T) {
		x := []float64{0.01, -0.02, 0.03, -0.01, 0.02}
		r, err := pearson(x, x)
		require.NoError(t, err)
		assert.InDelta(t, 1.0, r, 1e-9)
	})

	t.Run("perfect negative correlation", func(t *testing.T) {
		x := []float64{0.01, -0.02, 0.03, -0.01, 0.02}
		y := make([]float64, len(x))
		for i := range x {
			y[i] = -x[i]
		}
		r, err := pearson(x, y)
		require.NoError(t, err)
		assert.InDelta(t, -1.0, r, 1e-9)
	})

	t.Run("zero variance is an error", func(t *testing.T) {
		x := []float64{0.01, 0.01, 0.01}
		y := []float64{0.01, -0.02, 0.03}
		_, err := pearson(x, y)
		assert.Error(t, err)
	})

	t.Run("too few samples is an error", func(t *testing.T) {
		_, err := pearson([]float64{0.01}, []float64{0.02})
		assert.Error(t, err)
	})
}

func TestCorrelation_AlignsByDate(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	returns := []float64{0.01, -0.02, 0.03, -0.01, 0.02, 0.01, -0.03, 0.02, -0.01, 0.01}

	a := closesFromReturns(start, returns)
	b := closesFromReturns(start, returns)

	r, err := correlation(a, b, 5)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, r, 1e-9)
}

func TestCorrelation_InsufficientOverlapIsError(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	returns := []float64{0.01, -0.02, 0.03, -0.01, 0.02}

	a := closesFromReturns(start, returns)
	// Series with no overlapping dates at all.
	b := closesFromReturns(start.AddDate(0, 1, 0), returns)

	_, err := correlation(a, b, 5)
	assert.Error(t, err)
}
