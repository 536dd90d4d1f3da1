package risk

import (
	"fmt"
	"math"
	"time"

	"tradegate/internal/ports"
)

// dailyReturns converts a close series into day-keyed simple returns.
// The return for day t is close[t]/close[t-1] - 1, keyed by day t.
func dailyReturns(closes []ports.DailyClose) map[time.Time]float64 {
	returns := make(map[time.Time]float64, len(closes))
	for i := 1; i < len(closes); i++ {
		prev := closes[i-1].Close
		if prev == 0 {
			continue
		}
		day := closes[i].Date.Truncate(24 * time.Hour)
		returns[day] = closes[i].Close/prev - 1
	}
	return returns
}

// alignedReturns pairs up returns from two series on their common dates.
func alignedReturns(a, b []ports.DailyClose) (x, y []float64) {
	ra := dailyReturns(a)
	rb := dailyReturns(b)
	for day, va := range ra {
		if vb, ok := rb[day]; ok {
			x = append(x, va)
			y = append(y, vb)
		}
	}
	return x, y
}

// correlation computes the Pearson correlation of two daily close series
// aligned by date. It returns an error when fewer than minAligned return
// pairs share a date or when either series has zero variance; callers treat
// any error as maximal correlation.
func correlation(a, b []ports.DailyClose, minAligned int) (float64, error) {
	x, y := alignedReturns(a, b)
	if len(x) < minAligned {
		return 0, fmt.Errorf("only %d aligned return pairs, need at least %d", len(x), minAligned)
	}
	return pearson(x, y)
}

// pearson computes the Pearson correlation coefficient of two equal-length
// samples.
func pearson(x, y []float64) (float64, error) {
	n := len(x)
	if n != len(y) || n < 2 {
		return 0, fmt.Errorf("need at least 2 paired samples, got %d", n)
	}

	var sumX, sumY float64
	for i := 0; i < n; i++ {
		sumX += x[i]
		sumY += y[i]
	}
	meanX := sumX / float64(n)
	meanY := sumY / float64(n)

	var cov, varX, varY float64
	for i := 0; i < n; i++ {
		dx := x[i] - meanX
		dy := y[i] - meanY
		cov += dx * dy
		varX += dx * dx
		varY += dy * dy
	}
	if varX == 0 || varY == 0 {
		return 0, fmt.Errorf("zero variance in return series")
	}

	r := cov / math.Sqrt(varX*varY)
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0, fmt.Errorf("correlation is not a finite number")
	}
	return r, nil
}
