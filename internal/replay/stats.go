package replay

import (
	"sort"
	"time"

	"tradegate/internal/domain"
)

// Stats summarizes a replay run's realized trades.
type Stats struct {
	TotalTrades   int
	WinningTrades int
	LosingTrades  int
	WinRate       float64
	TotalPnL      float64
	AverageWin    float64
	AverageLoss   float64
	ProfitFactor  float64
	Expectancy    float64
	MaxDrawdown   float64 // deepest peak-to-trough dip on the realized equity curve
	FinalCapital  float64
	Return        float64

	MaxConsecutiveWins   int
	MaxConsecutiveLosses int
	AverageHolding       time.Duration

	EquityCurve []EquityPoint
}

// EquityPoint is the realized capital after one exit.
type EquityPoint struct {
	Time     time.Time
	Capital  float64
	Drawdown float64
}

// ComputeStats derives run statistics from the report's trade records.
// Exits are processed in time order; partial closes count as trades of their
// own since each realizes P&L independently.
func ComputeStats(trades []domain.TradeRecord, initialCapital float64) Stats {
	s := Stats{FinalCapital: initialCapital}
	if len(trades) == 0 {
		return s
	}

	ordered := append([]domain.TradeRecord(nil), trades...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ExitTime.Before(ordered[j].ExitTime) })

	capital := initialCapital
	peak := initialCapital
	var grossWin, grossLoss float64
	var wins, losses int
	var totalHolding time.Duration

	for _, rec := range ordered {
		s.TotalTrades++
		if rec.PnL > 0 {
			s.WinningTrades++
			wins++
			losses = 0
			grossWin += rec.PnL
		} else {
			s.LosingTrades++
			losses++
			wins = 0
			grossLoss += -rec.PnL
		}
		if wins > s.MaxConsecutiveWins {
			s.MaxConsecutiveWins = wins
		}
		if losses > s.MaxConsecutiveLosses {
			s.MaxConsecutiveLosses = losses
		}

		capital += rec.PnL
		s.TotalPnL += rec.PnL
		totalHolding += rec.ExitTime.Sub(rec.EntryTime)

		if capital > peak {
			peak = capital
		}
		dd := 0.0
		if peak > 0 {
			dd = (peak - capital) / peak
		}
		if dd > s.MaxDrawdown {
			s.MaxDrawdown = dd
		}
		s.EquityCurve = append(s.EquityCurve, EquityPoint{Time: rec.ExitTime, Capital: capital, Drawdown: dd})
	}

	s.FinalCapital = capital
	s.WinRate = float64(s.WinningTrades) / float64(s.TotalTrades)
	if s.WinningTrades > 0 {
		s.AverageWin = grossWin / float64(s.WinningTrades)
	}
	if s.LosingTrades > 0 {
		s.AverageLoss = -grossLoss / float64(s.LosingTrades)
	}
	if grossLoss > 0 {
		s.ProfitFactor = grossWin / grossLoss
	}
	s.Expectancy = s.WinRate*s.AverageWin + (1-s.WinRate)*s.AverageLoss
	if initialCapital > 0 {
		s.Return = s.TotalPnL / initialCapital
	}
	s.AverageHolding = totalHolding / time.Duration(s.TotalTrades)
	return s
}
