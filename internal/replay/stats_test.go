package replay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"tradegate/internal/domain"
)

func record(entryDay, exitDay int, pnl float64) domain.TradeRecord {
	return domain.TradeRecord{
		Instrument: "NVDA",
		Direction:  domain.Long,
		PnL:        pnl,
		EntryTime:  d(entryDay),
		ExitTime:   d(exitDay),
	}
}

func TestComputeStats_Empty(t *testing.T) {
	s := ComputeStats(nil, 100000)
	assert.Equal(t, 0, s.TotalTrades)
	assert.Equal(t, 100000.0, s.FinalCapital)
	assert.Equal(t, 0.0, s.MaxDrawdown)
}

func TestComputeStats_MixedRun(t *testing.T) {
	trades := []domain.TradeRecord{
		record(2, 4, 1000),
		record(4, 5, -500),
		record(5, 8, -500),
		record(8, 10, 2000),
	}

	s := ComputeStats(trades, 100000)

	assert.Equal(t, 4, s.TotalTrades)
	assert.Equal(t, 2, s.WinningTrades)
	assert.Equal(t, 2, s.LosingTrades)
	assert.Equal(t, 0.5, s.WinRate)
	assert.Equal(t, 2000.0, s.TotalPnL)
	assert.Equal(t, 102000.0, s.FinalCapital)
	assert.Equal(t, 1500.0, s.AverageWin)
	assert.Equal(t, -500.0, s.AverageLoss)
	assert.Equal(t, 3.0, s.ProfitFactor) // $3,000 won vs $1,000 lost
	assert.InDelta(t, 500.0, s.Expectancy, 1e-9)
	assert.Equal(t, 2, s.MaxConsecutiveLosses)
	assert.Equal(t, 1, s.MaxConsecutiveWins)

	// Peak 101,000 after the first win, trough 100,000 after two losses.
	assert.InDelta(t, 1000.0/101000.0, s.MaxDrawdown, 1e-9)
	assert.Len(t, s.EquityCurve, 4)
	assert.Equal(t, 102000.0, s.EquityCurve[3].Capital)
}

func TestComputeStats_SortsOutOfOrderExits(t *testing.T) {
	trades := []domain.TradeRecord{
		record(5, 8, -500),
		record(2, 4, 1000),
	}

	s := ComputeStats(trades, 100000)
	assert.Equal(t, 101000.0, s.EquityCurve[0].Capital)
	assert.Equal(t, 100500.0, s.EquityCurve[1].Capital)
	assert.Equal(t, 60*time.Hour, s.AverageHolding) // (2 + 3 days) / 2 exits
}
