package replay

import (
	"context"
	"sort"
	"sync"
	"time"

	"tradegate/internal/domain"
	"tradegate/internal/ports"
)

// HistoryProvider serves daily closes out of the replay's candle data,
// restricted to days strictly before the simulation cursor. The risk gate's
// correlation check sees exactly the history it would have seen live.
type HistoryProvider struct {
	mu     sync.Mutex
	closes map[string][]ports.DailyClose
	cursor time.Time
}

func NewHistoryProvider(candles map[string][]domain.Candle) *HistoryProvider {
	closes := make(map[string][]ports.DailyClose, len(candles))
	for instrument, bars := range candles {
		series := make([]ports.DailyClose, 0, len(bars))
		for _, bar := range bars {
			series = append(series, ports.DailyClose{Date: bar.Date, Close: bar.Close})
		}
		sort.Slice(series, func(i, j int) bool { return series[i].Date.Before(series[j].Date) })
		closes[instrument] = series
	}
	return &HistoryProvider{closes: closes}
}

// SetCursor moves the no-lookahead boundary to the given trading day.
func (p *HistoryProvider) SetCursor(day time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cursor = day
}

func (p *HistoryProvider) DailyCloses(ctx context.Context, instrument string, lookbackDays int) ([]ports.DailyClose, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	series, ok := p.closes[instrument]
	if !ok {
		return nil, ports.ErrDataUnavailable
	}

	visible := make([]ports.DailyClose, 0, len(series))
	for _, dc := range series {
		if !dc.Date.Before(p.cursor) {
			break
		}
		visible = append(visible, dc)
	}
	if len(visible) == 0 {
		return nil, ports.ErrDataUnavailable
	}
	if len(visible) > lookbackDays {
		visible = visible[len(visible)-lookbackDays:]
	}
	return visible, nil
}

// IntradaySnapshot has no meaning against daily bars; replay ticks get their
// prices from the harness directly.
func (p *HistoryProvider) IntradaySnapshot(ctx context.Context, instrument string) (*ports.Quote, error) {
	return nil, ports.ErrDataUnavailable
}
