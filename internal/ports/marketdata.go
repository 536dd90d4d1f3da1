package ports

import (
	"context"
	"time"

	"tradegate/internal/domain"
)

// DailyClose is one end-of-day closing price.
type DailyClose struct {
	Date  time.Time
	Close float64
}

// Quote is the current intraday OHLCV snapshot for an instrument.
// Open is the session's opening reference, Close the latest trade price.
type Quote struct {
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
	AsOf   time.Time
}

// PriceHistoryProvider supplies the market data the core consumes.
// Implementations must wrap missing-data conditions with ErrDataUnavailable
// rather than returning partial results, so the risk gate's fail-safe logic
// can apply.
type PriceHistoryProvider interface {
	// DailyCloses returns up to lookbackDays end-of-day closes for the
	// instrument, oldest first.
	DailyCloses(ctx context.Context, instrument string, lookbackDays int) ([]DailyClose, error)

	// IntradaySnapshot returns the current session's OHLCV for the instrument.
	IntradaySnapshot(ctx context.Context, instrument string) (*Quote, error)
}

// HistoricalDataProvider supplies full daily bars for replay runs.
type HistoricalDataProvider interface {
	// Candles returns the instrument's daily bars in [start, end], oldest
	// first.
	Candles(ctx context.Context, instrument string, start, end time.Time) ([]domain.Candle, error)
}

// AdvisoryProvider supplies externally generated trade proposals.
// The core never calls back into the advisory side.
type AdvisoryProvider interface {
	// Proposals returns the proposals issued for the given trading day.
	Proposals(ctx context.Context, day time.Time) ([]*domain.TradeProposal, error)
}
