package ports

import (
	"context"
	"time"

	"tradegate/internal/domain"
)

// TradeJournal records the audit trail: every open, every exit with its
// triggering rule, and every vetoed proposal with its reason.
type TradeJournal interface {
	RecordOpen(ctx context.Context, pos *domain.Position) error
	RecordClose(ctx context.Context, rec *domain.TradeRecord) error
	RecordVeto(ctx context.Context, instrument, rule, reason string, at time.Time) error
}
