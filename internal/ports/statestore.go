package ports

import "context"

// DurableStateStore persists ledger snapshots across restarts.
// WriteSnapshot must be atomic (write-temp-then-rename or equivalent): a
// partially-written snapshot must never be observable by a reader.
type DurableStateStore interface {
	WriteSnapshot(ctx context.Context, data []byte) error
	// ReadLatestSnapshot returns ErrSnapshotNotFound when no snapshot has
	// been written yet.
	ReadLatestSnapshot(ctx context.Context) ([]byte, error)
}
