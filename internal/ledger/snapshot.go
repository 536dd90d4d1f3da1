package ledger

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"tradegate/internal/domain"
	"tradegate/internal/ports"
)

const snapshotVersion = 1

// snapshotDoc is the durable on-disk form of the ledger. A single versioned
// document; the last-write timestamp lets a restart measure its downtime.
type snapshotDoc struct {
	Version         int               `json:"version"`
	InitialCapital  float64           `json:"initial_capital"`
	Capital         float64           `json:"capital"`
	DayStartCapital float64           `json:"day_start_capital"`
	EODCapital      []float64         `json:"eod_capital"`
	Positions       []domain.Position `json:"positions"`
	KillSwitch      bool              `json:"kill_switch"`
	PendingClose    []string          `json:"pending_close"`
	LastWrite       time.Time         `json:"last_write"`
}

// Snapshot serializes the full observable ledger state.
func (l *Ledger) Snapshot() ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	doc := snapshotDoc{
		Version:         snapshotVersion,
		InitialCapital:  l.initialCapital,
		Capital:         l.capital,
		DayStartCapital: l.dayStartCapital,
		EODCapital:      append([]float64(nil), l.eodCapital...),
		KillSwitch:      l.killSwitch,
		LastWrite:       time.Now().UTC(),
	}
	for _, pos := range l.positions {
		doc.Positions = append(doc.Positions, *pos)
	}
	sort.Slice(doc.Positions, func(i, j int) bool {
		return doc.Positions[i].Instrument < doc.Positions[j].Instrument
	})
	for instrument := range l.pendingClose {
		doc.PendingClose = append(doc.PendingClose, instrument)
	}
	sort.Strings(doc.PendingClose)

	data, err := json.MarshalIndent(&doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ledger snapshot: %w", err)
	}
	l.lastWrite = doc.LastWrite
	return data, nil
}

// Restore replaces the ledger state with a previously serialized snapshot
// and returns the elapsed downtime since the snapshot was written. A
// snapshot that cannot be parsed or has an unknown version fails with
// ErrSnapshotCorrupt; the caller decides whether that is fatal.
func (l *Ledger) Restore(data []byte) (time.Duration, error) {
	var doc snapshotDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return 0, fmt.Errorf("%w: %v", ports.ErrSnapshotCorrupt, err)
	}
	if doc.Version != snapshotVersion {
		return 0, fmt.Errorf("%w: unsupported snapshot version %d", ports.ErrSnapshotCorrupt, doc.Version)
	}
	if doc.Capital < 0 || doc.InitialCapital <= 0 {
		return 0, fmt.Errorf("%w: implausible capital figures", ports.ErrSnapshotCorrupt)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.initialCapital = doc.InitialCapital
	l.capital = doc.Capital
	l.dayStartCapital = doc.DayStartCapital
	l.eodCapital = append([]float64(nil), doc.EODCapital...)
	l.killSwitch = doc.KillSwitch

	l.positions = make(map[string]*domain.Position, len(doc.Positions))
	for i := range doc.Positions {
		pos := doc.Positions[i]
		l.positions[pos.Instrument] = &pos
	}

	l.pendingClose = make(map[string]struct{}, len(doc.PendingClose))
	for _, instrument := range doc.PendingClose {
		l.pendingClose[instrument] = struct{}{}
	}

	l.lastWrite = doc.LastWrite
	downtime := time.Since(doc.LastWrite)
	if downtime < 0 {
		downtime = 0
	}
	return downtime, nil
}
