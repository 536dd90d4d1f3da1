package replay

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"tradegate/internal/domain"
)

// VetoRecord is one rejected proposal captured during a replay run.
type VetoRecord struct {
	Day        time.Time
	Instrument string
	Rule       string
	Reason     string
}

// Report is the outcome of a replay run. The trade log is deterministic:
// two runs over the same window produce byte-identical logs.
type Report struct {
	Days           int
	InitialCapital float64
	FinalCapital   float64
	Trades         []domain.TradeRecord
	Vetoes         []VetoRecord
	Log            []string
}

// NetPnL is the realized profit over the run.
func (r *Report) NetPnL() float64 {
	return r.FinalCapital - r.InitialCapital
}

// TradeLog renders the event log as one newline-joined string.
func (r *Report) TradeLog() string {
	return strings.Join(r.Log, "\n")
}

// memoryJournal is the replay-side audit sink. It satisfies the same journal
// contract the live engine writes through, so every open, close and veto
// flows through identical code paths.
type memoryJournal struct {
	mu     sync.Mutex
	trades []domain.TradeRecord
	vetoes []VetoRecord
	log    []string
}

func newMemoryJournal() *memoryJournal {
	return &memoryJournal{}
}

func (j *memoryJournal) RecordOpen(ctx context.Context, pos *domain.Position) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.log = append(j.log, fmt.Sprintf("%s OPEN %s %s qty=%d entry=%.4f stop=%.4f",
		day(pos.EntryTime), pos.Instrument, pos.Direction, pos.Quantity, pos.EntryPrice, pos.Stop))
	return nil
}

func (j *memoryJournal) RecordClose(ctx context.Context, rec *domain.TradeRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.trades = append(j.trades, *rec)
	kind := "CLOSE"
	if rec.Partial {
		kind = "PARTIAL"
	}
	j.log = append(j.log, fmt.Sprintf("%s %s %s %s qty=%d exit=%.4f pnl=%.2f",
		day(rec.ExitTime), kind, rec.Instrument, rec.Reason, rec.Quantity, rec.ExitPrice, rec.PnL))
	return nil
}

func (j *memoryJournal) RecordVeto(ctx context.Context, instrument, rule, reason string, at time.Time) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.vetoes = append(j.vetoes, VetoRecord{Day: at, Instrument: instrument, Rule: rule, Reason: reason})
	j.log = append(j.log, fmt.Sprintf("%s VETO %s %s: %s", day(at), instrument, rule, reason))
	return nil
}

func day(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
