package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"tradegate/internal/domain"
	"tradegate/internal/ports"
	"tradegate/internal/risk"
)

// Config holds configuration for the portfolio ledger.
type Config struct {
	InitialCapital   float64
	WeeklyWindowDays int
}

// Ledger is the single owner of capital, open positions and the kill-switch
// latch. All mutation goes through its methods under one lock; callers only
// ever receive copies of position records.
type Ledger struct {
	mu     sync.Mutex
	logger ports.Logger

	initialCapital  float64
	capital         float64
	dayStartCapital float64
	// eodCapital is the rolling window of end-of-day capital values, oldest
	// first, bounded by weeklyWindowDays.
	eodCapital       []float64
	weeklyWindowDays int

	positions map[string]*domain.Position

	killSwitch   bool
	pendingClose map[string]struct{}

	lastWrite time.Time
}

// New creates a ledger with a fresh capital base.
func New(cfg Config, logger ports.Logger) *Ledger {
	return &Ledger{
		logger:           logger,
		initialCapital:   cfg.InitialCapital,
		capital:          cfg.InitialCapital,
		dayStartCapital:  cfg.InitialCapital,
		weeklyWindowDays: cfg.WeeklyWindowDays,
		positions:        make(map[string]*domain.Position),
		pendingClose:     make(map[string]struct{}),
	}
}

// Capital returns current account equity.
func (l *Ledger) Capital() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.capital
}

// OpenPosition registers a new position. Rejected while the kill switch is
// active or when the instrument already has an open position.
func (l *Ledger) OpenPosition(ctx context.Context, pos *domain.Position) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.killSwitch {
		return ports.ErrKillSwitchActive
	}
	if _, exists := l.positions[pos.Instrument]; exists {
		return ports.ErrDuplicatePosition
	}

	cp := *pos
	if cp.PeakPrice == 0 {
		cp.PeakPrice = cp.EntryPrice
	}
	l.positions[cp.Instrument] = &cp

	l.logger.Info(ctx, "Position opened", map[string]interface{}{
		"instrument": cp.Instrument,
		"direction":  cp.Direction,
		"quantity":   cp.Quantity,
		"entryPrice": cp.EntryPrice,
		"stop":       cp.Stop,
	})
	return nil
}

// Position returns a copy of the open position for the instrument.
func (l *Ledger) Position(instrument string) (domain.Position, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.positions[instrument]
	if !ok {
		return domain.Position{}, false
	}
	return *pos, true
}

// OpenInstruments returns the instruments with open positions, sorted for
// deterministic iteration.
func (l *Ledger) OpenInstruments() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]string, 0, len(l.positions))
	for instrument := range l.positions {
		out = append(out, instrument)
	}
	sort.Strings(out)
	return out
}

// ApplyPartialClose closes qty shares at the given price, realizes the P&L
// into capital and returns the audit record. Closing the full remaining
// quantity behaves like a full close.
func (l *Ledger) ApplyPartialClose(ctx context.Context, instrument string, qty int64, price float64, reason domain.CloseReason, at time.Time) (domain.TradeRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closeLocked(ctx, instrument, qty, price, reason, at)
}

// ApplyFullClose closes the entire remaining quantity at the given price.
func (l *Ledger) ApplyFullClose(ctx context.Context, instrument string, price float64, reason domain.CloseReason, at time.Time) (domain.TradeRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.positions[instrument]
	if !ok {
		return domain.TradeRecord{}, ports.ErrPositionNotFound
	}
	return l.closeLocked(ctx, instrument, pos.Quantity, price, reason, at)
}

func (l *Ledger) closeLocked(ctx context.Context, instrument string, qty int64, price float64, reason domain.CloseReason, at time.Time) (domain.TradeRecord, error) {
	pos, ok := l.positions[instrument]
	if !ok {
		return domain.TradeRecord{}, ports.ErrPositionNotFound
	}
	if qty > pos.Quantity {
		qty = pos.Quantity
	}

	pnl := pos.RealizedPnL(price, qty)
	l.capital += pnl
	pos.Quantity -= qty

	rec := domain.TradeRecord{
		Instrument: instrument,
		Direction:  pos.Direction,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  price,
		Quantity:   qty,
		PnL:        pnl,
		EntryTime:  pos.EntryTime,
		ExitTime:   at,
		Reason:     reason,
		Partial:    pos.Quantity > 0,
	}

	if pos.Quantity == 0 {
		delete(l.positions, instrument)
	}

	l.logger.Info(ctx, "Position close applied", map[string]interface{}{
		"instrument": instrument,
		"quantity":   qty,
		"price":      price,
		"pnl":        pnl,
		"reason":     reason,
		"partial":    rec.Partial,
	})
	return rec, nil
}

// UpdateStop tightens the protective stop. A new stop that would move away
// from profit is rejected with ErrStopWouldLoosen.
func (l *Ledger) UpdateStop(ctx context.Context, instrument string, newStop float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.positions[instrument]
	if !ok {
		return ports.ErrPositionNotFound
	}

	loosens := newStop < pos.Stop
	if !pos.IsLong() {
		loosens = newStop > pos.Stop
	}
	if loosens {
		l.logger.Warn(ctx, "Rejected stop update that would loosen the stop", map[string]interface{}{
			"instrument":  instrument,
			"currentStop": pos.Stop,
			"newStop":     newStop,
		})
		return ports.ErrStopWouldLoosen
	}

	pos.Stop = newStop
	return nil
}

// UpdatePeak records a new favorable price extreme for the trailing ratchet.
func (l *Ledger) UpdatePeak(instrument string, newPeak float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.positions[instrument]
	if !ok {
		return ports.ErrPositionNotFound
	}
	pos.PeakPrice = newPeak
	return nil
}

// MarkFirstTargetTaken flags the position's first profit target as taken.
func (l *Ledger) MarkFirstTargetTaken(instrument string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.positions[instrument]
	if !ok {
		return ports.ErrPositionNotFound
	}
	pos.FirstTargetTaken = true
	return nil
}

// MarkBreakevenApplied flags the position's breakeven move as applied.
func (l *Ledger) MarkBreakevenApplied(instrument string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.positions[instrument]
	if !ok {
		return ports.ErrPositionNotFound
	}
	pos.BreakevenApplied = true
	return nil
}

// AdvanceSessions increments the holding-session counter of every open
// position. Called once per trading day.
func (l *Ledger) AdvanceSessions() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, pos := range l.positions {
		pos.SessionsHeld++
	}
}

// StartNewDay rolls the drawdown baselines across a day boundary: the
// closing capital joins the rolling end-of-day window and becomes the new
// day-start baseline.
func (l *Ledger) StartNewDay() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.eodCapital = append(l.eodCapital, l.capital)
	if len(l.eodCapital) > l.weeklyWindowDays {
		l.eodCapital = l.eodCapital[len(l.eodCapital)-l.weeklyWindowDays:]
	}
	l.dayStartCapital = l.capital
}

// DailyDrawdown is the loss since the start of the trading day as a
// fraction of the day-start capital. Zero when the baseline is degenerate
// or the day is flat-or-better.
func (l *Ledger) DailyDrawdown() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return drawdown(l.dayStartCapital, l.capital)
}

// WeeklyDrawdown is the loss against the oldest end-of-day capital in the
// rolling window.
func (l *Ledger) WeeklyDrawdown() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.eodCapital) == 0 {
		return drawdown(l.dayStartCapital, l.capital)
	}
	return drawdown(l.eodCapital[0], l.capital)
}

// TotalDrawdown is the loss against the initial capital base.
func (l *Ledger) TotalDrawdown() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return drawdown(l.initialCapital, l.capital)
}

func drawdown(baseline, current float64) float64 {
	if baseline <= 0 || current >= baseline {
		return 0
	}
	return (baseline - current) / baseline
}

// ActivateKillSwitch flips the latch and snapshots the currently open
// instruments into the pending-close set. Idempotent: a second activation
// leaves the pending set unchanged. It does not close anything itself; the
// orchestrator performs the closes and confirms them one by one.
func (l *Ledger) ActivateKillSwitch(ctx context.Context) []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.killSwitch {
		l.killSwitch = true
		for instrument := range l.positions {
			l.pendingClose[instrument] = struct{}{}
		}
		l.logger.Warn(ctx, "Kill switch activated", map[string]interface{}{
			"pendingCloses": len(l.pendingClose),
		})
	}

	out := make([]string, 0, len(l.pendingClose))
	for instrument := range l.pendingClose {
		out = append(out, instrument)
	}
	sort.Strings(out)
	return out
}

// ConfirmClose drains one instrument from the pending-close set once its
// forced close has been applied.
func (l *Ledger) ConfirmClose(instrument string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.pendingClose, instrument)
}

// DeactivateKillSwitch clears the latch. It refuses while forced closes are
// still pending.
func (l *Ledger) DeactivateKillSwitch(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.pendingClose) > 0 {
		return ports.ErrPendingClosesRemain
	}
	l.killSwitch = false
	l.logger.Info(ctx, "Kill switch deactivated")
	return nil
}

// KillSwitchActive reports the state of the latch.
func (l *Ledger) KillSwitchActive() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.killSwitch
}

// PendingCloses returns the instruments still awaiting forced closure,
// sorted.
func (l *Ledger) PendingCloses() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]string, 0, len(l.pendingClose))
	for instrument := range l.pendingClose {
		out = append(out, instrument)
	}
	sort.Strings(out)
	return out
}

// RiskView takes a consistent read snapshot for the risk gate under the
// same lock that serializes mutations.
func (l *Ledger) RiskView() risk.PortfolioView {
	l.mu.Lock()
	defer l.mu.Unlock()

	view := risk.PortfolioView{
		Capital:        l.capital,
		DailyDrawdown:  drawdown(l.dayStartCapital, l.capital),
		WeeklyDrawdown: l.weeklyDrawdownLocked(),
	}
	for _, pos := range l.positions {
		view.Open = append(view.Open, risk.OpenExposure{
			Instrument: pos.Instrument,
			Sector:     pos.Sector,
			Notional:   pos.Notional(),
		})
	}
	sort.Slice(view.Open, func(i, j int) bool { return view.Open[i].Instrument < view.Open[j].Instrument })
	return view
}

func (l *Ledger) weeklyDrawdownLocked() float64 {
	if len(l.eodCapital) == 0 {
		return drawdown(l.dayStartCapital, l.capital)
	}
	return drawdown(l.eodCapital[0], l.capital)
}
