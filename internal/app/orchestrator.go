package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jpillora/backoff"

	"tradegate/internal/domain"
	"tradegate/internal/exitrules"
	"tradegate/internal/ledger"
	"tradegate/internal/monitoring"
	"tradegate/internal/ports"
	"tradegate/internal/risk"
)

// Config holds the orchestrator's own knobs; the gate and exit engine carry
// theirs separately.
type Config struct {
	RiskPerTrade        float64
	MaxSingleFraction   float64
	EntryOffsetFraction float64
	BackupStopFraction  float64
	PanicDailyDrawdown  float64
	MaxTotalDrawdown    float64
	TickInterval        time.Duration
	QuoteTimeout        time.Duration
}

// PricesFunc supplies the tick's price data for one instrument. Live ticks
// back it with an intraday snapshot; replay backs it with a historical day.
// Keeping the orchestrator behind this single abstraction is what makes the
// two modes provably run the same decision path.
type PricesFunc func(instrument string) (domain.Candle, error)

// pendingEntry is a proposal accepted by the gate and sizer whose entry
// order has not yet filled.
type pendingEntry struct {
	proposal *domain.TradeProposal
	quantity int64
	handle   ports.OrderHandle
	orderPx  float64
	placedAt time.Time
}

// Orchestrator sequences proposal intake, risk gating, sizing, position
// opening, per-tick exit evaluation and kill-switch handling. All ledger
// mutation funnels through here.
type Orchestrator struct {
	cfg     Config
	logger  ports.Logger
	ledger  *ledger.Ledger
	gate    *risk.Gate
	exits   *exitrules.Engine
	broker  ports.BrokerExecutionPort
	history ports.PriceHistoryProvider
	journal ports.TradeJournal
	store   ports.DurableStateStore
	metrics *monitoring.Metrics

	mu       sync.Mutex
	pending  map[string]*pendingEntry     // keyed by instrument
	inFlight map[string]ports.OrderHandle // close orders awaiting reconciliation
	degraded bool
}

// New creates the orchestrator. The journal, store and metrics are optional
// (replay runs without them); everything else is required.
func New(
	cfg Config,
	logger ports.Logger,
	led *ledger.Ledger,
	gate *risk.Gate,
	exits *exitrules.Engine,
	broker ports.BrokerExecutionPort,
	history ports.PriceHistoryProvider,
	journal ports.TradeJournal,
	store ports.DurableStateStore,
	metrics *monitoring.Metrics,
) (*Orchestrator, error) {
	if logger == nil || led == nil || gate == nil || exits == nil || broker == nil || history == nil {
		return nil, fmt.Errorf("missing required dependencies for orchestrator")
	}
	if cfg.RiskPerTrade <= 0 || cfg.MaxSingleFraction <= 0 {
		return nil, fmt.Errorf("risk fractions must be positive")
	}
	return &Orchestrator{
		cfg:      cfg,
		logger:   logger,
		ledger:   led,
		gate:     gate,
		exits:    exits,
		broker:   broker,
		history:  history,
		journal:  journal,
		store:    store,
		metrics:  metrics,
		pending:  make(map[string]*pendingEntry),
		inFlight: make(map[string]ports.OrderHandle),
	}, nil
}

// HandleProposal runs a proposal through the gate and sizer and, when
// accepted, places the entry order. A veto is a normal outcome, returned as
// the verdict; errors are reserved for faults.
func (o *Orchestrator) HandleProposal(ctx context.Context, proposal *domain.TradeProposal, now time.Time) (risk.Verdict, error) {
	if o.ledger.KillSwitchActive() {
		v := risk.Verdict{Rule: "kill_switch", Reason: "kill switch is active, no new positions"}
		o.recordVeto(ctx, proposal, v, now)
		return v, nil
	}
	if _, open := o.ledger.Position(proposal.Instrument); open {
		v := risk.Verdict{Rule: "duplicate", Reason: "position already open for instrument"}
		o.recordVeto(ctx, proposal, v, now)
		return v, nil
	}
	o.mu.Lock()
	_, alreadyPending := o.pending[proposal.Instrument]
	o.mu.Unlock()
	if alreadyPending {
		v := risk.Verdict{Rule: "duplicate", Reason: "entry order already pending for instrument"}
		o.recordVeto(ctx, proposal, v, now)
		return v, nil
	}

	verdict := o.gate.Evaluate(ctx, proposal, o.ledger.RiskView(), o.history)
	if !verdict.Accepted {
		o.recordVeto(ctx, proposal, verdict, now)
		return verdict, nil
	}

	multiplier := verdict.Multiplier * proposal.SizeClass.Multiplier()
	quantity, err := risk.Size(o.cfg.RiskPerTrade, o.ledger.Capital(),
		proposal.EntryPrice, proposal.StopPrice, multiplier, o.cfg.MaxSingleFraction)
	if err != nil {
		v := risk.Verdict{Rule: "sizing", Reason: err.Error()}
		o.recordVeto(ctx, proposal, v, now)
		return v, nil
	}
	if quantity == 0 {
		v := risk.Verdict{Rule: "sizing", Reason: "sized to zero quantity, not opening"}
		o.recordVeto(ctx, proposal, v, now)
		return v, nil
	}

	// Entry goes in as a stop-limit a small offset past the proposed price,
	// so a fill confirms the move rather than chasing it.
	orderPx := proposal.EntryPrice * (1 + o.cfg.EntryOffsetFraction)
	side := ports.Buy
	if proposal.Direction == domain.Short {
		orderPx = proposal.EntryPrice * (1 - o.cfg.EntryOffsetFraction)
		side = ports.Sell
	}

	handle, err := o.broker.SubmitOrder(ctx, ports.OrderSpec{
		Instrument: proposal.Instrument,
		Side:       side,
		Type:       ports.OrderTypeStopLimit,
		Quantity:   quantity,
		LimitPrice: orderPx,
		StopPrice:  orderPx,
	})
	if err != nil {
		o.logger.Error(ctx, err, "Entry order placement failed", map[string]interface{}{"instrument": proposal.Instrument})
		return risk.Verdict{}, fmt.Errorf("entry order for %s: %w", proposal.Instrument, err)
	}

	o.mu.Lock()
	o.pending[proposal.Instrument] = &pendingEntry{
		proposal: proposal,
		quantity: quantity,
		handle:   handle,
		orderPx:  orderPx,
		placedAt: now,
	}
	o.mu.Unlock()

	o.logger.Info(ctx, "Proposal accepted, entry order placed", map[string]interface{}{
		"instrument": proposal.Instrument,
		"quantity":   quantity,
		"orderPrice": orderPx,
		"multiplier": multiplier,
	})
	return verdict, nil
}

func (o *Orchestrator) recordVeto(ctx context.Context, proposal *domain.TradeProposal, v risk.Verdict, now time.Time) {
	o.logger.Info(ctx, "Proposal vetoed", map[string]interface{}{
		"instrument": proposal.Instrument,
		"rule":       v.Rule,
		"reason":     v.Reason,
	})
	o.metrics.RecordVeto(v.Rule)
	if o.journal != nil {
		if err := o.journal.RecordVeto(ctx, proposal.Instrument, v.Rule, v.Reason, now); err != nil {
			o.logger.Warn(ctx, "Failed to journal veto", map[string]interface{}{"instrument": proposal.Instrument, "error": err.Error()})
		}
	}
}

// Tick runs one evaluation pass: drawdown panic checks, close-order
// reconciliation, pending entry fills, then the exit ladder for every open
// position. A fault on one position never blocks the others.
func (o *Orchestrator) Tick(ctx context.Context, now time.Time, prices PricesFunc) {
	o.checkPanicThresholds(ctx)
	o.reconcileCloses(ctx)
	o.settlePendingEntries(ctx, now)

	killSwitch := o.ledger.KillSwitchActive()
	for _, instrument := range o.ledger.OpenInstruments() {
		if err := o.evaluatePosition(ctx, instrument, now, prices, killSwitch); err != nil {
			o.logger.Error(ctx, err, "Tick evaluation failed, will retry next tick", map[string]interface{}{"instrument": instrument})
			o.metrics.RecordTickError(instrument)
		}
	}

	o.publishMetrics()
	o.persist(ctx)
}

// AdvanceDay rolls session counters and drawdown baselines across a trading
// day boundary. Live mode calls it on date change; replay calls it after
// each simulated day.
func (o *Orchestrator) AdvanceDay(ctx context.Context) {
	o.ledger.AdvanceSessions()
	o.ledger.StartNewDay()
	o.logger.Debug(ctx, "Trading day advanced", map[string]interface{}{"capital": o.ledger.Capital()})
}

// checkPanicThresholds flips the kill switch when drawdown crosses the
// panic limits.
func (o *Orchestrator) checkPanicThresholds(ctx context.Context) {
	if o.ledger.KillSwitchActive() {
		return
	}
	daily := o.ledger.DailyDrawdown()
	total := o.ledger.TotalDrawdown()
	if daily >= o.cfg.PanicDailyDrawdown || total >= o.cfg.MaxTotalDrawdown {
		o.logger.Error(ctx, nil, "Drawdown panic threshold crossed, activating kill switch", map[string]interface{}{
			"dailyDrawdown": daily,
			"totalDrawdown": total,
		})
		o.ledger.ActivateKillSwitch(ctx)
		o.cancelPendingEntries(ctx)
	}
}

// settlePendingEntries polls the broker for entry fills and opens ledger
// positions for the filled ones.
func (o *Orchestrator) settlePendingEntries(ctx context.Context, now time.Time) {
	if o.ledger.KillSwitchActive() {
		o.cancelPendingEntries(ctx)
		return
	}

	o.mu.Lock()
	entries := make([]*pendingEntry, 0, len(o.pending))
	for _, pe := range o.pending {
		entries = append(entries, pe)
	}
	o.mu.Unlock()

	for _, pe := range entries {
		state, err := o.broker.QueryStatus(ctx, pe.handle)
		if err != nil {
			o.logger.Warn(ctx, "Entry order status unavailable", map[string]interface{}{
				"instrument": pe.handle.Instrument, "error": err.Error()})
			continue
		}
		switch state.Status {
		case ports.OrderStatusFilled:
			o.openFilledEntry(ctx, pe, state, now)
			o.dropPending(pe.handle.Instrument)
		case ports.OrderStatusCanceled, ports.OrderStatusRejected, ports.OrderStatusExpired:
			o.logger.Info(ctx, "Entry order did not fill, discarding proposal", map[string]interface{}{
				"instrument": pe.handle.Instrument, "status": state.Status})
			o.dropPending(pe.handle.Instrument)
		}
	}
}

func (o *Orchestrator) openFilledEntry(ctx context.Context, pe *pendingEntry, state ports.OrderState, now time.Time) {
	fill := state.AvgFillPrice
	if fill <= 0 {
		fill = pe.orderPx
	}
	quantity := state.FilledQty
	if quantity <= 0 {
		quantity = pe.quantity
	}

	backupStop := fill * (1 - o.cfg.BackupStopFraction)
	if pe.proposal.Direction == domain.Short {
		backupStop = fill * (1 + o.cfg.BackupStopFraction)
	}

	pos := &domain.Position{
		Instrument: pe.proposal.Instrument,
		Direction:  pe.proposal.Direction,
		EntryPrice: fill,
		Quantity:   quantity,
		OrigQty:    quantity,
		Stop:       pe.proposal.StopPrice,
		BackupStop: backupStop,
		Target1:    pe.proposal.Target1,
		Target2:    pe.proposal.Target2,
		PeakPrice:  fill,
		ATRAtEntry: pe.proposal.ATR,
		Sector:     pe.proposal.Sector,
		EntryTime:  now,
	}
	if err := o.ledger.OpenPosition(ctx, pos); err != nil {
		o.logger.Error(ctx, err, "Filled entry could not be registered", map[string]interface{}{"instrument": pos.Instrument})
		return
	}
	if o.journal != nil {
		if err := o.journal.RecordOpen(ctx, pos); err != nil {
			o.logger.Warn(ctx, "Failed to journal open", map[string]interface{}{"instrument": pos.Instrument, "error": err.Error()})
		}
	}
}

func (o *Orchestrator) dropPending(instrument string) {
	o.mu.Lock()
	delete(o.pending, instrument)
	o.mu.Unlock()
}

func (o *Orchestrator) cancelPendingEntries(ctx context.Context) {
	o.mu.Lock()
	entries := make([]*pendingEntry, 0, len(o.pending))
	for _, pe := range o.pending {
		entries = append(entries, pe)
	}
	o.pending = make(map[string]*pendingEntry)
	o.mu.Unlock()

	for _, pe := range entries {
		if err := o.broker.CancelOrder(ctx, pe.handle); err != nil {
			o.logger.Warn(ctx, "Failed to cancel pending entry", map[string]interface{}{
				"instrument": pe.handle.Instrument, "error": err.Error()})
		}
	}
}

// evaluatePosition runs the exit ladder for one position and applies the
// decision. Panics are contained so one bad position cannot poison the
// tick.
func (o *Orchestrator) evaluatePosition(ctx context.Context, instrument string, now time.Time, prices PricesFunc, killSwitch bool) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic evaluating %s: %v", instrument, r)
		}
	}()

	pos, ok := o.ledger.Position(instrument)
	if !ok {
		return nil
	}

	candle, err := prices(instrument)
	if err != nil {
		return fmt.Errorf("price data for %s: %w", instrument, err)
	}

	decision := o.exits.Evaluate(&pos, candle, now, killSwitch)
	return o.applyDecision(ctx, instrument, &pos, decision, now)
}

func (o *Orchestrator) applyDecision(ctx context.Context, instrument string, pos *domain.Position, d exitrules.Decision, now time.Time) error {
	switch d.Action {
	case exitrules.ActionFullClose:
		o.submitClose(ctx, instrument, pos.Direction, pos.Quantity)
		rec, err := o.ledger.ApplyFullClose(ctx, instrument, d.Price, d.Reason, now)
		if err != nil {
			return err
		}
		if d.Reason == domain.CloseReasonKillSwitch {
			o.ledger.ConfirmClose(instrument)
		}
		o.recordClose(ctx, rec)

	case exitrules.ActionPartialClose:
		o.submitClose(ctx, instrument, pos.Direction, d.CloseQuantity)
		rec, err := o.ledger.ApplyPartialClose(ctx, instrument, d.CloseQuantity, d.Price, d.Reason, now)
		if err != nil {
			return err
		}
		o.recordClose(ctx, rec)
		if d.TakeFirstTarget {
			if err := o.ledger.MarkFirstTargetTaken(instrument); err != nil && err != ports.ErrPositionNotFound {
				return err
			}
		}
		if d.HasNewStop {
			o.updateStop(ctx, instrument, d.NewStop)
		}

	case exitrules.ActionUpdateStop:
		if d.HasNewPeak {
			if err := o.ledger.UpdatePeak(instrument, d.NewPeak); err != nil {
				return err
			}
		}
		if d.HasNewStop {
			o.updateStop(ctx, instrument, d.NewStop)
		}
		if d.ApplyBreakeven {
			if err := o.ledger.MarkBreakevenApplied(instrument); err != nil {
				return err
			}
		}
	}
	return nil
}

func (o *Orchestrator) recordClose(ctx context.Context, rec domain.TradeRecord) {
	o.logger.Info(ctx, "Position close applied", map[string]interface{}{
		"instrument": rec.Instrument,
		"reason":     string(rec.Reason),
		"quantity":   rec.Quantity,
		"exitPrice":  rec.ExitPrice,
		"pnl":        rec.PnL,
		"partial":    rec.Partial,
	})
	o.metrics.RecordTrade(rec.Instrument, string(rec.Reason))
	if o.journal != nil {
		if err := o.journal.RecordClose(ctx, &rec); err != nil {
			o.logger.Warn(ctx, "Failed to journal close", map[string]interface{}{"instrument": rec.Instrument, "error": err.Error()})
		}
	}
}

// updateStop applies a stop move; a loosening rejection is logged as a
// warning, never propagated, since the ledger already kept the invariant.
func (o *Orchestrator) updateStop(ctx context.Context, instrument string, newStop float64) {
	if err := o.ledger.UpdateStop(ctx, instrument, newStop); err != nil {
		o.logger.Warn(ctx, "Stop update rejected", map[string]interface{}{
			"instrument": instrument, "newStop": newStop, "error": err.Error()})
	}
}

// submitClose pushes a market order to the broker as a best-effort side
// channel. The ledger close is applied optimistically either way; the order
// is reconciled on the next tick.
func (o *Orchestrator) submitClose(ctx context.Context, instrument string, dir domain.Direction, quantity int64) {
	side := ports.Sell
	if dir == domain.Short {
		side = ports.Buy
	}
	handle, err := o.broker.SubmitOrder(ctx, ports.OrderSpec{
		Instrument: instrument,
		Side:       side,
		Type:       ports.OrderTypeMarket,
		Quantity:   quantity,
	})
	if err != nil {
		o.logger.Error(ctx, err, "Close order submission failed, ledger close applied optimistically", map[string]interface{}{
			"instrument": instrument})
		return
	}
	o.mu.Lock()
	o.inFlight[handle.ID] = handle
	o.mu.Unlock()
}

// reconcileCloses checks last tick's close orders against the broker and
// surfaces rejections for operator attention.
func (o *Orchestrator) reconcileCloses(ctx context.Context) {
	o.mu.Lock()
	handles := make([]ports.OrderHandle, 0, len(o.inFlight))
	for _, h := range o.inFlight {
		handles = append(handles, h)
	}
	o.mu.Unlock()

	for _, h := range handles {
		state, err := o.broker.QueryStatus(ctx, h)
		if err != nil {
			o.logger.Warn(ctx, "Close order status unavailable", map[string]interface{}{"orderID": h.ID, "error": err.Error()})
			continue
		}
		switch state.Status {
		case ports.OrderStatusRejected, ports.OrderStatusCanceled, ports.OrderStatusExpired:
			o.logger.Error(ctx, nil, "Close order did not execute at broker, manual reconciliation required", map[string]interface{}{
				"instrument": h.Instrument, "orderID": h.ID, "status": state.Status})
			o.metrics.RecordTickError(h.Instrument)
			fallthrough
		case ports.OrderStatusFilled:
			o.mu.Lock()
			delete(o.inFlight, h.ID)
			o.mu.Unlock()
		}
	}
}

func (o *Orchestrator) publishMetrics() {
	o.metrics.SetPortfolio(
		len(o.ledger.OpenInstruments()),
		o.ledger.Capital(),
		o.ledger.DailyDrawdown(),
		o.ledger.WeeklyDrawdown(),
		o.ledger.KillSwitchActive(),
	)
}

// persist writes a ledger snapshot with a short bounded retry. Persistence
// failures leave the engine trading in-memory with a degraded-durability
// warning; they never block the tick loop for long.
func (o *Orchestrator) persist(ctx context.Context) {
	if o.store == nil {
		return
	}

	data, err := o.ledger.Snapshot()
	if err != nil {
		o.logger.Error(ctx, err, "Failed to serialize ledger snapshot")
		return
	}

	b := &backoff.Backoff{Min: 100 * time.Millisecond, Max: 1 * time.Second, Factor: 2}
	var writeErr error
	for attempt := 0; attempt < 3; attempt++ {
		if writeErr = o.store.WriteSnapshot(ctx, data); writeErr == nil {
			break
		}
		select {
		case <-time.After(b.Duration()):
		case <-ctx.Done():
			writeErr = ctx.Err()
			attempt = 3
		}
	}

	o.mu.Lock()
	wasDegraded := o.degraded
	o.degraded = writeErr != nil
	o.mu.Unlock()

	if writeErr != nil {
		o.logger.Error(ctx, writeErr, "Snapshot persistence failing, running with degraded durability")
	} else if wasDegraded {
		o.logger.Info(ctx, "Snapshot persistence recovered")
	}
	o.metrics.SetDegradedDurability(writeErr != nil)
}

// Degraded reports whether snapshot persistence is currently failing.
func (o *Orchestrator) Degraded() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.degraded
}

// RestoreFromStore loads the latest snapshot at startup. A missing snapshot
// means a fresh start; a corrupt one is fatal and needs operator attention.
func (o *Orchestrator) RestoreFromStore(ctx context.Context) error {
	if o.store == nil {
		return nil
	}
	data, err := o.store.ReadLatestSnapshot(ctx)
	if err != nil {
		if err == ports.ErrSnapshotNotFound {
			o.logger.Info(ctx, "No snapshot found, starting with a fresh portfolio")
			return nil
		}
		return fmt.Errorf("reading snapshot: %w", err)
	}

	downtime, err := o.ledger.Restore(data)
	if err != nil {
		return fmt.Errorf("restoring snapshot: %w", err)
	}
	o.logger.Info(ctx, "Portfolio state restored", map[string]interface{}{
		"downtime":      downtime.String(),
		"capital":       o.ledger.Capital(),
		"openPositions": len(o.ledger.OpenInstruments()),
		"killSwitch":    o.ledger.KillSwitchActive(),
	})
	return nil
}

// DeactivateKillSwitch is the explicit external reset. It only succeeds
// once every forced close has been confirmed.
func (o *Orchestrator) DeactivateKillSwitch(ctx context.Context) error {
	return o.ledger.DeactivateKillSwitch(ctx)
}

// Run drives the live tick loop until the context is cancelled. Price data
// for each tick comes from intraday snapshots bounded by the quote timeout.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info(ctx, "Orchestrator started", map[string]interface{}{"tickInterval": o.cfg.TickInterval.String()})

	ticker := time.NewTicker(o.cfg.TickInterval)
	defer ticker.Stop()

	currentDay := time.Now().Truncate(24 * time.Hour)
	for {
		select {
		case <-ctx.Done():
			o.logger.Info(ctx, "Orchestrator stopping")
			o.persist(ctx)
			return ctx.Err()
		case now := <-ticker.C:
			if day := now.Truncate(24 * time.Hour); day.After(currentDay) {
				o.AdvanceDay(ctx)
				currentDay = day
			}
			o.Tick(ctx, now, o.livePrices(ctx))
		}
	}
}

// livePrices adapts the intraday snapshot endpoint to the tick's price
// abstraction, with a per-quote timeout.
func (o *Orchestrator) livePrices(ctx context.Context) PricesFunc {
	return func(instrument string) (domain.Candle, error) {
		quoteCtx, cancel := context.WithTimeout(ctx, o.cfg.QuoteTimeout)
		defer cancel()

		quote, err := o.history.IntradaySnapshot(quoteCtx, instrument)
		if err != nil {
			return domain.Candle{}, err
		}
		return domain.Candle{
			Date:   quote.AsOf,
			Open:   quote.Open,
			High:   quote.High,
			Low:    quote.Low,
			Close:  quote.Close,
			Volume: quote.Volume,
		}, nil
	}
}
