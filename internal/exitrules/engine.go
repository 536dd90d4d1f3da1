package exitrules

import (
	"time"

	"tradegate/internal/domain"
)

// Action is the kind of change a decision asks the ledger to apply.
type Action int

const (
	// ActionNone means the position is left untouched this tick.
	ActionNone Action = iota
	// ActionFullClose closes the entire remaining quantity.
	ActionFullClose
	// ActionPartialClose closes CloseQuantity shares and may also move the
	// stop.
	ActionPartialClose
	// ActionUpdateStop moves the protective stop and/or the peak price
	// without closing anything.
	ActionUpdateStop
)

// Decision is the outcome of evaluating one position against one tick.
// It is a description of the change to apply; the engine itself never
// mutates a position.
type Decision struct {
	Action        Action
	Reason        domain.CloseReason
	Price         float64 // execution price for closes
	CloseQuantity int64   // shares to close (partial closes only)

	NewStop    float64
	HasNewStop bool
	NewPeak    float64
	HasNewPeak bool

	TakeFirstTarget bool // mark the first target as taken
	ApplyBreakeven  bool // mark the breakeven move as applied
}

// Config holds the exit rule thresholds.
type Config struct {
	PartialCloseFraction float64
	BreakevenBuffer      float64
	BreakevenMinProfit   float64
	TrailingATRMultiple  float64
	FlashCrashThreshold  float64
	MaxHoldingSessions   int
	WeekCutoffHour       int
}

// Engine computes exit decisions from position and market snapshots.
// It is stateless; the same engine serves live ticks and replay days.
type Engine struct {
	cfg Config
}

// NewEngine creates a new exit rule engine.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Evaluate runs the prioritized exit checks against one tick's price data.
// The first matching rule wins; later rules are not considered that tick.
// The candle is the tick's OHLCV (live: intraday snapshot so far; replay:
// one historical day), now is the tick's wall-clock time, and killSwitch is
// the portfolio-wide latch.
func (e *Engine) Evaluate(pos *domain.Position, candle domain.Candle, now time.Time, killSwitch bool) Decision {
	// 1. Kill switch: flatten everything at the best available price.
	if killSwitch {
		return Decision{Action: ActionFullClose, Reason: domain.CloseReasonKillSwitch, Price: candle.Close}
	}

	// 2. Catastrophic backup stop.
	if breached(pos, candle, pos.BackupStop) {
		return Decision{Action: ActionFullClose, Reason: domain.CloseReasonBackupStop, Price: stopFill(pos, candle, pos.BackupStop)}
	}

	// 3. Protective stop.
	if breached(pos, candle, pos.Stop) {
		return Decision{Action: ActionFullClose, Reason: domain.CloseReasonStopLoss, Price: stopFill(pos, candle, pos.Stop)}
	}

	// 4. First profit target: partial close and move the stop to breakeven.
	if !pos.FirstTargetTaken && targetReached(pos, candle, pos.Target1) {
		d := Decision{
			Action:          ActionPartialClose,
			Reason:          domain.CloseReasonTarget1,
			Price:           targetFill(pos, candle, pos.Target1),
			CloseQuantity:   partialQuantity(pos.Quantity, e.cfg.PartialCloseFraction),
			TakeFirstTarget: true,
		}
		if tighter(pos, pos.EntryPrice) {
			d.NewStop = pos.EntryPrice
			d.HasNewStop = true
		}
		return d
	}

	// 5. Second profit target: close the remainder.
	if targetReached(pos, candle, pos.Target2) {
		return Decision{Action: ActionFullClose, Reason: domain.CloseReasonTarget2, Price: targetFill(pos, candle, pos.Target2)}
	}

	// 6. Flash crash: intra-tick drop from the opening reference.
	if candle.Open > 0 && (candle.Open-candle.Low)/candle.Open >= e.cfg.FlashCrashThreshold {
		return Decision{Action: ActionFullClose, Reason: domain.CloseReasonFlashCrash, Price: candle.Close}
	}

	// 7. Maximum holding period, independent of P&L.
	if pos.SessionsHeld >= e.cfg.MaxHoldingSessions {
		return Decision{Action: ActionFullClose, Reason: domain.CloseReasonMaxHolding, Price: candle.Close}
	}

	// 8. End-of-week breakeven move.
	if d, ok := e.endOfWeekBreakeven(pos, candle, now); ok {
		return d
	}

	// 9. Trailing-stop ratchet.
	if d, ok := e.trailingRatchet(pos, candle); ok {
		return d
	}

	return Decision{Action: ActionNone}
}

// endOfWeekBreakeven moves the stop to entry plus a small buffer on the last
// session of the week, past the cutoff hour, when the position is profitable
// enough. Applied at most once per position.
func (e *Engine) endOfWeekBreakeven(pos *domain.Position, candle domain.Candle, now time.Time) (Decision, bool) {
	if pos.BreakevenApplied || now.Weekday() != time.Friday || now.Hour() < e.cfg.WeekCutoffHour {
		return Decision{}, false
	}

	minProfit := pos.EntryPrice * e.cfg.BreakevenMinProfit
	var profitable bool
	var proposed float64
	if pos.IsLong() {
		profitable = candle.Close-pos.EntryPrice >= minProfit
		proposed = pos.EntryPrice * (1 + e.cfg.BreakevenBuffer)
	} else {
		profitable = pos.EntryPrice-candle.Close >= minProfit
		proposed = pos.EntryPrice * (1 - e.cfg.BreakevenBuffer)
	}
	if !profitable {
		return Decision{}, false
	}

	d := Decision{Action: ActionUpdateStop, ApplyBreakeven: true}
	if tighter(pos, proposed) {
		d.NewStop = proposed
		d.HasNewStop = true
	}
	return d, true
}

// trailingRatchet tracks the best price seen and recomputes the trailing
// stop as peak minus a volatility multiple. The stop only ever tightens.
func (e *Engine) trailingRatchet(pos *domain.Position, candle domain.Candle) (Decision, bool) {
	d := Decision{Action: ActionUpdateStop}

	peak := pos.PeakPrice
	if pos.IsLong() {
		if candle.High > peak {
			peak = candle.High
			d.NewPeak = peak
			d.HasNewPeak = true
		}
	} else {
		if candle.Low < peak {
			peak = candle.Low
			d.NewPeak = peak
			d.HasNewPeak = true
		}
	}

	distance := e.cfg.TrailingATRMultiple * pos.ATRAtEntry
	var proposed float64
	if pos.IsLong() {
		proposed = peak - distance
	} else {
		proposed = peak + distance
	}
	if tighter(pos, proposed) {
		d.NewStop = proposed
		d.HasNewStop = true
	}

	if !d.HasNewStop && !d.HasNewPeak {
		return Decision{}, false
	}
	return d, true
}

// breached reports whether the tick's range crossed the given stop level in
// the losing direction.
func breached(pos *domain.Position, candle domain.Candle, stop float64) bool {
	if pos.IsLong() {
		return candle.Low <= stop
	}
	return candle.High >= stop
}

// stopFill is the execution price for a stop hit: the stop level itself,
// unless the tick opened already through it (gap), in which case the open.
func stopFill(pos *domain.Position, candle domain.Candle, stop float64) float64 {
	if pos.IsLong() {
		if candle.Open < stop {
			return candle.Open
		}
		return stop
	}
	if candle.Open > stop {
		return candle.Open
	}
	return stop
}

// targetReached reports whether the tick's range touched the given profit
// target.
func targetReached(pos *domain.Position, candle domain.Candle, target float64) bool {
	if target <= 0 {
		return false
	}
	if pos.IsLong() {
		return candle.High >= target
	}
	return candle.Low <= target
}

// targetFill is the execution price for a target touch: the target itself,
// unless the tick opened already beyond it (favorable gap).
func targetFill(pos *domain.Position, candle domain.Candle, target float64) float64 {
	if pos.IsLong() {
		if candle.Open > target {
			return candle.Open
		}
		return target
	}
	if candle.Open < target {
		return candle.Open
	}
	return target
}

// tighter reports whether the proposed stop is strictly closer to profit
// than the position's current stop.
func tighter(pos *domain.Position, proposed float64) bool {
	if pos.IsLong() {
		return proposed > pos.Stop
	}
	return proposed < pos.Stop
}

// partialQuantity is the share count for a fractional close, floored, never
// zero while shares remain.
func partialQuantity(quantity int64, fraction float64) int64 {
	q := int64(float64(quantity) * fraction)
	if q < 1 {
		q = 1
	}
	if q > quantity {
		q = quantity
	}
	return q
}
