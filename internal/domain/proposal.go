package domain

import "time"

// TradeProposal is a candidate trade produced by an external advisory
// process. It is immutable once created: the risk gate and sizer consume it
// exactly once and it is never retained after a verdict.
type TradeProposal struct {
	Instrument  string    // e.g. "NVDA"
	Direction   Direction // LONG or SHORT
	EntryPrice  float64   // proposed entry price
	StopPrice   float64   // proposed initial protective stop
	Target1     float64   // first profit target (partial exit)
	Target2     float64   // second profit target (full exit)
	SizeClass   SizeClass // advisory sizing hint
	Sector      string    // sector tag used for concentration checks
	ATR         float64   // volatility measure at proposal time
	Beta        float64   // beta estimate vs the benchmark
	VolumeRatio float64   // recent volume vs its 20-day average
	CreatedAt   time.Time
}
