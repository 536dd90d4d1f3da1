package domain

import "time"

// Position is an open holding owned exclusively by the portfolio ledger.
// All mutation happens through ledger operations; callers only ever see
// copies.
type Position struct {
	Instrument string
	Direction  Direction
	EntryPrice float64
	Quantity   int64 // current share count, shrinks on partial exits
	OrigQty    int64 // share count at entry

	// Stop is the protective stop. Once tightened toward profit it never
	// moves back (monotonic invariant, enforced by the ledger).
	Stop float64
	// BackupStop is the fixed catastrophic stop, wider than Stop and never
	// adjusted after entry.
	BackupStop float64

	Target1 float64
	Target2 float64

	// PeakPrice is the most favorable price seen since entry, used by the
	// trailing-stop ratchet.
	PeakPrice  float64
	ATRAtEntry float64

	Sector       string
	EntryTime    time.Time
	SessionsHeld int // trading sessions elapsed since entry

	FirstTargetTaken bool
	BreakevenApplied bool
}

// IsLong reports whether the position profits from rising prices.
func (p *Position) IsLong() bool { return p.Direction == Long }

// Notional returns the position's exposure at its entry price.
func (p *Position) Notional() float64 {
	return p.EntryPrice * float64(p.Quantity)
}

// UnrealizedPnL returns the open profit at the given price.
func (p *Position) UnrealizedPnL(price float64) float64 {
	if p.IsLong() {
		return (price - p.EntryPrice) * float64(p.Quantity)
	}
	return (p.EntryPrice - price) * float64(p.Quantity)
}

// RealizedPnL returns the profit of closing qty shares at the given price.
func (p *Position) RealizedPnL(price float64, qty int64) float64 {
	if p.IsLong() {
		return (price - p.EntryPrice) * float64(qty)
	}
	return (p.EntryPrice - price) * float64(qty)
}
