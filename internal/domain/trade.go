package domain

import "time"

// TradeRecord is the audit record of a completed (full or partial) exit.
type TradeRecord struct {
	Instrument string
	Direction  Direction
	EntryPrice float64
	ExitPrice  float64
	Quantity   int64 // shares closed by this exit
	PnL        float64
	EntryTime  time.Time
	ExitTime   time.Time
	Reason     CloseReason
	Partial    bool
}
