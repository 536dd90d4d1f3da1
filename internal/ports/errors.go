package ports

import "errors"

// Standard application-level errors.
// Adapters wrap underlying infrastructure errors with these standard errors
// so the core can branch with errors.Is without knowing the provider.
var (
	// Proposal / sizing errors (malformed input, rejected as values upstream)
	ErrInvalidRiskDistance = errors.New("entry and stop prices leave no risk distance")

	// Ledger invariant violations
	ErrStopWouldLoosen     = errors.New("new stop would loosen the existing protective stop")
	ErrDuplicatePosition   = errors.New("position already open for instrument")
	ErrPositionNotFound    = errors.New("no open position for instrument")
	ErrKillSwitchActive    = errors.New("kill switch is active")
	ErrPendingClosesRemain = errors.New("pending forced closes not yet confirmed")

	// Market data faults (routed through the fail-safe pessimistic paths)
	ErrDataUnavailable = errors.New("market data unavailable")

	// Broker faults
	ErrOrderNotFound        = errors.New("order not found at broker")
	ErrOrderPlacementFailed = errors.New("failed to place order")

	// Persistence faults
	ErrSnapshotNotFound = errors.New("no snapshot available")
	ErrSnapshotCorrupt  = errors.New("snapshot is corrupt or unreadable")
)
