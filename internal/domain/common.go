package domain

// Direction represents the side of a trade (LONG or SHORT).
type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
)

// SizeClass is the advisory side's sizing hint for a proposal.
type SizeClass string

const (
	SizeNormal  SizeClass = "NORMAL"
	SizeReduced SizeClass = "REDUCED"
	SizeMinimal SizeClass = "MINIMAL"
)

// Multiplier converts a size-class hint into a risk-budget scale factor.
// Unknown hints are treated as NORMAL.
func (s SizeClass) Multiplier() float64 {
	switch s {
	case SizeReduced:
		return 0.5
	case SizeMinimal:
		return 0.25
	default:
		return 1.0
	}
}

// CloseReason indicates which rule triggered a position exit.
// Every forced close carries its rule name for audit.
type CloseReason string

const (
	CloseReasonKillSwitch CloseReason = "KILL_SWITCH"
	CloseReasonBackupStop CloseReason = "BACKUP_STOP"
	CloseReasonStopLoss   CloseReason = "STOP_LOSS"
	CloseReasonTarget1    CloseReason = "TARGET_1"
	CloseReasonTarget2    CloseReason = "TARGET_2"
	CloseReasonFlashCrash CloseReason = "FLASH_CRASH"
	CloseReasonMaxHolding CloseReason = "MAX_HOLDING"
	CloseReasonManual     CloseReason = "MANUAL"
)
