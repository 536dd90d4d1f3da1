package risk

import (
	"math"

	"tradegate/internal/ports"
)

// Size converts a risk budget into a concrete share quantity.
//
// riskAmount = capital * riskBudgetFraction * combinedMultiplier. The raw
// quantity is riskAmount divided by the per-share risk (entry to stop
// distance), floored, with a minimum of one share whenever risk capital is
// available, then capped so the position's entry notional never exceeds
// capital * maxSingleFraction.
//
// A zero return means "do not open".
func Size(riskBudgetFraction, capital, entryPrice, stopPrice, combinedMultiplier, maxSingleFraction float64) (int64, error) {
	perShareRisk := math.Abs(entryPrice - stopPrice)
	if perShareRisk <= 0 || entryPrice <= 0 {
		return 0, ports.ErrInvalidRiskDistance
	}

	riskAmount := capital * riskBudgetFraction * combinedMultiplier
	if riskAmount <= 0 {
		return 0, nil
	}

	quantity := int64(math.Floor(riskAmount / perShareRisk))
	if quantity < 1 {
		quantity = 1
	}

	maxQuantity := int64(math.Floor(capital * maxSingleFraction / entryPrice))
	if quantity > maxQuantity {
		quantity = maxQuantity
	}
	if quantity < 0 {
		quantity = 0
	}
	return quantity, nil
}
