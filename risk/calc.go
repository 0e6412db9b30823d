// Package risk holds the pure position math used by the engine: notional,
// margin, PnL, ROI and the projected liquidation price.
package risk

import (
	"math"

	"github.com/rustyeddy/hedger/market"
)

// Notional is quantity × price, independent of leverage.
func Notional(amount, price float64) float64 {
	return math.Abs(amount) * price
}

// Margin is the collateral locked by a position: notional / leverage.
// A non-positive leverage is treated as 1x.
func Margin(amount, price float64, leverage int) float64 {
	if leverage <= 0 {
		leverage = 1
	}
	return Notional(amount, price) / float64(leverage)
}

// PnL is the side-adjusted price difference times quantity.
func PnL(side market.Side, entry, mark, amount float64) float64 {
	return side.Sign() * (mark - entry) * amount
}

// PnLPercent is the unleveraged move from entry in percent. Leverage only
// changes margin, never this figure; strategy thresholds are calibrated
// against it.
func PnLPercent(side market.Side, entry, mark float64) float64 {
	if entry == 0 {
		return 0
	}
	return side.Sign() * (mark - entry) / entry * 100
}

// ROI is pnl over margin in percent; 0 when margin is 0.
func ROI(pnl, margin float64) float64 {
	if margin == 0 {
		return 0
	}
	return pnl / margin * 100
}

// LiquidationPrice projects where an isolated position would be liquidated
// given its leverage and the maintenance margin rate. Returns 0 for
// unleveraged longs whose projection falls at or below zero.
func LiquidationPrice(side market.Side, entry float64, leverage int, maintenanceRate float64) float64 {
	if leverage <= 0 || entry <= 0 {
		return 0
	}
	inv := 1 / float64(leverage)
	var px float64
	if side == market.Long {
		px = entry * (1 - inv + maintenanceRate)
	} else {
		px = entry * (1 + inv - maintenanceRate)
	}
	if px < 0 {
		return 0
	}
	return px
}

// Deviation is |a-b|/b; 0 when b is 0.
func Deviation(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return math.Abs(a-b) / b
}
