package reconcile

import (
	"github.com/shopspring/decimal"
	"github.com/trogers1052/trade-sync-service/internal/models"
)

// divergenceThreshold is the absolute tolerance between broker-reported and
// price-derived P&L before the mismatch is logged.
var divergenceThreshold = decimal.NewFromFloat(0.01)

var two = decimal.NewFromInt(2)

// derivedPnl computes gross P&L from weighted-average prices.
func derivedPnl(direction models.Direction, avgEntry, avgExit, qty decimal.Decimal) decimal.Decimal {
	if direction == models.DirectionShort {
		return avgEntry.Sub(avgExit).Mul(qty)
	}
	return avgExit.Sub(avgEntry).Mul(qty)
}

func diverges(derived, reported decimal.Decimal) bool {
	return derived.Sub(reported).Abs().GreaterThan(divergenceThreshold)
}

// SynthesizeExitPrices produces distinct entry/exit prices when the broker
// reports only a net P&L against a single price. The reported price becomes
// the midpoint and half the implied per-unit delta is applied on each side,
// signed by direction and profit/loss. This exists purely so downstream
// displays have two distinct numbers; the reported P&L is never altered.
func SynthesizeExitPrices(direction models.Direction, price, pnl, qty decimal.Decimal) (entry, exit decimal.Decimal) {
	if qty.IsZero() || pnl.IsZero() {
		return price, price
	}

	delta := pnl.Abs().Div(qty).Div(two)
	profitable := pnl.Sign() > 0

	if direction == models.DirectionLong {
		if profitable {
			return price.Sub(delta), price.Add(delta)
		}
		return price.Add(delta), price.Sub(delta)
	}
	if profitable {
		return price.Add(delta), price.Sub(delta)
	}
	return price.Sub(delta), price.Add(delta)
}
