package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the signed direction of a single fill.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Fill statuses as reported by the broker. Anything other than filled is
// treated as void input and skipped during reconciliation.
const (
	FillStatusFilled    = "filled"
	FillStatusVoid      = "void"
	FillStatusCancelled = "cancelled"
)

// Fill is a single broker execution report after normalization. Fills are
// immutable; identity is the broker-assigned ID.
type Fill struct {
	ID          string              `json:"id"`
	AccountID   string              `json:"account_id"`
	Symbol      string              `json:"symbol"`
	Side        Side                `json:"side"`
	Quantity    decimal.Decimal     `json:"quantity"`
	Price       decimal.Decimal     `json:"price"`
	RealizedPnl decimal.NullDecimal `json:"realized_pnl,omitempty"`
	Commission  decimal.Decimal     `json:"commission"`
	Timestamp   time.Time           `json:"timestamp"`
	Status      string              `json:"status"`
}

// SignedQuantity returns +quantity for buys and -quantity for sells.
func (f *Fill) SignedQuantity() decimal.Decimal {
	if f.Side == SideSell {
		return f.Quantity.Neg()
	}
	return f.Quantity
}

// Void reports whether the fill should be excluded from reconciliation.
func (f *Fill) Void() bool {
	switch f.Status {
	case FillStatusVoid, FillStatusCancelled, "canceled", "rejected":
		return true
	}
	return !f.Quantity.IsPositive()
}
