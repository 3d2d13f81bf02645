package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction of a round-trip trade.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// Trade is one completed round trip: the aggregation of every fill between a
// position opening from flat and returning to flat. Trades are append-only;
// once written they are never updated. BrokerTradeID is derived from the
// sorted set of contributing fill ids and acts as the idempotency key.
type Trade struct {
	ID             int64           `json:"id"`
	AccountID      string          `json:"account_id"`
	Symbol         string          `json:"symbol"`
	Direction      Direction       `json:"direction"`
	Quantity       decimal.Decimal `json:"quantity"`
	AvgEntryPrice  decimal.Decimal `json:"avg_entry_price"`
	AvgExitPrice   decimal.Decimal `json:"avg_exit_price"`
	RealizedPnl    decimal.Decimal `json:"realized_pnl"`
	Fees           decimal.Decimal `json:"fees"`
	EntryTimestamp time.Time       `json:"entry_timestamp"`
	ExitTimestamp  time.Time       `json:"exit_timestamp"`
	ExitLevels     []ExitLevel     `json:"exit_levels,omitempty"`
	BrokerTradeID  string          `json:"broker_trade_id"`
	CreatedAt      time.Time       `json:"created_at"`
}

// ExitLevel is one partial exit within a trade that closed via multiple fills.
type ExitLevel struct {
	ID          int64               `json:"id"`
	TradeID     int64               `json:"trade_id"`
	FillID      string              `json:"fill_id"`
	Quantity    decimal.Decimal     `json:"quantity"`
	Price       decimal.Decimal     `json:"price"`
	RealizedPnl decimal.NullDecimal `json:"realized_pnl,omitempty"`
	Timestamp   time.Time           `json:"timestamp"`
}

// ExitSide returns the fill side that closes a trade of this direction.
func (t *Trade) ExitSide() Side {
	if t.Direction == DirectionShort {
		return SideBuy
	}
	return SideSell
}
