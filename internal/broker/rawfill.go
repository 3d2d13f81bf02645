package broker

import "encoding/json"

// RawFill is the loosely-typed fill shape returned by broker APIs. Brokers
// disagree on field names and representations: ids arrive under id or fill_id,
// prices under price or executed_price, and timestamps under any of four names
// as ISO strings, unix seconds or unix millis. All of that brittleness is
// contained here and resolved by a single normalization pass; nothing past
// this package ever probes alternate fields.
type RawFill struct {
	ID        string `json:"id,omitempty"`
	FillID    string `json:"fill_id,omitempty"`
	TradeID   string `json:"trade_id,omitempty"`
	AccountID string `json:"account_id,omitempty"`
	Symbol    string `json:"symbol"`
	Side      string `json:"side"`

	Quantity      json.Number `json:"quantity,omitempty"`
	Size          json.Number `json:"size,omitempty"`
	Price         json.Number `json:"price,omitempty"`
	ExecutedPrice json.Number `json:"executed_price,omitempty"`
	RealizedPnl   json.Number `json:"realized_pnl,omitempty"`
	Commission    json.Number `json:"commission,omitempty"`
	Fee           json.Number `json:"fee,omitempty"`

	Status string `json:"status,omitempty"`

	// Timestamp candidates, in no particular guaranteed presence.
	Timestamp    any `json:"timestamp,omitempty"`
	TransactTime any `json:"transact_time,omitempty"`
	Time         any `json:"time,omitempty"`
	CreatedAt    any `json:"created_at,omitempty"`
}
