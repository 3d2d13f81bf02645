package broker

import (
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/trogers1052/trade-sync-service/internal/models"
)

// maxFutureSkew rejects parsed instants further in the future than this;
// anything beyond it is corrupt upstream data, not clock drift.
const maxFutureSkew = 24 * time.Hour

// Free-form layouts tried in order after the unix-time path fails.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// extractor pulls one timestamp candidate out of a raw fill. Candidates are
// tried in priority order and the first one that parses wins.
type extractor func(rf *RawFill) any

var timestampExtractors = []extractor{
	func(rf *RawFill) any { return rf.TransactTime },
	func(rf *RawFill) any { return rf.Timestamp },
	func(rf *RawFill) any { return rf.Time },
	func(rf *RawFill) any { return rf.CreatedAt },
}

// NormalizeFill converts a raw broker fill into the canonical Fill consumed by
// reconciliation. It returns an error only for fills that cannot be used at
// all (missing id or symbol, non-positive quantity); callers skip those and
// keep going, since one bad fill must not block the rest of the account.
func (n *Normalizer) NormalizeFill(rf *RawFill) (models.Fill, error) {
	id := firstNonEmpty(rf.ID, rf.FillID, rf.TradeID)
	if id == "" {
		return models.Fill{}, fmt.Errorf("fill has no id")
	}
	if rf.Symbol == "" {
		return models.Fill{}, fmt.Errorf("fill %s has no symbol", id)
	}

	side, err := parseSide(rf.Side)
	if err != nil {
		return models.Fill{}, fmt.Errorf("fill %s: %w", id, err)
	}

	qty, err := parseDecimal(firstNumber(rf.Quantity, rf.Size))
	if err != nil {
		return models.Fill{}, fmt.Errorf("fill %s: invalid quantity: %w", id, err)
	}
	if !qty.IsPositive() {
		return models.Fill{}, fmt.Errorf("fill %s: non-positive quantity %s", id, qty)
	}

	price, err := parseDecimal(firstNumber(rf.ExecutedPrice, rf.Price))
	if err != nil {
		return models.Fill{}, fmt.Errorf("fill %s: invalid price: %w", id, err)
	}

	commission, err := parseDecimal(firstNumber(rf.Commission, rf.Fee))
	if err != nil {
		commission = decimal.Zero
	}

	var pnl decimal.NullDecimal
	if rf.RealizedPnl != "" {
		if v, err := decimal.NewFromString(rf.RealizedPnl.String()); err == nil {
			pnl = decimal.NullDecimal{Decimal: v, Valid: true}
		}
	}

	status := rf.Status
	if status == "" {
		status = models.FillStatusFilled
	}

	accountID := rf.AccountID

	return models.Fill{
		ID:          id,
		AccountID:   accountID,
		Symbol:      strings.ToUpper(rf.Symbol),
		Side:        side,
		Quantity:    qty,
		Price:       price,
		RealizedPnl: pnl,
		Commission:  commission,
		Timestamp:   n.NormalizeTimestamp(rf),
		Status:      strings.ToLower(status),
	}, nil
}

// Normalizer owns all field-fallback and timestamp handling for raw fills.
// now is injectable for tests; the zero value uses the wall clock.
type Normalizer struct {
	now func() time.Time
}

func NewNormalizer() *Normalizer {
	return &Normalizer{now: time.Now}
}

func (n *Normalizer) clock() time.Time {
	if n.now != nil {
		return n.now().UTC()
	}
	return time.Now().UTC()
}

// NormalizeTimestamp resolves a fill's timestamp from the ordered candidate
// fields. On failure it falls back to "now": downstream ordering tolerates
// minor skew but not missing trades, so this is a soft degradation.
func (n *Normalizer) NormalizeTimestamp(rf *RawFill) time.Time {
	now := n.clock()
	for _, extract := range timestampExtractors {
		raw := extract(rf)
		if raw == nil {
			continue
		}
		if t, ok := parseInstant(raw, now); ok {
			return t
		}
	}
	log.Printf("No usable timestamp on fill %s, falling back to current time",
		firstNonEmpty(rf.ID, rf.FillID, rf.TradeID))
	return now
}

// parseInstant converts one candidate value into a UTC instant. Numeric
// values and all-digit strings are unix time; fewer than 13 digits means
// seconds, otherwise milliseconds. Everything else goes through the free-form
// layouts. The result must be strictly after the epoch and no more than a day
// in the future.
func parseInstant(raw any, now time.Time) (time.Time, bool) {
	var s string
	switch v := raw.(type) {
	case string:
		s = strings.TrimSpace(v)
	case json.Number:
		s = v.String()
	case float64:
		s = strconv.FormatFloat(v, 'f', -1, 64)
	case int64:
		s = strconv.FormatInt(v, 10)
	case int:
		s = strconv.Itoa(v)
	default:
		return time.Time{}, false
	}
	if s == "" {
		return time.Time{}, false
	}

	if isAllDigits(s) {
		ms, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return time.Time{}, false
		}
		if len(s) < 13 {
			ms *= 1000
		}
		return validInstant(time.UnixMilli(ms).UTC(), now)
	}

	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return validInstant(t.UTC(), now)
		}
	}
	return time.Time{}, false
}

func validInstant(t, now time.Time) (time.Time, bool) {
	if t.UnixMilli() <= 0 {
		return time.Time{}, false
	}
	if t.After(now.Add(maxFutureSkew)) {
		return time.Time{}, false
	}
	return t, true
}

func isAllDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

func parseSide(s string) (models.Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy", "b", "long":
		return models.SideBuy, nil
	case "sell", "s", "short":
		return models.SideSell, nil
	}
	return "", fmt.Errorf("unknown side %q", s)
}

func parseDecimal(n string) (decimal.Decimal, error) {
	if n == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(n)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstNumber(values ...json.Number) string {
	for _, v := range values {
		if v != "" {
			return v.String()
		}
	}
	return ""
}
