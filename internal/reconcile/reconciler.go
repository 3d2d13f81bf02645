package reconcile

import (
	"log"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/trogers1052/trade-sync-service/internal/models"
)

// OpenPosition describes exposure left open at the end of the fetched window.
// It is not persisted; the closing fills will arrive in a later window and the
// whole round trip is reconstructed then.
type OpenPosition struct {
	AccountID string          `json:"account_id"`
	Symbol    string          `json:"symbol"`
	Direction models.Direction `json:"direction"`
	Quantity  decimal.Decimal `json:"quantity"`
	OpenedAt  time.Time       `json:"opened_at"`
}

// Result is the output of one reconciliation pass over an account's fills.
type Result struct {
	Trades       []*models.Trade
	Open         []OpenPosition
	SkippedFills int
}

// position is the sole mutable state while walking one (account, symbol)
// partition. It is created when net exposure leaves flat and discarded the
// moment it returns to exactly zero.
type position struct {
	direction     models.Direction
	enteredQty    decimal.Decimal
	entryNotional decimal.Decimal
	exitNotional  decimal.Decimal
	fees          decimal.Decimal
	entryFillIDs  []string
	exitLevels    []models.ExitLevel
	brokerPnl     decimal.Decimal
	brokerPnlSeen bool
	openedAt      time.Time
	lastActivity  time.Time
}

// Reconcile transforms an account's raw fill stream into completed round-trip
// trades using FIFO signed-position tracking. Fills are sorted globally by
// (timestamp, id) and partitioned by symbol; partitions are fully independent.
func Reconcile(fills []models.Fill) Result {
	var result Result

	sorted := make([]models.Fill, len(fills))
	copy(sorted, fills)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].Timestamp.Equal(sorted[j].Timestamp) {
			return sorted[i].Timestamp.Before(sorted[j].Timestamp)
		}
		// Identical timestamps are ordered by fill id so matching stays
		// deterministic across re-runs.
		return sorted[i].ID < sorted[j].ID
	})

	partitions := make(map[string][]models.Fill)
	var symbols []string
	for _, f := range sorted {
		if _, seen := partitions[f.Symbol]; !seen {
			symbols = append(symbols, f.Symbol)
		}
		partitions[f.Symbol] = append(partitions[f.Symbol], f)
	}
	sort.Strings(symbols)

	for _, symbol := range symbols {
		trades, open, skipped := reconcileSymbol(symbol, partitions[symbol])
		result.Trades = append(result.Trades, trades...)
		result.SkippedFills += skipped
		if open != nil {
			result.Open = append(result.Open, *open)
		}
	}

	return result
}

func reconcileSymbol(symbol string, fills []models.Fill) ([]*models.Trade, *OpenPosition, int) {
	var (
		trades  []*models.Trade
		current *position
		netPos  = decimal.Zero
		skipped int
	)

	var accountID string

	for i := range fills {
		fill := &fills[i]
		if fill.Void() {
			skipped++
			continue
		}
		accountID = fill.AccountID

		remaining := fill.SignedQuantity()
		for !remaining.IsZero() {
			if netPos.IsZero() {
				current = openPosition(remaining, fill.Timestamp)
			}

			if remaining.Sign() == positionSign(current.direction) {
				// Opening or scaling in: the whole remainder enters.
				qty := remaining.Abs()
				current.enteredQty = current.enteredQty.Add(qty)
				current.entryNotional = current.entryNotional.Add(fill.Price.Mul(qty))
				current.fees = current.fees.Add(feeShare(fill, qty))
				current.entryFillIDs = append(current.entryFillIDs, fill.ID)
				current.lastActivity = fill.Timestamp
				netPos = netPos.Add(remaining)
				remaining = decimal.Zero
				continue
			}

			// Closing: consume at most the open quantity; any overshoot loops
			// back around and opens the opposite-direction position.
			closeQty := decimal.Min(remaining.Abs(), netPos.Abs())
			current.exitNotional = current.exitNotional.Add(fill.Price.Mul(closeQty))
			current.fees = current.fees.Add(feeShare(fill, closeQty))
			current.exitLevels = append(current.exitLevels, models.ExitLevel{
				FillID:      fill.ID,
				Quantity:    closeQty,
				Price:       fill.Price,
				RealizedPnl: fill.RealizedPnl,
				Timestamp:   fill.Timestamp,
			})
			if fill.RealizedPnl.Valid {
				current.brokerPnl = current.brokerPnl.Add(fill.RealizedPnl.Decimal)
				current.brokerPnlSeen = true
			}
			current.lastActivity = fill.Timestamp

			if remaining.Sign() > 0 {
				netPos = netPos.Add(closeQty)
				remaining = remaining.Sub(closeQty)
			} else {
				netPos = netPos.Sub(closeQty)
				remaining = remaining.Add(closeQty)
			}

			if netPos.IsZero() {
				trades = append(trades, finalize(accountID, symbol, current))
				current = nil
			}
		}
	}

	if current != nil && !netPos.IsZero() {
		open := &OpenPosition{
			AccountID: accountID,
			Symbol:    symbol,
			Direction: current.direction,
			Quantity:  netPos.Abs(),
			OpenedAt:  current.openedAt,
		}
		log.Printf("Open %s position in %s (qty %s) left for a future sync window",
			open.Direction, symbol, open.Quantity)
		return trades, open, skipped
	}

	return trades, nil, skipped
}

func openPosition(signedQty decimal.Decimal, ts time.Time) *position {
	direction := models.DirectionLong
	if signedQty.Sign() < 0 {
		direction = models.DirectionShort
	}
	return &position{
		direction:     direction,
		enteredQty:    decimal.Zero,
		entryNotional: decimal.Zero,
		exitNotional:  decimal.Zero,
		fees:          decimal.Zero,
		brokerPnl:     decimal.Zero,
		openedAt:      ts,
		lastActivity:  ts,
	}
}

func positionSign(d models.Direction) int {
	if d == models.DirectionShort {
		return -1
	}
	return 1
}

// feeShare pro-rates a fill's commission to the fraction of its quantity
// consumed in this step, so a fill split across a close and a re-open carries
// its cost proportionally.
func feeShare(fill *models.Fill, qty decimal.Decimal) decimal.Decimal {
	if fill.Commission.IsZero() || fill.Quantity.IsZero() {
		return decimal.Zero
	}
	if qty.Equal(fill.Quantity) {
		return fill.Commission
	}
	return fill.Commission.Mul(qty).Div(fill.Quantity)
}

func finalize(accountID, symbol string, p *position) *models.Trade {
	qty := p.enteredQty
	avgEntry := p.entryNotional.Div(qty)
	avgExit := p.exitNotional.Div(qty)

	grossPnl := derivedPnl(p.direction, avgEntry, avgExit, qty)
	if p.brokerPnlSeen {
		// Broker-reported P&L is authoritative; the derived figure is only a
		// consistency check since weighted averages can lose information.
		if diverges(grossPnl, p.brokerPnl) {
			log.Printf("P&L divergence on %s %s trade: broker=%s derived=%s",
				symbol, p.direction, p.brokerPnl, grossPnl)
		}
		grossPnl = p.brokerPnl
	}

	if avgEntry.Equal(avgExit) && !grossPnl.IsZero() {
		avgEntry, avgExit = SynthesizeExitPrices(p.direction, avgEntry, grossPnl, qty)
	}

	var fillIDs []string
	fillIDs = append(fillIDs, p.entryFillIDs...)
	for _, lvl := range p.exitLevels {
		fillIDs = append(fillIDs, lvl.FillID)
	}

	return &models.Trade{
		AccountID:      accountID,
		Symbol:         symbol,
		Direction:      p.direction,
		Quantity:       qty,
		AvgEntryPrice:  avgEntry,
		AvgExitPrice:   avgExit,
		RealizedPnl:    grossPnl.Sub(p.fees),
		Fees:           p.fees,
		EntryTimestamp: p.openedAt,
		ExitTimestamp:  p.lastActivity,
		ExitLevels:     p.exitLevels,
		BrokerTradeID:  BrokerTradeID(fillIDs),
	}
}
