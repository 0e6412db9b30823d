package journal

import (
	"fmt"
	"strings"
	"time"
)

// FormatTradeOrg renders a position's records as an Org-mode block. The
// first record supplies the entry facts; the last CLOSED record, if any,
// supplies the exit. Partial closes are listed under their own heading.
func FormatTradeOrg(records []TradeLog) string {
	if len(records) == 0 {
		return ""
	}
	first := records[0]

	kind := "Trade"
	if first.IsHedge {
		kind = "Hedge"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "** %s: %s %s (%s)\n", kind, first.Symbol, first.Direction, shortID(first.EntryID))
	b.WriteString(":PROPERTIES:\n")
	fmt.Fprintf(&b, ":ENTRY_ID: %s\n", first.EntryID)
	fmt.Fprintf(&b, ":SYMBOL: %s\n", first.Symbol)
	fmt.Fprintf(&b, ":DIRECTION: %s\n", first.Direction)
	fmt.Fprintf(&b, ":QUANTITY: %.6f\n", first.Quantity)
	fmt.Fprintf(&b, ":COST_USDT: %.2f\n", first.CostUSDT)
	fmt.Fprintf(&b, ":LEVERAGE: %d\n", first.Leverage)
	fmt.Fprintf(&b, ":ENTRY_PRICE: %.5f\n", first.EntryPrice)
	// Use RFC3339 for copy/paste friendliness.
	fmt.Fprintf(&b, ":ENTRY_TIME: %s\n", first.EntryTime.UTC().Format(time.RFC3339))

	var closes []TradeLog
	for _, r := range records {
		if r.Closed() {
			closes = append(closes, r)
		}
	}
	if n := len(closes); n > 0 {
		last := closes[n-1]
		fmt.Fprintf(&b, ":STATUS: %s\n", StatusClosed)
		if last.ExitPrice != nil {
			fmt.Fprintf(&b, ":EXIT_PRICE: %.5f\n", *last.ExitPrice)
		}
		if last.ExitTime != nil {
			fmt.Fprintf(&b, ":EXIT_TIME: %s\n", last.ExitTime.UTC().Format(time.RFC3339))
		}
		var total float64
		for _, c := range closes {
			total += c.Profit()
		}
		fmt.Fprintf(&b, ":PROFIT_USDT: %.2f\n", total)
		fmt.Fprintf(&b, ":EXIT_REASON: %s\n", last.ExitReason)
	} else {
		fmt.Fprintf(&b, ":STATUS: %s\n", StatusOpen)
	}
	b.WriteString(":END:\n")

	if len(closes) > 1 {
		b.WriteString("\n*** Closes\n")
		for _, c := range closes {
			fmt.Fprintf(&b, "- %s %.6f @ %s: %.2f USDT\n", c.ExitReason, c.Quantity, optFloat(c.ExitPrice), c.Profit())
		}
	}
	b.WriteString("\n*** Review\n- \n")
	return b.String()
}

// FormatTradesOrg groups records by entry id, in first-seen order, and
// renders each group separated by a blank line.
func FormatTradesOrg(records []TradeLog) string {
	var order []string
	groups := map[string][]TradeLog{}
	for _, r := range records {
		if _, ok := groups[r.EntryID]; !ok {
			order = append(order, r.EntryID)
		}
		groups[r.EntryID] = append(groups[r.EntryID], r)
	}

	var b strings.Builder
	for i, id := range order {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(FormatTradeOrg(groups[id]))
	}
	return b.String()
}

func shortID(full string) string {
	if len(full) <= 8 {
		return full
	}
	return full[len(full)-8:]
}
