package journal

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Summary aggregates CLOSED trade records. Money totals are summed as
// decimals so long journals do not drift.
type Summary struct {
	Closed       int
	Wins         int
	Losses       int
	Hedges       int
	NetPnL       decimal.Decimal
	GrossProfit  decimal.Decimal
	GrossLoss    decimal.Decimal // positive
	ByReason     map[string]int
	reasonsOrder []string
}

// WinRate is Wins/Closed as a percentage.
func (s Summary) WinRate() decimal.Decimal {
	if s.Closed == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(s.Wins)).
		Div(decimal.NewFromInt(int64(s.Closed))).
		Mul(decimal.NewFromInt(100))
}

// ProfitFactor is GrossProfit/GrossLoss; ok is false with no losses.
func (s Summary) ProfitFactor() (pf decimal.Decimal, ok bool) {
	if s.GrossLoss.IsZero() {
		return decimal.Zero, false
	}
	return s.GrossProfit.Div(s.GrossLoss), true
}

// Reasons returns the exit reasons seen, sorted.
func (s Summary) Reasons() []string {
	return s.reasonsOrder
}

// Summarize folds the CLOSED records in trades. OPEN records are ignored.
func Summarize(trades []TradeLog) Summary {
	s := Summary{
		NetPnL:      decimal.Zero,
		GrossProfit: decimal.Zero,
		GrossLoss:   decimal.Zero,
		ByReason:    map[string]int{},
	}
	for _, t := range trades {
		if !t.Closed() {
			continue
		}
		s.Closed++
		if t.IsHedge {
			s.Hedges++
		}
		p := decimal.NewFromFloat(t.Profit())
		s.NetPnL = s.NetPnL.Add(p)
		switch p.Sign() {
		case 1:
			s.Wins++
			s.GrossProfit = s.GrossProfit.Add(p)
		case -1:
			s.Losses++
			s.GrossLoss = s.GrossLoss.Add(p.Neg())
		}
		s.ByReason[t.ExitReason]++
	}
	for r := range s.ByReason {
		s.reasonsOrder = append(s.reasonsOrder, r)
	}
	sort.Strings(s.reasonsOrder)
	return s
}

func (s Summary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "closed:        %d (%d hedge legs)\n", s.Closed, s.Hedges)
	fmt.Fprintf(&b, "wins/losses:   %d/%d\n", s.Wins, s.Losses)
	fmt.Fprintf(&b, "win rate:      %s%%\n", s.WinRate().StringFixed(2))
	fmt.Fprintf(&b, "net pnl:       %s USDT\n", s.NetPnL.StringFixed(2))
	fmt.Fprintf(&b, "gross profit:  %s USDT\n", s.GrossProfit.StringFixed(2))
	fmt.Fprintf(&b, "gross loss:    %s USDT\n", s.GrossLoss.StringFixed(2))
	if pf, ok := s.ProfitFactor(); ok {
		fmt.Fprintf(&b, "profit factor: %s\n", pf.StringFixed(2))
	} else {
		b.WriteString("profit factor: n/a\n")
	}
	for _, r := range s.Reasons() {
		fmt.Fprintf(&b, "  %-22s %d\n", r, s.ByReason[r])
	}
	return b.String()
}
