package sim

import (
	"go.uber.org/zap"

	"github.com/rustyeddy/hedger/journal"
	"github.com/rustyeddy/hedger/market"
	"github.com/rustyeddy/hedger/risk"
)

type openSpec struct {
	symbol     string
	side       market.Side
	amount     float64 // base quantity
	price      float64
	leverage   int
	takeProfit *float64
	autoReopen bool
	parent     *Position // non-nil opens a hedge of parent
}

// openLocked checks free margin and, when allowed, adds the position, links
// it to its parent and writes the OPEN trade log. The caller logs refusals.
func (e *Engine) openLocked(s openSpec) (*Position, risk.Decision) {
	d := risk.CheckOpen(
		risk.OpenIntent{Symbol: s.symbol, Amount: s.amount, Price: s.price, Leverage: s.leverage},
		risk.AccountSnapshot{MarginBalance: e.account.MarginBalance, MarginUsed: e.marginUsedLocked()},
	)
	if !d.Allowed {
		for _, v := range d.Violations {
			rejectedOpens.WithLabelValues(v.Code).Inc()
		}
		return nil, d
	}

	p := &Position{
		EntryID:              e.ids.New(),
		Symbol:               s.symbol,
		Side:                 s.side,
		Amount:               s.amount,
		EntryPrice:           s.price,
		MarkPrice:            s.price,
		Leverage:             s.leverage,
		SimTakeProfitPercent: s.takeProfit,
		SimAutoReopen:        s.autoReopen,
		EntryTime:            e.now(),
	}
	kind := "standalone"
	if s.parent != nil {
		s.parent.Link = Link{Kind: Original, PeerID: p.EntryID}
		p.Link = Link{Kind: Hedge, PeerID: s.parent.EntryID}
		p.OpenedAsHedge = true
		kind = "hedge"
	}
	e.positions[p.EntryID] = p
	e.order = append(e.order, p.EntryID)
	opensTotal.WithLabelValues(kind).Inc()

	e.recordTradeLocked(journal.TradeLog{
		EntryID:    p.EntryID,
		Symbol:     p.Symbol,
		Direction:  p.Side,
		Quantity:   p.Amount,
		CostUSDT:   risk.Notional(p.Amount, p.EntryPrice),
		EntryPrice: p.EntryPrice,
		EntryTime:  p.EntryTime,
		Status:     journal.StatusOpen,
		Leverage:   p.Leverage,
		IsHedge:    p.IsHedge(),
	})
	e.logger.Info("position opened", zapPosition(p)...)
	return p, d
}

// closeLocked fully closes p at its mark: realizes PnL, writes the CLOSED
// trade log, unlinks any peer and schedules an auto-reopen when eligible.
func (e *Engine) closeLocked(p *Position, reason string) float64 {
	p.refresh()
	pnl := p.UnrealizedPnL
	e.account.MarginBalance += pnl

	e.recordTradeLocked(e.closedRecord(p, p.Amount, pnl, reason))
	e.removeLocked(p)
	closesTotal.WithLabelValues(reason).Inc()

	e.logger.Info("position closed",
		append(zapPosition(p), zap.String("reason", reason), zap.Float64("pnl", pnl))...,
	)

	if p.SimAutoReopen && reopenable(reason) {
		e.scheduleReopenLocked(p)
	}
	return pnl
}

// closePartialLocked closes amount of p. At or above 99% of the position it
// degrades to a full close with the same reason and reports true.
func (e *Engine) closePartialLocked(p *Position, amount float64, reason string) (pnl float64, full bool) {
	if amount <= 0 {
		return 0, false
	}
	if amount >= p.Amount*fullCloseShare {
		return e.closeLocked(p, reason), true
	}

	p.refresh()
	pnl = risk.PnL(p.Side, p.EntryPrice, p.MarkPrice, amount)
	e.account.MarginBalance += pnl

	reason = partialPrefix + reason
	e.recordTradeLocked(e.closedRecord(p, amount, pnl, reason))

	p.Amount -= amount
	p.refresh()
	closesTotal.WithLabelValues(reason).Inc()

	e.logger.Info("position partially closed",
		append(zapPosition(p), zap.String("reason", reason), zap.Float64("closed", amount), zap.Float64("pnl", pnl))...,
	)
	return pnl, false
}

// closePercentLocked closes pct percent of p.
func (e *Engine) closePercentLocked(p *Position, pct float64, reason string) (float64, bool) {
	if pct >= fullCloseShare*100 {
		return e.closeLocked(p, reason), true
	}
	return e.closePartialLocked(p, p.Amount*pct/100, reason)
}

func (e *Engine) closedRecord(p *Position, qty, pnl float64, reason string) journal.TradeLog {
	exitPrice := p.MarkPrice
	exitTime := e.now()
	pct := p.UnrealizedPnLPercent
	return journal.TradeLog{
		EntryID:       p.EntryID,
		Symbol:        p.Symbol,
		Direction:     p.Side,
		Quantity:      qty,
		CostUSDT:      risk.Notional(qty, p.EntryPrice),
		EntryPrice:    p.EntryPrice,
		EntryTime:     p.EntryTime,
		ExitPrice:     &exitPrice,
		ExitTime:      &exitTime,
		ProfitUSDT:    &pnl,
		ProfitPercent: &pct,
		Status:        journal.StatusClosed,
		ExitReason:    reason,
		Leverage:      p.Leverage,
		IsHedge:       p.IsHedge(),
	}
}

// removeLocked drops p from the live set. A surviving peer becomes
// standalone: an original whose hedge closed is re-armed, and a hedge whose
// original closed is orphaned.
func (e *Engine) removeLocked(p *Position) {
	delete(e.positions, p.EntryID)
	delete(e.hedgePeaks, p.EntryID)
	for i, id := range e.order {
		if id == p.EntryID {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}

	if p.Link.Kind == Standalone {
		return
	}
	if peer, ok := e.positions[p.Link.PeerID]; ok && peer.Link.PeerID == p.EntryID {
		if peer.Link.Kind == Hedge {
			delete(e.hedgePeaks, peer.EntryID)
		}
		peer.Link = Link{}
	}
}
