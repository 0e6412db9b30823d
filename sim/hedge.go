package sim

import (
	"math"

	"go.uber.org/zap"

	"github.com/rustyeddy/hedger/journal"
	"github.com/rustyeddy/hedger/risk"
)

// hedgeEntry opens an opposite-side hedge for a standalone position that
// is large enough and down at least the trigger percent. Orphaned hedges
// are never hedged again.
func (e *Engine) hedgeEntry(p *Position, c *evalContext) bool {
	h := c.settings.Hedging
	if h == nil || p.Link.Kind != Standalone || p.IsHedge() {
		return false
	}
	if p.Notional() < h.MinPosition || p.UnrealizedPnLPercent > -h.TriggerLossPercent {
		return false
	}
	ratio := c.settings.HedgeRatio()
	if ratio <= 0 {
		return false
	}

	hedge, d := e.openLocked(openSpec{
		symbol:   p.Symbol,
		side:     p.Side.Opposite(),
		amount:   p.Amount * ratio,
		price:    p.MarkPrice,
		leverage: p.Leverage,
		parent:   p,
	})
	if !d.Allowed {
		e.audit(journal.SeverityDanger, "Hedge for %s %s refused: %s", p.Side, p.Symbol, d.Reason())
		e.logger.Warn("hedge refused",
			zap.String("entry_id", p.EntryID),
			zap.Float64("required_margin", d.RequiredMargin),
			zap.Float64("free_margin", d.FreeMargin),
		)
		return false
	}

	e.audit(journal.SeverityWarning, "Hedged %s %s at %.2f%%: %s %.6f @ %.4f (%.0f%%)",
		p.Side, p.Symbol, p.UnrealizedPnLPercent, hedge.Side, hedge.Amount, hedge.EntryPrice, ratio*100)
	e.notify("Hedge opened", "%s %s down %.2f%%, opened %s hedge of %.6f",
		p.Side, p.Symbol, -p.UnrealizedPnLPercent, hedge.Side, hedge.Amount)
	return true
}

// hedgePairExit runs the hedge-exit state machine for an original with a
// live hedge. At most one action is taken per pair per tick.
func (e *Engine) hedgePairExit(o *Position, c *evalContext) bool {
	if !o.IsHedged() {
		return false
	}
	h, ok := e.positions[o.Link.PeerID]
	if !ok {
		// dangling link; re-arm the original
		o.Link = Link{}
		return false
	}

	hx := c.settings.HedgeExit
	origMargin := o.Margin()
	combined := o.UnrealizedPnL + h.UnrealizedPnL

	if hx.CallbackProfitClear != nil {
		if peak, seen := e.hedgePeaks[h.EntryID]; !seen || h.UnrealizedPnLPercent > peak {
			e.hedgePeaks[h.EntryID] = h.UnrealizedPnLPercent
		}
	}

	// Safe clear is the outer breaker and runs first.
	if sc := hx.SafeClear; sc != nil {
		roi := risk.ROI(combined, origMargin+h.Margin())
		switch {
		case roi >= sc.ProfitPercent:
			e.closePairLocked(o, h, ReasonSafeClearProfit, ReasonSafeClearProfit, journal.SeveritySuccess,
				"Safe clear (profit) at %.2f%% ROI", roi)
			return true
		case roi <= -sc.LossPercent:
			e.closePairLocked(o, h, ReasonSafeClearLoss, ReasonSafeClearLoss, journal.SeverityDanger,
				"Safe clear (loss) at %.2f%% ROI", roi)
			return true
		}
	}

	if opc := hx.OriginalProfitClear; opc != nil {
		if h.UnrealizedPnLPercent <= -opc.HedgeStopLossPercent && combined > origMargin*opc.OriginalCoverPercent/100 {
			e.closePairLocked(o, h, ReasonPathARecovery, ReasonPathAStop, journal.SeveritySuccess,
				"Original recovered past hedge stop, net %+.2f USDT", combined)
			return true
		}
	}

	if hp := hx.HedgeProfitClear; hp != nil {
		cover := 1 + hp.HedgeCoverPercent/100

		owed := o.CumulativeHedgeLoss + math.Max(0, -o.UnrealizedPnL)
		if h.UnrealizedPnL > 0 && h.UnrealizedPnL > owed*cover {
			e.closePairLocked(o, h, ReasonPathBWinAll, ReasonPathBWinAll, journal.SeveritySuccess,
				"Hedge profit %.2f covers %.2f owed", h.UnrealizedPnL, owed)
			return true
		}

		if h.UnrealizedPnLPercent <= -hp.StopLossPercent {
			hedgeLoss := math.Abs(h.UnrealizedPnL)
			total := o.CumulativeHedgeLoss + hedgeLoss
			if o.UnrealizedPnL > total*cover {
				e.closePairLocked(o, h, ReasonPathBSLCoverAll, ReasonPathBSLCoverAll, journal.SeveritySuccess,
					"Original profit %.2f covers hedge losses %.2f", o.UnrealizedPnL, total)
				return true
			}

			// Hedge-only stop: the loss becomes debt on the original, which
			// is unlinked and may be hedged again or recover the debt.
			e.closeLocked(h, ReasonHedgeStopLoss)
			o.CumulativeHedgeLoss += hedgeLoss
			e.audit(journal.SeverityWarning, "Hedge on %s %s stopped out for %.2f; debt now %.2f",
				o.Side, o.Symbol, hedgeLoss, o.CumulativeHedgeLoss)
			e.notify("Hedge stopped", "%s %s carries %.2f USDT of hedge debt", o.Side, o.Symbol, o.CumulativeHedgeLoss)
			return true
		}
	}

	if cb := hx.CallbackProfitClear; cb != nil {
		peak := e.hedgePeaks[h.EntryID]
		if peak >= cb.TargetProfit && peak-h.UnrealizedPnLPercent >= cb.CallbackRate &&
			combined > origMargin*cb.CoverPercent/100 {
			e.closePairLocked(o, h, ReasonPathCStop, ReasonPathCWin, journal.SeveritySuccess,
				"Hedge retraced from %.2f%% to %.2f%%, net %+.2f USDT", peak, h.UnrealizedPnLPercent, combined)
			return true
		}
	}

	return false
}

// closePairLocked closes the hedge, then the original.
func (e *Engine) closePairLocked(o, h *Position, origReason, hedgeReason string, sev journal.Severity, format string, args ...any) {
	hpnl := e.closeLocked(h, hedgeReason)
	opnl := e.closeLocked(o, origReason)

	e.audit(sev, format, args...)
	e.audit(sev, "Closed %s %s pair (%s/%s) for %+.2f USDT", o.Side, o.Symbol, origReason, hedgeReason, opnl+hpnl)
	e.notify("Hedge pair closed", "%s %s: %s, %+.2f USDT", o.Side, o.Symbol, origReason, opnl+hpnl)
}
