package sim

import (
	"fmt"

	"github.com/rustyeddy/hedger/config"
	"github.com/rustyeddy/hedger/journal"
)

// evalContext is what every rule sees for one position in one pass.
type evalContext struct {
	settings *config.Settings
	// managed is the module 4 takeover flag: a hedge-exit strategy is on and
	// the position is in a hedge lifecycle (linked, or carrying debt). While
	// set, stop-loss and both take-profits leave the position alone.
	managed bool
}

// A rule acts on p and reports true, or leaves everything untouched.
type rule struct {
	name string
	eval func(e *Engine, p *Position, c *evalContext) bool
}

// cascade is evaluated top to bottom for each position; the first rule
// that acts ends that position's evaluation for the tick.
var cascade = []rule{
	{"sim_take_profit", (*Engine).simTakeProfit},
	{"hedge_exit", (*Engine).hedgePairExit},
	{"debt_recovery", (*Engine).debtRecovery},
	{"hedge_entry", (*Engine).hedgeEntry},
	{"stop_loss", (*Engine).stopLoss},
	{"take_profit", (*Engine).takeProfit},
}

// runCascadeLocked evaluates the cascade over the ids live at the start of
// the pass. Ids closed earlier in the pass are skipped and positions opened
// during it wait for the next tick.
func (e *Engine) runCascadeLocked() bool {
	ids := append([]string(nil), e.order...)
	takeover := e.settings.HedgeExit.TakesOver()

	acted := false
	for _, id := range ids {
		p, ok := e.positions[id]
		if !ok {
			continue
		}
		c := evalContext{
			settings: &e.settings,
			managed:  takeover && (p.Link.Kind != Standalone || p.CumulativeHedgeLoss > 0),
		}
		for _, r := range cascade {
			if r.eval(e, p, &c) {
				ruleActions.WithLabelValues(r.name).Inc()
				acted = true
				break
			}
		}
	}
	return acted
}

func (e *Engine) simTakeProfit(p *Position, c *evalContext) bool {
	if p.SimTakeProfitPercent == nil || p.IsHedged() || c.managed {
		return false
	}
	if p.UnrealizedPnLPercent < *p.SimTakeProfitPercent {
		return false
	}

	pnl := e.closeLocked(p, ReasonSimProfit)
	e.audit(journal.SeveritySuccess, "%s %s hit its %.2f%% target, closed for %+.2f USDT",
		p.Side, p.Symbol, *p.SimTakeProfitPercent, pnl)
	return true
}

func (e *Engine) debtRecovery(p *Position, c *evalContext) bool {
	hp := c.settings.HedgeExit.HedgeProfitClear
	if hp == nil || p.Link.Kind != Standalone || p.CumulativeHedgeLoss <= 0 {
		return false
	}
	if p.UnrealizedPnL <= p.CumulativeHedgeLoss*(1+hp.HedgeCoverPercent/100) {
		return false
	}

	debt := p.CumulativeHedgeLoss
	pnl := e.closeLocked(p, ReasonPathBDebtRecovery)
	e.audit(journal.SeveritySuccess, "%s %s recovered hedge debt %.2f, closed for %+.2f USDT",
		p.Side, p.Symbol, debt, pnl)
	e.notify("Debt recovered", "%s %s closed with %+.2f USDT covering %.2f of hedge losses", p.Side, p.Symbol, pnl, debt)
	return true
}

func (e *Engine) stopLoss(p *Position, c *evalContext) bool {
	sl := c.settings.StopLoss
	if sl == nil || c.managed || p.IsHedged() {
		return false
	}
	if p.Notional() < sl.MinPosition || p.UnrealizedPnLPercent > -sl.LossPercent {
		return false
	}

	pnl, full := e.closePercentLocked(p, sl.ClosePercent, ReasonStopLoss)
	e.audit(journal.SeverityDanger, "Stop-loss on %s %s at %.2f%%: %s for %+.2f USDT",
		p.Side, p.Symbol, p.UnrealizedPnLPercent, closedWord(full, sl.ClosePercent), pnl)
	return true
}

func (e *Engine) takeProfit(p *Position, c *evalContext) bool {
	tp := c.settings.ConventionalTakeProfit()
	if tp == nil || c.managed || p.IsHedged() {
		return false
	}
	if p.Notional() < tp.MinPosition || p.UnrealizedPnLPercent < tp.ProfitPercent {
		return false
	}

	pnl, full := e.closePercentLocked(p, tp.ClosePercent, ReasonTakeProfit)
	e.audit(journal.SeveritySuccess, "Take-profit on %s %s at %.2f%%: %s for %+.2f USDT",
		p.Side, p.Symbol, p.UnrealizedPnLPercent, closedWord(full, tp.ClosePercent), pnl)
	return true
}

func closedWord(full bool, pct float64) string {
	if full {
		return "closed"
	}
	return fmt.Sprintf("closed %.0f%%", pct)
}
