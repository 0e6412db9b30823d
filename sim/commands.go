package sim

import (
	"fmt"

	"github.com/rustyeddy/hedger/config"
	"github.com/rustyeddy/hedger/journal"
	"github.com/rustyeddy/hedger/market"
	"github.com/rustyeddy/hedger/risk"
)

// OpenRequest is a manual, batch or scheduled open.
type OpenRequest struct {
	Symbol            string      `json:"symbol"`
	Side              market.Side `json:"side"`
	Amount            float64     `json:"amount"`
	Price             float64     `json:"price,omitempty"`
	TakeProfitPercent *float64    `json:"take_profit_percent,omitempty"`
	AutoReopen        bool        `json:"auto_reopen,omitempty"`
	Leverage          int         `json:"leverage,omitempty"` // 0 uses the engine default
	// ParentID opens the position as the hedge of a standalone position.
	ParentID string `json:"parent_id,omitempty"`
	// AmountIsNotional reads Amount as USDT notional instead of base quantity.
	AmountIsNotional bool `json:"amount_is_notional,omitempty"`
}

// OpenPosition opens a position. Refusals (bad input, insufficient margin)
// are audit-logged and reported as false; they are not errors.
func (e *Engine) OpenPosition(req OpenRequest) (PositionView, bool) {
	e.mu.Lock()

	var view PositionView
	p, ok := e.openRequestLocked(req)
	if ok {
		view = newView(p, e.cfg.MaintenanceMarginRate)
	}
	e.release(e.commitLocked(ok))
	return view, ok
}

func (e *Engine) openRequestLocked(req OpenRequest) (*Position, bool) {
	if req.Symbol == "" || !req.Side.Valid() {
		e.audit(journal.SeverityDanger, "Open refused: invalid symbol %q or side %q", req.Symbol, req.Side)
		return nil, false
	}

	price := req.Price
	if known, ok := e.prices.Price(req.Symbol); ok {
		switch {
		case price <= 0:
			price = known
		case risk.Deviation(price, known) > e.cfg.MaxOpenDeviation:
			e.audit(journal.SeverityWarning, "%s open price %.4f is %.0f%% off market %.4f, using market",
				req.Symbol, price, risk.Deviation(price, known)*100, known)
			price = known
		}
	}

	amount := req.Amount
	if req.AmountIsNotional && price > 0 {
		amount = req.Amount / price
	}
	leverage := req.Leverage
	if leverage == 0 {
		leverage = e.cfg.DefaultLeverage
	}

	var parent *Position
	if req.ParentID != "" {
		parent = e.positions[req.ParentID]
		if parent == nil || parent.Link.Kind != Standalone || parent.IsHedge() {
			e.audit(journal.SeverityDanger, "Open refused: %s cannot take a hedge", req.ParentID)
			return nil, false
		}
		if parent.Symbol != req.Symbol || parent.Side.Opposite() != req.Side {
			e.audit(journal.SeverityDanger, "Open refused: a hedge of %s must be %s %s",
				req.ParentID, parent.Side.Opposite(), parent.Symbol)
			return nil, false
		}
	}

	p, d := e.openLocked(openSpec{
		symbol:     req.Symbol,
		side:       req.Side,
		amount:     amount,
		price:      price,
		leverage:   leverage,
		takeProfit: req.TakeProfitPercent,
		autoReopen: req.AutoReopen,
		parent:     parent,
	})
	if !d.Allowed {
		e.audit(journal.SeverityDanger, "Open %s %s refused: %s", req.Side, req.Symbol, d.Reason())
		return nil, false
	}

	e.audit(journal.SeveritySuccess, "Opened %s %s %.6f @ %.4f (%dx, %.2f USDT)",
		p.Side, p.Symbol, p.Amount, p.EntryPrice, p.Leverage, d.Notional)
	return p, true
}

// ClosePosition fully closes the first live symbol/side position in open
// order. An unknown pair is a silent no-op.
func (e *Engine) ClosePosition(symbol string, side market.Side, reason string) bool {
	e.mu.Lock()

	p := e.findLocked(symbol, side)
	if p == nil {
		e.mu.Unlock()
		return false
	}
	if reason == "" {
		reason = ReasonManual
	}

	pnl := e.closeLocked(p, reason)
	e.audit(sevFor(pnl), "Closed %s %s (%s) for %+.2f USDT", side, symbol, reason, pnl)
	e.release(e.commitLocked(true))
	return true
}

// ClosePositionPartially closes amount of the position with entry id id.
func (e *Engine) ClosePositionPartially(id string, amount float64, reason string) bool {
	e.mu.Lock()

	p, ok := e.positions[id]
	if !ok || amount <= 0 {
		e.mu.Unlock()
		return false
	}
	if reason == "" {
		reason = ReasonManual
	}

	pnl, full := e.closePartialLocked(p, amount, reason)
	if full {
		e.audit(sevFor(pnl), "Closed %s %s (%s) for %+.2f USDT", p.Side, p.Symbol, reason, pnl)
	} else {
		e.audit(sevFor(pnl), "Partially closed %s %s: %.6f (%s) for %+.2f USDT, %.6f left",
			p.Side, p.Symbol, amount, reason, pnl, p.Amount)
	}
	e.release(e.commitLocked(true))
	return true
}

// BatchCloseAllPositions closes every live position with BATCH_CLOSE, which
// never auto-reopens. It returns how many were closed.
func (e *Engine) BatchCloseAllPositions() int {
	e.mu.Lock()

	ids := append([]string(nil), e.order...)
	var total float64
	n := 0
	for _, id := range ids {
		p, ok := e.positions[id]
		if !ok {
			continue
		}
		total += e.closeLocked(p, ReasonBatchClose)
		n++
	}
	if n > 0 {
		e.audit(sevFor(total), "Closed all %d positions for %+.2f USDT", n, total)
	}
	e.release(e.commitLocked(n > 0))
	return n
}

// BatchCandidate is one symbol to open in a batch. A zero Price uses the
// cached market price.
type BatchCandidate struct {
	Symbol string      `json:"symbol"`
	Side   market.Side `json:"side"`
	Price  float64     `json:"price,omitempty"`
}

type BatchRequest struct {
	Candidates        []BatchCandidate `json:"candidates"`
	NotionalUSDT      float64          `json:"notional_usdt"`
	Leverage          int              `json:"leverage,omitempty"`
	TakeProfitPercent *float64         `json:"take_profit_percent,omitempty"`
	AutoReopen        bool             `json:"auto_reopen,omitempty"`
}

// OpenBatchPositions opens one position per candidate and returns how many
// opened. With no candidates it only logs.
func (e *Engine) OpenBatchPositions(req BatchRequest) int {
	e.mu.Lock()

	if len(req.Candidates) == 0 {
		e.audit(journal.SeverityInfo, "Batch open: no candidates")
		e.release(e.commitLocked(false))
		return 0
	}

	opened := 0
	for _, c := range req.Candidates {
		price := c.Price
		if price <= 0 {
			known, ok := e.prices.Price(c.Symbol)
			if !ok {
				e.audit(journal.SeverityWarning, "Batch open: no price for %s, skipped", c.Symbol)
				continue
			}
			price = known
		}
		var tp *float64
		if req.TakeProfitPercent != nil {
			v := *req.TakeProfitPercent
			tp = &v
		}
		if _, ok := e.openRequestLocked(OpenRequest{
			Symbol:            c.Symbol,
			Side:              c.Side,
			Amount:            req.NotionalUSDT,
			Price:             price,
			TakeProfitPercent: tp,
			AutoReopen:        req.AutoReopen,
			Leverage:          req.Leverage,
			AmountIsNotional:  true,
		}); ok {
			opened++
		}
	}
	e.audit(journal.SeverityInfo, "Batch open: %d of %d candidates opened", opened, len(req.Candidates))
	e.release(e.commitLocked(opened > 0))
	return opened
}

// UpdateLeverage changes leverage in place without re-checking margin.
func (e *Engine) UpdateLeverage(symbol string, side market.Side, leverage int) bool {
	e.mu.Lock()

	p := e.findLocked(symbol, side)
	if p == nil || leverage <= 0 {
		e.mu.Unlock()
		return false
	}
	old := p.Leverage
	p.Leverage = leverage
	e.audit(journal.SeverityInfo, "%s %s leverage %dx -> %dx", side, symbol, old, leverage)
	e.release(e.commitLocked(true))
	return true
}

// ToggleAutoReopen sets every live position's auto-reopen flag to the
// opposite of the current majority (a tie counts as off, so it turns the
// loop on) and returns the new value.
func (e *Engine) ToggleAutoReopen() bool {
	e.mu.Lock()

	on := 0
	for _, p := range e.positions {
		if p.SimAutoReopen {
			on++
		}
	}
	majority := on*2 > len(e.positions)
	next := !majority

	for _, p := range e.positions {
		p.SimAutoReopen = next
	}
	state := "off"
	if next {
		state = "on"
	}
	e.audit(journal.SeverityInfo, "Auto-reopen %s for %d positions", state, len(e.positions))
	e.release(e.commitLocked(len(e.positions) > 0))
	return next
}

// SetSettings validates and installs new strategy settings; the next tick
// uses them.
func (e *Engine) SetSettings(s config.Settings) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("settings: %w", err)
	}

	e.mu.Lock()
	e.settings = s.Clone()
	if s.HedgeExit.CallbackProfitClear == nil {
		e.hedgePeaks = make(map[string]float64)
	}
	e.audit(journal.SeverityInfo, "Settings updated")
	e.release(e.commitLocked(false))
	return nil
}

func sevFor(pnl float64) journal.Severity {
	if pnl < 0 {
		return journal.SeverityWarning
	}
	return journal.SeveritySuccess
}
