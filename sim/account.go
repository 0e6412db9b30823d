package sim

// Account is the simulated margin account.
//
//	TotalBalance      = MarginBalance + Σ UnrealizedPnL
//	MaintenanceMargin = Σ notional(mark) × maintenance rate
//	MarginRatio       = MaintenanceMargin / TotalBalance × 100
type Account struct {
	MarginBalance     float64 `json:"margin_balance"` // realized capital
	TotalBalance      float64 `json:"total_balance"`
	MarginRatio       float64 `json:"margin_ratio"`
	MaintenanceMargin float64 `json:"maintenance_margin"`
	MarginUsed        float64 `json:"margin_used"`
	FreeMargin        float64 `json:"free_margin"`
	UnrealizedPnL     float64 `json:"unrealized_pnl"`
}

// recomputeLocked refreshes every derived account field from the live
// positions. Only MarginBalance is carried between recomputes.
func (e *Engine) recomputeLocked() {
	var upnl, used, notional float64
	for _, id := range e.order {
		p := e.positions[id]
		upnl += p.UnrealizedPnL
		used += p.Margin()
		notional += p.Notional()
	}

	a := &e.account
	a.UnrealizedPnL = upnl
	a.TotalBalance = a.MarginBalance + upnl
	a.MarginUsed = used
	a.FreeMargin = a.MarginBalance - used
	a.MaintenanceMargin = notional * e.cfg.MaintenanceMarginRate
	if a.TotalBalance > 0 {
		a.MarginRatio = a.MaintenanceMargin / a.TotalBalance * 100
	} else {
		a.MarginRatio = 0
	}
}

func (e *Engine) marginUsedLocked() float64 {
	var used float64
	for _, p := range e.positions {
		used += p.Margin()
	}
	return used
}
