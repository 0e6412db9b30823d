// Package journal holds the engine's audit trail: trade records, the bounded
// audit log, and the sinks that persist them.
package journal

import (
	"time"

	"github.com/rustyeddy/hedger/market"
)

type TradeStatus string

const (
	StatusOpen   TradeStatus = "OPEN"
	StatusClosed TradeStatus = "CLOSED"
)

// TradeLog is one audit record of a position's lifetime. Opening a position
// writes an OPEN record; every full or partial close appends a separate
// CLOSED record with the exit fields set. Records are never mutated.
type TradeLog struct {
	EntryID       string      `json:"entry_id"`
	Symbol        string      `json:"symbol"`
	Direction     market.Side `json:"direction"`
	Quantity      float64     `json:"quantity"`
	CostUSDT      float64     `json:"cost_usdt"` // notional, not margin
	EntryPrice    float64     `json:"entry_price"`
	EntryTime     time.Time   `json:"entry_time"`
	ExitPrice     *float64    `json:"exit_price,omitempty"`
	ExitTime      *time.Time  `json:"exit_time,omitempty"`
	ProfitUSDT    *float64    `json:"profit_usdt,omitempty"`
	ProfitPercent *float64    `json:"profit_percent,omitempty"`
	Status        TradeStatus `json:"status"`
	ExitReason    string      `json:"exit_reason,omitempty"`
	Leverage      int         `json:"leverage"`
	IsHedge       bool        `json:"is_hedge"`
}

// Closed reports whether the record carries exit data.
func (t TradeLog) Closed() bool { return t.Status == StatusClosed }

// Profit returns ProfitUSDT, or 0 for an OPEN record.
func (t TradeLog) Profit() float64 {
	if t.ProfitUSDT == nil {
		return 0
	}
	return *t.ProfitUSDT
}

// Clone copies the record including its optional fields.
func (t TradeLog) Clone() TradeLog {
	c := t
	c.ExitPrice = clonePtr(t.ExitPrice)
	c.ExitTime = clonePtr(t.ExitTime)
	c.ProfitUSDT = clonePtr(t.ProfitUSDT)
	c.ProfitPercent = clonePtr(t.ProfitPercent)
	return c
}

// CloneTradeLogs deep-copies a slice of records.
func CloneTradeLogs(in []TradeLog) []TradeLog {
	if in == nil {
		return nil
	}
	out := make([]TradeLog, len(in))
	for i, t := range in {
		out[i] = t.Clone()
	}
	return out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
