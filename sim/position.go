package sim

import (
	"fmt"
	"time"

	"github.com/rustyeddy/hedger/market"
	"github.com/rustyeddy/hedger/risk"
)

// LinkKind is a position's role in a hedge pair.
type LinkKind int

const (
	Standalone LinkKind = iota
	Original            // has a live hedge; PeerID is the hedge
	Hedge               // covers an original; PeerID is the original
)

func (k LinkKind) String() string {
	switch k {
	case Original:
		return "original"
	case Hedge:
		return "hedge"
	default:
		return "standalone"
	}
}

func (k LinkKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *LinkKind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "", "standalone":
		*k = Standalone
	case "original":
		*k = Original
	case "hedge":
		*k = Hedge
	default:
		return fmt.Errorf("unknown link kind %q", string(b))
	}
	return nil
}

// Link ties an original position to at most one hedge and back.
type Link struct {
	Kind   LinkKind `json:"kind"`
	PeerID string   `json:"peer_id,omitempty"`
}

// Position is a live simulated position.
type Position struct {
	EntryID              string      `json:"entry_id"`
	Symbol               string      `json:"symbol"`
	Side                 market.Side `json:"side"`
	Amount               float64     `json:"amount"` // base-asset quantity
	EntryPrice           float64     `json:"entry_price"`
	MarkPrice            float64     `json:"mark_price"`
	Leverage             int         `json:"leverage"`
	UnrealizedPnL        float64     `json:"unrealized_pnl"`
	UnrealizedPnLPercent float64     `json:"unrealized_pnl_percent"`
	MaxPnLPercent        float64     `json:"max_pnl_percent"`
	CumulativeHedgeLoss  float64     `json:"cumulative_hedge_loss,omitempty"`
	SimTakeProfitPercent *float64    `json:"sim_tp_percent,omitempty"`
	SimAutoReopen        bool        `json:"sim_auto_reopen"`
	EntryTime            time.Time   `json:"entry_time"`
	Link                 Link        `json:"link"`

	// OpenedAsHedge is fixed at open and survives the original closing.
	OpenedAsHedge bool `json:"opened_as_hedge,omitempty"`
}

// IsHedged reports whether a live hedge covers this position.
func (p *Position) IsHedged() bool { return p.Link.Kind == Original }

// IsHedge reports whether p was opened as a hedge, linked or orphaned.
func (p *Position) IsHedge() bool { return p.OpenedAsHedge || p.Link.Kind == Hedge }

// MainPositionID is the original's id for a hedge, "" otherwise.
func (p *Position) MainPositionID() string {
	if p.Link.Kind != Hedge {
		return ""
	}
	return p.Link.PeerID
}

// Notional is quantity × mark.
func (p *Position) Notional() float64 { return risk.Notional(p.Amount, p.MarkPrice) }

// Margin is the collateral locked at entry.
func (p *Position) Margin() float64 { return risk.Margin(p.Amount, p.EntryPrice, p.Leverage) }

func (p *Position) revalue(mark float64) {
	p.MarkPrice = mark
	p.refresh()
}

func (p *Position) refresh() {
	p.UnrealizedPnL = risk.PnL(p.Side, p.EntryPrice, p.MarkPrice, p.Amount)
	p.UnrealizedPnLPercent = risk.PnLPercent(p.Side, p.EntryPrice, p.MarkPrice)
	if p.UnrealizedPnLPercent > p.MaxPnLPercent {
		p.MaxPnLPercent = p.UnrealizedPnLPercent
	}
}

func (p *Position) clone() Position {
	c := *p
	if p.SimTakeProfitPercent != nil {
		v := *p.SimTakeProfitPercent
		c.SimTakeProfitPercent = &v
	}
	return c
}

// PositionView is the emitted, read-only form of a position.
type PositionView struct {
	Position
	IsHedged         bool    `json:"is_hedged"`
	MainPositionID   string  `json:"main_position_id,omitempty"`
	Notional         float64 `json:"notional"`
	Margin           float64 `json:"margin"`
	LiquidationPrice float64 `json:"liquidation_price"`
}

func newView(p *Position, maintenanceRate float64) PositionView {
	return PositionView{
		Position:         p.clone(),
		IsHedged:         p.IsHedged(),
		MainPositionID:   p.MainPositionID(),
		Notional:         p.Notional(),
		Margin:           p.Margin(),
		LiquidationPrice: risk.LiquidationPrice(p.Side, p.EntryPrice, p.Leverage, maintenanceRate),
	}
}
