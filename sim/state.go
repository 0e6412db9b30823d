package sim

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rustyeddy/hedger/config"
	"github.com/rustyeddy/hedger/journal"
)

// State is everything needed to rebuild an engine verbatim.
type State struct {
	SavedAt    time.Time          `json:"saved_at"`
	Account    Account            `json:"account"`
	Positions  []Position         `json:"positions"` // open order
	TradeLogs  []journal.TradeLog `json:"trade_logs"`
	Logs       []journal.LogEntry `json:"logs"`
	Settings   config.Settings    `json:"settings"`
	HedgePeaks map[string]float64 `json:"hedge_peaks,omitempty"`
}

// Export captures the engine state.
func (e *Engine) Export() State {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.recomputeLocked()
	st := State{
		SavedAt:   e.now(),
		Account:   e.account,
		Positions: make([]Position, 0, len(e.order)),
		TradeLogs: journal.CloneTradeLogs(e.tradeLogs),
		Logs:      e.logs.Entries(),
		Settings:  e.settings.Clone(),
	}
	for _, id := range e.order {
		st.Positions = append(st.Positions, e.positions[id].clone())
	}
	if len(e.hedgePeaks) > 0 {
		st.HedgePeaks = make(map[string]float64, len(e.hedgePeaks))
		for k, v := range e.hedgePeaks {
			st.HedgePeaks[k] = v
		}
	}
	return st
}

// Restore builds an engine from exported state. Hedge links must be
// reciprocal; mark prices seed the price cache.
func Restore(cfg config.EngineConfig, st State, opts ...Option) (*Engine, error) {
	if err := st.Settings.Validate(); err != nil {
		return nil, fmt.Errorf("restore settings: %w", err)
	}

	e := NewEngine(cfg, st.Account.MarginBalance, st.Settings, opts...)

	for i := range st.Positions {
		p := st.Positions[i].clone()
		if p.EntryID == "" {
			return nil, fmt.Errorf("restore: position %d has no entry id", i)
		}
		if _, dup := e.positions[p.EntryID]; dup {
			return nil, fmt.Errorf("restore: duplicate entry id %s", p.EntryID)
		}
		if p.Link.Kind == Hedge {
			p.OpenedAsHedge = true
		}
		e.positions[p.EntryID] = &p
		e.order = append(e.order, p.EntryID)
		if p.MarkPrice > 0 {
			e.prices.Merge(map[string]float64{p.Symbol: p.MarkPrice}, e.now())
		}
	}
	for _, id := range e.order {
		p := e.positions[id]
		if p.Link.Kind == Standalone {
			continue
		}
		peer, ok := e.positions[p.Link.PeerID]
		if !ok || peer.Link.PeerID != p.EntryID || peer.Link.Kind == p.Link.Kind || peer.Link.Kind == Standalone {
			return nil, fmt.Errorf("restore: %s link to %q is not reciprocal", id, p.Link.PeerID)
		}
	}

	e.tradeLogs = journal.CloneTradeLogs(st.TradeLogs)
	e.logs.Reset(st.Logs)
	for k, v := range st.HedgePeaks {
		if _, ok := e.positions[k]; ok {
			e.hedgePeaks[k] = v
		}
	}
	e.recomputeLocked()
	return e, nil
}

// SaveState writes st as indented JSON.
func SaveState(path string, st State) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}
	return nil
}

func LoadState(path string) (State, error) {
	var st State
	data, err := os.ReadFile(path)
	if err != nil {
		return st, fmt.Errorf("read state file: %w", err)
	}
	if err := json.Unmarshal(data, &st); err != nil {
		return st, fmt.Errorf("parse state file: %w", err)
	}
	return st, nil
}
