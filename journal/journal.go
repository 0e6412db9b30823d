package journal

import (
	"errors"
	"fmt"
	"time"

	"github.com/rustyeddy/hedger/config"
)

// ErrNotFound is returned by queries that match nothing.
var ErrNotFound = errors.New("not found")

// EquitySnapshot is the account state at one emitted engine update.
type EquitySnapshot struct {
	Time              time.Time `json:"time"`
	MarginBalance     float64   `json:"margin_balance"`
	TotalBalance      float64   `json:"total_balance"`
	UnrealizedPnL     float64   `json:"unrealized_pnl"`
	MarginUsed        float64   `json:"margin_used"`
	FreeMargin        float64   `json:"free_margin"`
	MaintenanceMargin float64   `json:"maintenance_margin"`
	MarginRatio       float64   `json:"margin_ratio"`
	OpenPositions     int       `json:"open_positions"`
}

// Journal persists trade records and equity snapshots.
type Journal interface {
	RecordTrade(TradeLog) error
	RecordEquity(EquitySnapshot) error
	Close() error
}

// Discard is a Journal that drops everything.
type Discard struct{}

func (Discard) RecordTrade(TradeLog) error        { return nil }
func (Discard) RecordEquity(EquitySnapshot) error { return nil }
func (Discard) Close() error                      { return nil }

// Open builds the sink selected by cfg.
func Open(cfg config.JournalConfig) (Journal, error) {
	switch cfg.Type {
	case "", "none":
		return Discard{}, nil
	case "csv":
		return NewCSV(cfg.TradesFile, cfg.EquityFile)
	case "sqlite":
		return NewSQLite(cfg.DBPath)
	default:
		return nil, fmt.Errorf("unknown journal type %q", cfg.Type)
	}
}
