package journal

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

func (j *SQLite) RecordTrade(t TradeLog) error {
	_, err := j.db.Exec(`
		INSERT INTO trades
		(entry_id, symbol, direction, quantity, cost_usdt, entry_price, entry_time,
		 exit_price, exit_time, profit_usdt, profit_percent, status, exit_reason, leverage, is_hedge)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.EntryID, t.Symbol, string(t.Direction), t.Quantity, t.CostUSDT, t.EntryPrice, t.EntryTime.UTC(),
		t.ExitPrice, utcPtr(t.ExitTime), t.ProfitUSDT, t.ProfitPercent, string(t.Status), t.ExitReason, t.Leverage, t.IsHedge,
	)
	return err
}

func (j *SQLite) RecordEquity(e EquitySnapshot) error {
	_, err := j.db.Exec(`
		INSERT INTO equity
		(time, margin_balance, total_balance, unrealized_pnl, margin_used, free_margin, maintenance_margin, margin_ratio, open_positions)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Time.UTC(), e.MarginBalance, e.TotalBalance, e.UnrealizedPnL, e.MarginUsed,
		e.FreeMargin, e.MaintenanceMargin, e.MarginRatio, e.OpenPositions,
	)
	return err
}

func (j *SQLite) Close() error {
	return j.db.Close()
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
