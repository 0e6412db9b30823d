package journal

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rustyeddy/hedger/market"
)

const tradeColumns = `entry_id, symbol, direction, quantity, cost_usdt, entry_price, entry_time,
	exit_price, exit_time, profit_usdt, profit_percent, status, exit_reason, leverage, is_hedge`

// TradeLifecycle returns every record written for entryID, oldest first:
// the OPEN record followed by any partial and final CLOSED records.
func (j *SQLite) TradeLifecycle(entryID string) ([]TradeLog, error) {
	out, err := j.queryTrades(`
		SELECT `+tradeColumns+`
		FROM trades
		WHERE entry_id = ?
		ORDER BY id ASC`, entryID)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("trade %q: %w", entryID, ErrNotFound)
	}
	return out, nil
}

// ListTradesClosedBetween returns CLOSED records whose exit_time is within [start, end).
func (j *SQLite) ListTradesClosedBetween(start, end time.Time) ([]TradeLog, error) {
	return j.queryTrades(`
		SELECT `+tradeColumns+`
		FROM trades
		WHERE status = 'CLOSED' AND exit_time >= ? AND exit_time < ?
		ORDER BY exit_time ASC, id ASC`, start.UTC(), end.UTC())
}

// ListTradesClosedOn returns the CLOSED records of the UTC day containing day.
func (j *SQLite) ListTradesClosedOn(day time.Time) ([]TradeLog, error) {
	d := day.UTC()
	start := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	return j.ListTradesClosedBetween(start, start.AddDate(0, 0, 1))
}

// ListTrades returns every record in insertion order.
func (j *SQLite) ListTrades() ([]TradeLog, error) {
	return j.queryTrades(`SELECT ` + tradeColumns + ` FROM trades ORDER BY id ASC`)
}

// ListEquityBetween returns snapshots with time in [start, end).
func (j *SQLite) ListEquityBetween(start, end time.Time) ([]EquitySnapshot, error) {
	rows, err := j.db.Query(`
		SELECT time, margin_balance, total_balance, unrealized_pnl, margin_used,
		       free_margin, maintenance_margin, margin_ratio, open_positions
		FROM equity
		WHERE time >= ? AND time < ?
		ORDER BY time ASC;`, start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EquitySnapshot
	for rows.Next() {
		var e EquitySnapshot
		if err := rows.Scan(
			&e.Time,
			&e.MarginBalance,
			&e.TotalBalance,
			&e.UnrealizedPnL,
			&e.MarginUsed,
			&e.FreeMargin,
			&e.MaintenanceMargin,
			&e.MarginRatio,
			&e.OpenPositions,
		); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (j *SQLite) queryTrades(query string, args ...any) ([]TradeLog, error) {
	rows, err := j.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TradeLog
	for rows.Next() {
		var (
			rec           TradeLog
			direction     string
			status        string
			exitPrice     sql.NullFloat64
			exitTime      sql.NullTime
			profitUSDT    sql.NullFloat64
			profitPercent sql.NullFloat64
		)
		if err := rows.Scan(
			&rec.EntryID,
			&rec.Symbol,
			&direction,
			&rec.Quantity,
			&rec.CostUSDT,
			&rec.EntryPrice,
			&rec.EntryTime,
			&exitPrice,
			&exitTime,
			&profitUSDT,
			&profitPercent,
			&status,
			&rec.ExitReason,
			&rec.Leverage,
			&rec.IsHedge,
		); err != nil {
			return nil, err
		}
		rec.Direction = market.Side(direction)
		rec.Status = TradeStatus(status)
		rec.ExitPrice = nullFloat(exitPrice)
		rec.ProfitUSDT = nullFloat(profitUSDT)
		rec.ProfitPercent = nullFloat(profitPercent)
		if exitTime.Valid {
			t := exitTime.Time
			rec.ExitTime = &t
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func nullFloat(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}
