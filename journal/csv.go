package journal

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"
)

var (
	tradeHeader  = []string{"entry_id", "symbol", "direction", "quantity", "cost_usdt", "entry_price", "entry_time", "exit_price", "exit_time", "profit_usdt", "profit_percent", "status", "exit_reason", "leverage", "is_hedge"}
	equityHeader = []string{"time", "margin_balance", "total_balance", "unrealized_pnl", "margin_used", "free_margin", "maintenance_margin", "margin_ratio", "open_positions"}
)

// CSVJournal appends trade records and equity snapshots to two CSV files.
type CSVJournal struct {
	trades *csv.Writer
	equity *csv.Writer
	tf, ef *os.File
}

func NewCSV(tradesPath, equityPath string) (*CSVJournal, error) {
	tf, err := os.Create(tradesPath)
	if err != nil {
		return nil, fmt.Errorf("create trades file: %w", err)
	}
	ef, err := os.Create(equityPath)
	if err != nil {
		tf.Close()
		return nil, fmt.Errorf("create equity file: %w", err)
	}

	j := &CSVJournal{
		trades: csv.NewWriter(tf),
		equity: csv.NewWriter(ef),
		tf:     tf,
		ef:     ef,
	}
	if err := j.write(j.trades, tradeHeader); err != nil {
		j.Close()
		return nil, err
	}
	if err := j.write(j.equity, equityHeader); err != nil {
		j.Close()
		return nil, err
	}
	return j, nil
}

func (j *CSVJournal) RecordTrade(t TradeLog) error {
	return j.write(j.trades, []string{
		t.EntryID,
		t.Symbol,
		string(t.Direction),
		f(t.Quantity),
		f(t.CostUSDT),
		f(t.EntryPrice),
		t.EntryTime.UTC().Format(time.RFC3339Nano),
		optFloat(t.ExitPrice),
		optTime(t.ExitTime),
		optFloat(t.ProfitUSDT),
		optFloat(t.ProfitPercent),
		string(t.Status),
		t.ExitReason,
		strconv.Itoa(t.Leverage),
		strconv.FormatBool(t.IsHedge),
	})
}

func (j *CSVJournal) RecordEquity(e EquitySnapshot) error {
	return j.write(j.equity, []string{
		e.Time.UTC().Format(time.RFC3339Nano),
		f(e.MarginBalance),
		f(e.TotalBalance),
		f(e.UnrealizedPnL),
		f(e.MarginUsed),
		f(e.FreeMargin),
		f(e.MaintenanceMargin),
		f(e.MarginRatio),
		strconv.Itoa(e.OpenPositions),
	})
}

func (j *CSVJournal) write(w *csv.Writer, rec []string) error {
	if err := w.Write(rec); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

func (j *CSVJournal) Close() error {
	j.trades.Flush()
	if err := j.trades.Error(); err != nil {
		return err
	}
	j.equity.Flush()
	if err := j.equity.Error(); err != nil {
		return err
	}

	if err := j.tf.Close(); err != nil {
		return err
	}
	if err := j.ef.Close(); err != nil {
		return err
	}
	return nil
}

func f(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}

func optFloat(p *float64) string {
	if p == nil {
		return ""
	}
	return f(*p)
}

func optTime(p *time.Time) string {
	if p == nil {
		return ""
	}
	return p.UTC().Format(time.RFC3339Nano)
}
