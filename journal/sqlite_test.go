package journal

import (
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/hedger/config"
	"github.com/rustyeddy/hedger/market"
)

func configFor(typ, dir string) config.JournalConfig {
	return config.JournalConfig{
		Type:       typ,
		TradesFile: filepath.Join(dir, typ+"-trades.csv"),
		EquityFile: filepath.Join(dir, typ+"-equity.csv"),
		DBPath:     filepath.Join(dir, typ+".db"),
	}
}

func newTestSQLite(t *testing.T) (*SQLite, string) {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "test.db")

	j, err := NewSQLite(path)
	require.NoError(t, err)

	return j, path
}

func ptr[T any](v T) *T { return &v }

func openRecord(id, symbol string, side market.Side, at time.Time) TradeLog {
	return TradeLog{
		EntryID:    id,
		Symbol:     symbol,
		Direction:  side,
		Quantity:   0.5,
		CostUSDT:   1000,
		EntryPrice: 2000,
		EntryTime:  at,
		Status:     StatusOpen,
		Leverage:   10,
	}
}

func closedRecord(open TradeLog, qty, exit, profit float64, reason string, at time.Time) TradeLog {
	c := open
	c.Quantity = qty
	c.ExitPrice = ptr(exit)
	c.ExitTime = ptr(at)
	c.ProfitUSDT = ptr(profit)
	c.ProfitPercent = ptr(profit / open.CostUSDT * 100)
	c.Status = StatusClosed
	c.ExitReason = reason
	return c
}

func TestSQLiteSchemaCreated(t *testing.T) {
	t.Parallel()

	j, path := newTestSQLite(t)
	require.NoError(t, j.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type='table' AND name IN ('trades','equity')`)
	require.NoError(t, err)
	defer rows.Close()

	found := map[string]bool{}
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		found[name] = true
	}
	require.NoError(t, rows.Err())

	assert.True(t, found["trades"])
	assert.True(t, found["equity"])
}

func TestSQLiteTradeLifecycle(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	defer j.Close()

	t0 := time.Date(2024, 4, 10, 9, 0, 0, 0, time.UTC)
	open := openRecord("E1", "ETHUSDT", market.Short, t0)
	partial := closedRecord(open, 0.25, 1980, 5, "PARTIAL_TAKE_PROFIT", t0.Add(time.Hour))
	final := closedRecord(open, 0.25, 1960, 10, "TAKE_PROFIT", t0.Add(2*time.Hour))
	other := openRecord("E2", "BTCUSDT", market.Long, t0)

	for _, r := range []TradeLog{open, other, partial, final} {
		require.NoError(t, j.RecordTrade(r))
	}

	got, err := j.TradeLifecycle("E1")
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, StatusOpen, got[0].Status)
	assert.Nil(t, got[0].ExitPrice)
	assert.Nil(t, got[0].ExitTime)
	assert.Nil(t, got[0].ProfitUSDT)
	assert.Equal(t, market.Short, got[0].Direction)
	assert.True(t, got[0].EntryTime.Equal(t0))

	assert.Equal(t, "PARTIAL_TAKE_PROFIT", got[1].ExitReason)
	require.NotNil(t, got[1].ExitPrice)
	assert.InDelta(t, 1980, *got[1].ExitPrice, 1e-9)
	require.NotNil(t, got[1].ExitTime)
	assert.True(t, got[1].ExitTime.Equal(t0.Add(time.Hour)))

	assert.Equal(t, "TAKE_PROFIT", got[2].ExitReason)
	assert.InDelta(t, 10, got[2].Profit(), 1e-9)
	assert.InDelta(t, 1, *got[2].ProfitPercent, 1e-9)
}

func TestSQLiteTradeLifecycleNotFound(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	defer j.Close()

	_, err := j.TradeLifecycle("nonexistent")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Contains(t, err.Error(), "not found")
}

func TestSQLiteHedgeFlagRoundTrip(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	defer j.Close()

	rec := openRecord("H1", "BTCUSDT", market.Short, time.Now().UTC())
	rec.IsHedge = true
	require.NoError(t, j.RecordTrade(rec))

	all, err := j.ListTrades()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.True(t, all[0].IsHedge)
	assert.Equal(t, 10, all[0].Leverage)
}

func TestListTradesClosedOn(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	defer j.Close()

	day := time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC)
	a := openRecord("A", "BTCUSDT", market.Long, day.Add(-time.Hour))
	b := openRecord("B", "ETHUSDT", market.Long, day)
	c := openRecord("C", "SOLUSDT", market.Long, day)

	records := []TradeLog{
		a, b, c,
		closedRecord(a, 0.5, 2010, 5, "STOP_LOSS", day.Add(30*time.Minute)),
		closedRecord(b, 0.5, 2020, 10, "TAKE_PROFIT", day.Add(23*time.Hour)),
		closedRecord(c, 0.5, 2030, 15, "MANUAL", day.AddDate(0, 0, 1)),
	}
	for _, r := range records {
		require.NoError(t, j.RecordTrade(r))
	}

	got, err := j.ListTradesClosedOn(day.Add(12 * time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "A", got[0].EntryID)
	assert.Equal(t, "B", got[1].EntryID)

	empty, err := j.ListTradesClosedOn(day.AddDate(0, 0, 5))
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestSQLiteEquity(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	defer j.Close()

	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, j.RecordEquity(EquitySnapshot{
			Time:          t0.Add(time.Duration(i) * time.Minute),
			MarginBalance: 10000,
			TotalBalance:  10000 + float64(i),
			UnrealizedPnL: float64(i),
			OpenPositions: i,
		}))
	}

	got, err := j.ListEquityBetween(t0, t0.Add(2*time.Minute))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.InDelta(t, 10001, got[1].TotalBalance, 1e-9)
	assert.Equal(t, 1, got[1].OpenPositions)
	assert.True(t, got[0].Time.Equal(t0))
}
