// journal/schema.go
package journal

// Schema creates the SQLite tables. trades holds one row per OPEN or CLOSED
// record, so entry_id repeats across a position's lifetime.
const Schema = `
CREATE TABLE IF NOT EXISTS trades (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	entry_id TEXT NOT NULL,
	symbol TEXT NOT NULL,
	direction TEXT NOT NULL,
	quantity REAL NOT NULL,
	cost_usdt REAL NOT NULL,
	entry_price REAL NOT NULL,
	entry_time DATETIME NOT NULL,
	exit_price REAL,
	exit_time DATETIME,
	profit_usdt REAL,
	profit_percent REAL,
	status TEXT NOT NULL,
	exit_reason TEXT NOT NULL DEFAULT '',
	leverage INTEGER NOT NULL,
	is_hedge INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_trades_entry_id ON trades(entry_id);
CREATE INDEX IF NOT EXISTS idx_trades_exit_time ON trades(exit_time);

CREATE TABLE IF NOT EXISTS equity (
	time DATETIME NOT NULL,
	margin_balance REAL NOT NULL,
	total_balance REAL NOT NULL,
	unrealized_pnl REAL NOT NULL,
	margin_used REAL NOT NULL,
	free_margin REAL NOT NULL,
	maintenance_margin REAL NOT NULL,
	margin_ratio REAL NOT NULL,
	open_positions INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_equity_time ON equity(time);
`
