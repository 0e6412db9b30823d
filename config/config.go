// Package config loads the hedger configuration: the starting account,
// engine constants, the strategy Settings, the simulation script and the
// journal/server/log wiring.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete hedger configuration
type Config struct {
	Account    AccountConfig    `json:"account" yaml:"account"`
	Engine     EngineConfig     `json:"engine" yaml:"engine"`
	Settings   Settings         `json:"settings" yaml:"settings"`
	Simulation SimulationConfig `json:"simulation" yaml:"simulation"`
	Journal    JournalConfig    `json:"journal" yaml:"journal"`
	Server     ServerConfig     `json:"server" yaml:"server"`
	Log        LogConfig        `json:"log" yaml:"log"`
}

// AccountConfig seeds the account's realized capital.
type AccountConfig struct {
	ID            string  `json:"id" yaml:"id"`
	Currency      string  `json:"currency" yaml:"currency"`
	MarginBalance float64 `json:"margin_balance" yaml:"margin_balance"`
}

// EngineConfig holds the engine's fixed policy constants.
type EngineConfig struct {
	DefaultLeverage       int     `json:"default_leverage" yaml:"default_leverage"`
	MaintenanceMarginRate float64 `json:"maintenance_margin_rate" yaml:"maintenance_margin_rate"`
	// MaxTickDeviation is the per-tick move treated as a data glitch (0.10 = 10%).
	MaxTickDeviation float64 `json:"max_tick_deviation" yaml:"max_tick_deviation"`
	// MaxOpenDeviation is how far a requested open price may stray from the
	// known price before it is replaced (0.50 = 50%).
	MaxOpenDeviation float64 `json:"max_open_deviation" yaml:"max_open_deviation"`
	ReopenDelay      string  `json:"reopen_delay" yaml:"reopen_delay"`
	LogCapacity      int     `json:"log_capacity" yaml:"log_capacity"`
}

// ReopenDuration parses ReopenDelay.
func (e EngineConfig) ReopenDuration() (time.Duration, error) {
	if e.ReopenDelay == "" {
		return 0, nil
	}
	return time.ParseDuration(e.ReopenDelay)
}

// SimulationConfig scripts a `hedger run`.
type SimulationConfig struct {
	Positions  []PositionSeed `json:"positions,omitempty" yaml:"positions,omitempty"`
	PriceSteps []PriceStep    `json:"price_steps,omitempty" yaml:"price_steps,omitempty"`
	// PricesCSV replaces PriceSteps with a time,symbol,price file.
	PricesCSV string       `json:"prices_csv,omitempty" yaml:"prices_csv,omitempty"`
	Batch     *BatchConfig `json:"batch,omitempty" yaml:"batch,omitempty"`
}

// PositionSeed is a position opened before the first tick.
type PositionSeed struct {
	Symbol            string   `json:"symbol" yaml:"symbol"`
	Side              string   `json:"side" yaml:"side"`
	Amount            float64  `json:"amount" yaml:"amount"`
	Price             float64  `json:"price" yaml:"price"`
	Leverage          int      `json:"leverage,omitempty" yaml:"leverage,omitempty"`
	TakeProfitPercent *float64 `json:"take_profit_percent,omitempty" yaml:"take_profit_percent,omitempty"`
	AutoReopen        bool     `json:"auto_reopen,omitempty" yaml:"auto_reopen,omitempty"`
	AmountIsNotional  bool     `json:"amount_is_notional,omitempty" yaml:"amount_is_notional,omitempty"`
}

// PriceStep represents one tick in the simulation
type PriceStep struct {
	Prices map[string]float64 `json:"prices" yaml:"prices"`
	Delay  string             `json:"delay,omitempty" yaml:"delay,omitempty"` // e.g., "1m", "1s"
}

// ParseDuration converts the delay string to time.Duration
func (ps PriceStep) ParseDuration() (time.Duration, error) {
	if ps.Delay == "" {
		return 0, nil
	}
	return time.ParseDuration(ps.Delay)
}

// BatchConfig opens one position per trending symbol once AfterTicks ticks
// of history exist. Trend comes from a fast/slow EMA pair.
type BatchConfig struct {
	Symbols           []string `json:"symbols" yaml:"symbols"`
	AfterTicks        int      `json:"after_ticks" yaml:"after_ticks"`
	FastEMA           int      `json:"fast_ema" yaml:"fast_ema"`
	SlowEMA           int      `json:"slow_ema" yaml:"slow_ema"`
	MinSpreadPercent  float64  `json:"min_spread_percent" yaml:"min_spread_percent"`
	NotionalUSDT      float64  `json:"notional_usdt" yaml:"notional_usdt"`
	Leverage          int      `json:"leverage,omitempty" yaml:"leverage,omitempty"`
	TakeProfitPercent *float64 `json:"take_profit_percent,omitempty" yaml:"take_profit_percent,omitempty"`
	AutoReopen        bool     `json:"auto_reopen,omitempty" yaml:"auto_reopen,omitempty"`
}

// JournalConfig contains journaling parameters
type JournalConfig struct {
	Type       string `json:"type" yaml:"type"` // "csv", "sqlite" or "none"
	TradesFile string `json:"trades_file,omitempty" yaml:"trades_file,omitempty"`
	EquityFile string `json:"equity_file,omitempty" yaml:"equity_file,omitempty"`
	DBPath     string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
}

type ServerConfig struct {
	Addr         string `json:"addr" yaml:"addr"`
	TickInterval string `json:"tick_interval" yaml:"tick_interval"`
}

func (s ServerConfig) TickDuration() (time.Duration, error) {
	if s.TickInterval == "" {
		return time.Second, nil
	}
	return time.ParseDuration(s.TickInterval)
}

type LogConfig struct {
	Level  string `json:"level" yaml:"level"`   // debug, info, warn, error
	Format string `json:"format" yaml:"format"` // console or json
}

// LoadFromFile loads configuration from a file (YAML first, JSON fallback).
// Engine, journal, server and log sections fall back to Default values; the
// settings and simulation sections do not, so a strategy module absent from
// the file is off.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	cfg.Settings = Settings{}
	cfg.Simulation = SimulationConfig{}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		if jerr := json.Unmarshal(data, cfg); jerr != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", errors.Join(err, jerr))
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SaveToFile saves configuration as YAML for .yaml/.yml paths and JSON
// otherwise.
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Account.MarginBalance <= 0 {
		return fmt.Errorf("account.margin_balance must be positive")
	}
	if c.Engine.DefaultLeverage <= 0 {
		return fmt.Errorf("engine.default_leverage must be positive")
	}
	if c.Engine.MaintenanceMarginRate < 0 || c.Engine.MaintenanceMarginRate >= 1 {
		return fmt.Errorf("engine.maintenance_margin_rate must be in [0, 1)")
	}
	if c.Engine.MaxTickDeviation <= 0 {
		return fmt.Errorf("engine.max_tick_deviation must be positive")
	}
	if c.Engine.MaxOpenDeviation <= 0 {
		return fmt.Errorf("engine.max_open_deviation must be positive")
	}
	if _, err := c.Engine.ReopenDuration(); err != nil {
		return fmt.Errorf("engine.reopen_delay: %w", err)
	}
	if c.Engine.LogCapacity <= 0 {
		return fmt.Errorf("engine.log_capacity must be positive")
	}
	if err := c.Settings.Validate(); err != nil {
		return fmt.Errorf("settings: %w", err)
	}

	for i, p := range c.Simulation.Positions {
		if p.Symbol == "" {
			return fmt.Errorf("simulation.positions[%d].symbol is required", i)
		}
		if p.Amount <= 0 {
			return fmt.Errorf("simulation.positions[%d].amount must be positive", i)
		}
	}
	for i, s := range c.Simulation.PriceSteps {
		if _, err := s.ParseDuration(); err != nil {
			return fmt.Errorf("simulation.price_steps[%d].delay: %w", i, err)
		}
	}
	if b := c.Simulation.Batch; b != nil {
		if len(b.Symbols) == 0 {
			return fmt.Errorf("simulation.batch.symbols is required")
		}
		if b.FastEMA <= 0 || b.SlowEMA <= b.FastEMA {
			return fmt.Errorf("simulation.batch requires 0 < fast_ema < slow_ema")
		}
		if b.AfterTicks < b.SlowEMA {
			return fmt.Errorf("simulation.batch.after_ticks must be at least slow_ema")
		}
		if b.NotionalUSDT <= 0 {
			return fmt.Errorf("simulation.batch.notional_usdt must be positive")
		}
	}

	switch c.Journal.Type {
	case "none":
	case "csv":
		if c.Journal.TradesFile == "" || c.Journal.EquityFile == "" {
			return fmt.Errorf("journal trades_file and equity_file required for CSV type")
		}
	case "sqlite":
		if c.Journal.DBPath == "" {
			return fmt.Errorf("journal db_path required for SQLite type")
		}
	default:
		return fmt.Errorf("journal.type must be 'csv', 'sqlite' or 'none'")
	}

	if _, err := c.Server.TickDuration(); err != nil {
		return fmt.Errorf("server.tick_interval: %w", err)
	}
	switch c.Log.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("log.format must be 'console' or 'json'")
	}
	return nil
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Account: AccountConfig{
			ID:            "SIM-001",
			Currency:      "USDT",
			MarginBalance: 10000,
		},
		Engine: EngineConfig{
			DefaultLeverage:       10,
			MaintenanceMarginRate: 0.004,
			MaxTickDeviation:      0.10,
			MaxOpenDeviation:      0.50,
			ReopenDelay:           "3s",
			LogCapacity:           200,
		},
		Settings: DefaultSettings(),
		Simulation: SimulationConfig{
			Positions: []PositionSeed{
				{Symbol: "BTCUSDT", Side: "LONG", Amount: 2000, Price: 60000, AmountIsNotional: true},
			},
			PriceSteps: []PriceStep{
				{Prices: map[string]float64{"BTCUSDT": 59700}, Delay: "1s"},
				{Prices: map[string]float64{"BTCUSDT": 59300}, Delay: "1s"},
				{Prices: map[string]float64{"BTCUSDT": 58800}, Delay: "1s"},
				{Prices: map[string]float64{"BTCUSDT": 59600}, Delay: "1s"},
			},
		},
		Journal: JournalConfig{
			Type:       "csv",
			TradesFile: "./trades.csv",
			EquityFile: "./equity.csv",
		},
		Server: ServerConfig{
			Addr:         ":8080",
			TickInterval: "1s",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}
