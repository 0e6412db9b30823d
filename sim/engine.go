// Package sim is the position/risk engine: it revalues positions on every
// price tick, runs the strategy cascade (stop-loss, take-profit, hedging and
// the hedge-exit strategies), and serves the manual command surface.
package sim

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rustyeddy/hedger/config"
	"github.com/rustyeddy/hedger/journal"
	"github.com/rustyeddy/hedger/market"
	"github.com/rustyeddy/hedger/pkg/id"
	"github.com/rustyeddy/hedger/risk"
)

const (
	defaultReopenDelay   = 3 * time.Second
	defaultTickDeviation = 0.10
	defaultOpenDeviation = 0.50
)

// Notification is a one-shot alert attached to an update.
type Notification struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

// Update is an immutable snapshot emitted after the engine changes state.
// Logs and TradeLogs are nil unless they changed since the previous update.
type Update struct {
	Time         time.Time          `json:"time"`
	Account      Account            `json:"account"`
	Positions    []PositionView     `json:"positions"`
	Logs         []journal.LogEntry `json:"logs,omitempty"`
	TradeLogs    []journal.TradeLog `json:"trade_logs,omitempty"`
	Notification *Notification      `json:"notification,omitempty"`
}

// Listener receives every emitted update. It is called after the engine
// lock is released, so it may call back into the engine.
type Listener interface {
	OnUpdate(Update)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(Update)

func (f ListenerFunc) OnUpdate(u Update) { f(u) }

type Option func(*Engine)

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

func WithJournal(j journal.Journal) Option {
	return func(e *Engine) {
		if j != nil {
			e.journal = j
		}
	}
}

func WithListener(l Listener) Option {
	return func(e *Engine) { e.listener = l }
}

func WithScheduler(s Scheduler) Option {
	return func(e *Engine) { e.sched = s }
}

// WithClock replaces time.Now, e.g. with the replay clock.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

type Engine struct {
	mu sync.Mutex

	cfg         config.EngineConfig
	settings    config.Settings
	account     Account
	prices      *market.PriceStore
	positions   map[string]*Position
	order       []string // live ids in open order
	hedgePeaks  map[string]float64
	tradeLogs   []journal.TradeLog
	logs        *journal.LogBook
	reopenDelay time.Duration

	// pending output for the next emitted update
	logsChanged   bool
	tradesChanged bool
	notification  *Notification

	reopens    map[int]Cancel
	nextReopen int
	closed     bool

	journal  journal.Journal
	listener Listener
	sched    Scheduler
	now      func() time.Time
	ids      *id.Generator
	logger   *zap.Logger
}

// NewEngine returns an engine holding marginBalance of realized capital and
// no positions.
func NewEngine(cfg config.EngineConfig, marginBalance float64, settings config.Settings, opts ...Option) *Engine {
	e := &Engine{
		cfg:        cfg,
		settings:   settings.Clone(),
		account:    Account{MarginBalance: marginBalance},
		prices:     market.NewPriceStore(),
		positions:  make(map[string]*Position),
		hedgePeaks: make(map[string]float64),
		logs:       journal.NewLogBook(cfg.LogCapacity),
		reopens:    make(map[int]Cancel),
		journal:    journal.Discard{},
		sched:      TimerScheduler{},
		now:        time.Now,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.ids = id.NewGenerator(e.now)
	if e.cfg.DefaultLeverage <= 0 {
		e.cfg.DefaultLeverage = 1
	}
	if e.cfg.MaxTickDeviation <= 0 {
		e.cfg.MaxTickDeviation = defaultTickDeviation
	}
	if e.cfg.MaxOpenDeviation <= 0 {
		e.cfg.MaxOpenDeviation = defaultOpenDeviation
	}
	d, err := cfg.ReopenDuration()
	if err != nil || d <= 0 {
		d = defaultReopenDelay
	}
	e.reopenDelay = d

	e.recomputeLocked()
	return e
}

// SetListener replaces the update listener.
func (e *Engine) SetListener(l Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listener = l
}

// Prices exposes the engine's price cache.
func (e *Engine) Prices() *market.PriceStore { return e.prices }

// Tick merges a price map and advances the engine one step. It returns the
// emitted update and true, or false when nothing changed.
func (e *Engine) Tick(prices market.Prices) (Update, bool) {
	e.mu.Lock()

	now := e.now()
	ticksTotal.Inc()

	changed := false
	glitched := map[string]bool{}
	for _, id := range e.order {
		p := e.positions[id]
		px, ok := prices[p.Symbol]
		if !ok || px <= 0 {
			continue
		}
		if px == p.MarkPrice {
			glitched[p.Symbol] = false
			continue
		}

		if p.MarkPrice != 0 && risk.Deviation(px, p.MarkPrice) > e.cfg.MaxTickDeviation {
			glitchSkips.WithLabelValues(p.Symbol).Inc()
			e.logger.Warn("price deviation guard",
				zap.String("symbol", p.Symbol),
				zap.Float64("mark", p.MarkPrice),
				zap.Float64("price", px),
			)
			e.audit(journal.SeverityWarning, "Ignored %s price %.4f: %.1f%% away from mark %.4f",
				p.Symbol, px, risk.Deviation(px, p.MarkPrice)*100, p.MarkPrice)
			if _, seen := glitched[p.Symbol]; !seen {
				glitched[p.Symbol] = true
			}
			continue
		}

		p.revalue(px)
		glitched[p.Symbol] = false
		changed = true
	}
	e.prices.Merge(guardedPrices(prices, glitched), now)

	if e.runCascadeLocked() {
		changed = true
	}

	upd, ok := e.commitLocked(changed)
	e.release(upd, ok)
	return upd, ok
}

// guardedPrices drops symbols whose price every live position rejected, so
// a glitch never becomes the known price.
func guardedPrices(prices market.Prices, glitched map[string]bool) market.Prices {
	var out market.Prices
	for sym, bad := range glitched {
		if !bad {
			continue
		}
		if out == nil {
			out = make(market.Prices, len(prices))
			for k, v := range prices {
				out[k] = v
			}
		}
		delete(out, sym)
	}
	if out == nil {
		return prices
	}
	return out
}

// commitLocked recomputes the account and, when anything changed, builds
// the next update and records its equity snapshot.
func (e *Engine) commitLocked(changed bool) (Update, bool) {
	e.recomputeLocked()
	e.observeLocked()

	if !changed && !e.logsChanged && !e.tradesChanged && e.notification == nil {
		return Update{}, false
	}

	now := e.now()
	upd := Update{
		Time:         now,
		Account:      e.account,
		Positions:    e.viewsLocked(),
		Notification: e.notification,
	}
	if e.logsChanged {
		upd.Logs = e.logs.Entries()
	}
	if e.tradesChanged {
		upd.TradeLogs = journal.CloneTradeLogs(e.tradeLogs)
	}
	e.logsChanged = false
	e.tradesChanged = false
	e.notification = nil

	if err := e.journal.RecordEquity(e.equityLocked(now)); err != nil {
		e.logger.Error("journal equity", zap.Error(err))
	}
	return upd, true
}

// release unlocks the engine and hands a committed update to the listener.
func (e *Engine) release(upd Update, ok bool) {
	listener := e.listener
	e.mu.Unlock()

	if ok && listener != nil {
		listener.OnUpdate(upd)
	}
}

func (e *Engine) equityLocked(now time.Time) journal.EquitySnapshot {
	return journal.EquitySnapshot{
		Time:              now,
		MarginBalance:     e.account.MarginBalance,
		TotalBalance:      e.account.TotalBalance,
		UnrealizedPnL:     e.account.UnrealizedPnL,
		MarginUsed:        e.account.MarginUsed,
		FreeMargin:        e.account.FreeMargin,
		MaintenanceMargin: e.account.MaintenanceMargin,
		MarginRatio:       e.account.MarginRatio,
		OpenPositions:     len(e.positions),
	}
}

func (e *Engine) viewsLocked() []PositionView {
	out := make([]PositionView, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, newView(e.positions[id], e.cfg.MaintenanceMarginRate))
	}
	return out
}

// Snapshot returns the full current state, including every log and trade
// record. It does not consume pending update output.
func (e *Engine) Snapshot() Update {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.recomputeLocked()
	return Update{
		Time:      e.now(),
		Account:   e.account,
		Positions: e.viewsLocked(),
		Logs:      e.logs.Entries(),
		TradeLogs: journal.CloneTradeLogs(e.tradeLogs),
	}
}

func (e *Engine) Account() Account {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.account
}

func (e *Engine) Positions() []PositionView {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.viewsLocked()
}

// Position looks up a live position by entry id.
func (e *Engine) Position(id string) (PositionView, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.positions[id]
	if !ok {
		return PositionView{}, false
	}
	return newView(p, e.cfg.MaintenanceMarginRate), true
}

func (e *Engine) TradeLogs() []journal.TradeLog {
	e.mu.Lock()
	defer e.mu.Unlock()
	return journal.CloneTradeLogs(e.tradeLogs)
}

func (e *Engine) Logs() []journal.LogEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.logs.Entries()
}

func (e *Engine) Settings() config.Settings {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.settings.Clone()
}

// Close cancels pending reopens. The engine ignores reopens that fire
// afterwards; ticks and commands keep working.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.closed = true
	for k, cancel := range e.reopens {
		cancel()
		delete(e.reopens, k)
	}
}

func (e *Engine) audit(sev journal.Severity, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	e.logs.Add(journal.LogEntry{
		ID:        e.ids.New(),
		Timestamp: e.now(),
		Severity:  sev,
		Message:   msg,
	})
	e.logsChanged = true
	e.logger.Debug("audit", zap.String("severity", string(sev)), zap.String("message", msg))
}

// notify sets the update's notification; the latest one wins.
func (e *Engine) notify(title, format string, args ...any) {
	e.notification = &Notification{Title: title, Message: fmt.Sprintf(format, args...)}
}

func (e *Engine) recordTradeLocked(t journal.TradeLog) {
	e.tradeLogs = append(e.tradeLogs, t)
	e.tradesChanged = true
	if err := e.journal.RecordTrade(t); err != nil {
		e.logger.Error("journal trade", zap.String("entry_id", t.EntryID), zap.Error(err))
	}
}

// findLocked returns the first live position for symbol/side in open order.
func (e *Engine) findLocked(symbol string, side market.Side) *Position {
	for _, id := range e.order {
		p := e.positions[id]
		if p.Symbol == symbol && p.Side == side {
			return p
		}
	}
	return nil
}

func zapPosition(p *Position) []zap.Field {
	return []zap.Field{
		zap.String("entry_id", p.EntryID),
		zap.String("symbol", p.Symbol),
		zap.String("side", string(p.Side)),
		zap.Float64("amount", p.Amount),
		zap.Float64("price", p.MarkPrice),
		zap.Int("leverage", p.Leverage),
		zap.String("link", p.Link.Kind.String()),
	}
}
