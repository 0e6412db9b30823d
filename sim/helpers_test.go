package sim

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/hedger/config"
	"github.com/rustyeddy/hedger/journal"
	"github.com/rustyeddy/hedger/market"
)

var t0 = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// testJournal captures everything written to it.
type testJournal struct {
	mu     sync.Mutex
	trades []journal.TradeLog
	equity []journal.EquitySnapshot
}

func (j *testJournal) RecordTrade(t journal.TradeLog) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.trades = append(j.trades, t)
	return nil
}

func (j *testJournal) RecordEquity(e journal.EquitySnapshot) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.equity = append(j.equity, e)
	return nil
}

func (j *testJournal) Close() error { return nil }

// fakeScheduler queues callbacks until Run is called.
type fakeScheduler struct {
	mu    sync.Mutex
	tasks []*fakeTask
}

type fakeTask struct {
	delay     time.Duration
	fn        func()
	cancelled bool
}

func (s *fakeScheduler) After(d time.Duration, fn func()) Cancel {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &fakeTask{delay: d, fn: fn}
	s.tasks = append(s.tasks, t)
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		t.cancelled = true
	}
}

// Run fires every queued, uncancelled callback.
func (s *fakeScheduler) Run() int {
	s.mu.Lock()
	tasks := s.tasks
	s.tasks = nil
	s.mu.Unlock()

	n := 0
	for _, t := range tasks {
		if !t.cancelled {
			t.fn()
			n++
		}
	}
	return n
}

func (s *fakeScheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

type fixture struct {
	eng     *Engine
	journal *testJournal
	sched   *fakeScheduler
	updates []Update
	now     time.Time
}

func engineConfig() config.EngineConfig {
	return config.Default().Engine
}

func newFixture(t *testing.T, balance float64, s config.Settings) *fixture {
	t.Helper()
	require.NoError(t, s.Validate())

	f := &fixture{journal: &testJournal{}, sched: &fakeScheduler{}, now: t0}
	f.eng = NewEngine(engineConfig(), balance, s, f.options()...)
	t.Cleanup(f.eng.Close)
	return f
}

func (f *fixture) options() []Option {
	return []Option{
		WithJournal(f.journal),
		WithScheduler(f.sched),
		WithClock(func() time.Time { return f.now }),
		WithListener(ListenerFunc(func(u Update) { f.updates = append(f.updates, u) })),
	}
}

// restoreFixture builds an engine straight from positions, for hedge-exit
// scenarios that need a specific linked pair.
func restoreFixture(t *testing.T, balance float64, s config.Settings, positions ...Position) *fixture {
	t.Helper()

	f := &fixture{journal: &testJournal{}, sched: &fakeScheduler{}, now: t0}
	eng, err := Restore(engineConfig(), State{
		Account:   Account{MarginBalance: balance},
		Positions: positions,
		Settings:  s,
	}, f.options()...)
	require.NoError(t, err)
	f.eng = eng
	t.Cleanup(f.eng.Close)
	return f
}

func (f *fixture) tick(prices market.Prices) (Update, bool) {
	f.now = f.now.Add(time.Second)
	return f.eng.Tick(prices)
}

func (f *fixture) open(t *testing.T, req OpenRequest) PositionView {
	t.Helper()
	v, ok := f.eng.OpenPosition(req)
	require.True(t, ok, "open %s %s", req.Side, req.Symbol)
	return v
}

func (f *fixture) lastUpdate(t *testing.T) Update {
	t.Helper()
	require.NotEmpty(t, f.updates)
	return f.updates[len(f.updates)-1]
}

// pair returns an original and its hedge, linked both ways and marked at
// their entry prices.
func pair(orig, hedge Position) []Position {
	orig.EntryID, hedge.EntryID = "orig", "hedge"
	orig.Link = Link{Kind: Original, PeerID: "hedge"}
	hedge.Link = Link{Kind: Hedge, PeerID: "orig"}
	for _, p := range []*Position{&orig, &hedge} {
		if p.Leverage == 0 {
			p.Leverage = 10
		}
		p.MarkPrice = p.EntryPrice
		p.EntryTime = t0
	}
	return []Position{orig, hedge}
}

func tradeReasons(logs []journal.TradeLog) []string {
	var out []string
	for _, l := range logs {
		if l.Closed() {
			out = append(out, l.EntryID+":"+l.ExitReason)
		}
	}
	return out
}

func hasLog(logs []journal.LogEntry, sev journal.Severity) bool {
	for _, l := range logs {
		if l.Severity == sev {
			return true
		}
	}
	return false
}

func ptr(v float64) *float64 { return &v }
