package sim

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/hedger/config"
	"github.com/rustyeddy/hedger/journal"
	"github.com/rustyeddy/hedger/market"
)

func TestTickDeviationGuard(t *testing.T) {
	f := newFixture(t, 10000, config.Settings{})
	f.open(t, OpenRequest{Symbol: "BTCUSDT", Side: market.Long, Amount: 1, Price: 100})

	upd, ok := f.tick(market.Prices{"BTCUSDT": 115})
	require.True(t, ok)
	require.Len(t, upd.Positions, 1)
	assert.Equal(t, 100.0, upd.Positions[0].MarkPrice)
	assert.Equal(t, 0.0, upd.Positions[0].UnrealizedPnL)
	assert.True(t, hasLog(upd.Logs, journal.SeverityWarning))

	upd, ok = f.tick(market.Prices{"BTCUSDT": 105})
	require.True(t, ok)
	assert.Equal(t, 105.0, upd.Positions[0].MarkPrice)
	assert.InDelta(t, 5, upd.Positions[0].UnrealizedPnL, 1e-9)
	assert.InDelta(t, 5, upd.Positions[0].UnrealizedPnLPercent, 1e-9)
}

func TestGlitchPriceIsNotCached(t *testing.T) {
	f := newFixture(t, 10000, config.Settings{})
	f.tick(market.Prices{"BTCUSDT": 100, "ETHUSDT": 50})
	f.open(t, OpenRequest{Symbol: "BTCUSDT", Side: market.Long, Amount: 1, Price: 100})

	f.tick(market.Prices{"BTCUSDT": 1000, "ETHUSDT": 55})
	px, ok := f.eng.Prices().Price("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, 100.0, px, "rejected price stays out of the cache")
	px, _ = f.eng.Prices().Price("ETHUSDT")
	assert.Equal(t, 55.0, px, "unguarded symbols are cached")

	v := f.open(t, OpenRequest{Symbol: "BTCUSDT", Side: market.Short, Amount: 1, Price: 100})
	assert.Equal(t, 100.0, v.EntryPrice)

	f.tick(market.Prices{"BTCUSDT": 104})
	px, _ = f.eng.Prices().Price("BTCUSDT")
	assert.Equal(t, 104.0, px)
}

func TestZeroEngineConfigDefaults(t *testing.T) {
	eng := NewEngine(config.EngineConfig{}, 10000, config.Settings{})
	t.Cleanup(eng.Close)
	eng.Tick(market.Prices{"BTCUSDT": 100})

	v, ok := eng.OpenPosition(OpenRequest{Symbol: "BTCUSDT", Side: market.Long, Amount: 1, Price: 101})
	require.True(t, ok)
	assert.Equal(t, 101.0, v.EntryPrice, "1% off market is within the default open guard")
	assert.Equal(t, 1, v.Leverage)

	upd, ok := eng.Tick(market.Prices{"BTCUSDT": 103})
	require.True(t, ok)
	assert.Equal(t, 103.0, upd.Positions[0].MarkPrice, "2% move is within the default tick guard")

	upd, _ = eng.Tick(market.Prices{"BTCUSDT": 150})
	assert.Equal(t, 103.0, upd.Positions[0].MarkPrice)
}

func TestTickWithoutChangeEmitsNothing(t *testing.T) {
	f := newFixture(t, 10000, config.Settings{})

	_, ok := f.tick(market.Prices{"BTCUSDT": 100})
	assert.False(t, ok, "no positions")

	f.open(t, OpenRequest{Symbol: "BTCUSDT", Side: market.Long, Amount: 1, Price: 100})
	n := len(f.updates)

	_, ok = f.tick(market.Prices{"BTCUSDT": 100})
	assert.False(t, ok, "same price")
	_, ok = f.tick(market.Prices{"ETHUSDT": 50})
	assert.False(t, ok, "other symbol")
	_, ok = f.tick(nil)
	assert.False(t, ok, "empty map")
	assert.Len(t, f.updates, n)
}

func TestAccountInvariant(t *testing.T) {
	f := newFixture(t, 10000, config.Settings{})
	f.open(t, OpenRequest{Symbol: "BTCUSDT", Side: market.Long, Amount: 0.5, Price: 100})
	f.open(t, OpenRequest{Symbol: "ETHUSDT", Side: market.Short, Amount: 2, Price: 50})
	f.open(t, OpenRequest{Symbol: "SOLUSDT", Side: market.Long, Amount: 10, Price: 20})

	steps := []market.Prices{
		{"BTCUSDT": 102, "ETHUSDT": 49},
		{"SOLUSDT": 19.5},
		{"BTCUSDT": 97, "ETHUSDT": 52, "SOLUSDT": 21},
		{"ETHUSDT": 53.5},
	}
	for i, prices := range steps {
		f.tick(prices)
		if i == 1 {
			require.True(t, f.eng.ClosePosition("SOLUSDT", market.Long, ""))
			f.open(t, OpenRequest{Symbol: "SOLUSDT", Side: market.Long, Amount: 10, Price: 19.5})
		}

		acct := f.eng.Account()
		var sum, notional float64
		for _, p := range f.eng.Positions() {
			sum += p.UnrealizedPnL
			notional += p.Notional
		}
		assert.InDelta(t, acct.MarginBalance+sum, acct.TotalBalance, 1e-9, "step %d", i)
		assert.InDelta(t, notional*0.004, acct.MaintenanceMargin, 1e-9, "step %d", i)
		assert.InDelta(t, acct.MaintenanceMargin/acct.TotalBalance*100, acct.MarginRatio, 1e-9, "step %d", i)
	}
}

func TestPnLPercentIsLeverageIndependent(t *testing.T) {
	f := newFixture(t, 10000, config.Settings{})
	f.open(t, OpenRequest{Symbol: "BTCUSDT", Side: market.Long, Amount: 1, Price: 100, Leverage: 5})
	f.open(t, OpenRequest{Symbol: "BTCUSDT", Side: market.Long, Amount: 1, Price: 100, Leverage: 20})
	f.open(t, OpenRequest{Symbol: "BTCUSDT", Side: market.Short, Amount: 1, Price: 100})

	upd, ok := f.tick(market.Prices{"BTCUSDT": 104})
	require.True(t, ok)
	require.Len(t, upd.Positions, 3)

	assert.InDelta(t, 4, upd.Positions[0].UnrealizedPnLPercent, 1e-9)
	assert.InDelta(t, 4, upd.Positions[1].UnrealizedPnLPercent, 1e-9)
	assert.InDelta(t, -4, upd.Positions[2].UnrealizedPnLPercent, 1e-9)
	assert.InDelta(t, 4, upd.Positions[0].MaxPnLPercent, 1e-9)
	assert.Less(t, upd.Positions[1].LiquidationPrice, 100.0)
	assert.Greater(t, upd.Positions[2].LiquidationPrice, 100.0)
}

func TestOpenThenCloseRestoresBalance(t *testing.T) {
	f := newFixture(t, 10000, config.Settings{})
	f.open(t, OpenRequest{Symbol: "BTCUSDT", Side: market.Long, Amount: 2000, Price: 60000, AmountIsNotional: true})

	require.True(t, f.eng.ClosePosition("BTCUSDT", market.Long, ""))

	acct := f.eng.Account()
	assert.Equal(t, 10000.0, acct.MarginBalance)
	assert.Equal(t, 10000.0, acct.TotalBalance)

	logs := f.eng.TradeLogs()
	require.Len(t, logs, 2)
	assert.Equal(t, journal.StatusOpen, logs[0].Status)
	assert.InDelta(t, 2000, logs[0].CostUSDT, 1e-9)
	assert.Nil(t, logs[0].ExitPrice)

	closed := logs[1]
	assert.Equal(t, journal.StatusClosed, closed.Status)
	assert.Equal(t, ReasonManual, closed.ExitReason)
	require.NotNil(t, closed.ProfitUSDT)
	assert.Equal(t, 0.0, *closed.ProfitUSDT)
	assert.Equal(t, 60000.0, *closed.ExitPrice)
	assert.Equal(t, logs[0].EntryID, closed.EntryID)
}

func TestClosePositionIsIdempotent(t *testing.T) {
	f := newFixture(t, 10000, config.Settings{})
	f.open(t, OpenRequest{Symbol: "BTCUSDT", Side: market.Long, Amount: 1, Price: 100})

	assert.True(t, f.eng.ClosePosition("BTCUSDT", market.Long, "MANUAL"))
	n := len(f.updates)
	logs := len(f.eng.Logs())

	assert.False(t, f.eng.ClosePosition("BTCUSDT", market.Long, "MANUAL"))
	assert.False(t, f.eng.ClosePosition("NOPEUSDT", market.Short, "MANUAL"))

	assert.Len(t, f.eng.TradeLogs(), 2)
	assert.Len(t, f.journal.trades, 2)
	assert.Len(t, f.eng.Logs(), logs, "no audit entry for a no-op close")
	assert.Len(t, f.updates, n)
}

func TestClosePositionFirstMatch(t *testing.T) {
	f := newFixture(t, 10000, config.Settings{})
	first := f.open(t, OpenRequest{Symbol: "BTCUSDT", Side: market.Long, Amount: 1, Price: 100})
	second := f.open(t, OpenRequest{Symbol: "BTCUSDT", Side: market.Long, Amount: 2, Price: 100})

	require.True(t, f.eng.ClosePosition("BTCUSDT", market.Long, ""))
	left := f.eng.Positions()
	require.Len(t, left, 1)
	assert.Equal(t, second.EntryID, left[0].EntryID)
	assert.NotEqual(t, first.EntryID, left[0].EntryID)
}

func TestOpenPositionPriceGuard(t *testing.T) {
	f := newFixture(t, 10000, config.Settings{})
	f.tick(market.Prices{"BTCUSDT": 100})

	v := f.open(t, OpenRequest{Symbol: "BTCUSDT", Side: market.Long, Amount: 1, Price: 200})
	assert.Equal(t, 100.0, v.EntryPrice)
	assert.True(t, hasLog(f.eng.Logs(), journal.SeverityWarning))

	v = f.open(t, OpenRequest{Symbol: "BTCUSDT", Side: market.Long, Amount: 1, Price: 120})
	assert.Equal(t, 120.0, v.EntryPrice)

	v = f.open(t, OpenRequest{Symbol: "BTCUSDT", Side: market.Short, Amount: 1})
	assert.Equal(t, 100.0, v.EntryPrice, "missing price uses market")
}

func TestOpenPositionNotionalAndDefaults(t *testing.T) {
	f := newFixture(t, 10000, config.Settings{})

	v := f.open(t, OpenRequest{Symbol: "ETHUSDT", Side: market.Short, Amount: 2000, Price: 100, AmountIsNotional: true})
	assert.InDelta(t, 20, v.Amount, 1e-12)
	assert.Equal(t, 10, v.Leverage)
	assert.InDelta(t, 200, v.Margin, 1e-9)
	assert.InDelta(t, 2000, v.Notional, 1e-9)
	assert.False(t, v.IsHedged)
	assert.Equal(t, t0, v.EntryTime)
}

func TestOpenPositionRefusals(t *testing.T) {
	tests := []struct {
		name string
		req  OpenRequest
	}{
		{"insufficient margin", OpenRequest{Symbol: "BTCUSDT", Side: market.Long, Amount: 2000, Price: 100, AmountIsNotional: true}},
		{"no price", OpenRequest{Symbol: "BTCUSDT", Side: market.Long, Amount: 1}},
		{"no amount", OpenRequest{Symbol: "BTCUSDT", Side: market.Long, Price: 100}},
		{"bad side", OpenRequest{Symbol: "BTCUSDT", Side: "UP", Amount: 1, Price: 100}},
		{"no symbol", OpenRequest{Side: market.Long, Amount: 1, Price: 100}},
		{"unknown parent", OpenRequest{Symbol: "BTCUSDT", Side: market.Short, Amount: 1, Price: 100, ParentID: "nope"}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 100, config.Settings{})

			_, ok := f.eng.OpenPosition(tt.req)
			assert.False(t, ok)
			assert.Empty(t, f.eng.Positions())
			assert.Empty(t, f.eng.TradeLogs())
			assert.Equal(t, 100.0, f.eng.Account().MarginBalance)
			assert.True(t, hasLog(f.eng.Logs(), journal.SeverityDanger))
		})
	}
}

func TestOpenHedgeByParentID(t *testing.T) {
	f := newFixture(t, 10000, config.Settings{})
	orig := f.open(t, OpenRequest{Symbol: "BTCUSDT", Side: market.Long, Amount: 1, Price: 100})

	_, ok := f.eng.OpenPosition(OpenRequest{Symbol: "BTCUSDT", Side: market.Long, Amount: 1, Price: 100, ParentID: orig.EntryID})
	assert.False(t, ok, "hedge must be the opposite side")

	hedge := f.open(t, OpenRequest{Symbol: "BTCUSDT", Side: market.Short, Amount: 0.5, Price: 100, ParentID: orig.EntryID})
	assert.Equal(t, orig.EntryID, hedge.MainPositionID)

	got, ok := f.eng.Position(orig.EntryID)
	require.True(t, ok)
	assert.True(t, got.IsHedged)

	_, ok = f.eng.OpenPosition(OpenRequest{Symbol: "BTCUSDT", Side: market.Short, Amount: 1, Price: 100, ParentID: orig.EntryID})
	assert.False(t, ok, "one hedge per original")

	logs := f.eng.TradeLogs()
	assert.True(t, logs[len(logs)-1].IsHedge)
}

func TestClosePositionPartially(t *testing.T) {
	f := newFixture(t, 10000, config.Settings{})
	v := f.open(t, OpenRequest{Symbol: "BTCUSDT", Side: market.Long, Amount: 10, Price: 100})
	f.tick(market.Prices{"BTCUSDT": 105})

	require.True(t, f.eng.ClosePositionPartially(v.EntryID, 4, ""))

	p, ok := f.eng.Position(v.EntryID)
	require.True(t, ok)
	assert.InDelta(t, 6, p.Amount, 1e-12)
	assert.InDelta(t, 30, p.UnrealizedPnL, 1e-9)

	acct := f.eng.Account()
	assert.InDelta(t, 10020, acct.MarginBalance, 1e-9)
	assert.InDelta(t, 10050, acct.TotalBalance, 1e-9)

	logs := f.eng.TradeLogs()
	last := logs[len(logs)-1]
	assert.Equal(t, "PARTIAL_MANUAL", last.ExitReason)
	assert.Equal(t, journal.StatusClosed, last.Status)
	assert.InDelta(t, 4, last.Quantity, 1e-12)
	assert.InDelta(t, 20, last.Profit(), 1e-9)

	// 5.95 of 6 is over 99%: full close
	require.True(t, f.eng.ClosePositionPartially(v.EntryID, 5.95, "TRIM"))
	_, ok = f.eng.Position(v.EntryID)
	assert.False(t, ok)
	logs = f.eng.TradeLogs()
	last = logs[len(logs)-1]
	assert.Equal(t, "TRIM", last.ExitReason)
	assert.InDelta(t, 6, last.Quantity, 1e-12)
	assert.InDelta(t, 10050, f.eng.Account().MarginBalance, 1e-9)

	assert.False(t, f.eng.ClosePositionPartially(v.EntryID, 1, ""))
}

func TestBatchOpenAndClose(t *testing.T) {
	f := newFixture(t, 10000, config.Settings{})

	assert.Equal(t, 0, f.eng.OpenBatchPositions(BatchRequest{}))
	logs := f.eng.Logs()
	require.NotEmpty(t, logs)
	assert.Contains(t, logs[len(logs)-1].Message, "no candidates")

	f.tick(market.Prices{"BTCUSDT": 100, "ETHUSDT": 50})
	n := f.eng.OpenBatchPositions(BatchRequest{
		Candidates: []BatchCandidate{
			{Symbol: "BTCUSDT", Side: market.Long},
			{Symbol: "ETHUSDT", Side: market.Short},
			{Symbol: "XRPUSDT", Side: market.Long},
			{Symbol: "SOLUSDT", Side: market.Long, Price: 20},
		},
		NotionalUSDT: 1000,
		AutoReopen:   true,
	})
	assert.Equal(t, 3, n)

	pos := f.eng.Positions()
	require.Len(t, pos, 3)
	assert.InDelta(t, 10, pos[0].Amount, 1e-12)
	assert.InDelta(t, 20, pos[1].Amount, 1e-12)
	assert.Equal(t, "SOLUSDT", pos[2].Symbol)
	assert.True(t, pos[0].SimAutoReopen)

	assert.Equal(t, 3, f.eng.BatchCloseAllPositions())
	assert.Empty(t, f.eng.Positions())
	assert.Equal(t, 0, f.sched.Len(), "batch close never reopens")
	for _, r := range tradeReasons(f.eng.TradeLogs()) {
		assert.Contains(t, r, ReasonBatchClose)
	}

	assert.Equal(t, 0, f.eng.BatchCloseAllPositions())
}

func TestUpdateLeverage(t *testing.T) {
	f := newFixture(t, 10000, config.Settings{})
	v := f.open(t, OpenRequest{Symbol: "BTCUSDT", Side: market.Long, Amount: 1, Price: 100})

	assert.True(t, f.eng.UpdateLeverage("BTCUSDT", market.Long, 25))
	p, _ := f.eng.Position(v.EntryID)
	assert.Equal(t, 25, p.Leverage)
	assert.InDelta(t, 4, p.Margin, 1e-9)

	assert.False(t, f.eng.UpdateLeverage("BTCUSDT", market.Short, 5))
	assert.False(t, f.eng.UpdateLeverage("BTCUSDT", market.Long, 0))
}

func TestToggleAutoReopen(t *testing.T) {
	f := newFixture(t, 10000, config.Settings{})
	f.open(t, OpenRequest{Symbol: "BTCUSDT", Side: market.Long, Amount: 1, Price: 100})
	f.open(t, OpenRequest{Symbol: "ETHUSDT", Side: market.Long, Amount: 1, Price: 50})

	assert.True(t, f.eng.ToggleAutoReopen(), "all off turns on")
	for _, p := range f.eng.Positions() {
		assert.True(t, p.SimAutoReopen)
	}

	f.open(t, OpenRequest{Symbol: "SOLUSDT", Side: market.Long, Amount: 1, Price: 20})
	assert.False(t, f.eng.ToggleAutoReopen(), "majority on turns off")
	for _, p := range f.eng.Positions() {
		assert.False(t, p.SimAutoReopen)
	}

	f.eng.ClosePosition("SOLUSDT", market.Long, "")
	f.open(t, OpenRequest{Symbol: "SOLUSDT", Side: market.Long, Amount: 1, Price: 20, AutoReopen: true})
	f.eng.ClosePosition("ETHUSDT", market.Long, "")
	assert.True(t, f.eng.ToggleAutoReopen(), "a tie turns on")
}

func TestStopLoss(t *testing.T) {
	tests := []struct {
		name       string
		rule       config.StopLossRule
		price      float64
		wantReason string
		wantAmount float64
	}{
		{"full close", config.StopLossRule{MinPosition: 100, LossPercent: 5, ClosePercent: 100}, 94, ReasonStopLoss, 0},
		{"partial close", config.StopLossRule{MinPosition: 100, LossPercent: 5, ClosePercent: 50}, 94, "PARTIAL_STOP_LOSS", 5},
		{"not reached", config.StopLossRule{MinPosition: 100, LossPercent: 5, ClosePercent: 100}, 96, "", 10},
		{"below min position", config.StopLossRule{MinPosition: 5000, LossPercent: 5, ClosePercent: 100}, 94, "", 10},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			rule := tt.rule
			f := newFixture(t, 10000, config.Settings{StopLoss: &rule})
			v := f.open(t, OpenRequest{Symbol: "BTCUSDT", Side: market.Long, Amount: 10, Price: 100})

			f.tick(market.Prices{"BTCUSDT": tt.price})

			p, live := f.eng.Position(v.EntryID)
			if tt.wantAmount == 0 {
				assert.False(t, live)
			} else {
				require.True(t, live)
				assert.InDelta(t, tt.wantAmount, p.Amount, 1e-12)
			}

			reasons := tradeReasons(f.eng.TradeLogs())
			if tt.wantReason == "" {
				assert.Empty(t, reasons)
			} else {
				assert.Equal(t, []string{v.EntryID + ":" + tt.wantReason}, reasons)
			}
		})
	}
}

func TestTakeProfitConventionalOnly(t *testing.T) {
	conventional := config.Settings{TakeProfit: &config.TakeProfitSettings{
		Mode:         config.ModeConventional,
		Conventional: &config.ConventionalTakeProfit{MinPosition: 100, ProfitPercent: 3, ClosePercent: 100},
	}}
	f := newFixture(t, 10000, conventional)
	v := f.open(t, OpenRequest{Symbol: "BTCUSDT", Side: market.Short, Amount: 10, Price: 100})
	f.tick(market.Prices{"BTCUSDT": 96})
	assert.Equal(t, []string{v.EntryID + ":" + ReasonTakeProfit}, tradeReasons(f.eng.TradeLogs()))
	assert.InDelta(t, 10040, f.eng.Account().MarginBalance, 1e-9)

	dynamic := config.Settings{TakeProfit: &config.TakeProfitSettings{
		Mode:    config.ModeDynamic,
		Dynamic: &config.DynamicTakeProfit{MinPosition: 100, Tiers: []config.ProfitTier{{ProfitPercent: 1, ClosePercent: 100}}},
	}}
	f = newFixture(t, 10000, dynamic)
	f.open(t, OpenRequest{Symbol: "BTCUSDT", Side: market.Short, Amount: 10, Price: 100})
	f.tick(market.Prices{"BTCUSDT": 96})
	assert.Empty(t, tradeReasons(f.eng.TradeLogs()))
	assert.Len(t, f.eng.Positions(), 1)
}

func TestSimTakeProfitAndAutoReopen(t *testing.T) {
	f := newFixture(t, 10000, config.Settings{})
	v := f.open(t, OpenRequest{Symbol: "BTCUSDT", Side: market.Long, Amount: 2, Price: 100, TakeProfitPercent: ptr(2), AutoReopen: true})

	f.tick(market.Prices{"BTCUSDT": 101})
	assert.Len(t, f.eng.Positions(), 1)

	f.tick(market.Prices{"BTCUSDT": 102.5})
	assert.Empty(t, f.eng.Positions())
	assert.Equal(t, []string{v.EntryID + ":" + ReasonSimProfit}, tradeReasons(f.eng.TradeLogs()))
	require.Equal(t, 1, f.sched.Len())
	assert.Equal(t, 3*time.Second, f.sched.tasks[0].delay)
	assert.Equal(t, 1, f.eng.PendingReopens())

	assert.Equal(t, 1, f.sched.Run())
	pos := f.eng.Positions()
	require.Len(t, pos, 1)
	assert.NotEqual(t, v.EntryID, pos[0].EntryID)
	assert.Equal(t, 102.5, pos[0].EntryPrice)
	assert.InDelta(t, 2, pos[0].Amount, 1e-12)
	assert.True(t, pos[0].SimAutoReopen)
	require.NotNil(t, pos[0].SimTakeProfitPercent)
	assert.Equal(t, 2.0, *pos[0].SimTakeProfitPercent)
	assert.Equal(t, 0, f.eng.PendingReopens())
}

func TestAutoReopenSkipsLivePair(t *testing.T) {
	f := newFixture(t, 10000, config.Settings{})
	f.open(t, OpenRequest{Symbol: "BTCUSDT", Side: market.Long, Amount: 1, Price: 100, TakeProfitPercent: ptr(1), AutoReopen: true})
	f.tick(market.Prices{"BTCUSDT": 102})
	require.Equal(t, 1, f.sched.Len())

	f.open(t, OpenRequest{Symbol: "BTCUSDT", Side: market.Long, Amount: 3, Price: 102})
	f.sched.Run()

	pos := f.eng.Positions()
	require.Len(t, pos, 1)
	assert.InDelta(t, 3, pos[0].Amount, 1e-12)
	assert.Contains(t, f.eng.Logs()[len(f.eng.Logs())-1].Message, "skipped")
}

func TestManualCloseDoesNotReopen(t *testing.T) {
	for _, reason := range []string{"", ReasonManual, ReasonRemove, ReasonBatchClose} {
		f := newFixture(t, 10000, config.Settings{})
		f.open(t, OpenRequest{Symbol: "BTCUSDT", Side: market.Long, Amount: 1, Price: 100, AutoReopen: true})
		require.True(t, f.eng.ClosePosition("BTCUSDT", market.Long, reason))
		assert.Equal(t, 0, f.sched.Len(), "reason %q", reason)
	}

	f := newFixture(t, 10000, config.Settings{})
	f.open(t, OpenRequest{Symbol: "BTCUSDT", Side: market.Long, Amount: 1, Price: 100, AutoReopen: true})
	require.True(t, f.eng.ClosePosition("BTCUSDT", market.Long, "SIGNAL"))
	assert.Equal(t, 1, f.sched.Len())
}

func TestCloseCancelsReopens(t *testing.T) {
	f := newFixture(t, 10000, config.Settings{})
	f.open(t, OpenRequest{Symbol: "BTCUSDT", Side: market.Long, Amount: 1, Price: 100, AutoReopen: true})
	f.eng.ClosePosition("BTCUSDT", market.Long, "SIGNAL")
	require.Equal(t, 1, f.eng.PendingReopens())

	f.eng.Close()
	assert.Equal(t, 0, f.eng.PendingReopens())
	assert.Equal(t, 0, f.sched.Run())
	assert.Empty(t, f.eng.Positions())
}

func TestUpdateOutput(t *testing.T) {
	f := newFixture(t, 10000, config.Settings{})
	f.open(t, OpenRequest{Symbol: "BTCUSDT", Side: market.Long, Amount: 1, Price: 100, TakeProfitPercent: ptr(50)})

	upd := f.lastUpdate(t)
	assert.NotNil(t, upd.Logs)
	require.Len(t, upd.TradeLogs, 1)
	assert.Nil(t, upd.Notification)

	upd, ok := f.tick(market.Prices{"BTCUSDT": 101})
	require.True(t, ok)
	assert.Nil(t, upd.Logs, "logs unchanged")
	assert.Nil(t, upd.TradeLogs, "trade logs unchanged")
	assert.Equal(t, upd, f.lastUpdate(t))

	// updates are copies
	*upd.Positions[0].SimTakeProfitPercent = 1
	upd.Positions[0].Amount = 99
	p := f.eng.Positions()[0]
	assert.Equal(t, 50.0, *p.SimTakeProfitPercent)
	assert.Equal(t, 1.0, p.Amount)

	assert.Len(t, f.journal.equity, len(f.updates))
	last := f.journal.equity[len(f.journal.equity)-1]
	assert.InDelta(t, 10001, last.TotalBalance, 1e-9)
	assert.Equal(t, 1, last.OpenPositions)

	snap := f.eng.Snapshot()
	assert.Len(t, snap.TradeLogs, 1)
	assert.NotEmpty(t, snap.Logs)
}

func TestSetSettings(t *testing.T) {
	f := newFixture(t, 10000, config.Settings{})
	v := f.open(t, OpenRequest{Symbol: "BTCUSDT", Side: market.Long, Amount: 10, Price: 100})
	f.tick(market.Prices{"BTCUSDT": 94})
	_, live := f.eng.Position(v.EntryID)
	require.True(t, live)

	bad := config.Settings{StopLoss: &config.StopLossRule{LossPercent: -1, ClosePercent: 100}}
	assert.Error(t, f.eng.SetSettings(bad))

	require.NoError(t, f.eng.SetSettings(config.Settings{
		StopLoss: &config.StopLossRule{MinPosition: 100, LossPercent: 5, ClosePercent: 100},
	}))
	require.NotNil(t, f.eng.Settings().StopLoss)

	f.tick(market.Prices{"BTCUSDT": 93})
	_, live = f.eng.Position(v.EntryID)
	assert.False(t, live, "hot-reloaded stop-loss fires on the next tick")
}

func TestConcurrentTicksAndCommands(t *testing.T) {
	eng := NewEngine(engineConfig(), 1_000_000, config.DefaultSettings(), WithScheduler(&fakeScheduler{}))
	defer eng.Close()

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				switch (g + i) % 4 {
				case 0:
					eng.Tick(market.Prices{"BTCUSDT": 100 + float64(i%5)})
				case 1:
					eng.OpenPosition(OpenRequest{Symbol: "BTCUSDT", Side: market.Long, Amount: 1, Price: 100})
				case 2:
					eng.ClosePosition("BTCUSDT", market.Long, "")
				case 3:
					eng.ToggleAutoReopen()
				}
			}
		}(g)
	}
	wg.Wait()

	acct := eng.Account()
	var sum float64
	for _, p := range eng.Positions() {
		sum += p.UnrealizedPnL
	}
	assert.InDelta(t, acct.MarginBalance+sum, acct.TotalBalance, 1e-6)
}
