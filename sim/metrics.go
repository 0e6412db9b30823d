package sim

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var ticksTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "hedger",
		Subsystem: "engine",
		Name:      "ticks_total",
		Help:      "Total number of price ticks processed",
	},
)

// ruleActions counts cascade rules that acted, by rule name.
var ruleActions = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "hedger",
		Subsystem: "engine",
		Name:      "rule_actions_total",
		Help:      "Number of strategy cascade actions taken",
	},
	[]string{"rule"},
)

var closesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "hedger",
		Subsystem: "engine",
		Name:      "closes_total",
		Help:      "Number of full and partial closes by exit reason",
	},
	[]string{"reason"},
)

var opensTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "hedger",
		Subsystem: "engine",
		Name:      "opens_total",
		Help:      "Number of positions opened",
	},
	[]string{"kind"}, // standalone, hedge
)

var rejectedOpens = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "hedger",
		Subsystem: "engine",
		Name:      "rejected_opens_total",
		Help:      "Opens and hedges refused by the margin/risk check",
	},
	[]string{"code"},
)

// glitchSkips counts positions skipped by the per-tick deviation guard.
var glitchSkips = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "hedger",
		Subsystem: "engine",
		Name:      "price_glitch_skips_total",
		Help:      "Positions left unchanged because a tick moved too far",
	},
	[]string{"symbol"},
)

var reopensTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "hedger",
		Subsystem: "engine",
		Name:      "auto_reopens_total",
		Help:      "Positions reopened by the auto-reopen loop",
	},
)

var openPositions = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "hedger",
		Subsystem: "account",
		Name:      "open_positions",
		Help:      "Current number of live positions",
	},
)

var accountBalance = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "hedger",
		Subsystem: "account",
		Name:      "balance_usdt",
		Help:      "Account balances in USDT",
	},
	[]string{"kind"}, // margin, total
)

var hedgeDebt = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "hedger",
		Subsystem: "account",
		Name:      "hedge_debt_usdt",
		Help:      "Sum of cumulative hedge loss carried by live positions",
	},
)

func (e *Engine) observeLocked() {
	openPositions.Set(float64(len(e.positions)))
	accountBalance.WithLabelValues("margin").Set(e.account.MarginBalance)
	accountBalance.WithLabelValues("total").Set(e.account.TotalBalance)

	var debt float64
	for _, p := range e.positions {
		debt += p.CumulativeHedgeLoss
	}
	hedgeDebt.Set(debt)
}
