package sim

import (
	"time"

	"github.com/rustyeddy/hedger/journal"
)

// Cancel stops a scheduled call if it has not run yet.
type Cancel func()

// Scheduler runs deferred engine commands such as auto-reopens.
type Scheduler interface {
	After(d time.Duration, fn func()) Cancel
}

// TimerScheduler runs callbacks on their own goroutine via time.AfterFunc.
type TimerScheduler struct{}

func (TimerScheduler) After(d time.Duration, fn func()) Cancel {
	t := time.AfterFunc(d, fn)
	return func() { t.Stop() }
}

// reopenOrder is the command a scheduled auto-reopen replays.
type reopenOrder struct {
	key int
	req OpenRequest
}

// scheduleReopenLocked arranges for a position closed by automation to be
// opened again at the same size and exit price after the reopen delay.
func (e *Engine) scheduleReopenLocked(p *Position) {
	if e.closed || e.sched == nil {
		return
	}

	e.nextReopen++
	order := reopenOrder{
		key: e.nextReopen,
		req: OpenRequest{
			Symbol:            p.Symbol,
			Side:              p.Side,
			Amount:            p.Amount,
			Price:             p.MarkPrice,
			Leverage:          p.Leverage,
			TakeProfitPercent: p.clone().SimTakeProfitPercent,
			AutoReopen:        true,
		},
	}
	e.reopens[order.key] = e.sched.After(e.reopenDelay, func() { e.reopen(order) })
	e.audit(journal.SeverityInfo, "Auto-reopen of %s %s scheduled in %s", p.Side, p.Symbol, e.reopenDelay)
}

func (e *Engine) reopen(o reopenOrder) {
	e.mu.Lock()
	if _, pending := e.reopens[o.key]; !pending || e.closed {
		e.mu.Unlock()
		return
	}
	delete(e.reopens, o.key)

	if e.findLocked(o.req.Symbol, o.req.Side) != nil {
		e.audit(journal.SeverityInfo, "Auto-reopen of %s %s skipped: already open", o.req.Side, o.req.Symbol)
	} else if p, ok := e.openRequestLocked(o.req); ok {
		reopensTotal.Inc()
		e.logger.Info("position reopened",
			zapPosition(p)...,
		)
	}
	e.release(e.commitLocked(false))
}

// PendingReopens is the number of scheduled reopens that have not run.
func (e *Engine) PendingReopens() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.reopens)
}

func reopenable(reason string) bool {
	switch reason {
	case ReasonManual, ReasonRemove, ReasonBatchClose:
		return false
	}
	return true
}
