// Package backtest drives an engine through a recorded or scripted price
// feed and summarizes the outcome.
package backtest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rustyeddy/hedger/feed"
	"github.com/rustyeddy/hedger/journal"
	"github.com/rustyeddy/hedger/sim"
	"github.com/rustyeddy/hedger/strategies"
)

// RunnerOptions controls how the runner behaves.
type RunnerOptions struct {
	// If true, close all open positions at the end of the feed with
	// BATCH_CLOSE.
	CloseEnd bool
	Play     feed.PlayOptions
}

// Runner drives an engine forward using a feed and strategy.
type Runner struct {
	Engine   *sim.Engine
	Feed     feed.Source
	Strategy strategies.FrameStrategy
	// Clock, when set, is advanced to each frame's time before the tick.
	Clock   *ReplayClock
	Options RunnerOptions
}

// Run executes the loop:
//  1. read next frame
//  2. engine.Tick(frame.Prices)
//  3. apply the frame's scripted events
//  4. strategy.OnFrame(ctx, engine, frame)
func (r *Runner) Run(ctx context.Context) (Result, error) {
	if r.Engine == nil {
		return Result{}, fmt.Errorf("backtest: Engine is required")
	}
	if r.Feed == nil {
		return Result{}, fmt.Errorf("backtest: Feed is required")
	}
	strat := r.Strategy
	if strat == nil {
		strat = strategies.NoopStrategy{}
	}
	defer r.Feed.Close()

	var res Result
	n, err := feed.Play(ctx, r.Feed, r.Options.Play, func(fr feed.Frame) error {
		if r.Clock != nil && !fr.Time.IsZero() {
			r.Clock.Set(fr.Time)
		}
		if res.Start.IsZero() || fr.Time.Before(res.Start) {
			res.Start = fr.Time
		}
		if fr.Time.After(res.End) {
			res.End = fr.Time
		}

		if _, ok := r.Engine.Tick(fr.Prices); ok {
			res.Updates++
		}
		for _, ev := range fr.Events {
			if err := feed.Apply(r.Engine, ev); err != nil {
				return err
			}
		}
		return strat.OnFrame(ctx, r.Engine, fr)
	})
	res.Frames = n
	if err != nil {
		return res, err
	}

	if r.Options.CloseEnd {
		res.ClosedAtEnd = r.Engine.BatchCloseAllPositions()
	}

	res.Account = r.Engine.Account()
	res.OpenPositions = len(r.Engine.Positions())
	res.Summary = journal.Summarize(r.Engine.TradeLogs())
	return res, nil
}

// ReplayClock is an engine clock that only moves when told to.
type ReplayClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewReplayClock(start time.Time) *ReplayClock {
	return &ReplayClock{now: start}
}

func (c *ReplayClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ReplayClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}
