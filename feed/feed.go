// Package feed produces the price frames that drive the engine: scripted
// steps from the config file, or a CSV replay with optional command events.
package feed

import (
	"context"
	"errors"
	"time"

	"github.com/rustyeddy/hedger/market"
)

// Frame is one engine tick worth of input.
type Frame struct {
	Time   time.Time
	Prices market.Prices
	// Delay is how long to wait before applying this frame when pacing.
	Delay  time.Duration
	Events []Event
}

// Source yields frames in order. Next returns false once exhausted.
type Source interface {
	Next() (Frame, bool, error)
	Close() error
}

// ErrStop ends Play early without an error.
var ErrStop = errors.New("feed: stop")

type PlayOptions struct {
	// Pace sleeps for each frame's Delay before handing it on.
	Pace bool
	// Interval, when set, replaces every frame's Delay.
	Interval time.Duration
	// Limit stops after that many frames; 0 plays everything.
	Limit int
}

// Play reads src until it is exhausted, ctx is done, or fn returns an
// error. It returns how many frames fn accepted.
func Play(ctx context.Context, src Source, opts PlayOptions, fn func(Frame) error) (int, error) {
	n := 0
	for {
		if opts.Limit > 0 && n >= opts.Limit {
			return n, nil
		}
		fr, ok, err := src.Next()
		if err != nil {
			return n, err
		}
		if !ok {
			return n, nil
		}

		if opts.Pace {
			d := fr.Delay
			if opts.Interval > 0 {
				d = opts.Interval
			}
			if err := sleep(ctx, d); err != nil {
				return n, err
			}
		} else if err := ctx.Err(); err != nil {
			return n, err
		}

		if err := fn(fr); err != nil {
			if errors.Is(err, ErrStop) {
				return n, nil
			}
			return n, err
		}
		n++
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
