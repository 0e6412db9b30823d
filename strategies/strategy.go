// Package strategies holds frame-driven strategies that issue engine
// commands, such as opening a batch of trend-following positions.
package strategies

import (
	"context"
	"fmt"
	"strings"

	"github.com/rustyeddy/hedger/config"
	"github.com/rustyeddy/hedger/feed"
	"github.com/rustyeddy/hedger/sim"
)

// Broker is the part of the engine a strategy may drive.
type Broker interface {
	OpenPosition(req sim.OpenRequest) (sim.PositionView, bool)
	OpenBatchPositions(req sim.BatchRequest) int
	Positions() []sim.PositionView
}

// FrameStrategy is called once per frame, after the engine has ticked.
type FrameStrategy interface {
	OnFrame(ctx context.Context, b Broker, fr feed.Frame) error
}

// NoopStrategy does nothing.
type NoopStrategy struct{}

func (NoopStrategy) OnFrame(context.Context, Broker, feed.Frame) error { return nil }

// FromConfig picks the strategy a simulation config asks for.
func FromConfig(sc config.SimulationConfig) (FrameStrategy, error) {
	if sc.Batch == nil {
		return NoopStrategy{}, nil
	}
	return NewTrendBatch(*sc.Batch)
}

// ByName builds a strategy by name for the CLI.
func ByName(name string, batch *config.BatchConfig) (FrameStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "noop", "none":
		return NoopStrategy{}, nil
	case "trend-batch", "trend":
		if batch == nil {
			return nil, fmt.Errorf("trend-batch needs a simulation.batch config")
		}
		return NewTrendBatch(*batch)
	default:
		return nil, fmt.Errorf("unknown strategy %q (supported: noop, trend-batch)", name)
	}
}
