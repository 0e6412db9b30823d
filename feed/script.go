package feed

import (
	"fmt"
	"time"

	"github.com/rustyeddy/hedger/config"
	"github.com/rustyeddy/hedger/market"
)

// Script plays the price steps of a simulation config.
type Script struct {
	frames []Frame
	next   int
}

// NewScript stamps each step at start plus the accumulated delays.
func NewScript(steps []config.PriceStep, start time.Time) (*Script, error) {
	s := &Script{frames: make([]Frame, 0, len(steps))}
	at := start
	for i, step := range steps {
		d, err := step.ParseDuration()
		if err != nil {
			return nil, fmt.Errorf("price step %d: %w", i, err)
		}
		at = at.Add(d)

		prices := make(market.Prices, len(step.Prices))
		for sym, px := range step.Prices {
			prices[sym] = px
		}
		s.frames = append(s.frames, Frame{Time: at, Prices: prices, Delay: d})
	}
	return s, nil
}

func (s *Script) Next() (Frame, bool, error) {
	if s.next >= len(s.frames) {
		return Frame{}, false, nil
	}
	fr := s.frames[s.next]
	s.next++
	return fr, true, nil
}

func (s *Script) Len() int { return len(s.frames) }

func (s *Script) Close() error { return nil }
