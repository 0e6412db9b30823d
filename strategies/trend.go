package strategies

import (
	"context"
	"fmt"

	"github.com/rustyeddy/hedger/config"
	"github.com/rustyeddy/hedger/feed"
	"github.com/rustyeddy/hedger/indicators"
	"github.com/rustyeddy/hedger/market"
	"github.com/rustyeddy/hedger/sim"
)

// TrendBatch feeds every configured symbol's mark into a fast/slow EMA
// pair. Once AfterTicks frames have been seen it opens one batch: LONG for
// each uptrend, SHORT for each downtrend, nothing for flat symbols.
type TrendBatch struct {
	cfg    config.BatchConfig
	fast   map[string]*indicators.StreamingEMA
	slow   map[string]*indicators.StreamingEMA
	last   map[string]float64
	frames int
	fired  bool
}

func NewTrendBatch(cfg config.BatchConfig) (*TrendBatch, error) {
	if len(cfg.Symbols) == 0 {
		return nil, fmt.Errorf("trend-batch: no symbols")
	}
	if cfg.FastEMA <= 0 || cfg.SlowEMA <= cfg.FastEMA {
		return nil, fmt.Errorf("trend-batch: need 0 < fast_ema (%d) < slow_ema (%d)", cfg.FastEMA, cfg.SlowEMA)
	}
	if cfg.NotionalUSDT <= 0 {
		return nil, fmt.Errorf("trend-batch: notional_usdt must be positive")
	}
	if cfg.AfterTicks < cfg.SlowEMA {
		cfg.AfterTicks = cfg.SlowEMA
	}

	s := &TrendBatch{
		cfg:  cfg,
		fast: make(map[string]*indicators.StreamingEMA, len(cfg.Symbols)),
		slow: make(map[string]*indicators.StreamingEMA, len(cfg.Symbols)),
		last: make(map[string]float64, len(cfg.Symbols)),
	}
	for _, sym := range cfg.Symbols {
		s.fast[sym] = indicators.NewStreamingEMA(cfg.FastEMA)
		s.slow[sym] = indicators.NewStreamingEMA(cfg.SlowEMA)
	}
	return s, nil
}

// OnFrame updates each symbol with its latest mark; a symbol missing from
// the frame repeats its previous price so all EMAs advance together.
func (s *TrendBatch) OnFrame(ctx context.Context, b Broker, fr feed.Frame) error {
	if s.fired {
		return nil
	}
	for _, sym := range s.cfg.Symbols {
		if px, ok := fr.Prices[sym]; ok && px > 0 {
			s.last[sym] = px
		}
		px, ok := s.last[sym]
		if !ok {
			continue
		}
		s.fast[sym].Update(px)
		s.slow[sym].Update(px)
	}
	s.frames++
	if s.frames < s.cfg.AfterTicks {
		return nil
	}

	s.fired = true
	b.OpenBatchPositions(sim.BatchRequest{
		Candidates:        s.Candidates(),
		NotionalUSDT:      s.cfg.NotionalUSDT,
		Leverage:          s.cfg.Leverage,
		TakeProfitPercent: s.cfg.TakeProfitPercent,
		AutoReopen:        s.cfg.AutoReopen,
	})
	return nil
}

// Candidates classifies every warmed-up symbol, in config order.
func (s *TrendBatch) Candidates() []sim.BatchCandidate {
	var out []sim.BatchCandidate
	for _, sym := range s.cfg.Symbols {
		f, sl := s.fast[sym], s.slow[sym]
		if !f.Ready() || !sl.Ready() {
			continue
		}
		var side market.Side
		switch indicators.ClassifySpread(f.Value(), sl.Value(), s.cfg.MinSpreadPercent) {
		case indicators.Up:
			side = market.Long
		case indicators.Down:
			side = market.Short
		default:
			continue
		}
		out = append(out, sim.BatchCandidate{Symbol: sym, Side: side, Price: s.last[sym]})
	}
	return out
}

// Fired reports whether the batch has been opened.
func (s *TrendBatch) Fired() bool { return s.fired }
