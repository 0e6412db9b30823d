package cmd

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rustyeddy/hedger/config"
	"github.com/rustyeddy/hedger/feed"
	"github.com/rustyeddy/hedger/market"
	"github.com/rustyeddy/hedger/sim"
)

// seedPositions opens the config's starting positions at their own prices.
func seedPositions(eng *sim.Engine, seeds []config.PositionSeed, logger *zap.Logger) error {
	for i, s := range seeds {
		side, err := market.ParseSide(s.Side)
		if err != nil {
			return fmt.Errorf("simulation.positions[%d]: %w", i, err)
		}
		v, ok := eng.OpenPosition(sim.OpenRequest{
			Symbol:            s.Symbol,
			Side:              side,
			Amount:            s.Amount,
			Price:             s.Price,
			Leverage:          s.Leverage,
			TakeProfitPercent: s.TakeProfitPercent,
			AutoReopen:        s.AutoReopen,
			AmountIsNotional:  s.AmountIsNotional,
		})
		if !ok {
			logger.Warn("seed position refused", zap.Int("index", i), zap.String("symbol", s.Symbol))
			continue
		}
		fmt.Printf("  Opened %s %s %.6f @ %.4f (%dx)\n", v.Side, v.Symbol, v.Amount, v.EntryPrice, v.Leverage)
	}
	return nil
}

// openFeed prefers a CSV replay over the inline price steps.
func openFeed(sc config.SimulationConfig, start time.Time) (feed.Source, error) {
	if sc.PricesCSV != "" {
		f, err := feed.NewCSVFeed(sc.PricesCSV, time.Time{}, time.Time{})
		if err != nil {
			return nil, err
		}
		return f, nil
	}
	if len(sc.PriceSteps) == 0 {
		return nil, fmt.Errorf("config has neither simulation.prices_csv nor simulation.price_steps")
	}
	s, err := feed.NewScript(sc.PriceSteps, start)
	if err != nil {
		return nil, err
	}
	return s, nil
}
