package feed

import (
	"fmt"
	"strconv"

	"github.com/rustyeddy/hedger/market"
	"github.com/rustyeddy/hedger/sim"
)

// Event is a scripted command replayed alongside prices.
//
//	OPEN   side amount [tp%]   amount is USDT notional
//	CLOSE  side [reason]
//	CLOSE_ALL
//	TOGGLE_REOPEN
type Event struct {
	Name   string
	Symbol string
	Args   []string
}

func (ev Event) arg(i int) string {
	if i < len(ev.Args) {
		return ev.Args[i]
	}
	return ""
}

// Commander is the part of the engine events drive.
type Commander interface {
	OpenPosition(req sim.OpenRequest) (sim.PositionView, bool)
	ClosePosition(symbol string, side market.Side, reason string) bool
	BatchCloseAllPositions() int
	ToggleAutoReopen() bool
}

// Apply runs ev against c. A refused open or unknown close is not an error;
// the engine audit-logs those itself. Malformed events are.
func Apply(c Commander, ev Event) error {
	switch ev.Name {
	case "OPEN":
		side, err := market.ParseSide(ev.arg(0))
		if err != nil {
			return fmt.Errorf("OPEN %s: %w", ev.Symbol, err)
		}
		amount, err := strconv.ParseFloat(ev.arg(1), 64)
		if err != nil || amount <= 0 {
			return fmt.Errorf("OPEN %s: bad amount %q", ev.Symbol, ev.arg(1))
		}
		req := sim.OpenRequest{Symbol: ev.Symbol, Side: side, Amount: amount, AmountIsNotional: true}
		if s := ev.arg(2); s != "" {
			tp, err := strconv.ParseFloat(s, 64)
			if err != nil || tp <= 0 {
				return fmt.Errorf("OPEN %s: bad take-profit %q", ev.Symbol, s)
			}
			req.TakeProfitPercent = &tp
		}
		c.OpenPosition(req)

	case "CLOSE":
		side, err := market.ParseSide(ev.arg(0))
		if err != nil {
			return fmt.Errorf("CLOSE %s: %w", ev.Symbol, err)
		}
		c.ClosePosition(ev.Symbol, side, ev.arg(1))

	case "CLOSE_ALL":
		c.BatchCloseAllPositions()

	case "TOGGLE_REOPEN":
		c.ToggleAutoReopen()

	default:
		return fmt.Errorf("unknown event %q", ev.Name)
	}
	return nil
}
