// Package indicators computes moving averages over plain price series.
//
// The risk engine never reads these; they feed candidate selection for batch
// opens, where a symbol's recent mark prices are classified by EMA trend.
package indicators

import "fmt"

// Trend is the direction implied by a fast/slow EMA pair.
type Trend int

const (
	Flat Trend = iota
	Up
	Down
)

func (t Trend) String() string {
	switch t {
	case Up:
		return "UP"
	case Down:
		return "DOWN"
	}
	return "FLAT"
}

// MA returns the simple average of the last period prices.
func MA(prices []float64, period int) (float64, error) {
	if err := checkPeriod(len(prices), period); err != nil {
		return 0, err
	}

	sum := 0.0
	for _, p := range prices[len(prices)-period:] {
		sum += p
	}
	return sum / float64(period), nil
}

// EMA returns the exponential moving average of prices, seeded with the SMA
// of the first period values.
func EMA(prices []float64, period int) (float64, error) {
	series, err := EMASeries(prices, period)
	if err != nil {
		return 0, err
	}
	return series[len(series)-1], nil
}

// EMASeries returns one EMA value per input price starting at index
// period-1. The first value is the SMA of the first period prices.
func EMASeries(prices []float64, period int) ([]float64, error) {
	if err := checkPeriod(len(prices), period); err != nil {
		return nil, err
	}

	k := 2.0 / float64(period+1)

	sma := 0.0
	for _, p := range prices[:period] {
		sma += p
	}
	ema := sma / float64(period)

	out := make([]float64, 0, len(prices)-period+1)
	out = append(out, ema)
	for _, p := range prices[period:] {
		ema = (p-ema)*k + ema
		out = append(out, ema)
	}
	return out, nil
}

// Classify compares a fast and a slow EMA over prices. The spread between
// them must exceed minSpreadPct (percent of the slow EMA) to count as a trend.
func Classify(prices []float64, fast, slow int, minSpreadPct float64) (Trend, error) {
	if fast >= slow {
		return Flat, fmt.Errorf("fast period %d must be below slow period %d", fast, slow)
	}
	f, err := EMA(prices, fast)
	if err != nil {
		return Flat, err
	}
	s, err := EMA(prices, slow)
	if err != nil {
		return Flat, err
	}
	return ClassifySpread(f, s, minSpreadPct), nil
}

// ClassifySpread is Classify for EMA values already computed, e.g. by a
// pair of StreamingEMAs.
func ClassifySpread(fast, slow, minSpreadPct float64) Trend {
	if slow == 0 {
		return Flat
	}
	spread := (fast - slow) / slow * 100
	switch {
	case spread > minSpreadPct:
		return Up
	case spread < -minSpreadPct:
		return Down
	}
	return Flat
}

func checkPeriod(n, period int) error {
	if period <= 0 {
		return fmt.Errorf("period must be positive, got %d", period)
	}
	if n < period {
		return fmt.Errorf("not enough prices: need %d, got %d", period, n)
	}
	return nil
}
