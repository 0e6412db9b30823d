package indicators

import "fmt"

// StreamingEMA is an EMA fed one price at a time. It seeds with the SMA of
// the first period prices so it agrees with EMASeries.
type StreamingEMA struct {
	period    int
	k         float64
	count     int
	warmupSum float64
	value     float64
}

func NewStreamingEMA(period int) *StreamingEMA {
	if period <= 0 {
		panic("EMA period must be > 0")
	}
	return &StreamingEMA{
		period: period,
		k:      2.0 / float64(period+1),
	}
}

func (e *StreamingEMA) Name() string { return fmt.Sprintf("EMA(%d)", e.period) }
func (e *StreamingEMA) Warmup() int  { return e.period }
func (e *StreamingEMA) Ready() bool  { return e.count >= e.period }

func (e *StreamingEMA) Reset() {
	e.count = 0
	e.warmupSum = 0
	e.value = 0
}

func (e *StreamingEMA) Update(price float64) {
	if e.count < e.period {
		e.warmupSum += price
		e.count++
		if e.count == e.period {
			e.value = e.warmupSum / float64(e.period)
		}
		return
	}
	e.value = (price-e.value)*e.k + e.value
}

// Value is 0 until Ready.
func (e *StreamingEMA) Value() float64 {
	if !e.Ready() {
		return 0
	}
	return e.value
}
