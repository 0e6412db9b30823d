package market

import (
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrNoPrice is returned when a symbol has never been quoted.
var ErrNoPrice = errors.New("price not found")

// Prices is one tick worth of mark prices keyed by symbol. It may be
// partial; symbols absent from the map keep their previous mark.
type Prices map[string]float64

// Symbols returns the map keys in sorted order.
func (p Prices) Symbols() []string {
	out := make([]string, 0, len(p))
	for s := range p {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Quote is the latest known price for a symbol.
type Quote struct {
	Symbol string
	Price  float64
	Time   time.Time
}

// PriceStore caches the latest quote per symbol.
type PriceStore struct {
	mu     sync.RWMutex
	quotes map[string]Quote
}

func NewPriceStore() *PriceStore {
	return &PriceStore{quotes: make(map[string]Quote)}
}

func (ps *PriceStore) Set(q Quote) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.quotes[q.Symbol] = q
}

// Merge stores every positive price of a tick, stamped with tm.
func (ps *PriceStore) Merge(p Prices, tm time.Time) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	for sym, px := range p {
		if px <= 0 {
			continue
		}
		ps.quotes[sym] = Quote{Symbol: sym, Price: px, Time: tm}
	}
}

func (ps *PriceStore) Get(symbol string) (Quote, error) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	q, ok := ps.quotes[symbol]
	if !ok {
		return Quote{}, ErrNoPrice
	}
	return q, nil
}

// Price returns the cached price, or 0 and false.
func (ps *PriceStore) Price(symbol string) (float64, bool) {
	q, err := ps.Get(symbol)
	if err != nil {
		return 0, false
	}
	return q.Price, true
}

// Snapshot copies the cache into a Prices map.
func (ps *PriceStore) Snapshot() Prices {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	out := make(Prices, len(ps.quotes))
	for sym, q := range ps.quotes {
		out[sym] = q.Price
	}
	return out
}
