// Package pricefeed supplies reference prices for the pairs an auction
// pool trades. The engine never uses a reference price to set the
// clearing price; the feed exists for operator dashboards and for
// sanity-checking batch outcomes against the wider market.
package pricefeed

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Quote is one observed reference price.
type Quote struct {
	Pair  string          `json:"pair"`
	Price decimal.Decimal `json:"price"`
	At    time.Time       `json:"at"`
}

// Source provides the latest known reference price for a pair. The
// boolean result is false when no price has been observed yet.
type Source interface {
	Price(pair string) (Quote, bool)
}

// StaticSource is a fixed price table, for tests and offline runs.
type StaticSource struct {
	mu     sync.RWMutex
	quotes map[string]Quote
}

// NewStaticSource creates a source preloaded with the given prices.
func NewStaticSource(prices map[string]decimal.Decimal) *StaticSource {
	s := &StaticSource{quotes: make(map[string]Quote, len(prices))}
	for pair, price := range prices {
		s.Set(pair, price)
	}
	return s
}

// Set records a price for a pair.
func (s *StaticSource) Set(pair string, price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotes[pair] = Quote{Pair: pair, Price: price, At: time.Now()}
}

// Price returns the recorded price for a pair.
func (s *StaticSource) Price(pair string) (Quote, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.quotes[pair]
	return q, ok
}
