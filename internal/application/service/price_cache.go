package service

import (
	"sync"

	"github.com/shopspring/decimal"

	"pricewatch/internal/domain"
)

// LastPriceCache keeps the most recent price per instrument. It is the only
// state shared by the stream and poll paths.
type LastPriceCache struct {
	mu     sync.Mutex
	prices map[string]decimal.Decimal
}

func NewLastPriceCache() *LastPriceCache {
	return &LastPriceCache{prices: make(map[string]decimal.Decimal)}
}

// Swap stores price and returns the previous one; ok is false on the first
// observation for the instrument.
func (c *LastPriceCache) Swap(inst domain.Instrument, price decimal.Decimal) (prev decimal.Decimal, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev, ok = c.prices[inst.Key()]
	c.prices[inst.Key()] = price
	return prev, ok
}

func (c *LastPriceCache) Get(inst domain.Instrument) (decimal.Decimal, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.prices[inst.Key()]
	return p, ok
}

func (c *LastPriceCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.prices)
}
