package ledger

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
)

// BalanceCache is a read-through cache of published balance series keyed by
// account. Every publication invalidates the whole cache; the generation is
// the fingerprint of the published tables.
type BalanceCache struct {
	reader TableReader

	mu         sync.RWMutex
	generation string
	series     map[AccountID]BalanceSeries
}

func NewBalanceCache(reader TableReader) *BalanceCache {
	return &BalanceCache{reader: reader, series: make(map[AccountID]BalanceSeries)}
}

// Invalidate drops every cached series and starts a new generation.
func (c *BalanceCache) Invalidate(generation string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation = generation
	c.series = make(map[AccountID]BalanceSeries)
}

// Generation returns the fingerprint the cache was last invalidated with.
func (c *BalanceCache) Generation() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generation
}

// Series returns the published balance series of account.
func (c *BalanceCache) Series(ctx context.Context, account AccountID) (BalanceSeries, error) {
	c.mu.RLock()
	s, ok := c.series[account]
	gen := c.generation
	c.mu.RUnlock()
	if ok {
		return s, nil
	}

	rows, err := c.reader.DailyBalances(ctx, account)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrAccountNotFound
	}
	s = BalanceSeries(rows)

	c.mu.Lock()
	// A publication between read and store makes rows stale; don't keep them.
	if c.generation == gen {
		c.series[account] = s
	}
	c.mu.Unlock()
	return s, nil
}

// BalanceAt returns the balance of account at the end of d.
func (c *BalanceCache) BalanceAt(ctx context.Context, account AccountID, d Date) (decimal.Decimal, error) {
	s, err := c.Series(ctx, account)
	if err != nil {
		return decimal.Zero, err
	}
	return s.At(d), nil
}
