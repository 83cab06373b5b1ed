package prices

import (
	"sync"

	"github.com/rickgao/stockwatch/internal/model"
)

// Cache holds the latest observed quote per symbol. The poller is the sole
// writer; sessions and the alert engine read concurrently. Values are copied
// in and out, so callers never share mutable state with the cache.
type Cache struct {
	mu     sync.RWMutex
	quotes map[string]model.Quote
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{quotes: make(map[string]model.Quote)}
}

// Get returns the latest quote for symbol. ok is false when the symbol has
// never been observed; absence is not an error.
func (c *Cache) Get(symbol string) (model.Quote, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	q, ok := c.quotes[symbol]
	return q, ok
}

// Put stores a new quote and returns the superseded one, if any. The
// previous value is what the alert engine needs for edge-triggered
// crossing detection.
func (c *Cache) Put(q model.Quote) (prev model.Quote, had bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev, had = c.quotes[q.Symbol]
	c.quotes[q.Symbol] = q
	return prev, had
}

// Snapshot returns a copy of every cached quote.
func (c *Cache) Snapshot() map[string]model.Quote {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]model.Quote, len(c.quotes))
	for sym, q := range c.quotes {
		out[sym] = q
	}
	return out
}

// Len returns the number of tracked symbols.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.quotes)
}
