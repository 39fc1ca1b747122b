package delivery

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultProcessCacheSize bounds the process cache when no size is configured.
const DefaultProcessCacheSize = 10000

// ProcessCache remembers successful results for the lifetime of one process.
// It is a fast path only: it knows nothing about other instances or restarts.
// A nil *ProcessCache is valid and never hits.
type ProcessCache struct {
	entries *lru.Cache[string, Result]
}

// NewProcessCache returns a cache holding at most size results.
func NewProcessCache(size int) *ProcessCache {
	if size <= 0 {
		size = DefaultProcessCacheSize
	}
	// lru.New only fails for non-positive sizes.
	entries, _ := lru.New[string, Result](size)
	return &ProcessCache{entries: entries}
}

// Get returns a copy of the cached result marked FromCache.
func (c *ProcessCache) Get(orderID string) (*Result, bool) {
	if c == nil {
		return nil, false
	}
	res, ok := c.entries.Get(orderID)
	if !ok {
		return nil, false
	}
	res.FromCache = true
	return &res, true
}

// Add caches a successful result. Failures are never cached.
func (c *ProcessCache) Add(orderID string, res *Result) {
	if c == nil || res == nil || !res.OK {
		return
	}
	c.entries.Add(orderID, *res)
}

// Len returns the number of cached results.
func (c *ProcessCache) Len() int {
	return c.entries.Len()
}
