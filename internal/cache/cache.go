// Package cache holds normalized quote snapshots between provider fetches.
// Every hit here is a provider request that never leaves the process, so the
// admission layer sees less traffic the better this performs.
package cache

import (
	"sync"
	"time"

	"github.com/stockwatchdog/marketdata/internal/marketdata"
	"github.com/stockwatchdog/marketdata/internal/observ"
)

const (
	defaultTTL     = 900 * time.Second
	defaultMaxSize = 100
)

type entry struct {
	snapshot *marketdata.Snapshot
	cachedAt time.Time
}

// Cache is a TTL map with a hard size cap. When an insert pushes it past
// capacity the single oldest entry is evicted, regardless of symbol.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	ttl     time.Duration
	maxSize int

	now func() time.Time
}

func New(ttl time.Duration, maxSize int) *Cache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if maxSize <= 0 {
		maxSize = defaultMaxSize
	}
	return &Cache{
		entries: make(map[string]entry),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
	}
}

// Get returns the snapshot for symbol if present and fresh. A stale entry
// is removed on the spot and reported as a miss.
func (c *Cache) Get(symbol string) (*marketdata.Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[symbol]
	if !ok {
		observ.RecordCacheEvent("miss")
		return nil, false
	}
	if c.now().Sub(e.cachedAt) > c.ttl {
		delete(c.entries, symbol)
		observ.RecordCacheEvent("stale")
		return nil, false
	}
	observ.RecordCacheEvent("hit")
	return e.snapshot, true
}

// Put stores a snapshot for symbol, then evicts the oldest entry if the
// cache has grown past its cap.
func (c *Cache) Put(symbol string, s *marketdata.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[symbol] = entry{snapshot: s, cachedAt: c.now()}
	if len(c.entries) <= c.maxSize {
		return
	}

	var oldestKey string
	var oldestAt time.Time
	first := true
	for k, e := range c.entries {
		if first || e.cachedAt.Before(oldestAt) {
			oldestKey, oldestAt = k, e.cachedAt
			first = false
		}
	}
	delete(c.entries, oldestKey)
	observ.RecordCacheEvent("evict")
	observ.Log("cache_evict", map[string]any{"symbol": oldestKey})
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry)
	observ.RecordCacheEvent("clear")
}

// Len reports the number of cached entries, fresh or not.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
