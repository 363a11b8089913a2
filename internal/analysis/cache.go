package analysis

import (
	"sync"
	"time"
)

// Cache is an LRU cache of completed analysis results keyed on the
// full request parameters. Partial results are never stored, so a hit
// can always be delivered as a finished analysis.
type Cache struct {
	mu         sync.Mutex
	entries    map[uint64]cacheEntry
	order      []uint64 // LRU order, least recent first
	maxEntries int
	hits       uint64
	misses     uint64
}

type cacheEntry struct {
	result     Result
	insertedAt time.Time
}

// NewCache creates a cache bounded to maxEntries results.
func NewCache(maxEntries int) *Cache {
	if maxEntries <= 0 {
		maxEntries = 512
	}
	return &Cache{
		entries:    make(map[uint64]cacheEntry),
		order:      make([]uint64, 0, maxEntries),
		maxEntries: maxEntries,
	}
}

// Key derives the cache key from the analysis parameters. It is a
// pure function: identical inputs always hash identically, so repeat
// navigation to the same position hits the cache.
func Key(fen string, moves []string, depth, multiPV int) uint64 {
	// FNV-1a with zero-byte separators between components
	const prime = 1099511628211
	h := uint64(14695981039346656037)
	mix := func(s string) {
		for i := 0; i < len(s); i++ {
			h ^= uint64(s[i])
			h *= prime
		}
		h ^= 0
		h *= prime
	}
	mix(fen)
	for _, mv := range moves {
		mix(mv)
	}
	for _, n := range []int{depth, multiPV} {
		for shift := 0; shift < 64; shift += 8 {
			h ^= uint64(byte(n >> shift))
			h *= prime
		}
	}
	return h
}

// RequestKey derives the cache key for a request.
func RequestKey(req Request) uint64 {
	return Key(req.FEN, req.Moves, req.Depth, req.MultiPV)
}

// Get returns the cached result for key if present. The hit is moved
// to the back of the eviction order.
func (c *Cache) Get(key uint64) (*Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	c.touch(key)
	c.hits++
	res := e.result
	return res.Clone(), true
}

// Put stores a completed result. Incomplete results are ignored.
func (c *Cache) Put(key uint64, result *Result) {
	if result == nil || !result.Complete {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; exists {
		c.entries[key] = cacheEntry{result: *result.Clone(), insertedAt: time.Now()}
		c.touch(key)
		return
	}

	// Evict least recently used until there is room
	for len(c.entries) >= c.maxEntries && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}

	c.entries[key] = cacheEntry{result: *result.Clone(), insertedAt: time.Now()}
	c.order = append(c.order, key)
}

// Invalidate removes one entry.
func (c *Cache) Invalidate(key uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; !ok {
		return
	}
	delete(c.entries, key)
	c.remove(key)
}

// Clear empties the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[uint64]cacheEntry)
	c.order = c.order[:0]
}

// Len returns the number of cached results.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns hit and miss counters.
func (c *Cache) Stats() (hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// touch moves key to the back of the eviction order. Caller holds mu.
func (c *Cache) touch(key uint64) {
	c.remove(key)
	c.order = append(c.order, key)
}

// remove deletes key from the eviction order. Caller holds mu.
func (c *Cache) remove(key uint64) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}
