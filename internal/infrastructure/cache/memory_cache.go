package cache

import (
	"context"
	"sync"
	"time"

	"github.com/gsiegel14/fasten-webhook-service/internal/ports"
)

// DefaultTTL is the freshness window for aggregate reads.
const DefaultTTL = 5 * time.Minute

type cacheEntry struct {
	value    []byte
	storedAt time.Time
}

// MemoryRecordCache implements ports.RecordCache with per-entry timestamps.
// An entry older than the TTL is a miss; expired entries are dropped lazily
// on the next Set or Clear.
type MemoryRecordCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]cacheEntry
	now     func() time.Time
}

// NewMemoryRecordCache creates a cache with the given TTL (DefaultTTL when
// non-positive).
func NewMemoryRecordCache(ttl time.Duration) *MemoryRecordCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryRecordCache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

// Get returns the value and true when present and fresher than the TTL.
func (c *MemoryRecordCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok || c.now().Sub(entry.storedAt) >= c.ttl {
		return nil, false, nil
	}
	return entry.value, true, nil
}

// Set stores the value with the current timestamp.
func (c *MemoryRecordCache) Set(ctx context.Context, key string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{value: value, storedAt: c.now()}
	return nil
}

// Invalidate removes one entry immediately.
func (c *MemoryRecordCache) Invalidate(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

// Clear removes every entry.
func (c *MemoryRecordCache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
	return nil
}

var _ ports.RecordCache = (*MemoryRecordCache)(nil)
