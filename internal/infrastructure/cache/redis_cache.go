package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gsiegel14/fasten-webhook-service/internal/ports"
)

// RedisRecordCache implements ports.RecordCache on Redis, using key expiry
// for the TTL. All keys share a prefix so Clear can scan them.
type RedisRecordCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisRecordCache creates a Redis-backed cache with the given TTL
// (DefaultTTL when non-positive).
func NewRedisRecordCache(client *redis.Client, ttl time.Duration) *RedisRecordCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisRecordCache{
		client: client,
		ttl:    ttl,
		prefix: "recordcache:",
	}
}

func (c *RedisRecordCache) key(key string) string {
	return c.prefix + key
}

// Get returns the value and true on a fresh hit.
func (c *RedisRecordCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cache entry: %w", err)
	}
	return value, true, nil
}

// Set stores the value with the cache TTL as its expiry.
func (c *RedisRecordCache) Set(ctx context.Context, key string, value []byte) error {
	if err := c.client.Set(ctx, c.key(key), value, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	return nil
}

// Invalidate removes one entry immediately.
func (c *RedisRecordCache) Invalidate(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.key(key)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate cache entry: %w", err)
	}
	return nil
}

// Clear removes every entry under the cache prefix.
func (c *RedisRecordCache) Clear(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, c.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("failed to clear cache entry: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan cache keys: %w", err)
	}
	return nil
}

var _ ports.RecordCache = (*RedisRecordCache)(nil)
