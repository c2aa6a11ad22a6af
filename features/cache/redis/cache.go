// Package redis provides a Redis-backed implementation of the hot execution
// context cache. Entries are plain string keys with per-entry TTLs; callers
// treat every failure as a miss and fall through to the durable store.
package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const clientName = "cache-redis"

// Cache implements cache.Cache backed by Redis.
type Cache struct {
	client redis.UniversalClient
}

// New builds a Redis-backed cache.
func New(client redis.UniversalClient) (*Cache, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	return &Cache{client: client}, nil
}

// Name identifies the cache for health reporting.
func (c *Cache) Name() string { return clientName }

// Ping verifies connectivity.
func (c *Cache) Ping(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return c.client.Ping(ctx).Err()
}

// Get returns the cached value and whether the key was present.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

// Set stores the value under key for the given TTL.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	return c.client.Set(ctx, key, value, ttl).Err()
}

// Delete removes the key. Deleting an absent key is not an error.
func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}
