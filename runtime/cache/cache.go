// Package cache defines the short-TTL key/value store used for hot execution
// contexts. Writes are best-effort: callers treat cache failures as misses
// and fall through to the durable execution store.
package cache

import (
	"context"
	"time"
)

// Cache stores opaque values under string keys with a per-entry TTL.
type Cache interface {
	// Get returns the cached value and whether the key was present and fresh.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores the value under key for the given TTL. A non-positive TTL
	// means the entry does not expire.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes the key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}

// ExecutionKey returns the cache key for a hot execution context.
func ExecutionKey(executionID string) string {
	return "execution:" + executionID
}
