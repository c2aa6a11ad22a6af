package quota

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a quota store backed by Redis counters. Counters live under
// quota:<provider>:<yyyy-mm-dd> keys with a 48h expiry, which gives both
// cross-replica accounting and automatic daily rollover.
type Redis struct {
	client *redis.Client
}

// NewRedis returns a Redis-backed quota store.
func NewRedis(client *redis.Client) (*Redis, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	return &Redis{client: client}, nil
}

// Used returns the tokens consumed by the provider on the given day.
func (s *Redis) Used(ctx context.Context, provider string, day time.Time) (int64, error) {
	n, err := s.client.Get(ctx, DayKey(provider, day)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Add records token consumption for the provider on the given day.
func (s *Redis) Add(ctx context.Context, provider string, day time.Time, tokens int64) error {
	key := DayKey(provider, day)
	pipe := s.client.TxPipeline()
	pipe.IncrBy(ctx, key, tokens)
	pipe.Expire(ctx, key, 48*time.Hour)
	_, err := pipe.Exec(ctx)
	return err
}
