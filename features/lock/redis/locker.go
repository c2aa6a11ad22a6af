// Package redis provides a Redis-backed implementation of the named execution
// lock. Acquisition uses SET NX with a per-holder token and a TTL so a crashed
// holder cannot wedge an execution; release is a token-checked Lua script so a
// holder never releases a lock it lost to expiry.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/autoflowhq/autoflow/runtime/lock"
	"github.com/autoflowhq/autoflow/runtime/telemetry"
)

const (
	defaultTTL            = 30 * time.Second
	defaultAcquireTimeout = 10 * time.Second
	defaultRetryInterval  = 50 * time.Millisecond
	keyPrefix             = "lock:"
)

// releaseScript deletes the lock key only when it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// Options configures the Redis locker.
type Options struct {
	// Client is the Redis connection. Required.
	Client redis.UniversalClient
	// TTL bounds how long a lock may be held before it expires on its own.
	TTL time.Duration
	// AcquireTimeout bounds how long WithLock waits for a contended lock
	// before returning lock.ErrAcquireTimeout.
	AcquireTimeout time.Duration
	// RetryInterval is the polling interval for contended locks.
	RetryInterval time.Duration
	// Logger reports lost locks. Nil discards.
	Logger telemetry.Logger
}

// Locker implements lock.Locker backed by Redis.
type Locker struct {
	client         redis.UniversalClient
	ttl            time.Duration
	acquireTimeout time.Duration
	retryInterval  time.Duration
	logger         telemetry.Logger
}

// New builds a Redis-backed locker.
func New(opts Options) (*Locker, error) {
	if opts.Client == nil {
		return nil, errors.New("redis client is required")
	}
	l := &Locker{
		client:         opts.Client,
		ttl:            opts.TTL,
		acquireTimeout: opts.AcquireTimeout,
		retryInterval:  opts.RetryInterval,
		logger:         opts.Logger,
	}
	if l.ttl <= 0 {
		l.ttl = defaultTTL
	}
	if l.acquireTimeout <= 0 {
		l.acquireTimeout = defaultAcquireTimeout
	}
	if l.retryInterval <= 0 {
		l.retryInterval = defaultRetryInterval
	}
	if l.logger == nil {
		l.logger = telemetry.NoopLogger{}
	}
	return l, nil
}

// WithLock implements lock.Locker.
func (l *Locker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	if key == "" {
		return errors.New("lock key is required")
	}
	redisKey := keyPrefix + key
	token := uuid.NewString()
	if err := l.acquire(ctx, redisKey, token); err != nil {
		return err
	}
	defer l.release(redisKey, token)
	return fn(ctx)
}

// acquire polls SET NX until the lock is ours or the acquire timeout elapses.
func (l *Locker) acquire(ctx context.Context, key, token string) error {
	deadline := time.Now().Add(l.acquireTimeout)
	ticker := time.NewTicker(l.retryInterval)
	defer ticker.Stop()
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: %s", lock.ErrAcquireTimeout, key)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// release runs on every exit path, detached from the caller's context so a
// cancelled context cannot leak a held lock until TTL expiry.
func (l *Locker) release(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	released, err := releaseScript.Run(ctx, l.client, []string{key}, token).Int()
	if err != nil {
		l.logger.Warn(ctx, "lock release failed", "key", key, "err", err.Error())
		return
	}
	if released == 0 {
		l.logger.Warn(ctx, "lock expired before release", "key", key)
	}
}
