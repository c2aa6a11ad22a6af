// Package inmem provides a process-local Locker for development and testing.
// Production deployments use the Redis-backed locker so mutual exclusion
// holds across engine replicas.
package inmem

import (
	"context"
	"sync"
	"time"

	"github.com/autoflowhq/autoflow/runtime/lock"
)

// Locker implements lock.Locker using per-key channels as binary semaphores.
type Locker struct {
	mu      sync.Mutex
	locks   map[string]chan struct{}
	timeout time.Duration
}

// Option configures a Locker.
type Option func(*Locker)

// WithAcquireTimeout bounds how long WithLock waits for a contended lock.
func WithAcquireTimeout(d time.Duration) Option {
	return func(l *Locker) { l.timeout = d }
}

// NewLocker returns an in-memory Locker with a 10s default acquire timeout.
func NewLocker(opts ...Option) *Locker {
	l := &Locker{
		locks:   make(map[string]chan struct{}),
		timeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// WithLock acquires the named lock, runs fn, and releases on all exit paths.
func (l *Locker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	sem := l.semaphore(key)
	timer := time.NewTimer(l.timeout)
	defer timer.Stop()
	select {
	case sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return lock.ErrAcquireTimeout
	}
	defer func() { <-sem }()
	return fn(ctx)
}

func (l *Locker) semaphore(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	sem, ok := l.locks[key]
	if !ok {
		sem = make(chan struct{}, 1)
		l.locks[key] = sem
	}
	return sem
}
