// Package lock defines the named mutual-exclusion primitive that serializes
// steps of a single execution. Implementations back the lock with an external
// coordination store (Redis in production, process memory in tests).
package lock

import (
	"context"
	"errors"
)

var (
	// ErrAcquireTimeout indicates the lock could not be acquired within the
	// configured timeout. Callers fail the operation rather than block
	// indefinitely.
	ErrAcquireTimeout = errors.New("lock acquire timeout")
)

// Locker runs critical sections under a named lock. Locks are held for the
// duration of fn and released on every exit path, including panics and
// errors. A lock is not re-entrant across separate WithLock calls.
type Locker interface {
	// WithLock acquires the named lock, runs fn, and releases the lock. It
	// returns ErrAcquireTimeout when acquisition exceeds the configured
	// timeout, or fn's error otherwise.
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// ExecutionKey returns the lock key serializing steps of one execution.
func ExecutionKey(executionID string) string {
	return "execution:" + executionID
}
