package inmem

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/autoflowhq/autoflow/runtime/lock"
)

func TestWithLockSerializesSameKey(t *testing.T) {
	l := NewLocker()
	var (
		mu      sync.Mutex
		active  int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.WithLock(context.Background(), lock.ExecutionKey("exec-1"), func(context.Context) error {
				mu.Lock()
				active++
				if active > maxSeen {
					maxSeen = active
				}
				mu.Unlock()
				time.Sleep(time.Millisecond)
				mu.Lock()
				active--
				mu.Unlock()
				return nil
			})
			require.NoError(t, err)
		}()
	}
	wg.Wait()
	require.Equal(t, 1, maxSeen)
}

func TestWithLockIndependentKeys(t *testing.T) {
	l := NewLocker(WithAcquireTimeout(50 * time.Millisecond))
	release := make(chan struct{})
	held := make(chan struct{})
	go func() {
		_ = l.WithLock(context.Background(), "execution:a", func(context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	// A different key is not contended.
	err := l.WithLock(context.Background(), "execution:b", func(context.Context) error { return nil })
	require.NoError(t, err)
	close(release)
}

func TestWithLockAcquireTimeout(t *testing.T) {
	l := NewLocker(WithAcquireTimeout(20 * time.Millisecond))
	release := make(chan struct{})
	held := make(chan struct{})
	go func() {
		_ = l.WithLock(context.Background(), "execution:a", func(context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	err := l.WithLock(context.Background(), "execution:a", func(context.Context) error { return nil })
	require.ErrorIs(t, err, lock.ErrAcquireTimeout)
	close(release)
}

func TestWithLockReleasesOnError(t *testing.T) {
	l := NewLocker()
	boom := errors.New("boom")
	err := l.WithLock(context.Background(), "execution:a", func(context.Context) error { return boom })
	require.ErrorIs(t, err, boom)
	// Lock must be free again.
	err = l.WithLock(context.Background(), "execution:a", func(context.Context) error { return nil })
	require.NoError(t, err)
}

func TestWithLockRespectsContext(t *testing.T) {
	l := NewLocker()
	release := make(chan struct{})
	held := make(chan struct{})
	go func() {
		_ = l.WithLock(context.Background(), "execution:a", func(context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := l.WithLock(ctx, "execution:a", func(context.Context) error { return nil })
	require.ErrorIs(t, err, context.Canceled)
	close(release)
}
