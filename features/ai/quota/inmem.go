package quota

import (
	"context"
	"sync"
	"time"
)

// Inmem is a process-local quota store. Old day counters are pruned lazily on
// write so the map does not grow unbounded.
type Inmem struct {
	mu    sync.Mutex
	used  map[string]int64
	clock func() time.Time
}

// NewInmem returns an empty in-memory quota store.
func NewInmem() *Inmem {
	return &Inmem{used: make(map[string]int64), clock: time.Now}
}

// Used returns the tokens consumed by the provider on the given day.
func (s *Inmem) Used(ctx context.Context, provider string, day time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.used[DayKey(provider, day)], nil
}

// Add records token consumption for the provider on the given day.
func (s *Inmem) Add(ctx context.Context, provider string, day time.Time, tokens int64) error {
	today := DayKey(provider, s.clock())
	s.mu.Lock()
	defer s.mu.Unlock()
	key := DayKey(provider, day)
	s.used[key] += tokens
	// Prune counters from previous days for this provider.
	prefix := "quota:" + provider + ":"
	for k := range s.used {
		if k != key && k != today && len(k) > len(prefix) && k[:len(prefix)] == prefix {
			delete(s.used, k)
		}
	}
	return nil
}
