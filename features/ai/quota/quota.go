// Package quota tracks per-provider daily token usage. The router consults it
// before each provider call and skips providers whose daily budget is spent.
//
// Counters are keyed by provider and UTC day, so budgets roll over naturally
// at midnight UTC. The Redis-backed implementation shares counters across
// engine replicas; the in-memory one is process-local and suitable for a
// single-replica deployment or tests.
package quota

import (
	"context"
	"time"
)

// Store accumulates token usage per provider and day.
type Store interface {
	// Used returns the tokens consumed by the provider on the given day.
	Used(ctx context.Context, provider string, day time.Time) (int64, error)

	// Add records token consumption for the provider on the given day.
	Add(ctx context.Context, provider string, day time.Time, tokens int64) error
}

// DayKey returns the canonical counter key for a provider and UTC day.
func DayKey(provider string, day time.Time) string {
	return "quota:" + provider + ":" + day.UTC().Format("2006-01-02")
}
