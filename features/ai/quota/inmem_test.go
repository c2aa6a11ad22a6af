package quota

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestInmemAccumulates(t *testing.T) {
	s := NewInmem()
	ctx := context.Background()
	day := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	require.NoError(t, s.Add(ctx, "openai", day, 100))
	require.NoError(t, s.Add(ctx, "openai", day, 50))
	require.NoError(t, s.Add(ctx, "anthropic", day, 7))

	used, err := s.Used(ctx, "openai", day)
	require.NoError(t, err)
	require.Equal(t, int64(150), used)

	used, err = s.Used(ctx, "anthropic", day)
	require.NoError(t, err)
	require.Equal(t, int64(7), used)
}

func TestInmemDailyRollover(t *testing.T) {
	s := NewInmem()
	ctx := context.Background()
	day := time.Date(2026, 3, 14, 23, 59, 0, 0, time.UTC)
	next := day.Add(2 * time.Minute)

	require.NoError(t, s.Add(ctx, "openai", day, 100))

	used, err := s.Used(ctx, "openai", next)
	require.NoError(t, err)
	require.Zero(t, used)
}

func TestDayKeyUsesUTC(t *testing.T) {
	est := time.FixedZone("EST", -5*3600)
	// 23:00 EST on March 14 is already March 15 in UTC.
	at := time.Date(2026, 3, 14, 23, 0, 0, 0, est)
	require.Equal(t, "quota:openai:2026-03-15", DayKey("openai", at))
}
