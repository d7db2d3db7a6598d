package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockwatchdog/marketdata/internal/ratelimit"
	"github.com/stockwatchdog/marketdata/internal/usage"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUsageStatsAggregation(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	s.LogUsage(usage.NewEntry("yahoo_finance", 200, "7203", "quote", 100*time.Millisecond))
	s.LogUsage(usage.NewEntry("yahoo_finance", 200, "6758", "quote", 300*time.Millisecond))
	s.LogUsage(usage.NewEntry("yahoo_finance", 429, "9432", "quote", 50*time.Millisecond))
	s.LogUsage(usage.NewEntry("yahoo_finance", 0, "9984", "quote", 0)) // transport failure
	s.LogUsage(usage.NewEntry("j_quants", 200, "8316", "statement", 150*time.Millisecond))

	stats, err := s.UsageStats(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, stats, 2)

	assert.Equal(t, "j_quants", stats[0].API)
	assert.Equal(t, 1, stats[0].Requests)
	assert.Equal(t, 0, stats[0].Errors)

	assert.Equal(t, "yahoo_finance", stats[1].API)
	assert.Equal(t, 4, stats[1].Requests)
	assert.Equal(t, 2, stats[1].Errors)
	assert.False(t, stats[1].LastRequestAt.IsZero())
}

func TestUsageStatsHonorsSince(t *testing.T) {
	s := openTestStore(t)

	old := usage.NewEntry("yahoo_finance", 200, "7203", "quote", 0)
	old.CreatedAt = time.Now().UTC().Add(-2 * time.Hour)
	s.LogUsage(old)
	s.LogUsage(usage.NewEntry("yahoo_finance", 200, "6758", "quote", 0))

	stats, err := s.UsageStats(context.Background(), time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, 1, stats[0].Requests)
}

func TestRecentEntriesNewestFirst(t *testing.T) {
	s := openTestStore(t)

	for i, sym := range []string{"7203", "6758", "9432"} {
		e := usage.NewEntry("yahoo_finance", 200, sym, "quote", 0)
		e.CreatedAt = time.Now().UTC().Add(time.Duration(i) * time.Second)
		s.LogUsage(e)
	}

	entries, err := s.RecentEntries(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "9432", entries[0].Symbol)
	assert.Equal(t, "6758", entries[1].Symbol)
}

func TestSaveAndLoadLimits(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	l := ratelimit.Limits{
		RequestsPerHour:   80,
		RequestsPerMinute: 10,
		BurstLimit:        5,
		BackoffEnabled:    true,
		BaseDelay:         time.Second,
		MaxDelay:          300 * time.Second,
	}
	require.NoError(t, s.SaveLimits(ctx, "yahoo_finance", l))

	// Overwrites replace, not duplicate.
	l.RequestsPerHour = 64
	require.NoError(t, s.SaveLimits(ctx, "yahoo_finance", l))

	got, err := s.LoadLimits(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 64, got["yahoo_finance"].RequestsPerHour)
	assert.Equal(t, time.Second, got["yahoo_finance"].BaseDelay)
	assert.True(t, got["yahoo_finance"].BackoffEnabled)
}
