package fetch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockwatchdog/marketdata/internal/config"
	"github.com/stockwatchdog/marketdata/internal/ratelimit"
)

func TestDrainOnceExecutesQueuedInPriorityOrder(t *testing.T) {
	p := newFakeProvider()
	limits := testLimits()
	l := limits["yahoo_finance"]
	l.RequestsPerHour = 0
	limits["yahoo_finance"] = l
	o, mgr := newTestOrchestrator(p, limits, nil)

	require.False(t, mgr.RequestSlot("yahoo_finance", "9984", "quote", ratelimit.PriorityLow))
	require.False(t, mgr.RequestSlot("yahoo_finance", "7203", "quote", ratelimit.PriorityCritical))

	s := NewScheduler(o, mgr, time.Second)

	// No room yet: the queue must stay put.
	s.drainOnce(context.Background())
	assert.Empty(t, p.calls)

	// Restoring quota opens the gate.
	restored := testLimits()["yahoo_finance"]
	mgr.SetLimits("yahoo_finance", restored)
	s.drainOnce(context.Background())

	require.Equal(t, []string{"7203", "9984"}, p.calls, "critical must drain before low")
	assert.Equal(t, 0, mgr.Status()["yahoo_finance"].TotalQueued)

	// Drained results land in the cache for later reads.
	snap, ok := o.cache.Get("7203")
	require.True(t, ok)
	assert.Equal(t, "7203", snap.Symbol)
}

func TestRefresherRotatesThroughWatchlist(t *testing.T) {
	p := newFakeProvider()
	o, _ := newTestOrchestrator(p, testLimits(), nil)

	r := NewRefresher(o, config.Strategy{
		Name:            "normal",
		IntervalSeconds: 1800,
		BatchSize:       2,
		Priority:        "normal",
	}, []string{"7203", "6758", "9432"})

	r.refreshOnce(context.Background())
	assert.Equal(t, []string{"7203", "6758"}, p.calls)

	// The second tick wraps: 9432 then 7203, which is still warm in the
	// cache and costs no provider call.
	r.refreshOnce(context.Background())
	assert.Equal(t, []string{"7203", "6758", "9432"}, p.calls)
}

func TestRefresherUpdateSwapsStrategyAndSymbols(t *testing.T) {
	p := newFakeProvider()
	o, _ := newTestOrchestrator(p, testLimits(), nil)

	r := NewRefresher(o, config.StrategyByName("conservative"), []string{"7203"})
	r.Update(config.StrategyByName("realtime"), []string{"6758"})

	r.refreshOnce(context.Background())
	assert.Equal(t, 1, p.callCount("6758"))
	assert.Equal(t, 0, p.callCount("7203"))
}
