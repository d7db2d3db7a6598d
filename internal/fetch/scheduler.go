package fetch

import (
	"context"
	"sync"
	"time"

	"github.com/stockwatchdog/marketdata/internal/config"
	"github.com/stockwatchdog/marketdata/internal/observ"
	"github.com/stockwatchdog/marketdata/internal/ratelimit"
)

// Scheduler periodically drains queued requests once their api has
// admission room again.
type Scheduler struct {
	orch     *Orchestrator
	manager  *ratelimit.Manager
	interval time.Duration
}

func NewScheduler(orch *Orchestrator, manager *ratelimit.Manager, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Scheduler{orch: orch, manager: manager, interval: interval}
}

func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.drainOnce(ctx)
		}
	}
}

func (s *Scheduler) drainOnce(ctx context.Context) {
	for _, api := range s.manager.APIs() {
		for {
			r := s.manager.DrainNext(api)
			if r == nil {
				break
			}
			observ.Log("queue_drain", map[string]any{
				"api": api, "symbol": r.Symbol, "priority": r.Priority.String(),
			})
			s.orch.RunQueued(ctx, r)
			if ctx.Err() != nil {
				return
			}
		}
	}
}

// Refresher keeps watchlist symbols warm in the cache. Each tick fetches
// the next slice of the watchlist at the strategy's priority, rotating
// through the full list over successive ticks.
type Refresher struct {
	orch *Orchestrator

	mu       sync.Mutex
	strategy config.Strategy
	priority ratelimit.Priority
	symbols  []string
	offset   int
}

func NewRefresher(orch *Orchestrator, strategy config.Strategy, symbols []string) *Refresher {
	r := &Refresher{orch: orch}
	r.apply(strategy, symbols)
	return r
}

// Update swaps the strategy and watchlist. Takes effect from the next tick;
// the interval changes on the tick after that.
func (r *Refresher) Update(strategy config.Strategy, symbols []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.apply(strategy, symbols)
}

func (r *Refresher) apply(strategy config.Strategy, symbols []string) {
	p, err := ratelimit.ParsePriority(strategy.Priority)
	if err != nil {
		p = ratelimit.PriorityNormal
	}
	r.strategy = strategy
	r.priority = p
	r.symbols = append([]string(nil), symbols...)
	if r.offset >= len(r.symbols) {
		r.offset = 0
	}
}

func (r *Refresher) interval() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.strategy.IntervalSeconds <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(r.strategy.IntervalSeconds) * time.Second
}

func (r *Refresher) Run(ctx context.Context) {
	r.refreshOnce(ctx)
	for {
		timer := time.NewTimer(r.interval())
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			r.refreshOnce(ctx)
		}
	}
}

// nextBatch returns the next rotation slice of the watchlist.
func (r *Refresher) nextBatch() ([]string, ratelimit.Priority) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.symbols)
	if n == 0 {
		return nil, r.priority
	}
	size := r.strategy.BatchSize
	if size <= 0 || size > n {
		size = n
	}
	batch := make([]string, 0, size)
	for i := 0; i < size; i++ {
		batch = append(batch, r.symbols[(r.offset+i)%n])
	}
	r.offset = (r.offset + size) % n
	return batch, r.priority
}

func (r *Refresher) refreshOnce(ctx context.Context) {
	batch, priority := r.nextBatch()
	if len(batch) == 0 {
		return
	}
	observ.Log("refresh_batch", map[string]any{
		"symbols": len(batch), "priority": priority.String(),
	})
	results, failed := r.orch.FetchMany(ctx, batch, priority)
	if len(failed) > 0 {
		observ.Warn("refresh_incomplete", map[string]any{
			"fetched": len(results), "failed": len(failed),
		})
	}
}
