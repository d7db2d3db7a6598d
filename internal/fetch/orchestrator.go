// Package fetch coordinates a quote's path from cache check through
// admission, provider call, normalization and usage recording. It owns
// batch sequencing and retries; per-request quota math stays in ratelimit.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stockwatchdog/marketdata/internal/adapters"
	"github.com/stockwatchdog/marketdata/internal/cache"
	"github.com/stockwatchdog/marketdata/internal/marketdata"
	"github.com/stockwatchdog/marketdata/internal/observ"
	"github.com/stockwatchdog/marketdata/internal/ratelimit"
	"github.com/stockwatchdog/marketdata/internal/usage"
)

const (
	defaultDelayBetween = time.Second
	defaultMaxRetries   = 3
	defaultCooldown     = 60 * time.Second
)

// RateLimitError reports an admission denial. WaitSeconds is the
// suggested wait before trying again.
type RateLimitError struct {
	API         string
	WaitSeconds float64
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited on %s, retry in %.1fs", e.API, e.WaitSeconds)
}

// Config tunes batch fetching.
type Config struct {
	DelayBetween time.Duration
	MaxRetries   int
}

// Orchestrator runs fetches against one provider under admission control.
type Orchestrator struct {
	provider adapters.QuoteProvider
	manager  *ratelimit.Manager
	cache    *cache.Cache
	sink     usage.Sink

	delayBetween time.Duration
	maxRetries   int
	cooldown     time.Duration
}

func NewOrchestrator(provider adapters.QuoteProvider, manager *ratelimit.Manager, c *cache.Cache, sink usage.Sink, cfg Config) *Orchestrator {
	if sink == nil {
		sink = usage.NopSink{}
	}
	if cfg.DelayBetween <= 0 {
		cfg.DelayBetween = defaultDelayBetween
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	return &Orchestrator{
		provider:     provider,
		manager:      manager,
		cache:        c,
		sink:         sink,
		delayBetween: cfg.DelayBetween,
		maxRetries:   cfg.MaxRetries,
		cooldown:     defaultCooldown,
	}
}

// Fetch returns the snapshot for one symbol. The cache is consulted first
// unless forceRefresh is set; a fresh fetch consumes an admission slot.
func (o *Orchestrator) Fetch(ctx context.Context, symbol string, p ratelimit.Priority, forceRefresh bool) (*marketdata.Snapshot, error) {
	api := o.provider.Name()
	sym := marketdata.NormalizeSymbol(symbol)
	if sym == "" {
		return nil, adapters.NewBadSymbolError(api, symbol, "unrecognized symbol")
	}

	if !forceRefresh {
		if snap, ok := o.cache.Get(sym); ok {
			return snap, nil
		}
	}

	if allowed, wait := o.manager.Admit(api, p); !allowed {
		return nil, &RateLimitError{API: api, WaitSeconds: wait}
	}
	return o.doFetch(ctx, sym, "quote")
}

// RunQueued executes a request drained from the admission queue. The
// drain already consumed the admission slot, so this goes straight to
// the provider.
func (o *Orchestrator) RunQueued(ctx context.Context, r *ratelimit.Request) {
	requestType := r.RequestType
	if requestType == "" {
		requestType = "quote"
	}
	if _, err := o.doFetch(ctx, r.Symbol, requestType); err != nil {
		observ.Warn("queued_fetch_failed", map[string]any{
			"api": r.API, "symbol": r.Symbol, "error": err.Error(),
		})
	}
}

// doFetch runs the provider call for an already-admitted request and
// settles the aftermath: backoff on classified failures, cache and usage
// on success.
func (o *Orchestrator) doFetch(ctx context.Context, symbol, requestType string) (*marketdata.Snapshot, error) {
	api := o.provider.Name()
	start := time.Now()
	raw, err := o.provider.FetchQuote(ctx, symbol)
	elapsed := time.Since(start)

	if err != nil {
		status := o.settleFailure(api, err)
		o.sink.LogUsage(usage.NewEntry(api, status, symbol, requestType, elapsed))
		observ.RecordFetch(api, "error", elapsed)
		observ.Warn("fetch_failed", map[string]any{
			"api": api, "symbol": symbol, "error": err.Error(),
		})
		return nil, err
	}

	snap, err := marketdata.Normalize(raw)
	if err != nil {
		o.sink.LogUsage(usage.NewEntry(api, 200, symbol, requestType, elapsed))
		observ.RecordFetch(api, "error", elapsed)
		return nil, adapters.NewBadDataError(api, symbol, "normalization failed", err)
	}

	o.cache.Put(symbol, snap)
	o.sink.LogUsage(usage.NewEntry(api, 200, symbol, requestType, elapsed))
	observ.RecordFetch(api, "success", elapsed)
	observ.Log("fetch_ok", map[string]any{
		"api": api, "symbol": symbol, "elapsed_ms": elapsed.Milliseconds(), "warnings": len(snap.Warnings),
	})
	return snap, nil
}

// settleFailure maps a provider failure onto backoff policy and returns
// the HTTP status to record.
func (o *Orchestrator) settleFailure(api string, err error) int {
	var fe *adapters.FetchError
	if !errors.As(err, &fe) {
		return 0
	}
	switch fe.Kind {
	case adapters.ErrKindRateLimited:
		o.manager.OnFailure(api, ratelimit.FailureRateLimited)
	case adapters.ErrKindServerError:
		o.manager.OnFailure(api, ratelimit.FailureServerError)
	case adapters.ErrKindForbidden:
		o.manager.OnFailure(api, ratelimit.FailureForbidden)
	}
	return fe.Status
}

// FetchMany fetches a batch sequentially with a pause between requests.
// Failed symbols are retried on later passes with the pause doubled each
// time; an admission denial pauses the whole batch for a cooldown. The
// returned slice holds the symbols that never produced a snapshot.
func (o *Orchestrator) FetchMany(ctx context.Context, symbols []string, p ratelimit.Priority) (map[string]*marketdata.Snapshot, []string) {
	api := o.provider.Name()
	results := make(map[string]*marketdata.Snapshot, len(symbols))

	var pending, invalid []string
	seen := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		sym := marketdata.NormalizeSymbol(s)
		if sym == "" {
			observ.Warn("skip_invalid_symbol", map[string]any{"symbol": s})
			invalid = append(invalid, s)
			continue
		}
		if !seen[sym] {
			seen[sym] = true
			pending = append(pending, sym)
		}
	}

	delay := o.delayBetween
	for pass := 0; pass < o.maxRetries && len(pending) > 0; pass++ {
		if pass > 0 {
			observ.Log("batch_retry", map[string]any{
				"api": api, "pass": pass + 1, "remaining": len(pending), "delay_ms": delay.Milliseconds(),
			})
		}
		var retry []string
		for i, sym := range pending {
			snap, err := o.Fetch(ctx, sym, p, false)
			if err == nil {
				results[sym] = snap
				if !sleepCtx(ctx, delay) {
					return results, abandon(invalid, retry, pending[i+1:])
				}
				continue
			}

			retry = append(retry, sym)
			var rle *RateLimitError
			if errors.As(err, &rle) {
				observ.Warn("batch_cooldown", map[string]any{
					"api": api, "symbol": sym, "wait_hint": rle.WaitSeconds,
				})
				if !sleepCtx(ctx, o.cooldown) {
					return results, abandon(invalid, retry, pending[i+1:])
				}
				continue
			}
			if ctx.Err() != nil {
				return results, abandon(invalid, retry, pending[i+1:])
			}
		}
		pending = retry
		delay *= 2
	}

	return results, append(invalid, pending...)
}

// abandon collects everything a cancelled batch leaves unfetched.
func abandon(invalid, retry, rest []string) []string {
	out := append([]string{}, invalid...)
	out = append(out, retry...)
	return append(out, rest...)
}

// sleepCtx pauses for d, returning false if the context ends first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
