package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/stockwatchdog/marketdata/internal/adapters"
	"github.com/stockwatchdog/marketdata/internal/cache"
	"github.com/stockwatchdog/marketdata/internal/config"
	"github.com/stockwatchdog/marketdata/internal/fetch"
	"github.com/stockwatchdog/marketdata/internal/observ"
	"github.com/stockwatchdog/marketdata/internal/ratelimit"
	"github.com/stockwatchdog/marketdata/internal/store"
	"github.com/stockwatchdog/marketdata/internal/transport"
	"github.com/stockwatchdog/marketdata/internal/usage"
)

func main() {
	var cfgPath string
	var addr string
	var logLevel string
	flag.StringVar(&cfgPath, "config", "", "config path (yaml); empty runs built-in defaults")
	flag.StringVar(&addr, "addr", "", "listen address (overrides config)")
	flag.StringVar(&logLevel, "log-level", "", "log level (overrides config)")
	flag.Parse()

	cfg := config.Defaults()
	if cfgPath != "" {
		var err error
		cfg, err = config.Load(cfgPath)
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	if err := observ.Init(cfg.LogLevel); err != nil {
		log.Fatalf("init logging: %v", err)
	}
	defer observ.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mgr := ratelimit.NewManager(toLimitsMap(cfg.APIs))
	quoteCache := cache.New(time.Duration(cfg.Cache.TTLSeconds)*time.Second, cfg.Cache.MaxEntries)

	var provider adapters.QuoteProvider
	switch cfg.Provider.Mode {
	case "live":
		yl := cfg.APIs["yahoo_finance"]
		provider = adapters.NewYahooProvider(adapters.YahooConfig{
			BaseURL:           cfg.Provider.BaseURL,
			TimeoutMs:         cfg.Provider.TimeoutMs,
			RequestsPerMinute: yl.RequestsPerMinute,
			BurstLimit:        yl.BurstLimit,
		})
	default:
		provider = adapters.NewStubProvider()
	}
	observ.Log("provider_selected", map[string]any{"mode": cfg.Provider.Mode})

	var sinks usage.Multi
	if cfg.Usage.Path != "" {
		fs, err := usage.NewFileSink(cfg.Usage.Path)
		if err != nil {
			log.Fatalf("open usage file: %v", err)
		}
		sinks = append(sinks, fs)
	}

	var st *store.Store
	if cfg.Store.Path != "" {
		var err error
		st, err = store.Open(cfg.Store.Path)
		if err != nil {
			log.Fatalf("open store: %v", err)
		}
		defer st.Close()
		sinks = append(sinks, st)
		mirrorLimits(ctx, st, mgr)
	}

	var sink usage.Sink
	if len(sinks) > 0 {
		async := usage.NewAsync(sinks, 256)
		defer async.Close()
		sink = async
	}

	orch := fetch.NewOrchestrator(provider, mgr, quoteCache, sink, fetch.Config{
		DelayBetween: time.Duration(cfg.Fetch.DelayBetweenMs) * time.Millisecond,
		MaxRetries:   cfg.Fetch.MaxRetries,
	})

	sched := fetch.NewScheduler(orch, mgr, time.Duration(cfg.DrainIntervalMs)*time.Millisecond)
	go sched.Run(ctx)

	var refresher *fetch.Refresher
	if cfg.Refresh.Enabled {
		refresher = fetch.NewRefresher(orch, config.StrategyByName(cfg.Refresh.Strategy), cfg.Refresh.Watchlist)
		go refresher.Run(ctx)
		observ.Log("refresh_enabled", map[string]any{
			"strategy": cfg.Refresh.Strategy, "watchlist": len(cfg.Refresh.Watchlist),
		})
	}

	if cfgPath != "" {
		err := config.Watch(ctx, cfgPath, func(next config.Root) {
			applyReload(ctx, next, mgr, refresher, st)
		})
		if err != nil {
			observ.Warn("config_watch_unavailable", map[string]any{"error": err.Error()})
		}
	}

	srv := transport.NewServer(cfg.Server.Addr, mgr, quoteCache, orch, st)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		observ.Log("shutdown_signal", map[string]any{"signal": sig.String()})
	case err := <-errCh:
		if err != nil {
			log.Fatalf("http server: %v", err)
		}
		return
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		observ.Error("shutdown_failed", map[string]any{"error": err.Error()})
	}
}

func toLimitsMap(apis map[string]config.Limit) map[string]ratelimit.Limits {
	out := make(map[string]ratelimit.Limits, len(apis))
	for name, l := range apis {
		out[name] = toLimits(l)
	}
	return out
}

func toLimits(l config.Limit) ratelimit.Limits {
	return ratelimit.Limits{
		RequestsPerHour:   l.RequestsPerHour,
		RequestsPerMinute: l.RequestsPerMinute,
		BurstLimit:        l.BurstLimit,
		BackoffEnabled:    l.BackoffOn(),
		BaseDelay:         time.Duration(l.BaseDelaySeconds * float64(time.Second)),
		MaxDelay:          time.Duration(l.MaxDelaySeconds * float64(time.Second)),
	}
}

// mirrorLimits records the effective limits in the store and flags drift
// against what a previous run persisted. The config file stays the source
// of truth.
func mirrorLimits(ctx context.Context, st *store.Store, mgr *ratelimit.Manager) {
	saved, err := st.LoadLimits(ctx)
	if err != nil {
		observ.Warn("limits_load_failed", map[string]any{"error": err.Error()})
		saved = nil
	}
	for _, api := range mgr.APIs() {
		l, ok := mgr.Limits(api)
		if !ok {
			continue
		}
		if prev, found := saved[api]; found && prev.RequestsPerHour != l.RequestsPerHour {
			observ.Warn("persisted_limits_differ", map[string]any{
				"api": api, "persisted": prev.RequestsPerHour, "configured": l.RequestsPerHour,
			})
		}
		if err := st.SaveLimits(ctx, api, l); err != nil {
			observ.Warn("limits_save_failed", map[string]any{"api": api, "error": err.Error()})
		}
	}
}

// applyReload pushes a reloaded config into the running components.
func applyReload(ctx context.Context, next config.Root, mgr *ratelimit.Manager, refresher *fetch.Refresher, st *store.Store) {
	for name, l := range next.APIs {
		mgr.SetLimits(name, toLimits(l))
		if st != nil {
			if err := st.SaveLimits(ctx, name, toLimits(l)); err != nil {
				observ.Warn("limits_save_failed", map[string]any{"api": name, "error": err.Error()})
			}
		}
	}
	if refresher != nil {
		refresher.Update(config.StrategyByName(next.Refresh.Strategy), next.Refresh.Watchlist)
	}
}
