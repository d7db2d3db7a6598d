// Command backfill fetches a batch of symbols once and exits. It is meant
// for seeding the cache and the usage store before the daemon takes over,
// or for ad-hoc pulls from a cron job.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/stockwatchdog/marketdata/internal/adapters"
	"github.com/stockwatchdog/marketdata/internal/cache"
	"github.com/stockwatchdog/marketdata/internal/config"
	"github.com/stockwatchdog/marketdata/internal/fetch"
	"github.com/stockwatchdog/marketdata/internal/observ"
	"github.com/stockwatchdog/marketdata/internal/ratelimit"
	"github.com/stockwatchdog/marketdata/internal/store"
	"github.com/stockwatchdog/marketdata/internal/usage"
)

func main() {
	var cfgPath string
	var symbolFile string
	var priorityName string
	flag.StringVar(&cfgPath, "config", "", "config path (yaml); empty runs built-in defaults")
	flag.StringVar(&symbolFile, "file", "", "file with one symbol per line; csv rows use the first column")
	flag.StringVar(&priorityName, "priority", "high", "request priority: low, normal, high, critical")
	flag.Parse()

	symbols := flag.Args()
	if symbolFile != "" {
		fromFile, err := readSymbolFile(symbolFile)
		if err != nil {
			log.Fatalf("read symbol file: %v", err)
		}
		symbols = append(symbols, fromFile...)
	}
	if len(symbols) == 0 {
		fmt.Fprintln(os.Stderr, "usage: backfill [-config path] [-file symbols.txt] [-priority high] [symbol ...]")
		os.Exit(2)
	}

	p, err := ratelimit.ParsePriority(priorityName)
	if err != nil {
		log.Fatalf("bad priority: %v", err)
	}

	cfg := config.Defaults()
	if cfgPath != "" {
		cfg, err = config.Load(cfgPath)
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
	}
	if err := observ.Init(cfg.LogLevel); err != nil {
		log.Fatalf("init logging: %v", err)
	}
	defer observ.Sync()

	limits := make(map[string]ratelimit.Limits, len(cfg.APIs))
	for name, l := range cfg.APIs {
		limits[name] = ratelimit.Limits{
			RequestsPerHour:   l.RequestsPerHour,
			RequestsPerMinute: l.RequestsPerMinute,
			BurstLimit:        l.BurstLimit,
			BackoffEnabled:    l.BackoffOn(),
			BaseDelay:         time.Duration(l.BaseDelaySeconds * float64(time.Second)),
			MaxDelay:          time.Duration(l.MaxDelaySeconds * float64(time.Second)),
		}
	}
	mgr := ratelimit.NewManager(limits)

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

	var sinks usage.Multi
	if cfg.Usage.Path != "" {
		fs, err := usage.NewFileSink(cfg.Usage.Path)
		if err != nil {
			log.Fatalf("open usage file: %v", err)
		}
		sinks = append(sinks, fs)
	}
	if cfg.Store.Path != "" {
		st, err := store.Open(cfg.Store.Path)
		if err != nil {
			log.Fatalf("open store: %v", err)
		}
		defer st.Close()
		sinks = append(sinks, st)
	}
	var sink usage.Sink
	if len(sinks) > 0 {
		sink = sinks
	}

	quoteCache := cache.New(time.Duration(cfg.Cache.TTLSeconds)*time.Second, cfg.Cache.MaxEntries)
	orch := fetch.NewOrchestrator(provider, mgr, quoteCache, sink, fetch.Config{
		DelayBetween: time.Duration(cfg.Fetch.DelayBetweenMs) * time.Millisecond,
		MaxRetries:   cfg.Fetch.MaxRetries,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	started := time.Now()
	results, failed := orch.FetchMany(ctx, symbols, p)

	fetched := make([]string, 0, len(results))
	for symbol := range results {
		fetched = append(fetched, symbol)
	}
	sort.Strings(fetched)

	fmt.Printf("fetched %d/%d symbols in %s\n", len(results), len(results)+len(failed), time.Since(started).Round(time.Millisecond))
	for _, symbol := range fetched {
		s := results[symbol]
		price := 0.0
		if s.CurrentPrice != nil {
			price = *s.CurrentPrice
		}
		fmt.Printf("  %s  %s  %.1f %s\n", symbol, s.Name, price, s.Currency)
	}
	if len(failed) > 0 {
		fmt.Printf("failed: %s\n", strings.Join(failed, ", "))
		os.Exit(1)
	}
}

func readSymbolFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var symbols []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if i := strings.IndexByte(line, ','); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}
		symbols = append(symbols, line)
	}
	return symbols, scanner.Err()
}
