package adapters

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/stockwatchdog/marketdata/internal/marketdata"
)

// StubProvider serves deterministic quotes without touching the network.
// Unknown symbols get values derived from the symbol code, so any valid
// four-digit code resolves. Failures can be scripted per symbol for
// exercising the backoff paths in development.
type StubProvider struct {
	mu       sync.Mutex
	quotes   map[string]marketdata.RawQuote
	failures map[string][]error
	latency  time.Duration
	calls    int
}

func NewStubProvider() *StubProvider {
	return &StubProvider{
		quotes: map[string]marketdata.RawQuote{
			"7203": stubQuote("7203", "Toyota Motor Corporation", 2910.0, 10.8, 1.21, 0.0265),
			"6758": stubQuote("6758", "Sony Group Corporation", 13650.0, 18.9, 2.95, 0.0071),
			"9432": stubQuote("9432", "Nippon Telegraph and Telephone", 151.2, 11.3, 1.54, 0.0344),
			"8316": stubQuote("8316", "Sumitomo Mitsui Financial Group", 9870.0, 12.1, 0.92, 0.0365),
			"9984": stubQuote("9984", "SoftBank Group Corp", 8120.0, 0, 1.12, 0.0054),
		},
		failures: make(map[string][]error),
		latency:  50 * time.Millisecond,
	}
}

func (p *StubProvider) Name() string { return apiYahoo }

// SetQuote overrides the canned quote for a symbol.
func (p *StubProvider) SetQuote(symbol string, q marketdata.RawQuote) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.quotes[symbol] = q
}

// FailNext scripts an error for the next fetch of symbol. Multiple calls
// queue up; each fetch consumes one.
func (p *StubProvider) FailNext(symbol string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures[symbol] = append(p.failures[symbol], err)
}

// Calls reports how many fetches have been made.
func (p *StubProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func (p *StubProvider) FetchQuote(ctx context.Context, symbol string) (marketdata.RawQuote, error) {
	select {
	case <-time.After(p.latency):
	case <-ctx.Done():
		return marketdata.RawQuote{}, NewNetworkError(apiYahoo, symbol, "fetch cancelled", ctx.Err())
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++

	if errs := p.failures[symbol]; len(errs) > 0 {
		err := errs[0]
		p.failures[symbol] = errs[1:]
		return marketdata.RawQuote{}, err
	}

	if q, ok := p.quotes[symbol]; ok {
		q.FetchedAt = time.Now()
		return q, nil
	}

	code, err := strconv.Atoi(symbol)
	if err != nil || len(symbol) != 4 {
		return marketdata.RawQuote{}, NewBadSymbolError(apiYahoo, symbol, "unrecognized symbol")
	}
	price := 500.0 + float64(code%5000)
	pe := 8.0 + float64(code%30)
	pb := 0.8 + float64(code%25)/10
	yield := 0.01 + float64(code%40)/1000
	q := stubQuote(symbol, "Stub Company "+symbol, price, pe, pb, yield)
	q.FetchedAt = time.Now()
	return q, nil
}

func stubQuote(symbol, name string, price, pe, pb, yield float64) marketdata.RawQuote {
	shares := 1.2e9
	mcap := price * shares
	q := marketdata.RawQuote{
		Symbol:            symbol,
		LongName:          name,
		Currency:          "JPY",
		Exchange:          "Tokyo",
		CurrentPrice:      f64(price),
		PriceToBook:       f64(pb),
		MarketCap:         f64(mcap),
		SharesOutstanding: f64(shares),
		ReturnOnEquity:    f64(0.09),
	}
	if pe > 0 {
		q.TrailingPE = f64(pe)
	}
	if yield > 0 {
		q.DividendYield = f64(yield)
	}
	return q
}

func f64(v float64) *float64 { return &v }
