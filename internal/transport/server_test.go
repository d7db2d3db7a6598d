package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockwatchdog/marketdata/internal/adapters"
	"github.com/stockwatchdog/marketdata/internal/cache"
	"github.com/stockwatchdog/marketdata/internal/fetch"
	"github.com/stockwatchdog/marketdata/internal/marketdata"
	"github.com/stockwatchdog/marketdata/internal/ratelimit"
	"github.com/stockwatchdog/marketdata/internal/store"
	"github.com/stockwatchdog/marketdata/internal/usage"
)

type scriptedProvider struct {
	mu    sync.Mutex
	fails map[string]error
}

func (p *scriptedProvider) Name() string { return "yahoo_finance" }

func (p *scriptedProvider) FetchQuote(_ context.Context, symbol string) (marketdata.RawQuote, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err, ok := p.fails[symbol]; ok {
		return marketdata.RawQuote{}, err
	}
	price := 1234.5
	return marketdata.RawQuote{Symbol: symbol, CurrentPrice: &price}, nil
}

type testEnv struct {
	ts    *httptest.Server
	mgr   *ratelimit.Manager
	cache *cache.Cache
	prov  *scriptedProvider
}

func newTestEnv(t *testing.T, st *store.Store) *testEnv {
	t.Helper()
	prov := &scriptedProvider{fails: make(map[string]error)}
	mgr := ratelimit.NewManager(map[string]ratelimit.Limits{
		"yahoo_finance": {
			RequestsPerHour: 100,
			BackoffEnabled:  true,
			BaseDelay:       time.Second,
			MaxDelay:        300 * time.Second,
		},
	})
	c := cache.New(time.Hour, 100)
	var sink usage.Sink
	if st != nil {
		sink = st
	}
	orch := fetch.NewOrchestrator(prov, mgr, c, sink, fetch.Config{
		DelayBetween: time.Millisecond,
		MaxRetries:   1,
	})
	srv := NewServer(":0", mgr, c, orch, st)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return &testEnv{ts: ts, mgr: mgr, cache: c, prov: prov}
}

func getJSON(t *testing.T, url string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, nil)
	var body map[string]any
	resp := getJSON(t, env.ts.URL+"/healthz", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestQuoteEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)

	var snap marketdata.Snapshot
	resp := getJSON(t, env.ts.URL+"/api/v1/quotes/7203", &snap)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "7203", snap.Symbol)
	require.NotNil(t, snap.CurrentPrice)
	assert.Equal(t, 1234.5, *snap.CurrentPrice)
}

func TestQuoteEndpointRejectsUnknownPriority(t *testing.T) {
	env := newTestEnv(t, nil)
	resp := getJSON(t, env.ts.URL+"/api/v1/quotes/7203?priority=urgent", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestQuoteEndpointBadSymbol(t *testing.T) {
	env := newTestEnv(t, nil)
	resp := getJSON(t, env.ts.URL+"/api/v1/quotes/junk", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestQuoteEndpointAdmissionDenied(t *testing.T) {
	env := newTestEnv(t, nil)
	env.mgr.OnFailure("yahoo_finance", ratelimit.FailureForbidden)

	var body map[string]any
	resp := getJSON(t, env.ts.URL+"/api/v1/quotes/7203", &body)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
	assert.InDelta(t, 1800.0, body["wait_seconds"].(float64), 2.0)
}

func TestQuoteEndpointUpstreamFailure(t *testing.T) {
	env := newTestEnv(t, nil)
	env.prov.fails["7203"] = adapters.NewServerError("yahoo_finance", "7203", 503)

	resp := getJSON(t, env.ts.URL+"/api/v1/quotes/7203", nil)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestStatusEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)
	getJSON(t, env.ts.URL+"/api/v1/quotes/7203", nil)

	var body struct {
		APIs map[string]ratelimit.APIStatus `json:"apis"`
		Cache struct {
			Entries int `json:"entries"`
		} `json:"cache"`
	}
	resp := getJSON(t, env.ts.URL+"/api/v1/status", &body)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, body.APIs, "yahoo_finance")
	assert.Equal(t, 1, body.APIs["yahoo_finance"].RequestsLastHour)
	assert.Equal(t, 100, body.APIs["yahoo_finance"].HourlyLimit)
	assert.Equal(t, 1, body.Cache.Entries)
}

func TestUsageEndpointWithoutStore(t *testing.T) {
	env := newTestEnv(t, nil)
	resp := getJSON(t, env.ts.URL+"/api/v1/usage", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUsageEndpointWithStore(t *testing.T) {
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	env := newTestEnv(t, st)
	getJSON(t, env.ts.URL+"/api/v1/quotes/7203", nil)

	var body struct {
		Stats []store.APIUsageStat `json:"stats"`
	}
	resp := getJSON(t, env.ts.URL+"/api/v1/usage?since_hours=1", &body)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, body.Stats, 1)
	assert.Equal(t, "yahoo_finance", body.Stats[0].API)
	assert.Equal(t, 1, body.Stats[0].Requests)
}

func TestCacheClearEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)
	getJSON(t, env.ts.URL+"/api/v1/quotes/7203", nil)
	require.Equal(t, 1, env.cache.Len())

	resp, err := http.Post(env.ts.URL+"/api/v1/cache/clear", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 0, env.cache.Len())
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)
	resp, err := http.Get(env.ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
