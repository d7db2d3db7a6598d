package adapters

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testYahooConfig(baseURL string) YahooConfig {
	return YahooConfig{
		BaseURL:           baseURL,
		TimeoutMs:         2000,
		RequestsPerMinute: 600,
		BurstLimit:        10,
	}
}

func TestYahooFetchQuoteParsesResponse(t *testing.T) {
	var gotPath, gotSymbols string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotSymbols = r.URL.Query().Get("symbols")
		fmt.Fprint(w, `{"quoteResponse":{"result":[{
			"symbol":"7203.T",
			"longName":"Toyota Motor Corporation",
			"currency":"JPY",
			"fullExchangeName":"Tokyo",
			"regularMarketPrice":2910.5,
			"trailingPE":10.8,
			"priceToBook":1.21,
			"marketCap":47000000000000,
			"sharesOutstanding":16200000000,
			"trailingAnnualDividendYield":0.0265
		}],"error":null}}`)
	}))
	defer srv.Close()

	p := NewYahooProvider(testYahooConfig(srv.URL))
	q, err := p.FetchQuote(context.Background(), "7203")
	require.NoError(t, err)

	assert.Equal(t, "/v7/finance/quote", gotPath)
	assert.Equal(t, "7203.T", gotSymbols)
	assert.Equal(t, "7203", q.Symbol)
	assert.Equal(t, "Toyota Motor Corporation", q.LongName)
	assert.Equal(t, "JPY", q.Currency)
	require.NotNil(t, q.RegularMarketPrice)
	assert.Equal(t, 2910.5, *q.RegularMarketPrice)
	require.NotNil(t, q.DividendYield)
	assert.Equal(t, 0.0265, *q.DividendYield)
	assert.False(t, q.FetchedAt.IsZero())
}

func TestYahooFetchQuoteClassifiesStatus(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		wantKind string
	}{
		{"rate limited", http.StatusTooManyRequests, ErrKindRateLimited},
		{"forbidden", http.StatusForbidden, ErrKindForbidden},
		{"unauthorized", http.StatusUnauthorized, ErrKindForbidden},
		{"not found", http.StatusNotFound, ErrKindNotFound},
		{"server error", http.StatusInternalServerError, ErrKindServerError},
		{"bad gateway", http.StatusBadGateway, ErrKindServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			p := NewYahooProvider(testYahooConfig(srv.URL))
			_, err := p.FetchQuote(context.Background(), "7203")
			require.Error(t, err)

			var fe *FetchError
			require.True(t, errors.As(err, &fe), "error type = %T", err)
			assert.Equal(t, tt.wantKind, fe.Kind)
			assert.Equal(t, "yahoo_finance", fe.API)
		})
	}
}

func TestYahooFetchQuoteEmptyResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"quoteResponse":{"result":[],"error":null}}`)
	}))
	defer srv.Close()

	p := NewYahooProvider(testYahooConfig(srv.URL))
	_, err := p.FetchQuote(context.Background(), "7203")
	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, ErrKindNotFound, fe.Kind)
}

func TestYahooFetchQuoteRejectsBadSymbolLocally(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer srv.Close()

	p := NewYahooProvider(testYahooConfig(srv.URL))
	_, err := p.FetchQuote(context.Background(), "not-a-code")
	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, ErrKindBadSymbol, fe.Kind)
	assert.Equal(t, 0, calls, "invalid symbol must not reach the provider")
}

func TestStubProviderDeterministicQuotes(t *testing.T) {
	p := NewStubProvider()
	p.latency = 0

	q, err := p.FetchQuote(context.Background(), "7203")
	require.NoError(t, err)
	assert.Equal(t, "Toyota Motor Corporation", q.LongName)

	// Symbols without canned data still resolve deterministically.
	q1, err := p.FetchQuote(context.Background(), "4063")
	require.NoError(t, err)
	q2, err := p.FetchQuote(context.Background(), "4063")
	require.NoError(t, err)
	assert.Equal(t, *q1.CurrentPrice, *q2.CurrentPrice)

	_, err = p.FetchQuote(context.Background(), "ABC")
	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, ErrKindBadSymbol, fe.Kind)
}

func TestStubProviderScriptedFailures(t *testing.T) {
	p := NewStubProvider()
	p.latency = 0
	p.FailNext("7203", NewRateLimitedError(apiYahoo, "7203", "scripted"))

	_, err := p.FetchQuote(context.Background(), "7203")
	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, ErrKindRateLimited, fe.Kind)

	_, err = p.FetchQuote(context.Background(), "7203")
	assert.NoError(t, err, "scripted failure should be consumed after one fetch")
	assert.Equal(t, 2, p.Calls())
}
