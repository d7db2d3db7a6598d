package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/stockwatchdog/marketdata/internal/marketdata"
)

const apiYahoo = "yahoo_finance"

// YahooConfig holds configuration for the Yahoo Finance provider.
type YahooConfig struct {
	BaseURL           string
	TimeoutMs         int
	RequestsPerMinute int
	BurstLimit        int
	UserAgent         string
}

// YahooProvider fetches quotes from the Yahoo Finance public quote API.
// A token-bucket limiter smooths bursts below the provider's tolerance;
// quota accounting and backoff live in the admission layer, not here.
type YahooProvider struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	limiter    *rate.Limiter
}

func NewYahooProvider(config YahooConfig) *YahooProvider {
	if config.BaseURL == "" {
		config.BaseURL = "https://query1.finance.yahoo.com"
	}
	if config.TimeoutMs <= 0 {
		config.TimeoutMs = 10000
	}
	if config.RequestsPerMinute <= 0 {
		config.RequestsPerMinute = 10
	}
	if config.BurstLimit <= 0 {
		config.BurstLimit = 5
	}
	if config.UserAgent == "" {
		config.UserAgent = "stockwatchdog/1.0"
	}
	return &YahooProvider{
		baseURL:   config.BaseURL,
		userAgent: config.UserAgent,
		httpClient: &http.Client{
			Timeout: time.Duration(config.TimeoutMs) * time.Millisecond,
		},
		limiter: rate.NewLimiter(rate.Limit(float64(config.RequestsPerMinute)/60), config.BurstLimit),
	}
}

func (y *YahooProvider) Name() string { return apiYahoo }

// FetchQuote fetches a single symbol. Retries are the caller's concern;
// one call is one upstream request.
func (y *YahooProvider) FetchQuote(ctx context.Context, symbol string) (marketdata.RawQuote, error) {
	ySym, err := marketdata.YahooSymbol(symbol)
	if err != nil {
		return marketdata.RawQuote{}, NewBadSymbolError(apiYahoo, symbol, err.Error())
	}

	if err := y.limiter.Wait(ctx); err != nil {
		return marketdata.RawQuote{}, NewNetworkError(apiYahoo, symbol, "burst limiter wait cancelled", err)
	}

	params := url.Values{"symbols": {ySym}}
	requestURL := y.baseURL + "/v7/finance/quote?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return marketdata.RawQuote{}, NewNetworkError(apiYahoo, symbol, "failed to create request", err)
	}
	req.Header.Set("User-Agent", y.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := y.httpClient.Do(req)
	if err != nil {
		var ne net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
			return marketdata.RawQuote{}, NewTimeoutError(apiYahoo, symbol, err)
		}
		return marketdata.RawQuote{}, NewNetworkError(apiYahoo, symbol, "request failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return marketdata.RawQuote{}, NewRateLimitedError(apiYahoo, symbol, "quote rate limit exceeded")
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized:
		return marketdata.RawQuote{}, NewForbiddenError(apiYahoo, symbol)
	case resp.StatusCode == http.StatusNotFound:
		return marketdata.RawQuote{}, NewNotFoundError(apiYahoo, symbol)
	case resp.StatusCode >= 500:
		return marketdata.RawQuote{}, NewServerError(apiYahoo, symbol, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return marketdata.RawQuote{}, NewBadDataError(apiYahoo, symbol, fmt.Sprintf("unexpected HTTP %d", resp.StatusCode), nil)
	}

	return y.parseQuoteResponse(resp.Body, symbol)
}

func (y *YahooProvider) parseQuoteResponse(body io.Reader, symbol string) (marketdata.RawQuote, error) {
	var response struct {
		QuoteResponse struct {
			Result []struct {
				Symbol                      string   `json:"symbol"`
				LongName                    string   `json:"longName"`
				ShortName                   string   `json:"shortName"`
				Currency                    string   `json:"currency"`
				FullExchangeName            string   `json:"fullExchangeName"`
				RegularMarketPrice          *float64 `json:"regularMarketPrice"`
				TrailingPE                  *float64 `json:"trailingPE"`
				PriceToBook                 *float64 `json:"priceToBook"`
				MarketCap                   *float64 `json:"marketCap"`
				SharesOutstanding           *float64 `json:"sharesOutstanding"`
				TrailingAnnualDividendYield *float64 `json:"trailingAnnualDividendYield"`
			} `json:"result"`
			Error *struct {
				Code        string `json:"code"`
				Description string `json:"description"`
			} `json:"error"`
		} `json:"quoteResponse"`
	}

	if err := json.NewDecoder(body).Decode(&response); err != nil {
		return marketdata.RawQuote{}, NewBadDataError(apiYahoo, symbol, "failed to parse response", err)
	}
	if e := response.QuoteResponse.Error; e != nil {
		return marketdata.RawQuote{}, NewBadDataError(apiYahoo, symbol, fmt.Sprintf("%s: %s", e.Code, e.Description), nil)
	}
	if len(response.QuoteResponse.Result) == 0 {
		return marketdata.RawQuote{}, NewNotFoundError(apiYahoo, symbol)
	}

	r := response.QuoteResponse.Result[0]
	name := r.LongName
	if name == "" {
		name = r.ShortName
	}
	return marketdata.RawQuote{
		Symbol:             symbol,
		LongName:           name,
		Currency:           r.Currency,
		Exchange:           r.FullExchangeName,
		RegularMarketPrice: r.RegularMarketPrice,
		TrailingPE:         r.TrailingPE,
		PriceToBook:        r.PriceToBook,
		MarketCap:          r.MarketCap,
		SharesOutstanding:  r.SharesOutstanding,
		DividendYield:      r.TrailingAnnualDividendYield,
		FetchedAt:          time.Now(),
	}, nil
}
