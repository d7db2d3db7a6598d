// Package adapters talks to the upstream market-data providers. Everything
// here returns raw provider payloads; normalization happens one layer up.
package adapters

import (
	"context"

	"github.com/stockwatchdog/marketdata/internal/marketdata"
)

// QuoteProvider fetches one symbol's raw quote from an upstream source.
// Implementations classify failures as *FetchError so callers can apply
// the right backoff.
type QuoteProvider interface {
	// Name is the api name the provider's traffic is accounted under.
	Name() string
	FetchQuote(ctx context.Context, symbol string) (marketdata.RawQuote, error)
}
