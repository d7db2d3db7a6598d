package adapters

import "fmt"

// Failure kinds carried by FetchError. The orchestrator maps these onto
// backoff policy, so a new kind needs a decision there too.
const (
	ErrKindNetwork     = "network"
	ErrKindTimeout     = "timeout"
	ErrKindRateLimited = "rate_limited"
	ErrKindServerError = "server_error"
	ErrKindForbidden   = "forbidden"
	ErrKindNotFound    = "not_found"
	ErrKindBadSymbol   = "bad_symbol"
	ErrKindBadData     = "bad_data"
)

// FetchError classifies a failed provider fetch. Status is the HTTP
// status that produced it, zero when the request never completed.
type FetchError struct {
	Kind    string
	API     string
	Symbol  string
	Status  int
	Message string
	Cause   error
}

func (e *FetchError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s error from %s for %s: %s (%v)", e.Kind, e.API, e.Symbol, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s error from %s for %s: %s", e.Kind, e.API, e.Symbol, e.Message)
}

func (e *FetchError) Unwrap() error {
	return e.Cause
}

func NewNetworkError(api, symbol, message string, cause error) *FetchError {
	return &FetchError{Kind: ErrKindNetwork, API: api, Symbol: symbol, Message: message, Cause: cause}
}

func NewTimeoutError(api, symbol string, cause error) *FetchError {
	return &FetchError{Kind: ErrKindTimeout, API: api, Symbol: symbol, Message: "request timed out", Cause: cause}
}

func NewRateLimitedError(api, symbol, message string) *FetchError {
	return &FetchError{Kind: ErrKindRateLimited, API: api, Symbol: symbol, Status: 429, Message: message}
}

func NewServerError(api, symbol string, status int) *FetchError {
	return &FetchError{Kind: ErrKindServerError, API: api, Symbol: symbol, Status: status, Message: fmt.Sprintf("HTTP %d", status)}
}

func NewForbiddenError(api, symbol string) *FetchError {
	return &FetchError{Kind: ErrKindForbidden, API: api, Symbol: symbol, Status: 403, Message: "access forbidden"}
}

func NewNotFoundError(api, symbol string) *FetchError {
	return &FetchError{Kind: ErrKindNotFound, API: api, Symbol: symbol, Status: 404, Message: "no data for symbol"}
}

func NewBadSymbolError(api, symbol, message string) *FetchError {
	return &FetchError{Kind: ErrKindBadSymbol, API: api, Symbol: symbol, Message: message}
}

func NewBadDataError(api, symbol, message string, cause error) *FetchError {
	return &FetchError{Kind: ErrKindBadData, API: api, Symbol: symbol, Message: message, Cause: cause}
}
