// Package source defines the contract every upstream price provider
// implements and the errors they report.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"pricefeed/internal/quote"
)

var (
	// ErrUnsupported is returned when a source is asked for a symbol it does
	// not answer.
	ErrUnsupported = errors.New("symbol not supported by source")
	// ErrNotFound is returned when the provider knows nothing about the symbol.
	ErrNotFound = errors.New("symbol not found")
	// ErrMalformed is returned when the provider payload cannot be decoded
	// into a quote.
	ErrMalformed = errors.New("malformed provider payload")
)

// Source answers single-symbol quote requests for one upstream provider.
//
//go:generate mockgen -package=fetcher_test -destination=../fetcher/mock_source_test.go -source=source.go Source
type Source interface {
	// Name identifies the source in quotes and logs.
	Name() string
	// Supports reports whether the source can answer symbol. It must not
	// perform I/O.
	Supports(symbol string) bool
	// Fetch retrieves the current quote for symbol.
	Fetch(ctx context.Context, symbol string) (quote.Quote, error)
}

// Failure records why a symbol could not be resolved.
type Failure struct {
	Symbol string
	Err    error
}

// BatchResult holds the outcome of a multi-symbol request. Successful and
// Failed are disjoint and each keeps the request order.
type BatchResult struct {
	Successful []quote.Quote
	Failed     []Failure
}

// Batcher is implemented by sources that can answer many symbols in one
// round trip.
type Batcher interface {
	FetchBatch(ctx context.Context, symbols []string) (BatchResult, error)
}

// StatusError is returned for non-2xx upstream replies.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status code: %d", e.Code)
	}
	return fmt.Sprintf("unexpected status code: %d: %s", e.Code, e.Body)
}

// CheckStatus returns a *StatusError when res is not a 2xx reply. The first
// 2KiB of the body are kept for diagnostics.
func CheckStatus(res *http.Response) error {
	if res.StatusCode >= 200 && res.StatusCode < 300 {
		return nil
	}
	b, _ := io.ReadAll(io.LimitReader(res.Body, 2<<10))
	return &StatusError{Code: res.StatusCode, Body: strings.TrimSpace(string(b))}
}

// cryptoTickers is the fixed set of cryptocurrency tickers routed to the
// crypto provider.
var cryptoTickers = map[string]struct{}{
	"BTC": {}, "ETH": {}, "SOL": {}, "ADA": {}, "DOGE": {}, "XRP": {}, "LTC": {},
	"DOT": {}, "BNB": {}, "AVAX": {}, "MATIC": {}, "LINK": {}, "USDT": {}, "USDC": {},
}

// IsCrypto reports whether symbol is one of the known cryptocurrency tickers.
func IsCrypto(symbol string) bool {
	_, ok := cryptoTickers[quote.NormalizeSymbol(symbol)]
	return ok
}

// CryptoTickers returns the known cryptocurrency tickers.
func CryptoTickers() []string {
	out := make([]string, 0, len(cryptoTickers))
	for t := range cryptoTickers {
		out = append(out, t)
	}
	return out
}
