// Package wire defines the JSON shapes of the batched price contract shared by
// the pricefeed server and the proxy source.
package wire

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"pricefeed/internal/quote"
	"pricefeed/internal/source"
)

// Price is the single-symbol reply.
type Price struct {
	Symbol    string   `json:"symbol"`
	Price     float64  `json:"price"`
	Source    string   `json:"source"`
	Timestamp int64    `json:"timestamp"` // unix milliseconds
	Metadata  Metadata `json:"metadata"`
}

// Metadata carries the native currency and the change versus previous close.
type Metadata struct {
	Currency      string  `json:"currency"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"changePercent"`
	MarketState   string  `json:"marketState,omitempty"`
	PreviousClose float64 `json:"previousClose"`
}

// BatchRequest is the body of POST /api/prices/batch.
type BatchRequest struct {
	Symbols []string `json:"symbols"`
}

// Failure reports a symbol that could not be resolved.
type Failure struct {
	Symbol string `json:"symbol"`
	Error  string `json:"error"`
}

// BatchResponse is the reply to a BatchRequest. Successful and Failed are
// parallel lists: each requested symbol appears in exactly one of them.
type BatchResponse struct {
	Successful []Price   `json:"successful"`
	Failed     []Failure `json:"failed"`
}

// ErrorResponse is returned with non-2xx replies.
type ErrorResponse struct {
	Error string `json:"error"`
}

// FromQuote converts q into its wire form. Native values are sent; receivers
// re-derive the display fields.
func FromQuote(q quote.Quote) Price {
	return Price{
		Symbol:    q.Symbol,
		Price:     q.Price.InexactFloat64(),
		Source:    q.Source,
		Timestamp: q.Timestamp.UnixMilli(),
		Metadata: Metadata{
			Currency:      q.Currency,
			Change:        q.Change.InexactFloat64(),
			ChangePercent: q.ChangePercent.InexactFloat64(),
			MarketState:   q.MarketState,
			PreviousClose: q.PreviousClose.InexactFloat64(),
		},
	}
}

// Quote validates p and builds the corresponding Quote.
func (p Price) Quote() (quote.Quote, error) {
	var ts time.Time
	if p.Timestamp > 0 {
		ts = time.UnixMilli(p.Timestamp)
	}
	return quote.New(quote.Raw{
		Symbol:        p.Symbol,
		Price:         decimal.NewFromFloat(p.Price),
		Currency:      p.Metadata.Currency,
		Change:        decimal.NewFromFloat(p.Metadata.Change),
		ChangePercent: decimal.NewFromFloat(p.Metadata.ChangePercent),
		PreviousClose: decimal.NewFromFloat(p.Metadata.PreviousClose),
		Timestamp:     ts,
		Source:        p.Source,
		MarketState:   p.Metadata.MarketState,
	})
}

// FromBatch converts a batch result into its wire form.
func FromBatch(r source.BatchResult) BatchResponse {
	out := BatchResponse{
		Successful: make([]Price, 0, len(r.Successful)),
		Failed:     make([]Failure, 0, len(r.Failed)),
	}
	for _, q := range r.Successful {
		out.Successful = append(out.Successful, FromQuote(q))
	}
	for _, f := range r.Failed {
		msg := "unknown error"
		if f.Err != nil {
			msg = f.Err.Error()
		}
		out.Failed = append(out.Failed, Failure{Symbol: f.Symbol, Error: msg})
	}
	return out
}

// Result converts r back into a batch result. Successful items that fail
// validation are reported as failures.
func (r BatchResponse) Result() source.BatchResult {
	var out source.BatchResult
	for _, p := range r.Successful {
		q, err := p.Quote()
		if err != nil {
			out.Failed = append(out.Failed, source.Failure{Symbol: p.Symbol, Err: fmt.Errorf("%w: %w", source.ErrMalformed, err)})
			continue
		}
		out.Successful = append(out.Successful, q)
	}
	for _, f := range r.Failed {
		out.Failed = append(out.Failed, source.Failure{Symbol: f.Symbol, Err: errors.New(f.Error)})
	}
	return out
}
