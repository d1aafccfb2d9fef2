// Package quote holds the immutable price observation that flows through the
// pipeline.
package quote

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"pricefeed/internal/currency"
)

// ErrInvalid is returned by New when the raw observation cannot form a Quote.
var ErrInvalid = errors.New("invalid quote")

// Raw is an observation as reported by a provider, before normalization.
type Raw struct {
	Symbol        string
	Price         decimal.Decimal
	Currency      string
	Change        decimal.Decimal
	ChangePercent decimal.Decimal
	PreviousClose decimal.Decimal
	Timestamp     time.Time
	Source        string
	MarketState   string
}

// Quote is a single resolved price observation. Quotes are values: a newer
// Quote for the same symbol supersedes an older one, nothing edits it in place.
type Quote struct {
	Symbol string `json:"symbol"`

	// Native fields, as quoted by the provider.
	Price         decimal.Decimal `json:"price"`
	Currency      string          `json:"currency"`
	Change        decimal.Decimal `json:"change"`
	PreviousClose decimal.Decimal `json:"previous_close"`

	// Display fields, always derived from the native ones.
	DisplayPrice         decimal.Decimal `json:"display_price"`
	DisplayChange        decimal.Decimal `json:"display_change"`
	DisplayPreviousClose decimal.Decimal `json:"display_previous_close"`
	DisplayCurrency      string          `json:"display_currency"`

	ChangePercent decimal.Decimal `json:"change_percent"`
	Timestamp     time.Time       `json:"timestamp"`
	Source        string          `json:"source"`
	MarketState   string          `json:"market_state,omitempty"`
}

// New validates r and derives the display fields. Minor-unit currencies are
// normalized identically for price, change and previous close.
func New(r Raw) (Quote, error) {
	sym := NormalizeSymbol(r.Symbol)
	if sym == "" {
		return Quote{}, fmt.Errorf("%w: empty symbol", ErrInvalid)
	}
	if !r.Price.IsPositive() {
		return Quote{}, fmt.Errorf("%w: %s price %s is not positive", ErrInvalid, sym, r.Price)
	}
	if r.Timestamp.IsZero() {
		return Quote{}, fmt.Errorf("%w: %s has no timestamp", ErrInvalid, sym)
	}
	code := strings.TrimSpace(r.Currency)
	if code == "" {
		return Quote{}, fmt.Errorf("%w: %s has no currency", ErrInvalid, sym)
	}

	pct := r.ChangePercent
	if pct.IsZero() && !r.Change.IsZero() && r.PreviousClose.IsPositive() {
		pct = r.Change.Div(r.PreviousClose).Mul(decimal.NewFromInt(100)).Round(4)
	}

	q := Quote{
		Symbol:        sym,
		Price:         r.Price,
		Currency:      code,
		Change:        r.Change,
		PreviousClose: r.PreviousClose,
		ChangePercent: pct,
		Timestamp:     r.Timestamp.UTC(),
		Source:        r.Source,
		MarketState:   r.MarketState,
	}
	q.DisplayPrice, q.DisplayCurrency = currency.Normalize(q.Price, code)
	q.DisplayChange, _ = currency.Normalize(q.Change, code)
	q.DisplayPreviousClose, _ = currency.Normalize(q.PreviousClose, code)
	return q, nil
}

// NormalizeSymbol trims and upper-cases a ticker.
func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// WithSource returns a copy of q tagged with the originating source.
func (q Quote) WithSource(name string) Quote {
	q.Source = name
	return q
}

// WithMarketState returns a copy of q carrying the session tag.
func (q Quote) WithMarketState(state string) Quote {
	q.MarketState = state
	return q
}

// Age returns how old the observation is at now. It never goes negative.
func (q Quote) Age(now time.Time) time.Duration {
	if age := now.Sub(q.Timestamp); age > 0 {
		return age
	}
	return 0
}

// IsZero reports whether q is the zero Quote.
func (q Quote) IsZero() bool { return q.Symbol == "" }

// Display renders the display price with its currency symbol.
func (q Quote) Display() string {
	return currency.Format(q.DisplayPrice, q.DisplayCurrency)
}

// Raw returns the native observation q was built from.
func (q Quote) Raw() Raw {
	return Raw{
		Symbol:        q.Symbol,
		Price:         q.Price,
		Currency:      q.Currency,
		Change:        q.Change,
		ChangePercent: q.ChangePercent,
		PreviousClose: q.PreviousClose,
		Timestamp:     q.Timestamp,
		Source:        q.Source,
		MarketState:   q.MarketState,
	}
}
