package quote

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Record is the flattened, primitive-only form of a Quote used by the durable
// mirror. Display fields are deliberately absent: they are re-derived on load.
type Record struct {
	Price         string `json:"price"`
	Currency      string `json:"currency"`
	Change        string `json:"change,omitempty"`
	ChangePercent string `json:"changePercent,omitempty"`
	PreviousClose string `json:"previousClose,omitempty"`
	Timestamp     int64  `json:"timestamp"` // unix milliseconds
	Source        string `json:"source"`
	MarketState   string `json:"marketState,omitempty"`
}

// Record flattens q.
func (q Quote) Record() Record {
	return Record{
		Price:         q.Price.String(),
		Currency:      q.Currency,
		Change:        optional(q.Change),
		ChangePercent: optional(q.ChangePercent),
		PreviousClose: optional(q.PreviousClose),
		Timestamp:     q.Timestamp.UnixMilli(),
		Source:        q.Source,
		MarketState:   q.MarketState,
	}
}

// FromRecord rebuilds the Quote for symbol from its flattened record.
func FromRecord(symbol string, r Record) (Quote, error) {
	price, err := parse(r.Price)
	if err != nil {
		return Quote{}, fmt.Errorf("%s price: %w", symbol, err)
	}
	change, err := parse(r.Change)
	if err != nil {
		return Quote{}, fmt.Errorf("%s change: %w", symbol, err)
	}
	pct, err := parse(r.ChangePercent)
	if err != nil {
		return Quote{}, fmt.Errorf("%s changePercent: %w", symbol, err)
	}
	prev, err := parse(r.PreviousClose)
	if err != nil {
		return Quote{}, fmt.Errorf("%s previousClose: %w", symbol, err)
	}
	var ts time.Time
	if r.Timestamp > 0 {
		ts = time.UnixMilli(r.Timestamp)
	}
	return New(Raw{
		Symbol:        symbol,
		Price:         price,
		Currency:      r.Currency,
		Change:        change,
		ChangePercent: pct,
		PreviousClose: prev,
		Timestamp:     ts,
		Source:        r.Source,
		MarketState:   r.MarketState,
	})
}

func optional(d decimal.Decimal) string {
	if d.IsZero() {
		return ""
	}
	return d.String()
}

func parse(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}
