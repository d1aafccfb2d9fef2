package yahoo

import (
	"context"
	"fmt"
	"time"

	"pricefeed/internal/quote"
	"pricefeed/internal/source"
)

// Config controls the Yahoo source behavior.
type Config struct {
	Name    string        // default: yahoo
	Timeout time.Duration // per request, default 10s
}

// Source adapts Client to source.Source. It answers every symbol except the
// cryptocurrency tickers.
type Source struct {
	cfg    Config
	client *Client
	now    func() time.Time
}

// New returns a Source backed by client.
func New(cfg Config, client *Client) *Source {
	if cfg.Name == "" {
		cfg.Name = "yahoo"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Source{cfg: cfg, client: client, now: time.Now}
}

func (s *Source) Name() string { return s.cfg.Name }

func (s *Source) Supports(symbol string) bool {
	sym := quote.NormalizeSymbol(symbol)
	return sym != "" && !source.IsCrypto(sym)
}

func (s *Source) Fetch(ctx context.Context, symbol string) (quote.Quote, error) {
	sym := quote.NormalizeSymbol(symbol)
	if !s.Supports(sym) {
		return quote.Quote{}, fmt.Errorf("%s %s: %w", s.cfg.Name, sym, source.ErrUnsupported)
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	chart, err := s.client.GetChart(ctx, sym)
	if err != nil {
		return quote.Quote{}, err
	}

	ts := chart.MarketTime
	if ts.IsZero() {
		ts = s.now()
	}
	raw := quote.Raw{
		Symbol:        sym,
		Price:         chart.Price,
		Currency:      chart.Currency,
		PreviousClose: chart.PreviousClose,
		Timestamp:     ts,
		Source:        s.cfg.Name,
	}
	if chart.PreviousClose.IsPositive() {
		raw.Change = chart.Price.Sub(chart.PreviousClose)
	}
	q, err := quote.New(raw)
	if err != nil {
		return quote.Quote{}, fmt.Errorf("%w: %w", source.ErrMalformed, err)
	}
	return q, nil
}

var _ source.Source = (*Source)(nil)
