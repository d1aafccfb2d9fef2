// Package coingecko answers cryptocurrency quotes from the CoinGecko simple
// price endpoint.
package coingecko

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"pricefeed/internal/httpx"
	"pricefeed/internal/quote"
	"pricefeed/internal/source"
)

//go:generate mockgen -package=coingecko_test -destination=mock_http_client_test.go pricefeed/internal/httpx HTTPClient

// Config controls the CoinGecko source behavior.
type Config struct {
	Name     string            // default: coingecko
	URL      string            // API base, default https://api.coingecko.com
	APIKey   string            // optional; sent as x-cg-demo-api-key
	Currency string            // quote currency, default USD
	Headers  map[string]string // optional extra headers
	Timeout  time.Duration     // per request, default 10s
}

// coinIDs maps tickers to CoinGecko coin ids.
var coinIDs = map[string]string{
	"BTC":   "bitcoin",
	"ETH":   "ethereum",
	"SOL":   "solana",
	"ADA":   "cardano",
	"DOGE":  "dogecoin",
	"XRP":   "ripple",
	"LTC":   "litecoin",
	"DOT":   "polkadot",
	"BNB":   "binancecoin",
	"AVAX":  "avalanche-2",
	"MATIC": "matic-network",
	"LINK":  "chainlink",
	"USDT":  "tether",
	"USDC":  "usd-coin",
}

// Source fetches crypto prices from CoinGecko. It answers only the known
// cryptocurrency tickers.
type Source struct {
	cfg    Config
	client httpx.HTTPClient
	now    func() time.Time
}

func New(cfg Config, hc httpx.HTTPClient) *Source {
	if cfg.Name == "" {
		cfg.Name = "coingecko"
	}
	if cfg.URL == "" {
		cfg.URL = "https://api.coingecko.com"
	}
	if cfg.Currency == "" {
		cfg.Currency = "USD"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Source{cfg: cfg, client: hc, now: time.Now}
}

func (s *Source) Name() string { return s.cfg.Name }

func (s *Source) Supports(symbol string) bool {
	_, ok := coinIDs[quote.NormalizeSymbol(symbol)]
	return ok && source.IsCrypto(symbol)
}

func (s *Source) Fetch(ctx context.Context, symbol string) (quote.Quote, error) {
	sym := quote.NormalizeSymbol(symbol)
	id, ok := coinIDs[sym]
	if !ok {
		return quote.Quote{}, fmt.Errorf("%s %s: %w", s.cfg.Name, sym, source.ErrUnsupported)
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	vs := strings.ToLower(s.cfg.Currency)
	prices, err := s.simplePrice(ctx, id, vs)
	if err != nil {
		return quote.Quote{}, err
	}
	coin, ok := prices[id]
	if !ok {
		return quote.Quote{}, fmt.Errorf("%s: %w", sym, source.ErrNotFound)
	}

	price, err := decimalOf(coin[vs])
	if err != nil {
		return quote.Quote{}, fmt.Errorf("decoding %s price: %w: %w", sym, source.ErrMalformed, err)
	}
	raw := quote.Raw{
		Symbol:    sym,
		Price:     price,
		Currency:  strings.ToUpper(s.cfg.Currency),
		Timestamp: s.now(),
		Source:    s.cfg.Name,
	}
	if pct, err := decimalOf(coin[vs+"_24h_change"]); err == nil {
		raw.ChangePercent = pct.Round(4)
		// price = prev * (1 + pct/100)
		factor := decimal.NewFromInt(1).Add(pct.Div(decimal.NewFromInt(100)))
		if factor.IsPositive() {
			raw.PreviousClose = price.Div(factor).Round(8)
			raw.Change = price.Sub(raw.PreviousClose)
		}
	}
	if ts, err := decimalOf(coin[vs+"_last_updated_at"]); err == nil && ts.IsPositive() {
		raw.Timestamp = time.Unix(ts.IntPart(), 0).UTC()
	}

	q, err := quote.New(raw)
	if err != nil {
		return quote.Quote{}, fmt.Errorf("%w: %w", source.ErrMalformed, err)
	}
	return q, nil
}

// simplePrice calls /api/v3/simple/price for a single coin.
//
//	{"bitcoin": {"usd": 65000, "usd_24h_change": 1.25, "usd_last_updated_at": 1741100400}}
func (s *Source) simplePrice(ctx context.Context, id, vs string) (map[string]map[string]json.Number, error) {
	u, err := url.Parse(strings.TrimRight(s.cfg.URL, "/") + "/api/v3/simple/price")
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("ids", id)
	q.Set("vs_currencies", vs)
	q.Set("include_24hr_change", "true")
	q.Set("include_last_updated_at", "true")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	for k, v := range s.cfg.Headers {
		req.Header.Set(k, v)
	}
	if s.cfg.APIKey != "" {
		req.Header.Set("x-cg-demo-api-key", s.cfg.APIKey)
	}
	req.Header.Set("Accept", "application/json")

	res, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("performing request: %w", err)
	}
	defer res.Body.Close()
	if err := source.CheckStatus(res); err != nil {
		return nil, err
	}

	var body map[string]map[string]json.Number
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding simple price response: %w: %w", source.ErrMalformed, err)
	}
	return body, nil
}

func decimalOf(n json.Number) (decimal.Decimal, error) {
	if n == "" {
		return decimal.Zero, fmt.Errorf("missing value")
	}
	return decimal.NewFromString(n.String())
}

var _ source.Source = (*Source)(nil)
