// Package proxy answers quotes from a pricefeed server over the batched
// price contract.
package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"pricefeed/internal/httpx"
	"pricefeed/internal/quote"
	"pricefeed/internal/source"
	"pricefeed/internal/wire"
)

type Config struct {
	Name    string
	URL     string // server base URL
	Headers map[string]string
	Timeout time.Duration
	// MaxItemsPerRequest splits large symbol lists into smaller batch requests.
	MaxItemsPerRequest int
	// MaxConcurrency limits concurrent batch requests when splitting.
	MaxConcurrency int
}

type Source struct {
	cfg    Config
	client httpx.HTTPClient
}

func New(cfg Config, hc httpx.HTTPClient) *Source {
	if cfg.Name == "" {
		cfg.Name = "proxy"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxItemsPerRequest <= 0 {
		cfg.MaxItemsPerRequest = 50
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 2
	}
	if hc == nil {
		hc = http.DefaultClient
	}
	cfg.URL = strings.TrimRight(cfg.URL, "/")
	return &Source{cfg: cfg, client: hc}
}

func (p *Source) Name() string { return p.cfg.Name }

// Supports answers every symbol; the server decides which provider serves it.
func (p *Source) Supports(symbol string) bool { return quote.NormalizeSymbol(symbol) != "" }

func (p *Source) Fetch(ctx context.Context, symbol string) (quote.Quote, error) {
	sym := quote.NormalizeSymbol(symbol)
	if sym == "" {
		return quote.Quote{}, fmt.Errorf("%s: empty symbol: %w", p.cfg.Name, source.ErrUnsupported)
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	u := p.cfg.URL + "/api/price?symbol=" + url.QueryEscape(sym)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return quote.Quote{}, fmt.Errorf("creating request: %w", err)
	}
	var price wire.Price
	if err := p.do(req, &price); err != nil {
		return quote.Quote{}, fmt.Errorf("%s: %w", sym, err)
	}
	q, err := price.Quote()
	if err != nil {
		return quote.Quote{}, fmt.Errorf("%w: %w", source.ErrMalformed, err)
	}
	return q, nil
}

// FetchBatch resolves symbols through POST /api/prices/batch, splitting the
// list into chunks sent with bounded concurrency. A failed chunk marks all of
// its symbols as failed; the error is returned only when nothing succeeded.
func (p *Source) FetchBatch(ctx context.Context, symbols []string) (source.BatchResult, error) {
	uniq := make([]string, 0, len(symbols))
	seen := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		s = quote.NormalizeSymbol(s)
		if s == "" {
			continue
		}
		if _, dup := seen[s]; !dup {
			seen[s] = struct{}{}
			uniq = append(uniq, s)
		}
	}
	if len(uniq) == 0 {
		return source.BatchResult{}, nil
	}

	var (
		mu       sync.Mutex
		quotes   = make(map[string]quote.Quote, len(uniq))
		failures = make(map[string]error)
		firstErr error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.MaxConcurrency)
	for _, chunk := range chunkStrings(uniq, p.cfg.MaxItemsPerRequest) {
		g.Go(func() error {
			res, err := p.batch(gctx, chunk)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				for _, s := range chunk {
					failures[s] = err
				}
				return nil
			}
			for _, q := range res.Successful {
				quotes[q.Symbol] = q
			}
			for _, f := range res.Failed {
				failures[quote.NormalizeSymbol(f.Symbol)] = f.Err
			}
			return nil
		})
	}
	_ = g.Wait()

	var out source.BatchResult
	for _, s := range uniq {
		if q, ok := quotes[s]; ok {
			out.Successful = append(out.Successful, q)
			continue
		}
		err, ok := failures[s]
		if !ok {
			err = fmt.Errorf("%s: missing from batch reply: %w", s, source.ErrNotFound)
		}
		out.Failed = append(out.Failed, source.Failure{Symbol: s, Err: err})
	}
	if len(out.Successful) == 0 && firstErr != nil {
		return out, firstErr
	}
	return out, nil
}

func (p *Source) batch(ctx context.Context, symbols []string) (source.BatchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	body, err := json.Marshal(wire.BatchRequest{Symbols: symbols})
	if err != nil {
		return source.BatchResult{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.URL+"/api/prices/batch", bytes.NewReader(body))
	if err != nil {
		return source.BatchResult{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	var resp wire.BatchResponse
	if err := p.do(req, &resp); err != nil {
		return source.BatchResult{}, err
	}
	return resp.Result(), nil
}

func (p *Source) do(req *http.Request, into any) error {
	for k, v := range p.cfg.Headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Accept", "application/json")
	res, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return source.ErrNotFound
	}
	if err := source.CheckStatus(res); err != nil {
		return err
	}
	if err := json.NewDecoder(res.Body).Decode(into); err != nil {
		return fmt.Errorf("decode: %w: %w", source.ErrMalformed, err)
	}
	return nil
}

func chunkStrings(in []string, size int) [][]string {
	if size <= 0 || len(in) == 0 {
		return [][]string{in}
	}
	out := make([][]string, 0, (len(in)+size-1)/size)
	for i := 0; i < len(in); i += size {
		out = append(out, in[i:min(i+size, len(in))])
	}
	return out
}

var (
	_ source.Source  = (*Source)(nil)
	_ source.Batcher = (*Source)(nil)
)
