package pricecache

import (
	"context"

	"pricefeed/internal/quote"
	"pricefeed/internal/source"
)

// Fetcher is the upstream a ReadThrough falls back to on a miss.
type Fetcher interface {
	Fetch(ctx context.Context, symbol string) (quote.Quote, error)
	FetchBatch(ctx context.Context, symbols []string) source.BatchResult
}

// ReadThrough answers from the cache while entries are live and asks the
// upstream only for missing or expired symbols, storing what comes back.
type ReadThrough struct {
	Cache    *Cache
	Upstream Fetcher
}

func NewReadThrough(c *Cache, upstream Fetcher) *ReadThrough {
	return &ReadThrough{Cache: c, Upstream: upstream}
}

// Fetch returns the cached quote for symbol or fetches and caches it.
func (r *ReadThrough) Fetch(ctx context.Context, symbol string) (quote.Quote, error) {
	sym := quote.NormalizeSymbol(symbol)
	if e, ok := r.Cache.Get(sym); ok {
		return e.Quote, nil
	}
	q, err := r.Upstream.Fetch(ctx, sym)
	if err != nil {
		return quote.Quote{}, err
	}
	r.Cache.Put(q)
	return q, nil
}

// FetchBatch splits symbols into cached and missing, fetches the missing ones
// in one batch, and merges both preserving request order.
func (r *ReadThrough) FetchBatch(ctx context.Context, symbols []string) source.BatchResult {
	cached := make(map[string]quote.Quote, len(symbols))
	order := make([]string, 0, len(symbols))
	missing := make([]string, 0, len(symbols))
	seen := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		sym := quote.NormalizeSymbol(s)
		if sym == "" {
			continue
		}
		if _, dup := seen[sym]; dup {
			continue
		}
		seen[sym] = struct{}{}
		order = append(order, sym)
		if e, ok := r.Cache.Get(sym); ok {
			cached[sym] = e.Quote
			continue
		}
		missing = append(missing, sym)
	}
	if len(missing) == 0 {
		res := source.BatchResult{Successful: make([]quote.Quote, 0, len(order))}
		for _, sym := range order {
			res.Successful = append(res.Successful, cached[sym])
		}
		return res
	}

	fresh := r.Upstream.FetchBatch(ctx, missing)
	got := make(map[string]quote.Quote, len(fresh.Successful))
	for _, q := range fresh.Successful {
		r.Cache.Put(q)
		got[q.Symbol] = q
	}
	failed := make(map[string]error, len(fresh.Failed))
	for _, f := range fresh.Failed {
		failed[f.Symbol] = f.Err
	}

	var res source.BatchResult
	for _, sym := range order {
		if q, ok := cached[sym]; ok {
			res.Successful = append(res.Successful, q)
			continue
		}
		if q, ok := got[sym]; ok {
			res.Successful = append(res.Successful, q)
			continue
		}
		err, ok := failed[sym]
		if !ok {
			err = source.ErrNotFound
		}
		res.Failed = append(res.Failed, source.Failure{Symbol: sym, Err: err})
	}
	return res
}
