package fetcher

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"

	"pricefeed/internal/quote"
	"pricefeed/internal/source"
)

// FetchBatch resolves many symbols. Symbols whose highest-priority source is a
// source.Batcher go out in one batch per source; everything the batch did not
// answer, and every other symbol, goes through Fetch with bounded
// concurrency. Successful and Failed keep the order of symbols, duplicates
// collapsed.
func (f *Fetcher) FetchBatch(ctx context.Context, symbols []string) source.BatchResult {
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

	var (
		mu     sync.Mutex
		quotes = make(map[string]quote.Quote, len(uniq))
		errs   = make(map[string]error)
	)
	record := func(sym string, q quote.Quote, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			errs[sym] = err
			return
		}
		delete(errs, sym)
		quotes[sym] = q
	}

	// Group symbols by their first supporting source when it batches.
	groups := make(map[int][]string)
	var single []string
	for _, sym := range uniq {
		idx := -1
		for i, s := range f.sources {
			if s.Supports(sym) {
				idx = i
				break
			}
		}
		if idx >= 0 {
			if _, ok := f.sources[idx].(source.Batcher); ok {
				groups[idx] = append(groups[idx], sym)
				continue
			}
		}
		single = append(single, sym)
	}

	for idx, syms := range groups {
		src := f.sources[idx]
		answered := f.batch(ctx, src, syms, record)
		for _, sym := range syms {
			if !answered[sym] {
				single = append(single, sym)
			}
		}
	}

	g := new(errgroup.Group)
	g.SetLimit(f.cfg.BatchConcurrency)
	for _, sym := range single {
		g.Go(func() error {
			q, err := f.Fetch(ctx, sym)
			record(sym, q, err)
			return nil
		})
	}
	_ = g.Wait()

	var out source.BatchResult
	for _, sym := range uniq {
		if q, ok := quotes[sym]; ok {
			out.Successful = append(out.Successful, q)
			continue
		}
		out.Failed = append(out.Failed, source.Failure{Symbol: sym, Err: errs[sym]})
	}
	return out
}

// batch runs one batched request against src and returns the symbols it
// answered.
func (f *Fetcher) batch(ctx context.Context, src source.Source, syms []string, record func(string, quote.Quote, error)) map[string]bool {
	answered := make(map[string]bool, len(syms))
	b := src.(source.Batcher)

	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	res, err := b.FetchBatch(ctx, syms)
	if errors.Is(err, source.ErrUnsupported) {
		return answered
	}
	f.metrics.Attempt(src.Name(), err)
	if err != nil {
		f.log.Warn("batch request failed, fetching one by one", "source", src.Name(), "symbols", len(syms), "err", err)
		return answered
	}
	for _, q := range res.Successful {
		record(q.Symbol, q.WithSource(src.Name()), nil)
		answered[q.Symbol] = true
	}
	return answered
}
