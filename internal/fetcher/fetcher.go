// Package fetcher resolves quotes through an ordered list of sources with
// bounded retries and sequential fallback.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/singleflight"

	"pricefeed/internal/metrics"
	"pricefeed/internal/quote"
	"pricefeed/internal/source"
)

// ErrNoSource is returned when no configured source supports a symbol.
var ErrNoSource = errors.New("no source available")

// AggregateError is returned when every applicable source exhausted its
// attempts. It unwraps to the last underlying failure.
type AggregateError struct {
	Symbol   string
	Attempts int
	Source   string // source of the last failure
	Last     error
}

func (e *AggregateError) Error() string {
	return fmt.Sprintf("fetch %s: all sources failed after %d attempts, last from %s: %v", e.Symbol, e.Attempts, e.Source, e.Last)
}

func (e *AggregateError) Unwrap() error { return e.Last }

// Config bounds retries. Zero fields take the defaults.
type Config struct {
	MaxAttempts      int           // per source, default 3
	BaseDelay        time.Duration // default 500ms
	MaxDelay         time.Duration // default 5s
	Timeout          time.Duration // per attempt, default 10s
	BatchConcurrency int           // default 4
}

// DefaultConfig returns the default retry configuration.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:      3,
		BaseDelay:        500 * time.Millisecond,
		MaxDelay:         5 * time.Second,
		Timeout:          10 * time.Second,
		BatchConcurrency: 4,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = d.BaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = d.MaxDelay
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.BatchConcurrency <= 0 {
		c.BatchConcurrency = d.BatchConcurrency
	}
	return c
}

// Fetcher tries sources one at a time, in order.
type Fetcher struct {
	sources []source.Source
	cfg     Config
	log     *slog.Logger
	metrics *metrics.Metrics

	sf singleflight.Group
}

// Option configures a Fetcher.
type Option func(*Fetcher)

func WithConfig(cfg Config) Option {
	return func(f *Fetcher) { f.cfg = cfg.withDefaults() }
}

func WithLogger(l *slog.Logger) Option {
	return func(f *Fetcher) {
		if l != nil {
			f.log = l
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(f *Fetcher) { f.metrics = m }
}

// New returns a Fetcher over sources. Order encodes priority: when two
// sources support the same symbol, the first one is tried first.
func New(sources []source.Source, opts ...Option) *Fetcher {
	f := &Fetcher{
		sources: sources,
		cfg:     DefaultConfig(),
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Supports reports whether any source supports symbol.
func (f *Fetcher) Supports(symbol string) bool {
	return len(f.applicable(quote.NormalizeSymbol(symbol))) > 0
}

func (f *Fetcher) applicable(sym string) []source.Source {
	var out []source.Source
	for _, s := range f.sources {
		if s.Supports(sym) {
			out = append(out, s)
		}
	}
	return out
}

// Fetch resolves symbol. Concurrent calls for the same symbol share one
// resolution. The shared resolution is detached from any single caller and
// bounded by the retry configuration; a caller whose ctx ends returns
// ctx.Err() without failing the others.
func (f *Fetcher) Fetch(ctx context.Context, symbol string) (quote.Quote, error) {
	sym := quote.NormalizeSymbol(symbol)
	srcs := f.applicable(sym)
	if len(srcs) == 0 {
		return quote.Quote{}, fmt.Errorf("fetch %s: %w", sym, ErrNoSource)
	}
	if len(srcs) > 1 {
		f.log.Debug("multiple sources claim symbol, using priority order", "symbol", sym, "first", srcs[0].Name(), "count", len(srcs))
	}

	shared := context.WithoutCancel(ctx)
	ch := f.sf.DoChan(sym, func() (any, error) {
		return f.fetch(shared, sym, srcs)
	})
	select {
	case <-ctx.Done():
		return quote.Quote{}, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return quote.Quote{}, r.Err
		}
		return r.Val.(quote.Quote), nil
	}
}

func (f *Fetcher) fetch(ctx context.Context, sym string, srcs []source.Source) (quote.Quote, error) {
	var (
		attempts int
		last     error
		lastSrc  string
	)
	for _, src := range srcs {
		b := f.backOff()
		for attempt := 1; attempt <= f.cfg.MaxAttempts; attempt++ {
			attempts++
			q, err := f.attempt(ctx, src, sym)
			f.metrics.Attempt(src.Name(), err)
			if err == nil {
				return q.WithSource(src.Name()), nil
			}
			last, lastSrc = err, src.Name()
			if ctx.Err() != nil {
				return quote.Quote{}, ctx.Err()
			}
			f.log.Debug("fetch attempt failed", "symbol", sym, "source", src.Name(), "attempt", attempt, "err", err)
			if errors.Is(err, source.ErrUnsupported) || attempt == f.cfg.MaxAttempts {
				break
			}
			if err := sleep(ctx, b.NextBackOff()); err != nil {
				return quote.Quote{}, err
			}
		}
		f.log.Warn("source exhausted, falling back", "symbol", sym, "source", src.Name(), "err", last)
	}
	return quote.Quote{}, &AggregateError{Symbol: sym, Attempts: attempts, Source: lastSrc, Last: last}
}

func (f *Fetcher) attempt(ctx context.Context, src source.Source, sym string) (quote.Quote, error) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()
	return src.Fetch(ctx, sym)
}

// backOff yields BaseDelay × 2^(n−1) capped at MaxDelay, without jitter.
func (f *Fetcher) backOff() *backoff.ExponentialBackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     f.cfg.BaseDelay,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         f.cfg.MaxDelay,
	}
	b.Reset()
	return b
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
