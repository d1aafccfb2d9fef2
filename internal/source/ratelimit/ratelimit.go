// Package ratelimit gates a source.Source behind a token bucket.
package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"pricefeed/internal/quote"
	"pricefeed/internal/source"
)

// Source wraps a source and waits for a token before every Fetch. Supports
// and Name pass through untouched.
type Source struct {
	source.Source
	limiter *rate.Limiter
}

// NewPerMinute allows rpm requests per minute with the given burst. rpm <= 0
// disables limiting.
func NewPerMinute(s source.Source, rpm, burst int) *Source {
	if rpm <= 0 {
		return &Source{Source: s}
	}
	if burst <= 0 {
		burst = 1
	}
	return &Source{Source: s, limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), burst)}
}

// NewMinInterval enforces at least interval between consecutive requests.
// Concurrent callers queue; a canceled context returns early.
func NewMinInterval(s source.Source, interval time.Duration) *Source {
	if interval <= 0 {
		return &Source{Source: s}
	}
	return &Source{Source: s, limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

func (s *Source) Fetch(ctx context.Context, symbol string) (quote.Quote, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return quote.Quote{}, err
		}
	}
	return s.Source.Fetch(ctx, symbol)
}

// FetchBatch spends one token per batch when the wrapped source is a
// source.Batcher.
func (s *Source) FetchBatch(ctx context.Context, symbols []string) (source.BatchResult, error) {
	b, ok := s.Source.(source.Batcher)
	if !ok {
		return source.BatchResult{}, source.ErrUnsupported
	}
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return source.BatchResult{}, err
		}
	}
	return b.FetchBatch(ctx, symbols)
}

// Unwrap returns the decorated source.
func (s *Source) Unwrap() source.Source { return s.Source }
