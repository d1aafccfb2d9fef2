package scheduler

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"pricefeed/internal/quote"
	"pricefeed/internal/source"
)

// CycleError reports the symbols a refresh could not update. Their last
// known quotes stay in place.
type CycleError struct {
	Failures []source.Failure
}

func (e *CycleError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %v", f.Symbol, f.Err))
	}
	return fmt.Sprintf("refresh failed for %d symbol(s): %s", len(e.Failures), strings.Join(parts, "; "))
}

func (e *CycleError) Unwrap() []error {
	out := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		out = append(out, f.Err)
	}
	return out
}

// runCycle refreshes every watched symbol in one batch.
func (s *Scheduler) runCycle(ctx context.Context, gen uint64, checkGen bool) (string, error) {
	id := uuid.NewString()
	syms := s.WatchedSymbols()
	if len(syms) == 0 {
		return id, nil
	}
	log := s.log.With("cycle", id)
	start := s.now()
	log.Debug("refresh started", "symbols", len(syms))

	res := s.fetcher.FetchBatch(ctx, syms)
	if checkGen && s.gen.Load() != gen {
		log.Debug("refresh discarded, scheduler stopped or restarted")
		s.metrics.Cycle("discarded", s.now().Sub(start))
		return id, nil
	}

	applied := s.apply(res.Successful, true)
	s.prune(s.now())
	var err error
	outcome := "ok"
	if len(res.Failed) > 0 {
		err = &CycleError{Failures: res.Failed}
		outcome = "partial"
		if len(res.Successful) == 0 {
			outcome = "failed"
		}
		log.Warn("refresh incomplete", "failed", len(res.Failed), "err", err)
	}
	s.setLastError(err)
	s.metrics.Cycle(outcome, s.now().Sub(start))
	if applied > 0 {
		s.persist(ctx)
	}
	log.Debug("refresh finished", "updated", applied, "failed", len(res.Failed))
	s.notify(Update{Cycle: id, Prices: s.Prices(), Err: err, At: s.now()})
	return id, err
}

// persist writes the cache mirror. Failures are logged only.
func (s *Scheduler) persist(ctx context.Context) {
	if _, err := s.mirror.Save(context.WithoutCancel(ctx), s.cache); err != nil {
		s.log.Warn("persist price mirror", "err", err)
	}
}

// RefreshPrice fetches one symbol now, regardless of cadence. On failure the
// last known quote, if any, is returned with the error. Offline, no request
// is made.
func (s *Scheduler) RefreshPrice(ctx context.Context, symbol string) (PriceView, error) {
	sym := quote.NormalizeSymbol(symbol)
	if !s.online.Load() {
		if v, ok := s.GetPrice(sym); ok {
			return v, nil
		}
		return PriceView{}, ErrOffline
	}
	q, err := s.fetcher.Fetch(ctx, sym)
	if err != nil {
		s.setLastError(err)
		s.log.Warn("refresh failed", "symbol", sym, "err", err)
		v, _ := s.GetPrice(sym)
		return v, err
	}
	if s.apply([]quote.Quote{q}, true) > 0 {
		s.persist(ctx)
	}
	s.setLastError(nil)
	v, _ := s.GetPrice(sym)
	s.notify(Update{Cycle: uuid.NewString(), Prices: s.Prices(), At: s.now()})
	return v, nil
}

// RefreshAllPrices runs one refresh cycle synchronously and returns the
// resulting prices. It works in manual mode. Offline, no request is made and
// the held quotes are returned reclassified.
func (s *Scheduler) RefreshAllPrices(ctx context.Context) (map[string]PriceView, error) {
	if !s.online.Load() {
		prices := s.Prices()
		s.notify(Update{Prices: prices, Err: s.LastError(), At: s.now()})
		return prices, nil
	}
	if !s.inFlight.CompareAndSwap(false, true) {
		return s.Prices(), ErrCycleInFlight
	}
	defer s.runPending()
	defer s.inFlight.Store(false)
	_, err := s.runCycle(ctx, 0, false)
	return s.Prices(), err
}
