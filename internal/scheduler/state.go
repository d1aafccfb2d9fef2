package scheduler

import (
	"sort"
	"time"

	"pricefeed/internal/prefs"
	"pricefeed/internal/quote"
	"pricefeed/internal/session"
	"pricefeed/internal/staleness"
)

// PriceView is a quote annotated for display. Staleness and Session are
// computed on read and never stored.
type PriceView struct {
	Quote     quote.Quote          `json:"quote"`
	Staleness staleness.Tier       `json:"staleness"`
	Session   session.MarketStatus `json:"session"`
}

// Update is delivered to observers after every refresh cycle and every
// staleness pass. Cycle is empty for a staleness-only pass.
type Update struct {
	Cycle  string
	Prices map[string]PriceView
	Err    error
	At     time.Time
}

// SetWatchedSymbols replaces the watch set.
func (s *Scheduler) SetWatchedSymbols(symbols []string) {
	next := make(map[string]struct{}, len(symbols))
	for _, sym := range symbols {
		if sym = quote.NormalizeSymbol(sym); sym != "" {
			next[sym] = struct{}{}
		}
	}
	s.mu.Lock()
	s.watch = next
	s.mu.Unlock()
}

// AddSymbol adds symbol to the watch set.
func (s *Scheduler) AddSymbol(symbol string) {
	sym := quote.NormalizeSymbol(symbol)
	if sym == "" {
		return
	}
	s.mu.Lock()
	s.watch[sym] = struct{}{}
	s.mu.Unlock()
}

// RemoveSymbol drops symbol from the watch set. Its last quote stays
// readable through GetPrice until it ages past the cache TTL.
func (s *Scheduler) RemoveSymbol(symbol string) {
	s.mu.Lock()
	delete(s.watch, quote.NormalizeSymbol(symbol))
	s.mu.Unlock()
}

// WatchedSymbols returns the watch set, sorted.
func (s *Scheduler) WatchedSymbols() []string {
	s.mu.RLock()
	out := make([]string, 0, len(s.watch))
	for sym := range s.watch {
		out = append(out, sym)
	}
	s.mu.RUnlock()
	sort.Strings(out)
	return out
}

// GetPrice returns the latest quote for symbol with its current staleness
// and market session.
func (s *Scheduler) GetPrice(symbol string) (PriceView, bool) {
	sym := quote.NormalizeSymbol(symbol)
	s.mu.RLock()
	q, ok := s.latest[sym]
	cadence := s.prefs.Cadence
	s.mu.RUnlock()
	if !ok {
		return PriceView{}, false
	}
	return s.view(q, cadence, s.now()), true
}

// Prices returns a view for every watched symbol that has a quote.
func (s *Scheduler) Prices() map[string]PriceView {
	now := s.now()
	s.mu.RLock()
	cadence := s.prefs.Cadence
	qs := make([]quote.Quote, 0, len(s.watch))
	for sym := range s.watch {
		if q, ok := s.latest[sym]; ok {
			qs = append(qs, q)
		}
	}
	s.mu.RUnlock()

	out := make(map[string]PriceView, len(qs))
	for _, q := range qs {
		out[q.Symbol] = s.view(q, cadence, now)
	}
	return out
}

func (s *Scheduler) view(q quote.Quote, cadence prefs.Cadence, now time.Time) PriceView {
	return PriceView{
		Quote:     q,
		Staleness: staleness.Classify(q.Age(now), cadence),
		Session:   s.resolver.Status(q.Symbol, now),
	}
}

// LastError is the error of the most recent refresh, nil after a clean one.
func (s *Scheduler) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

func (s *Scheduler) setLastError(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}

// apply stores quotes one symbol at a time, each under the lock, so readers
// never observe a half-applied symbol. An older quote never replaces a newer
// one. toCache also records them in the price cache.
func (s *Scheduler) apply(qs []quote.Quote, toCache bool) int {
	now := s.now()
	applied := 0
	for _, q := range qs {
		if q.MarketState == "" {
			q = q.WithMarketState(string(s.resolver.Status(q.Symbol, now).State))
		}
		s.mu.Lock()
		if cur, ok := s.latest[q.Symbol]; ok && q.Timestamp.Before(cur.Timestamp) {
			s.mu.Unlock()
			continue
		}
		s.latest[q.Symbol] = q
		if toCache {
			s.cache.Put(q)
		}
		s.mu.Unlock()
		applied++
	}
	return applied
}

// prune forgets quotes of unwatched symbols older than the cache TTL, so
// the state container stays bounded by the watch set.
func (s *Scheduler) prune(now time.Time) {
	ttl := s.cache.TTL()
	s.mu.Lock()
	defer s.mu.Unlock()
	for sym, q := range s.latest {
		if _, watched := s.watch[sym]; watched {
			continue
		}
		if q.Age(now) > ttl {
			delete(s.latest, sym)
		}
	}
}

// Subscribe registers fn for updates and returns a function removing it.
// fn runs on the scheduler's goroutines and must not block.
func (s *Scheduler) Subscribe(fn func(Update)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.observers, id)
		s.mu.Unlock()
	}
}

func (s *Scheduler) notify(u Update) {
	s.mu.RLock()
	fns := make([]func(Update), 0, len(s.observers))
	for _, fn := range s.observers {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()
	for _, fn := range fns {
		fn(u)
	}
}
