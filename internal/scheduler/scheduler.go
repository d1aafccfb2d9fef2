// Package scheduler owns the refresh loop: it polls the watched symbols at
// the configured cadence, keeps the latest quote per symbol, and notifies
// observers when prices or their staleness change.
package scheduler

//go:generate mockgen -package=scheduler_test -destination=mock_fetcher_test.go -source=scheduler.go Fetcher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"pricefeed/internal/kv"
	"pricefeed/internal/metrics"
	"pricefeed/internal/prefs"
	"pricefeed/internal/pricecache"
	"pricefeed/internal/quote"
	"pricefeed/internal/session"
	"pricefeed/internal/source"
)

// ErrOffline is returned by RefreshPrice while connectivity is down and no
// quote is held for the symbol.
var ErrOffline = errors.New("offline")

// ErrCycleInFlight is returned by RefreshAllPrices when another refresh
// cycle is still running. The current prices are returned alongside it.
var ErrCycleInFlight = errors.New("refresh cycle already in flight")

// Fetcher is the retry/fallback layer the scheduler drives.
type Fetcher interface {
	Fetch(ctx context.Context, symbol string) (quote.Quote, error)
	FetchBatch(ctx context.Context, symbols []string) source.BatchResult
}

// State is the lifecycle state of the polling loop.
type State int32

const (
	Idle State = iota
	Polling
)

func (s State) String() string {
	if s == Polling {
		return "polling"
	}
	return "idle"
}

// Ticker is the repeating timer driving the loop.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFunc creates a Ticker firing every d.
type TickerFunc func(d time.Duration) Ticker

type stdTicker struct{ t *time.Ticker }

func (s stdTicker) C() <-chan time.Time { return s.t.C }
func (s stdTicker) Stop()               { s.t.Stop() }

func newStdTicker(d time.Duration) Ticker { return stdTicker{time.NewTicker(d)} }

// Option configures a Scheduler.
type Option func(*Scheduler)

func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.log = l
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option { return func(s *Scheduler) { s.metrics = m } }

func WithClock(now func() time.Time) Option { return func(s *Scheduler) { s.now = now } }

func WithTicker(f TickerFunc) Option { return func(s *Scheduler) { s.newTicker = f } }

func WithResolver(r *session.Resolver) Option { return func(s *Scheduler) { s.resolver = r } }

// Scheduler drives refresh cycles and holds the price state container.
type Scheduler struct {
	fetcher   Fetcher
	cache     *pricecache.Cache
	mirror    *pricecache.Mirror
	store     kv.Store
	resolver  *session.Resolver
	log       *slog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
	newTicker TickerFunc

	// lifeMu serializes start, stop and restart so at most one timer lives.
	lifeMu   sync.Mutex
	state    atomic.Int32
	ticker   Ticker
	done     chan struct{}
	paused   bool // stopped because hidden, resumes when visible
	wanted   bool // Start or Restart called since the last Stop

	gen      atomic.Uint64 // bumped on every start and stop
	inFlight atomic.Bool
	pending  atomic.Bool // reconnect refresh owed once the running cycle ends
	online   atomic.Bool
	visible  atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup // background cycles

	mu        sync.RWMutex
	prefs     prefs.Preferences
	watch     map[string]struct{}
	latest    map[string]quote.Quote
	lastErr   error
	observers map[uint64]func(Update)
	nextObs   uint64
}

// New builds an idle scheduler. store holds the preferences and the cache
// mirror; nil means an in-memory store.
func New(f Fetcher, cache *pricecache.Cache, store kv.Store, opts ...Option) *Scheduler {
	if store == nil {
		store = kv.NewMemory()
	}
	if cache == nil {
		cache = pricecache.New()
	}
	s := &Scheduler{
		fetcher:   f,
		cache:     cache,
		store:     store,
		log:       slog.Default(),
		now:       time.Now,
		newTicker: newStdTicker,
		prefs:     prefs.Default(),
		watch:     make(map[string]struct{}),
		latest:    make(map[string]quote.Quote),
		observers: make(map[uint64]func(Update)),
	}
	for _, o := range opts {
		o(s)
	}
	if s.resolver == nil {
		s.resolver = session.NewResolver()
	}
	s.mirror = pricecache.NewMirror(store, s.log)
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.online.Store(true)
	s.visible.Store(true)
	return s
}

// Load performs the cold start: preferences and the cache mirror are read
// from the store. Failures are logged and leave the defaults in place.
func (s *Scheduler) Load(ctx context.Context) {
	p, err := prefs.Load(ctx, s.store)
	if err != nil {
		s.log.Warn("load preferences", "err", err)
	}
	s.mu.Lock()
	s.prefs = p
	s.mu.Unlock()

	entries, err := s.mirror.Load(ctx)
	if err != nil {
		s.log.Warn("load price mirror", "err", err)
		return
	}
	s.cache.Restore(entries)
	qs := make([]quote.Quote, 0, len(entries))
	for _, e := range entries {
		qs = append(qs, e.Entry.Quote)
	}
	s.apply(qs, false)
	s.log.Debug("restored price mirror", "entries", len(entries))
}

// State reports whether the polling timer is live.
func (s *Scheduler) State() State { return State(s.state.Load()) }

// Start begins polling at the configured cadence. It is a no-op when already
// polling or when the cadence is manual. While hidden with PauseWhenHidden
// set, the timer is deferred until the process becomes visible.
func (s *Scheduler) Start() {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	s.wanted = true
	s.startLocked()
}

// Stop cancels the timer. It is safe in any state.
func (s *Scheduler) Stop() {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	s.wanted = false
	s.paused = false
	s.stopLocked()
}

// Restart replaces the preferences and restarts the loop atomically.
func (s *Scheduler) Restart(p prefs.Preferences) {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	s.stopLocked()
	s.mu.Lock()
	s.prefs = p
	s.mu.Unlock()
	s.wanted = true
	s.paused = false
	s.startLocked()
}

func (s *Scheduler) startLocked() {
	if s.State() == Polling {
		return
	}
	p := s.Preferences()
	if p.Cadence.IsManual() {
		return
	}
	if p.PauseWhenHidden && !s.visible.Load() {
		s.paused = true
		return
	}
	gen := s.gen.Add(1)
	t := s.newTicker(p.Cadence.Interval())
	done := make(chan struct{})
	s.ticker, s.done = t, done
	s.state.Store(int32(Polling))
	go s.loop(t, done, gen)
	s.log.Debug("polling started", "cadence", p.Cadence.String())
}

func (s *Scheduler) stopLocked() {
	if s.State() == Idle {
		return
	}
	s.gen.Add(1)
	s.ticker.Stop()
	close(s.done)
	s.ticker, s.done = nil, nil
	s.state.Store(int32(Idle))
	s.log.Debug("polling stopped")
}

func (s *Scheduler) loop(t Ticker, done chan struct{}, gen uint64) {
	for {
		select {
		case <-done:
			return
		case <-t.C():
			s.tick(gen)
		}
	}
}

// tick starts a refresh unless offline or one is running, then recomputes
// staleness regardless of the fetch.
func (s *Scheduler) tick(gen uint64) {
	if s.gen.Load() != gen {
		return
	}
	if s.online.Load() {
		if !s.startCycle(gen, true) {
			s.log.Debug("tick dropped, refresh in flight")
		}
	}
	now := s.now()
	s.prune(now)
	s.notify(Update{Prices: s.Prices(), Err: s.LastError(), At: now})
}

// startCycle runs a refresh in the background unless one is in flight.
// Results of a cycle started with checkGen are dropped if the loop was
// stopped or restarted meanwhile.
func (s *Scheduler) startCycle(gen uint64, checkGen bool) bool {
	if !s.inFlight.CompareAndSwap(false, true) {
		return false
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.runPending()
		defer s.inFlight.Store(false)
		s.runCycle(s.ctx, gen, checkGen)
	}()
	return true
}

// runPending starts the refresh owed by a reconnect that arrived while a
// cycle was running. If another cycle holds the flag, that cycle's owner
// picks the request up when it finishes.
func (s *Scheduler) runPending() {
	for s.pending.CompareAndSwap(true, false) {
		if !s.online.Load() || s.ctx.Err() != nil {
			return
		}
		if s.startCycle(s.gen.Load(), false) {
			return
		}
		s.pending.Store(true)
		if s.inFlight.Load() {
			return
		}
	}
}

// Wait blocks until background refresh cycles have finished.
func (s *Scheduler) Wait() { s.wg.Wait() }

// SetOnline feeds connectivity. Offline suppresses fetches without stopping
// the timer; going back online triggers one immediate refresh.
func (s *Scheduler) SetOnline(online bool) {
	was := s.online.Swap(online)
	if was || !online {
		return
	}
	if s.startCycle(s.gen.Load(), false) {
		s.log.Info("back online, refreshing")
		return
	}
	s.log.Info("back online, refresh queued behind the running cycle")
	s.pending.Store(true)
	s.runPending()
}

// Online reports the last connectivity signal.
func (s *Scheduler) Online() bool { return s.online.Load() }

// SetVisible feeds process visibility. With PauseWhenHidden, hiding pauses
// the timer and showing resumes it.
func (s *Scheduler) SetVisible(visible bool) {
	s.visible.Store(visible)
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	s.applyVisibilityLocked()
}

func (s *Scheduler) applyVisibilityLocked() {
	pause := s.Preferences().PauseWhenHidden && !s.visible.Load()
	switch {
	case pause && s.State() == Polling:
		s.stopLocked()
		s.paused = true
	case !pause && s.paused:
		s.paused = false
		s.startLocked()
	}
}

// Preferences returns the in-memory preferences.
func (s *Scheduler) Preferences() prefs.Preferences {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prefs
}

// SetPreferences merges patch, persists the result and restarts the loop
// when the cadence changed and polling was requested. A persistence failure
// is logged, not returned.
func (s *Scheduler) SetPreferences(ctx context.Context, patch prefs.Patch) (prefs.Preferences, error) {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()

	s.mu.Lock()
	prev := s.prefs
	next, err := prev.Apply(patch)
	if err != nil {
		s.mu.Unlock()
		return prev, err
	}
	s.prefs = next
	s.mu.Unlock()

	if err := prefs.Save(ctx, s.store, next); err != nil {
		s.log.Warn("persist preferences", "err", err)
	}
	if next.Cadence != prev.Cadence && s.wanted {
		s.stopLocked()
		s.paused = false
		s.startLocked()
	}
	s.applyVisibilityLocked()
	return next, nil
}

// Close stops polling and waits for background cycles, canceling their
// network calls.
func (s *Scheduler) Close() {
	s.Stop()
	s.cancel()
	s.wg.Wait()
}
