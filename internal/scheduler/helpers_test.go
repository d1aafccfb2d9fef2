package scheduler_test

import (
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"pricefeed/internal/fetcher"
	"pricefeed/internal/quote"
	"pricefeed/internal/scheduler"
	"pricefeed/internal/source"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

// A Wednesday afternoon in New York.
func newClock() *clock { return &clock{now: time.Date(2025, 3, 5, 15, 0, 0, 0, time.UTC)} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeTicker struct {
	d       time.Duration
	c       chan time.Time
	mu      sync.Mutex
	stopped bool
}

func (f *fakeTicker) C() <-chan time.Time { return f.c }

func (f *fakeTicker) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
}

func (f *fakeTicker) isStopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

// tickers hands out fake tickers and fires the live ones on demand.
type tickers struct {
	mu  sync.Mutex
	all []*fakeTicker
}

func (t *tickers) New(d time.Duration) scheduler.Ticker {
	t.mu.Lock()
	defer t.mu.Unlock()
	ft := &fakeTicker{d: d, c: make(chan time.Time)}
	t.all = append(t.all, ft)
	return ft
}

func (t *tickers) created() []*fakeTicker {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*fakeTicker(nil), t.all...)
}

func (t *tickers) live() []*fakeTicker {
	var out []*fakeTicker
	for _, ft := range t.created() {
		if !ft.isStopped() {
			out = append(out, ft)
		}
	}
	return out
}

// fire delivers one tick to every live ticker and returns how many fired.
func (t *tickers) fire(tb testing.TB) int {
	tb.Helper()
	n := 0
	for _, ft := range t.live() {
		select {
		case ft.c <- time.Now():
			n++
		case <-time.After(time.Second):
			tb.Fatalf("ticker %s not drained", ft.d)
		}
	}
	return n
}

// updates collects observer notifications, split by kind.
type updates struct {
	passes chan scheduler.Update
	cycles chan scheduler.Update
}

func watchUpdates(s *scheduler.Scheduler) *updates {
	u := &updates{passes: make(chan scheduler.Update, 64), cycles: make(chan scheduler.Update, 64)}
	s.Subscribe(func(up scheduler.Update) {
		if up.Cycle == "" {
			u.passes <- up
			return
		}
		u.cycles <- up
	})
	return u
}

func next(tb testing.TB, ch <-chan scheduler.Update) scheduler.Update {
	tb.Helper()
	select {
	case up := <-ch:
		return up
	case <-time.After(2 * time.Second):
		tb.Fatal("no update")
		return scheduler.Update{}
	}
}

func none(tb testing.TB, ch <-chan scheduler.Update) {
	tb.Helper()
	select {
	case up := <-ch:
		tb.Fatalf("unexpected update %+v", up)
	case <-time.After(50 * time.Millisecond):
	}
}

func mkQuote(t *testing.T, sym string, price int64, at time.Time, src string) quote.Quote {
	t.Helper()
	q, err := quote.New(quote.Raw{Symbol: sym, Price: decimal.NewFromInt(price), Currency: "USD", Timestamp: at, Source: src})
	require.NoError(t, err)
	return q
}

func decimalFromInt(n int64) decimal.Decimal { return decimal.NewFromInt(n) }

func newFetcher(srcs []source.Source) *fetcher.Fetcher {
	return fetcher.New(srcs, fetcher.WithConfig(fetcher.Config{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
		Timeout:     time.Second,
	}))
}
