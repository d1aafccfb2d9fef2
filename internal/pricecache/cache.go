// Package pricecache keeps the most recent quote per symbol in a bounded,
// time-expiring LRU, and mirrors it to a durable store for cold starts.
package pricecache

import (
	"container/list"
	"sync"
	"time"

	"pricefeed/internal/metrics"
	"pricefeed/internal/quote"
)

const (
	DefaultTTL      = 5 * time.Minute
	DefaultCapacity = 1000
)

// Entry is one cached quote with its bookkeeping.
type Entry struct {
	Quote      quote.Quote
	InsertedAt time.Time
	Source     string
}

// NewEntry wraps q, inserted at now.
func NewEntry(q quote.Quote, now time.Time) Entry {
	return Entry{Quote: q, InsertedAt: now, Source: q.Source}
}

type item struct {
	symbol string
	entry  Entry
}

// Cache is a mutex-guarded LRU of entries keyed by symbol. The front of the
// list is the most recently used entry.
type Cache struct {
	ttl      time.Duration
	capacity int
	now      func() time.Time
	metrics  *metrics.Metrics

	mu    sync.Mutex
	ll    *list.List
	items map[string]*list.Element
}

// Option configures a Cache.
type Option func(*Cache)

func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func WithCapacity(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.capacity = n
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

func New(opts ...Option) *Cache {
	c := &Cache{
		ttl:      DefaultTTL,
		capacity: DefaultCapacity,
		now:      time.Now,
		ll:       list.New(),
		items:    make(map[string]*list.Element),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TTL is the age past which entries are treated as absent.
func (c *Cache) TTL() time.Duration { return c.ttl }

// Get returns the live entry for symbol and marks it most recently used.
// Entries older than the TTL are removed and reported absent.
func (c *Cache) Get(symbol string) (Entry, bool) {
	sym := quote.NormalizeSymbol(symbol)

	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[sym]
	if !ok {
		c.metrics.Lookup("miss")
		return Entry{}, false
	}
	it := el.Value.(*item)
	if c.now().Sub(it.entry.InsertedAt) > c.ttl {
		c.removeElement(el)
		c.metrics.Lookup("expired")
		return Entry{}, false
	}
	c.ll.MoveToFront(el)
	c.metrics.Lookup("hit")
	return it.entry, true
}

// Peek returns the entry for symbol regardless of age, without touching it.
func (c *Cache) Peek(symbol string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[quote.NormalizeSymbol(symbol)]
	if !ok {
		return Entry{}, false
	}
	return el.Value.(*item).entry, true
}

// Set stores e under symbol. An existing key is updated in place and becomes
// most recently used; a new key at capacity evicts the least recently used
// entry first.
func (c *Cache) Set(symbol string, e Entry) {
	sym := quote.NormalizeSymbol(symbol)
	if e.InsertedAt.IsZero() {
		e.InsertedAt = c.now()
	}
	if e.Source == "" {
		e.Source = e.Quote.Source
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[sym]; ok {
		el.Value.(*item).entry = e
		c.ll.MoveToFront(el)
		return
	}
	if c.ll.Len() >= c.capacity {
		if oldest := c.ll.Back(); oldest != nil {
			c.removeElement(oldest)
			c.metrics.Evicted()
		}
	}
	c.items[sym] = c.ll.PushFront(&item{symbol: sym, entry: e})
}

// Put caches q as inserted now.
func (c *Cache) Put(q quote.Quote) {
	c.Set(q.Symbol, NewEntry(q, c.now()))
}

// Delete removes symbol if present.
func (c *Cache) Delete(symbol string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[quote.NormalizeSymbol(symbol)]; ok {
		c.removeElement(el)
	}
}

func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ll.Init()
	clear(c.items)
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// Entries returns a snapshot keyed by symbol, most recently used first.
func (c *Cache) Entries() []Keyed {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Keyed, 0, c.ll.Len())
	for el := c.ll.Front(); el != nil; el = el.Next() {
		it := el.Value.(*item)
		out = append(out, Keyed{Symbol: it.symbol, Entry: it.entry})
	}
	return out
}

// Keyed pairs an entry with its symbol.
type Keyed struct {
	Symbol string
	Entry  Entry
}

// Restore loads entries given most recently used first, as returned by
// Entries. Existing keys are overwritten; capacity still applies.
func (c *Cache) Restore(entries []Keyed) {
	for i := len(entries) - 1; i >= 0; i-- {
		c.Set(entries[i].Symbol, entries[i].Entry)
	}
}

func (c *Cache) removeElement(el *list.Element) {
	c.ll.Remove(el)
	delete(c.items, el.Value.(*item).symbol)
}
