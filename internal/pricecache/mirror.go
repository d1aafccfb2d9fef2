package pricecache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"pricefeed/internal/kv"
	"pricefeed/internal/quote"
)

// MirrorKey is the store key holding the flattened cache.
const MirrorKey = "pricefeed.price-cache"

// record is the persisted form of one entry.
type record struct {
	quote.Record
	InsertedAt int64 `json:"insertedAt"` // unix milliseconds
}

// Mirror persists a Cache to a kv.Store.
type Mirror struct {
	store kv.Store
	key   string
	log   *slog.Logger
}

func NewMirror(store kv.Store, log *slog.Logger) *Mirror {
	if log == nil {
		log = slog.Default()
	}
	return &Mirror{store: store, key: MirrorKey, log: log}
}

// Save writes the whole cache. An empty cache is never written: it would
// wipe a valid mirror after a transient failure to populate. It reports
// whether a write happened.
func (m *Mirror) Save(ctx context.Context, c *Cache) (bool, error) {
	entries := c.Entries()
	if len(entries) == 0 {
		m.log.Debug("price cache empty, mirror not written")
		return false, nil
	}
	doc := make(map[string]record, len(entries))
	for _, e := range entries {
		doc[e.Symbol] = record{Record: e.Entry.Quote.Record(), InsertedAt: e.Entry.InsertedAt.UnixMilli()}
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return false, fmt.Errorf("encode price cache: %w", err)
	}
	if err := m.store.Set(ctx, m.key, b); err != nil {
		return false, fmt.Errorf("write price cache: %w", err)
	}
	return true, nil
}

// Load reads the mirror. Records that cannot be rebuilt into a valid quote
// are skipped with a warning. Entries are returned most recently inserted
// first, ready for Cache.Restore.
func (m *Mirror) Load(ctx context.Context) ([]Keyed, error) {
	b, ok, err := m.store.Get(ctx, m.key)
	if err != nil {
		return nil, fmt.Errorf("read price cache: %w", err)
	}
	if !ok {
		return nil, nil
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("decode price cache: %w", err)
	}

	out := make([]Keyed, 0, len(doc))
	for sym, raw := range doc {
		var rec record
		if err := json.Unmarshal(raw, &rec); err != nil {
			m.log.Warn("skipping corrupt cached price", "symbol", sym, "err", err)
			continue
		}
		q, err := quote.FromRecord(sym, rec.Record)
		if err != nil {
			m.log.Warn("skipping invalid cached price", "symbol", sym, "err", err)
			continue
		}
		inserted := q.Timestamp
		if rec.InsertedAt > 0 {
			inserted = time.UnixMilli(rec.InsertedAt)
		}
		out = append(out, Keyed{Symbol: q.Symbol, Entry: Entry{Quote: q, InsertedAt: inserted, Source: q.Source}})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Entry.InsertedAt.Equal(out[j].Entry.InsertedAt) {
			return out[i].Symbol < out[j].Symbol
		}
		return out[i].Entry.InsertedAt.After(out[j].Entry.InsertedAt)
	})
	return out, nil
}
