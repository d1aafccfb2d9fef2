package session

import (
	"sync"
	"time"
)

// MarketStatus is the derived session status of a market.
type MarketStatus struct {
	Market         string    `json:"market"`
	State          State     `json:"state"`
	Holiday        bool      `json:"holiday"`
	HolidayName    string    `json:"holidayName,omitempty"`
	NextTransition time.Time `json:"nextTransition,omitzero"`
}

// Status computes the status of m at now.
func (m *Market) Status(now time.Time) MarketStatus {
	name, holiday := m.Holiday(now)
	return MarketStatus{
		Market:         m.ID,
		State:          m.State(now),
		Holiday:        holiday,
		HolidayName:    name,
		NextTransition: m.NextTransition(now),
	}
}

type cached struct {
	status MarketStatus
	from   time.Time
	until  time.Time // zero: valid forever
}

func (c cached) valid(now time.Time) bool {
	return !now.Before(c.from) && (c.until.IsZero() || now.Before(c.until))
}

// Resolver caches MarketStatus per market. A cached status is recomputed once
// now reaches its next transition or the market's next local midnight, so the
// holiday flag follows the calendar too.
type Resolver struct {
	mu    sync.Mutex
	cache map[string]cached
}

func NewResolver() *Resolver {
	return &Resolver{cache: make(map[string]cached)}
}

// Status returns the status of symbol's market at now.
func (r *Resolver) Status(symbol string, now time.Time) MarketStatus {
	m := MarketFor(symbol)

	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.cache[m.ID]; ok && c.valid(now) {
		return c.status
	}
	st := m.Status(now)
	until := st.NextTransition
	if !m.AlwaysOpen {
		y, mo, d := now.In(m.Location).Date()
		midnight := time.Date(y, mo, d+1, 0, 0, 0, 0, m.Location)
		if until.IsZero() || midnight.Before(until) {
			until = midnight
		}
	}
	r.cache[m.ID] = cached{status: st, from: now, until: until}
	return st
}

// ClearCache drops every cached status.
func (r *Resolver) ClearCache() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.cache)
}
