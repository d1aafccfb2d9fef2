// Package session resolves the trading session of a symbol's market at an
// instant: pre-market, regular hours, post-market or closed.
package session

import (
	"strings"
	"sync"
	"time"
	_ "time/tzdata" // markets must resolve without a system tz database

	"pricefeed/internal/quote"
	"pricefeed/internal/source"
)

// State is a trading session state.
type State string

const (
	Pre     State = "PRE"
	Regular State = "REGULAR"
	Post    State = "POST"
	Closed  State = "CLOSED"
)

// Clock is a wall-clock time of day in a market's location.
type Clock struct {
	Hour, Minute int
}

func (c Clock) on(y int, m time.Month, d int, loc *time.Location) time.Time {
	return time.Date(y, m, d, c.Hour, c.Minute, 0, 0, loc)
}

// Market describes one exchange's calendar. Windows are local wall-clock
// times: [PreOpen, Open) is PRE, [Open, Close) REGULAR, [Close, PostClose)
// POST, anything else CLOSED.
type Market struct {
	ID         string
	Location   *time.Location
	PreOpen    Clock
	Open       Clock
	Close      Clock
	PostClose  Clock
	AlwaysOpen bool

	holidays func(year int) []holiday

	mu    sync.Mutex
	years map[int]map[civil]string
}

var (
	US = &Market{
		ID:       "US",
		Location: mustLoad("America/New_York"),
		PreOpen:  Clock{4, 0}, Open: Clock{9, 30}, Close: Clock{16, 0}, PostClose: Clock{20, 0},
		holidays: usHolidays,
	}
	LSE = &Market{
		ID:       "LSE",
		Location: mustLoad("Europe/London"),
		PreOpen:  Clock{5, 5}, Open: Clock{8, 0}, Close: Clock{16, 30}, PostClose: Clock{17, 15},
		holidays: ukHolidays,
	}
	TSX = &Market{
		ID:       "TSX",
		Location: mustLoad("America/Toronto"),
		PreOpen:  Clock{4, 0}, Open: Clock{9, 30}, Close: Clock{16, 0}, PostClose: Clock{20, 0},
		holidays: tsxHolidays,
	}
	XETRA = &Market{
		ID:       "XETRA",
		Location: mustLoad("Europe/Berlin"),
		PreOpen:  Clock{8, 0}, Open: Clock{9, 0}, Close: Clock{17, 30}, PostClose: Clock{20, 0},
		holidays: xetraHolidays,
	}
	Crypto = &Market{
		ID:         "CRYPTO",
		Location:   time.UTC,
		AlwaysOpen: true,
	}
)

// suffixes maps exchange suffixes to markets. Symbols without a known suffix
// trade on the US market.
var suffixes = map[string]*Market{
	".L":  LSE,
	".TO": TSX,
	".DE": XETRA,
}

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

// MarketFor returns the market governing symbol.
func MarketFor(symbol string) *Market {
	sym := quote.NormalizeSymbol(symbol)
	if source.IsCrypto(sym) {
		return Crypto
	}
	if i := strings.LastIndexByte(sym, '.'); i > 0 {
		if m, ok := suffixes[sym[i:]]; ok {
			return m
		}
	}
	return US
}

// Resolve returns the session state of symbol's market at now.
func Resolve(symbol string, now time.Time) State {
	return MarketFor(symbol).State(now)
}

// NextTransition returns the next instant after now at which symbol's market
// changes state. It is zero for markets that never close.
func NextTransition(symbol string, now time.Time) time.Time {
	return MarketFor(symbol).NextTransition(now)
}

// State returns the session state at now.
func (m *Market) State(now time.Time) State {
	if m.AlwaysOpen {
		return Regular
	}
	local := now.In(m.Location)
	y, mo, d := local.Date()
	if !m.tradingDay(y, mo, d) {
		return Closed
	}
	switch {
	case local.Before(m.PreOpen.on(y, mo, d, m.Location)):
		return Closed
	case local.Before(m.Open.on(y, mo, d, m.Location)):
		return Pre
	case local.Before(m.Close.on(y, mo, d, m.Location)):
		return Regular
	case local.Before(m.PostClose.on(y, mo, d, m.Location)):
		return Post
	default:
		return Closed
	}
}

// NextTransition returns the first session boundary strictly after now. The
// search spans a little over two weeks, far longer than any run of
// consecutive non-trading days.
func (m *Market) NextTransition(now time.Time) time.Time {
	if m.AlwaysOpen {
		return time.Time{}
	}
	local := now.In(m.Location)
	y, mo, d := local.Date()
	for i := range 16 {
		day := time.Date(y, mo, d+i, 12, 0, 0, 0, m.Location)
		dy, dm, dd := day.Date()
		if !m.tradingDay(dy, dm, dd) {
			continue
		}
		for _, c := range []Clock{m.PreOpen, m.Open, m.Close, m.PostClose} {
			if b := c.on(dy, dm, dd, m.Location); b.After(now) {
				return b
			}
		}
	}
	return time.Time{}
}

// Holiday returns the name of the holiday the market observes on now's local
// date.
func (m *Market) Holiday(now time.Time) (string, bool) {
	if m.holidays == nil {
		return "", false
	}
	y, mo, d := now.In(m.Location).Date()
	name, ok := m.holidaysOf(y)[civil{y, mo, d}]
	return name, ok
}

func (m *Market) tradingDay(y int, mo time.Month, d int) bool {
	switch time.Date(y, mo, d, 12, 0, 0, 0, time.UTC).Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	if m.holidays == nil {
		return true
	}
	_, holiday := m.holidaysOf(y)[civil{y, mo, d}]
	return !holiday
}

func (m *Market) holidaysOf(year int) map[civil]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if set, ok := m.years[year]; ok {
		return set
	}
	set := make(map[civil]string)
	for _, h := range m.holidays(year) {
		set[h.Date] = h.Name
	}
	if m.years == nil {
		m.years = make(map[int]map[civil]string)
	}
	m.years[year] = set
	return set
}
