package session_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"pricefeed/internal/session"
)

var (
	newYork = mustLoad("America/New_York")
	london  = mustLoad("Europe/London")
	berlin  = mustLoad("Europe/Berlin")
	toronto = mustLoad("America/Toronto")
)

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

func TestMarketFor(t *testing.T) {
	t.Parallel()

	tests := map[string]*session.Market{
		"AAPL":   session.US,
		"BRK.B":  session.US,
		"vod.l":  session.LSE,
		"RY.TO":  session.TSX,
		"SAP.DE": session.XETRA,
		"BTC":    session.Crypto,
		"eth":    session.Crypto,
	}
	for sym, want := range tests {
		require.Samef(t, want, session.MarketFor(sym), "market for %s", sym)
	}
}

func TestResolve_USWindows(t *testing.T) {
	t.Parallel()

	// Tuesday 2025-03-04.
	at := func(h, m int) time.Time { return time.Date(2025, 3, 4, h, m, 0, 0, newYork) }

	tests := []struct {
		at   time.Time
		want session.State
	}{
		{at(3, 59), session.Closed},
		{at(4, 0), session.Pre},
		{at(9, 29), session.Pre},
		{at(9, 30), session.Regular},
		{at(15, 59), session.Regular},
		{at(16, 0), session.Post},
		{at(19, 59), session.Post},
		{at(20, 0), session.Closed},
	}
	for _, tt := range tests {
		require.Equalf(t, tt.want, session.Resolve("AAPL", tt.at), "at %s", tt.at.Format(time.Kitchen))
	}
}

func TestResolve_WeekendIsClosed(t *testing.T) {
	t.Parallel()

	weekday := time.Date(2025, 3, 7, 11, 0, 0, 0, newYork)  // Friday
	saturday := time.Date(2025, 3, 8, 11, 0, 0, 0, newYork) // same wall clock
	sunday := time.Date(2025, 3, 9, 11, 0, 0, 0, newYork)

	require.Equal(t, session.Regular, session.Resolve("AAPL", weekday))
	require.Equal(t, session.Closed, session.Resolve("AAPL", saturday))
	require.Equal(t, session.Closed, session.Resolve("AAPL", sunday))
}

func TestResolve_EvaluatesInMarketTimeAcrossDST(t *testing.T) {
	t.Parallel()

	// 13:30 UTC is 08:30 EST before the March switch and 09:30 EDT after it.
	before := time.Date(2025, 3, 7, 13, 30, 0, 0, time.UTC)
	after := time.Date(2025, 3, 10, 13, 30, 0, 0, time.UTC)

	require.Equal(t, session.Pre, session.Resolve("AAPL", before))
	require.Equal(t, session.Regular, session.Resolve("AAPL", after))

	// The evaluating process's zone does not matter.
	tokyo := mustLoad("Asia/Tokyo")
	require.Equal(t, session.Regular, session.Resolve("AAPL", after.In(tokyo)))

	// London opens at 08:00 local, which is 07:00 UTC in summer.
	summer := time.Date(2025, 7, 1, 7, 0, 0, 0, time.UTC)
	require.Equal(t, session.Regular, session.Resolve("VOD.L", summer))
	require.Equal(t, session.Pre, session.Resolve("VOD.L", summer.Add(-time.Minute)))
}

func TestResolve_OtherMarkets(t *testing.T) {
	t.Parallel()

	require.Equal(t, session.Pre, session.Resolve("SAP.DE", time.Date(2025, 3, 4, 8, 30, 0, 0, berlin)))
	require.Equal(t, session.Regular, session.Resolve("SAP.DE", time.Date(2025, 3, 4, 17, 29, 0, 0, berlin)))
	require.Equal(t, session.Post, session.Resolve("SAP.DE", time.Date(2025, 3, 4, 17, 30, 0, 0, berlin)))
	require.Equal(t, session.Post, session.Resolve("VOD.L", time.Date(2025, 3, 4, 17, 0, 0, 0, london)))
	require.Equal(t, session.Closed, session.Resolve("VOD.L", time.Date(2025, 3, 4, 17, 15, 0, 0, london)))
	require.Equal(t, session.Regular, session.Resolve("RY.TO", time.Date(2025, 3, 4, 10, 0, 0, 0, toronto)))
}

func TestResolve_CryptoNeverCloses(t *testing.T) {
	t.Parallel()

	christmas := time.Date(2025, 12, 25, 3, 0, 0, 0, time.UTC)
	require.Equal(t, session.Regular, session.Resolve("BTC", christmas))
	require.True(t, session.NextTransition("BTC", christmas).IsZero())
}

func TestResolve_Holidays(t *testing.T) {
	t.Parallel()

	tests := []struct {
		symbol string
		at     time.Time
		name   string
	}{
		{"AAPL", time.Date(2025, 4, 18, 11, 0, 0, 0, newYork), "Good Friday"},
		{"AAPL", time.Date(2025, 11, 27, 11, 0, 0, 0, newYork), "Thanksgiving Day"},
		{"AAPL", time.Date(2026, 7, 3, 11, 0, 0, 0, newYork), "Independence Day"},
		{"AAPL", time.Date(2025, 1, 20, 11, 0, 0, 0, newYork), "Martin Luther King Jr. Day"},
		{"AAPL", time.Date(2025, 5, 26, 11, 0, 0, 0, newYork), "Memorial Day"},
		{"VOD.L", time.Date(2026, 4, 6, 10, 0, 0, 0, london), "Easter Monday"},
		{"VOD.L", time.Date(2026, 12, 28, 10, 0, 0, 0, london), "Boxing Day"},
		{"VOD.L", time.Date(2025, 8, 25, 10, 0, 0, 0, london), "Summer Bank Holiday"},
		{"SAP.DE", time.Date(2025, 12, 24, 10, 0, 0, 0, berlin), "Christmas Eve"},
		{"SAP.DE", time.Date(2025, 5, 1, 10, 0, 0, 0, berlin), "Labour Day"},
		{"RY.TO", time.Date(2025, 5, 19, 10, 0, 0, 0, toronto), "Victoria Day"},
		{"RY.TO", time.Date(2025, 2, 17, 10, 0, 0, 0, toronto), "Family Day"},
	}
	for _, tt := range tests {
		m := session.MarketFor(tt.symbol)
		require.Equalf(t, session.Closed, m.State(tt.at), "%s on %s", tt.symbol, tt.at.Format(time.DateOnly))
		name, ok := m.Holiday(tt.at)
		require.Truef(t, ok, "%s on %s", tt.symbol, tt.at.Format(time.DateOnly))
		require.Equal(t, tt.name, name)
	}

	// A regular Thursday is not a holiday.
	_, ok := session.US.Holiday(time.Date(2025, 11, 20, 11, 0, 0, 0, newYork))
	require.False(t, ok)
}

func TestNextTransition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		sym  string
		now  time.Time
		want time.Time
	}{
		{
			name: "pre to regular",
			sym:  "AAPL",
			now:  time.Date(2025, 3, 4, 8, 0, 0, 0, newYork),
			want: time.Date(2025, 3, 4, 9, 30, 0, 0, newYork),
		},
		{
			name: "boundary instant moves to the next one",
			sym:  "AAPL",
			now:  time.Date(2025, 3, 4, 9, 30, 0, 0, newYork),
			want: time.Date(2025, 3, 4, 16, 0, 0, 0, newYork),
		},
		{
			name: "friday evening across the DST switch",
			sym:  "AAPL",
			now:  time.Date(2025, 3, 7, 21, 0, 0, 0, newYork),
			want: time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC), // 04:00 EDT
		},
		{
			name: "skips a holiday weekend",
			sym:  "AAPL",
			now:  time.Date(2025, 4, 17, 20, 30, 0, 0, newYork),
			want: time.Date(2025, 4, 21, 4, 0, 0, 0, newYork),
		},
		{
			name: "london closed to pre",
			sym:  "VOD.L",
			now:  time.Date(2025, 3, 4, 2, 0, 0, 0, london),
			want: time.Date(2025, 3, 4, 5, 5, 0, 0, london),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := session.NextTransition(tt.sym, tt.now)
			require.Truef(t, tt.want.Equal(got), "want %s, got %s", tt.want, got)
		})
	}
}

func TestResolver_CachesUntilNextTransition(t *testing.T) {
	t.Parallel()

	// Arrange
	r := session.NewResolver()
	pre := time.Date(2025, 3, 4, 9, 29, 59, 0, newYork)

	// Act
	first := r.Status("AAPL", pre)
	again := r.Status("MSFT", pre.Add(500*time.Millisecond))
	open := r.Status("AAPL", pre.Add(time.Second))

	// Assert: same market shares the cached status until the boundary.
	require.Equal(t, session.Pre, first.State)
	require.Equal(t, "US", first.Market)
	require.Equal(t, first, again)
	require.Equal(t, session.Regular, open.State)
	require.True(t, open.NextTransition.Equal(time.Date(2025, 3, 4, 16, 0, 0, 0, newYork)))
}

func TestResolver_HolidayFlagFollowsDate(t *testing.T) {
	t.Parallel()

	// Arrange: Good Friday evening, then Saturday morning.
	r := session.NewResolver()
	friday := r.Status("AAPL", time.Date(2025, 4, 18, 22, 0, 0, 0, newYork))
	saturday := r.Status("AAPL", time.Date(2025, 4, 19, 9, 0, 0, 0, newYork))

	// Assert
	require.True(t, friday.Holiday)
	require.Equal(t, "Good Friday", friday.HolidayName)
	require.False(t, saturday.Holiday)
	require.Equal(t, session.Closed, saturday.State)
}

func TestResolver_ClearCache(t *testing.T) {
	t.Parallel()

	r := session.NewResolver()
	now := time.Date(2025, 3, 4, 10, 0, 0, 0, newYork)
	st := r.Status("AAPL", now)
	r.ClearCache()

	require.Equal(t, st, r.Status("AAPL", now))
	require.Equal(t, session.Regular, r.Status("BTC", now).State)
}
