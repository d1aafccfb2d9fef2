package session

import "time"

type civil struct {
	Year  int
	Month time.Month
	Day   int
}

func date(y int, m time.Month, d int) civil {
	t := time.Date(y, m, d, 12, 0, 0, 0, time.UTC)
	return civil{t.Year(), t.Month(), t.Day()}
}

func (c civil) weekday() time.Weekday {
	return time.Date(c.Year, c.Month, c.Day, 12, 0, 0, 0, time.UTC).Weekday()
}

func (c civil) add(days int) civil { return date(c.Year, c.Month, c.Day+days) }

// holiday is a non-trading weekday.
type holiday struct {
	Date civil
	Name string
}

// easter returns Easter Sunday (anonymous Gregorian algorithm).
func easter(y int) civil {
	a := y % 19
	b, c := y/100, y%100
	d, e := b/4, b%4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i, k := c/4, c%4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := (h+l-7*m+114)%31 + 1
	return date(y, time.Month(month), day)
}

// nthWeekday returns the n-th wd of the month, n starting at 1.
func nthWeekday(y int, m time.Month, wd time.Weekday, n int) civil {
	first := date(y, m, 1)
	offset := (int(wd) - int(first.weekday()) + 7) % 7
	return first.add(offset + 7*(n-1))
}

// lastWeekday returns the last wd on or before the given day of the month.
func lastWeekday(y int, m time.Month, wd time.Weekday, onOrBefore int) civil {
	d := date(y, m, onOrBefore)
	return d.add(-((int(d.weekday()) - int(wd) + 7) % 7))
}

func lastOfMonth(y int, m time.Month) int {
	return date(y, m+1, 0).Day
}

// nearestWeekday moves Saturdays back to Friday and Sundays on to Monday.
func nearestWeekday(c civil) civil {
	switch c.weekday() {
	case time.Saturday:
		return c.add(-1)
	case time.Sunday:
		return c.add(1)
	}
	return c
}

// nextWeekday moves weekend dates on to the following Monday.
func nextWeekday(c civil) civil {
	for c.weekday() == time.Saturday || c.weekday() == time.Sunday {
		c = c.add(1)
	}
	return c
}

// christmasPair returns the first two weekdays on or after December 25,
// which is how both Christmas and Boxing Day are substituted.
func christmasPair(y int) (civil, civil) {
	first := nextWeekday(date(y, time.December, 25))
	return first, nextWeekday(first.add(1))
}

func usHolidays(y int) []holiday {
	var hs []holiday
	// New Year's Day on a Saturday is not observed on the preceding Friday.
	if ny := date(y, time.January, 1); ny.weekday() != time.Saturday {
		hs = append(hs, holiday{nearestWeekday(ny), "New Year's Day"})
	}
	hs = append(hs,
		holiday{nthWeekday(y, time.January, time.Monday, 3), "Martin Luther King Jr. Day"},
		holiday{nthWeekday(y, time.February, time.Monday, 3), "Presidents' Day"},
		holiday{easter(y).add(-2), "Good Friday"},
		holiday{lastWeekday(y, time.May, time.Monday, 31), "Memorial Day"},
	)
	if y >= 2022 {
		hs = append(hs, holiday{nearestWeekday(date(y, time.June, 19)), "Juneteenth"})
	}
	hs = append(hs,
		holiday{nearestWeekday(date(y, time.July, 4)), "Independence Day"},
		holiday{nthWeekday(y, time.September, time.Monday, 1), "Labor Day"},
		holiday{nthWeekday(y, time.November, time.Thursday, 4), "Thanksgiving Day"},
		holiday{nearestWeekday(date(y, time.December, 25)), "Christmas Day"},
	)
	return hs
}

func ukHolidays(y int) []holiday {
	xmas, boxing := christmasPair(y)
	e := easter(y)
	return []holiday{
		{nextWeekday(date(y, time.January, 1)), "New Year's Day"},
		{e.add(-2), "Good Friday"},
		{e.add(1), "Easter Monday"},
		{nthWeekday(y, time.May, time.Monday, 1), "Early May Bank Holiday"},
		{lastWeekday(y, time.May, time.Monday, 31), "Spring Bank Holiday"},
		{lastWeekday(y, time.August, time.Monday, lastOfMonth(y, time.August)), "Summer Bank Holiday"},
		{xmas, "Christmas Day"},
		{boxing, "Boxing Day"},
	}
}

func xetraHolidays(y int) []holiday {
	e := easter(y)
	return []holiday{
		{date(y, time.January, 1), "New Year's Day"},
		{e.add(-2), "Good Friday"},
		{e.add(1), "Easter Monday"},
		{date(y, time.May, 1), "Labour Day"},
		{date(y, time.December, 24), "Christmas Eve"},
		{date(y, time.December, 25), "Christmas Day"},
		{date(y, time.December, 26), "Boxing Day"},
		{date(y, time.December, 31), "New Year's Eve"},
	}
}

func tsxHolidays(y int) []holiday {
	xmas, boxing := christmasPair(y)
	return []holiday{
		{nextWeekday(date(y, time.January, 1)), "New Year's Day"},
		{nthWeekday(y, time.February, time.Monday, 3), "Family Day"},
		{easter(y).add(-2), "Good Friday"},
		{lastWeekday(y, time.May, time.Monday, 24), "Victoria Day"},
		{nextWeekday(date(y, time.July, 1)), "Canada Day"},
		{nthWeekday(y, time.August, time.Monday, 1), "Civic Holiday"},
		{nthWeekday(y, time.September, time.Monday, 1), "Labour Day"},
		{nthWeekday(y, time.October, time.Monday, 2), "Thanksgiving Day"},
		{xmas, "Christmas Day"},
		{boxing, "Boxing Day"},
	}
}
