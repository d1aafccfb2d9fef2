package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"pricefeed/internal/currency"
	"pricefeed/internal/scheduler"
	"pricefeed/internal/session"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writePrices prints one row per symbol in symbol order. Symbols without a
// quote are listed as missing.
func writePrices(w io.Writer, symbols []string, prices map[string]scheduler.PriceView, showStaleness bool, now time.Time) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	header := "SYMBOL\tPRICE\tCHANGE\tCHANGE %\tSOURCE\tSESSION\tAGE"
	if showStaleness {
		header += "\tSTALENESS"
	}
	fmt.Fprintln(tw, header)

	sorted := append([]string(nil), symbols...)
	sort.Strings(sorted)
	for _, sym := range sorted {
		v, ok := prices[sym]
		if !ok {
			fmt.Fprintf(tw, "%s\t-\t-\t-\t-\t-\t-\n", sym)
			continue
		}
		q := v.Quote
		row := fmt.Sprintf("%s\t%s\t%s\t%s%%\t%s\t%s\t%s",
			q.Symbol,
			q.Display(),
			currency.Format(q.DisplayChange, q.DisplayCurrency),
			q.ChangePercent.StringFixed(2),
			q.Source,
			v.Session.State,
			q.Age(now).Truncate(time.Second),
		)
		if showStaleness {
			row += "\t" + string(v.Staleness)
		}
		fmt.Fprintln(tw, row)
	}
	return tw.Flush()
}

func writeSessions(w io.Writer, statuses map[string]session.MarketStatus) error {
	syms := make([]string, 0, len(statuses))
	for s := range statuses {
		syms = append(syms, s)
	}
	sort.Strings(syms)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SYMBOL\tMARKET\tSTATE\tHOLIDAY\tNEXT TRANSITION")
	for _, sym := range syms {
		st := statuses[sym]
		holiday := "-"
		if st.Holiday {
			holiday = st.HolidayName
		}
		next := "-"
		if !st.NextTransition.IsZero() {
			next = st.NextTransition.Local().Format(time.RFC1123)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", sym, st.Market, st.State, holiday, next)
	}
	return tw.Flush()
}
