package main

import (
	"time"

	"github.com/spf13/cobra"

	"pricefeed/internal/quote"
	"pricefeed/internal/session"
)

func sessionCmd(opts *options) *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "session <symbol>...",
		Short: "Show the market session of each symbol's exchange",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now()
			if at != "" {
				t, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return err
				}
				now = t
			}
			r := session.NewResolver()
			statuses := make(map[string]session.MarketStatus, len(args))
			for _, s := range args {
				sym := quote.NormalizeSymbol(s)
				statuses[sym] = r.Status(sym, now)
			}
			if opts.jsonOut {
				return writeJSON(cmd.OutOrStdout(), statuses)
			}
			return writeSessions(cmd.OutOrStdout(), statuses)
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "evaluate at this RFC 3339 instant instead of now")
	return cmd
}
