package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"pricefeed/internal/quote"
)

func quoteCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "quote <symbol>...",
		Short: "Fetch the current price of one or more symbols",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, closeApp, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer closeApp()

			syms := make([]string, 0, len(args))
			for _, s := range args {
				syms = append(syms, quote.NormalizeSymbol(s))
			}
			a.Scheduler.SetWatchedSymbols(syms)
			prices, err := a.Scheduler.RefreshAllPrices(cmd.Context())
			if err != nil && len(prices) == 0 {
				return err
			}
			if opts.jsonOut {
				if werr := writeJSON(cmd.OutOrStdout(), prices); werr != nil {
					return werr
				}
			} else if werr := writePrices(cmd.OutOrStdout(), syms, prices, a.Scheduler.Preferences().ShowStaleness, time.Now()); werr != nil {
				return werr
			}
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
			}
			return nil
		},
	}
}
