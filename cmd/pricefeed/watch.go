package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"pricefeed/internal/app"
	"pricefeed/internal/prefs"
	"pricefeed/internal/scheduler"
)

func watchCmd(opts *options) *cobra.Command {
	var cadence string
	cmd := &cobra.Command{
		Use:   "watch [symbol...]",
		Short: "Poll prices at the configured cadence until interrupted",
		Long: `watch refreshes the watch list at the configured cadence and prints
a table after every refresh. Without arguments it watches the configured
symbols. Use --cadence to change the persisted cadence. Reachability is
probed in the background; while offline, ticks skip fetching and the first
probe that succeeds triggers one refresh.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, closeApp, err := opts.open(ctx)
			if err != nil {
				return err
			}
			defer closeApp()

			s := a.Scheduler
			if len(args) > 0 {
				s.SetWatchedSymbols(args)
			}
			if len(s.WatchedSymbols()) == 0 {
				return errors.New("nothing to watch: pass symbols or set them in the config")
			}
			if cadence != "" {
				c, err := prefs.ParseCadence(cadence)
				if err != nil {
					return err
				}
				if _, err := s.SetPreferences(ctx, prefs.Patch{Cadence: &c}); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			var mu sync.Mutex
			unsubscribe := s.Subscribe(func(u scheduler.Update) {
				if u.Cycle == "" {
					return
				}
				mu.Lock()
				defer mu.Unlock()
				fmt.Fprintf(out, "\n%s\n", u.At.Local().Format(time.TimeOnly))
				if opts.jsonOut {
					_ = writeJSON(out, u.Prices)
				} else {
					_ = writePrices(out, s.WatchedSymbols(), u.Prices, s.Preferences().ShowStaleness, u.At)
				}
				if u.Err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", u.Err)
				}
			})
			defer unsubscribe()

			if _, err := s.RefreshAllPrices(ctx); err != nil {
				a.Log.Warn("initial refresh", "err", err)
			}
			p := s.Preferences()
			if p.Cadence.IsManual() {
				fmt.Fprintln(cmd.ErrOrStderr(), "cadence is manual; not polling")
				return nil
			}
			if mon := app.Connectivity(a.Config, a.Log); mon != nil {
				monCtx, stopMon := context.WithCancel(ctx)
				var monWG sync.WaitGroup
				monWG.Add(1)
				go func() {
					defer monWG.Done()
					mon.Run(monCtx, s.SetOnline)
				}()
				defer func() {
					stopMon()
					monWG.Wait()
				}()
			}
			s.Start()
			a.Log.Info("watching", "symbols", len(s.WatchedSymbols()), "cadence", p.Cadence.String())
			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().StringVar(&cadence, "cadence", "", "refresh cadence: manual, 15s, 30s, 1m, 2m, 5m, 10m or 15m")
	return cmd
}
