package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"pricefeed/internal/app"
	"pricefeed/internal/prefs"
)

func prefsCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prefs",
		Short: "Show or change the refresh preferences",
	}
	cmd.AddCommand(prefsShowCmd(opts), prefsSetCmd(opts))
	return cmd
}

func prefsShowCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the stored preferences",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, closer, err := opts.load()
			if err != nil {
				return err
			}
			defer closer.Close()
			store, storeCloser, err := app.OpenStore(cmd.Context(), cfg.Store)
			if err != nil {
				return err
			}
			if storeCloser != nil {
				defer storeCloser.Close()
			}
			p, err := prefs.Load(cmd.Context(), store)
			if err != nil {
				log.Warn("stored preferences unreadable, showing defaults", "err", err)
			}
			return printPrefs(cmd, opts, p)
		},
	}
}

func prefsSetCmd(opts *options) *cobra.Command {
	var (
		cadence         string
		showStaleness   bool
		pauseWhenHidden bool
	)
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Change and persist preferences",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var patch prefs.Patch
			if cmd.Flags().Changed("cadence") {
				c, err := prefs.ParseCadence(cadence)
				if err != nil {
					return err
				}
				patch.Cadence = &c
			}
			if cmd.Flags().Changed("show-staleness") {
				patch.ShowStaleness = &showStaleness
			}
			if cmd.Flags().Changed("pause-when-hidden") {
				patch.PauseWhenHidden = &pauseWhenHidden
			}
			if patch == (prefs.Patch{}) {
				return errors.New("nothing to set: pass --cadence, --show-staleness or --pause-when-hidden")
			}

			a, closeApp, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer closeApp()
			p, err := a.Scheduler.SetPreferences(cmd.Context(), patch)
			if err != nil {
				return err
			}
			return printPrefs(cmd, opts, p)
		},
	}
	cmd.Flags().StringVar(&cadence, "cadence", "", "manual, 15s, 30s, 1m, 2m, 5m, 10m or 15m")
	cmd.Flags().BoolVar(&showStaleness, "show-staleness", true, "show the staleness column")
	cmd.Flags().BoolVar(&pauseWhenHidden, "pause-when-hidden", true, "pause polling while hidden")
	return cmd
}

func printPrefs(cmd *cobra.Command, opts *options, p prefs.Preferences) error {
	if opts.jsonOut {
		return writeJSON(cmd.OutOrStdout(), p)
	}
	_, err := fmt.Fprintf(cmd.OutOrStdout(), "cadence: %s\nshow staleness: %t\npause when hidden: %t\n",
		p.Cadence, p.ShowStaleness, p.PauseWhenHidden)
	return err
}
