// pricefeed fetches, caches and watches market quotes from the command line.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"pricefeed/internal/app"
	"pricefeed/internal/config"
	"pricefeed/internal/logging"
)

var version = "0.1.0"

// options are the persistent flags shared by every command.
type options struct {
	configPath string
	logLevel   string
	jsonOut    bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd(&options{}).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(opts *options) *cobra.Command {
	root := &cobra.Command{
		Use:           "pricefeed",
		Short:         "Live market quotes with retry, caching and polling",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", os.Getenv("PRICEFEED_CONFIG"), "config file (.json, .yaml or .yml)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override the configured log level")
	root.PersistentFlags().BoolVar(&opts.jsonOut, "json", false, "print JSON instead of a table")

	root.AddCommand(
		quoteCmd(opts),
		watchCmd(opts),
		sessionCmd(opts),
		prefsCmd(opts),
		versionCmd(),
	)
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "pricefeed version %s\n", version)
		},
	}
}

func (o *options) load() (config.Config, *slog.Logger, io.Closer, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return cfg, nil, nil, err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	log, closer, err := logging.New(cfg.Log)
	if err != nil {
		return cfg, nil, nil, err
	}
	return cfg, log, closer, nil
}

// open wires the pipeline; the returned func releases it.
func (o *options) open(ctx context.Context) (*app.App, func(), error) {
	cfg, log, logCloser, err := o.load()
	if err != nil {
		return nil, nil, err
	}
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		logCloser.Close()
		return nil, nil, err
	}
	return a, func() {
		if err := a.Close(); err != nil {
			log.Warn("close", "err", err)
		}
		logCloser.Close()
	}, nil
}
