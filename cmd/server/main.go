package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pricefeed/internal/app"
	"pricefeed/internal/config"
	"pricefeed/internal/logging"
	"pricefeed/internal/pricecache"
	"pricefeed/internal/session"
)

func main() {
	cfg, err := config.Load(os.Getenv("PRICEFEED_CONFIG"))
	if err != nil {
		logging.NewWithWriter(logging.Default(), os.Stderr).Error("config", "err", err)
		os.Exit(1)
	}
	log, logCloser, err := logging.New(cfg.Log)
	if err != nil {
		logging.NewWithWriter(logging.Default(), os.Stderr).Error("logging", "err", err)
		os.Exit(1)
	}
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error("wire pipeline", "err", err)
		os.Exit(1)
	}
	defer a.Close()

	h := &handler{
		prices:   pricecache.NewReadThrough(a.Cache, a.Fetcher),
		sessions: session.NewResolver(),
		log:      log,
		timeout:  time.Duration(cfg.Server.RequestTimeoutSec) * time.Second,
		maxBatch: cfg.Server.MaxBatchSymbols,
	}
	mux := h.routes()
	mux.Handle("GET /metrics", promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           withMetrics(a.Metrics, withJSONHeaders(withGzip(recoverPanic(log, limitBody(cfg.Server.MaxBodyBytes, mux))))),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      20 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("server listening", "addr", cfg.Server.Addr, "sources", len(a.Sources))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
