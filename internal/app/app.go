// Package app assembles the pipeline from a config: sources, fetcher,
// cache, store and scheduler.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"pricefeed/internal/config"
	"pricefeed/internal/connectivity"
	"pricefeed/internal/fetcher"
	"pricefeed/internal/httpx"
	"pricefeed/internal/kv"
	"pricefeed/internal/logging"
	"pricefeed/internal/metrics"
	"pricefeed/internal/pricecache"
	"pricefeed/internal/scheduler"
	"pricefeed/internal/source"
	"pricefeed/internal/source/coingecko"
	"pricefeed/internal/source/proxy"
	"pricefeed/internal/source/ratelimit"
	"pricefeed/internal/source/yahoo"
)

// App is a wired pipeline.
type App struct {
	Config    config.Config
	Log       *slog.Logger
	Registry  *prometheus.Registry
	Metrics   *metrics.Metrics
	Store     kv.Store
	Sources   []source.Source
	Fetcher   *fetcher.Fetcher
	Cache     *pricecache.Cache
	Scheduler *scheduler.Scheduler

	closers []io.Closer
}

// New wires every component from cfg. The scheduler is loaded but not
// started.
func New(ctx context.Context, cfg config.Config, log *slog.Logger) (*App, error) {
	log = logging.Or(log)
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	a := &App{Config: cfg, Log: log, Registry: reg, Metrics: m}

	store, closer, err := OpenStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	a.Store = store
	if closer != nil {
		a.closers = append(a.closers, closer)
	}

	a.Sources = Sources(cfg, log)
	if len(a.Sources) == 0 {
		_ = a.Close()
		return nil, errors.New("no price source configured")
	}
	a.Fetcher = NewFetcher(cfg.Fetcher, a.Sources, log, m)
	a.Cache = pricecache.New(
		pricecache.WithTTL(time.Duration(cfg.Cache.TTLSeconds)*time.Second),
		pricecache.WithCapacity(cfg.Cache.MaxItems),
		pricecache.WithMetrics(m),
	)
	a.Scheduler = scheduler.New(a.Fetcher, a.Cache, store,
		scheduler.WithLogger(log),
		scheduler.WithMetrics(m),
	)
	a.Scheduler.Load(ctx)
	if len(a.Scheduler.WatchedSymbols()) == 0 {
		a.Scheduler.SetWatchedSymbols(cfg.Symbols)
	}
	return a, nil
}

// Close stops the scheduler and releases the store.
func (a *App) Close() error {
	if a.Scheduler != nil {
		a.Scheduler.Close()
	}
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// OpenStore opens the configured durable store. The closer is nil when
// nothing needs closing.
func OpenStore(ctx context.Context, cfg config.Store) (kv.Store, io.Closer, error) {
	switch cfg.Kind {
	case config.StoreMemory:
		return kv.NewMemory(), nil, nil
	case config.StoreFile:
		return kv.NewFile(cfg.Path), nil, nil
	case config.StoreRedis:
		r, err := kv.NewRedis(ctx, kv.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.RedisPrefix,
		})
		if err != nil {
			return nil, nil, err
		}
		return r, r, nil
	default:
		return nil, nil, fmt.Errorf("unknown store kind %q", cfg.Kind)
	}
}

// Sources builds the enabled sources in priority order: the proxy first when
// configured, then Yahoo for securities and CoinGecko for crypto.
func Sources(cfg config.Config, log *slog.Logger) []source.Source {
	log = logging.Or(log)
	var out []source.Source
	if cfg.Proxy.Enabled {
		hc := httpx.New(seconds(cfg.Proxy.TimeoutSec))
		p := proxy.New(proxy.Config{
			URL:                cfg.Proxy.Endpoint,
			Timeout:            seconds(cfg.Proxy.TimeoutSec),
			MaxItemsPerRequest: cfg.Proxy.MaxItemsPerRequest,
			MaxConcurrency:     cfg.Proxy.MaxConcurrency,
		}, hc)
		out = append(out, limit(p, cfg.Proxy.RateLimit))
	}
	if cfg.Yahoo.Enabled {
		hc := httpx.New(seconds(cfg.Yahoo.TimeoutSec))
		opts := []yahoo.ClientOption{yahoo.WithHTTPClient(hc)}
		if cfg.Yahoo.Endpoint != "" {
			opts = append(opts, yahoo.WithBaseURL(cfg.Yahoo.Endpoint))
		}
		y := yahoo.New(yahoo.Config{Timeout: seconds(cfg.Yahoo.TimeoutSec)}, yahoo.NewClient(opts...))
		out = append(out, limit(y, cfg.Yahoo.RateLimit))
	}
	if cfg.CoinGecko.Enabled {
		if cfg.CoinGecko.APIKey == "" {
			log.Debug("coingecko api key not set, using the public rate limit")
		}
		hc := httpx.New(seconds(cfg.CoinGecko.TimeoutSec))
		cg := coingecko.New(coingecko.Config{
			URL:      cfg.CoinGecko.Endpoint,
			APIKey:   cfg.CoinGecko.APIKey,
			Currency: cfg.CoinGecko.Currency,
			Timeout:  seconds(cfg.CoinGecko.TimeoutSec),
		}, hc)
		out = append(out, limit(cg, cfg.CoinGecko.RateLimit))
	}
	return out
}

// limit prefers a token bucket when a per-minute rate is set, otherwise a
// minimum interval, otherwise no limiter at all.
func limit(s source.Source, rl config.RateLimit) source.Source {
	switch {
	case rl.MaxRequestsPerMinute > 0:
		return ratelimit.NewPerMinute(s, rl.MaxRequestsPerMinute, rl.Burst)
	case rl.MinRequestIntervalMS > 0:
		return ratelimit.NewMinInterval(s, time.Duration(rl.MinRequestIntervalMS)*time.Millisecond)
	default:
		return s
	}
}

// Connectivity returns the reachability monitor for cfg, or nil when it is
// disabled or nothing can be probed.
func Connectivity(cfg config.Config, log *slog.Logger) *connectivity.Monitor {
	if !cfg.Connectivity.Enabled {
		return nil
	}
	url := cfg.Connectivity.URL
	switch {
	case url != "":
	case cfg.Proxy.Enabled:
		url = cfg.Proxy.Endpoint
	case cfg.Yahoo.Enabled:
		url = cfg.Yahoo.Endpoint
	case cfg.CoinGecko.Enabled:
		url = cfg.CoinGecko.Endpoint
	}
	if url == "" {
		return nil
	}
	timeout := seconds(cfg.Connectivity.TimeoutSec)
	return connectivity.New(connectivity.Config{
		URL:      url,
		Interval: seconds(cfg.Connectivity.IntervalSec),
		Timeout:  timeout,
	}, httpx.New(timeout), logging.Or(log))
}

// NewFetcher builds the retry/fallback fetcher from its config section.
func NewFetcher(cfg config.Fetcher, srcs []source.Source, log *slog.Logger, m *metrics.Metrics) *fetcher.Fetcher {
	return fetcher.New(srcs,
		fetcher.WithConfig(fetcher.Config{
			MaxAttempts:      cfg.MaxAttempts,
			BaseDelay:        time.Duration(cfg.BaseDelayMS) * time.Millisecond,
			MaxDelay:         time.Duration(cfg.MaxDelayMS) * time.Millisecond,
			Timeout:          seconds(cfg.TimeoutSec),
			BatchConcurrency: cfg.BatchConcurrency,
		}),
		fetcher.WithLogger(log),
		fetcher.WithMetrics(m),
	)
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }
