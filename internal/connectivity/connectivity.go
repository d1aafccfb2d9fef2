// Package connectivity watches whether the price endpoints are reachable and
// reports transitions to a listener such as the scheduler's SetOnline.
package connectivity

//go:generate mockgen -package=connectivity_test -destination=mock_http_client_test.go pricefeed/internal/httpx HTTPClient

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"pricefeed/internal/httpx"
)

const (
	DefaultInterval = 15 * time.Second
	DefaultTimeout  = 5 * time.Second
)

// Config selects the probe target and cadence.
type Config struct {
	URL      string        // any response from it counts as online
	Interval time.Duration // default 15s
	Timeout  time.Duration // per probe, default 5s
}

// Monitor probes URL on an interval. Only transport failures count as
// offline: an HTTP error status still proves the network is up.
type Monitor struct {
	cfg  Config
	http httpx.HTTPClient
	log  *slog.Logger
}

func New(cfg Config, hc httpx.HTTPClient, log *slog.Logger) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if hc == nil {
		hc = httpx.New(cfg.Timeout)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Monitor{cfg: cfg, http: hc, log: log}
}

// Check probes once.
func (m *Monitor) Check(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, m.cfg.URL, nil)
	if err != nil {
		m.log.Warn("connectivity probe", "url", m.cfg.URL, "err", err)
		return false
	}
	res, err := m.http.Do(req)
	if err != nil {
		m.log.Debug("connectivity probe failed", "url", m.cfg.URL, "err", err)
		return false
	}
	_ = res.Body.Close()
	return true
}

// Run probes until ctx ends, calling report on every change. The first probe
// is reported only when it finds the network down, since callers start
// online.
func (m *Monitor) Run(ctx context.Context, report func(online bool)) {
	online := true
	t := time.NewTicker(m.cfg.Interval)
	defer t.Stop()
	for {
		if up := m.Check(ctx); up != online && ctx.Err() == nil {
			online = up
			m.log.Info("connectivity changed", "online", up)
			report(up)
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}
