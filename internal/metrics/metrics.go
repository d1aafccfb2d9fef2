// Package metrics holds the prometheus collectors of the price pipeline.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "pricefeed"

// Metrics is the set of pipeline collectors.
type Metrics struct {
	// FetchAttempts counts source attempts by source and outcome (ok, error).
	FetchAttempts *prometheus.CounterVec
	// CacheLookups counts cache reads by result (hit, miss, expired).
	CacheLookups *prometheus.CounterVec
	// CacheEvictions counts LRU evictions.
	CacheEvictions prometheus.Counter
	// RefreshCycles counts scheduler refresh cycles by outcome (ok, partial, failed, skipped).
	RefreshCycles *prometheus.CounterVec
	// RefreshDuration observes refresh cycle duration.
	RefreshDuration prometheus.Histogram
	// HTTPRequests counts server requests by route and status code.
	HTTPRequests *prometheus.CounterVec
}

// New creates the collectors and registers them on reg. A nil reg leaves
// them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FetchAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetcher",
			Name:      "attempts_total",
			Help:      "Source fetch attempts by source and outcome",
		}, []string{"source", "outcome"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Price cache lookups by result",
		}, []string{"result"}),
		CacheEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "evictions_total",
			Help:      "Price cache LRU evictions",
		}),
		RefreshCycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "refresh_cycles_total",
			Help:      "Refresh cycles by outcome",
		}, []string{"outcome"}),
		RefreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "refresh_duration_seconds",
			Help:      "Refresh cycle duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code",
		}, []string{"route", "code"}),
	}
	if reg != nil {
		reg.MustRegister(
			m.FetchAttempts,
			m.CacheLookups,
			m.CacheEvictions,
			m.RefreshCycles,
			m.RefreshDuration,
			m.HTTPRequests,
		)
	}
	return m
}

func (m *Metrics) Attempt(source string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.FetchAttempts.WithLabelValues(source, outcome).Inc()
}

func (m *Metrics) Lookup(result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) Evicted() {
	if m == nil {
		return
	}
	m.CacheEvictions.Inc()
}

func (m *Metrics) Cycle(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.RefreshCycles.WithLabelValues(outcome).Inc()
	if d > 0 {
		m.RefreshDuration.Observe(d.Seconds())
	}
}

func (m *Metrics) Request(route, code string) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, code).Inc()
}
