// Package metrics exposes Prometheus collectors for the calendar services.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "paycal"

type Metrics struct {
	registry *prometheus.Registry

	entriesGenerated *prometheus.CounterVec
	entriesRemoved   prometheus.Counter
	expansionRuns    *prometheus.CounterVec
	projections      *prometheus.CounterVec
	projectionTime   prometheus.Histogram
	cacheSwept       prometheus.Counter
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
}

// New registers every collector on a private registry, together with the
// Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		entriesGenerated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entries_generated_total",
			Help:      "Calendar entries materialized from templates.",
		}, []string{"type"}),
		entriesRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entries_removed_total",
			Help:      "Unpaid generated entries removed with their template.",
		}),
		expansionRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "expansion_runs_total",
			Help:      "Template synchronization passes by outcome.",
		}, []string{"outcome"}),
		projections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "projections_total",
			Help:      "Calendar projections served, by cache result.",
		}, []string{"cache"}),
		projectionTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "projection_duration_seconds",
			Help:      "Time spent sequencing and projecting a calendar.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		cacheSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "projection_cache_expired_total",
			Help:      "Expired projections removed by the cache sweeper.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.entriesGenerated,
		m.entriesRemoved,
		m.expansionRuns,
		m.projections,
		m.projectionTime,
		m.cacheSwept,
		m.httpRequests,
		m.httpDuration,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) EntriesGenerated(bills, paydays int) {
	if m == nil {
		return
	}
	m.entriesGenerated.WithLabelValues("bill").Add(float64(bills))
	m.entriesGenerated.WithLabelValues("payday").Add(float64(paydays))
}

func (m *Metrics) EntriesRemoved(n int) {
	if m == nil {
		return
	}
	m.entriesRemoved.Add(float64(n))
}

// ExpansionRun counts one template sync; err decides the outcome label.
func (m *Metrics) ExpansionRun(err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.expansionRuns.WithLabelValues(outcome).Inc()
}

// Projection records a served projection. Cache hits are not timed.
func (m *Metrics) Projection(hit bool, took time.Duration) {
	if m == nil {
		return
	}
	if hit {
		m.projections.WithLabelValues("hit").Inc()
		return
	}
	m.projections.WithLabelValues("miss").Inc()
	m.projectionTime.Observe(took.Seconds())
}

func (m *Metrics) CacheSwept(n int) {
	if m == nil {
		return
	}
	m.cacheSwept.Add(float64(n))
}

// ObserveHTTP records one finished request.
func (m *Metrics) ObserveHTTP(method, route string, status int, took time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(route).Observe(took.Seconds())
}
