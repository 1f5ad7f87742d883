// Package metrics exposes Prometheus instrumentation for the HTTP surface.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for Watchdeck.
type Metrics struct {
	RequestsTotal          *prometheus.CounterVec
	RequestDurationSeconds *prometheus.HistogramVec
	AuthFailuresTotal      prometheus.Counter
	RateLimitExceededTotal *prometheus.CounterVec
	RateLimitStoreErrors   prometheus.Counter
	RequestLogErrorsTotal  prometheus.Counter

	registry *prometheus.Registry
}

// New creates a Metrics instance with all metrics registered on a private
// registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "watchdeck_requests_total",
				Help: "Total number of HTTP requests handled",
			},
			[]string{"method", "status"},
		),
		RequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "watchdeck_request_duration_seconds",
				Help:    "HTTP request latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		AuthFailuresTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "watchdeck_auth_failures_total",
				Help: "Total number of rejected authentication attempts",
			},
		),
		RateLimitExceededTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "watchdeck_ratelimit_exceeded_total",
				Help: "Total number of requests rejected by the rate limiter",
			},
			[]string{"class"},
		),
		RateLimitStoreErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "watchdeck_ratelimit_store_errors_total",
				Help: "Total number of rate limit counter store failures",
			},
		),
		RequestLogErrorsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "watchdeck_request_log_errors_total",
				Help: "Total number of request log writes that failed",
			},
		),
		registry: reg,
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDurationSeconds,
		m.AuthFailuresTotal,
		m.RateLimitExceededTotal,
		m.RateLimitStoreErrors,
		m.RequestLogErrorsTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Handler returns the /metrics endpoint handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
