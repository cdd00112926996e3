// Package metrics exposes Prometheus counters for authentication and HTTP traffic.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so tests can build independent instances.
type Metrics struct {
	registry *prometheus.Registry

	loginsOK      prometheus.Counter
	loginsFailed  prometheus.Counter
	accountLocks  prometheus.Counter
	accessDenied  prometheus.Counter
	httpRequests  *prometheus.CounterVec
	httpDurations *prometheus.HistogramVec
}

// New registers all collectors, including Go runtime and process metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		loginsOK: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "accounts_logins_succeeded_total",
			Help: "Successful credential checks",
		}),
		loginsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "accounts_logins_failed_total",
			Help: "Failed credential checks",
		}),
		accountLocks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "accounts_brute_force_locks_total",
			Help: "Accounts locked automatically after repeated failures",
		}),
		accessDenied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "accounts_access_denied_total",
			Help: "Requests rejected by the role policy",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "accounts_http_requests_total",
			Help: "HTTP requests by route and status",
		}, []string{"method", "route", "status"}),
		httpDurations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "accounts_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.loginsOK, m.loginsFailed, m.accountLocks, m.accessDenied,
		m.httpRequests, m.httpDurations,
	)
	return m
}

// LoginSucceeded implements service.Metrics.
func (m *Metrics) LoginSucceeded() { m.loginsOK.Inc() }

// LoginFailed implements service.Metrics.
func (m *Metrics) LoginFailed() { m.loginsFailed.Inc() }

// AccountLocked implements service.Metrics.
func (m *Metrics) AccountLocked() { m.accountLocks.Inc() }

// AccessDenied counts policy rejections.
func (m *Metrics) AccessDenied() { m.accessDenied.Inc() }

// ObserveHTTP records one finished request.
func (m *Metrics) ObserveHTTP(method, route, status string, seconds float64) {
	m.httpRequests.WithLabelValues(method, route, status).Inc()
	m.httpDurations.WithLabelValues(method, route).Observe(seconds)
}

// TrackGauge registers a gauge sampled from fn at scrape time.
func (m *Metrics) TrackGauge(name, help string, fn func() float64) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{Name: name, Help: help}, fn))
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
