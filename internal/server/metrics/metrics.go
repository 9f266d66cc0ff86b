// Package metrics owns the Prometheus registry of the identity server.
//
// Collectors are registered on an explicitly constructed registry rather than
// the global default, so tests and multiple server instances in one process
// do not collide.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "identity"

type Metrics struct {
	reg *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	httpInFlight prometheus.Gauge

	grpcRequests *prometheus.CounterVec
	grpcDuration *prometheus.HistogramVec

	eventsPublished *prometheus.CounterVec
	eventsDropped   *prometheus.CounterVec

	rateLimited *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		reg: reg,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by method, path, and status code.",
		}, []string{"method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and path.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"method", "path"}),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "Current number of HTTP requests being processed.",
		}),
		grpcRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grpc_requests_total",
			Help:      "Total number of gRPC calls by method and status code.",
		}, []string{"method", "code"}),
		grpcDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "grpc_request_duration_seconds",
			Help:      "gRPC call latency by method.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"method"}),
		eventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Lifecycle events handed to the bus, by type and result.",
		}, []string{"type", "result"}),
		eventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Lifecycle events dropped because the dispatch queue was full or closed.",
		}, []string{"type"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter, by path.",
		}, []string{"path"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests, m.httpDuration, m.httpInFlight,
		m.grpcRequests, m.grpcDuration,
		m.eventsPublished, m.eventsDropped,
		m.rateLimited,
	)
	return m
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func (m *Metrics) HTTPStarted()  { m.httpInFlight.Inc() }
func (m *Metrics) HTTPFinished() { m.httpInFlight.Dec() }

// ObserveHTTP records one finished request. path is normalised first.
func (m *Metrics) ObserveHTTP(method, path string, status int, d time.Duration) {
	p := NormalisePath(path)
	m.httpRequests.WithLabelValues(method, p, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, p).Observe(d.Seconds())
}

func (m *Metrics) ObserveGRPC(method, code string, d time.Duration) {
	m.grpcRequests.WithLabelValues(method, code).Inc()
	m.grpcDuration.WithLabelValues(method).Observe(d.Seconds())
}

func (m *Metrics) RateLimited(path string) {
	m.rateLimited.WithLabelValues(NormalisePath(path)).Inc()
}

// EventPublished and EventDropped make Metrics an events.Observer.
func (m *Metrics) EventPublished(eventType string, ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	m.eventsPublished.WithLabelValues(eventType, result).Inc()
}

func (m *Metrics) EventDropped(eventType string) {
	m.eventsDropped.WithLabelValues(eventType).Inc()
}

// NormalisePath keeps label cardinality bounded: known routes map to
// themselves and everything else collapses to "/other".
func NormalisePath(p string) string {
	switch p {
	case "/auth/signup", "/auth/login", "/auth/refresh", "/auth/logout", "/auth/validate",
		"/health/live", "/health/ready", "/metrics":
		return p
	default:
		return "/other"
	}
}
