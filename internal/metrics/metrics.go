// Package metrics provides Prometheus metrics for the server.
package metrics

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Default histogram buckets for request latency. Code runs can take seconds.
var defaultBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30}

// Metrics holds all Prometheus metric collectors for the server.
type Metrics struct {
	Registry *prometheus.Registry

	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	CodeRunnerDuration  *prometheus.HistogramVec
	CodeRunnerResponses *prometheus.CounterVec
}

// New creates a Metrics instance with a custom registry and all collectors registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		Registry: reg,
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bookie_server_http_requests_total",
			Help: "Total inbound HTTP requests.",
		}, []string{"method", "status_code", "path_prefix"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bookie_server_http_request_duration_seconds",
			Help:    "Inbound HTTP request latency in seconds.",
			Buckets: defaultBuckets,
		}, []string{"method", "status_code", "path_prefix"}),
		RequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bookie_server_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed.",
		}),
		CodeRunnerDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bookie_server_code_runner_request_duration_seconds",
			Help:    "Code runner call latency in seconds.",
			Buckets: defaultBuckets,
		}, []string{"outcome"}),
		CodeRunnerResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bookie_server_code_runner_responses_total",
			Help: "Total code runner responses by status code.",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.RequestsInFlight,
		m.CodeRunnerDuration,
		m.CodeRunnerResponses,
	)

	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// knownMethods lists the allowed HTTP method label values (bounded cardinality).
var knownMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "DELETE": true,
	"PATCH": true, "HEAD": true, "OPTIONS": true,
}

// NormalizeMethod returns a bounded HTTP method label for Prometheus metrics.
// Non-standard methods are mapped to "other" to prevent cardinality explosion.
func NormalizeMethod(method string) string {
	if knownMethods[method] {
		return method
	}
	return "other"
}

// knownPrefixes lists the allowed path label values (bounded cardinality).
var knownPrefixes = []string{"/code_runner", "/healthz", "/proxy/status", "/static"}

// NormalizePath returns a bounded path label for Prometheus metrics.
// The contents page keeps its own label, as do the built-in prefixes and any
// extra prefixes passed in (the configured scrape path). Chapter pages and
// unknown paths collapse into "other".
func NormalizePath(path string, extra ...string) string {
	if path == "/" {
		return "/"
	}
	for _, prefixes := range [][]string{knownPrefixes, extra} {
		for _, prefix := range prefixes {
			if prefix == "" || prefix == "/" {
				continue
			}
			if path == prefix || strings.HasPrefix(path, prefix+"/") {
				return prefix
			}
		}
	}
	return "other"
}
