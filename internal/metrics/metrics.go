// Package metrics provides Prometheus metrics for the gateway.
package metrics

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Default histogram buckets for API latency.
var defaultBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30}

// Backend label values.
const (
	BackendDatastore = "datastore"
	BackendInference = "inference"
)

// Augmentation outcome label values.
const (
	OutcomeApplied = "applied"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// Metrics holds all Prometheus metric collectors for the gateway.
type Metrics struct {
	Registry *prometheus.Registry

	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	UpstreamDuration  *prometheus.HistogramVec
	UpstreamResponses *prometheus.CounterVec

	RerankBatches        *prometheus.CounterVec
	RerankBatchDuration  prometheus.Histogram
	Augmentations        *prometheus.CounterVec
	ContextSlotWrites    prometheus.Counter
	IdempotentRemapTotal prometheus.Counter
}

// New creates a Metrics instance with a custom registry and all collectors registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		Registry: reg,

		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vectorgate_http_requests_total",
			Help: "Total inbound HTTP requests.",
		}, []string{"method", "status_code", "route"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vectorgate_http_request_duration_seconds",
			Help:    "Inbound HTTP request latency in seconds.",
			Buckets: defaultBuckets,
		}, []string{"method", "status_code", "route"}),

		RequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vectorgate_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed.",
		}),

		UpstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vectorgate_upstream_request_duration_seconds",
			Help:    "Backend call latency in seconds.",
			Buckets: defaultBuckets,
		}, []string{"backend", "method"}),

		UpstreamResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vectorgate_upstream_responses_total",
			Help: "Total backend responses by backend, method and status code.",
		}, []string{"backend", "method", "status_code"}),

		RerankBatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vectorgate_rerank_batches_total",
			Help: "Rerank batches submitted to the inference engine by result.",
		}, []string{"result"}),

		RerankBatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "vectorgate_rerank_batch_duration_seconds",
			Help:    "Rerank batch latency in seconds, including worker pool wait.",
			Buckets: defaultBuckets,
		}),

		Augmentations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vectorgate_search_augmentations_total",
			Help: "Search requests by augmentation outcome.",
		}, []string{"outcome"}),

		ContextSlotWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vectorgate_context_slot_writes_total",
			Help: "Embedding queries written to the query context slot.",
		}),

		IdempotentRemapTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vectorgate_idempotent_remaps_total",
			Help: "Backend 409 responses on collection creation rewritten to 200.",
		}),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.RequestsInFlight,
		m.UpstreamDuration,
		m.UpstreamResponses,
		m.RerankBatches,
		m.RerankBatchDuration,
		m.Augmentations,
		m.ContextSlotWrites,
		m.IdempotentRemapTotal,
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
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

// knownPrefixes lists the allowed route label values (bounded cardinality).
var knownPrefixes = []string{"/v1/embeddings", "/v1/models", "/collections", "/_gateway"}

// NormalizePath returns a bounded route label for Prometheus metrics.
// Collection search is labelled separately from the rest of /collections
// because it is the only intercepted datastore route.
func NormalizePath(path string) string {
	if isSearchPath(path) {
		return "/collections/search"
	}
	for _, prefix := range knownPrefixes {
		if path == prefix || strings.HasPrefix(path, prefix+"/") || strings.HasPrefix(path, prefix+"?") {
			return prefix
		}
	}
	return "other"
}

// isSearchPath reports whether path is /collections/{name}/points/search.
func isSearchPath(path string) bool {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	return len(parts) == 4 && parts[0] == "collections" && parts[1] != "" &&
		parts[2] == "points" && parts[3] == "search"
}
