// Package metrics provides Prometheus metrics for the ops engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the engine.
type Metrics struct {
	EventsTotal        *prometheus.CounterVec
	CollectionsTotal   *prometheus.CounterVec
	CollectionDuration prometheus.Histogram
	InferenceTotal     *prometheus.CounterVec
	InferenceDuration  prometheus.Histogram
	SnapshotCacheHits  *prometheus.CounterVec
	SuggestionsTotal   *prometheus.CounterVec
	OptimizationsTotal *prometheus.CounterVec
	PendingSuggestions prometheus.Gauge
	ErrorsTotal        *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates and registers all metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		EventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "opsengine_events_total",
				Help: "Total number of registered context events by source and type.",
			},
			[]string{"source", "type"},
		),
		CollectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "opsengine_collections_total",
				Help: "Total number of context collections by status.",
			},
			[]string{"status"},
		),
		CollectionDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "opsengine_collection_duration_seconds",
				Help:    "Context collection duration.",
				Buckets: prometheus.DefBuckets,
			},
		),
		InferenceTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "opsengine_inference_calls_total",
				Help: "Total number of inference calls by status.",
			},
			[]string{"status"},
		),
		InferenceDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "opsengine_inference_duration_seconds",
				Help:    "Inference call duration.",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60},
			},
		),
		SnapshotCacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "opsengine_snapshot_cache_total",
				Help: "Snapshot cache lookups by result (hit, miss).",
			},
			[]string{"result"},
		),
		SuggestionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "opsengine_suggestions_total",
				Help: "Suggestions processed by outcome (stored, duplicate, flagged).",
			},
			[]string{"outcome"},
		),
		OptimizationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "opsengine_optimizations_total",
				Help: "Optimizations processed by outcome (pending, auto_applied, flagged).",
			},
			[]string{"outcome"},
		),
		PendingSuggestions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "opsengine_pending_suggestions",
				Help: "Number of suggestions currently pending disposition.",
			},
		),
		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "opsengine_errors_total",
				Help: "Total errors by module and type.",
			},
			[]string{"module", "type"},
		),
		registry: reg,
	}

	reg.MustRegister(m.EventsTotal)
	reg.MustRegister(m.CollectionsTotal)
	reg.MustRegister(m.CollectionDuration)
	reg.MustRegister(m.InferenceTotal)
	reg.MustRegister(m.InferenceDuration)
	reg.MustRegister(m.SnapshotCacheHits)
	reg.MustRegister(m.SuggestionsTotal)
	reg.MustRegister(m.OptimizationsTotal)
	reg.MustRegister(m.PendingSuggestions)
	reg.MustRegister(m.ErrorsTotal)

	return m
}

// Handler returns an http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordEvent increments the event counter.
func (m *Metrics) RecordEvent(source, evType string) {
	m.EventsTotal.WithLabelValues(source, evType).Inc()
}

// RecordCollection increments the collection counter and observes duration.
func (m *Metrics) RecordCollection(status string, seconds float64) {
	m.CollectionsTotal.WithLabelValues(status).Inc()
	m.CollectionDuration.Observe(seconds)
}

// RecordInference increments the inference counter and observes duration.
func (m *Metrics) RecordInference(status string, seconds float64) {
	m.InferenceTotal.WithLabelValues(status).Inc()
	m.InferenceDuration.Observe(seconds)
}

// RecordCacheLookup increments the snapshot cache counter.
func (m *Metrics) RecordCacheLookup(result string) {
	m.SnapshotCacheHits.WithLabelValues(result).Inc()
}

// RecordSuggestion increments the suggestion outcome counter.
func (m *Metrics) RecordSuggestion(outcome string) {
	m.SuggestionsTotal.WithLabelValues(outcome).Inc()
}

// RecordOptimization increments the optimization outcome counter.
func (m *Metrics) RecordOptimization(outcome string) {
	m.OptimizationsTotal.WithLabelValues(outcome).Inc()
}

// RecordError increments the error counter.
func (m *Metrics) RecordError(module, errType string) {
	m.ErrorsTotal.WithLabelValues(module, errType).Inc()
}

// SetPendingSuggestions sets the pending suggestion gauge.
func (m *Metrics) SetPendingSuggestions(count float64) {
	m.PendingSuggestions.Set(count)
}
