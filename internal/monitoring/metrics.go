// Package monitoring - metrics.go provides Prometheus collectors.
//
// DESIGN: One Metrics value owns a private registry so several engines
// (and tests) can coexist in one process:
//   - operations_total / operation_duration_seconds: per engine call
//   - errors_total:                by stage and kind
//   - iterations_total:            committed removals
//   - rejected_candidates_total:   candidates ruled out by similarity
//   - words_removed_total:         words dropped by prune/hybrid
//   - http_requests_total / http_request_duration_seconds
package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "prompt_pruner"

// Metrics holds all Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	OperationsTotal      *prometheus.CounterVec
	OperationDuration    *prometheus.HistogramVec
	ErrorsTotal          *prometheus.CounterVec
	IterationsTotal      *prometheus.CounterVec
	RejectedTotal        *prometheus.CounterVec
	WordsRemovedTotal    *prometheus.CounterVec
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
}

// NewMetrics creates the collectors and registers them on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		OperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Engine operations by operation and outcome (ok, best_effort, error).",
			},
			[]string{"operation", "outcome"},
		),
		OperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Engine operation latency in seconds.",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"operation"},
		),
		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Failed operations by stage and error kind.",
			},
			[]string{"stage", "kind"},
		),
		IterationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "iterations_total",
				Help:      "Committed pruning iterations.",
			},
			[]string{"operation"},
		),
		RejectedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rejected_candidates_total",
				Help:      "Candidates rejected by the similarity floor.",
			},
			[]string{"operation"},
		),
		WordsRemovedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "words_removed_total",
				Help:      "Words removed from prompts.",
			},
			[]string{"operation"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by method, path and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "HTTP requests currently being served.",
			},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.OperationsTotal,
		m.OperationDuration,
		m.ErrorsTotal,
		m.IterationsTotal,
		m.RejectedTotal,
		m.WordsRemovedTotal,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
	)
	return m
}

// Registry exposes the registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler returns the scrape handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordOperation records one engine call. outcome is ok, best_effort or error.
func (m *Metrics) RecordOperation(op Operation, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.OperationsTotal.WithLabelValues(string(op), outcome).Inc()
	m.OperationDuration.WithLabelValues(string(op)).Observe(d.Seconds())
}

// RecordError records a failed operation.
func (m *Metrics) RecordError(stage, kind string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(stage, kind).Inc()
}

// RecordRun records the shape of a finished prune or hybrid run.
func (m *Metrics) RecordRun(op Operation, iterations, rejected, wordsRemoved int) {
	if m == nil {
		return
	}
	m.IterationsTotal.WithLabelValues(string(op)).Add(float64(iterations))
	m.RejectedTotal.WithLabelValues(string(op)).Add(float64(rejected))
	m.WordsRemovedTotal.WithLabelValues(string(op)).Add(float64(wordsRemoved))
}

// RecordHTTP records one served request.
func (m *Metrics) RecordHTTP(method, path string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(d.Seconds())
}
