package graph

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics collects pipeline execution metrics.
//
// Metrics exposed (all namespaced with "agentpipe_"):
//
//  1. inflight_runs (gauge): Run calls currently executing.
//  2. node_latency_ms (histogram): node execution duration.
//     Labels: node_id, status (success/error).
//     Buckets: [1, 5, 10, 50, 100, 500, 1000, 5000, 10000].
//  3. runs_total (counter): completed Run/RunTask calls.
//     Labels: final_state.
//  4. run_failures_total (counter): failed runs by reason.
//     Labels: reason (router_node_error, execute_node_error,
//     validator_node_error, validation_failed, task_not_found, ...).
//  5. trace_write_errors_total (counter): trace or status writes that
//     failed and were swallowed so the primary flow could continue.
//
// Usage:
//
//	registry := prometheus.NewRegistry()
//	metrics := graph.NewPrometheusMetrics(registry)
//	ctrl := controller.New(st, sel, controller.WithMetrics(metrics))
//	http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
//
// A nil *PrometheusMetrics is valid and records nothing.
type PrometheusMetrics struct {
	inflightRuns prometheus.Gauge

	nodeLatency *prometheus.HistogramVec

	runs        *prometheus.CounterVec
	failures    *prometheus.CounterVec
	traceErrors prometheus.Counter

	registry prometheus.Registerer

	mu      sync.RWMutex
	enabled bool
}

// NewPrometheusMetrics creates and registers all pipeline metrics with the
// provided registry. A nil registry uses prometheus.DefaultRegisterer.
func NewPrometheusMetrics(registry prometheus.Registerer) *PrometheusMetrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	pm := &PrometheusMetrics{
		registry: registry,
		enabled:  true,
	}

	pm.inflightRuns = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "agentpipe",
		Name:      "inflight_runs",
		Help:      "Number of pipeline runs currently executing",
	})

	pm.nodeLatency = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "agentpipe",
		Name:      "node_latency_ms",
		Help:      "Node execution duration in milliseconds",
		Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000},
	}, []string{"node_id", "status"})

	pm.runs = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agentpipe",
		Name:      "runs_total",
		Help:      "Completed pipeline runs by final controller state",
	}, []string{"final_state"})

	pm.failures = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agentpipe",
		Name:      "run_failures_total",
		Help:      "Failed pipeline runs by failure reason",
	}, []string{"reason"})

	pm.traceErrors = factory.NewCounter(prometheus.CounterOpts{
		Namespace: "agentpipe",
		Name:      "trace_write_errors_total",
		Help:      "Trace, decision, or status writes that failed during a run",
	})

	return pm
}

func (pm *PrometheusMetrics) active() bool {
	if pm == nil {
		return false
	}
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.enabled
}

// RecordNodeLatency observes one node execution.
func (pm *PrometheusMetrics) RecordNodeLatency(nodeID string, latency time.Duration, status string) {
	if !pm.active() {
		return
	}
	pm.nodeLatency.WithLabelValues(nodeID, status).Observe(float64(latency) / float64(time.Millisecond))
}

// RunStarted increments the inflight gauge.
func (pm *PrometheusMetrics) RunStarted() {
	if !pm.active() {
		return
	}
	pm.inflightRuns.Inc()
}

// RunFinished decrements the inflight gauge and counts the outcome.
func (pm *PrometheusMetrics) RunFinished(finalState ControllerState) {
	if !pm.active() {
		return
	}
	pm.inflightRuns.Dec()
	pm.runs.WithLabelValues(string(finalState)).Inc()
}

// IncrementFailures counts one failed run.
func (pm *PrometheusMetrics) IncrementFailures(reason string) {
	if !pm.active() {
		return
	}
	pm.failures.WithLabelValues(reason).Inc()
}

// IncrementTraceErrors counts one swallowed trace or status write failure.
func (pm *PrometheusMetrics) IncrementTraceErrors() {
	if !pm.active() {
		return
	}
	pm.traceErrors.Inc()
}

// Disable temporarily disables metric recording.
func (pm *PrometheusMetrics) Disable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = false
}

// Enable re-enables metric recording after Disable.
func (pm *PrometheusMetrics) Enable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = true
}
