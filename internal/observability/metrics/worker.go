package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "docintel"

// WorkerMetrics covers the pipeline pool, the individual pipeline steps and
// the retries and breakers guarding outbound calls.
type WorkerMetrics struct {
	registry *prometheus.Registry

	runTotal     *prometheus.CounterVec
	runDuration  *prometheus.HistogramVec
	runInFlight  prometheus.Gauge
	runDeferred  prometheus.Counter
	stepTotal    *prometheus.CounterVec
	stepDuration *prometheus.HistogramVec
	retryTotal   *prometheus.CounterVec
	breakerState *prometheus.GaugeVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()
	constLabels := prometheus.Labels{"service": service}

	runTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "pipeline",
			Name:        "runs_total",
			Help:        "Total pipeline runs by outcome.",
			ConstLabels: constLabels,
		},
		[]string{"outcome"},
	)
	runDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "pipeline",
			Name:        "run_duration_seconds",
			Help:        "Pipeline run duration in seconds by outcome.",
			Buckets:     []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
			ConstLabels: constLabels,
		},
		[]string{"outcome"},
	)
	runInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "pipeline",
			Name:        "runs_in_flight",
			Help:        "Number of pipeline runs currently executing.",
			ConstLabels: constLabels,
		},
	)
	runDeferred := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "pipeline",
			Name:        "runs_deferred_total",
			Help:        "Submissions deferred because the pool was at capacity.",
			ConstLabels: constLabels,
		},
	)
	stepTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "pipeline",
			Name:        "steps_total",
			Help:        "Pipeline steps by name and outcome.",
			ConstLabels: constLabels,
		},
		[]string{"step", "outcome"},
	)
	stepDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "pipeline",
			Name:        "step_duration_seconds",
			Help:        "Pipeline step duration in seconds.",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: constLabels,
		},
		[]string{"step"},
	)

	retryTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "outbound",
			Name:        "retries_total",
			Help:        "Retried outbound calls by operation.",
			ConstLabels: constLabels,
		},
		[]string{"operation"},
	)
	breakerState := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "outbound",
			Name:        "breaker_state",
			Help:        "Circuit breaker state by operation: 0 closed, 1 half-open, 2 open.",
			ConstLabels: constLabels,
		},
		[]string{"operation"},
	)

	registry.MustRegister(runTotal, runDuration, runInFlight, runDeferred, stepTotal, stepDuration, retryTotal, breakerState)

	return &WorkerMetrics{
		registry:     registry,
		runTotal:     runTotal,
		runDuration:  runDuration,
		runInFlight:  runInFlight,
		runDeferred:  runDeferred,
		stepTotal:    stepTotal,
		stepDuration: stepDuration,
		retryTotal:   retryTotal,
		breakerState: breakerState,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry lets the API process expose pool metrics next to its HTTP metrics.
func (m *WorkerMetrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *WorkerMetrics) StartDocument() {
	m.runInFlight.Inc()
}

func (m *WorkerMetrics) FinishDocument(duration time.Duration, err error) {
	m.runInFlight.Dec()

	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.runTotal.WithLabelValues(outcome).Inc()
	m.runDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

func (m *WorkerMetrics) RecordDeferred() {
	m.runDeferred.Inc()
}

func (m *WorkerMetrics) RecordPipelineStep(step, outcome string, duration time.Duration) {
	if outcome == "" {
		outcome = "unknown"
	}
	m.stepTotal.WithLabelValues(step, outcome).Inc()
	m.stepDuration.WithLabelValues(step).Observe(duration.Seconds())
}

func (m *WorkerMetrics) RecordRetry(operation string) {
	m.retryTotal.WithLabelValues(operation).Inc()
}

func (m *WorkerMetrics) RecordBreakerState(operation, state string) {
	var value float64
	switch state {
	case "half-open":
		value = 1
	case "open":
		value = 2
	}
	m.breakerState.WithLabelValues(operation).Set(value)
}
