package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/docintel/internal/core/domain"
)

// HTTPServerMetrics covers the API surface: request counts and latency per
// route, plus the outcome of each answered question.
type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	ragQueriesTotal *prometheus.CounterVec
	ragMatches      prometheus.Histogram
	ragDuration     *prometheus.HistogramVec
	llmTokensTotal  *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	labels := prometheus.Labels{"service": service}

	return &HTTPServerMetrics{
		registry: registry,
		requestTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "http", ConstLabels: labels,
			Name: "requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "path", "status"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "http", ConstLabels: labels,
			Name:    "request_duration_seconds",
			Help:    "HTTP request latency by method and route.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"method", "path"}),
		requestInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "http", ConstLabels: labels,
			Name: "in_flight_requests",
			Help: "HTTP requests currently being served.",
		}),
		ragQueriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "rag", ConstLabels: labels,
			Name: "queries_total",
			Help: "Answered questions by outcome.",
		}, []string{"outcome"}),
		ragMatches: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "rag", ConstLabels: labels,
			Name:    "retrieved_chunks",
			Help:    "Chunks retrieved per question.",
			Buckets: []float64{0, 1, 2, 3, 5, 8, 13, 21},
		}),
		ragDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "rag", ConstLabels: labels,
			Name:    "duration_seconds",
			Help:    "Time to answer a question by outcome.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 40, 80},
		}, []string{"outcome"}),
		llmTokensTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "llm", ConstLabels: labels,
			Name: "tokens_total",
			Help: "Provider-reported token usage by direction.",
		}, []string{"direction"}),
	}
}

// Handler serves this registry plus any extra gatherers, such as the
// in-process pipeline pool's.
func (m *HTTPServerMetrics) Handler(extra ...prometheus.Gatherer) http.Handler {
	gatherers := prometheus.Gatherers{m.registry}
	gatherers = append(gatherers, extra...)
	return promhttp.HandlerFor(gatherers, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(r.Method, path, strconv.Itoa(recorder.statusCode)).Inc()
		m.requestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// normalizePath collapses document ids so label cardinality stays bounded.
func normalizePath(path string) string {
	rest, ok := strings.CutPrefix(path, "/v1/documents/")
	if !ok || rest == "" {
		return path
	}
	if _, action, found := strings.Cut(rest, "/"); found {
		return "/v1/documents/{id}/" + action
	}
	return "/v1/documents/{id}"
}

func (m *HTTPServerMetrics) RecordRAGQuery(outcome string, matches int, duration time.Duration, usage domain.TokenUsage) {
	m.ragQueriesTotal.WithLabelValues(outcome).Inc()
	m.ragDuration.WithLabelValues(outcome).Observe(duration.Seconds())
	m.ragMatches.Observe(float64(matches))
	if usage.PromptTokens > 0 {
		m.llmTokensTotal.WithLabelValues("in").Add(float64(usage.PromptTokens))
	}
	if usage.CompletionTokens > 0 {
		m.llmTokensTotal.WithLabelValues("out").Add(float64(usage.CompletionTokens))
	}
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
