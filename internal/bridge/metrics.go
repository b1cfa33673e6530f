package bridge

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Kenbark42/dominus-ai/internal/conversation"
)

// Metrics holds the bridge's Prometheus collectors on a private registry,
// keeping the /metrics output limited to what the bridge itself exports.
type Metrics struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	generations        prometheus.Counter
	generationDuration prometheus.Histogram
	promptTokens       prometheus.Counter
	completionTokens   prometheus.Counter
	backendErrors      prometheus.Counter
	toolCalls          prometheus.Counter
}

// NewMetrics creates the collectors and registers an active-session gauge
// backed by the manager's working set.
func NewMetrics(manager *conversation.Manager) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dominus",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, path pattern, and status.",
		}, []string{"method", "path", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dominus",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by path pattern.",
			Buckets:   []float64{.005, .05, .25, 1, 5, 30, 120, 600},
		}, []string{"method", "path"}),
		generations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dominus",
			Name:      "generations_total",
			Help:      "Completed backend generations.",
		}),
		generationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "dominus",
			Name:      "generation_duration_seconds",
			Help:      "End-to-end generation latency including prompt assembly.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		promptTokens: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dominus",
			Name:      "prompt_tokens_total",
			Help:      "Prompt tokens evaluated by the backend.",
		}),
		completionTokens: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dominus",
			Name:      "completion_tokens_total",
			Help:      "Completion tokens generated by the backend.",
		}),
		backendErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dominus",
			Name:      "backend_errors_total",
			Help:      "Failed backend calls.",
		}),
		toolCalls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dominus",
			Name:      "tool_calls_total",
			Help:      "Tool invocations requested by the model.",
		}),
	}

	m.registry.MustRegister(
		m.requests, m.requestDuration,
		m.generations, m.generationDuration,
		m.promptTokens, m.completionTokens,
		m.backendErrors, m.toolCalls,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "dominus",
			Name:      "active_sessions",
			Help:      "Sessions in the in-memory working set.",
		}, func() float64 { return float64(manager.Len()) }),
	)

	return m
}

// Handler serves the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordGeneration records one completed generation.
func (m *Metrics) RecordGeneration(promptTokens, completionTokens int, d time.Duration) {
	m.generations.Inc()
	m.generationDuration.Observe(d.Seconds())
	m.promptTokens.Add(float64(promptTokens))
	m.completionTokens.Add(float64(completionTokens))
}

// RecordBackendError records a failed backend call.
func (m *Metrics) RecordBackendError() {
	m.backendErrors.Inc()
}

// RecordToolCalls records n tool invocations.
func (m *Metrics) RecordToolCalls(n int) {
	m.toolCalls.Add(float64(n))
}

// middleware instruments every request with count and latency, labelled by
// the chi route pattern rather than the raw path to bound cardinality.
func (m *Metrics) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		pattern := chiRoutePattern(r)
		m.requests.WithLabelValues(r.Method, pattern, strconv.Itoa(ww.Status())).Inc()
		m.requestDuration.WithLabelValues(r.Method, pattern).Observe(time.Since(start).Seconds())
	})
}

func chiRoutePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}
