package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder publishes Prometheus metrics for cache and admin activity.
type Recorder struct {
	gatherer prometheus.Gatherer
	handler  http.Handler

	pageRequests *prometheus.CounterVec
	pageLatency  *prometheus.HistogramVec

	adminRequests *prometheus.CounterVec

	cacheOperations *prometheus.CounterVec
	cacheLatency    *prometheus.HistogramVec
}

// NewRecorder constructs a Prometheus-backed Recorder. When reg is nil a dedicated
// registry is created so multiple recorders can coexist without conflicting with
// the global default registerer.
func NewRecorder(reg *prometheus.Registry) *Recorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	reg.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	pageRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pagecache",
		Subsystem: "pages",
		Name:      "requests_total",
		Help:      "Total page requests served.",
	}, []string{"status_code", "from_cache"})

	pageLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "pagecache",
		Subsystem: "pages",
		Name:      "request_duration_seconds",
		Help:      "Latency distribution for completed page requests.",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"status_code", "from_cache"})

	adminRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pagecache",
		Subsystem: "admin",
		Name:      "requests_total",
		Help:      "Total admin API requests processed.",
	}, []string{"route", "status_code"})

	cacheOperations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pagecache",
		Subsystem: "cache",
		Name:      "operations_total",
		Help:      "Cache operations executed against the backend.",
	}, []string{"operation", "result"})

	cacheLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "pagecache",
		Subsystem: "cache",
		Name:      "operation_duration_seconds",
		Help:      "Latency distribution for cache operations.",
		Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
	}, []string{"operation", "result"})

	reg.MustRegister(pageRequests, pageLatency, adminRequests, cacheOperations, cacheLatency)

	handler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})

	return &Recorder{
		gatherer:        reg,
		handler:         handler,
		pageRequests:    pageRequests,
		pageLatency:     pageLatency,
		adminRequests:   adminRequests,
		cacheOperations: cacheOperations,
		cacheLatency:    cacheLatency,
	}
}

// Handler exposes the Prometheus HTTP handler for the recorder's registry.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "metrics unavailable", http.StatusServiceUnavailable)
		})
	}
	return r.handler
}

// Gatherer returns the underlying Prometheus gatherer for tests and advanced
// integrations.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.gatherer
}

// ObservePage records the outcome and latency for a completed page request.
func (r *Recorder) ObservePage(statusCode int, fromCache bool, duration time.Duration) {
	if r == nil {
		return
	}
	statusLabel := strconv.Itoa(statusCode)
	if statusCode <= 0 {
		statusLabel = "unknown"
	}
	cacheLabel := "false"
	if fromCache {
		cacheLabel = "true"
	}
	r.pageRequests.WithLabelValues(statusLabel, cacheLabel).Inc()
	r.pageLatency.WithLabelValues(statusLabel, cacheLabel).Observe(duration.Seconds())
}

// ObserveAdmin records one admin API request.
func (r *Recorder) ObserveAdmin(route string, statusCode int) {
	if r == nil {
		return
	}
	statusLabel := strconv.Itoa(statusCode)
	if statusCode <= 0 {
		statusLabel = "unknown"
	}
	r.adminRequests.WithLabelValues(normalizeLabel(route), statusLabel).Inc()
}

// ObserveCacheOperation records one backend operation with its result and
// latency. It satisfies the cache manager's observer contract.
func (r *Recorder) ObserveCacheOperation(operation, result string, elapsed time.Duration) {
	if r == nil {
		return
	}
	opLabel := normalizeLabel(operation)
	resLabel := normalizeLabel(result)
	r.cacheOperations.WithLabelValues(opLabel, resLabel).Inc()
	r.cacheLatency.WithLabelValues(opLabel, resLabel).Observe(elapsed.Seconds())
}

func normalizeLabel(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}
