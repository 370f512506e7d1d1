package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP request metrics
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status_code", "service"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "service"},
	)

	// Projection metrics
	projectionRecomputeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "projection_recompute_duration_seconds",
			Help:    "Duration of full projection recomputation in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
		},
		[]string{"service"},
	)

	projectionRecomputesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "projection_recomputes_total",
			Help: "Total number of projection recomputations",
		},
		[]string{"trigger", "service"},
	)

	// Persistence metrics
	persistenceRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "persistence_retries_total",
			Help: "Total number of retried persistence operations",
		},
		[]string{"operation", "service"},
	)

	persistenceFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "persistence_failures_total",
			Help: "Total number of persistence operations that exhausted retries",
		},
		[]string{"operation", "service"},
	)

	// Catalog metrics
	catalogMissesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_misses_total",
			Help: "Total number of medicine catalog lookup misses",
		},
		[]string{"service"},
	)
)

// MetricsCollector handles Prometheus metrics collection
type MetricsCollector struct {
	serviceName string
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector(serviceName string) *MetricsCollector {
	// Register metrics
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		projectionRecomputeDuration,
		projectionRecomputesTotal,
		persistenceRetriesTotal,
		persistenceFailuresTotal,
		catalogMissesTotal,
	)

	return &MetricsCollector{
		serviceName: serviceName,
	}
}

// RecordHTTPRequest records HTTP request metrics
func (m *MetricsCollector) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, endpoint, statusCode, m.serviceName).Inc()
	httpRequestDuration.WithLabelValues(method, endpoint, m.serviceName).Observe(duration.Seconds())
}

// RecordRecompute records a full projection recomputation
func (m *MetricsCollector) RecordRecompute(trigger string, duration time.Duration) {
	projectionRecomputesTotal.WithLabelValues(trigger, m.serviceName).Inc()
	projectionRecomputeDuration.WithLabelValues(m.serviceName).Observe(duration.Seconds())
}

// RecordPersistenceRetry records a retried persistence operation
func (m *MetricsCollector) RecordPersistenceRetry(operation string) {
	persistenceRetriesTotal.WithLabelValues(operation, m.serviceName).Inc()
}

// RecordPersistenceFailure records a persistence operation that exhausted retries
func (m *MetricsCollector) RecordPersistenceFailure(operation string) {
	persistenceFailuresTotal.WithLabelValues(operation, m.serviceName).Inc()
}

// RecordCatalogMiss records a medicine catalog lookup miss
func (m *MetricsCollector) RecordCatalogMiss() {
	catalogMissesTotal.WithLabelValues(m.serviceName).Inc()
}

// Handler returns the Prometheus metrics HTTP handler
func (m *MetricsCollector) Handler() http.Handler {
	return promhttp.Handler()
}

// HTTPMiddleware creates middleware for HTTP request metrics
func (m *MetricsCollector) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Create a response writer wrapper to capture status code
		wrapper := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		duration := time.Since(start)
		statusCode := strconv.Itoa(wrapper.statusCode)

		m.RecordHTTPRequest(r.Method, r.URL.Path, statusCode, duration)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
