package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP Metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "postflow_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "postflow_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	// Publishing Metrics
	PublishAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "postflow_publish_attempts_total",
			Help: "Total number of publish attempts by outcome",
		},
		[]string{"platform", "status"},
	)

	PublishDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "postflow_publish_duration_seconds",
			Help:    "Publish call duration in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 20, 30},
		},
		[]string{"platform"},
	)

	// Scheduler Metrics
	SchedulerCycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "postflow_scheduler_cycle_duration_seconds",
			Help:    "Duration of one poll-and-execute cycle",
			Buckets: []float64{.05, .1, .5, 1, 5, 10, 30, 60, 120},
		},
	)

	SchedulerDueBatchSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "postflow_scheduler_due_batch_size",
			Help: "Number of due schedules returned by the last poll",
		},
	)

	SchedulerCyclesSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "postflow_scheduler_cycles_skipped_total",
			Help: "Cycles skipped because the previous cycle was still running",
		},
	)

	// Cache Metrics
	SnapshotCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "postflow_snapshot_cache_lookups_total",
			Help: "Account/content snapshot cache lookups",
		},
		[]string{"kind", "result"},
	)

	// Rate Limiting Metrics
	RateLimitHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "postflow_rate_limit_hits_total",
			Help: "Total number of rate limit denials",
		},
		[]string{"scope"},
	)

	// Retention Metrics
	ExecutionAttemptsPurged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "postflow_execution_attempts_purged_total",
			Help: "Execution attempts removed by the retention job",
		},
	)
)

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// MetricsMiddleware records HTTP metrics. The chi route pattern is used as
// the path label to keep cardinality bounded.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}

		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// RecordPublish records one publish attempt.
func RecordPublish(platform, status string, duration time.Duration) {
	PublishAttemptsTotal.WithLabelValues(platform, status).Inc()
	PublishDuration.WithLabelValues(platform).Observe(duration.Seconds())
}

// RecordCycle records a finished scheduler cycle.
func RecordCycle(due int, duration time.Duration) {
	SchedulerDueBatchSize.Set(float64(due))
	SchedulerCycleDuration.Observe(duration.Seconds())
}

func RecordCacheLookup(kind string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	SnapshotCacheLookups.WithLabelValues(kind, result).Inc()
}

func RecordRateLimitHit(scope string) {
	RateLimitHitsTotal.WithLabelValues(scope).Inc()
}
