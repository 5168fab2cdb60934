package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"picpic.transcode/internal/core/domain"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Transcode metrics
	attemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transcode_attempts_total",
			Help: "Finished transcode attempts by status",
		},
		[]string{"status"},
	)

	attemptsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "transcode_attempts_in_flight",
			Help: "Encoder processes currently running",
		},
	)

	attemptDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "transcode_attempt_duration_seconds",
			Help:    "Wall time of a transcode attempt in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600},
		},
	)

	progressPercent = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "transcode_progress_percent",
			Help: "Last reported progress per file label",
		},
		[]string{"label"},
	)

	cyclesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "transcode_cycles_total",
			Help: "Completed scan cycles",
		},
	)

	cycleFiles = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "transcode_cycle_files",
			Help: "File counts of the most recent cycle",
		},
		[]string{"kind"},
	)
)

// MetricsMiddleware records HTTP request metrics
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Skip metrics for WebSocket upgrade requests
		if r.Header.Get("Upgrade") == "websocket" {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		path := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			path = rc.RoutePattern()
		}

		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
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

// MetricsHandler returns the Prometheus metrics handler
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// MetricsObserver feeds lifecycle events and progress snapshots into the
// Prometheus collectors.
type MetricsObserver struct{}

func (MetricsObserver) AttemptStarted(context.Context, *domain.Attempt) {
	attemptsInFlight.Inc()
}

func (MetricsObserver) AttemptFinished(_ context.Context, a *domain.Attempt) {
	attemptsInFlight.Dec()
	attemptsTotal.WithLabelValues(string(a.Status)).Inc()
	attemptDuration.Observe(time.Duration(a.DurationMs * int64(time.Millisecond)).Seconds())
}

func (MetricsObserver) CycleFinished(_ context.Context, stats domain.CycleStats) {
	cyclesTotal.Inc()
	cycleFiles.WithLabelValues("scanned").Set(float64(stats.Scanned))
	cycleFiles.WithLabelValues("succeeded").Set(float64(stats.Succeeded))
	cycleFiles.WithLabelValues("failed").Set(float64(stats.Failed))
}

func (MetricsObserver) PublishProgress(_ context.Context, entries []domain.ProgressEntry) error {
	for _, e := range entries {
		progressPercent.WithLabelValues(e.Label).Set(float64(e.Percent()))
	}
	return nil
}
