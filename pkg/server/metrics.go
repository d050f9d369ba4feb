package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mp3presso_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mp3presso_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	uploadsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mp3presso_uploads_total",
			Help: "Total number of accepted uploads",
		},
	)

	uploadsRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mp3presso_uploads_rejected_total",
			Help: "Total number of uploads rejected by media kind validation",
		},
	)

	conversionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mp3presso_conversions_total",
			Help: "Total number of conversions by outcome",
		},
		[]string{"status"},
	)

	conversionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mp3presso_conversion_duration_seconds",
			Help:    "Wall-clock duration of successful conversions",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
	)
)

// statusRecorder captures the response status for metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

// instrument records request counts and latencies per route template, so
// job IDs never become metric label values.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tmpl, err := route.GetPathTemplate(); err == nil {
				path = tmpl
			}
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rec.status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}
