package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"quiz-room-service/internal/domain"
)

// Recorder implements the service metric sinks on a prometheus registry.
type Recorder struct {
	registry *prometheus.Registry

	admissions  *prometheus.CounterVec
	submissions *prometheus.CounterVec
	refreshes   *prometheus.CounterVec
	requests    *prometheus.CounterVec
	durations   *prometheus.HistogramVec
}

func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		admissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quiz_room_admissions_total",
				Help: "Admission gate decisions by outcome",
			},
			[]string{"outcome"},
		),
		submissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quiz_room_submissions_total",
				Help: "Attempt submissions by outcome",
			},
			[]string{"outcome"},
		),
		refreshes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quiz_room_token_refreshes_total",
				Help: "Refresh token exchanges by outcome",
			},
			[]string{"outcome"},
		),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		durations: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: []float64{0.005, 0.025, 0.1, 0.5, 1, 2, 5},
			},
			[]string{"method", "endpoint"},
		),
	}
	r.registry.MustRegister(
		r.admissions, r.submissions, r.refreshes, r.requests, r.durations,
		collectors.NewGoCollector(),
	)
	return r
}

// Admission counts a gate decision; admitted decisions are labelled ADMIT.
func (r *Recorder) Admission(decision domain.Decision) {
	outcome := "ADMIT"
	if !decision.Admitted {
		outcome = string(decision.Reason)
	}
	r.admissions.WithLabelValues(outcome).Inc()
}

// Submission counts a submit outcome; an empty reason is a fresh scoring.
func (r *Recorder) Submission(reason domain.Reason) {
	outcome := "SUBMITTED"
	if reason != "" {
		outcome = string(reason)
	}
	r.submissions.WithLabelValues(outcome).Inc()
}

func (r *Recorder) Refresh(outcome string) {
	r.refreshes.WithLabelValues(outcome).Inc()
}

// Handler serves the registry in the prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Middleware records request counts and latencies by chi route pattern.
func (r *Recorder) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, req.ProtoMajor)
		next.ServeHTTP(ww, req)

		endpoint := "unmatched"
		if rctx := chi.RouteContext(req.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				endpoint = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		r.requests.WithLabelValues(req.Method, endpoint, strconv.Itoa(status)).Inc()
		r.durations.WithLabelValues(req.Method, endpoint).Observe(time.Since(start).Seconds())
	})
}
