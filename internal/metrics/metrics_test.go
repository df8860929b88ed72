package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"quiz-room-service/internal/domain"
)

func TestRecorderCounts(t *testing.T) {
	r := New()
	r.Admission(domain.Allow)
	r.Admission(domain.Deny(domain.ReasonLocked))
	r.Admission(domain.Deny(domain.ReasonLocked))
	r.Submission("")
	r.Submission(domain.ReasonLate)
	r.Refresh("rotated")

	assert.Equal(t, float64(2), testutil.ToFloat64(r.admissions.WithLabelValues("LOCKED")))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.admissions.WithLabelValues("ADMIT")))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.submissions.WithLabelValues("LATE")))
}

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	r := New()
	router := chi.NewRouter()
	router.Use(r.Middleware)
	router.Get("/rooms/{roomId}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	router.Handle("/metrics", r.Handler())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/rooms/abc", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, float64(1), testutil.ToFloat64(r.requests.WithLabelValues("GET", "/rooms/{roomId}", "204")))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "http_requests_total")
}
