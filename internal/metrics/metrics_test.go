package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func TestInitIsIdempotent(t *testing.T) {
	Init()
	Init()

	// Collectors are usable after repeated Init calls.
	ObservePortalFetch(200, 1024)
	ObservePortalFetch(404, 0)
	ObserveRender(nil, 2*time.Second)
	ObserveRender(errors.New("timeout"), 30*time.Second)
	ObserveAttachmentUpload(true)
	ObserveAttachmentUpload(false)
}

func TestStatusClass(t *testing.T) {
	t.Parallel()

	require.Equal(t, "2xx", statusClass(200))
	require.Equal(t, "3xx", statusClass(304))
	require.Equal(t, "4xx", statusClass(404))
	require.Equal(t, "5xx", statusClass(503))
	require.Equal(t, "other", statusClass(0))
}

func TestMiddlewareRecordsRoute(t *testing.T) {
	Init()

	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/v1/runs/{run_id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/runs/abc", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestMetricsHandlerServes(t *testing.T) {
	Init()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Body.String())
}
