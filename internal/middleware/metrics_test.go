package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsUsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Metrics())
	r.Get("/api/v1/download", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/api/v1/download", "400"))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/download?url=https%3A%2F%2Fevil.example.com%2F", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)

	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/api/v1/download", "400"))
	assert.Equal(t, before+1, after)
}

func TestDownloadGauges(t *testing.T) {
	before := testutil.ToFloat64(activeDownloads)

	done := DownloadStarted()
	assert.Equal(t, before+1, testutil.ToFloat64(activeDownloads))

	done()
	assert.Equal(t, before, testutil.ToFloat64(activeDownloads))

	bytesBefore := testutil.ToFloat64(downloadBytesTotal)
	AddDownloadedBytes(1024)
	assert.Equal(t, bytesBefore+1024, testutil.ToFloat64(downloadBytesTotal))
}
