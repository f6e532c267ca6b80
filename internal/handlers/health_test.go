package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ieraasyl/SatelliteFinder/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPinger struct {
	err error
}

func (s stubPinger) Ping(context.Context) error { return s.err }

func TestHealth(t *testing.T) {
	t.Run("returns 200 OK with correct structure", func(t *testing.T) {
		// Health never touches its checks
		handler := NewHealthHandler(map[string]Pinger{"redis": stubPinger{err: errors.New("down")}})

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rec := httptest.NewRecorder()

		handler.Health(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)

		var response HealthResponse
		err := json.Unmarshal(rec.Body.Bytes(), &response)
		require.NoError(t, err)

		assert.Equal(t, "ok", response.Status)
		assert.False(t, response.Timestamp.IsZero())
		assert.Nil(t, response.Services)
	})

	t.Run("includes correct content-type header", func(t *testing.T) {
		handler := NewHealthHandler(nil)
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rec := httptest.NewRecorder()

		handler.Health(rec, req)

		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	})
}

func TestReady(t *testing.T) {
	t.Run("all services healthy returns 200 OK", func(t *testing.T) {
		handler := NewHealthHandler(map[string]Pinger{
			"memory":   testutil.NewTestMemoryStore(t),
			"postgres": stubPinger{},
		})

		rec := httptest.NewRecorder()
		handler.Ready(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		var response HealthResponse
		testutil.ParseJSONResponse(t, rec, &response)
		assert.Equal(t, "ok", response.Status)
		assert.Equal(t, map[string]string{"memory": "healthy", "postgres": "healthy"}, response.Services)
	})

	t.Run("redis backend", func(t *testing.T) {
		mr, cleanup := testutil.SetupMiniRedis(t)
		t.Cleanup(cleanup)
		handler := NewHealthHandler(map[string]Pinger{"redis": testutil.NewTestRedisDB(t, mr)})

		rec := httptest.NewRecorder()
		handler.Ready(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
		assert.Equal(t, http.StatusOK, rec.Code)

		mr.Close()

		rec = httptest.NewRecorder()
		handler.Ready(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("failing dependency returns 503 degraded", func(t *testing.T) {
		handler := NewHealthHandler(map[string]Pinger{
			"redis":    stubPinger{},
			"postgres": stubPinger{err: errors.New("connection refused")},
		})

		rec := httptest.NewRecorder()
		handler.Ready(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		var response HealthResponse
		testutil.ParseJSONResponse(t, rec, &response)
		assert.Equal(t, "degraded", response.Status)
		assert.Equal(t, "unhealthy", response.Services["postgres"])
		assert.Equal(t, "healthy", response.Services["redis"])
	})

	t.Run("no checks configured", func(t *testing.T) {
		handler := NewHealthHandler(map[string]Pinger{})

		rec := httptest.NewRecorder()
		handler.Ready(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func BenchmarkHealth(b *testing.B) {
	handler := NewHealthHandler(nil)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		rec := httptest.NewRecorder()
		handler.Health(rec, req)
	}
}
