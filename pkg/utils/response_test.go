package utils

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestID(t *testing.T) {
	assert.Empty(t, GetRequestID(context.Background()))
	assert.Equal(t, "req-123", GetRequestID(WithRequestID(context.Background(), "req-123")))
}

func TestRespondWithError(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/search", nil)

	RespondWithError(rec, req, http.StatusBadRequest, "Invalid request body. Expected JSON.")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Invalid request body. Expected JSON.", body.Error)
}

func TestRespondWithRawJSON(t *testing.T) {
	raw := []byte(`{"type":"FeatureCollection",  "features":[]}`)
	rec := httptest.NewRecorder()

	RespondWithRawJSON(rec, httptest.NewRequest(http.MethodPost, "/", nil), http.StatusOK, raw)

	assert.Equal(t, raw, rec.Body.Bytes(), "body must not be re-encoded")
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestRespondWithText(t *testing.T) {
	rec := httptest.NewRecorder()

	RespondWithText(rec, http.StatusUnauthorized, "Authentication required.")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Authentication required.\n", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
}

func TestSessionCookies(t *testing.T) {
	t.Run("set", func(t *testing.T) {
		rec := httptest.NewRecorder()
		SetSessionCookie(rec, "sat_session", "token", true)

		cookies := rec.Result().Cookies()
		require.Len(t, cookies, 1)
		c := cookies[0]
		assert.Equal(t, "token", c.Value)
		assert.Equal(t, "/", c.Path)
		assert.True(t, c.HttpOnly)
		assert.True(t, c.Secure)
		assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
		assert.Zero(t, c.MaxAge, "browser-session cookie")
	})

	t.Run("clear", func(t *testing.T) {
		rec := httptest.NewRecorder()
		ClearAuthCookie(rec, "sat_session")

		cookies := rec.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Empty(t, cookies[0].Value)
		assert.Equal(t, -1, cookies[0].MaxAge)
	})
}
