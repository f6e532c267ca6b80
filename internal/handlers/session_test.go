package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ieraasyl/SatelliteFinder/internal/models"
	"github.com/ieraasyl/SatelliteFinder/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sessionRequest(method, path, cookie string) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	if cookie != "" {
		testutil.SetCookie(req, cookieName, cookie)
	}
	return req
}

func TestSessionStatus(t *testing.T) {
	env := newTestEnv(t, http.NotFoundHandler())

	t.Run("without session", func(t *testing.T) {
		rec := httptest.NewRecorder()
		env.session.Status(rec, sessionRequest(http.MethodGet, "/api/v1/session", ""))

		testutil.AssertStatusCode(t, rec, http.StatusOK)
		var status models.SessionStatus
		testutil.ParseJSONResponse(t, rec, &status)
		assert.False(t, status.Authenticated)
		assert.Empty(t, status.Username)
	})

	t.Run("with session", func(t *testing.T) {
		cookie := env.login(t, testutil.TestCredentials())

		rec := httptest.NewRecorder()
		env.session.Status(rec, sessionRequest(http.MethodGet, "/api/v1/session", cookie))

		testutil.AssertStatusCode(t, rec, http.StatusOK)
		var status models.SessionStatus
		testutil.ParseJSONResponse(t, rec, &status)
		assert.True(t, status.Authenticated)
		assert.Equal(t, testutil.TestUsername, status.Username)
		assert.NotContains(t, rec.Body.String(), testutil.TestPassword)
	})
}

func TestSessionLogout(t *testing.T) {
	env := newTestEnv(t, http.NotFoundHandler())

	t.Run("clears stored credentials", func(t *testing.T) {
		cookie := env.login(t, testutil.TestCredentials())

		rec := httptest.NewRecorder()
		env.session.Logout(rec, sessionRequest(http.MethodPost, "/api/v1/session/logout", cookie))

		testutil.AssertStatusCode(t, rec, http.StatusOK)
		var resp MessageResponse
		testutil.ParseJSONResponse(t, rec, &resp)
		assert.Equal(t, "Logged out", resp.Message)

		assert.False(t, env.hasCredentials(t, cookie))
		cleared := testutil.FindCookie(rec, cookieName)
		require.NotNil(t, cleared)
		assert.Equal(t, -1, cleared.MaxAge)
	})

	t.Run("without session", func(t *testing.T) {
		rec := httptest.NewRecorder()
		env.session.Logout(rec, sessionRequest(http.MethodPost, "/api/v1/session/logout", ""))

		testutil.AssertStatusCode(t, rec, http.StatusOK)
	})

	t.Run("download after logout is rejected", func(t *testing.T) {
		cookie := env.login(t, testutil.TestCredentials())
		env.session.Logout(httptest.NewRecorder(), sessionRequest(http.MethodPost, "/api/v1/session/logout", cookie))

		rec := doDownload(env.download, env.upstream.URL+"/file.zip", cookie)
		testutil.AssertStatusCode(t, rec, http.StatusUnauthorized)
	})
}

func TestSessionActivity(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		env := newTestEnv(t, http.NotFoundHandler())
		env.session = NewSessionHandler(env.sessions, &fakeActivityLog{enabled: false})
		cookie := env.login(t, testutil.TestCredentials())

		rec := httptest.NewRecorder()
		env.session.Activity(rec, sessionRequest(http.MethodGet, "/api/v1/session/activity", cookie))

		testutil.AssertStatusCode(t, rec, http.StatusNotFound)
	})

	t.Run("without session", func(t *testing.T) {
		env := newTestEnv(t, http.NotFoundHandler())

		rec := httptest.NewRecorder()
		env.session.Activity(rec, sessionRequest(http.MethodGet, "/api/v1/session/activity", ""))

		testutil.AssertStatusCode(t, rec, http.StatusUnauthorized)
		assert.Equal(t, msgAuthRequired, errorMessage(t, rec))
	})

	t.Run("lists only the session user", func(t *testing.T) {
		env := newTestEnv(t, http.NotFoundHandler())
		ctx := context.Background()
		env.activity.Record(ctx, &models.Activity{Username: testutil.TestUsername, Operation: opSearch, Outcome: outcomeOK, Duration: time.Second})
		env.activity.Record(ctx, &models.Activity{Username: "someone@else.nl", Operation: opSearch, Outcome: outcomeOK})
		env.activity.Record(ctx, &models.Activity{Username: testutil.TestUsername, Operation: opDownload, Outcome: outcomeOK})
		cookie := env.login(t, testutil.TestCredentials())

		rec := httptest.NewRecorder()
		env.session.Activity(rec, sessionRequest(http.MethodGet, "/api/v1/session/activity", cookie))

		testutil.AssertStatusCode(t, rec, http.StatusOK)
		var entries []models.Activity
		testutil.ParseJSONResponse(t, rec, &entries)
		require.Len(t, entries, 2)
		for _, e := range entries {
			assert.Equal(t, testutil.TestUsername, e.Username)
		}
	})

	t.Run("empty list is an array", func(t *testing.T) {
		env := newTestEnv(t, http.NotFoundHandler())
		cookie := env.login(t, testutil.TestCredentials())

		rec := httptest.NewRecorder()
		env.session.Activity(rec, sessionRequest(http.MethodGet, "/api/v1/session/activity", cookie))

		testutil.AssertStatusCode(t, rec, http.StatusOK)
		assert.JSONEq(t, `[]`, rec.Body.String())
	})

	t.Run("store failure", func(t *testing.T) {
		env := newTestEnv(t, http.NotFoundHandler())
		env.activity.listErr = errors.New("connection refused")
		cookie := env.login(t, testutil.TestCredentials())

		rec := httptest.NewRecorder()
		env.session.Activity(rec, sessionRequest(http.MethodGet, "/api/v1/session/activity", cookie))

		testutil.AssertStatusCode(t, rec, http.StatusInternalServerError)
	})
}
