package services

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ieraasyl/SatelliteFinder/internal/database"
	"github.com/ieraasyl/SatelliteFinder/internal/models"
	"github.com/ieraasyl/SatelliteFinder/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const cookieName = "sat_session"

func setupSessionService(t *testing.T, store CredentialStore) *SessionService {
	t.Helper()

	sealer, err := NewSealer(testutil.TestSessionSecret)
	require.NoError(t, err)
	tokens := NewTokenService(testutil.TestSessionSecret, time.Hour)

	return NewSessionService(store, tokens, sealer, testutil.TestSessionConfig(), false)
}

// putSession stores creds for a new client and returns a request carrying its cookie.
func putSession(t *testing.T, svc *SessionService, creds models.Credentials) *http.Request {
	t.Helper()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/search", nil)
	require.NoError(t, svc.Put(context.Background(), rec, req, creds))

	next := httptest.NewRequest(http.MethodGet, "/api/v1/download", nil)
	testutil.CarryCookie(t, rec, next, cookieName)
	return next
}

func TestSessionPutAndGet(t *testing.T) {
	ctx := context.Background()

	stores := map[string]func(t *testing.T) CredentialStore{
		"memory": func(t *testing.T) CredentialStore { return testutil.NewTestMemoryStore(t) },
		"redis": func(t *testing.T) CredentialStore {
			mr, cleanup := testutil.SetupMiniRedis(t)
			t.Cleanup(cleanup)
			return testutil.NewTestRedisDB(t, mr)
		},
	}

	for name, newStore := range stores {
		t.Run(name, func(t *testing.T) {
			svc := setupSessionService(t, newStore(t))

			req := putSession(t, svc, testutil.TestCredentials())

			creds, err := svc.Get(ctx, req)
			require.NoError(t, err)
			assert.Equal(t, testutil.TestCredentials(), creds)
		})
	}
}

func TestSessionCookie(t *testing.T) {
	svc := setupSessionService(t, testutil.NewTestMemoryStore(t))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/search", nil)
	require.NoError(t, svc.Put(context.Background(), rec, req, testutil.TestCredentials()))

	cookie := testutil.FindCookie(rec, cookieName)
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
	assert.Equal(t, "/", cookie.Path)
	assert.True(t, cookie.Expires.IsZero(), "cookie must end with the browser session")
	assert.Zero(t, cookie.MaxAge)
	assert.NotContains(t, cookie.Value, testutil.TestPassword)
}

func TestSessionGetWithoutSession(t *testing.T) {
	svc := setupSessionService(t, testutil.NewTestMemoryStore(t))
	ctx := context.Background()

	t.Run("no cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/download", nil)
		_, err := svc.Get(ctx, req)
		assert.ErrorIs(t, err, ErrNoCredentials)
	})

	t.Run("forged cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/download", nil)
		testutil.SetCookie(req, cookieName, "forged")
		_, err := svc.Get(ctx, req)
		assert.ErrorIs(t, err, ErrNoCredentials)
	})

	t.Run("cookie signed with another secret", func(t *testing.T) {
		other := NewTokenService([]byte("another-secret-another-secret-00"), time.Hour)
		token, err := other.Issue("some-session")
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/download", nil)
		testutil.SetCookie(req, cookieName, token)
		_, err = svc.Get(ctx, req)
		assert.ErrorIs(t, err, ErrNoCredentials)
	})

	t.Run("valid cookie with nothing stored", func(t *testing.T) {
		token, err := svc.tokens.Issue("never-stored")
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/download", nil)
		testutil.SetCookie(req, cookieName, token)
		_, err = svc.Get(ctx, req)
		assert.ErrorIs(t, err, ErrNoCredentials)
	})
}

func TestSessionIsolation(t *testing.T) {
	svc := setupSessionService(t, testutil.NewTestMemoryStore(t))
	ctx := context.Background()

	alice := putSession(t, svc, models.Credentials{Identity: "alice", Secret: "a-secret"})
	bob := putSession(t, svc, models.Credentials{Identity: "bob", Secret: "b-secret"})

	aliceCreds, err := svc.Get(ctx, alice)
	require.NoError(t, err)
	bobCreds, err := svc.Get(ctx, bob)
	require.NoError(t, err)

	assert.Equal(t, "alice", aliceCreds.Identity)
	assert.Equal(t, "bob", bobCreds.Identity)

	require.NoError(t, svc.Clear(ctx, httptest.NewRecorder(), alice))

	_, err = svc.Get(ctx, alice)
	assert.ErrorIs(t, err, ErrNoCredentials)
	_, err = svc.Get(ctx, bob)
	assert.NoError(t, err, "clearing one client must not affect another")
}

func TestSessionPutOverwritesAndRotates(t *testing.T) {
	svc := setupSessionService(t, testutil.NewTestMemoryStore(t))
	ctx := context.Background()

	first := putSession(t, svc, models.Credentials{Identity: "alice", Secret: "old"})

	rec := httptest.NewRecorder()
	require.NoError(t, svc.Put(ctx, rec, first, models.Credentials{Identity: "alice", Secret: "new"}))

	second := httptest.NewRequest(http.MethodGet, "/api/v1/download", nil)
	testutil.CarryCookie(t, rec, second, cookieName)

	firstCookie, err := first.Cookie(cookieName)
	require.NoError(t, err)
	secondCookie, err := second.Cookie(cookieName)
	require.NoError(t, err)
	assert.NotEqual(t, firstCookie.Value, secondCookie.Value)

	creds, err := svc.Get(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, "new", creds.Secret)

	_, err = svc.Get(ctx, first)
	assert.ErrorIs(t, err, ErrNoCredentials, "previous session id must be dropped")
}

func TestSessionClear(t *testing.T) {
	svc := setupSessionService(t, testutil.NewTestMemoryStore(t))
	ctx := context.Background()

	t.Run("clears credentials and expires cookie", func(t *testing.T) {
		req := putSession(t, svc, testutil.TestCredentials())

		rec := httptest.NewRecorder()
		require.NoError(t, svc.Clear(ctx, rec, req))

		cookie := testutil.FindCookie(rec, cookieName)
		require.NotNil(t, cookie)
		assert.Less(t, cookie.MaxAge, 0)

		_, err := svc.Get(ctx, req)
		assert.ErrorIs(t, err, ErrNoCredentials)
	})

	t.Run("without session is a no-op", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/session/logout", nil)
		assert.NoError(t, svc.Clear(ctx, httptest.NewRecorder(), req))
	})
}

func TestSessionStoresOnlySealedSecret(t *testing.T) {
	store := testutil.NewTestMemoryStore(t)
	svc := setupSessionService(t, store)
	ctx := context.Background()

	req := putSession(t, svc, testutil.TestCredentials())
	sessionID, ok := svc.sessionID(req)
	require.True(t, ok)

	sealed, err := store.GetCredentials(ctx, sessionID)
	require.NoError(t, err)
	assert.False(t, bytes.Contains(sealed, []byte(testutil.TestPassword)))
}

func TestSessionDiscardsUnsealableEntry(t *testing.T) {
	store := testutil.NewTestMemoryStore(t)
	svc := setupSessionService(t, store)
	ctx := context.Background()

	req := putSession(t, svc, testutil.TestCredentials())
	sessionID, ok := svc.sessionID(req)
	require.True(t, ok)

	require.NoError(t, store.SetCredentials(ctx, sessionID, bytes.Repeat([]byte{0x42}, 64), time.Hour))

	_, err := svc.Get(ctx, req)
	assert.ErrorIs(t, err, ErrNoCredentials)

	_, err = store.GetCredentials(ctx, sessionID)
	assert.ErrorIs(t, err, database.ErrCredentialsNotFound)
}

type mockCredentialStore struct {
	mock.Mock
}

func (m *mockCredentialStore) SetCredentials(ctx context.Context, sessionID string, sealed []byte, expiry time.Duration) error {
	args := m.Called(ctx, sessionID, sealed, expiry)
	return args.Error(0)
}

func (m *mockCredentialStore) GetCredentials(ctx context.Context, sessionID string) ([]byte, error) {
	args := m.Called(ctx, sessionID)
	if b := args.Get(0); b != nil {
		return b.([]byte), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockCredentialStore) DeleteCredentials(ctx context.Context, sessionID string) error {
	args := m.Called(ctx, sessionID)
	return args.Error(0)
}

func TestSessionStoreFailures(t *testing.T) {
	ctx := context.Background()
	storeErr := errors.New("connection refused")

	t.Run("put reports store failure and sets no cookie", func(t *testing.T) {
		store := new(mockCredentialStore)
		store.On("SetCredentials", mock.Anything, mock.Anything, mock.Anything, time.Hour).Return(storeErr)
		svc := setupSessionService(t, store)

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/search", nil)
		err := svc.Put(ctx, rec, req, testutil.TestCredentials())

		assert.ErrorIs(t, err, storeErr)
		assert.Nil(t, testutil.FindCookie(rec, cookieName))
		store.AssertExpectations(t)
	})

	t.Run("get distinguishes store failure from missing session", func(t *testing.T) {
		store := new(mockCredentialStore)
		store.On("GetCredentials", mock.Anything, "sid-1").Return(nil, storeErr)
		svc := setupSessionService(t, store)

		token, err := svc.tokens.Issue("sid-1")
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, "/api/v1/download", nil)
		testutil.SetCookie(req, cookieName, token)

		_, err = svc.Get(ctx, req)
		assert.ErrorIs(t, err, storeErr)
		assert.NotErrorIs(t, err, ErrNoCredentials)
	})
}

func TestSessionStatus(t *testing.T) {
	svc := setupSessionService(t, testutil.NewTestMemoryStore(t))
	ctx := context.Background()

	status, err := svc.Status(ctx, httptest.NewRequest(http.MethodGet, "/api/v1/session", nil))
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatus{Authenticated: false}, status)

	req := putSession(t, svc, testutil.TestCredentials())
	status, err = svc.Status(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatus{Authenticated: true, Username: testutil.TestUsername}, status)
}

func TestExtractDeviceInfo(t *testing.T) {
	t.Run("desktop chrome", func(t *testing.T) {
		info := ExtractDeviceInfo(testutil.UserAgents.Chrome)
		assert.Contains(t, info, "Chrome")
		assert.Contains(t, info, "Windows")
		assert.Contains(t, info, "Desktop")
	})

	t.Run("mobile safari", func(t *testing.T) {
		info := ExtractDeviceInfo(testutil.UserAgents.MobileSafari)
		assert.Contains(t, info, "Safari")
		assert.Contains(t, info, "Mobile")
	})

	t.Run("empty user agent", func(t *testing.T) {
		assert.Equal(t, "Unknown Device", ExtractDeviceInfo(testutil.UserAgents.Unknown))
	})
}
