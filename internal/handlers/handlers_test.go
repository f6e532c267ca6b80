package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ieraasyl/SatelliteFinder/internal/models"
	"github.com/ieraasyl/SatelliteFinder/internal/services"
	"github.com/ieraasyl/SatelliteFinder/internal/testutil"
	"github.com/ieraasyl/SatelliteFinder/pkg/config"
	"github.com/stretchr/testify/require"
)

const cookieName = "sat_session"

// fakeActivityLog keeps recorded entries in memory.
type fakeActivityLog struct {
	mu      sync.Mutex
	enabled bool
	entries []*models.Activity
	listErr error
}

func (f *fakeActivityLog) Enabled() bool { return f.enabled }

func (f *fakeActivityLog) Record(_ context.Context, activity *models.Activity) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, activity)
}

func (f *fakeActivityLog) List(_ context.Context, username string, limit int) ([]*models.Activity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []*models.Activity
	for _, a := range f.entries {
		if a.Username == username && len(out) < limit {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeActivityLog) last(t *testing.T) *models.Activity {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.entries, "no activity recorded")
	return f.entries[len(f.entries)-1]
}

// testEnv wires the real services against a fake upstream.
type testEnv struct {
	upstream *httptest.Server
	hits     *atomic.Int64
	cfg      *config.UpstreamConfig
	sessions *services.SessionService
	activity *fakeActivityLog

	search   *SearchHandler
	download *DownloadHandler
	session  *SessionHandler
}

func newTestEnv(t *testing.T, upstream http.Handler, adjust ...func(*config.UpstreamConfig)) *testEnv {
	t.Helper()

	hits := &atomic.Int64{}
	srv := testutil.NewUpstreamServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		upstream.ServeHTTP(w, r)
	}))

	cfg := testutil.UpstreamConfig(srv)
	for _, fn := range adjust {
		fn(cfg)
	}

	sealer, err := services.NewSealer(testutil.TestSessionSecret)
	require.NoError(t, err)
	tokens := services.NewTokenService(testutil.TestSessionSecret, time.Hour)
	sessions := services.NewSessionService(testutil.NewTestMemoryStore(t), tokens, sealer, testutil.TestSessionConfig(), false)

	client := services.NewUpstreamClient(cfg)
	catalog := services.NewCatalogService(cfg, client)
	downloads := services.NewDownloadService(cfg, client)
	activity := &fakeActivityLog{enabled: true}

	return &testEnv{
		upstream: srv,
		hits:     hits,
		cfg:      cfg,
		sessions: sessions,
		activity: activity,
		search:   NewSearchHandler(catalog, sessions, activity),
		download: NewDownloadHandler(downloads, sessions, activity),
		session:  NewSessionHandler(sessions, activity),
	}
}

// login stores creds directly and returns the session cookie value.
func (e *testEnv) login(t *testing.T, creds models.Credentials) string {
	t.Helper()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/search", nil)
	require.NoError(t, e.sessions.Put(context.Background(), rec, req, creds))

	cookie := testutil.FindCookie(rec, cookieName)
	require.NotNil(t, cookie)
	return cookie.Value
}

// hasCredentials reports whether the session behind cookie still holds credentials.
func (e *testEnv) hasCredentials(t *testing.T, cookie string) bool {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/session", nil)
	testutil.SetCookie(req, cookieName, cookie)
	status, err := e.sessions.Status(context.Background(), req)
	require.NoError(t, err)
	return status.Authenticated
}

func upstreamStatus(status int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"upstream says no"}`, status)
	})
}

func slowUpstream() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
}
