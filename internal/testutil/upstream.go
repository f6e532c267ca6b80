package testutil

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ieraasyl/SatelliteFinder/pkg/config"
)

// NewUpstreamServer starts a fake satellite data provider. The server is
// closed when the test ends.
func NewUpstreamServer(t *testing.T, handler http.Handler) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

// RequireBasicAuth wraps next, answering 401 unless the request carries
// TestUsername and TestPassword.
func RequireBasicAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != TestUsername || pass != TestPassword {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"Unauthorized"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// UpstreamConfig returns an upstream configuration pointing at srv, with
// srv's URL as the only allowed download prefix and short timeouts.
func UpstreamConfig(srv *httptest.Server) *config.UpstreamConfig {
	return &config.UpstreamConfig{
		SearchURL:       srv.URL + "/v1/search",
		AllowedPrefixes: []string{srv.URL + "/"},
		SensorName:      "RadarSat-2",
		SearchTimeout:   2 * time.Second,
		DownloadTimeout: 2 * time.Second,
		ChunkSize:       8192,
		MaxSearchBytes:  1 << 20,
	}
}
