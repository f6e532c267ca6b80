// Package testutil provides common testing utilities, fixtures, and helpers
// for use across all test files in the SatelliteFinder project.
package testutil

import (
	"encoding/json"
	"time"

	"github.com/ieraasyl/SatelliteFinder/internal/models"
	"github.com/ieraasyl/SatelliteFinder/pkg/config"
)

// Test credentials accepted by the fake upstream.
const (
	TestUsername = "analyst@example.nl"
	TestPassword = "s3cret-p4ss"
)

// TestSessionSecret is a 32-byte secret for signing and sealing in tests.
var TestSessionSecret = []byte("test-session-secret-0123456789ab")

// TestCredentials returns the credentials the fake upstream accepts.
func TestCredentials() models.Credentials {
	return models.Credentials{Identity: TestUsername, Secret: TestPassword}
}

// TestSearchRequest creates a valid country-mode search request.
func TestSearchRequest() *models.SearchRequest {
	return &models.SearchRequest{
		Username:  TestUsername,
		Password:  TestPassword,
		StartDate: "2024-01-01",
		EndDate:   "2024-01-31",
		AOIMode:   models.AOIModeCountry,
	}
}

// TestCustomSearchRequest creates a valid custom-mode search request with CustomGeometry.
func TestCustomSearchRequest() *models.SearchRequest {
	req := TestSearchRequest()
	req.AOIMode = models.AOIModeCustom
	req.AOIGeoJSON = CustomGeometry
	return req
}

// CustomGeometry is a small polygon around Utrecht.
var CustomGeometry = json.RawMessage(`{"type":"Polygon","coordinates":[[[5.0,52.0],[5.2,52.0],[5.2,52.1],[5.0,52.1],[5.0,52.0]]]}`)

// SampleCatalogResponse is a catalog response with two features.
var SampleCatalogResponse = []byte(`{"type":"FeatureCollection","features":[` +
	`{"type":"Feature","id":"rs2-001","properties":{"acquired":"2024-01-03"},"assets":{"download":{"href":"https://api.satellietdataportaal.nl/v1/download/rs2-001.zip"}}},` +
	`{"type":"Feature","id":"rs2-002","properties":{"acquired":"2024-01-17"},"assets":{"download":{"href":"https://api.satellietdataportaal.nl/v1/download/rs2-002.zip"}}}]}`)

// TestSessionConfig returns a session configuration for tests.
func TestSessionConfig() *config.SessionConfig {
	return &config.SessionConfig{
		Secret:     TestSessionSecret,
		CookieName: "sat_session",
		TTL:        time.Hour,
		Backend:    config.SessionBackendMemory,
	}
}

// UserAgents provides common user agent strings for testing
var UserAgents = struct {
	Chrome       string
	Safari       string
	Firefox      string
	MobileSafari string
	Unknown      string
}{
	Chrome:       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	Safari:       "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Safari/605.1.15",
	Firefox:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
	MobileSafari: "Mozilla/5.0 (iPhone; CPU iPhone OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1",
	Unknown:      "",
}

// IPAddresses provides test IP addresses
var IPAddresses = struct {
	Public    string
	Private   string
	Localhost string
}{
	Public:    "203.0.113.42",
	Private:   "192.168.1.100",
	Localhost: "127.0.0.1",
}
