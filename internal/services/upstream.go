package services

import (
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/ieraasyl/SatelliteFinder/pkg/config"
)

// errorExcerptBytes bounds how much of an upstream error body is logged.
const errorExcerptBytes = 200

// NewUpstreamClient builds the HTTP client shared by the catalog and
// download services.
//
// The client has no overall Timeout: each call carries its own context
// deadline (45s search, 90s download by default), so a slow download is
// cut off by its deadline and never by a per-read timer. Transparent gzip
// is disabled so download bytes and Content-Length pass through untouched.
func NewUpstreamClient(cfg *config.UpstreamConfig) *http.Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		DisableCompression:  true,
		TLSClientConfig: &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // opt-in via UPSTREAM_INSECURE_SKIP_VERIFY
		},
	}

	return &http.Client{Transport: transport}
}

// readExcerpt reads at most errorExcerptBytes of an error body for logging.
func readExcerpt(body io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(body, errorExcerptBytes))
	return string(b)
}
