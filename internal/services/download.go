package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ieraasyl/SatelliteFinder/internal/models"
	"github.com/ieraasyl/SatelliteFinder/pkg/config"
	"github.com/ieraasyl/SatelliteFinder/pkg/utils"
	"github.com/rs/zerolog/log"
)

const opDownload = "download"

// Target validation errors, both reported as KindBadRequest.
var (
	ErrMissingTarget    = errors.New("missing download url")
	ErrDisallowedTarget = errors.New("download url not allowed")
)

// DownloadService validates download targets and streams assets from upstream.
type DownloadService struct {
	client    *http.Client
	prefixes  []string
	timeout   time.Duration
	chunkSize int
}

// NewDownloadService creates a download service using client for upstream calls.
func NewDownloadService(cfg *config.UpstreamConfig, client *http.Client) *DownloadService {
	prefixes := make([]string, len(cfg.AllowedPrefixes))
	copy(prefixes, cfg.AllowedPrefixes)

	return &DownloadService{
		client:    client,
		prefixes:  prefixes,
		timeout:   cfg.DownloadTimeout,
		chunkSize: cfg.ChunkSize,
	}
}

// ResolveTarget decodes the client-supplied url parameter and checks it
// against the allowed prefixes. raw is the query value as already decoded
// by net/url; one more percent-decoding pass is applied because clients
// send encodeURIComponent(href).
func (s *DownloadService) ResolveTarget(raw string) (string, error) {
	if raw == "" {
		return "", newGatewayError(KindBadRequest, opDownload, "", ErrMissingTarget)
	}

	target, err := url.PathUnescape(raw)
	if err != nil {
		return "", newGatewayError(KindBadRequest, opDownload, "undecodable url", ErrDisallowedTarget)
	}

	if !s.Allowed(target) {
		return "", newGatewayError(KindBadRequest, opDownload, "", ErrDisallowedTarget)
	}
	return target, nil
}

// Allowed reports whether target starts with one of the allowed prefixes.
// Prefixes end with "/", so the host part cannot be extended.
func (s *DownloadService) Allowed(target string) bool {
	for _, prefix := range s.prefixes {
		if strings.HasPrefix(target, prefix) {
			return true
		}
	}
	return false
}

// Download is an open upstream response ready to be streamed.
// Close must be called on every path once Open succeeded.
type Download struct {
	StatusCode int
	Header     http.Header // shaped response headers, see ShapeHeaders
	Body       io.ReadCloser

	client context.Context // the caller's context, without the transfer deadline
	cancel context.CancelFunc
}

// Close releases the upstream connection and its deadline.
func (d *Download) Close() error {
	err := d.Body.Close()
	d.cancel()
	return err
}

// Open issues the upstream GET for target with basic authentication.
// The returned Download holds the live connection; its body is read
// incrementally by Stream. The deadline covers the whole transfer.
func (s *DownloadService) Open(ctx context.Context, creds models.Credentials, target string) (*Download, error) {
	client := ctx
	ctx, cancel := context.WithTimeout(ctx, s.timeout)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		cancel()
		return nil, newGatewayError(KindBadRequest, opDownload, "unusable url", err)
	}
	req.SetBasicAuth(creds.Identity, creds.Secret)

	resp, err := s.client.Do(req)
	if err != nil {
		cancel()
		return nil, classifyTransportError(opDownload, err)
	}

	if !isSuccess(resp.StatusCode) {
		excerpt := readExcerpt(resp.Body)
		resp.Body.Close()
		cancel()

		log.Warn().
			Str("request_id", utils.GetRequestID(ctx)).
			Str("username", creds.Identity).
			Str("target", target).
			Int("upstream_status", resp.StatusCode).
			Str("upstream_body", excerpt).
			Msg("Upstream download returned an error status")
		return nil, classifyStatus(opDownload, resp.StatusCode, excerpt)
	}

	return &Download{
		StatusCode: resp.StatusCode,
		Header:     ShapeHeaders(resp.Header, target),
		Body:       resp.Body,
		client:     client,
		cancel:     cancel,
	}, nil
}

// ShapeHeaders copies only Content-Type, Content-Disposition and
// Content-Length from upstream, filling in defaults for the first two.
func ShapeHeaders(upstream http.Header, target string) http.Header {
	shaped := make(http.Header, 3)

	contentType := upstream.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	shaped.Set("Content-Type", contentType)

	disposition := upstream.Get("Content-Disposition")
	if disposition == "" {
		disposition = fmt.Sprintf(`attachment; filename="%s"`, FilenameFromURL(target))
	}
	shaped.Set("Content-Disposition", disposition)

	if length := upstream.Get("Content-Length"); length != "" {
		shaped.Set("Content-Length", length)
	}

	return shaped
}

// FilenameFromURL returns the last segment of the path of target, or
// "download" if that is empty. Query and fragment never contribute. Quotes,
// backslashes and control characters are replaced so the name is safe
// inside a quoted header parameter.
func FilenameFromURL(target string) string {
	var name string
	if u, err := url.Parse(target); err == nil {
		name = u.Path[strings.LastIndex(u.Path, "/")+1:]
	} else {
		name, _, _ = strings.Cut(target[strings.LastIndex(target, "/")+1:], "?")
	}
	if name == "" {
		return "download"
	}
	return strings.Map(func(r rune) rune {
		if r == '"' || r == '\\' || r < 0x20 || r == 0x7f {
			return '_'
		}
		return r
	}, name)
}

// clientGone reports whether a failed upstream read was caused by the
// client going away. The upstream request shares the client's context, so
// a disconnect surfaces as a cancelled read rather than a write error.
func (d *Download) clientGone(readErr error) bool {
	if d.client != nil && d.client.Err() != nil {
		return true
	}
	return errors.Is(readErr, context.Canceled)
}

// StreamError reports a failure after the response was committed.
// Upstream is true if the upstream read failed, false if the client write
// failed or the client disconnected.
type StreamError struct {
	Upstream bool
	Err      error
}

func (e *StreamError) Error() string {
	if e.Upstream {
		return "upstream read failed mid-stream: " + e.Err.Error()
	}
	return "client write failed mid-stream: " + e.Err.Error()
}

func (e *StreamError) Unwrap() error { return e.Err }

// Stream copies d.Body to w one chunk at a time, flushing after every
// chunk, and returns the number of bytes written. Memory use is bounded by
// the chunk size. Nothing is retried: on error the caller must abandon the
// response.
func (s *DownloadService) Stream(d *Download, w http.ResponseWriter) (int64, error) {
	rc := http.NewResponseController(w)
	buf := make([]byte, s.chunkSize)
	var written int64

	for {
		n, readErr := d.Body.Read(buf)
		if n > 0 {
			m, writeErr := w.Write(buf[:n])
			written += int64(m)
			if writeErr != nil {
				return written, &StreamError{Upstream: false, Err: writeErr}
			}
			if err := rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
				return written, &StreamError{Upstream: false, Err: err}
			}
		}
		if errors.Is(readErr, io.EOF) {
			return written, nil
		}
		if readErr != nil {
			return written, &StreamError{Upstream: !d.clientGone(readErr), Err: readErr}
		}
	}
}
