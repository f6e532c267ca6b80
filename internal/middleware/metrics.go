package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus metrics, registered in the default registry and exposed via
// /metrics.

var (
	// httpRequestsTotal counts all HTTP requests by method, route, and status.
	//
	// Labels: method, path (chi route pattern, e.g. /api/v1/download), status
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDuration measures request processing time. For downloads
	// this is the full streaming time.
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 90},
		},
		[]string{"method", "path"},
	)

	// httpResponseSize tracks response body sizes.
	// Buckets: exponential from 100 bytes to 10 GB
	httpResponseSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "HTTP response size in bytes",
			Buckets: prometheus.ExponentialBuckets(100, 10, 9),
		},
		[]string{"method", "path"},
	)

	// upstreamRequestsTotal counts calls to the satellite data provider.
	//
	// Labels: operation (search, download), outcome ("ok" or an error kind)
	upstreamRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_requests_total",
			Help: "Total number of upstream provider requests",
		},
		[]string{"operation", "outcome"},
	)

	// upstreamRequestDuration measures time until the upstream response
	// headers arrived (search: until the body was read).
	upstreamRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_request_duration_seconds",
			Help:    "Upstream provider request duration in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 20, 45, 90},
		},
		[]string{"operation"},
	)

	// activeDownloads is the number of downloads currently streaming.
	activeDownloads = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "download_active_streams",
			Help: "Number of downloads currently being streamed",
		},
	)

	// downloadBytesTotal counts bytes relayed to clients by the download proxy.
	downloadBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "download_bytes_total",
			Help: "Total number of bytes streamed to clients",
		},
	)

	// downloadStreamFailures counts streams that broke after the response started.
	//
	// Labels: side (upstream, client)
	downloadStreamFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "download_stream_failures_total",
			Help: "Total number of downloads terminated mid-stream",
		},
		[]string{"side"},
	)

	// credentialSessionEvents counts credential session changes.
	//
	// Labels: event (stored, cleared)
	credentialSessionEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "credential_session_events_total",
			Help: "Total number of credential session changes",
		},
		[]string{"event"},
	)

	// rateLimitHits counts requests rejected by the rate limiter.
	rateLimitHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_rejections_total",
			Help: "Total number of requests rejected by the rate limiter",
		},
		[]string{"endpoint"},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpRequestDuration)
	prometheus.MustRegister(httpResponseSize)
	prometheus.MustRegister(upstreamRequestsTotal)
	prometheus.MustRegister(upstreamRequestDuration)
	prometheus.MustRegister(activeDownloads)
	prometheus.MustRegister(downloadBytesTotal)
	prometheus.MustRegister(downloadStreamFailures)
	prometheus.MustRegister(credentialSessionEvents)
	prometheus.MustRegister(rateLimitHits)
}

// Metrics creates middleware for collecting HTTP metrics.
// Requests are labelled by chi route pattern rather than raw path, so
// download URLs never end up as label values.
//
// Example Prometheus queries:
//
//	# Error rate percentage
//	sum(rate(http_requests_total{status=~"5.."}[5m])) / sum(rate(http_requests_total[5m]))
//
//	# P95 search latency
//	histogram_quantile(0.95, rate(http_request_duration_seconds_bucket{path="/api/v1/search"}[5m]))
func Metrics() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			path := routePattern(r)
			status := strconv.Itoa(ww.Status())

			httpRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
			httpResponseSize.WithLabelValues(r.Method, path).Observe(float64(ww.BytesWritten()))
		})
	}
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}

// MetricsHandler returns the Prometheus metrics HTTP handler.
//
// Usage:
//
//	r.Get("/metrics", middleware.MetricsHandler().ServeHTTP)
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// RecordUpstream records one upstream call and its outcome.
//
// Example:
//
//	middleware.RecordUpstream("search", "ok", time.Since(start))
//	middleware.RecordUpstream("download", ge.Kind.String(), time.Since(start))
func RecordUpstream(operation, outcome string, duration time.Duration) {
	upstreamRequestsTotal.WithLabelValues(operation, outcome).Inc()
	upstreamRequestDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// DownloadStarted increments the active download gauge. The returned
// function decrements it and must be called once the stream ends.
func DownloadStarted() (done func()) {
	activeDownloads.Inc()
	return activeDownloads.Dec
}

// AddDownloadedBytes adds n to the streamed bytes counter.
func AddDownloadedBytes(n int64) {
	downloadBytesTotal.Add(float64(n))
}

// RecordStreamFailure counts a download terminated mid-stream.
// side is "upstream" or "client".
func RecordStreamFailure(side string) {
	downloadStreamFailures.WithLabelValues(side).Inc()
}

// RecordSessionEvent counts a credential session change ("stored" or "cleared").
func RecordSessionEvent(event string) {
	credentialSessionEvents.WithLabelValues(event).Inc()
}
