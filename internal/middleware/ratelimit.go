package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/ieraasyl/SatelliteFinder/pkg/utils"
	"github.com/rs/zerolog/log"
)

// RateCounter increments a fixed-window request counter shared between
// instances. Implemented by database.RedisDB.
type RateCounter interface {
	IncrementRateLimit(ctx context.Context, ip, endpoint string, window time.Duration) (int64, error)
}

// RateLimiter limits requests per client IP and endpoint within a window.
// It guards the search endpoint, the only place where credentials are
// checked against upstream.
//
// Two strategies back it:
//   - NewRateLimiter: a fixed-window counter in a shared store (Redis)
//   - NewLocalRateLimiter: an in-process token bucket per client
//
// On limit exceeded:
//   - Returns 429 Too Many Requests with a JSON error body
//   - Sets Retry-After header
//   - Logs the violation for monitoring
type RateLimiter struct {
	counter        RateCounter
	local          *visitors
	requestsPerMin int           // Maximum requests allowed per window
	window         time.Duration // Time window for rate limiting
}

// NewRateLimiter creates a rate limiter on a shared fixed-window counter.
//
// Example:
//
//	limiter := middleware.NewRateLimiter(redisDB, cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.WindowDuration)
//	r.With(limiter.Limit("search")).Post("/api/v1/search", searchHandler.Search)
func NewRateLimiter(counter RateCounter, requestsPerMin int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		counter:        counter,
		requestsPerMin: requestsPerMin,
		window:         window,
	}
}

// NewLocalRateLimiter creates a rate limiter that keeps one token bucket
// per client in process memory. Each bucket holds requestsPerMin tokens and
// refills at requestsPerMin per window. Call Close to stop the cleanup of
// idle buckets.
func NewLocalRateLimiter(requestsPerMin int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		local:          newVisitors(requestsPerMin, window),
		requestsPerMin: requestsPerMin,
		window:         window,
	}
}

// Close stops background cleanup of a local limiter. It is a no-op for a
// counter-backed limiter.
func (rl *RateLimiter) Close() {
	if rl.local != nil {
		rl.local.close()
	}
}

// take consumes one request for ip on endpoint.
func (rl *RateLimiter) take(ctx context.Context, ip, endpoint string) (allowed bool, remaining int, retryAfter time.Duration, err error) {
	if rl.local != nil {
		allowed, remaining, retryAfter = rl.local.take(ip + ":" + endpoint)
		return allowed, remaining, retryAfter, nil
	}

	count, err := rl.counter.IncrementRateLimit(ctx, ip, endpoint, rl.window)
	if err != nil {
		return false, 0, 0, err
	}
	if count > int64(rl.requestsPerMin) {
		return false, 0, rl.window, nil
	}
	return true, rl.requestsPerMin - int(count), 0, nil
}

// Limit creates middleware that applies rate limiting to an endpoint.
// Counter errors let the request through; they are logged.
//
// Rate limit headers:
//   - X-RateLimit-Limit: Maximum requests allowed per window
//   - X-RateLimit-Remaining: Requests remaining in current window
//   - Retry-After: Seconds until another request is allowed (on 429 only)
func (rl *RateLimiter) Limit(endpoint string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := utils.ExtractClientIP(r)

			allowed, remaining, retryAfter, err := rl.take(r.Context(), ip, endpoint)
			if err != nil {
				log.Error().
					Err(err).
					Str("request_id", utils.GetRequestID(r.Context())).
					Str("ip", ip).
					Msg("Failed to check rate limit")
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.requestsPerMin))

			if !allowed {
				log.Warn().
					Str("request_id", utils.GetRequestID(r.Context())).
					Str("ip", ip).
					Str("endpoint", endpoint).
					Dur("retry_after", retryAfter).
					Msg("Rate limit exceeded")

				rateLimitHits.WithLabelValues(endpoint).Inc()

				w.Header().Set("X-RateLimit-Remaining", "0")
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))

				utils.RespondWithError(w, r, http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.")
				return
			}

			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

			next.ServeHTTP(w, r)
		})
	}
}
