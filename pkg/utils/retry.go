// Package utils provides retry logic with exponential backoff for connecting
// to the gateway's own infrastructure (Redis, PostgreSQL) at startup.
//
// It is never used for calls to the upstream satellite data provider: every
// upstream failure is reported to the client once.
package utils

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"
)

// RetryConfig holds configuration for retry behavior with exponential backoff.
type RetryConfig struct {
	MaxAttempts  int           // including the first try
	InitialDelay time.Duration // delay before the second attempt
	MaxDelay     time.Duration // cap for any single delay
	Multiplier   float64
	Jitter       bool // spread delays by ±25%
}

// DatabaseRetryConfig returns the retry configuration for store connections:
// 5 attempts starting at 50ms, doubling up to 2s, with jitter.
func DatabaseRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  5,
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// Retry calls fn until it succeeds, the attempts are used up or ctx is done.
//
// Example:
//
//	err := utils.Retry(ctx, utils.DatabaseRetryConfig(), func() error {
//	    return client.Ping(ctx).Err()
//	})
func Retry(ctx context.Context, config RetryConfig, fn func() error) error {
	var lastErr error
	delay := config.InitialDelay

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		if lastErr = fn(); lastErr == nil {
			if attempt > 1 {
				log.Info().Int("attempt", attempt).Msg("Connected after retry")
			}
			return nil
		}
		if attempt == config.MaxAttempts {
			break
		}

		wait := config.backoff(delay)
		log.Debug().
			Err(lastErr).
			Int("attempt", attempt).
			Dur("delay", wait).
			Msg("Attempt failed, retrying")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-timer.C:
		}

		delay = time.Duration(float64(delay) * config.Multiplier)
	}

	return fmt.Errorf("max retries exceeded (%d attempts): %w", config.MaxAttempts, lastErr)
}

// backoff caps delay and applies jitter.
func (c RetryConfig) backoff(delay time.Duration) time.Duration {
	if delay > c.MaxDelay {
		delay = c.MaxDelay
	}
	if c.Jitter {
		spread := float64(delay) * 0.25
		delay += time.Duration(rand.Float64()*2*spread - spread)
	}
	return delay
}
