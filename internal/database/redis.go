package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ieraasyl/SatelliteFinder/pkg/config"
	"github.com/ieraasyl/SatelliteFinder/pkg/utils"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// ErrCredentialsNotFound is returned when a session has no stored credentials,
// either because none were ever stored or because they expired.
var ErrCredentialsNotFound = errors.New("credentials not found")

// RedisDB wraps a Redis client used as the opt-in credential session backend.
// It lets several gateway instances behind a load balancer share sessions.
//
// Key patterns:
//   - "credentials:{sessionID}": sealed credential blob, TTL = session TTL
//   - "ratelimit:{ip}:{endpoint}": request counter, TTL = rate limit window
type RedisDB struct {
	client *redis.Client // Underlying Redis client with connection pooling
}

// NewRedisDB creates a new Redis connection with automatic retry.
//
// Retry configuration:
//   - Max attempts: 5
//   - Initial delay: 100ms
//   - Max delay: 3 seconds
//   - Total timeout: 30 seconds
//
// Returns the connected Redis client or an error if all retries fail.
//
// Example:
//
//	redisDB, err := database.NewRedisDB(&cfg.Redis)
//	if err != nil {
//	    log.Fatal().Err(err).Msg("Redis connection failed")
//	}
//	defer redisDB.Close()
func NewRedisDB(cfg *config.RedisConfig) (*RedisDB, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address(),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	retryConfig := utils.DatabaseRetryConfig()
	retryConfig.InitialDelay = 100 * time.Millisecond
	retryConfig.MaxDelay = 3 * time.Second

	var lastErr error
	err := utils.Retry(ctx, retryConfig, func() error {
		pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
		defer pingCancel()

		if err := client.Ping(pingCtx).Err(); err != nil {
			lastErr = err
			log.Warn().Err(err).Msg("Failed to ping Redis, retrying...")
			return err
		}
		return nil
	})

	if err != nil {
		client.Close()
		if lastErr != nil {
			return nil, fmt.Errorf("failed to connect to Redis after retries: %w", lastErr)
		}
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Info().Msg("Successfully connected to Redis")

	return &RedisDB{client: client}, nil
}

// Close closes the Redis connection and releases all resources.
func (r *RedisDB) Close() error {
	return r.client.Close()
}

// Client returns the underlying Redis client for advanced operations.
func (r *RedisDB) Client() *redis.Client {
	return r.client
}

// Ping checks if Redis is alive and responsive.
// Used by the readiness endpoint.
func (r *RedisDB) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// SetCredentials stores a sealed credential blob for a session, replacing any
// previous value and resetting its expiry.
func (r *RedisDB) SetCredentials(ctx context.Context, sessionID string, sealed []byte, expiry time.Duration) error {
	key := fmt.Sprintf("credentials:%s", sessionID)
	if err := r.client.Set(ctx, key, sealed, expiry).Err(); err != nil {
		return fmt.Errorf("failed to set credentials: %w", err)
	}
	return nil
}

// GetCredentials returns the sealed credential blob of a session or
// ErrCredentialsNotFound.
func (r *RedisDB) GetCredentials(ctx context.Context, sessionID string) ([]byte, error) {
	key := fmt.Sprintf("credentials:%s", sessionID)
	sealed, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, ErrCredentialsNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get credentials: %w", err)
	}
	return sealed, nil
}

// DeleteCredentials removes the credentials of a session. Deleting a missing
// entry is not an error.
func (r *RedisDB) DeleteCredentials(ctx context.Context, sessionID string) error {
	key := fmt.Sprintf("credentials:%s", sessionID)
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete credentials: %w", err)
	}
	return nil
}

// IncrementRateLimit increments the request counter for an IP address and endpoint.
// The window starts with the first request and the key expires with it.
//
// Key pattern: "ratelimit:{ip}:{endpoint}"
//
// Returns the current count after incrementing.
func (r *RedisDB) IncrementRateLimit(ctx context.Context, ip, endpoint string, window time.Duration) (int64, error) {
	key := fmt.Sprintf("ratelimit:%s:%s", ip, endpoint)

	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment rate limit: %w", err)
	}

	// Set expiry on first request
	if count == 1 {
		err = r.client.Expire(ctx, key, window).Err()
		if err != nil {
			return 0, fmt.Errorf("failed to set rate limit expiry: %w", err)
		}
	}

	return count, nil
}
