// Package config provides application configuration management with environment
// variable loading, validation, and sensible defaults. It supports .env files
// for local development and validates all settings on startup to prevent
// runtime configuration errors.
//
// Configuration is loaded from environment variables with the Load() function,
// which returns a validated Config struct or an error if a variable is invalid.
//
// Example usage:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal().Err(err).Msg("Failed to load configuration")
//	}
//	if cfg.Session.Ephemeral {
//	    log.Warn().Msg("SESSION_SECRET not set, sessions will not survive a restart")
//	}
package config

import (
	"crypto/rand"
	"fmt"
	"net/netip"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Session store backends.
const (
	SessionBackendMemory = "memory"
	SessionBackendRedis  = "redis"
)

// Config holds all configuration for the application.
// It aggregates all configuration sections into a single struct
// that is passed explicitly into component constructors.
type Config struct {
	Server    ServerConfig
	Log       LogConfig
	Session   SessionConfig
	Redis     RedisConfig
	Database  DatabaseConfig
	Upstream  UpstreamConfig
	CORS      CORSConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds server-specific configuration.
type ServerConfig struct {
	Port            string
	Environment     string
	ReadTimeout     time.Duration
	ShutdownTimeout time.Duration
	TrustedProxies  []string // IPs or CIDRs whose X-Forwarded-For is honoured
}

// IsProduction reports whether the service runs with production settings
// (secure cookies, JSON logs).
func (c *ServerConfig) IsProduction() bool {
	return c.Environment == "production"
}

// TrustedProxyPrefixes parses TrustedProxies. A bare IP becomes a
// single-address prefix.
func (c *ServerConfig) TrustedProxyPrefixes() ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(c.TrustedProxies))
	for _, entry := range c.TrustedProxies {
		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, fmt.Errorf("invalid trusted proxy %q: %w", entry, err)
			}
			prefixes = append(prefixes, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", entry, err)
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}

// LogConfig controls the zerolog global logger.
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // console or json
}

// SessionConfig holds the credential session settings.
//
// Secret signs the session cookie and derives the key that seals stored
// credentials. When SESSION_SECRET is unset a random secret is generated and
// Ephemeral is set: every restart then invalidates all sessions, and several
// instances behind a load balancer cannot share sessions.
type SessionConfig struct {
	Secret     []byte
	Ephemeral  bool
	CookieName string
	TTL        time.Duration // server-side lifetime of stored credentials
	Backend    string        // "memory" (default) or "redis"
}

// RedisConfig holds Redis configuration for the opt-in redis session backend.
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	PoolSize int // Connection pool size
}

// DatabaseConfig holds PostgreSQL configuration for the opt-in activity log.
type DatabaseConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Database string
	User     string
	Password string
	MaxConns int // Maximum number of connections in the pool
}

// UpstreamConfig describes the satellite data provider this service fronts.
type UpstreamConfig struct {
	SearchURL          string
	AllowedPrefixes    []string // download targets must start with one of these
	SensorName         string
	SearchTimeout      time.Duration
	DownloadTimeout    time.Duration
	InsecureSkipVerify bool
	ChunkSize          int
	MaxSearchBytes     int64
}

// CORSConfig holds Cross-Origin Resource Sharing (CORS) configuration
// to control which origins can access the API.
type CORSConfig struct {
	AllowedOrigins []string // List of allowed origin URLs
}

// RateLimitConfig holds rate limiting configuration for the search endpoint.
type RateLimitConfig struct {
	RequestsPerMinute int
	WindowDuration    time.Duration // Time window for rate limiting (default: 1 minute)
}

// Load reads and validates configuration from environment variables.
// It attempts to load a .env file if present (for local development) but
// doesn't fail if the file is missing (for production deployments).
//
// No variable is strictly required. SESSION_SECRET should always be set in
// production; without it Load generates an ephemeral secret and marks the
// session configuration as Ephemeral so the caller can warn about it.
//
// Returns an error if validation fails.
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	_ = godotenv.Load()

	sessionSecret, ephemeral, err := sessionSecret()
	if err != nil {
		return nil, err
	}

	config := &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", "8080"),
			Environment:     getEnv("ENV", "development"),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			TrustedProxies:  getEnvAsSlice("TRUSTED_PROXIES", nil),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "console"),
		},
		Session: SessionConfig{
			Secret:     sessionSecret,
			Ephemeral:  ephemeral,
			CookieName: getEnv("SESSION_COOKIE_NAME", "sat_session"),
			TTL:        getEnvAsDuration("SESSION_TTL", 12*time.Hour),
			Backend:    getEnv("SESSION_BACKEND", SessionBackendMemory),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			PoolSize: getEnvAsInt("REDIS_POOL_SIZE", 100),
		},
		Database: DatabaseConfig{
			Enabled:  getEnvAsBool("AUDIT_ENABLED", false),
			Host:     getEnv("POSTGRES_HOST", "localhost"),
			Port:     getEnv("POSTGRES_PORT", "5432"),
			Database: getEnv("POSTGRES_DB", "satfinder"),
			User:     getEnv("POSTGRES_USER", "satfinder"),
			Password: getEnv("POSTGRES_PASSWORD", ""),
			MaxConns: getEnvAsInt("POSTGRES_MAX_CONNS", 10),
		},
		Upstream: UpstreamConfig{
			SearchURL: getEnv("UPSTREAM_SEARCH_URL", "https://api.satellietdataportaal.nl/v1/search"),
			AllowedPrefixes: getEnvAsSlice("UPSTREAM_ALLOWED_PREFIXES", []string{
				"https://api.satellietdataportaal.nl/",
				"https://satellietdataportaal.nl/",
			}),
			SensorName:         getEnv("UPSTREAM_SENSOR", "RadarSat-2"),
			SearchTimeout:      getEnvAsDuration("UPSTREAM_SEARCH_TIMEOUT", 45*time.Second),
			DownloadTimeout:    getEnvAsDuration("UPSTREAM_DOWNLOAD_TIMEOUT", 90*time.Second),
			InsecureSkipVerify: getEnvAsBool("UPSTREAM_INSECURE_SKIP_VERIFY", false),
			ChunkSize:          getEnvAsInt("DOWNLOAD_CHUNK_SIZE", 8192),
			MaxSearchBytes:     int64(getEnvAsInt("UPSTREAM_MAX_SEARCH_BYTES", 64<<20)),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("ALLOWED_ORIGINS", []string{"http://localhost:8080"}),
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: getEnvAsInt("RATE_LIMIT_REQUESTS", 30),
			WindowDuration:    getEnvAsDuration("RATE_LIMIT_WINDOW", 1*time.Minute),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// Validate checks that the configuration is usable. It verifies:
//   - Port numbers are valid integers
//   - Trusted proxies are IPs or CIDRs
//   - The upstream search URL is absolute
//   - Every allowed download prefix is an absolute http(s) URL ending in "/"
//   - Timeouts, chunk size and rate limit are positive
//   - The session secret is at least 32 bytes
//
// Returns an error describing the first validation failure encountered,
// or nil if all configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if _, err := strconv.Atoi(c.Server.Port); err != nil {
		return fmt.Errorf("server port must be a valid integer: %w", err)
	}
	if _, err := c.Server.TrustedProxyPrefixes(); err != nil {
		return err
	}

	if len(c.Session.Secret) < 32 {
		return fmt.Errorf("session secret must be at least 32 bytes")
	}
	if c.Session.CookieName == "" {
		return fmt.Errorf("session cookie name is required")
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("session TTL must be positive")
	}

	switch c.Session.Backend {
	case SessionBackendMemory:
	case SessionBackendRedis:
		if _, err := strconv.Atoi(c.Redis.Port); err != nil {
			return fmt.Errorf("redis port must be a valid integer: %w", err)
		}
	default:
		return fmt.Errorf("unknown session backend %q", c.Session.Backend)
	}

	if c.Database.Enabled {
		if _, err := strconv.Atoi(c.Database.Port); err != nil {
			return fmt.Errorf("database port must be a valid integer: %w", err)
		}
		if c.Database.Password == "" {
			return fmt.Errorf("database password is required when the activity log is enabled")
		}
	}

	if _, err := url.ParseRequestURI(c.Upstream.SearchURL); err != nil {
		return fmt.Errorf("invalid upstream search URL: %w", err)
	}
	if len(c.Upstream.AllowedPrefixes) == 0 {
		return fmt.Errorf("at least one allowed download prefix is required")
	}
	for _, prefix := range c.Upstream.AllowedPrefixes {
		if err := validatePrefix(prefix); err != nil {
			return err
		}
	}
	if c.Upstream.SensorName == "" {
		return fmt.Errorf("upstream sensor name is required")
	}
	if c.Upstream.SearchTimeout <= 0 || c.Upstream.DownloadTimeout <= 0 {
		return fmt.Errorf("upstream timeouts must be positive")
	}
	if c.Upstream.ChunkSize <= 0 {
		return fmt.Errorf("download chunk size must be positive")
	}
	if c.Upstream.MaxSearchBytes <= 0 {
		return fmt.Errorf("maximum search response size must be positive")
	}

	if c.RateLimit.RequestsPerMinute <= 0 || c.RateLimit.WindowDuration <= 0 {
		return fmt.Errorf("rate limit requests and window must be positive")
	}

	return nil
}

// validatePrefix rejects prefixes that would weaken the download allow-list.
// A prefix without a trailing slash ("https://example.com") would also match
// "https://example.com.attacker.net/".
func validatePrefix(prefix string) error {
	u, err := url.Parse(prefix)
	if err != nil {
		return fmt.Errorf("invalid allowed prefix %q: %w", prefix, err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("allowed prefix %q must use http or https", prefix)
	}
	if u.Host == "" {
		return fmt.Errorf("allowed prefix %q must include a host", prefix)
	}
	if !strings.HasSuffix(prefix, "/") {
		return fmt.Errorf("allowed prefix %q must end with a slash", prefix)
	}
	return nil
}

// DSN returns the PostgreSQL Data Source Name (connection string) formatted
// for use with the lib/pq driver.
//
// Format: "host=X port=Y user=Z password=W dbname=N sslmode=disable"
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.Host, c.Port, c.User, c.Password, c.Database,
	)
}

// Address returns the Redis server address in "host:port" format.
func (c *RedisConfig) Address() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// sessionSecret returns SESSION_SECRET or, if unset, 32 random bytes along
// with ephemeral=true.
func sessionSecret() ([]byte, bool, error) {
	if value := os.Getenv("SESSION_SECRET"); value != "" {
		return []byte(value), false, nil
	}
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, false, fmt.Errorf("failed to generate ephemeral session secret: %w", err)
	}
	return secret, true, nil
}

// Helper functions for environment variable parsing

// getEnv retrieves an environment variable with a default fallback.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer with a default fallback.
// If the variable is not set or cannot be parsed as an integer, returns defaultValue.
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool retrieves an environment variable as a boolean.
// Accepts the values understood by strconv.ParseBool.
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration retrieves an environment variable as a time.Duration with a default fallback.
// Supports Go duration format: "300ms", "1.5h", "2h45m", etc.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsSlice retrieves an environment variable as a string slice with a default fallback.
// Parses comma-separated values into a slice, dropping empty entries.
//
// Example:
//
//	// ALLOWED_ORIGINS=http://localhost:3000,https://example.com
//	origins := getEnvAsSlice("ALLOWED_ORIGINS", []string{"http://localhost:3000"})
//	// Returns: ["http://localhost:3000", "https://example.com"]
func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var result []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			result = append(result, part)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
