package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ieraasyl/SatelliteFinder/internal/database"
	"github.com/ieraasyl/SatelliteFinder/internal/handlers"
	"github.com/ieraasyl/SatelliteFinder/internal/middleware"
	"github.com/ieraasyl/SatelliteFinder/internal/server"
	"github.com/ieraasyl/SatelliteFinder/internal/services"
	"github.com/ieraasyl/SatelliteFinder/pkg/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	_ "github.com/ieraasyl/SatelliteFinder/docs" // Import generated docs
)

// sessionStore is what both credential session backends provide.
type sessionStore interface {
	services.CredentialStore
	handlers.Pinger
	io.Closer
}

// @title           SatelliteFinder Gateway API
// @version         1.0
// @description     Search relay and streaming download proxy for the satellite data portal.
// @description     Credentials proven by a successful search are kept server-side for later downloads.
//
// @contact.name   API Support
// @contact.email  ieraasyl@example.com
//
// @license.name  MIT
// @license.url   https://github.com/ieraasyl/SatelliteFinder/blob/main/LICENSE
//
// @host      localhost:8080
// @BasePath  /
//
// @securityDefinitions.apikey CookieAuth
// @in cookie
// @name sat_session
// @description Signed credential session cookie set by a successful search
func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	setupLogger(&cfg.Log)

	log.Info().
		Str("env", cfg.Server.Environment).
		Str("port", cfg.Server.Port).
		Str("session_backend", cfg.Session.Backend).
		Str("upstream", cfg.Upstream.SearchURL).
		Msg("Starting satellite gateway")

	if cfg.Session.Ephemeral {
		log.Warn().Msg("SESSION_SECRET is not set: using an ephemeral secret, sessions will not survive a restart or be shared between instances")
	}
	if cfg.Upstream.InsecureSkipVerify {
		log.Warn().Msg("UPSTREAM_INSECURE_SKIP_VERIFY is enabled: upstream TLS certificates are NOT verified")
	}

	// Credential session backend
	store, err := newSessionStore(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize session store")
	}
	defer store.Close()

	checks := map[string]handlers.Pinger{cfg.Session.Backend: store}

	// Optional activity log
	var activityStore services.ActivityStore
	if cfg.Database.Enabled {
		postgresDB, err := database.NewPostgresDB(&cfg.Database)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
		}
		defer postgresDB.Close()

		if err := postgresDB.RunMigrations(context.Background(), database.ActivityMigration); err != nil {
			log.Fatal().Err(err).Msg("Failed to run migrations")
		}

		activityStore = postgresDB
		checks["postgres"] = postgresDB
	}

	// Initialize services
	sealer, err := services.NewSealer(cfg.Session.Secret)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize credential sealer")
	}
	tokens := services.NewTokenService(cfg.Session.Secret, cfg.Session.TTL)
	sessionService := services.NewSessionService(store, tokens, sealer, &cfg.Session, cfg.Server.IsProduction())

	upstreamClient := services.NewUpstreamClient(&cfg.Upstream)
	catalogService := services.NewCatalogService(&cfg.Upstream, upstreamClient)
	downloadService := services.NewDownloadService(&cfg.Upstream, upstreamClient)
	activityRecorder := services.NewActivityRecorder(activityStore)

	// Initialize handlers
	h := server.Handlers{
		Search:   handlers.NewSearchHandler(catalogService, sessionService, activityRecorder),
		Download: handlers.NewDownloadHandler(downloadService, sessionService, activityRecorder),
		Session:  handlers.NewSessionHandler(sessionService, activityRecorder),
		Health:   handlers.NewHealthHandler(checks),
	}

	rateLimiter := newRateLimiter(cfg, store)
	defer rateLimiter.Close()

	router, err := server.NewRouter(cfg, h, rateLimiter)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build router")
	}
	srv := server.New(cfg, router)

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// Wait for interrupt signal
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown; in-flight downloads get the shutdown timeout to finish
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped gracefully")
}

// setupLogger configures the global zerolog logger: console output for
// development, JSON otherwise.
func setupLogger(cfg *config.LogConfig) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
		return
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
}

func newSessionStore(cfg *config.Config) (sessionStore, error) {
	if cfg.Session.Backend == config.SessionBackendRedis {
		redisDB, err := database.NewRedisDB(&cfg.Redis)
		if err != nil {
			return nil, err
		}
		return redisDB, nil
	}
	return database.NewMemoryStore(time.Minute), nil
}

// newRateLimiter shares the search limit between instances when the session
// backend can count (Redis) and keeps it in process otherwise.
func newRateLimiter(cfg *config.Config, store sessionStore) *middleware.RateLimiter {
	if counter, ok := store.(middleware.RateCounter); ok {
		return middleware.NewRateLimiter(counter, cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.WindowDuration)
	}
	return middleware.NewLocalRateLimiter(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.WindowDuration)
}
