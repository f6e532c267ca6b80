// Package server assembles the HTTP router and the http.Server of the gateway.
package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/ieraasyl/SatelliteFinder/internal/handlers"
	"github.com/ieraasyl/SatelliteFinder/internal/middleware"
	"github.com/ieraasyl/SatelliteFinder/pkg/config"
	httpSwagger "github.com/swaggo/http-swagger"
)

// searchTimeoutSlack is added to the upstream search deadline for the outer
// request timeout, so the upstream deadline always fires first.
const searchTimeoutSlack = 5 * time.Second

// Handlers groups the request handlers mounted by NewRouter.
type Handlers struct {
	Search   *handlers.SearchHandler
	Download *handlers.DownloadHandler
	Session  *handlers.SessionHandler
	Health   *handlers.HealthHandler
}

// NewRouter builds the chi router.
//
// Compression and the request timeout apply to the JSON routes only:
// downloads are streamed as-is and bounded by their own upstream deadline.
// Forwarded client addresses are only honoured from cfg.Server.TrustedProxies.
func NewRouter(cfg *config.Config, h Handlers, limiter *middleware.RateLimiter) (http.Handler, error) {
	trusted, err := cfg.Server.TrustedProxyPrefixes()
	if err != nil {
		return nil, fmt.Errorf("failed to parse trusted proxies: %w", err)
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RealIP(trusted))
	r.Use(middleware.Recoverer())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.CORS.AllowedOrigins))

	// Health check endpoints
	r.Get("/health", h.Health.Health)
	r.Get("/ready", h.Health.Ready)

	// Metrics endpoint
	r.Handle("/metrics", middleware.MetricsHandler())

	// Swagger API documentation
	r.Get("/api/docs/*", httpSwagger.Handler(
		httpSwagger.URL("/api/docs/doc.json"),
	))

	searchChain := []func(http.Handler) http.Handler{
		limiter.Limit("search"),
		chimiddleware.Compress(5, "application/json"),
		chimiddleware.Timeout(cfg.Upstream.SearchTimeout + searchTimeoutSlack),
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.With(searchChain...).Post("/search", h.Search.Search)
		r.Get("/download", h.Download.Download)

		r.Route("/session", func(r chi.Router) {
			r.Use(chimiddleware.Compress(5, "application/json"))
			r.Get("/", h.Session.Status)
			r.Post("/logout", h.Session.Logout)
			r.Get("/activity", h.Session.Activity)
		})
	})

	// Routes used by the original browser client
	r.With(searchChain...).Post("/search", h.Search.Search)
	r.Get("/download_proxy", h.Download.Download)

	return r, nil
}

// New returns the http.Server for handler. The write timeout exceeds the
// download deadline so a slow transfer is ended by its own deadline first.
func New(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Upstream.DownloadTimeout + 10*time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
