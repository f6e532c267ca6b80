package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/ieraasyl/SatelliteFinder/pkg/utils"
	"github.com/rs/zerolog/log"
)

// Pinger is a dependency whose connectivity can be checked.
// Implemented by database.PostgresDB, database.RedisDB and database.MemoryStore.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles health check endpoints for monitoring and orchestration.
// Only the backends actually configured are pinged: the credential store
// always, Postgres only when the activity log is enabled.
type HealthHandler struct {
	checks  map[string]Pinger
	timeout time.Duration
}

// NewHealthHandler creates a health handler probing the named dependencies.
//
// Example:
//
//	healthHandler := handlers.NewHealthHandler(map[string]handlers.Pinger{
//		"redis": redisDB,
//	})
//	r.Get("/health", healthHandler.Health)
//	r.Get("/ready", healthHandler.Ready)
func NewHealthHandler(checks map[string]Pinger) *HealthHandler {
	return &HealthHandler{
		checks:  checks,
		timeout: 5 * time.Second,
	}
}

// HealthResponse represents the health check response structure.
//
// JSON example:
//
//	{
//	  "status": "ok",
//	  "timestamp": "2024-01-20T14:30:00Z",
//	  "services": {
//	    "redis": "healthy"
//	  }
//	}
type HealthResponse struct {
	Status    string            `json:"status"`             // "ok" or "degraded"
	Timestamp time.Time         `json:"timestamp"`          // Current server time
	Services  map[string]string `json:"services,omitempty"` // readiness only
}

// Health is the liveness check. It never checks dependencies.
//
// @Summary      Health check (liveness check)
// @Description  Returns 200 OK if the service is running. Does not check dependencies.
// @Tags         health
// @Produce      json
// @Success      200  {object}  HealthResponse  "Service is alive"
// @Router       /health [get]
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	utils.RespondWithJSON(w, r, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
	})
}

// Ready is the readiness check. It pings every configured dependency within
// a 5 second budget and answers 503 if any of them fails. The upstream
// provider is not pinged.
//
// @Summary      Readiness check
// @Description  Checks if the service and its configured stores are healthy
// @Tags         health
// @Produce      json
// @Success      200  {object}  HealthResponse  "All services healthy"
// @Failure      503  {object}  HealthResponse  "One or more services unhealthy"
// @Router       /ready [get]
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	services := make(map[string]string, len(names))
	allHealthy := true

	for _, name := range names {
		if err := h.checks[name].Ping(ctx); err != nil {
			log.Error().Err(err).Str("service", name).Msg("Health check failed")
			services[name] = "unhealthy"
			allHealthy = false
			continue
		}
		services[name] = "healthy"
	}

	response := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Services:  services,
	}

	statusCode := http.StatusOK
	if !allHealthy {
		response.Status = "degraded"
		statusCode = http.StatusServiceUnavailable
	}

	utils.RespondWithJSON(w, r, statusCode, response)
}
