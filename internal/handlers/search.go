package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ieraasyl/SatelliteFinder/internal/middleware"
	"github.com/ieraasyl/SatelliteFinder/internal/models"
	"github.com/ieraasyl/SatelliteFinder/internal/services"
	"github.com/ieraasyl/SatelliteFinder/pkg/utils"
	"github.com/rs/zerolog/log"
)

// maxSearchBody bounds the inbound search body; custom geometries can be large.
const maxSearchBody = 4 << 20

const (
	msgInvalidBody         = "Invalid request body. Expected JSON."
	msgMissingSearchFields = "Missing required parameters: credentials, start date, or end date."
	msgSearchRejected      = "Invalid credentials provided or unauthorized by satellite data portal."
	msgSearchTimeout       = "Request to satellite data API timed out."
	msgSearchUnreachable   = "Could not connect to satellite data API. Please check network or try again later."
	msgSearchUpstream      = "Error communicating with satellite data portal (Status Code: %d)."
	msgSearchInternal      = "An internal server error occurred processing your request."
)

// SearchHandler relays catalog searches to the upstream provider.
// A successful search is the only way a client obtains a credential session.
type SearchHandler struct {
	catalog  Catalog
	sessions CredentialSession
	activity ActivityLog
	validate *validator.Validate
}

// NewSearchHandler creates a search handler.
//
// Example:
//
//	searchHandler := handlers.NewSearchHandler(catalogSvc, sessionSvc, activityRecorder)
//	r.Post("/api/v1/search", searchHandler.Search)
func NewSearchHandler(catalog Catalog, sessions CredentialSession, activity ActivityLog) *SearchHandler {
	return &SearchHandler{
		catalog:  catalog,
		sessions: sessions,
		activity: activity,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Search validates the request, queries the upstream catalog with the
// supplied credentials and relays the catalog JSON unchanged.
//
// On success the credentials are stored in the client's credential session
// for later downloads. An upstream 401 or an internal fault clears it; other
// failures leave it untouched.
//
// @Summary      Search the satellite catalog
// @Description  Forwards a normalized query with basic authentication and relays the upstream JSON verbatim
// @Tags         search
// @Accept       json
// @Produce      json
// @Param        request  body      models.SearchRequest  true  "Search request"
// @Success      200      {object}  object                "Upstream catalog response"
// @Failure      400      {object}  utils.ErrorResponse   "Invalid body or missing fields"
// @Failure      401      {object}  utils.ErrorResponse   "Upstream rejected the credentials"
// @Failure      429      {object}  utils.ErrorResponse   "Rate limit exceeded"
// @Failure      500      {object}  utils.ErrorResponse   "Internal error"
// @Failure      503      {object}  utils.ErrorResponse   "Upstream unreachable"
// @Failure      504      {object}  utils.ErrorResponse   "Upstream timeout"
// @Router       /api/v1/search [post]
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	requestID := utils.GetRequestID(ctx)

	var req models.SearchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSearchBody)).Decode(&req); err != nil {
		log.Warn().
			Err(err).
			Str("request_id", requestID).
			Msg("Rejected search with unreadable body")
		utils.RespondWithError(w, r, http.StatusBadRequest, msgInvalidBody)
		return
	}

	if err := h.validate.Struct(&req); err != nil {
		log.Warn().
			Str("request_id", requestID).
			Str("username", req.Username).
			Msg("Rejected search with missing parameters")
		utils.RespondWithError(w, r, http.StatusBadRequest, msgMissingSearchFields)
		return
	}

	payload, source := h.catalog.BuildPayload(&req)
	if source == services.GeometryFallback {
		log.Warn().
			Str("request_id", requestID).
			Str("username", req.Username).
			Msg("Custom AOI missing or invalid, using default country polygon")
	}

	log.Info().
		Str("request_id", requestID).
		Str("username", req.Username).
		Str("startdate", req.StartDate).
		Str("enddate", req.EndDate).
		Str("aoi", source.String()).
		Msg("Searching upstream catalog")

	creds := models.Credentials{Identity: req.Username, Secret: req.Password}
	activity := newActivity(r, opSearch, req.Username)

	result, err := h.catalog.Search(ctx, creds, payload)
	if err != nil {
		ge := services.AsGatewayError(opSearch, err)
		middleware.RecordUpstream(opSearch, ge.Kind.String(), time.Since(start))

		status, message := h.failure(w, r, ge)
		finishActivity(ctx, h.activity, activity, ge.Kind.String(), status, 0, start)
		utils.RespondWithError(w, r, status, message)
		return
	}
	middleware.RecordUpstream(opSearch, outcomeOK, time.Since(start))

	if err := h.sessions.Put(ctx, w, r, creds); err != nil {
		log.Error().
			Err(err).
			Str("request_id", requestID).
			Str("username", req.Username).
			Msg("Failed to store credential session")
		finishActivity(ctx, h.activity, activity, services.KindInternal.String(), http.StatusInternalServerError, 0, start)
		utils.RespondWithError(w, r, http.StatusInternalServerError, msgSearchInternal)
		return
	}
	middleware.RecordSessionEvent("stored")

	log.Info().
		Str("request_id", requestID).
		Str("username", req.Username).
		Int64("features", result.FeatureCount).
		Int("bytes", len(result.Body)).
		Dur("duration", time.Since(start)).
		Msg("Search completed")

	finishActivity(ctx, h.activity, activity, outcomeOK, http.StatusOK, int64(len(result.Body)), start)
	utils.RespondWithRawJSON(w, r, http.StatusOK, result.Body)
}

// failure maps a search error to a status and client message, clearing the
// credential session where the taxonomy requires it.
func (h *SearchHandler) failure(w http.ResponseWriter, r *http.Request, ge *services.GatewayError) (int, string) {
	event := log.Warn().
		Str("request_id", utils.GetRequestID(r.Context())).
		Str("kind", ge.Kind.String()).
		Int("upstream_status", ge.Status)

	switch ge.Kind {
	case services.KindBadRequest:
		event.Err(ge).Msg("Search rejected")
		return http.StatusBadRequest, msgInvalidBody
	case services.KindUnauthenticated, services.KindUpstreamRejected:
		event.Msg("Upstream rejected search credentials")
		h.clearSession(w, r)
		return http.StatusUnauthorized, msgSearchRejected
	case services.KindUpstreamClientError, services.KindUpstreamServerError:
		event.Msg("Upstream search failed")
		return relayedStatus(ge.Status), fmt.Sprintf(msgSearchUpstream, ge.Status)
	case services.KindUpstreamTimeout:
		event.Err(ge).Msg("Upstream search timed out")
		return http.StatusGatewayTimeout, msgSearchTimeout
	case services.KindUpstreamUnreachable:
		event.Err(ge).Msg("Upstream search unreachable")
		return http.StatusServiceUnavailable, msgSearchUnreachable
	default:
		event.Discard()
		log.Error().
			Err(ge).
			Str("request_id", utils.GetRequestID(r.Context())).
			Msg("Search failed with internal error")
		h.clearSession(w, r)
		return http.StatusInternalServerError, msgSearchInternal
	}
}

func (h *SearchHandler) clearSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Clear(r.Context(), w, r); err != nil {
		log.Error().
			Err(err).
			Str("request_id", utils.GetRequestID(r.Context())).
			Msg("Failed to clear credential session")
		return
	}
	middleware.RecordSessionEvent("cleared")
}

// relayedStatus passes an upstream error status through, substituting 502
// for anything that is not a valid client or server error code.
func relayedStatus(status int) int {
	if status < 400 || status > 599 {
		return http.StatusBadGateway
	}
	return status
}
