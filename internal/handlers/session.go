package handlers

import (
	"errors"
	"net/http"

	"github.com/ieraasyl/SatelliteFinder/internal/middleware"
	"github.com/ieraasyl/SatelliteFinder/internal/models"
	"github.com/ieraasyl/SatelliteFinder/internal/services"
	"github.com/ieraasyl/SatelliteFinder/pkg/utils"
	"github.com/rs/zerolog/log"
)

// activityPageSize is the number of entries returned by Activity.
const activityPageSize = 50

// SessionHandler exposes the caller's credential session.
type SessionHandler struct {
	sessions CredentialSession
	activity ActivityLog
}

// NewSessionHandler creates a session handler.
func NewSessionHandler(sessions CredentialSession, activity ActivityLog) *SessionHandler {
	return &SessionHandler{sessions: sessions, activity: activity}
}

// Status reports whether the caller holds stored credentials. The password
// is never part of the response.
//
// @Summary      Credential session status
// @Tags         session
// @Produce      json
// @Success      200  {object}  models.SessionStatus
// @Failure      500  {object}  utils.ErrorResponse
// @Router       /api/v1/session [get]
func (h *SessionHandler) Status(w http.ResponseWriter, r *http.Request) {
	status, err := h.sessions.Status(r.Context(), r)
	if err != nil {
		log.Error().
			Err(err).
			Str("request_id", utils.GetRequestID(r.Context())).
			Msg("Failed to read credential session")
		utils.RespondWithError(w, r, http.StatusInternalServerError, "Failed to read session")
		return
	}

	utils.RespondWithJSON(w, r, http.StatusOK, status)
}

// Logout forgets the caller's credentials. It succeeds without a session.
//
// @Summary      Forget stored credentials
// @Tags         session
// @Produce      json
// @Success      200  {object}  MessageResponse
// @Failure      500  {object}  utils.ErrorResponse
// @Router       /api/v1/session/logout [post]
func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Clear(r.Context(), w, r); err != nil {
		log.Error().
			Err(err).
			Str("request_id", utils.GetRequestID(r.Context())).
			Msg("Failed to clear credential session")
		utils.RespondWithError(w, r, http.StatusInternalServerError, "Failed to clear session")
		return
	}
	middleware.RecordSessionEvent("cleared")

	utils.RespondWithJSON(w, r, http.StatusOK, MessageResponse{Message: "Logged out"})
}

// Activity lists the most recent searches and downloads of the session's
// user. Only available when the activity log is enabled.
//
// @Summary      Recent activity
// @Tags         session
// @Produce      json
// @Success      200  {array}   models.Activity
// @Failure      401  {object}  utils.ErrorResponse  "No credential session"
// @Failure      404  {object}  utils.ErrorResponse  "Activity log disabled"
// @Failure      500  {object}  utils.ErrorResponse
// @Router       /api/v1/session/activity [get]
func (h *SessionHandler) Activity(w http.ResponseWriter, r *http.Request) {
	if !h.activity.Enabled() {
		utils.RespondWithError(w, r, http.StatusNotFound, "Activity log is not enabled")
		return
	}

	creds, err := h.sessions.Get(r.Context(), r)
	if errors.Is(err, services.ErrNoCredentials) {
		utils.RespondWithError(w, r, http.StatusUnauthorized, msgAuthRequired)
		return
	}
	if err != nil {
		log.Error().
			Err(err).
			Str("request_id", utils.GetRequestID(r.Context())).
			Msg("Failed to load credential session")
		utils.RespondWithError(w, r, http.StatusInternalServerError, "Failed to read session")
		return
	}

	entries, err := h.activity.List(r.Context(), creds.Identity, activityPageSize)
	if err != nil {
		log.Error().
			Err(err).
			Str("request_id", utils.GetRequestID(r.Context())).
			Str("username", creds.Identity).
			Msg("Failed to list activity")
		utils.RespondWithError(w, r, http.StatusInternalServerError, "Failed to list activity")
		return
	}
	if entries == nil {
		entries = []*models.Activity{}
	}

	utils.RespondWithJSON(w, r, http.StatusOK, entries)
}
