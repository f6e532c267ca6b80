package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ieraasyl/SatelliteFinder/internal/middleware"
	"github.com/ieraasyl/SatelliteFinder/internal/services"
	"github.com/ieraasyl/SatelliteFinder/pkg/utils"
	"github.com/rs/zerolog/log"
)

const (
	msgAuthRequired     = "Authentication required. Please perform a search first to log in."
	msgMissingURL       = "Missing download URL."
	msgDisallowedURL    = "Proxying downloads is only allowed for the satellite data portal."
	msgDownloadRejected = "Authentication failed with satellite data portal during download."
	msgDownloadNotFound = "File not found on satellite data portal."
	msgDownloadUpstream = "Error fetching file from satellite data portal (Status: %d)."
	msgDownloadTimeout  = "The request to the satellite data portal timed out."
	msgDownloadNetwork  = "A network error occurred while trying to download the file."
	msgDownloadInternal = "An internal server error occurred during the download process."
)

// DownloadHandler proxies authenticated asset downloads from the upstream
// provider. Errors are plain text since clients expect a file, not JSON.
type DownloadHandler struct {
	downloads Downloader
	sessions  CredentialSession
	activity  ActivityLog
}

// NewDownloadHandler creates a download handler.
func NewDownloadHandler(downloads Downloader, sessions CredentialSession, activity ActivityLog) *DownloadHandler {
	return &DownloadHandler{
		downloads: downloads,
		sessions:  sessions,
		activity:  activity,
	}
}

// Download streams the asset named by the url query parameter using the
// credentials of the caller's session.
//
// Once the first byte is written the status is committed: a failure after
// that point aborts the connection so the client sees a truncated transfer
// rather than a complete-looking file.
//
// @Summary      Download an asset through the gateway
// @Description  Streams an upstream asset using the credentials stored by the last successful search
// @Tags         download
// @Produce      octet-stream
// @Param        url  query     string  true  "Percent-encoded upstream asset URL"
// @Success      200  {file}    binary  "Asset bytes"
// @Failure      400  {string}  string  "Missing or disallowed url"
// @Failure      401  {string}  string  "No session, or upstream rejected the credentials"
// @Failure      403  {string}  string  "Upstream forbidden"
// @Failure      404  {string}  string  "Upstream file not found"
// @Failure      500  {string}  string  "Internal error"
// @Failure      502  {string}  string  "Upstream error or network failure"
// @Failure      504  {string}  string  "Upstream timeout"
// @Router       /api/v1/download [get]
func (h *DownloadHandler) Download(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	requestID := utils.GetRequestID(ctx)

	creds, err := h.sessions.Get(ctx, r)
	if errors.Is(err, services.ErrNoCredentials) {
		log.Warn().
			Str("request_id", requestID).
			Msg("Download attempted without a credential session")
		utils.RespondWithText(w, http.StatusUnauthorized, msgAuthRequired)
		return
	}
	if err != nil {
		log.Error().
			Err(err).
			Str("request_id", requestID).
			Msg("Failed to load credential session")
		utils.RespondWithText(w, http.StatusInternalServerError, msgDownloadInternal)
		return
	}

	activity := newActivity(r, opDownload, creds.Identity)

	target, err := h.downloads.ResolveTarget(r.URL.Query().Get("url"))
	if err != nil {
		message := msgDisallowedURL
		if errors.Is(err, services.ErrMissingTarget) {
			message = msgMissingURL
		}
		log.Warn().
			Err(err).
			Str("request_id", requestID).
			Str("username", creds.Identity).
			Msg("Rejected download target")
		finishActivity(ctx, h.activity, activity, services.KindBadRequest.String(), http.StatusBadRequest, 0, start)
		utils.RespondWithText(w, http.StatusBadRequest, message)
		return
	}
	activity.Target = target

	log.Info().
		Str("request_id", requestID).
		Str("username", creds.Identity).
		Str("target", target).
		Msg("Proxying download")

	dl, err := h.downloads.Open(ctx, creds, target)
	if err != nil {
		ge := services.AsGatewayError(opDownload, err)
		middleware.RecordUpstream(opDownload, ge.Kind.String(), time.Since(start))

		status, message := h.failure(w, r, ge)
		finishActivity(ctx, h.activity, activity, ge.Kind.String(), status, 0, start)
		utils.RespondWithText(w, status, message)
		return
	}
	defer dl.Close()
	middleware.RecordUpstream(opDownload, outcomeOK, time.Since(start))

	header := w.Header()
	for key, values := range dl.Header {
		header[key] = values
	}
	w.WriteHeader(dl.StatusCode)

	done := middleware.DownloadStarted()
	written, err := h.downloads.Stream(dl, w)
	done()
	middleware.AddDownloadedBytes(written)

	if err != nil {
		side := "client"
		var streamErr *services.StreamError
		if errors.As(err, &streamErr) && streamErr.Upstream {
			side = "upstream"
		}
		middleware.RecordStreamFailure(side)

		log.Error().
			Err(err).
			Str("request_id", requestID).
			Str("username", creds.Identity).
			Str("target", target).
			Str("side", side).
			Int64("bytes", written).
			Msg("Download failed mid-stream")
		finishActivity(ctx, h.activity, activity, outcomeFailedMidStream, dl.StatusCode, written, start)

		panic(http.ErrAbortHandler)
	}

	log.Info().
		Str("request_id", requestID).
		Str("username", creds.Identity).
		Str("target", target).
		Int64("bytes", written).
		Dur("duration", time.Since(start)).
		Msg("Download completed")
	finishActivity(ctx, h.activity, activity, outcomeOK, dl.StatusCode, written, start)
}

// failure maps an Open error to a status and plain-text message.
func (h *DownloadHandler) failure(w http.ResponseWriter, r *http.Request, ge *services.GatewayError) (int, string) {
	requestID := utils.GetRequestID(r.Context())

	switch ge.Kind {
	case services.KindBadRequest:
		log.Warn().Err(ge).Str("request_id", requestID).Msg("Download target unusable")
		return http.StatusBadRequest, msgDisallowedURL
	case services.KindUnauthenticated, services.KindUpstreamRejected:
		log.Warn().Str("request_id", requestID).Msg("Upstream rejected download credentials")
		if err := h.sessions.Clear(r.Context(), w, r); err != nil {
			log.Error().Err(err).Str("request_id", requestID).Msg("Failed to clear credential session")
		} else {
			middleware.RecordSessionEvent("cleared")
		}
		return http.StatusUnauthorized, msgDownloadRejected
	case services.KindUpstreamClientError:
		log.Warn().Int("upstream_status", ge.Status).Str("request_id", requestID).Msg("Upstream refused download")
		if ge.Status == http.StatusNotFound {
			return http.StatusNotFound, msgDownloadNotFound
		}
		return ge.Status, fmt.Sprintf(msgDownloadUpstream, ge.Status)
	case services.KindUpstreamServerError:
		log.Warn().Int("upstream_status", ge.Status).Str("request_id", requestID).Msg("Upstream download failed")
		return http.StatusBadGateway, fmt.Sprintf(msgDownloadUpstream, ge.Status)
	case services.KindUpstreamTimeout:
		log.Warn().Err(ge).Str("request_id", requestID).Msg("Upstream download timed out")
		return http.StatusGatewayTimeout, msgDownloadTimeout
	case services.KindUpstreamUnreachable:
		log.Warn().Err(ge).Str("request_id", requestID).Msg("Upstream download unreachable")
		return http.StatusBadGateway, msgDownloadNetwork
	default:
		log.Error().Err(ge).Str("request_id", requestID).Msg("Download failed with internal error")
		return http.StatusInternalServerError, msgDownloadInternal
	}
}
