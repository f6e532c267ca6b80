// Package handlers provides HTTP request handlers for the API endpoints.
// Handlers coordinate between the HTTP layer and service layer, handling
// request parsing, validation, error translation and response formatting.
//
// This package includes handlers for:
//   - Catalog search (JSON in, upstream JSON out)
//   - Download proxy (streamed binary out, plain-text errors)
//   - Credential session status, logout and activity
//   - Health checks and readiness checks
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/ieraasyl/SatelliteFinder/internal/models"
	"github.com/ieraasyl/SatelliteFinder/internal/services"
	"github.com/ieraasyl/SatelliteFinder/pkg/utils"
)

// CredentialSession is the per-client store of upstream credentials.
// Only the search handler calls Put; only the download handler reads.
type CredentialSession interface {
	Put(ctx context.Context, w http.ResponseWriter, r *http.Request, creds models.Credentials) error
	Get(ctx context.Context, r *http.Request) (models.Credentials, error)
	Clear(ctx context.Context, w http.ResponseWriter, r *http.Request) error
	Status(ctx context.Context, r *http.Request) (models.SessionStatus, error)
}

// Catalog builds upstream search payloads and performs the search call.
type Catalog interface {
	BuildPayload(req *models.SearchRequest) (*models.SearchPayload, services.GeometrySource)
	Search(ctx context.Context, creds models.Credentials, payload *models.SearchPayload) (*services.SearchResult, error)
}

// Downloader validates download targets and streams assets from upstream.
type Downloader interface {
	ResolveTarget(raw string) (string, error)
	Open(ctx context.Context, creds models.Credentials, target string) (*services.Download, error)
	Stream(d *services.Download, w http.ResponseWriter) (int64, error)
}

// ActivityLog is the optional activity log.
type ActivityLog interface {
	Enabled() bool
	Record(ctx context.Context, activity *models.Activity)
	List(ctx context.Context, username string, limit int) ([]*models.Activity, error)
}

// MessageResponse is a JSON body carrying a single informational message.
type MessageResponse struct {
	Message string `json:"message"`
}

const (
	opSearch   = "search"
	opDownload = "download"

	outcomeOK              = "ok"
	outcomeFailedMidStream = "failed_mid_stream"
)

// newActivity starts an activity entry for the current request.
func newActivity(r *http.Request, operation, username string) *models.Activity {
	return &models.Activity{
		RequestID:  utils.GetRequestID(r.Context()),
		Operation:  operation,
		Username:   username,
		ClientIP:   utils.ExtractClientIP(r),
		DeviceInfo: services.ExtractDeviceInfo(r.UserAgent()),
	}
}

// finishActivity completes and records an entry.
func finishActivity(ctx context.Context, activityLog ActivityLog, activity *models.Activity, outcome string, status int, bytes int64, start time.Time) {
	activity.Outcome = outcome
	activity.StatusCode = status
	activity.Bytes = bytes
	activity.Duration = time.Since(start)
	activityLog.Record(ctx, activity)
}
