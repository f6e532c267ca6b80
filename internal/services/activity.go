package services

import (
	"context"
	"time"

	"github.com/ieraasyl/SatelliteFinder/internal/models"
	"github.com/ieraasyl/SatelliteFinder/pkg/utils"
	"github.com/rs/zerolog/log"
)

// ActivityStore persists activity entries (database.PostgresDB).
type ActivityStore interface {
	RecordActivity(ctx context.Context, activity *models.Activity) error
	ListActivity(ctx context.Context, username string, limit int) ([]*models.Activity, error)
}

// ActivityRecorder writes the optional activity log. A recorder without a
// store (activity log disabled) accepts and drops every entry.
type ActivityRecorder struct {
	store   ActivityStore
	timeout time.Duration
}

// NewActivityRecorder returns a recorder backed by store, which may be nil.
func NewActivityRecorder(store ActivityStore) *ActivityRecorder {
	return &ActivityRecorder{store: store, timeout: 2 * time.Second}
}

// Enabled reports whether entries are persisted.
func (a *ActivityRecorder) Enabled() bool {
	return a != nil && a.store != nil
}

// Record persists an entry. Failures are logged and never affect the
// response: the write outlives a cancelled request but not its own timeout.
func (a *ActivityRecorder) Record(ctx context.Context, activity *models.Activity) {
	if !a.Enabled() {
		return
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeout)
	defer cancel()

	if err := a.store.RecordActivity(writeCtx, activity); err != nil {
		log.Warn().
			Err(err).
			Str("request_id", utils.GetRequestID(ctx)).
			Str("operation", activity.Operation).
			Msg("Failed to record activity")
	}
}

// List returns the most recent entries for username.
func (a *ActivityRecorder) List(ctx context.Context, username string, limit int) ([]*models.Activity, error) {
	if !a.Enabled() {
		return nil, nil
	}
	return a.store.ListActivity(ctx, username, limit)
}
