package services

import (
	"context"
	"errors"
	"testing"

	"github.com/ieraasyl/SatelliteFinder/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockActivityStore struct {
	mock.Mock
}

func (m *mockActivityStore) RecordActivity(ctx context.Context, activity *models.Activity) error {
	args := m.Called(ctx, activity)
	return args.Error(0)
}

func (m *mockActivityStore) ListActivity(ctx context.Context, username string, limit int) ([]*models.Activity, error) {
	args := m.Called(ctx, username, limit)
	if a := args.Get(0); a != nil {
		return a.([]*models.Activity), args.Error(1)
	}
	return nil, args.Error(1)
}

func TestActivityRecorder(t *testing.T) {
	t.Run("disabled recorder drops entries", func(t *testing.T) {
		recorder := NewActivityRecorder(nil)
		assert.False(t, recorder.Enabled())

		recorder.Record(context.Background(), &models.Activity{Operation: "search"})

		entries, err := recorder.List(context.Background(), "alice", 10)
		require.NoError(t, err)
		assert.Nil(t, entries)
	})

	t.Run("records even after the request was cancelled", func(t *testing.T) {
		store := new(mockActivityStore)
		activity := &models.Activity{Operation: "download", Username: "alice"}
		store.On("RecordActivity", mock.MatchedBy(func(ctx context.Context) bool {
			return ctx.Err() == nil
		}), activity).Return(nil)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		NewActivityRecorder(store).Record(ctx, activity)
		store.AssertExpectations(t)
	})

	t.Run("store failure is swallowed", func(t *testing.T) {
		store := new(mockActivityStore)
		store.On("RecordActivity", mock.Anything, mock.Anything).Return(errors.New("db down"))

		assert.NotPanics(t, func() {
			NewActivityRecorder(store).Record(context.Background(), &models.Activity{Operation: "search"})
		})
		store.AssertExpectations(t)
	})

	t.Run("lists from store", func(t *testing.T) {
		store := new(mockActivityStore)
		want := []*models.Activity{{Operation: "search", Username: "alice"}}
		store.On("ListActivity", mock.Anything, "alice", 50).Return(want, nil)

		got, err := NewActivityRecorder(store).List(context.Background(), "alice", 50)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})
}
