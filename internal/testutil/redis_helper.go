package testutil

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ieraasyl/SatelliteFinder/internal/database"
	"github.com/ieraasyl/SatelliteFinder/pkg/config"
)

// SetupMiniRedis creates a miniredis instance for testing
// Returns the miniredis server and a cleanup function
func SetupMiniRedis(t *testing.T) (*miniredis.Miniredis, func()) {
	t.Helper()

	mr := miniredis.RunT(t)

	cleanup := func() {
		mr.Close()
	}

	return mr, cleanup
}

// NewTestRedisDB creates a RedisDB connected to miniredis for testing
func NewTestRedisDB(t *testing.T, mr *miniredis.Miniredis) *database.RedisDB {
	t.Helper()

	cfg := &config.RedisConfig{
		Host:     mr.Host(),
		Port:     mr.Port(),
		Password: "",
		DB:       0,
		PoolSize: 5,
	}

	db, err := database.NewRedisDB(cfg)
	if err != nil {
		t.Fatalf("Failed to create test Redis DB: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return db
}

// NewTestMemoryStore creates a MemoryStore that is closed when the test ends.
func NewTestMemoryStore(t *testing.T) *database.MemoryStore {
	t.Helper()

	store := database.NewMemoryStore(time.Minute)
	t.Cleanup(func() { store.Close() })
	return store
}
