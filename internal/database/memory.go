package database

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryStore is the default, process-local credential session backend.
// Nothing survives a restart. It implements the credential methods of
// RedisDB so either can back the session service.
//
// Expired entries are invisible to readers immediately and are purged by a
// background janitor every sweep interval.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// NewMemoryStore creates a memory store and starts its janitor.
// Call Close to stop the janitor.
func NewMemoryStore(sweepInterval time.Duration) *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go s.janitor(sweepInterval)
	return s
}

func (s *MemoryStore) janitor(interval time.Duration) {
	defer close(s.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if purged := s.purge(); purged > 0 {
				log.Debug().Int("purged", purged).Msg("Purged expired session entries")
			}
		case <-s.stop:
			return
		}
	}
}

func (s *MemoryStore) purge() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	purged := 0
	for key, entry := range s.entries {
		if !now.Before(entry.expiresAt) {
			delete(s.entries, key)
			purged++
		}
	}
	return purged
}

// Close stops the janitor and drops all entries.
func (s *MemoryStore) Close() error {
	s.once.Do(func() {
		close(s.stop)
		<-s.done

		s.mu.Lock()
		s.entries = make(map[string]memoryEntry)
		s.mu.Unlock()
	})
	return nil
}

// Ping always succeeds; the store lives in process memory.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

// SetCredentials stores a sealed credential blob for a session.
func (s *MemoryStore) SetCredentials(ctx context.Context, sessionID string, sealed []byte, expiry time.Duration) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("failed to set credentials: %w", err)
	}

	value := make([]byte, len(sealed))
	copy(value, sealed)

	s.mu.Lock()
	s.entries[sessionID] = memoryEntry{value: value, expiresAt: s.now().Add(expiry)}
	s.mu.Unlock()
	return nil
}

// GetCredentials returns the sealed credential blob of a session or
// ErrCredentialsNotFound.
func (s *MemoryStore) GetCredentials(ctx context.Context, sessionID string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("failed to get credentials: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[sessionID]
	if !ok {
		return nil, ErrCredentialsNotFound
	}
	if !s.now().Before(entry.expiresAt) {
		delete(s.entries, sessionID)
		return nil, ErrCredentialsNotFound
	}

	value := make([]byte, len(entry.value))
	copy(value, entry.value)
	return value, nil
}

// DeleteCredentials removes the credentials of a session.
func (s *MemoryStore) DeleteCredentials(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	delete(s.entries, sessionID)
	s.mu.Unlock()
	return nil
}
