package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ieraasyl/SatelliteFinder/internal/database"
	"github.com/ieraasyl/SatelliteFinder/internal/models"
	"github.com/ieraasyl/SatelliteFinder/pkg/config"
	"github.com/ieraasyl/SatelliteFinder/pkg/utils"
	"github.com/mileusna/useragent"
	"github.com/rs/zerolog/log"
)

// ErrNoCredentials is returned by Get when the client has no credential
// session: no cookie, an invalid or expired cookie, or nothing stored.
var ErrNoCredentials = errors.New("no credential session")

// CredentialStore persists sealed credential blobs keyed by session ID.
// Implemented by database.MemoryStore and database.RedisDB.
type CredentialStore interface {
	SetCredentials(ctx context.Context, sessionID string, sealed []byte, expiry time.Duration) error
	GetCredentials(ctx context.Context, sessionID string) ([]byte, error)
	DeleteCredentials(ctx context.Context, sessionID string) error
}

// SessionService is the per-client credential session.
//
// A client is identified by a signed session cookie (see TokenService).
// The credentials themselves live server-side in a CredentialStore, sealed
// with a Sealer. Put is called only by the search path after a 2xx upstream
// response; Get only by the download path; Clear by either on an upstream
// 401, and by logout.
//
// Every Put issues a fresh session ID, so a session ID known before login
// is never the one that carries credentials.
type SessionService struct {
	store        CredentialStore
	tokens       *TokenService
	sealer       *Sealer
	cookieName   string
	ttl          time.Duration
	secureCookie bool
}

// NewSessionService wires the credential session from its parts.
//
// Example:
//
//	sealer, err := services.NewSealer(cfg.Session.Secret)
//	tokens := services.NewTokenService(cfg.Session.Secret, cfg.Session.TTL)
//	sessions := services.NewSessionService(store, tokens, sealer, &cfg.Session, cfg.Server.IsProduction())
func NewSessionService(store CredentialStore, tokens *TokenService, sealer *Sealer, cfg *config.SessionConfig, secureCookie bool) *SessionService {
	return &SessionService{
		store:        store,
		tokens:       tokens,
		sealer:       sealer,
		cookieName:   cfg.CookieName,
		ttl:          cfg.TTL,
		secureCookie: secureCookie,
	}
}

// CookieName returns the name of the session cookie.
func (s *SessionService) CookieName() string {
	return s.cookieName
}

// sessionID extracts and verifies the session ID from the request cookie.
func (s *SessionService) sessionID(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(s.cookieName)
	if err != nil || cookie.Value == "" {
		return "", false
	}

	claims, err := s.tokens.Validate(cookie.Value)
	if err != nil {
		log.Debug().
			Err(err).
			Str("request_id", utils.GetRequestID(r.Context())).
			Msg("Ignoring invalid session cookie")
		return "", false
	}
	return claims.SessionID, true
}

// Put stores creds for the calling client, replacing any previous
// credentials, and sets the session cookie on w.
func (s *SessionService) Put(ctx context.Context, w http.ResponseWriter, r *http.Request, creds models.Credentials) error {
	if previous, ok := s.sessionID(r); ok {
		if err := s.store.DeleteCredentials(ctx, previous); err != nil {
			log.Warn().
				Err(err).
				Str("request_id", utils.GetRequestID(ctx)).
				Msg("Failed to drop previous credential session")
		}
	}

	sessionID, err := generateSessionID()
	if err != nil {
		return err
	}

	sealed, err := s.sealer.Seal(sessionID, creds)
	if err != nil {
		return fmt.Errorf("failed to seal credentials: %w", err)
	}

	if err := s.store.SetCredentials(ctx, sessionID, sealed, s.ttl); err != nil {
		return fmt.Errorf("failed to store credentials: %w", err)
	}

	token, err := s.tokens.Issue(sessionID)
	if err != nil {
		_ = s.store.DeleteCredentials(ctx, sessionID)
		return err
	}

	utils.SetSessionCookie(w, s.cookieName, token, s.secureCookie)

	log.Info().
		Str("request_id", utils.GetRequestID(ctx)).
		Str("username", creds.Identity).
		Msg("Credential session stored")

	return nil
}

// Get returns the credentials of the calling client or ErrNoCredentials.
// Other errors mean the store could not be reached.
func (s *SessionService) Get(ctx context.Context, r *http.Request) (models.Credentials, error) {
	sessionID, ok := s.sessionID(r)
	if !ok {
		return models.Credentials{}, ErrNoCredentials
	}

	sealed, err := s.store.GetCredentials(ctx, sessionID)
	if errors.Is(err, database.ErrCredentialsNotFound) {
		return models.Credentials{}, ErrNoCredentials
	}
	if err != nil {
		return models.Credentials{}, fmt.Errorf("failed to load credentials: %w", err)
	}

	creds, err := s.sealer.Open(sessionID, sealed)
	if err != nil {
		// Sealed under another secret, e.g. after a restart with an ephemeral key.
		log.Warn().
			Err(err).
			Str("request_id", utils.GetRequestID(ctx)).
			Msg("Discarding credential session that cannot be unsealed")
		_ = s.store.DeleteCredentials(ctx, sessionID)
		return models.Credentials{}, ErrNoCredentials
	}

	return creds, nil
}

// Clear removes the calling client's credentials and expires the cookie.
// Clearing a client without a session is not an error.
func (s *SessionService) Clear(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	utils.ClearAuthCookie(w, s.cookieName)

	sessionID, ok := s.sessionID(r)
	if !ok {
		return nil
	}

	if err := s.store.DeleteCredentials(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to clear credentials: %w", err)
	}

	log.Info().
		Str("request_id", utils.GetRequestID(ctx)).
		Msg("Credential session cleared")

	return nil
}

// Status reports whether the calling client holds credentials, without the secret.
func (s *SessionService) Status(ctx context.Context, r *http.Request) (models.SessionStatus, error) {
	creds, err := s.Get(ctx, r)
	if errors.Is(err, ErrNoCredentials) {
		return models.SessionStatus{Authenticated: false}, nil
	}
	if err != nil {
		return models.SessionStatus{}, err
	}
	return models.SessionStatus{Authenticated: true, Username: creds.Identity}, nil
}

// ExtractDeviceInfo turns a User-Agent header into a short description
// such as "Chrome 120.0 · Windows 10 · Desktop" for the activity log.
func ExtractDeviceInfo(userAgent string) string {
	if userAgent == "" {
		return "Unknown Device"
	}

	ua := useragent.Parse(userAgent)

	var parts []string

	if ua.Name != "" {
		browser := ua.Name
		if ua.Version != "" {
			browser += " " + ua.Version
		}
		parts = append(parts, browser)
	}

	if ua.OS != "" {
		os := ua.OS
		if ua.OSVersion != "" {
			os += " " + ua.OSVersion
		}
		parts = append(parts, os)
	}

	switch {
	case ua.Mobile:
		parts = append(parts, "Mobile")
	case ua.Tablet:
		parts = append(parts, "Tablet")
	case ua.Desktop:
		parts = append(parts, "Desktop")
	case ua.Bot:
		parts = append(parts, "Bot")
	}

	if len(parts) == 0 {
		if len(userAgent) > 100 {
			return userAgent[:100] + "..."
		}
		return userAgent
	}

	return strings.Join(parts, " · ")
}
