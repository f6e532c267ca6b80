package services

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenService signs and verifies the session cookie value.
//
// The cookie carries only an opaque session ID inside an HS256-signed JWT.
// Credentials never leave the server; the token just proves that the session
// ID was issued by this process (or by any instance sharing SESSION_SECRET).
type TokenService struct {
	secret []byte        // HMAC key (HS256)
	expiry time.Duration // token lifetime, matches the server-side session TTL
}

// SessionClaims are the claims embedded in a session token.
type SessionClaims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// NewTokenService creates a token service.
//
// Example:
//
//	tokens := services.NewTokenService(cfg.Session.Secret, cfg.Session.TTL)
func NewTokenService(secret []byte, expiry time.Duration) *TokenService {
	return &TokenService{
		secret: secret,
		expiry: expiry,
	}
}

// Issue signs a token for sessionID.
func (s *TokenService) Issue(sessionID string) (string, error) {
	now := time.Now()

	claims := SessionClaims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, nil
}

// Validate verifies signature and expiry and returns the claims.
// Only HS256 is accepted.
func (s *TokenService) Validate(tokenString string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("invalid session token: %w", err)
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid session token claims")
	}
	if claims.SessionID == "" {
		return nil, fmt.Errorf("session token has no session id")
	}

	return claims, nil
}

// generateSessionID returns 32 random bytes, URL-safe base64 encoded.
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate session id: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
