// Package utils provides common utility functions for HTTP response handling,
// request ID management, and cookie operations.
package utils

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

// requestIDKey is the context key for request ID
const requestIDKey contextKey = "request_id"

// GetRequestID retrieves the request ID from the context.
// Returns an empty string if the context is nil or no request ID is present.
func GetRequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if requestID, ok := ctx.Value(requestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// WithRequestID adds a request ID to the context for log correlation.
// This is called by the logging middleware for every request.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// ErrorResponse is the JSON error body of the API: a single human-readable
// message. The request ID travels in the X-Request-ID response header.
type ErrorResponse struct {
	Error string `json:"error"`
}

// RespondWithError sends a JSON error response.
//
// Example:
//
//	utils.RespondWithError(w, r, http.StatusBadRequest, "Invalid request body. Expected JSON.")
func RespondWithError(w http.ResponseWriter, r *http.Request, statusCode int, message string) {
	RespondWithJSON(w, r, statusCode, ErrorResponse{Error: message})
}

// RespondWithJSON sends a JSON response with the given status code and data.
func RespondWithJSON(w http.ResponseWriter, r *http.Request, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().
			Err(err).
			Str("request_id", GetRequestID(r.Context())).
			Msg("Failed to encode JSON response")
	}
}

// RespondWithRawJSON sends an already encoded JSON document unchanged.
func RespondWithRawJSON(w http.ResponseWriter, r *http.Request, statusCode int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if _, err := w.Write(body); err != nil {
		log.Warn().
			Err(err).
			Str("request_id", GetRequestID(r.Context())).
			Msg("Failed to write JSON response")
	}
}

// RespondWithText sends a plain-text error, used by endpoints whose success
// response is not JSON (file downloads).
func RespondWithText(w http.ResponseWriter, statusCode int, message string) {
	http.Error(w, message, statusCode)
}

// SetSessionCookie sets a browser-session cookie: no Expires or MaxAge, so the
// browser drops it when the session ends. In production, the cookie is marked
// as Secure (HTTPS only). The cookie is always HttpOnly and uses SameSite=Lax
// for CSRF protection.
func SetSessionCookie(w http.ResponseWriter, name, value string, isProduction bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   isProduction,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearAuthCookie clears a specific cookie by setting MaxAge to -1.
// This instructs the browser to immediately delete the cookie.
func ClearAuthCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}
