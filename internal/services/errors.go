package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrorKind classifies every failure the gateway can report to a client.
// Callers switch over it exhaustively; each upstream failure maps to exactly
// one kind at the boundary of the component that made the call.
type ErrorKind int

const (
	// KindBadRequest is malformed or missing client input, including a
	// disallowed download target.
	KindBadRequest ErrorKind = iota + 1
	// KindUnauthenticated means no credential session exists for a download.
	KindUnauthenticated
	// KindUpstreamRejected means upstream answered 401.
	KindUpstreamRejected
	// KindUpstreamClientError is an upstream 403 or 404.
	KindUpstreamClientError
	// KindUpstreamTimeout means the upstream call exceeded its deadline.
	KindUpstreamTimeout
	// KindUpstreamUnreachable is a transport-level failure reaching upstream.
	KindUpstreamUnreachable
	// KindUpstreamServerError is any other non-2xx upstream status.
	KindUpstreamServerError
	// KindInternal is an unexpected fault inside the gateway.
	KindInternal
)

// String returns a stable snake_case name, used in logs, metrics and the activity log.
func (k ErrorKind) String() string {
	switch k {
	case KindBadRequest:
		return "bad_request"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindUpstreamRejected:
		return "upstream_rejected"
	case KindUpstreamClientError:
		return "upstream_client_error"
	case KindUpstreamTimeout:
		return "upstream_timeout"
	case KindUpstreamUnreachable:
		return "upstream_unreachable"
	case KindUpstreamServerError:
		return "upstream_server_error"
	case KindInternal:
		return "internal"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// GatewayError is the single error type returned by the catalog and
// download services.
type GatewayError struct {
	Kind   ErrorKind
	Op     string // "search" or "download"
	Status int    // upstream HTTP status, set for status-derived kinds
	Detail string // server-side detail, never sent to clients
	Err    error
}

// Error implements the error interface.
func (e *GatewayError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Op, e.Kind)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (upstream status %d)", e.Status)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the wrapped cause, if any.
func (e *GatewayError) Unwrap() error { return e.Err }

// AsGatewayError extracts a *GatewayError from err. Anything else is
// reported as KindInternal so no raw error reaches a client.
func AsGatewayError(op string, err error) *GatewayError {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge
	}
	return &GatewayError{Kind: KindInternal, Op: op, Err: err}
}

func newGatewayError(kind ErrorKind, op, detail string, err error) *GatewayError {
	return &GatewayError{Kind: kind, Op: op, Detail: detail, Err: err}
}

// classifyTransportError maps a failed http.Client.Do or body read.
// Deadline expiry is a timeout; everything else (DNS, refused connection,
// TLS failure, reset, cancellation by the client) is unreachable.
func classifyTransportError(op string, err error) *GatewayError {
	if errors.Is(err, context.DeadlineExceeded) {
		return newGatewayError(KindUpstreamTimeout, op, "", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return newGatewayError(KindUpstreamTimeout, op, "", err)
	}
	return newGatewayError(KindUpstreamUnreachable, op, "", err)
}

// classifyStatus maps a non-2xx upstream status.
func classifyStatus(op string, status int, excerpt string) *GatewayError {
	var kind ErrorKind
	switch status {
	case http.StatusUnauthorized:
		kind = KindUpstreamRejected
	case http.StatusForbidden, http.StatusNotFound:
		kind = KindUpstreamClientError
	default:
		kind = KindUpstreamServerError
	}
	return &GatewayError{Kind: kind, Op: op, Status: status, Detail: excerpt}
}

// isSuccess reports whether an upstream status is 2xx.
func isSuccess(status int) bool {
	return status >= 200 && status < 300
}
