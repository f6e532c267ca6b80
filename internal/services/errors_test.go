package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestClassifyTransportError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"deadline", context.DeadlineExceeded, KindUpstreamTimeout},
		{"wrapped deadline", &url.Error{Op: "Post", URL: "https://x/", Err: context.DeadlineExceeded}, KindUpstreamTimeout},
		{"net timeout", &url.Error{Op: "Get", URL: "https://x/", Err: timeoutError{}}, KindUpstreamTimeout},
		{"connection refused", &url.Error{Op: "Get", URL: "https://x/", Err: errors.New("connect: connection refused")}, KindUpstreamUnreachable},
		{"client cancelled", fmt.Errorf("read: %w", context.Canceled), KindUpstreamUnreachable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ge := classifyTransportError(opSearch, tt.err)
			assert.Equal(t, tt.want, ge.Kind)
			assert.ErrorIs(t, ge, tt.err)
		})
	}
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorKind
	}{
		{http.StatusUnauthorized, KindUpstreamRejected},
		{http.StatusForbidden, KindUpstreamClientError},
		{http.StatusNotFound, KindUpstreamClientError},
		{http.StatusBadRequest, KindUpstreamServerError},
		{http.StatusConflict, KindUpstreamServerError},
		{http.StatusInternalServerError, KindUpstreamServerError},
		{http.StatusGatewayTimeout, KindUpstreamServerError},
		{http.StatusNotModified, KindUpstreamServerError},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			ge := classifyStatus(opDownload, tt.status, "body")
			assert.Equal(t, tt.want, ge.Kind)
			assert.Equal(t, tt.status, ge.Status)
			assert.Equal(t, opDownload, ge.Op)
		})
	}
}

func TestAsGatewayError(t *testing.T) {
	t.Run("passes gateway errors through", func(t *testing.T) {
		original := classifyStatus(opSearch, http.StatusNotFound, "")
		wrapped := fmt.Errorf("outer: %w", original)

		assert.Same(t, original, AsGatewayError(opSearch, wrapped))
	})

	t.Run("anything else is internal", func(t *testing.T) {
		ge := AsGatewayError(opSearch, errors.New("nil pointer somewhere"))
		assert.Equal(t, KindInternal, ge.Kind)
		assert.Equal(t, opSearch, ge.Op)
	})
}

func TestErrorKindString(t *testing.T) {
	assert.Equal(t, "upstream_rejected", KindUpstreamRejected.String())
	assert.Equal(t, "internal", KindInternal.String())
	assert.Equal(t, "kind(99)", ErrorKind(99).String())
}

func TestGatewayErrorMessage(t *testing.T) {
	ge := &GatewayError{Kind: KindUpstreamServerError, Op: opSearch, Status: 502, Detail: "bad gateway"}
	assert.Equal(t, "search: upstream_server_error (upstream status 502): bad gateway", ge.Error())
}
