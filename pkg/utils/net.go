package utils

import (
	"net"
	"net/http"
	"strings"
)

// ExtractClientIP returns the client address used for rate limiting and the
// activity log: the host part of r.RemoteAddr.
//
// Forwarded headers are not read here. Behind a reverse proxy, mount
// middleware.RealIP with the proxy's address so RemoteAddr already holds
// the forwarded client.
func ExtractClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.Trim(r.RemoteAddr, "[]")
	}
	return host
}
