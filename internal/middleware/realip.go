package middleware

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// RealIP rewrites r.RemoteAddr to the client address reported by a trusted
// reverse proxy.
//
// Forwarded headers are only read when the connecting peer lies inside one
// of the trusted prefixes. X-Forwarded-For is walked right to left and the
// first hop that is not itself a trusted proxy wins; X-Real-IP is the
// fallback. Requests from any other peer keep their socket address, so a
// client cannot pick its own rate-limit key.
//
// With no trusted prefixes the middleware is a no-op.
//
// Example:
//
//	trusted, _ := cfg.Server.TrustedProxyPrefixes()
//	r.Use(middleware.RealIP(trusted))
func RealIP(trusted []netip.Prefix) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if len(trusted) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			host, port, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				host, port = strings.Trim(r.RemoteAddr, "[]"), "0"
			}

			peer, err := netip.ParseAddr(host)
			if err == nil && isTrusted(trusted, peer) {
				if client, ok := forwardedClient(r, trusted); ok {
					r.RemoteAddr = net.JoinHostPort(client.String(), port)
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

func forwardedClient(r *http.Request, trusted []netip.Prefix) (netip.Addr, bool) {
	var hops []netip.Addr
	for _, header := range r.Header.Values("X-Forwarded-For") {
		for _, part := range strings.Split(header, ",") {
			addr, err := netip.ParseAddr(strings.TrimSpace(part))
			if err != nil {
				// A malformed hop breaks the chain; nothing left of it can be trusted.
				hops = hops[:0]
				continue
			}
			hops = append(hops, addr.Unmap())
		}
	}

	for i := len(hops) - 1; i >= 0; i-- {
		if !isTrusted(trusted, hops[i]) {
			return hops[i], true
		}
	}
	if len(hops) > 0 {
		return hops[0], true
	}

	if addr, err := netip.ParseAddr(strings.TrimSpace(r.Header.Get("X-Real-IP"))); err == nil {
		return addr.Unmap(), true
	}
	return netip.Addr{}, false
}

func isTrusted(trusted []netip.Prefix, addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, prefix := range trusted {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}
