// Package netaddr implements the single source-address extraction rule
// (spec.md §6) shared by every component that keys state on a caller's
// network address: the WebSocket admission gate, the admin HTTP surface's
// check-ban endpoint, and anywhere else a server-derived (never
// client-submitted) address is required.
package netaddr

import (
	"net"
	"net/http"
	"strings"
)

// FromRequest derives the caller's network address: the first entry of
// X-Forwarded-For if present, else the peer socket address, else "0.0.0.0".
func FromRequest(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.IndexByte(xff, ','); idx >= 0 {
			xff = xff[:idx]
		}
		if addr := strings.TrimSpace(xff); addr != "" {
			return addr
		}
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "0.0.0.0"
}
