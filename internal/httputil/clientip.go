// Package httputil holds small helpers shared by the HTTP handlers.
package httputil

import (
	"net"
	"net/http"
	"strings"
)

// Proxy headers consulted when trustProxy is set, in precedence order.
const (
	headerForwardedFor = "X-Forwarded-For"
	headerRealIP       = "X-Real-IP"
)

// ClientIP extracts the client IP address from the request. It is used for
// per-IP stream limits, so the answer must be stable across a client's
// requests.
//
// When trustProxy is true the proxy headers are consulted first; the
// leftmost X-Forwarded-For entry is the original client. Only enable
// trustProxy behind a reverse proxy that strips these headers from
// client traffic, otherwise callers can spoof their way past the limiter.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if ip := firstForwardedFor(r.Header.Get(headerForwardedFor)); ip != "" {
			return ip
		}
		if ip := strings.TrimSpace(r.Header.Get(headerRealIP)); ip != "" {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// RemoteAddr without a port, e.g. in tests.
		return r.RemoteAddr
	}
	return host
}

func firstForwardedFor(xff string) string {
	if xff == "" {
		return ""
	}
	if i := strings.IndexByte(xff, ','); i >= 0 {
		xff = xff[:i]
	}
	return strings.TrimSpace(xff)
}
