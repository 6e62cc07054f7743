// Package auth gates the prediction endpoints behind a static bearer token.
//
// Health and readiness probes, Prometheus scrapes, the TLE metadata
// endpoint, and the cache inspection routes stay public so monitoring
// keeps working when a token is configured.
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// Config is the bearer-token configuration. With Enabled false the
// middleware passes every request through untouched.
type Config struct {
	Enabled bool
	Token   string
}

// public reports whether a path is served without a token.
func public(path string) bool {
	switch path {
	case "/healthz", "/readyz", "/metrics", "/api/v1/tle/metadata":
		return true
	}
	return strings.HasPrefix(path, "/api/v1/cache/")
}

// bearerToken extracts the token from the Authorization header.
func bearerToken(r *http.Request) (string, bool) {
	token, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !found || token == "" {
		return "", false
	}
	return token, true
}

// Middleware enforces the bearer token on everything public does not
// cover. Token comparison is constant-time.
func Middleware(cfg Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Enabled || public(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			token, ok := bearerToken(r)
			if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(cfg.Token)) != 1 {
				w.Header().Set("WWW-Authenticate", "Bearer")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":"unauthorized"}` + "\n"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
