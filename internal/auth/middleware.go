// Package auth guards the gateway's admin-only HTTP endpoints. The
// WebSocket upgrade path and /healthz are never gated here — runners
// authenticate via namespace + runner_key instead (spec §4.3), and
// liveness checks must never need credentials.
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// AdminPaths is the gateway's full operator-only HTTP surface: the routes
// that expose internal connection/metrics state and therefore need
// authentication. APIKey only ever gates requests to one of these paths;
// everything else (the upgrade endpoint, /healthz) passes through
// unchecked even if this middleware is mounted ahead of them.
var AdminPaths = []string{"/metrics", "/readyz"}

// Noop passes every request through unchanged.
func Noop() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return next
	}
}

// APIKey validates requests to an AdminPaths route against a static key
// read from "Authorization: Bearer <key>". An empty key behaves like
// Noop — a deployment that never sets GATEWAY_ADMIN_API_KEY leaves its
// admin endpoints open, matching config.FromEnv's boot-time default.
func APIKey(key string) func(http.Handler) http.Handler {
	if key == "" {
		return Noop()
	}

	keyBytes := []byte(key)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !isAdminPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			token := extractBearerToken(r)
			if token == "" {
				http.Error(w, "missing or invalid Authorization header", http.StatusUnauthorized)
				return
			}

			if subtle.ConstantTimeCompare([]byte(token), keyBytes) != 1 {
				http.Error(w, "invalid API key", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func isAdminPath(path string) bool {
	for _, p := range AdminPaths {
		if path == p {
			return true
		}
	}
	return false
}

func extractBearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(h, "Bearer ")
}
