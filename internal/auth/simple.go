package auth

import (
	"crypto/subtle"
	"net/http"
	"os"
	"strings"
)

// open paths are served without a token so probes and scrapers keep working.
var open = map[string]bool{
	"/healthz": true,
	"/readyz":  true,
	"/metrics": true,
}

// Middleware authenticates with the token in QUIP_API_TOKEN.
func Middleware(next http.Handler) http.Handler {
	return Bearer(os.Getenv("QUIP_API_TOKEN"))(next)
}

// Bearer requires "Authorization: Bearer <token>" on every non-probe request.
// An empty token rejects everything.
func Bearer(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if open[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			authz := r.Header.Get("Authorization")
			if !strings.HasPrefix(authz, "Bearer ") {
				http.Error(w, "missing API token", http.StatusUnauthorized)
				return
			}

			got := strings.TrimSpace(strings.TrimPrefix(authz, "Bearer "))
			if token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				http.Error(w, "invalid API token", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
