package mw

import (
	"crypto/subtle"
	"net/http"

	"github.com/MrSnakeDoc/marksync/internal/logger"
)

// APIKeyHeader carries the shared secret.
const APIKeyHeader = "X-API-Key"

// RequireAPIKey rejects requests whose X-API-Key does not match key. An
// empty key disables the check.
func RequireAPIKey(key string, log logger.Logger) func(http.Handler) http.Handler {
	if key == "" {
		log.Debug("RequireAPIKey: no key configured, passthrough mode")
		return func(next http.Handler) http.Handler { return next }
	}

	want := []byte(key)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := []byte(r.Header.Get(APIKeyHeader))
			if subtle.ConstantTimeCompare(got, want) != 1 {
				log.Debugf("RequireAPIKey: rejected request from %s", r.RemoteAddr)
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
