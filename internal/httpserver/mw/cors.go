package mw

import (
	"net/http"

	"github.com/rs/cors"
)

// CORS allows the listed browser origins (e.g. a bookmark extension popup)
// to call the API. With no origins, cross-origin calls stay blocked.
func CORS(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Origin", "Content-Type", "Accept", APIKeyHeader},
	})
	return c.Handler
}
