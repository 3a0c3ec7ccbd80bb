package handlers

import (
	"encoding/json"
	"net/http"
	"os"

	"github.com/MrSnakeDoc/marksync/internal/httpserver/deps"
	"github.com/MrSnakeDoc/marksync/internal/local"
)

type readyzResponse struct {
	Ready  bool              `json:"ready"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Readyz reports whether the bookmark file is reachable and Redis, when
// configured, answers.
func Readyz(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{}
		ready := true

		if _, err := os.Stat(d.BookmarkFile); err != nil {
			// A missing YAML file is created on first restore.
			if !(os.IsNotExist(err) && d.StoreKind == local.KindYAML) {
				ready = false
				checks["bookmark_file"] = err.Error()
			}
		}
		if redis := checkRedis(r.Context(), d); !redis.OK {
			ready = false
			checks["redis"] = redis.Error
		}

		status := http.StatusOK
		if !ready {
			status = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(readyzResponse{Ready: ready, Checks: checks})
	}
}
