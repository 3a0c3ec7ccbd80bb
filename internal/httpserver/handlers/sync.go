package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/MrSnakeDoc/marksync/internal/domain"
	"github.com/MrSnakeDoc/marksync/internal/httpserver/deps"
	"github.com/MrSnakeDoc/marksync/internal/lock"
	"github.com/MrSnakeDoc/marksync/internal/logger"
	"github.com/MrSnakeDoc/marksync/internal/orchestrator"
)

type pipelineFunc func(ctx context.Context, trigger orchestrator.Trigger) orchestrator.Result

// Backup runs a backup and reports {success, error?}.
func Backup(d deps.Deps) http.HandlerFunc {
	return runPipeline(d, "backup", d.Sync.Backup)
}

// Restore runs a restore and reports {success, error?}.
func Restore(d deps.Deps) http.HandlerFunc {
	return runPipeline(d, "restore", d.Sync.Restore)
}

func runPipeline(d deps.Deps, name string, run pipelineFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res := run(r.Context(), orchestrator.TriggerAPI)

		status := http.StatusOK
		if !res.Success {
			status = statusFor(res.Err)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(status)
		if err := json.NewEncoder(w).Encode(res); err != nil {
			d.Logger.Debug("failed to write response",
				logger.String("op", name),
				logger.Error(err))
		}
	}
}

// statusFor maps a pipeline error to an HTTP status. The body always
// carries the error message.
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusInternalServerError
	case errors.Is(err, domain.ErrAuth):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrFormat):
		return http.StatusUnprocessableEntity
	case errors.Is(err, lock.ErrNotAcquired):
		return http.StatusConflict
	case errors.Is(err, domain.ErrRemote):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
