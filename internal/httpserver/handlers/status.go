package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/MrSnakeDoc/marksync/internal/domain"
	"github.com/MrSnakeDoc/marksync/internal/httpserver/deps"
	"github.com/MrSnakeDoc/marksync/internal/logger"
)

const (
	defaultStatusRuns = 10
	maxStatusRuns     = 50
)

type componentStatus struct {
	OK     bool   `json:"ok"`
	Mode   string `json:"mode,omitempty"`
	Impact string `json:"impact,omitempty"`
	Error  string `json:"error,omitempty"`
}

type statusResponse struct {
	LastBackup  *domain.SyncRun            `json:"last_backup"`
	LastRestore *domain.SyncRun            `json:"last_restore"`
	Recent      []*domain.SyncRun          `json:"recent"`
	Stats       map[string]int64           `json:"stats"`
	Components  map[string]componentStatus `json:"components"`
}

// Status reports the latest runs, counters and the state of the backing
// components. ?limit=N bounds the recent run list.
func Status(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		limit := defaultStatusRuns
		if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v >= 0 {
			limit = min(v, maxStatusRuns)
		}

		resp := statusResponse{
			Components: map[string]componentStatus{
				"redis": checkRedis(ctx, d),
			},
		}

		var err error
		if resp.LastBackup, err = d.History.LastRun(ctx, domain.OpBackup); err == nil {
			if resp.LastRestore, err = d.History.LastRun(ctx, domain.OpRestore); err == nil {
				if resp.Recent, err = d.History.RecentRuns(ctx, limit); err == nil {
					resp.Stats, err = d.History.Stats(ctx)
				}
			}
		}
		if err != nil {
			d.Logger.Warn("failed to read run history", logger.Error(err))
			resp.Components["history"] = componentStatus{OK: false, Error: err.Error()}
		} else {
			resp.Components["history"] = componentStatus{OK: true}
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(resp)
	}
}

func checkRedis(ctx context.Context, d deps.Deps) componentStatus {
	if d.RedisClient == nil {
		return componentStatus{
			OK:     true,
			Mode:   "disabled",
			Impact: "in-process lock and in-memory history",
		}
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := d.RedisClient.Ping(ctx).Err(); err != nil {
		return componentStatus{
			OK:     false,
			Mode:   "degraded",
			Impact: "sync runs cannot take the distributed lock",
			Error:  err.Error(),
		}
	}
	return componentStatus{OK: true, Mode: "distributed"}
}
