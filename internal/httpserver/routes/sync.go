package routes

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MrSnakeDoc/marksync/internal/httpserver/deps"
	"github.com/MrSnakeDoc/marksync/internal/httpserver/handlers"
)

func init() { Register(registerSync) }

func registerSync(r chi.Router, d deps.Deps) {
	api := r.With(apiGuards(d)...)
	backup := api
	if d.SyncTimeout > 0 {
		backup = api.With(middleware.Timeout(d.SyncTimeout))
	}

	backup.Post("/api/backup", handlers.Backup(d))
	// No timeout: once a restore starts clearing roots it must rebuild them,
	// so it runs to completion even if the client goes away.
	api.Post("/api/restore", handlers.Restore(d))
	if d.BackupTrigger != nil {
		api.Post("/api/backup/trigger", handlers.TriggerBackup(d))
	}
}
