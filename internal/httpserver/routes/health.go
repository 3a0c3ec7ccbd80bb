package routes

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MrSnakeDoc/marksync/internal/httpserver/deps"
	"github.com/MrSnakeDoc/marksync/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/marksync/internal/httpserver/mw"
)

func init() { Register(registerHealth) }

const healthTimeout = 2 * time.Second

func registerHealth(r chi.Router, d deps.Deps) {
	r.With(middleware.Timeout(healthTimeout)).Get("/healthz", handlers.Healthz(d))
	r.With(middleware.Timeout(healthTimeout), mw.AllowOnlyCIDRS(d.AllowedCIDRS, d.TrustProxy, d.Logger)).Get("/readyz", handlers.Readyz(d))
}
