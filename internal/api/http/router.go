package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/identity-sync/internal/api/http/handlers"
	"github.com/spec-kit/identity-sync/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Sync           *handlers.SyncHandler
	Metrics        *handlers.MetricsHandler
	Scheduler      *handlers.SchedulerHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes. Everything beyond the health probes
// requires a bearer token; mutations additionally require the admin role.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/version", cfg.Health.Version)

	protected := app.Group("", cfg.AuthMiddleware.Handle)
	protected.Get("/metrics", cfg.Metrics.Snapshot)
	protected.Get("/sync/status", cfg.Sync.Status)
	protected.Get("/sync/passes", cfg.Sync.ListPasses)
	protected.Get("/sync/passes/:id", cfg.Sync.GetPass)
	protected.Get("/scheduler/status", cfg.Scheduler.Status)

	admin := protected.Group("", auth.RequireAdmin())
	admin.Post("/sync", cfg.Sync.Run)
	admin.Post("/scheduler/start", cfg.Scheduler.Start)
	admin.Post("/scheduler/stop", cfg.Scheduler.Stop)
}
