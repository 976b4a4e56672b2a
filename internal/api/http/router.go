package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/spec-kit/ats-auth/internal/api/http/handlers"
	"github.com/spec-kit/ats-auth/internal/observability"
)

// RouteConfig bundles dependencies for the auth service routes.
type RouteConfig struct {
	Health  *handlers.HealthHandler
	Auth    *handlers.AuthHandler
	Metrics *observability.Metrics
	// UserAuth gates /me. ServiceAuth gates /generate.
	UserAuth    fiber.Handler
	ServiceAuth fiber.Handler
}

// RegisterRoutes wires the auth service HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	registerOps(app, cfg.Health, cfg.Metrics)

	authGroup := app.Group("/api/auth")
	authGroup.Post("/register", cfg.Auth.Register)
	authGroup.Post("/login", cfg.Auth.Login)
	authGroup.Post("/refresh", cfg.Auth.Refresh)
	authGroup.Get("/validate", cfg.Auth.Validate)
	authGroup.Post("/validate", cfg.Auth.Validate)
	authGroup.Post("/validate-service", cfg.Auth.ValidateService)
	authGroup.Post("/logout", cfg.Auth.Logout)

	authGroup.Post("/generate", cfg.ServiceAuth, cfg.Auth.Generate)
	authGroup.Get("/me", cfg.UserAuth, cfg.Auth.Me)
}

// AdminRouteConfig bundles dependencies for the admin gateway.
type AdminRouteConfig struct {
	Health    *handlers.HealthHandler
	Admin     *handlers.AdminHandler
	Metrics   *observability.Metrics
	AdminAuth fiber.Handler
}

// RegisterAdminRoutes wires the admin gateway routes.
func RegisterAdminRoutes(app *fiber.App, cfg AdminRouteConfig) {
	registerOps(app, cfg.Health, cfg.Metrics)

	admin := app.Group("/api/admin", cfg.AdminAuth)
	admin.Get("/companies", cfg.Admin.Companies)
	admin.Get("/applicants", cfg.Admin.Applicants)
	admin.Get("/jobs", cfg.Admin.Jobs)
	admin.Get("/users", cfg.Admin.Users)
}

func registerOps(app *fiber.App, health *handlers.HealthHandler, metrics *observability.Metrics) {
	app.Get("/health/live", health.Live)
	app.Get("/health/ready", health.Ready)
	if metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
	}
}
