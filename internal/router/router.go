package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/codeway-learn/codeway-api/internal/config"
	"github.com/codeway-learn/codeway-api/internal/handler"
	"github.com/codeway-learn/codeway-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	EvaluationHandler  *handler.EvaluationHandler
	LanguageHandler    *handler.LanguageHandler
	PerformanceHandler *handler.PerformanceHandler
	JWTMiddleware      fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))

	// Use provided JWT middleware, or a no-op if nil
	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	if deps.LanguageHandler != nil {
		languages := api.Group("/languages", jwtMiddleware)
		deps.LanguageHandler.Register(languages)
	}

	if deps.EvaluationHandler != nil {
		challenges := api.Group("/code-challenges", jwtMiddleware)
		deps.EvaluationHandler.Register(challenges)
	}

	if deps.PerformanceHandler != nil {
		steps := api.Group("/assessment-steps", jwtMiddleware)
		deps.PerformanceHandler.Register(steps)
	}
}
