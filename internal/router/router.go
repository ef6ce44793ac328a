package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-chat/internal/config"
	"github.com/noah-isme/gema-chat/internal/handler"
	"github.com/noah-isme/gema-chat/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	ChatHandler   *handler.ChatHandler
	JWTMiddleware fiber.Handler
	// SubjectGuard restricts the chat routes to the local user.
	SubjectGuard fiber.Handler
	HealthProbes []handler.HealthProbe
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	observability.MountMetrics(app)

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.HealthProbes...))

	if deps.ChatHandler == nil {
		return
	}

	guards := make([]fiber.Handler, 0, 2)
	if deps.JWTMiddleware != nil {
		guards = append(guards, deps.JWTMiddleware)
	}
	if deps.SubjectGuard != nil {
		guards = append(guards, deps.SubjectGuard)
	}

	chat := api.Group("/chat", guards...)
	deps.ChatHandler.Register(chat)
}
