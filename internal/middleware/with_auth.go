package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-chat/internal/utils"
)

// AuthOptions configures the WithAuth helper.
type AuthOptions struct {
	// Subject restricts access to a single authenticated user when set.
	Subject     string
	RequireUser bool
}

// WithAuth wraps a handler with authentication guards.
func WithAuth(handler fiber.Handler, opts AuthOptions) fiber.Handler {
	subject := strings.TrimSpace(opts.Subject)
	requireUser := opts.RequireUser || subject != ""

	return func(c *fiber.Ctx) error {
		current := SubjectFromContext(c)
		if requireUser && current == "" {
			return utils.Fail(c, fiber.StatusUnauthorized, "authentication required", nil)
		}
		if subject != "" && current != subject {
			return utils.Fail(c, fiber.StatusForbidden, "conversation store belongs to another user", nil)
		}
		return handler(c)
	}
}

// RequireSubject is WithAuth as group middleware.
func RequireSubject(subject string) fiber.Handler {
	return WithAuth(func(c *fiber.Ctx) error {
		return c.Next()
	}, AuthOptions{Subject: subject, RequireUser: true})
}
