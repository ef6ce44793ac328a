package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-chat/internal/utils"
)

// TokenParser validates a bearer token and returns its subject.
type TokenParser interface {
	Parse(token string) (string, error)
}

// JWTProtected validates bearer tokens and stores the subject as user_id.
// Websocket clients that cannot set headers may pass access_token instead.
func JWTProtected(parser TokenParser) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString, ok := bearerToken(c)
		if !ok {
			return utils.SendError(c, fiber.StatusUnauthorized, "authorization header missing")
		}
		if tokenString == "" {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid authorization header")
		}

		subject, err := parser.Parse(tokenString)
		if err != nil {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid token")
		}

		c.Locals("user_id", subject)
		return c.Next()
	}
}

func bearerToken(c *fiber.Ctx) (string, bool) {
	authorization := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	if authorization == "" {
		if query := strings.TrimSpace(c.Query("access_token")); query != "" {
			return query, true
		}
		return "", false
	}

	const bearer = "bearer "
	if len(authorization) < len(bearer) || !strings.EqualFold(authorization[:len(bearer)], bearer) {
		return "", true
	}
	return strings.TrimSpace(authorization[len(bearer):]), true
}

// SubjectFromContext returns the authenticated subject, if any.
func SubjectFromContext(c *fiber.Ctx) string {
	if subject, ok := c.Locals("user_id").(string); ok {
		return strings.TrimSpace(subject)
	}
	return ""
}
