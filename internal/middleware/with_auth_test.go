package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-chat/internal/middleware"
)

func withSubject(subject string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if subject != "" {
			c.Locals("user_id", subject)
		}
		return c.Next()
	}
}

func TestWithAuthAllowsMatchingSubject(t *testing.T) {
	app := fiber.New()
	app.Use(withSubject("me"))
	app.Get("/", middleware.WithAuth(func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	}, middleware.AuthOptions{Subject: "me"}))

	resp := perform(t, app, "/")
	require.Equal(t, fiber.StatusNoContent, resp.StatusCode)
}

func TestWithAuthRejectsOtherSubject(t *testing.T) {
	app := fiber.New()
	app.Use(withSubject("intruder"))
	app.Get("/", middleware.WithAuth(func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	}, middleware.AuthOptions{Subject: "me"}))

	resp := perform(t, app, "/")
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestWithAuthRequiresUser(t *testing.T) {
	app := fiber.New()
	app.Get("/", middleware.WithAuth(func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	}, middleware.AuthOptions{RequireUser: true}))

	resp := perform(t, app, "/")
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestWithAuthAllowsAnonymousWhenOptedIn(t *testing.T) {
	app := fiber.New()
	app.Get("/", middleware.WithAuth(func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	}, middleware.AuthOptions{}))

	resp := perform(t, app, "/")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestRequireSubjectGroup(t *testing.T) {
	app := fiber.New()
	app.Use(withSubject("me"))
	group := app.Group("/chat", middleware.RequireSubject("me"))
	group.Get("/threads", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	resp := perform(t, app, "/chat/threads")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func perform(t *testing.T, app *fiber.App, path string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}
