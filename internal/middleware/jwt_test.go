package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-chat/internal/auth"
	"github.com/noah-isme/gema-chat/internal/middleware"
)

func newProtectedApp(t *testing.T) (*fiber.App, *auth.JWTIssuer) {
	t.Helper()

	issuer, err := auth.NewJWTIssuer("test-secret", "me", time.Hour)
	require.NoError(t, err)

	app := fiber.New()
	app.Use(middleware.CorrelationID())
	app.Get("/", middleware.JWTProtected(issuer), func(c *fiber.Ctx) error {
		return c.SendString(middleware.SubjectFromContext(c))
	})
	return app, issuer
}

func TestJWTProtectedAcceptsBearerToken(t *testing.T) {
	app, issuer := newProtectedApp(t)
	token, err := issuer.Issue("me")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set(middleware.HeaderCorrelationID, "corr-1")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "corr-1", resp.Header.Get(middleware.HeaderCorrelationID))
}

func TestJWTProtectedAcceptsQueryToken(t *testing.T) {
	app, issuer := newProtectedApp(t)
	token, err := issuer.Issue("me")
	require.NoError(t, err)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/?access_token="+token, nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get(middleware.HeaderCorrelationID))
}

func TestJWTProtectedRejectsBadCredentials(t *testing.T) {
	app, _ := newProtectedApp(t)

	other, err := auth.NewJWTIssuer("another-secret", "me", time.Hour)
	require.NoError(t, err)
	forged, err := other.Issue("me")
	require.NoError(t, err)

	cases := map[string]string{
		"missing": "",
		"scheme":  "Basic abc",
		"forged":  "Bearer " + forged,
		"garbage": "Bearer not-a-token",
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			resp, err := app.Test(req, -1)
			require.NoError(t, err)
			require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
		})
	}
}
