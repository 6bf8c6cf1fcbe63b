package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/spec-kit/mentor-ticket-service/pkg/errorutil"
)

func testApp() *fiber.App {
	return fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			de := apperrors.ToDomainError(err)
			return c.Status(de.HTTPStatus).SendString(de.Code)
		},
	})
}

func TestTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("secret", time.Hour)
	token, expires, err := tm.GenerateToken("mentor_1", RoleMentor)
	require.NoError(t, err)
	assert.True(t, expires.After(time.Now()))

	claims, err := tm.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "mentor_1", claims.Subject)
	assert.Equal(t, RoleMentor, claims.Role)
}

func TestTokenRejections(t *testing.T) {
	tm := NewTokenManager("secret", time.Hour)
	_, _, err := tm.GenerateToken("", RoleMentor)
	assert.Error(t, err)
	_, _, err = tm.GenerateToken("m", Role("admin"))
	assert.Error(t, err)

	token, _, err := tm.GenerateToken("mentor_1", RoleLead)
	require.NoError(t, err)
	_, err = NewTokenManager("other", time.Hour).ParseToken(token)
	assert.Error(t, err)

	expired := NewTokenManager("secret", time.Minute)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	stale, _, err := expired.GenerateToken("mentor_1", RoleMentor)
	require.NoError(t, err)
	_, err = tm.ParseToken(stale)
	assert.Error(t, err)
}

func TestAuthMiddlewareSetsPrincipal(t *testing.T) {
	tm := NewTokenManager("secret", time.Hour)
	app := testApp()
	app.Get("/me", NewAuthMiddleware(tm).Handle, RequireRole(RoleLead), func(c *fiber.Ctx) error {
		p, ok := PrincipalFromContext(c)
		require.True(t, ok)
		return c.SendString(p.MentorID)
	})

	lead, _, _ := tm.GenerateToken("lead_1", RoleLead)
	mentor, _, _ := tm.GenerateToken("mentor_1", RoleMentor)

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"malformed", "Token abc", http.StatusUnauthorized},
		{"garbage", "Bearer abc", http.StatusUnauthorized},
		{"wrong role", "Bearer " + mentor, http.StatusForbidden},
		{"ok", "Bearer " + lead, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set(fiber.HeaderAuthorization, tc.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tc.status, resp.StatusCode)
		})
	}
}

func TestServiceKeyMiddleware(t *testing.T) {
	hash, err := HashKey("chat-key", bcrypt.MinCost)
	require.NoError(t, err)

	app := testApp()
	app.Post("/chat", NewServiceKeyMiddleware(hash).Handle, func(c *fiber.Ctx) error {
		return c.SendStatus(http.StatusNoContent)
	})
	open := testApp()
	open.Post("/chat", NewServiceKeyMiddleware("").Handle, func(c *fiber.Ctx) error {
		return c.SendStatus(http.StatusNoContent)
	})

	send := func(a *fiber.App, key string) int {
		req := httptest.NewRequest(http.MethodPost, "/chat", nil)
		if key != "" {
			req.Header.Set(ServiceKeyHeader, key)
		}
		resp, err := a.Test(req)
		require.NoError(t, err)
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusUnauthorized, send(app, ""))
	assert.Equal(t, http.StatusUnauthorized, send(app, "wrong"))
	assert.Equal(t, http.StatusNoContent, send(app, "chat-key"))
	assert.Equal(t, http.StatusNoContent, send(open, ""))
}
