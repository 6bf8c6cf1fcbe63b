package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	apperrors "github.com/spec-kit/mentor-ticket-service/pkg/errorutil"
)

const (
	principalKey     = "auth_principal"
	ServiceKeyHeader = "X-Service-Key"
)

// Principal represents the authenticated mentor.
type Principal struct {
	MentorID string
	Role     Role
}

// AuthMiddleware validates mentor bearer tokens.
type AuthMiddleware struct {
	tokens *TokenManager
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(tokens *TokenManager) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens}
}

// Handle enforces authentication for mentor routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	authHeader := c.Get(fiber.HeaderAuthorization)
	if authHeader == "" {
		return apperrors.NewUnauthorized("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return apperrors.NewUnauthorized("invalid authorization header")
	}

	claims, err := m.tokens.ParseToken(strings.TrimSpace(parts[1]))
	if err != nil {
		return apperrors.NewUnauthorized("invalid token")
	}

	c.Locals(principalKey, &Principal{MentorID: claims.Subject, Role: claims.Role})
	return c.Next()
}

// PrincipalFromContext retrieves the authenticated mentor.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*Principal)
	return principal, ok
}

// ServiceKeyMiddleware guards the routes the chat surface calls.
type ServiceKeyMiddleware struct {
	hash string
}

// NewServiceKeyMiddleware checks X-Service-Key against a bcrypt hash. An
// empty hash disables the check.
func NewServiceKeyMiddleware(hash string) *ServiceKeyMiddleware {
	return &ServiceKeyMiddleware{hash: strings.TrimSpace(hash)}
}

// Enabled reports whether a key hash is configured.
func (m *ServiceKeyMiddleware) Enabled() bool {
	return m.hash != ""
}

// Handle rejects requests without a matching service key.
func (m *ServiceKeyMiddleware) Handle(c *fiber.Ctx) error {
	if !m.Enabled() {
		return c.Next()
	}
	key := c.Get(ServiceKeyHeader)
	if key == "" {
		return apperrors.NewUnauthorized("missing service key")
	}
	if err := CompareKey(m.hash, key); err != nil {
		return apperrors.NewUnauthorized("invalid service key")
	}
	return c.Next()
}
