package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	apperrors "github.com/spec-kit/auth-service/pkg/util/errorutil"
)

const principalKey = "auth_principal"

// SessionChecker reports whether an identity still holds any live session.
type SessionChecker interface {
	Exists(ctx context.Context, identityID string) (bool, error)
}

// AuthMiddleware validates bearer access tokens. With a SessionChecker it also
// rejects tokens of identities whose sessions were all revoked.
type AuthMiddleware struct {
	tokens   *TokenManager
	sessions SessionChecker
}

// NewAuthMiddleware constructs middleware. sessions may be nil.
func NewAuthMiddleware(tokens *TokenManager, sessions SessionChecker) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, sessions: sessions}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	authHeader := c.Get(fiber.HeaderAuthorization)
	if authHeader == "" {
		return apperrors.NewUnauthorizedCode("NO_TOKEN", "missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return apperrors.NewUnauthorizedCode("TOKEN_INVALID", "invalid authorization header")
	}

	claims, err := m.tokens.Verify(strings.TrimSpace(parts[1]), TokenAccess)
	if err != nil {
		if errors.Is(err, ErrExpired) {
			return apperrors.NewUnauthorizedCode("TOKEN_EXPIRED", "access token expired")
		}
		return apperrors.NewUnauthorizedCode("TOKEN_INVALID", "invalid token")
	}

	if m.sessions != nil {
		live, err := m.sessions.Exists(c.UserContext(), claims.IdentityID)
		if err != nil {
			return apperrors.NewInternalError(err)
		}
		if !live {
			return apperrors.NewUnauthorizedCode("SESSION_REVOKED", "session revoked")
		}
	}

	c.Locals(principalKey, claims)
	return c.Next()
}

// PrincipalFromContext retrieves the verified access-token claims.
func PrincipalFromContext(c *fiber.Ctx) (*Claims, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	claims, ok := val.(*Claims)
	return claims, ok
}
