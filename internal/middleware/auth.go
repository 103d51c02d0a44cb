package middleware

import (
	"errors"
	"strings"

	"github.com/hb-library/library-api/internal/auth"
	"github.com/hb-library/library-api/internal/metrics"
	"github.com/hb-library/library-api/internal/models"
	"github.com/hb-library/library-api/internal/store"
	apperrors "github.com/hb-library/library-api/pkg/errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type AuthMiddleware struct {
	tokens *auth.TokenService
	users  store.UserStore
	logger *logrus.Logger
}

func NewAuthMiddleware(tokens *auth.TokenService, users store.UserStore, logger *logrus.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		tokens: tokens,
		users:  users,
		logger: logger,
	}
}

// Authenticate verifies the Bearer token and re-reads the user record
// so that role changes and deletions take effect on the next request,
// not at the token's expiry. A missing or expired token is 401; a
// token that fails signature verification is 403.
func (a *AuthMiddleware) Authenticate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			metrics.RecordAuthFailure("missing_token")
			return a.errorResponse(c, fiber.StatusUnauthorized, apperrors.CodeUnauthenticated, "Authorization header is required")
		}

		const bearerPrefix = "Bearer "
		if !strings.HasPrefix(authHeader, bearerPrefix) {
			metrics.RecordAuthFailure("missing_token")
			return a.errorResponse(c, fiber.StatusUnauthorized, apperrors.CodeUnauthenticated, "Authorization header must be Bearer token")
		}

		tokenString := authHeader[len(bearerPrefix):]
		if tokenString == "" {
			metrics.RecordAuthFailure("missing_token")
			return a.errorResponse(c, fiber.StatusUnauthorized, apperrors.CodeUnauthenticated, "Token is required")
		}

		claims, err := a.tokens.Verify(tokenString)
		if err != nil {
			a.logger.WithError(err).WithField("path", c.Path()).Debug("Token verification failed")
			if errors.Is(err, auth.ErrTokenExpired) {
				metrics.RecordAuthFailure("expired")
				return a.errorResponse(c, fiber.StatusUnauthorized, apperrors.CodeUnauthenticated, "Token expired")
			}
			metrics.RecordAuthFailure("invalid_signature")
			return a.errorResponse(c, fiber.StatusForbidden, apperrors.CodeForbidden, "Token verification failed")
		}

		user, err := a.users.GetByID(c.Context(), claims.Subject)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				metrics.RecordAuthFailure("unknown_user")
				return a.errorResponse(c, fiber.StatusUnauthorized, apperrors.CodeUnauthenticated, "User no longer exists")
			}
			a.logger.WithError(err).WithField("user_id", claims.Subject).Error("User lookup failed during authentication")
			return a.errorResponse(c, fiber.StatusServiceUnavailable, apperrors.CodeStoreUnavailable, "User store unavailable")
		}

		c.Locals("user_id", user.UserID)
		c.Locals("user_role", user.Role)
		c.Locals("current_user", user)

		return c.Next()
	}
}

func (a *AuthMiddleware) errorResponse(c *fiber.Ctx, status int, code apperrors.ErrorCode, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"error": fiber.Map{
			"code":     string(code),
			"message":  message,
			"trace_id": c.Get("X-Request-ID"),
		},
	})
}

// GetUserID extracts the authenticated user ID from context
func GetUserID(c *fiber.Ctx) string {
	if userID, ok := c.Locals("user_id").(string); ok {
		return userID
	}
	return ""
}

// GetUserRole extracts the live role resolved during authentication
func GetUserRole(c *fiber.Ctx) string {
	if role, ok := c.Locals("user_role").(string); ok {
		return role
	}
	return ""
}

// GetCurrentUser extracts the user record resolved during authentication
func GetCurrentUser(c *fiber.Ctx) *models.User {
	if user, ok := c.Locals("current_user").(*models.User); ok {
		return user
	}
	return nil
}
