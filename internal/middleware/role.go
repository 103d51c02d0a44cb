package middleware

import (
	apperrors "github.com/hb-library/library-api/pkg/errors"

	"github.com/gofiber/fiber/v2"
)

// RequireRole gates a route group on the role resolved from the live
// user record. The distinction matters: an unauthenticated request is
// 401, an authenticated user with the wrong role is 403.
func RequireRole(role string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		current := GetUserRole(c)
		if current == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": fiber.Map{
					"code":     string(apperrors.CodeUnauthenticated),
					"message":  "Authentication required",
					"trace_id": c.Get("X-Request-ID"),
				},
			})
		}

		if current != role {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": fiber.Map{
					"code":     string(apperrors.CodeForbidden),
					"message":  "Insufficient permissions",
					"trace_id": c.Get("X-Request-ID"),
				},
			})
		}

		return c.Next()
	}
}
