package routes

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	apperrors "github.com/hb-library/library-api/pkg/errors"
)

// respondError translates a service error into the standard envelope.
// Anything that is not an AppError is treated as an internal failure
// without leaking its message to the client.
func respondError(c *fiber.Ctx, err error) error {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		appErr = apperrors.New(apperrors.CodeInternalError, "Internal server error", err)
	}

	return c.Status(appErr.HTTPStatus()).JSON(appErr.ToErrorResponse(c.Get("X-Request-ID")))
}

// badRequest is the shorthand for body-parse and input failures
func badRequest(c *fiber.Ctx, message string) error {
	return respondError(c, apperrors.New(apperrors.CodeBadRequest, message, nil))
}
