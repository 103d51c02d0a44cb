package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/hb-library/library-api/internal/middleware"
	"github.com/hb-library/library-api/internal/models"
	"github.com/hb-library/library-api/internal/store"
	apperrors "github.com/hb-library/library-api/pkg/errors"
)

// AccessHandler answers whether the caller has paid for a book
type AccessHandler struct {
	access store.AccessStore
	logger *logrus.Logger
}

func NewAccessHandler(access store.AccessStore, logger *logrus.Logger) *AccessHandler {
	return &AccessHandler{
		access: access,
		logger: logger,
	}
}

// Check reports whether the caller holds an access grant for the book
// @Summary Check book access
// @Description Report whether the authenticated member has paid for this book
// @Tags Access
// @Produce json
// @Param id path string true "Book ID"
// @Success 200 {object} models.AccessResponse
// @Failure 401 {object} errors.ErrorResponse "Unauthenticated"
// @Security BearerAuth
// @Router /books/{id}/access [get]
func (h *AccessHandler) Check(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	bookID := c.Params("id")

	hasAccess, err := h.access.Has(c.Context(), userID, bookID)
	if err != nil {
		h.logger.WithError(err).WithFields(logrus.Fields{
			"user_id": userID,
			"book_id": bookID,
		}).Error("Access lookup failed")
		return respondError(c, apperrors.New(apperrors.CodeStoreUnavailable, "access store unavailable", err))
	}

	return c.JSON(models.AccessResponse{HasAccess: hasAccess})
}
