package routes

import (
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/sirupsen/logrus"

	"github.com/hb-library/library-api/internal/metrics"
	"github.com/hb-library/library-api/internal/models"
	"github.com/hb-library/library-api/internal/store"
	apperrors "github.com/hb-library/library-api/pkg/errors"
)

// PaymentHandler receives payment-provider webhooks and records access
// grants. The provider signs every delivery with a detached JWS over
// the raw body; an unverifiable delivery is rejected before any state
// changes.
type PaymentHandler struct {
	access        store.AccessStore
	webhookSecret []byte
	logger        *logrus.Logger
}

func NewPaymentHandler(access store.AccessStore, webhookSecret string, logger *logrus.Logger) *PaymentHandler {
	return &PaymentHandler{
		access:        access,
		webhookSecret: []byte(webhookSecret),
		logger:        logger,
	}
}

// Webhook handles a payment event delivery
// @Summary Payment webhook
// @Description Record a paid-access grant for a succeeded payment; duplicate deliveries keep the first grant
// @Tags Payments
// @Accept json
// @Produce json
// @Param X-Payment-Signature header string true "Detached JWS over the raw body"
// @Param request body models.PaymentEvent true "Payment event"
// @Success 200 {object} map[string]bool
// @Failure 400 {object} errors.ErrorResponse "Malformed payload"
// @Failure 403 {object} errors.ErrorResponse "Missing or invalid signature"
// @Router /payments/webhook [post]
func (h *PaymentHandler) Webhook(c *fiber.Ctx) error {
	signature := c.Get("X-Payment-Signature")
	if signature == "" {
		metrics.RecordWebhookEvent("invalid_signature")
		return respondError(c, apperrors.New(apperrors.CodeForbidden, "Missing webhook signature", nil))
	}

	body := c.Body()
	if _, err := jws.Verify([]byte(signature),
		jws.WithKey(jwa.HS256, h.webhookSecret),
		jws.WithDetachedPayload(body),
	); err != nil {
		h.logger.WithError(err).Warn("Webhook signature verification failed")
		metrics.RecordWebhookEvent("invalid_signature")
		return respondError(c, apperrors.New(apperrors.CodeForbidden, "Invalid webhook signature", err))
	}

	var event models.PaymentEvent
	if err := json.Unmarshal(body, &event); err != nil {
		metrics.RecordWebhookEvent("rejected")
		return respondError(c, apperrors.New(apperrors.CodeInvalidArgument, "Malformed payment event", err))
	}

	if event.ID == "" || event.Status == "" || event.Customer == "" || event.Description == "" {
		metrics.RecordWebhookEvent("rejected")
		return respondError(c, apperrors.New(apperrors.CodeInvalidArgument, "Payment event is missing required fields", nil))
	}

	if event.Status != "succeeded" {
		h.logger.WithFields(logrus.Fields{
			"payment_id": event.ID,
			"status":     event.Status,
		}).Info("Ignoring non-succeeded payment event")
		metrics.RecordWebhookEvent("ignored")
		return c.JSON(fiber.Map{"received": true, "granted": false})
	}

	paidAt := time.Now().UTC()
	if event.PaidAt > 0 {
		paidAt = time.Unix(event.PaidAt, 0).UTC()
	}

	created, err := h.access.Record(c.Context(), event.Customer, event.Description, paidAt, event.ID)
	if err != nil {
		h.logger.WithError(err).WithFields(logrus.Fields{
			"payment_id": event.ID,
			"user_id":    event.Customer,
			"book_id":    event.Description,
		}).Error("Failed to record access grant")
		metrics.RecordWebhookEvent("error")
		return respondError(c, apperrors.New(apperrors.CodeStoreUnavailable, "access store unavailable", err))
	}

	if created {
		metrics.RecordWebhookEvent("granted")
		h.logger.WithFields(logrus.Fields{
			"payment_id": event.ID,
			"user_id":    event.Customer,
			"book_id":    event.Description,
		}).Info("Access grant recorded")
	} else {
		// Redelivery of an already-processed event
		metrics.RecordWebhookEvent("duplicate")
	}

	return c.JSON(fiber.Map{"received": true, "granted": created})
}
