package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hb-library/library-api/internal/metrics"
	apperrors "github.com/hb-library/library-api/pkg/errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// IdempotencyMiddleware replays cached responses for retried POSTs.
// It is mounted per-route on the writes where a client retry would
// otherwise create duplicate state.
type IdempotencyMiddleware struct {
	redisClient *redis.Client
	logger      *logrus.Logger
	ttl         time.Duration
}

type IdempotencyRecord struct {
	StatusCode int               `json:"status_code"`
	Headers    map[string]string `json:"headers"`
	Body       string            `json:"body"`
	CreatedAt  time.Time         `json:"created_at"`
}

func NewIdempotencyMiddleware(redisClient *redis.Client, logger *logrus.Logger) *IdempotencyMiddleware {
	return &IdempotencyMiddleware{
		redisClient: redisClient,
		logger:      logger,
		ttl:         5 * time.Minute,
	}
}

// Handle requires an Idempotency-Key header, replays the cached
// response for a repeated key, and rejects a reused key whose request
// fingerprint differs from the original.
func (i *IdempotencyMiddleware) Handle() fiber.Handler {
	return func(c *fiber.Ctx) error {
		idempotencyKey := c.Get("Idempotency-Key")
		if idempotencyKey == "" {
			return i.errorResponse(c, fiber.StatusBadRequest, apperrors.CodeIdempotencyRequired, "Idempotency-Key header is required for this request")
		}

		if _, err := uuid.Parse(idempotencyKey); err != nil {
			return i.errorResponse(c, fiber.StatusBadRequest, apperrors.CodeIdempotencyRequired, "Idempotency-Key must be a valid UUID")
		}

		fingerprint := i.generateFingerprint(c)
		redisKey := fmt.Sprintf("idempotency:%s", idempotencyKey)

		ctx := context.Background()
		existingRecord, err := i.getIdempotencyRecord(ctx, redisKey)
		if err != nil && err != redis.Nil {
			i.logger.WithError(err).Error("Failed to get idempotency record")
			// Continue with the request rather than failing it
		}

		if existingRecord != nil {
			existingFingerprint, err := i.redisClient.Get(ctx, redisKey+":fingerprint").Result()
			if err != nil && err != redis.Nil {
				i.logger.WithError(err).Error("Failed to get idempotency fingerprint")
			}

			if existingFingerprint != "" && existingFingerprint != fingerprint {
				return i.errorResponse(c, fiber.StatusConflict, apperrors.CodeIdempotencyConflict, "Request differs from the original request with the same Idempotency-Key")
			}

			metrics.RecordIdempotencyHit("hit")
			return i.returnCachedResponse(c, existingRecord)
		}

		metrics.RecordIdempotencyHit("miss")

		if err := i.redisClient.Set(ctx, redisKey+":fingerprint", fingerprint, i.ttl).Err(); err != nil {
			i.logger.WithError(err).Error("Failed to store idempotency fingerprint")
		}

		err = c.Next()

		// Only successful responses are worth replaying
		statusCode := c.Response().StatusCode()
		if statusCode >= 200 && statusCode < 300 {
			record := IdempotencyRecord{
				StatusCode: statusCode,
				Headers:    make(map[string]string),
				Body:       string(c.Response().Body()),
				CreatedAt:  time.Now(),
			}

			c.Response().Header.VisitAll(func(key, value []byte) {
				keyStr := string(key)
				if i.shouldCacheHeader(keyStr) {
					record.Headers[keyStr] = string(value)
				}
			})

			if storeErr := i.storeIdempotencyRecord(ctx, redisKey, &record); storeErr != nil {
				i.logger.WithError(storeErr).WithField("idempotency_key", idempotencyKey).Error("Failed to store idempotency record")
			} else {
				i.logger.WithFields(logrus.Fields{
					"idempotency_key": idempotencyKey,
					"status_code":     statusCode,
				}).Debug("Stored idempotency record")
			}
		}

		return err
	}
}

// generateFingerprint hashes the parts of the request that must match
// for a key reuse to count as a retry
func (i *IdempotencyMiddleware) generateFingerprint(c *fiber.Ctx) string {
	h := sha256.New()

	h.Write([]byte(c.Method()))
	h.Write([]byte(":"))
	h.Write([]byte(c.Path()))
	h.Write([]byte(":"))
	h.Write(c.Request().URI().QueryString())
	h.Write([]byte(":"))
	h.Write(c.Body())
	h.Write([]byte(":"))

	if userID := GetUserID(c); userID != "" {
		h.Write([]byte(userID))
	}

	return hex.EncodeToString(h.Sum(nil))
}

func (i *IdempotencyMiddleware) getIdempotencyRecord(ctx context.Context, key string) (*IdempotencyRecord, error) {
	data, err := i.redisClient.Get(ctx, key).Result()
	if err != nil {
		return nil, err
	}

	var record IdempotencyRecord
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal idempotency record: %w", err)
	}

	return &record, nil
}

func (i *IdempotencyMiddleware) storeIdempotencyRecord(ctx context.Context, key string, record *IdempotencyRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal idempotency record: %w", err)
	}

	return i.redisClient.Set(ctx, key, data, i.ttl).Err()
}

func (i *IdempotencyMiddleware) returnCachedResponse(c *fiber.Ctx, record *IdempotencyRecord) error {
	for key, value := range record.Headers {
		c.Set(key, value)
	}

	c.Set("X-Idempotency-Cached", "true")

	return c.Status(record.StatusCode).SendString(record.Body)
}

func (i *IdempotencyMiddleware) shouldCacheHeader(header string) bool {
	header = strings.ToLower(header)

	cacheable := []string{
		"content-type",
		"content-length",
		"location",
		"x-request-id",
	}

	for _, h := range cacheable {
		if header == h {
			return true
		}
	}

	return false
}

func (i *IdempotencyMiddleware) errorResponse(c *fiber.Ctx, status int, code apperrors.ErrorCode, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"error": fiber.Map{
			"code":     string(code),
			"message":  message,
			"trace_id": c.Get("X-Request-ID"),
		},
	})
}
