package routes

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/hb-library/library-api/internal/store"
	apperrors "github.com/hb-library/library-api/pkg/errors"
)

// AdminHandler serves the operational endpoints behind the admin role
type AdminHandler struct {
	redisClient *redis.Client
	users       store.UserStore
	books       store.BookStore
	breaker     *store.Breaker
	logger      *logrus.Logger
}

func NewAdminHandler(redisClient *redis.Client, users store.UserStore, books store.BookStore, breaker *store.Breaker, logger *logrus.Logger) *AdminHandler {
	return &AdminHandler{
		redisClient: redisClient,
		users:       users,
		books:       books,
		breaker:     breaker,
		logger:      logger,
	}
}

// Stats returns store and cache counters
// @Summary Service statistics
// @Description Return user/book counts, circuit breaker state and Redis key counts
// @Tags Admin
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 403 {object} errors.ErrorResponse "Admin role required"
// @Security BearerAuth
// @Router /admin/stats [get]
func (a *AdminHandler) Stats(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 10*time.Second)
	defer cancel()

	userCount, err := a.users.Count(ctx)
	if err != nil {
		a.logger.WithError(err).Error("Failed to count users")
		return respondError(c, apperrors.New(apperrors.CodeStoreUnavailable, "user store unavailable", err))
	}

	bookCount, err := a.books.Count(ctx)
	if err != nil {
		a.logger.WithError(err).Error("Failed to count books")
		return respondError(c, apperrors.New(apperrors.CodeStoreUnavailable, "book store unavailable", err))
	}

	keyCount := make(map[string]int64)
	for _, pattern := range []string{"ratelimit:*", "idempotency:*"} {
		iter := a.redisClient.Scan(ctx, 0, pattern, 100).Iterator()
		count := int64(0)
		for iter.Next(ctx) {
			count++
		}
		if err := iter.Err(); err != nil {
			a.logger.WithError(err).WithField("pattern", pattern).Warn("Redis key scan failed")
		}
		keyCount[pattern] = count
	}

	return c.JSON(fiber.Map{
		"users":           userCount,
		"books":           bookCount,
		"circuit_breaker": a.breaker.Stats(),
		"redis_keys":      keyCount,
	})
}

// FlushCache clears rate limit and idempotency keys
// @Summary Flush Redis cache
// @Description Delete rate limit and idempotency keys; access grants and catalog data are untouched
// @Tags Admin
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 403 {object} errors.ErrorResponse "Admin role required"
// @Security BearerAuth
// @Router /admin/flush-cache [post]
func (a *AdminHandler) FlushCache(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	patterns := []string{"ratelimit:*", "idempotency:*"}

	totalDeleted := 0
	deletedByPattern := make(map[string]int)

	for _, pattern := range patterns {
		deleted, err := a.deleteKeysByPattern(ctx, pattern)
		if err != nil {
			a.logger.WithError(err).WithField("pattern", pattern).Error("Failed to delete keys")
			continue
		}
		deletedByPattern[pattern] = deleted
		totalDeleted += deleted
	}

	a.logger.WithField("total_deleted", totalDeleted).Info("Cache flush completed")

	return c.JSON(fiber.Map{
		"success":            true,
		"total_deleted_keys": totalDeleted,
		"deleted_by_pattern": deletedByPattern,
	})
}

// deleteKeysByPattern deletes all keys matching the pattern via SCAN,
// batched so a large keyspace never blocks Redis
func (a *AdminHandler) deleteKeysByPattern(ctx context.Context, pattern string) (int, error) {
	deleted := 0

	iter := a.redisClient.Scan(ctx, 0, pattern, 100).Iterator()

	keys := []string{}
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())

		if len(keys) >= 100 {
			count, err := a.deleteBatch(ctx, keys)
			if err != nil {
				a.logger.WithError(err).WithField("pattern", pattern).Error("Failed to delete batch")
			}
			deleted += count
			keys = []string{}
		}
	}

	if len(keys) > 0 {
		count, err := a.deleteBatch(ctx, keys)
		if err != nil {
			a.logger.WithError(err).WithField("pattern", pattern).Error("Failed to delete remaining keys")
		}
		deleted += count
	}

	if err := iter.Err(); err != nil {
		return deleted, err
	}

	return deleted, nil
}

func (a *AdminHandler) deleteBatch(ctx context.Context, keys []string) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}

	result, err := a.redisClient.Del(ctx, keys...).Result()
	if err != nil {
		return 0, err
	}
	return int(result), nil
}
