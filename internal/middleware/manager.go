package middleware

import (
	"fmt"

	"github.com/hb-library/library-api/internal/auth"
	"github.com/hb-library/library-api/internal/config"
	"github.com/hb-library/library-api/internal/store"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Manager holds all middleware instances
type Manager struct {
	Auth        *AuthMiddleware
	Idempotency *IdempotencyMiddleware
	RateLimit   *RateLimitMiddleware
	ErrorLogger *ErrorLoggerMiddleware
	RedisClient *redis.Client
	Config      *config.Config
	Logger      *logrus.Logger
}

// NewManager creates a new middleware manager with all middleware initialized
func NewManager(cfg *config.Config, logger *logrus.Logger, tokens *auth.TokenService, users store.UserStore) (*Manager, error) {
	redisClient, err := NewRedisClient(&cfg.Redis, &cfg.AWS, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create Redis client: %w", err)
	}

	return &Manager{
		Auth:        NewAuthMiddleware(tokens, users, logger),
		Idempotency: NewIdempotencyMiddleware(redisClient, logger),
		RateLimit:   NewRateLimitMiddleware(&cfg.RateLimit, redisClient, logger),
		ErrorLogger: NewErrorLoggerMiddleware(logger),
		RedisClient: redisClient,
		Config:      cfg,
		Logger:      logger,
	}, nil
}

// Close closes all middleware resources
func (m *Manager) Close() error {
	if m.RedisClient != nil {
		return m.RedisClient.Close()
	}
	return nil
}
