package main

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/hb-library/library-api/internal/config"
	"github.com/hb-library/library-api/internal/logging"
	"github.com/hb-library/library-api/internal/models"
	"github.com/hb-library/library-api/internal/store"
)

// Seeds the bootstrap admin account from ADMIN_EMAIL / ADMIN_PASSWORD /
// ADMIN_NAME. Safe to run repeatedly: an existing account is left alone.
func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.New(cfg)

	if cfg.Admin.Password == "" {
		logger.Fatal("ADMIN_PASSWORD must be set to seed the admin account")
	}
	if len(cfg.Admin.Password) < 6 {
		logger.Fatal("ADMIN_PASSWORD must be at least 6 characters")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	dynamoClient, err := store.NewDynamoClient(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize DynamoDB client")
	}

	breaker := store.NewBreaker(logger)
	users := store.NewDynamoUserStore(dynamoClient, cfg.DynamoDB.UsersTableName, breaker, logger)

	email := strings.ToLower(strings.TrimSpace(cfg.Admin.Email))

	existing, err := users.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		logger.WithError(err).Fatal("Failed to look up admin account")
	}
	if existing != nil {
		logger.WithFields(logrus.Fields{
			"user_id": existing.UserID,
			"email":   existing.Email,
			"role":    existing.Role,
		}).Info("Admin account already exists, nothing to do")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.Admin.Password), bcrypt.DefaultCost)
	if err != nil {
		logger.WithError(err).Fatal("Failed to hash admin password")
	}

	now := time.Now().UTC()
	admin := &models.User{
		UserID:       uuid.New().String(),
		Name:         cfg.Admin.Name,
		Email:        email,
		PasswordHash: string(hash),
		Role:         models.RoleAdmin,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := users.Create(ctx, admin); err != nil {
		if errors.Is(err, store.ErrConflict) {
			logger.Info("Admin account was created concurrently, nothing to do")
			return
		}
		logger.WithError(err).Fatal("Failed to create admin account")
	}

	logger.WithFields(logrus.Fields{
		"user_id": admin.UserID,
		"email":   admin.Email,
	}).Info("Admin account created")
}
