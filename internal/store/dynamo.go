package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/sirupsen/logrus"

	"github.com/hb-library/library-api/internal/config"
)

// NewDynamoClient initializes the shared DynamoDB client. A custom
// endpoint (DYNAMODB_ENDPOINT) points the client at DynamoDB Local
// for development.
func NewDynamoClient(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*dynamodb.Client, error) {
	var awsCfg aws.Config
	var err error

	if cfg.AWS.Profile != "" {
		// Use specific profile for local development
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.DynamoDB.Region),
			awsconfig.WithSharedConfigProfile(cfg.AWS.Profile),
		)
	} else {
		// IRSA or instance credentials resolve automatically
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.DynamoDB.Region),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var client *dynamodb.Client
	if cfg.DynamoDB.Endpoint != "" {
		client = dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
			o.BaseEndpoint = aws.String(cfg.DynamoDB.Endpoint)
		})
	} else {
		client = dynamodb.NewFromConfig(awsCfg)
	}

	logger.WithFields(logrus.Fields{
		"region":         cfg.DynamoDB.Region,
		"users_table":    cfg.DynamoDB.UsersTableName,
		"books_table":    cfg.DynamoDB.BooksTableName,
		"comments_table": cfg.DynamoDB.CommentsTableName,
		"access_table":   cfg.DynamoDB.AccessTableName,
	}).Info("DynamoDB client initialized")

	return client, nil
}

// mapStoreError normalizes errors leaving the store layer. Sentinel
// errors pass through; anything else is a transport or service
// failure and becomes ErrUnavailable with the cause retained.
func mapStoreError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrVersionConflict) || errors.Is(err, ErrUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
