package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/sirupsen/logrus"

	"github.com/hb-library/library-api/internal/models"
)

// DynamoUserStore keeps user records in a table keyed by user_id with
// an email-index GSI for unique-email lookups.
type DynamoUserStore struct {
	client    *dynamodb.Client
	tableName string
	breaker   *Breaker
	logger    *logrus.Logger
}

func NewDynamoUserStore(client *dynamodb.Client, tableName string, breaker *Breaker, logger *logrus.Logger) *DynamoUserStore {
	return &DynamoUserStore{
		client:    client,
		tableName: tableName,
		breaker:   breaker,
		logger:    logger,
	}
}

func (s *DynamoUserStore) GetByID(ctx context.Context, id string) (*models.User, error) {
	var item map[string]types.AttributeValue

	err := execObserved(ctx, s.breaker, s.tableName, "GetItem", func() error {
		out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
			TableName: aws.String(s.tableName),
			Key: map[string]types.AttributeValue{
				"user_id": &types.AttributeValueMemberS{Value: id},
			},
		})
		if err != nil {
			return fmt.Errorf("get user: %w", err)
		}
		item = out.Item
		return nil
	})
	if err != nil {
		return nil, mapStoreError(err)
	}

	if item == nil {
		return nil, ErrNotFound
	}

	var user models.User
	if err := attributevalue.UnmarshalMap(item, &user); err != nil {
		return nil, fmt.Errorf("unmarshal user: %w", err)
	}

	return &user, nil
}

// GetByEmail looks up a user through the email-index GSI. Emails are
// stored lowercased, so the lookup lowercases too and the uniqueness
// check is effectively case-insensitive.
func (s *DynamoUserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	var items []map[string]types.AttributeValue

	err := execObserved(ctx, s.breaker, s.tableName, "Query", func() error {
		out, err := s.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(s.tableName),
			IndexName:              aws.String("email-index"),
			KeyConditionExpression: aws.String("email = :email"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":email": &types.AttributeValueMemberS{Value: email},
			},
			Limit: aws.Int32(1),
		})
		if err != nil {
			return fmt.Errorf("query user by email: %w", err)
		}
		items = out.Items
		return nil
	})
	if err != nil {
		return nil, mapStoreError(err)
	}

	if len(items) == 0 {
		return nil, ErrNotFound
	}

	var user models.User
	if err := attributevalue.UnmarshalMap(items[0], &user); err != nil {
		return nil, fmt.Errorf("unmarshal user: %w", err)
	}

	return &user, nil
}

func (s *DynamoUserStore) Create(ctx context.Context, user *models.User) error {
	item, err := attributevalue.MarshalMap(user)
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}

	err = execObserved(ctx, s.breaker, s.tableName, "PutItem", func() error {
		_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName:           aws.String(s.tableName),
			Item:                item,
			ConditionExpression: aws.String("attribute_not_exists(user_id)"),
		})
		if err != nil {
			var ccf *types.ConditionalCheckFailedException
			if errors.As(err, &ccf) {
				return ErrConflict
			}
			return fmt.Errorf("put user: %w", err)
		}
		return nil
	})
	if err != nil {
		return mapStoreError(err)
	}

	s.logger.WithFields(logrus.Fields{
		"user_id": user.UserID,
		"email":   user.Email,
	}).Debug("User record created")

	return nil
}

func (s *DynamoUserStore) Update(ctx context.Context, user *models.User) error {
	item, err := attributevalue.MarshalMap(user)
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}

	err = execObserved(ctx, s.breaker, s.tableName, "PutItem", func() error {
		_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName:           aws.String(s.tableName),
			Item:                item,
			ConditionExpression: aws.String("attribute_exists(user_id)"),
		})
		if err != nil {
			var ccf *types.ConditionalCheckFailedException
			if errors.As(err, &ccf) {
				return ErrNotFound
			}
			return fmt.Errorf("update user: %w", err)
		}
		return nil
	})
	return mapStoreError(err)
}

func (s *DynamoUserStore) Count(ctx context.Context) (int, error) {
	var count int

	err := execObserved(ctx, s.breaker, s.tableName, "Scan", func() error {
		paginator := dynamodb.NewScanPaginator(s.client, &dynamodb.ScanInput{
			TableName: aws.String(s.tableName),
			Select:    types.SelectCount,
		})
		for paginator.HasMorePages() {
			out, err := paginator.NextPage(ctx)
			if err != nil {
				return fmt.Errorf("count users: %w", err)
			}
			count += int(out.Count)
		}
		return nil
	})
	if err != nil {
		return 0, mapStoreError(err)
	}

	return count, nil
}
