package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/sirupsen/logrus"

	"github.com/hb-library/library-api/internal/models"
)

// DynamoAccessStore is the access ledger: composite key
// (user_id, book_id), one item per grant, append-only.
type DynamoAccessStore struct {
	client    *dynamodb.Client
	tableName string
	breaker   *Breaker
	logger    *logrus.Logger
}

func NewDynamoAccessStore(client *dynamodb.Client, tableName string, breaker *Breaker, logger *logrus.Logger) *DynamoAccessStore {
	return &DynamoAccessStore{
		client:    client,
		tableName: tableName,
		breaker:   breaker,
		logger:    logger,
	}
}

// Record inserts a grant for (userID, bookID). The conditional put
// makes at-least-once webhook delivery safe: a second delivery hits
// the condition failure, keeps the first paid_at, and reports
// created=false with no error.
func (s *DynamoAccessStore) Record(ctx context.Context, userID, bookID string, paidAt time.Time, paymentID string) (bool, error) {
	grant := models.AccessGrant{
		UserID:    userID,
		BookID:    bookID,
		PaidAt:    paidAt,
		PaymentID: paymentID,
	}

	item, err := attributevalue.MarshalMap(grant)
	if err != nil {
		return false, fmt.Errorf("marshal access grant: %w", err)
	}

	created := true
	err = execObserved(ctx, s.breaker, s.tableName, "PutItem", func() error {
		_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName:           aws.String(s.tableName),
			Item:                item,
			ConditionExpression: aws.String("attribute_not_exists(user_id) AND attribute_not_exists(book_id)"),
		})
		if err != nil {
			var ccf *types.ConditionalCheckFailedException
			if errors.As(err, &ccf) {
				created = false
				return nil
			}
			return fmt.Errorf("put access grant: %w", err)
		}
		return nil
	})
	if err != nil {
		return false, mapStoreError(err)
	}

	if created {
		s.logger.WithFields(logrus.Fields{
			"user_id":    userID,
			"book_id":    bookID,
			"payment_id": paymentID,
		}).Info("Access grant recorded")
	} else {
		s.logger.WithFields(logrus.Fields{
			"user_id": userID,
			"book_id": bookID,
		}).Debug("Duplicate payment delivery, grant already recorded")
	}

	return created, nil
}

// Has answers the access-check query with a point read.
func (s *DynamoAccessStore) Has(ctx context.Context, userID, bookID string) (bool, error) {
	var found bool

	err := execObserved(ctx, s.breaker, s.tableName, "GetItem", func() error {
		out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
			TableName: aws.String(s.tableName),
			Key: map[string]types.AttributeValue{
				"user_id": &types.AttributeValueMemberS{Value: userID},
				"book_id": &types.AttributeValueMemberS{Value: bookID},
			},
		})
		if err != nil {
			return fmt.Errorf("get access grant: %w", err)
		}
		found = out.Item != nil
		return nil
	})
	if err != nil {
		return false, mapStoreError(err)
	}

	return found, nil
}
