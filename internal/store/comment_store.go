package store

import (
	"context"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/sirupsen/logrus"

	"github.com/hb-library/library-api/internal/models"
)

// DynamoCommentStore keeps comments keyed by comment_id with a
// book_id-index GSI for per-book listing.
type DynamoCommentStore struct {
	client    *dynamodb.Client
	tableName string
	breaker   *Breaker
	logger    *logrus.Logger
}

func NewDynamoCommentStore(client *dynamodb.Client, tableName string, breaker *Breaker, logger *logrus.Logger) *DynamoCommentStore {
	return &DynamoCommentStore{
		client:    client,
		tableName: tableName,
		breaker:   breaker,
		logger:    logger,
	}
}

func (s *DynamoCommentStore) Create(ctx context.Context, comment *models.Comment) error {
	item, err := attributevalue.MarshalMap(comment)
	if err != nil {
		return fmt.Errorf("marshal comment: %w", err)
	}

	err = execObserved(ctx, s.breaker, s.tableName, "PutItem", func() error {
		_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName: aws.String(s.tableName),
			Item:      item,
		})
		if err != nil {
			return fmt.Errorf("put comment: %w", err)
		}
		return nil
	})
	return mapStoreError(err)
}

func (s *DynamoCommentStore) ListByBook(ctx context.Context, bookID string) ([]models.Comment, error) {
	var items []map[string]types.AttributeValue

	err := execObserved(ctx, s.breaker, s.tableName, "Query", func() error {
		paginator := dynamodb.NewQueryPaginator(s.client, &dynamodb.QueryInput{
			TableName:              aws.String(s.tableName),
			IndexName:              aws.String("book_id-index"),
			KeyConditionExpression: aws.String("book_id = :book"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":book": &types.AttributeValueMemberS{Value: bookID},
			},
		})
		for paginator.HasMorePages() {
			out, err := paginator.NextPage(ctx)
			if err != nil {
				return fmt.Errorf("query comments: %w", err)
			}
			items = append(items, out.Items...)
		}
		return nil
	})
	if err != nil {
		return nil, mapStoreError(err)
	}

	var comments []models.Comment
	if err := attributevalue.UnmarshalListOfMaps(items, &comments); err != nil {
		return nil, fmt.Errorf("unmarshal comments: %w", err)
	}

	// Newest first
	sort.Slice(comments, func(i, j int) bool {
		return comments[i].CreatedAt.After(comments[j].CreatedAt)
	})

	return comments, nil
}
