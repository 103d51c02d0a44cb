package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/sirupsen/logrus"

	"github.com/hb-library/library-api/internal/models"
)

// DynamoBookStore keeps catalog entries in a table keyed by book_id
// with an isbn-index GSI for the uniqueness check at create time.
type DynamoBookStore struct {
	client    *dynamodb.Client
	tableName string
	breaker   *Breaker
	logger    *logrus.Logger
}

func NewDynamoBookStore(client *dynamodb.Client, tableName string, breaker *Breaker, logger *logrus.Logger) *DynamoBookStore {
	return &DynamoBookStore{
		client:    client,
		tableName: tableName,
		breaker:   breaker,
		logger:    logger,
	}
}

func (s *DynamoBookStore) GetByID(ctx context.Context, id string) (*models.Book, error) {
	var item map[string]types.AttributeValue

	err := execObserved(ctx, s.breaker, s.tableName, "GetItem", func() error {
		out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
			TableName: aws.String(s.tableName),
			Key: map[string]types.AttributeValue{
				"book_id": &types.AttributeValueMemberS{Value: id},
			},
		})
		if err != nil {
			return fmt.Errorf("get book: %w", err)
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

	var book models.Book
	if err := attributevalue.UnmarshalMap(item, &book); err != nil {
		return nil, fmt.Errorf("unmarshal book: %w", err)
	}

	return &book, nil
}

func (s *DynamoBookStore) GetByISBN(ctx context.Context, isbn string) (*models.Book, error) {
	var items []map[string]types.AttributeValue

	err := execObserved(ctx, s.breaker, s.tableName, "Query", func() error {
		out, err := s.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(s.tableName),
			IndexName:              aws.String("isbn-index"),
			KeyConditionExpression: aws.String("isbn = :isbn"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":isbn": &types.AttributeValueMemberS{Value: isbn},
			},
			Limit: aws.Int32(1),
		})
		if err != nil {
			return fmt.Errorf("query book by isbn: %w", err)
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

	var book models.Book
	if err := attributevalue.UnmarshalMap(items[0], &book); err != nil {
		return nil, fmt.Errorf("unmarshal book: %w", err)
	}

	return &book, nil
}

func (s *DynamoBookStore) Create(ctx context.Context, book *models.Book) error {
	item, err := attributevalue.MarshalMap(book)
	if err != nil {
		return fmt.Errorf("marshal book: %w", err)
	}

	err = execObserved(ctx, s.breaker, s.tableName, "PutItem", func() error {
		_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName:           aws.String(s.tableName),
			Item:                item,
			ConditionExpression: aws.String("attribute_not_exists(book_id)"),
		})
		if err != nil {
			var ccf *types.ConditionalCheckFailedException
			if errors.As(err, &ccf) {
				return ErrConflict
			}
			return fmt.Errorf("put book: %w", err)
		}
		return nil
	})
	if err != nil {
		return mapStoreError(err)
	}

	s.logger.WithFields(logrus.Fields{
		"book_id": book.BookID,
		"isbn":    book.ISBN,
	}).Debug("Book record created")

	return nil
}

// Replace overwrites the whole book item on the condition that its
// stored version still equals expectedVersion. Losing the race
// returns ErrVersionConflict so the caller can re-read and retry;
// this is what serializes concurrent rating writes per book.
func (s *DynamoBookStore) Replace(ctx context.Context, book *models.Book, expectedVersion int64) error {
	book.Version = expectedVersion + 1

	item, err := attributevalue.MarshalMap(book)
	if err != nil {
		return fmt.Errorf("marshal book: %w", err)
	}

	err = execObserved(ctx, s.breaker, s.tableName, "PutItem", func() error {
		_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName:           aws.String(s.tableName),
			Item:                item,
			ConditionExpression: aws.String("attribute_exists(book_id) AND version = :expected"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":expected": &types.AttributeValueMemberN{Value: strconv.FormatInt(expectedVersion, 10)},
			},
		})
		if err != nil {
			var ccf *types.ConditionalCheckFailedException
			if errors.As(err, &ccf) {
				return ErrVersionConflict
			}
			return fmt.Errorf("replace book: %w", err)
		}
		return nil
	})
	return mapStoreError(err)
}

// List returns one page of the catalog, newest first, plus the total
// count. The catalog is scanned in full; page numbering over
// DynamoDB's cursor pagination would otherwise be approximate.
func (s *DynamoBookStore) List(ctx context.Context, page, limit int) ([]models.Book, int, error) {
	var books []models.Book

	err := execObserved(ctx, s.breaker, s.tableName, "Scan", func() error {
		paginator := dynamodb.NewScanPaginator(s.client, &dynamodb.ScanInput{
			TableName: aws.String(s.tableName),
		})
		for paginator.HasMorePages() {
			out, err := paginator.NextPage(ctx)
			if err != nil {
				return fmt.Errorf("scan books: %w", err)
			}
			var pageBooks []models.Book
			if err := attributevalue.UnmarshalListOfMaps(out.Items, &pageBooks); err != nil {
				return fmt.Errorf("unmarshal books: %w", err)
			}
			books = append(books, pageBooks...)
		}
		return nil
	})
	if err != nil {
		return nil, 0, mapStoreError(err)
	}

	sort.Slice(books, func(i, j int) bool {
		return books[i].CreatedAt.After(books[j].CreatedAt)
	})

	total := len(books)
	start := (page - 1) * limit
	if start >= total {
		return []models.Book{}, total, nil
	}
	end := start + limit
	if end > total {
		end = total
	}

	return books[start:end], total, nil
}

// AddLike inserts userID into the book's like set. DynamoDB set ADD
// is naturally idempotent: re-adding a present member is a no-op.
func (s *DynamoBookStore) AddLike(ctx context.Context, bookID, userID string) error {
	return s.addToSet(ctx, bookID, "likes", userID)
}

// AddFavorite inserts userID into the book's favorite set.
func (s *DynamoBookStore) AddFavorite(ctx context.Context, bookID, userID string) error {
	return s.addToSet(ctx, bookID, "favorites", userID)
}

func (s *DynamoBookStore) addToSet(ctx context.Context, bookID, attr, userID string) error {
	err := execObserved(ctx, s.breaker, s.tableName, "UpdateItem", func() error {
		_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName: aws.String(s.tableName),
			Key: map[string]types.AttributeValue{
				"book_id": &types.AttributeValueMemberS{Value: bookID},
			},
			UpdateExpression:    aws.String("ADD #attr :user"),
			ConditionExpression: aws.String("attribute_exists(book_id)"),
			ExpressionAttributeNames: map[string]string{
				"#attr": attr,
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":user": &types.AttributeValueMemberSS{Value: []string{userID}},
			},
		})
		if err != nil {
			var ccf *types.ConditionalCheckFailedException
			if errors.As(err, &ccf) {
				return ErrNotFound
			}
			return fmt.Errorf("add to %s: %w", attr, err)
		}
		return nil
	})
	return mapStoreError(err)
}

// IncrementDownloads bumps the download counter atomically and
// returns the new value.
func (s *DynamoBookStore) IncrementDownloads(ctx context.Context, bookID string) (int64, error) {
	var downloads int64

	err := execObserved(ctx, s.breaker, s.tableName, "UpdateItem", func() error {
		out, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName: aws.String(s.tableName),
			Key: map[string]types.AttributeValue{
				"book_id": &types.AttributeValueMemberS{Value: bookID},
			},
			UpdateExpression:    aws.String("ADD downloads :one"),
			ConditionExpression: aws.String("attribute_exists(book_id)"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":one": &types.AttributeValueMemberN{Value: "1"},
			},
			ReturnValues: types.ReturnValueUpdatedNew,
		})
		if err != nil {
			var ccf *types.ConditionalCheckFailedException
			if errors.As(err, &ccf) {
				return ErrNotFound
			}
			return fmt.Errorf("increment downloads: %w", err)
		}
		if attr, ok := out.Attributes["downloads"].(*types.AttributeValueMemberN); ok {
			downloads, _ = strconv.ParseInt(attr.Value, 10, 64)
		}
		return nil
	})
	if err != nil {
		return 0, mapStoreError(err)
	}

	return downloads, nil
}

func (s *DynamoBookStore) Count(ctx context.Context) (int, error) {
	var count int

	err := execObserved(ctx, s.breaker, s.tableName, "Scan", func() error {
		paginator := dynamodb.NewScanPaginator(s.client, &dynamodb.ScanInput{
			TableName: aws.String(s.tableName),
			Select:    types.SelectCount,
		})
		for paginator.HasMorePages() {
			out, err := paginator.NextPage(ctx)
			if err != nil {
				return fmt.Errorf("count books: %w", err)
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
