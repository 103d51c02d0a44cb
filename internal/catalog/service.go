// Package catalog implements the book catalog operations: create,
// replace, listing, the rating aggregator and the like/favorite
// toggles.
package catalog

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/hb-library/library-api/internal/metrics"
	"github.com/hb-library/library-api/internal/models"
	"github.com/hb-library/library-api/internal/store"
	apperrors "github.com/hb-library/library-api/pkg/errors"
)

// rateRetries bounds the conditional-write retry loop for a single
// rating mutation. Contention on one book is short-lived, so a handful
// of attempts is plenty before giving up as unavailable.
const rateRetries = 5

type Service struct {
	books  store.BookStore
	logger *logrus.Logger
}

func NewService(books store.BookStore, logger *logrus.Logger) *Service {
	return &Service{
		books:  books,
		logger: logger,
	}
}

// CreateBook validates the payload, enforces ISBN uniqueness and
// persists a new catalog entry owned by uploadedBy.
func (s *Service) CreateBook(ctx context.Context, req *models.BookRequest, uploadedBy string) (*models.Book, error) {
	if err := validateBookRequest(req); err != nil {
		return nil, err
	}

	// ISBN uniqueness check
	if _, err := s.books.GetByISBN(ctx, req.ISBN); err == nil {
		return nil, apperrors.New(apperrors.CodeConflict, "ISBN already in use", nil)
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, storeError(err, "check isbn")
	}

	now := time.Now().UTC()
	availability := true
	if req.Availability != nil {
		availability = *req.Availability
	}

	book := &models.Book{
		BookID:          uuid.New().String(),
		Title:           strings.TrimSpace(req.Title),
		Author:          strings.TrimSpace(req.Author),
		Description:     strings.TrimSpace(req.Description),
		ISBN:            strings.TrimSpace(req.ISBN),
		Category:        req.Category,
		PublicationYear: req.PublicationYear,
		Publisher:       strings.TrimSpace(req.Publisher),
		Language:        defaultLanguage(req.Language),
		Chapters:        req.Chapters,
		CoverImage:      req.CoverImage,
		Tags:            req.Tags,
		Availability:    availability,
		Ratings:         []models.Rating{},
		UploadedBy:      uploadedBy,
		Version:         0,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.books.Create(ctx, book); err != nil {
		return nil, storeError(err, "create book")
	}

	s.logger.WithFields(logrus.Fields{
		"book_id":     book.BookID,
		"title":       book.Title,
		"uploaded_by": uploadedBy,
	}).Info("Book created")

	return book, nil
}

// ReplaceBook does a full replace of the mutable fields. Ownership,
// ratings, like/favorite sets and the download counter survive the
// replace untouched.
func (s *Service) ReplaceBook(ctx context.Context, bookID string, req *models.BookRequest) (*models.Book, error) {
	if err := validateBookRequest(req); err != nil {
		return nil, err
	}

	for attempt := 0; attempt < rateRetries; attempt++ {
		book, err := s.books.GetByID(ctx, bookID)
		if err != nil {
			return nil, storeError(err, "get book")
		}

		if req.ISBN != book.ISBN {
			if _, err := s.books.GetByISBN(ctx, req.ISBN); err == nil {
				return nil, apperrors.New(apperrors.CodeConflict, "ISBN already in use", nil)
			} else if !errors.Is(err, store.ErrNotFound) {
				return nil, storeError(err, "check isbn")
			}
		}

		book.Title = strings.TrimSpace(req.Title)
		book.Author = strings.TrimSpace(req.Author)
		book.Description = strings.TrimSpace(req.Description)
		book.ISBN = strings.TrimSpace(req.ISBN)
		book.Category = req.Category
		book.PublicationYear = req.PublicationYear
		book.Publisher = strings.TrimSpace(req.Publisher)
		book.Language = defaultLanguage(req.Language)
		book.Chapters = req.Chapters
		book.CoverImage = req.CoverImage
		book.Tags = req.Tags
		if req.Availability != nil {
			book.Availability = *req.Availability
		}
		book.UpdatedAt = time.Now().UTC()

		err = s.books.Replace(ctx, book, book.Version)
		if errors.Is(err, store.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return nil, storeError(err, "replace book")
		}
		return book, nil
	}

	return nil, apperrors.New(apperrors.CodeStoreUnavailable, "book update contention, try again", nil)
}

// Rate records or replaces userID's rating on a book and returns the
// recomputed aggregate. The read-modify-write is serialized per book
// by the store's version condition: when a concurrent rater wins the
// race we re-read and reapply, so no rating entry is ever lost.
func (s *Service) Rate(ctx context.Context, bookID, userID string, rating float64, review string) (*models.RatingSummary, error) {
	if rating < 0 || rating > 5 {
		return nil, apperrors.New(apperrors.CodeInvalidArgument, "rating must be between 0 and 5", nil)
	}

	for attempt := 0; attempt < rateRetries; attempt++ {
		book, err := s.books.GetByID(ctx, bookID)
		if err != nil {
			return nil, storeError(err, "get book")
		}

		replaced := upsertRating(book, userID, rating, review)
		recomputeAggregate(book)
		book.UpdatedAt = time.Now().UTC()

		err = s.books.Replace(ctx, book, book.Version)
		if errors.Is(err, store.ErrVersionConflict) {
			metrics.RecordRatingRetry()
			s.logger.WithFields(logrus.Fields{
				"book_id": bookID,
				"user_id": userID,
				"attempt": attempt + 1,
			}).Debug("Rating write lost the version race, retrying")
			continue
		}
		if err != nil {
			return nil, storeError(err, "persist rating")
		}

		if replaced {
			metrics.RecordRatingWrite("replaced")
		} else {
			metrics.RecordRatingWrite("created")
		}

		return &models.RatingSummary{
			AverageRating: book.AverageRating,
			TotalRatings:  book.TotalRatings,
		}, nil
	}

	metrics.RecordRatingWrite("contention")
	return nil, apperrors.New(apperrors.CodeStoreUnavailable, "rating contention, try again", nil)
}

// Like adds userID to the book's like set; re-liking is a no-op.
func (s *Service) Like(ctx context.Context, bookID, userID string) error {
	if err := s.books.AddLike(ctx, bookID, userID); err != nil {
		return storeError(err, "like book")
	}
	return nil
}

// Favorite adds userID to the book's favorite set; idempotent like Like.
func (s *Service) Favorite(ctx context.Context, bookID, userID string) error {
	if err := s.books.AddFavorite(ctx, bookID, userID); err != nil {
		return storeError(err, "favorite book")
	}
	return nil
}

// SetCover stores the cover image URL on the book, retried through
// the same version condition as other book writes.
func (s *Service) SetCover(ctx context.Context, bookID, url string) error {
	for attempt := 0; attempt < rateRetries; attempt++ {
		book, err := s.books.GetByID(ctx, bookID)
		if err != nil {
			return storeError(err, "get book")
		}

		book.CoverImage = url
		book.UpdatedAt = time.Now().UTC()

		err = s.books.Replace(ctx, book, book.Version)
		if errors.Is(err, store.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return storeError(err, "persist cover")
		}
		return nil
	}

	return apperrors.New(apperrors.CodeStoreUnavailable, "book update contention, try again", nil)
}

// Download bumps the download counter and returns the new value.
func (s *Service) Download(ctx context.Context, bookID string) (int64, error) {
	n, err := s.books.IncrementDownloads(ctx, bookID)
	if err != nil {
		return 0, storeError(err, "record download")
	}
	return n, nil
}

func (s *Service) GetBook(ctx context.Context, bookID string) (*models.Book, error) {
	book, err := s.books.GetByID(ctx, bookID)
	if err != nil {
		return nil, storeError(err, "get book")
	}
	return book, nil
}

// ListBooks returns one catalog page. Page defaults to 1, limit to 10
// capped at 100.
func (s *Service) ListBooks(ctx context.Context, page, limit int) (*models.BookListResponse, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}

	books, total, err := s.books.List(ctx, page, limit)
	if err != nil {
		return nil, storeError(err, "list books")
	}

	totalPages := 0
	if total > 0 {
		totalPages = int(math.Ceil(float64(total) / float64(limit)))
	}

	return &models.BookListResponse{
		Books:      books,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: totalPages,
	}, nil
}

// upsertRating replaces an existing entry for userID in place or
// appends a new one, preserving the original position and created_at
// on replace. Reports whether an existing entry was replaced.
func upsertRating(book *models.Book, userID string, rating float64, review string) bool {
	for i := range book.Ratings {
		if book.Ratings[i].UserID == userID {
			book.Ratings[i].Rating = rating
			book.Ratings[i].Review = review
			return true
		}
	}
	book.Ratings = append(book.Ratings, models.Rating{
		UserID:    userID,
		Rating:    rating,
		Review:    review,
		CreatedAt: time.Now().UTC(),
	})
	return false
}

// recomputeAggregate keeps average_rating and total_ratings equal to
// the count and mean of the current entries; zero entries define the
// average as 0.
func recomputeAggregate(book *models.Book) {
	book.TotalRatings = len(book.Ratings)
	if book.TotalRatings == 0 {
		book.AverageRating = 0
		return
	}

	var sum float64
	for _, r := range book.Ratings {
		sum += r.Rating
	}
	book.AverageRating = sum / float64(book.TotalRatings)
}

func validateBookRequest(req *models.BookRequest) error {
	switch {
	case strings.TrimSpace(req.Title) == "":
		return apperrors.New(apperrors.CodeInvalidArgument, "title is required", nil)
	case strings.TrimSpace(req.Author) == "":
		return apperrors.New(apperrors.CodeInvalidArgument, "author is required", nil)
	case strings.TrimSpace(req.Description) == "":
		return apperrors.New(apperrors.CodeInvalidArgument, "description is required", nil)
	case strings.TrimSpace(req.ISBN) == "":
		return apperrors.New(apperrors.CodeInvalidArgument, "isbn is required", nil)
	case strings.TrimSpace(req.Publisher) == "":
		return apperrors.New(apperrors.CodeInvalidArgument, "publisher is required", nil)
	}

	if !models.ValidCategory(req.Category) {
		return apperrors.New(apperrors.CodeInvalidArgument, "unknown category", nil)
	}

	currentYear := time.Now().Year()
	if req.PublicationYear < models.MinPublicationYear || req.PublicationYear > currentYear {
		return apperrors.Newf(apperrors.CodeInvalidArgument, nil,
			"publication year must be between %d and %d", models.MinPublicationYear, currentYear)
	}

	if len(req.Chapters) == 0 {
		return apperrors.New(apperrors.CodeInvalidArgument, "invalid chapters: at least one chapter is required", nil)
	}
	for i, ch := range req.Chapters {
		if strings.TrimSpace(ch.Title) == "" || strings.TrimSpace(ch.Content) == "" {
			return apperrors.Newf(apperrors.CodeInvalidArgument, nil,
				"invalid chapters: chapter %d needs a title and content", i+1)
		}
	}

	return nil
}

func defaultLanguage(lang string) string {
	lang = strings.TrimSpace(lang)
	if lang == "" {
		return "English"
	}
	return lang
}

// storeError maps store sentinels onto the API error taxonomy.
func storeError(err error, op string) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return apperrors.New(apperrors.CodeNotFound, "book not found", err)
	case errors.Is(err, store.ErrConflict):
		return apperrors.New(apperrors.CodeConflict, "duplicate key", err)
	case errors.Is(err, store.ErrUnavailable):
		return apperrors.New(apperrors.CodeStoreUnavailable, "store unavailable", err)
	default:
		return apperrors.New(apperrors.CodeInternalError, op+" failed", err)
	}
}
