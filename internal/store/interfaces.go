package store

import (
	"context"
	"time"

	"github.com/hb-library/library-api/internal/models"
)

// UserStore is the credential store: persisted user records with
// hashed passwords and roles.
type UserStore interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	Count(ctx context.Context) (int, error)
}

// BookStore persists catalog entries including their nested rating
// entries. Replace is conditional on the version the caller read, so
// a concurrent writer forces a re-read instead of silently losing a
// rating.
type BookStore interface {
	GetByID(ctx context.Context, id string) (*models.Book, error)
	GetByISBN(ctx context.Context, isbn string) (*models.Book, error)
	Create(ctx context.Context, book *models.Book) error
	Replace(ctx context.Context, book *models.Book, expectedVersion int64) error
	List(ctx context.Context, page, limit int) ([]models.Book, int, error)
	AddLike(ctx context.Context, bookID, userID string) error
	AddFavorite(ctx context.Context, bookID, userID string) error
	IncrementDownloads(ctx context.Context, bookID string) (int64, error)
	Count(ctx context.Context) (int, error)
}

// CommentStore is append-only comment storage.
type CommentStore interface {
	Create(ctx context.Context, comment *models.Comment) error
	ListByBook(ctx context.Context, bookID string) ([]models.Comment, error)
}

// AccessStore is the access ledger. Record reports whether a new
// grant was created; a duplicate (user, book) pair returns false with
// no error and leaves the original grant untouched.
type AccessStore interface {
	Record(ctx context.Context, userID, bookID string, paidAt time.Time, paymentID string) (bool, error)
	Has(ctx context.Context, userID, bookID string) (bool, error)
}
