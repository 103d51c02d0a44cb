package routes

import (
	"io"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/hb-library/library-api/internal/catalog"
	"github.com/hb-library/library-api/internal/media"
	"github.com/hb-library/library-api/internal/middleware"
	"github.com/hb-library/library-api/internal/models"
	"github.com/hb-library/library-api/internal/store"
	apperrors "github.com/hb-library/library-api/pkg/errors"
)

// BookHandler handles catalog endpoints
type BookHandler struct {
	catalog  *catalog.Service
	comments store.CommentStore
	uploader *media.Uploader
	logger   *logrus.Logger
}

func NewBookHandler(catalogService *catalog.Service, comments store.CommentStore, uploader *media.Uploader, logger *logrus.Logger) *BookHandler {
	return &BookHandler{
		catalog:  catalogService,
		comments: comments,
		uploader: uploader,
		logger:   logger,
	}
}

// List returns one page of the catalog
// @Summary List books
// @Description Return a page of the catalog, newest first
// @Tags Books
// @Produce json
// @Param page query int false "Page number (default 1)"
// @Param limit query int false "Page size (default 10, max 100)"
// @Success 200 {object} models.BookListResponse
// @Router /books [get]
func (h *BookHandler) List(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)
	limit := c.QueryInt("limit", 10)

	resp, err := h.catalog.ListBooks(c.Context(), page, limit)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(resp)
}

// Get returns a single book
// @Summary Get book
// @Description Return one book by id
// @Tags Books
// @Produce json
// @Param id path string true "Book ID"
// @Success 200 {object} models.Book
// @Failure 404 {object} errors.ErrorResponse "Book not found"
// @Router /books/{id} [get]
func (h *BookHandler) Get(c *fiber.Ctx) error {
	book, err := h.catalog.GetBook(c.Context(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(book)
}

// Create adds a new book to the catalog
// @Summary Create book
// @Description Add a new book; ISBN must be unique, chapters must each carry title and content
// @Tags Books
// @Accept json
// @Produce json
// @Param request body models.BookRequest true "Book fields"
// @Success 201 {object} models.Book
// @Failure 400 {object} errors.ErrorResponse "Invalid book fields"
// @Failure 409 {object} errors.ErrorResponse "ISBN already in catalog"
// @Security BearerAuth
// @Router /books [post]
func (h *BookHandler) Create(c *fiber.Ctx) error {
	var req models.BookRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	book, err := h.catalog.CreateBook(c.Context(), &req, middleware.GetUserID(c))
	if err != nil {
		return respondError(c, err)
	}

	h.logger.WithFields(logrus.Fields{
		"book_id": book.BookID,
		"isbn":    book.ISBN,
		"user_id": book.UploadedBy,
	}).Info("Book created")

	return c.Status(fiber.StatusCreated).JSON(book)
}

// Replace overwrites a book's mutable fields
// @Summary Replace book
// @Description Full replace of mutable fields; uploader, ratings and counters are preserved
// @Tags Books
// @Accept json
// @Produce json
// @Param id path string true "Book ID"
// @Param request body models.BookRequest true "Book fields"
// @Success 200 {object} models.Book
// @Failure 400 {object} errors.ErrorResponse "Invalid book fields"
// @Failure 404 {object} errors.ErrorResponse "Book not found"
// @Security BearerAuth
// @Router /books/{id} [put]
func (h *BookHandler) Replace(c *fiber.Ctx) error {
	var req models.BookRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	book, err := h.catalog.ReplaceBook(c.Context(), c.Params("id"), &req)
	if err != nil {
		return respondError(c, err)
	}

	h.logger.WithField("book_id", book.BookID).Info("Book replaced")

	return c.JSON(book)
}

// Rate records the caller's rating on a book
// @Summary Rate book
// @Description Record or replace the caller's rating; at most one rating per user per book
// @Tags Books
// @Accept json
// @Produce json
// @Param id path string true "Book ID"
// @Param request body models.RateRequest true "Rating in [0,5] with optional review"
// @Success 200 {object} models.RatingSummary
// @Failure 400 {object} errors.ErrorResponse "Rating out of range"
// @Failure 404 {object} errors.ErrorResponse "Book not found"
// @Security BearerAuth
// @Router /books/{id}/rate [post]
func (h *BookHandler) Rate(c *fiber.Ctx) error {
	var req models.RateRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	summary, err := h.catalog.Rate(c.Context(), c.Params("id"), middleware.GetUserID(c), req.Rating, req.Review)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(summary)
}

// Like adds the caller to the book's like set
// @Summary Like book
// @Description Idempotent: liking twice is a no-op
// @Tags Books
// @Produce json
// @Param id path string true "Book ID"
// @Success 200 {object} map[string]bool
// @Failure 404 {object} errors.ErrorResponse "Book not found"
// @Security BearerAuth
// @Router /books/{id}/like [post]
func (h *BookHandler) Like(c *fiber.Ctx) error {
	if err := h.catalog.Like(c.Context(), c.Params("id"), middleware.GetUserID(c)); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"liked": true})
}

// Favorite adds the caller to the book's favorite set
// @Summary Favorite book
// @Description Idempotent: favoriting twice is a no-op
// @Tags Books
// @Produce json
// @Param id path string true "Book ID"
// @Success 200 {object} map[string]bool
// @Failure 404 {object} errors.ErrorResponse "Book not found"
// @Security BearerAuth
// @Router /books/{id}/favorite [post]
func (h *BookHandler) Favorite(c *fiber.Ctx) error {
	if err := h.catalog.Favorite(c.Context(), c.Params("id"), middleware.GetUserID(c)); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"favorited": true})
}

// Download bumps the book's download counter
// @Summary Download book
// @Description Record a download and return the new counter value
// @Tags Books
// @Produce json
// @Param id path string true "Book ID"
// @Success 200 {object} map[string]int64
// @Failure 404 {object} errors.ErrorResponse "Book not found"
// @Security BearerAuth
// @Router /books/{id}/download [post]
func (h *BookHandler) Download(c *fiber.Ctx) error {
	downloads, err := h.catalog.Download(c.Context(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"downloads": downloads})
}

// Comment attaches a comment to a book
// @Summary Comment on book
// @Description Append a comment; comments are never edited or deleted
// @Tags Books
// @Accept json
// @Produce json
// @Param id path string true "Book ID"
// @Param request body models.CommentRequest true "Comment content"
// @Success 201 {object} models.Comment
// @Failure 400 {object} errors.ErrorResponse "Empty content"
// @Failure 404 {object} errors.ErrorResponse "Book not found"
// @Security BearerAuth
// @Router /books/{id}/comment [post]
func (h *BookHandler) Comment(c *fiber.Ctx) error {
	var req models.CommentRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	if strings.TrimSpace(req.Content) == "" {
		return respondError(c, apperrors.New(apperrors.CodeInvalidArgument, "comment content is required", nil))
	}

	bookID := c.Params("id")
	if _, err := h.catalog.GetBook(c.Context(), bookID); err != nil {
		return respondError(c, err)
	}

	comment := &models.Comment{
		CommentID: uuid.New().String(),
		BookID:    bookID,
		UserID:    middleware.GetUserID(c),
		Content:   strings.TrimSpace(req.Content),
		CreatedAt: time.Now().UTC(),
	}

	if err := h.comments.Create(c.Context(), comment); err != nil {
		h.logger.WithError(err).WithField("book_id", bookID).Error("Failed to store comment")
		return respondError(c, apperrors.New(apperrors.CodeStoreUnavailable, "comment store unavailable", err))
	}

	return c.Status(fiber.StatusCreated).JSON(comment)
}

// ListComments returns a book's comments, newest first
// @Summary List comments
// @Description Return all comments on a book, newest first
// @Tags Books
// @Produce json
// @Param id path string true "Book ID"
// @Success 200 {array} models.Comment
// @Failure 404 {object} errors.ErrorResponse "Book not found"
// @Router /books/{id}/comments [get]
func (h *BookHandler) ListComments(c *fiber.Ctx) error {
	bookID := c.Params("id")
	if _, err := h.catalog.GetBook(c.Context(), bookID); err != nil {
		return respondError(c, err)
	}

	comments, err := h.comments.ListByBook(c.Context(), bookID)
	if err != nil {
		h.logger.WithError(err).WithField("book_id", bookID).Error("Failed to list comments")
		return respondError(c, apperrors.New(apperrors.CodeStoreUnavailable, "comment store unavailable", err))
	}

	return c.JSON(comments)
}

// UploadCover stores a new cover image for a book
// @Summary Upload cover
// @Description Store a cover image and return its public URL
// @Tags Books
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Book ID"
// @Param cover formData file true "Cover image (jpeg/png/webp, max 5MB)"
// @Success 200 {object} map[string]string
// @Failure 400 {object} errors.ErrorResponse "Invalid upload"
// @Failure 404 {object} errors.ErrorResponse "Book not found"
// @Security BearerAuth
// @Router /books/{id}/cover [post]
func (h *BookHandler) UploadCover(c *fiber.Ctx) error {
	bookID := c.Params("id")
	if _, err := h.catalog.GetBook(c.Context(), bookID); err != nil {
		return respondError(c, err)
	}

	fileHeader, err := c.FormFile("cover")
	if err != nil {
		return badRequest(c, "cover file is required")
	}

	file, err := fileHeader.Open()
	if err != nil {
		return badRequest(c, "cannot read cover file")
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, media.MaxUploadBytes+1))
	if err != nil {
		return badRequest(c, "cannot read cover file")
	}

	url, err := h.uploader.UploadCover(c.Context(), bookID, data, fileHeader.Header.Get("Content-Type"))
	if err != nil {
		return respondError(c, err)
	}

	if err := h.catalog.SetCover(c.Context(), bookID, url); err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{"cover_image": url})
}
