package models

import "time"

// Categories is the closed set a book may belong to
var Categories = []string{
	"Fiction", "Non-Fiction", "Science", "Technology", "Biography",
	"Romance", "Business", "Self-Help", "History",
	"Arts", "Poetry", "Drama", "Other",
}

// ValidCategory reports whether c is in the allowed category set
func ValidCategory(c string) bool {
	for _, cat := range Categories {
		if cat == c {
			return true
		}
	}
	return false
}

// MinPublicationYear bounds the oldest accepted publication year
const MinPublicationYear = 1800

// Chapter is one ordered title+content pair inside a book
type Chapter struct {
	Title   string `json:"title" dynamodbav:"title"`
	Content string `json:"content" dynamodbav:"content"`
}

// Rating is one user's rating entry on a book. At most one entry per
// user exists in a book's ratings list; a re-rating replaces the value
// in place.
type Rating struct {
	UserID    string    `json:"user_id" dynamodbav:"user_id"`
	Rating    float64   `json:"rating" dynamodbav:"rating"`
	Review    string    `json:"review,omitempty" dynamodbav:"review"`
	CreatedAt time.Time `json:"created_at" dynamodbav:"created_at"`
}

// Book represents a catalog entry. AverageRating and TotalRatings are
// derived from Ratings and recomputed atomically with every rating
// mutation; Version backs the conditional write that keeps concurrent
// raters from losing updates.
type Book struct {
	BookID          string    `json:"book_id" dynamodbav:"book_id"` // Primary Key
	Title           string    `json:"title" dynamodbav:"title"`
	Author          string    `json:"author" dynamodbav:"author"`
	Description     string    `json:"description" dynamodbav:"description"`
	ISBN            string    `json:"isbn" dynamodbav:"isbn"` // Unique
	Category        string    `json:"category" dynamodbav:"category"`
	PublicationYear int       `json:"publication_year" dynamodbav:"publication_year"`
	Publisher       string    `json:"publisher" dynamodbav:"publisher"`
	Language        string    `json:"language" dynamodbav:"language"`
	Chapters        []Chapter `json:"chapters" dynamodbav:"chapters"`
	CoverImage      string    `json:"cover_image,omitempty" dynamodbav:"cover_image"`
	Tags            []string  `json:"tags,omitempty" dynamodbav:"tags,stringset,omitempty"`
	Availability    bool      `json:"availability" dynamodbav:"availability"`
	Downloads       int64     `json:"downloads" dynamodbav:"downloads"`
	Likes           []string  `json:"likes,omitempty" dynamodbav:"likes,stringset,omitempty"`
	Favorites       []string  `json:"favorites,omitempty" dynamodbav:"favorites,stringset,omitempty"`
	Ratings         []Rating  `json:"ratings" dynamodbav:"ratings"`
	AverageRating   float64   `json:"average_rating" dynamodbav:"average_rating"`
	TotalRatings    int       `json:"total_ratings" dynamodbav:"total_ratings"`
	UploadedBy      string    `json:"uploaded_by" dynamodbav:"uploaded_by"` // Immutable after create
	Version         int64     `json:"-" dynamodbav:"version"`
	CreatedAt       time.Time `json:"created_at" dynamodbav:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" dynamodbav:"updated_at"`
}

// RatingSummary is the derived aggregate returned after a rating mutation
type RatingSummary struct {
	AverageRating float64 `json:"average_rating"`
	TotalRatings  int     `json:"total_ratings"`
}

// BookRequest carries the mutable fields for create and full replace
type BookRequest struct {
	Title           string    `json:"title"`
	Author          string    `json:"author"`
	Description     string    `json:"description"`
	ISBN            string    `json:"isbn"`
	Category        string    `json:"category"`
	PublicationYear int       `json:"publication_year"`
	Publisher       string    `json:"publisher"`
	Language        string    `json:"language"`
	Chapters        []Chapter `json:"chapters"`
	CoverImage      string    `json:"cover_image,omitempty"`
	Tags            []string  `json:"tags,omitempty"`
	Availability    *bool     `json:"availability,omitempty"`
}

// RateRequest is the payload for POST /books/:id/rate
type RateRequest struct {
	Rating float64 `json:"rating"`
	Review string  `json:"review,omitempty"`
}

// BookListResponse is the paginated catalog listing
type BookListResponse struct {
	Books      []Book `json:"books"`
	Total      int    `json:"total"`
	Page       int    `json:"page"`
	Limit      int    `json:"limit"`
	TotalPages int    `json:"total_pages"`
}
