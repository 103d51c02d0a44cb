package models

import "time"

// Comment is user-authored text attached to a book. Comments are
// append-only: never edited or deleted.
type Comment struct {
	CommentID string    `json:"comment_id" dynamodbav:"comment_id"` // Primary Key
	BookID    string    `json:"book_id" dynamodbav:"book_id"`       // GSI book_id-index
	UserID    string    `json:"user_id" dynamodbav:"user_id"`
	Content   string    `json:"content" dynamodbav:"content"`
	CreatedAt time.Time `json:"created_at" dynamodbav:"created_at"`
}

// CommentRequest is the payload for POST /books/:id/comment
type CommentRequest struct {
	Content string `json:"content"`
}
