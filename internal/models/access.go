package models

import "time"

// AccessGrant records that a user paid for a book. Append-only
// evidence keyed by (user_id, book_id); duplicate webhook deliveries
// never overwrite the first recorded timestamp.
type AccessGrant struct {
	UserID    string    `json:"user_id" dynamodbav:"user_id"` // Partition Key
	BookID    string    `json:"book_id" dynamodbav:"book_id"` // Sort Key
	PaidAt    time.Time `json:"paid_at" dynamodbav:"paid_at"`
	PaymentID string    `json:"payment_id,omitempty" dynamodbav:"payment_id"`
}

// PaymentEvent is the payload the payment provider delivers to the
// webhook endpoint. Customer carries the user id, Description the book
// id; both are provider-side conventions inherited from the checkout
// metadata.
type PaymentEvent struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	Customer    string `json:"customer"`
	Description string `json:"description"`
	PaidAt      int64  `json:"paid_at,omitempty"` // unix seconds, optional
}

// AccessResponse answers GET /books/:id/access
type AccessResponse struct {
	HasAccess bool `json:"has_access"`
}
