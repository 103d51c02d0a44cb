package models

import "time"

// Roles a user record can carry. New registrations always start as RoleUser.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User represents a library member
type User struct {
	UserID       string    `json:"user_id" dynamodbav:"user_id"` // Primary Key
	Name         string    `json:"name" dynamodbav:"name"`
	Email        string    `json:"email" dynamodbav:"email"` // Unique, stored lowercased
	PasswordHash string    `json:"-" dynamodbav:"password_hash"`
	Role         string    `json:"role" dynamodbav:"role"` // user/admin
	Bio          string    `json:"bio,omitempty" dynamodbav:"bio"`
	Avatar       string    `json:"avatar,omitempty" dynamodbav:"avatar"`
	Preferences  []string  `json:"reading_preferences,omitempty" dynamodbav:"reading_preferences,stringset,omitempty"`
	Theme        string    `json:"theme,omitempty" dynamodbav:"theme"`
	Language     string    `json:"language,omitempty" dynamodbav:"language"`
	CreatedAt    time.Time `json:"created_at" dynamodbav:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" dynamodbav:"updated_at"`
}

// PublicUser is the identity payload returned from auth endpoints
type PublicUser struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	Avatar string `json:"avatar,omitempty"`
}

// Public strips everything that must not leave the service
func (u *User) Public() PublicUser {
	return PublicUser{
		UserID: u.UserID,
		Name:   u.Name,
		Email:  u.Email,
		Role:   u.Role,
		Avatar: u.Avatar,
	}
}

// RegisterRequest represents registration request payload
type RegisterRequest struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

// LoginRequest represents login request payload
type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// UpdateProfileRequest carries mutable profile fields. Password is
// optional plaintext; when present the handler re-hashes it, otherwise
// the stored hash is untouched.
type UpdateProfileRequest struct {
	Name        string   `json:"name,omitempty"`
	Bio         string   `json:"bio,omitempty"`
	Password    string   `json:"password,omitempty"`
	Preferences []string `json:"reading_preferences,omitempty"`
	Theme       string   `json:"theme,omitempty"`
	Language    string   `json:"language,omitempty"`
}

// AuthResponse represents authentication response
type AuthResponse struct {
	Token     string     `json:"token"`
	ExpiresIn int        `json:"expires_in"` // seconds
	User      PublicUser `json:"user"`
}
