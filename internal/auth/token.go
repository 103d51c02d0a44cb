// Package auth issues and verifies the signed bearer tokens that
// identify library users.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hb-library/library-api/internal/config"
	"github.com/hb-library/library-api/internal/models"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// Claims is the token payload. The embedded role is captured at
// issuance time and is advisory only: the access guard re-reads the
// role from the live user record on every request.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// TokenService signs and verifies identity tokens with a shared
// secret. Issuance is pure computation; nothing is persisted.
type TokenService struct {
	secret   []byte
	issuer   string
	tokenTTL time.Duration
}

// NewTokenService creates a token service from config. The secret is
// validated at config load; it never has a built-in fallback.
func NewTokenService(cfg *config.JWTConfig) *TokenService {
	return &TokenService{
		secret:   []byte(cfg.Secret),
		issuer:   cfg.Issuer,
		tokenTTL: cfg.TokenTTL,
	}
}

// Issue produces a signed token for the user and returns it together
// with its lifetime in seconds.
func (s *TokenService) Issue(user *models.User) (string, int, error) {
	now := time.Now()

	claims := &Claims{
		Role: user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.UserID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", 0, fmt.Errorf("sign token: %w", err)
	}

	return signed, int(s.tokenTTL.Seconds()), nil
}

// Verify parses and validates a token string. It fails with
// ErrTokenExpired when past the embedded expiry and ErrInvalidToken
// for everything else: bad signature, wrong algorithm, wrong issuer,
// garbage input. There is no unsigned fallback.
func (s *TokenService) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	if claims.Issuer != s.issuer {
		return nil, ErrInvalidToken
	}

	if claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
