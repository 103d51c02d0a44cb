package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hb-library/library-api/internal/config"
	"github.com/hb-library/library-api/internal/models"
)

func newTestService(ttl time.Duration) *TokenService {
	return NewTokenService(&config.JWTConfig{
		Secret:   "unit-test-secret-key",
		Issuer:   "library-api",
		TokenTTL: ttl,
	})
}

func testUser() *models.User {
	return &models.User{
		UserID: "b7a4e0d2-1111-4c3a-9f00-000000000001",
		Name:   "Test Reader",
		Email:  "reader@example.com",
		Role:   models.RoleUser,
	}
}

func TestTokenService_IssueAndVerify(t *testing.T) {
	svc := newTestService(10 * time.Hour)
	user := testUser()

	token, expiresIn, err := svc.Issue(user)
	require.NoError(t, err)
	require.NotEmpty(t, token)
	assert.Equal(t, int((10 * time.Hour).Seconds()), expiresIn)

	claims, err := svc.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, user.UserID, claims.Subject)
	assert.Equal(t, models.RoleUser, claims.Role)
	assert.Equal(t, "library-api", claims.Issuer)
}

func TestTokenService_Verify_Expired(t *testing.T) {
	svc := newTestService(-time.Minute)
	token, _, err := svc.Issue(testUser())
	require.NoError(t, err)

	_, err = svc.Verify(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestTokenService_Verify_TamperedSignature(t *testing.T) {
	svc := newTestService(time.Hour)
	token, _, err := svc.Issue(testUser())
	require.NoError(t, err)

	// Flip one byte of the signature segment
	flipped := []byte(token)
	last := len(flipped) - 1
	if flipped[last] == 'A' {
		flipped[last] = 'B'
	} else {
		flipped[last] = 'A'
	}

	_, err = svc.Verify(string(flipped))
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenService_Verify_TamperedPayload(t *testing.T) {
	svc := newTestService(time.Hour)
	token, _, err := svc.Issue(testUser())
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)

	// Swap the payload for an identical-length but different encoding
	payload := []byte(parts[1])
	if payload[0] == 'e' {
		payload[0] = 'f'
	} else {
		payload[0] = 'e'
	}
	tampered := parts[0] + "." + string(payload) + "." + parts[2]

	_, err = svc.Verify(tampered)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenService_Verify_WrongSecret(t *testing.T) {
	svc := newTestService(time.Hour)
	token, _, err := svc.Issue(testUser())
	require.NoError(t, err)

	other := NewTokenService(&config.JWTConfig{
		Secret:   "a-completely-different-secret",
		Issuer:   "library-api",
		TokenTTL: time.Hour,
	})

	_, err = other.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenService_Verify_WrongIssuer(t *testing.T) {
	issuerA := NewTokenService(&config.JWTConfig{
		Secret:   "unit-test-secret-key",
		Issuer:   "some-other-service",
		TokenTTL: time.Hour,
	})
	token, _, err := issuerA.Issue(testUser())
	require.NoError(t, err)

	svc := newTestService(time.Hour)
	_, err = svc.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenService_Verify_Garbage(t *testing.T) {
	svc := newTestService(time.Hour)

	for _, tc := range []string{"", "not-a-token", "a.b.c"} {
		_, err := svc.Verify(tc)
		assert.ErrorIs(t, err, ErrInvalidToken, "input %q", tc)
	}
}
