package middleware

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hb-library/library-api/internal/auth"
	"github.com/hb-library/library-api/internal/config"
	"github.com/hb-library/library-api/internal/models"
	"github.com/hb-library/library-api/internal/store"
)

type memUserStore struct {
	users map[string]*models.User
}

func newMemUserStore(users ...*models.User) *memUserStore {
	m := &memUserStore{users: make(map[string]*models.User)}
	for _, u := range users {
		m.users[u.UserID] = u
	}
	return m
}

func (m *memUserStore) GetByID(_ context.Context, id string) (*models.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memUserStore) GetByEmail(_ context.Context, email string) (*models.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memUserStore) Create(_ context.Context, user *models.User) error {
	if _, ok := m.users[user.UserID]; ok {
		return store.ErrConflict
	}
	cp := *user
	m.users[user.UserID] = &cp
	return nil
}

func (m *memUserStore) Update(_ context.Context, user *models.User) error {
	if _, ok := m.users[user.UserID]; !ok {
		return store.ErrNotFound
	}
	cp := *user
	m.users[user.UserID] = &cp
	return nil
}

func (m *memUserStore) Count(_ context.Context) (int, error) {
	return len(m.users), nil
}

func testJWTConfig() *config.JWTConfig {
	return &config.JWTConfig{
		Secret:   "unit-test-secret-key-0123456789",
		Issuer:   "library-api",
		TokenTTL: time.Hour,
	}
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testUser() *models.User {
	return &models.User{
		UserID: "u-1",
		Name:   "Reader",
		Email:  "reader@example.com",
		Role:   models.RoleUser,
	}
}

func newAuthApp(t *testing.T, users *memUserStore, extra ...fiber.Handler) (*fiber.App, *auth.TokenService) {
	t.Helper()
	tokens := auth.NewTokenService(testJWTConfig())
	mw := NewAuthMiddleware(tokens, users, quietLogger())

	app := fiber.New()
	handlers := append([]fiber.Handler{mw.Authenticate()}, extra...)
	handlers = append(handlers, func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"user_id": GetUserID(c),
			"role":    GetUserRole(c),
		})
	})
	app.Get("/protected", handlers...)
	return app, tokens
}

func TestAuthenticate_MissingHeader(t *testing.T) {
	app, _ := newAuthApp(t, newMemUserStore(testUser()))

	req := httptest.NewRequest("GET", "/protected", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestAuthenticate_MalformedHeader(t *testing.T) {
	app, _ := newAuthApp(t, newMemUserStore(testUser()))

	for _, header := range []string{"Token abc", "Bearer", "Bearer "} {
		req := httptest.NewRequest("GET", "/protected", nil)
		req.Header.Set("Authorization", header)
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode, "header %q", header)
	}
}

func TestAuthenticate_ValidToken(t *testing.T) {
	user := testUser()
	app, tokens := newAuthApp(t, newMemUserStore(user))

	token, _, err := tokens.Issue(user)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestAuthenticate_ExpiredToken(t *testing.T) {
	user := testUser()
	app, _ := newAuthApp(t, newMemUserStore(user))

	cfg := testJWTConfig()
	cfg.TokenTTL = -time.Minute
	expired := auth.NewTokenService(cfg)
	token, _, err := expired.Issue(user)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestAuthenticate_TamperedToken(t *testing.T) {
	user := testUser()
	app, tokens := newAuthApp(t, newMemUserStore(user))

	token, _, err := tokens.Issue(user)
	require.NoError(t, err)

	// Flip the last signature byte
	tampered := []byte(token)
	if tampered[len(tampered)-1] == 'A' {
		tampered[len(tampered)-1] = 'B'
	} else {
		tampered[len(tampered)-1] = 'A'
	}

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+string(tampered))
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestAuthenticate_WrongSecret(t *testing.T) {
	user := testUser()
	app, _ := newAuthApp(t, newMemUserStore(user))

	cfg := testJWTConfig()
	cfg.Secret = "a-different-secret-key-987654321"
	foreign := auth.NewTokenService(cfg)
	token, _, err := foreign.Issue(user)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestAuthenticate_DeletedUser(t *testing.T) {
	user := testUser()
	// Token is valid but the user record is gone
	app, tokens := newAuthApp(t, newMemUserStore())

	token, _, err := tokens.Issue(user)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestAuthenticate_RoleReadFromRecordNotToken(t *testing.T) {
	user := testUser()
	users := newMemUserStore(user)
	app, tokens := newAuthApp(t, users)

	token, _, err := tokens.Issue(user)
	require.NoError(t, err)

	// Promote the user after the token was issued
	promoted := *user
	promoted.Role = models.RoleAdmin
	require.NoError(t, users.Update(context.Background(), &promoted))

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), models.RoleAdmin)
}

func TestRequireRole_UserBlockedFromAdmin(t *testing.T) {
	user := testUser()
	app, tokens := newAuthApp(t, newMemUserStore(user), RequireRole(models.RoleAdmin))

	token, _, err := tokens.Issue(user)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req)
	require.NoError(t, err)
	// Authenticated but not authorized
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestRequireRole_AdminAllowed(t *testing.T) {
	admin := testUser()
	admin.Role = models.RoleAdmin
	app, tokens := newAuthApp(t, newMemUserStore(admin), RequireRole(models.RoleAdmin))

	token, _, err := tokens.Issue(admin)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestRequireRole_NoIdentity(t *testing.T) {
	app := fiber.New()
	app.Get("/admin", RequireRole(models.RoleAdmin), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	req := httptest.NewRequest("GET", "/admin", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}
