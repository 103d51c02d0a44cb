package routes

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hb-library/library-api/internal/auth"
	"github.com/hb-library/library-api/internal/config"
	"github.com/hb-library/library-api/internal/middleware"
	"github.com/hb-library/library-api/internal/models"
	"github.com/hb-library/library-api/internal/store"
)

type memUserStore struct {
	users map[string]*models.User
}

func newMemUserStore() *memUserStore {
	return &memUserStore{users: make(map[string]*models.User)}
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
		if u.Email == strings.ToLower(email) {
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

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newAuthTestApp(t *testing.T) (*fiber.App, *memUserStore) {
	t.Helper()
	logger := quietLogger()
	users := newMemUserStore()
	tokens := auth.NewTokenService(&config.JWTConfig{
		Secret:   "route-test-secret-0123456789abcdef",
		Issuer:   "library-api",
		TokenTTL: time.Hour,
	})
	handler := NewAuthHandler(users, tokens, nil, logger)
	guard := middleware.NewAuthMiddleware(tokens, users, logger)

	app := fiber.New()
	app.Post("/api/v1/auth/register", handler.Register)
	app.Post("/api/v1/auth/login", handler.Login)
	app.Get("/api/v1/auth/me", guard.Authenticate(), handler.Me)
	app.Put("/api/v1/auth/me", guard.Authenticate(), handler.UpdateMe)
	return app, users
}

func postJSON(t *testing.T, app *fiber.App, path, body string) (int, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest("POST", path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var decoded map[string]interface{}
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &decoded))
	}
	return resp.StatusCode, decoded
}

func TestRegister(t *testing.T) {
	app, users := newAuthTestApp(t)

	status, body := postJSON(t, app, "/api/v1/auth/register",
		`{"name":"Reader","email":"Reader@Example.COM","password":"secret123"}`)
	require.Equal(t, fiber.StatusCreated, status)
	assert.NotEmpty(t, body["token"])
	assert.NotZero(t, body["expires_in"])

	user := body["user"].(map[string]interface{})
	assert.Equal(t, "reader@example.com", user["email"], "email stored lowercased")
	assert.Equal(t, models.RoleUser, user["role"])
	assert.NotContains(t, user, "password_hash")

	stored, err := users.GetByEmail(context.Background(), "reader@example.com")
	require.NoError(t, err)
	assert.NotEqual(t, "secret123", stored.PasswordHash, "password must be hashed")
}

func TestRegister_DuplicateEmailCaseInsensitive(t *testing.T) {
	app, _ := newAuthTestApp(t)

	status, _ := postJSON(t, app, "/api/v1/auth/register",
		`{"name":"Reader","email":"reader@example.com","password":"secret123"}`)
	require.Equal(t, fiber.StatusCreated, status)

	status, body := postJSON(t, app, "/api/v1/auth/register",
		`{"name":"Other","email":"READER@example.com","password":"different1"}`)
	assert.Equal(t, fiber.StatusConflict, status)
	errObj := body["error"].(map[string]interface{})
	assert.Equal(t, "CONFLICT", errObj["code"])
}

func TestRegister_Validation(t *testing.T) {
	app, _ := newAuthTestApp(t)

	tests := []struct {
		name string
		body string
	}{
		{"short password", `{"name":"R","email":"r@example.com","password":"abc"}`},
		{"missing name", `{"email":"r@example.com","password":"secret123"}`},
		{"bad email", `{"name":"R","email":"not-an-email","password":"secret123"}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			status, _ := postJSON(t, app, "/api/v1/auth/register", tc.body)
			assert.Equal(t, fiber.StatusBadRequest, status)
		})
	}
}

func TestLogin(t *testing.T) {
	app, _ := newAuthTestApp(t)

	status, _ := postJSON(t, app, "/api/v1/auth/register",
		`{"name":"Reader","email":"reader@example.com","password":"secret123"}`)
	require.Equal(t, fiber.StatusCreated, status)

	status, body := postJSON(t, app, "/api/v1/auth/login",
		`{"email":"Reader@Example.com","password":"secret123"}`)
	assert.Equal(t, fiber.StatusOK, status)
	assert.NotEmpty(t, body["token"])
}

func TestLogin_SameMessageForBothFailures(t *testing.T) {
	app, _ := newAuthTestApp(t)

	status, _ := postJSON(t, app, "/api/v1/auth/register",
		`{"name":"Reader","email":"reader@example.com","password":"secret123"}`)
	require.Equal(t, fiber.StatusCreated, status)

	// Unknown email
	status1, body1 := postJSON(t, app, "/api/v1/auth/login",
		`{"email":"nobody@example.com","password":"secret123"}`)
	assert.Equal(t, fiber.StatusUnauthorized, status1)

	// Wrong password
	status2, body2 := postJSON(t, app, "/api/v1/auth/login",
		`{"email":"reader@example.com","password":"wrongpass"}`)
	assert.Equal(t, fiber.StatusUnauthorized, status2)

	msg1 := body1["error"].(map[string]interface{})["message"]
	msg2 := body2["error"].(map[string]interface{})["message"]
	assert.Equal(t, msg1, msg2, "responses must not reveal which part was wrong")
}

func TestMe(t *testing.T) {
	app, _ := newAuthTestApp(t)

	status, registered := postJSON(t, app, "/api/v1/auth/register",
		`{"name":"Reader","email":"reader@example.com","password":"secret123"}`)
	require.Equal(t, fiber.StatusCreated, status)
	token := registered["token"].(string)

	req := httptest.NewRequest("GET", "/api/v1/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var me models.User
	require.NoError(t, json.Unmarshal(raw, &me))
	assert.Equal(t, "reader@example.com", me.Email)
	assert.Empty(t, me.PasswordHash, "hash must never serialize")
}

func TestUpdateMe(t *testing.T) {
	app, users := newAuthTestApp(t)

	status, registered := postJSON(t, app, "/api/v1/auth/register",
		`{"name":"Reader","email":"reader@example.com","password":"secret123"}`)
	require.Equal(t, fiber.StatusCreated, status)
	token := registered["token"].(string)
	userID := registered["user"].(map[string]interface{})["user_id"].(string)

	req := httptest.NewRequest("PUT", "/api/v1/auth/me",
		strings.NewReader(`{"name":"Renamed","bio":"hello","theme":"dark"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	stored, err := users.GetByID(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", stored.Name)
	assert.Equal(t, "hello", stored.Bio)
	assert.Equal(t, "dark", stored.Theme)
}

func TestUpdateMe_PasswordRehash(t *testing.T) {
	app, users := newAuthTestApp(t)

	status, registered := postJSON(t, app, "/api/v1/auth/register",
		`{"name":"Reader","email":"reader@example.com","password":"secret123"}`)
	require.Equal(t, fiber.StatusCreated, status)
	token := registered["token"].(string)
	userID := registered["user"].(map[string]interface{})["user_id"].(string)

	before, err := users.GetByID(context.Background(), userID)
	require.NoError(t, err)

	req := httptest.NewRequest("PUT", "/api/v1/auth/me",
		strings.NewReader(`{"password":"newsecret456"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	after, err := users.GetByID(context.Background(), userID)
	require.NoError(t, err)
	assert.NotEqual(t, before.PasswordHash, after.PasswordHash)

	// Old password no longer works, new one does
	status, _ = postJSON(t, app, "/api/v1/auth/login",
		`{"email":"reader@example.com","password":"secret123"}`)
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, _ = postJSON(t, app, "/api/v1/auth/login",
		`{"email":"reader@example.com","password":"newsecret456"}`)
	assert.Equal(t, fiber.StatusOK, status)
}
