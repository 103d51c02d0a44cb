package middleware

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newIdempotencyApp(t *testing.T) *fiber.App {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	mw := NewIdempotencyMiddleware(client, quietLogger())

	calls := 0
	app := fiber.New()
	app.Post("/books", mw.Handle(), func(c *fiber.Ctx) error {
		calls++
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"call": calls})
	})
	return app
}

func postBooks(t *testing.T, app *fiber.App, key, body string) (int, string, string) {
	t.Helper()
	req := httptest.NewRequest("POST", "/books", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	respBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(respBody), resp.Header.Get("X-Idempotency-Cached")
}

func TestIdempotency_MissingKey(t *testing.T) {
	app := newIdempotencyApp(t)

	status, body, _ := postBooks(t, app, "", `{"title":"x"}`)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Contains(t, body, "IDEMPOTENCY_REQUIRED")
}

func TestIdempotency_InvalidKey(t *testing.T) {
	app := newIdempotencyApp(t)

	status, _, _ := postBooks(t, app, "not-a-uuid", `{"title":"x"}`)
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestIdempotency_ReplaysCachedResponse(t *testing.T) {
	app := newIdempotencyApp(t)
	key := uuid.NewString()

	status1, body1, cached1 := postBooks(t, app, key, `{"title":"x"}`)
	require.Equal(t, fiber.StatusCreated, status1)
	assert.Empty(t, cached1)

	status2, body2, cached2 := postBooks(t, app, key, `{"title":"x"}`)
	assert.Equal(t, fiber.StatusCreated, status2)
	assert.Equal(t, body1, body2, "retry must replay, not re-execute")
	assert.Equal(t, "true", cached2)
}

func TestIdempotency_ConflictOnDifferentBody(t *testing.T) {
	app := newIdempotencyApp(t)
	key := uuid.NewString()

	status1, _, _ := postBooks(t, app, key, `{"title":"x"}`)
	require.Equal(t, fiber.StatusCreated, status1)

	status2, body2, _ := postBooks(t, app, key, `{"title":"y"}`)
	assert.Equal(t, fiber.StatusConflict, status2)
	assert.Contains(t, body2, "IDEMPOTENCY_CONFLICT")
}

func TestIdempotency_DistinctKeysExecuteIndependently(t *testing.T) {
	app := newIdempotencyApp(t)

	status1, body1, _ := postBooks(t, app, uuid.NewString(), `{"title":"x"}`)
	require.Equal(t, fiber.StatusCreated, status1)

	status2, body2, _ := postBooks(t, app, uuid.NewString(), `{"title":"x"}`)
	require.Equal(t, fiber.StatusCreated, status2)
	assert.NotEqual(t, body1, body2)
}
