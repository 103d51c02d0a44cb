package middleware

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hb-library/library-api/internal/config"
)

func newRateLimitApp(t *testing.T, cfg *config.RateLimitConfig) *fiber.App {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	mw := NewRateLimitMiddleware(cfg, client, quietLogger())

	app := fiber.New()
	app.Use(mw.Handle())
	app.Get("/books", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	return app
}

func TestRateLimit_AllowsWithinBurst(t *testing.T) {
	app := newRateLimitApp(t, &config.RateLimitConfig{
		RPS:        10,
		Burst:      5,
		WindowSize: time.Second,
		Enabled:    true,
	})

	for i := 0; i < 5; i++ {
		resp, err := app.Test(httptest.NewRequest("GET", "/books", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode, "request %d", i+1)
	}
}

func TestRateLimit_RejectsOverBurst(t *testing.T) {
	app := newRateLimitApp(t, &config.RateLimitConfig{
		RPS:        1,
		Burst:      2,
		WindowSize: time.Minute,
		Enabled:    true,
	})

	for i := 0; i < 2; i++ {
		resp, err := app.Test(httptest.NewRequest("GET", "/books", nil))
		require.NoError(t, err)
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
	}

	resp, err := app.Test(httptest.NewRequest("GET", "/books", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
}

func TestRateLimit_ExemptPath(t *testing.T) {
	app := newRateLimitApp(t, &config.RateLimitConfig{
		RPS:         1,
		Burst:       1,
		WindowSize:  time.Minute,
		Enabled:     true,
		ExemptPaths: []string{"/healthz"},
	})

	for i := 0; i < 5; i++ {
		resp, err := app.Test(httptest.NewRequest("GET", "/healthz", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	}
}

func TestRateLimit_Disabled(t *testing.T) {
	app := newRateLimitApp(t, &config.RateLimitConfig{
		RPS:        1,
		Burst:      1,
		WindowSize: time.Minute,
		Enabled:    false,
	})

	for i := 0; i < 5; i++ {
		resp, err := app.Test(httptest.NewRequest("GET", "/books", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	}
}

func TestRateLimit_FailsOpenWhenRedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	mw := NewRateLimitMiddleware(&config.RateLimitConfig{
		RPS:        1,
		Burst:      1,
		WindowSize: time.Minute,
		Enabled:    true,
	}, client, quietLogger())

	app := fiber.New()
	app.Use(mw.Handle())
	app.Get("/books", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	mr.Close()

	resp, err := app.Test(httptest.NewRequest("GET", "/books", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}
