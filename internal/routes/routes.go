package routes

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/swagger"
	"github.com/sirupsen/logrus"

	"github.com/hb-library/library-api/internal/auth"
	"github.com/hb-library/library-api/internal/catalog"
	"github.com/hb-library/library-api/internal/config"
	"github.com/hb-library/library-api/internal/media"
	"github.com/hb-library/library-api/internal/metrics"
	"github.com/hb-library/library-api/internal/middleware"
	"github.com/hb-library/library-api/internal/models"
	"github.com/hb-library/library-api/internal/store"
)

// Dependencies carries the constructed services the handlers need.
type Dependencies struct {
	Users    store.UserStore
	Catalog  *catalog.Service
	Comments store.CommentStore
	Access   store.AccessStore
	Books    store.BookStore
	Breaker  *store.Breaker
	Tokens   *auth.TokenService
	Uploader *media.Uploader
}

// Setup configures all API routes
func Setup(app *fiber.App, cfg *config.Config, logger *logrus.Logger, mm *middleware.Manager, deps *Dependencies) {
	authHandler := NewAuthHandler(deps.Users, deps.Tokens, deps.Uploader, logger)
	bookHandler := NewBookHandler(deps.Catalog, deps.Comments, deps.Uploader, logger)
	accessHandler := NewAccessHandler(deps.Access, logger)
	paymentHandler := NewPaymentHandler(deps.Access, cfg.Payment.WebhookSecret, logger)
	adminHandler := NewAdminHandler(mm.RedisClient, deps.Users, deps.Books, deps.Breaker, logger)

	// Health check endpoints (no auth required)
	app.Get("/healthz", healthCheck)
	app.Get("/readyz", readinessCheck(mm))
	app.Get("/version", versionHandler)

	// Metrics endpoint (no auth required)
	app.Get(cfg.Observability.MetricsPath, metrics.PrometheusHandler())

	// Swagger documentation endpoint (no auth required)
	app.Get("/swagger/*", swagger.HandlerDefault)

	// API routes with middleware
	api := app.Group("/api/v1")

	api.Use(metrics.HTTPMetricsMiddleware())
	api.Use(mm.ErrorLogger.Handle())
	api.Use(mm.RateLimit.Handle())

	// Public: registration and login
	authRoutes := api.Group("/auth")
	authRoutes.Post("/register", authHandler.Register)
	authRoutes.Post("/login", authHandler.Login)

	// Public: catalog reads
	api.Get("/books", bookHandler.List)
	api.Get("/books/:id", bookHandler.Get)
	api.Get("/books/:id/comments", bookHandler.ListComments)

	// Public: server-to-server webhook, gated by its own signature
	// check rather than a user token
	api.Post("/payments/webhook", paymentHandler.Webhook)

	// Protected routes (require authentication). Routes registered
	// above this Use are matched first and stay public.
	protected := api.Group("")
	protected.Use(mm.Auth.Authenticate())

	protected.Get("/auth/me", authHandler.Me)
	protected.Put("/auth/me", authHandler.UpdateMe)
	protected.Post("/auth/me/avatar", authHandler.UploadAvatar)

	protected.Post("/books", mm.Idempotency.Handle(), bookHandler.Create)
	protected.Put("/books/:id", bookHandler.Replace)
	protected.Post("/books/:id/rate", bookHandler.Rate)
	protected.Post("/books/:id/like", bookHandler.Like)
	protected.Post("/books/:id/favorite", bookHandler.Favorite)
	protected.Post("/books/:id/comment", bookHandler.Comment)
	protected.Post("/books/:id/download", bookHandler.Download)
	protected.Post("/books/:id/cover", bookHandler.UploadCover)
	protected.Get("/books/:id/access", accessHandler.Check)

	// Admin routes (authentication plus admin role)
	adminRoutes := protected.Group("/admin")
	adminRoutes.Use(middleware.RequireRole(models.RoleAdmin))
	adminRoutes.Get("/stats", adminHandler.Stats)
	adminRoutes.Post("/flush-cache", adminHandler.FlushCache)

	// 404 handler
	app.Use(notFoundHandler)
}

// healthCheck returns the health status of the service
// @Summary Health check
// @Description Check if the service is healthy
// @Tags System
// @Produce json
// @Success 200 {object} map[string]interface{} "Healthy"
// @Router /healthz [get]
func healthCheck(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"service":   "library-api",
	})
}

// readinessCheck checks if the service is ready to accept traffic
// @Summary Readiness check
// @Description Check if the service is ready to accept traffic
// @Tags System
// @Produce json
// @Success 200 {object} map[string]interface{} "Ready"
// @Failure 503 {object} map[string]interface{} "Not ready"
// @Router /readyz [get]
func readinessCheck(mm *middleware.Manager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		redisHealthCheck := middleware.RedisHealthCheck(mm.RedisClient, mm.Logger)
		if err := redisHealthCheck(); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status":    "not ready",
				"reason":    "redis unavailable",
				"error":     err.Error(),
				"timestamp": time.Now().UTC(),
			})
		}

		return c.JSON(fiber.Map{
			"status":    "ready",
			"timestamp": time.Now().UTC(),
			"service":   "library-api",
		})
	}
}

// versionHandler returns version information
// @Summary Version information
// @Description Get service version and build information
// @Tags System
// @Produce json
// @Success 200 {object} map[string]interface{} "Version info"
// @Router /version [get]
func versionHandler(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"service": "library-api",
		"version": getVersion(),
		"commit":  getCommit(),
		"built":   getBuildTime(),
	})
}

// notFoundHandler handles 404 errors
func notFoundHandler(c *fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"error": fiber.Map{
			"code":     "NOT_FOUND",
			"message":  "The requested resource was not found",
			"path":     c.Path(),
			"trace_id": c.Get("X-Request-ID"),
		},
	})
}

// Version info, set during build via -ldflags
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func getVersion() string {
	return version
}

func getCommit() string {
	return commit
}

func getBuildTime() string {
	return buildTime
}
