package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/hb-library/library-api/docs" // Swagger docs
	"github.com/hb-library/library-api/internal/auth"
	"github.com/hb-library/library-api/internal/catalog"
	"github.com/hb-library/library-api/internal/config"
	"github.com/hb-library/library-api/internal/logging"
	"github.com/hb-library/library-api/internal/media"
	"github.com/hb-library/library-api/internal/metrics"
	"github.com/hb-library/library-api/internal/middleware"
	"github.com/hb-library/library-api/internal/routes"
	"github.com/hb-library/library-api/internal/store"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/pprof"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/sirupsen/logrus"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// @title Library API
// @version 1.0
// @description Backend for the HB Library book catalog and reading platform

// @contact.name API Support

// @license.name Apache 2.0
// @license.url http://www.apache.org/licenses/LICENSE-2.0.html

// @host localhost:5000
// @BasePath /api/v1

// @securityDefinitions.apikey Bearer
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger := logging.New(cfg)

	// Initialize metrics
	if err := metrics.Init(); err != nil {
		logger.WithError(err).Fatal("Failed to initialize metrics")
	}

	// Initialize tracing
	tracingShutdown, err := middleware.InitTracing(&cfg.Observability, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to setup tracing")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracingShutdown(shutdownCtx); err != nil {
			logger.WithError(err).Error("Failed to shutdown tracing")
		}
	}()

	// Set global text map propagator for distributed tracing
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	ctx := context.Background()

	// Initialize AWS SDK and DynamoDB-backed stores
	dynamoClient, err := store.NewDynamoClient(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize DynamoDB client")
	}

	breaker := store.NewBreaker(logger)
	users := store.NewDynamoUserStore(dynamoClient, cfg.DynamoDB.UsersTableName, breaker, logger)
	books := store.NewDynamoBookStore(dynamoClient, cfg.DynamoDB.BooksTableName, breaker, logger)
	comments := store.NewDynamoCommentStore(dynamoClient, cfg.DynamoDB.CommentsTableName, breaker, logger)
	access := store.NewDynamoAccessStore(dynamoClient, cfg.DynamoDB.AccessTableName, breaker, logger)

	// Token issuance and media uploads
	tokens := auth.NewTokenService(&cfg.JWT)

	uploader, err := media.NewUploader(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize media uploader")
	}

	// Initialize middleware manager (Redis-backed rate limiting and idempotency)
	middlewareManager, err := middleware.NewManager(cfg, logger, tokens, users)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize middleware manager")
	}
	defer middlewareManager.Close()

	// Create Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "Library API",
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		BodyLimit:    int(media.MaxUploadBytes) + 1024,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}

			logger.WithError(err).WithFields(logrus.Fields{
				"method": c.Method(),
				"path":   c.Path(),
				"status": code,
			}).Error("Request error")

			return c.Status(code).JSON(fiber.Map{
				"error": fiber.Map{
					"code":     "INTERNAL_ERROR",
					"message":  "Internal server error",
					"trace_id": c.Get("X-Request-ID"),
				},
			})
		},
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(helmet.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORS.AllowOrigins,
		AllowMethods:     "GET,POST,HEAD,PUT,DELETE,PATCH,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization,X-Requested-With,Idempotency-Key,X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400,
	}))
	app.Use(otelfiber.Middleware())

	// pprof for memory profiling (accessible at /debug/pprof/)
	app.Use(pprof.New())

	// Setup routes
	routes.Setup(app, cfg, logger, middlewareManager, &routes.Dependencies{
		Users:    users,
		Catalog:  catalog.NewService(books, logger),
		Comments: comments,
		Access:   access,
		Books:    books,
		Breaker:  breaker,
		Tokens:   tokens,
		Uploader: uploader,
	})

	// Graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-c
		logger.Info("Gracefully shutting down...")
		if err := app.Shutdown(); err != nil {
			logger.WithError(err).Error("Server shutdown failed")
		}
	}()

	// Start server
	logger.WithField("port", cfg.Server.Port).Info("Starting Library API server")
	if err := app.Listen(":" + cfg.Server.Port); err != nil {
		logger.WithError(err).Fatal("Server failed to start")
	}
}
