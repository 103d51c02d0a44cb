package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_server_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status_code"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_server_requests_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status_code"},
	)

	// DynamoDB call metrics
	storeOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "store_operation_duration_seconds",
			Help:    "DynamoDB operation duration in seconds",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		},
		[]string{"table", "operation", "status"},
	)

	// Authentication metrics
	authFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_failures_total",
			Help: "Total number of rejected authentication attempts",
		},
		[]string{"reason"}, // missing_token/expired/invalid_signature/unknown_user/bad_credentials
	)

	// Rating metrics
	ratingWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rating_writes_total",
			Help: "Total number of rating writes",
		},
		[]string{"outcome"}, // created/replaced/contention
	)

	ratingRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rating_write_retries_total",
			Help: "Total number of rating writes retried after losing the version race",
		},
	)

	// Payment webhook metrics
	webhookEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_webhook_events_total",
			Help: "Total number of payment webhook deliveries",
		},
		[]string{"status"}, // granted/duplicate/rejected/invalid_signature
	)

	// Rate limiting metrics
	rateLimitDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratelimit_dropped_total",
			Help: "Total number of requests dropped due to rate limiting",
		},
		[]string{"key_type"}, // user or ip
	)

	// Idempotency metrics
	idempotencyHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "idempotency_hits_total",
			Help: "Total number of idempotency hits",
		},
		[]string{"type"}, // hit or miss
	)
)

// Init registers all collectors
func Init() error {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		storeOperationDuration,
		authFailuresTotal,
		ratingWritesTotal,
		ratingRetriesTotal,
		webhookEventsTotal,
		rateLimitDroppedTotal,
		idempotencyHitsTotal,
	)

	return nil
}

// HTTPMetricsMiddleware records HTTP metrics
func HTTPMetricsMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		duration := time.Since(start).Seconds()
		method := c.Method()
		route := c.Route().Path
		if route == "" {
			route = c.Path()
		}
		statusCode := strconv.Itoa(c.Response().StatusCode())

		httpRequestsTotal.WithLabelValues(method, route, statusCode).Inc()
		httpRequestDuration.WithLabelValues(method, route, statusCode).Observe(duration)

		return err
	}
}

// RecordStoreOperation records a DynamoDB call
func RecordStoreOperation(table, operation, status string, duration time.Duration) {
	storeOperationDuration.WithLabelValues(table, operation, status).Observe(duration.Seconds())
}

// RecordAuthFailure records a rejected authentication attempt
func RecordAuthFailure(reason string) {
	authFailuresTotal.WithLabelValues(reason).Inc()
}

// RecordRatingWrite records the outcome of a rating write
func RecordRatingWrite(outcome string) {
	ratingWritesTotal.WithLabelValues(outcome).Inc()
}

// RecordRatingRetry records a rating write retried after a version conflict
func RecordRatingRetry() {
	ratingRetriesTotal.Inc()
}

// RecordWebhookEvent records a payment webhook delivery
func RecordWebhookEvent(status string) {
	webhookEventsTotal.WithLabelValues(status).Inc()
}

// RecordRateLimitDrop records rate limit drops
func RecordRateLimitDrop(keyType string) {
	rateLimitDroppedTotal.WithLabelValues(keyType).Inc()
}

// RecordIdempotencyHit records idempotency cache hits/misses
func RecordIdempotencyHit(hitType string) {
	idempotencyHitsTotal.WithLabelValues(hitType).Inc()
}

// PrometheusHandler returns the Prometheus metrics handler
func PrometheusHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
