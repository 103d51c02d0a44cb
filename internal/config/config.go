package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Server        ServerConfig        `envconfig:"SERVER"`
	Redis         RedisConfig         `envconfig:"REDIS"`
	JWT           JWTConfig           `envconfig:"JWT"`
	DynamoDB      DynamoDBConfig      `envconfig:"DYNAMODB"`
	Payment       PaymentConfig       `envconfig:"PAYMENT"`
	Media         MediaConfig         `envconfig:"MEDIA"`
	RateLimit     RateLimitConfig     `envconfig:"RATE_LIMIT"`
	Observability ObservabilityConfig `envconfig:"OBSERVABILITY"`
	CORS          CORSConfig          `envconfig:"CORS"`
	Log           LogConfig           `envconfig:"LOG"`
	AWS           AWSConfig           `envconfig:"AWS"`
	Admin         AdminConfig         `envconfig:"ADMIN"`
}

type AWSConfig struct {
	Region     string `envconfig:"REGION" default:"eu-west-1"`
	Profile    string `envconfig:"PROFILE" default:""`
	SecretName string `envconfig:"SECRET_NAME" default:""`
}

type ServerConfig struct {
	Port         string        `envconfig:"PORT" default:"5000"`
	Environment  string        `envconfig:"ENVIRONMENT" default:"development"`
	ReadTimeout  time.Duration `envconfig:"READ_TIMEOUT" default:"30s"`
	WriteTimeout time.Duration `envconfig:"WRITE_TIMEOUT" default:"30s"`
	IdleTimeout  time.Duration `envconfig:"IDLE_TIMEOUT" default:"120s"`
}

type RedisConfig struct {
	Address             string        `envconfig:"ADDRESS" default:"localhost:6379"`
	Password            string        `envconfig:"PASSWORD" default:""`
	Database            int           `envconfig:"DATABASE" default:"0"`
	MaxRetries          int           `envconfig:"MAX_RETRIES" default:"3"`
	PoolSize            int           `envconfig:"POOL_SIZE" default:"100"`
	PoolTimeout         time.Duration `envconfig:"POOL_TIMEOUT" default:"4s"`
	TLSEnabled          bool          `envconfig:"TLS_ENABLED" default:"false"`
	PasswordFromSecrets bool          `envconfig:"PASSWORD_FROM_SECRETS" default:"false"`
}

// JWTConfig holds token issuance settings. Secret has no default on
// purpose: the service refuses to start without one.
type JWTConfig struct {
	Secret   string        `envconfig:"SECRET" required:"true"`
	Issuer   string        `envconfig:"ISSUER" default:"library-api"`
	TokenTTL time.Duration `envconfig:"TOKEN_TTL" default:"10h"`
}

type DynamoDBConfig struct {
	UsersTableName    string `envconfig:"USERS_TABLE_NAME" default:"library-users"`
	BooksTableName    string `envconfig:"BOOKS_TABLE_NAME" default:"library-books"`
	CommentsTableName string `envconfig:"COMMENTS_TABLE_NAME" default:"library-comments"`
	AccessTableName   string `envconfig:"ACCESS_TABLE_NAME" default:"library-book-access"`
	Region            string `envconfig:"REGION" default:"eu-west-1"`
	Endpoint          string `envconfig:"ENDPOINT" default:""`
}

// PaymentConfig covers the inbound payment-provider webhook. The
// webhook secret verifies the provider's detached JWS signature and is
// required in every environment.
type PaymentConfig struct {
	WebhookSecret string `envconfig:"WEBHOOK_SECRET" required:"true"`
}

type MediaConfig struct {
	Bucket        string `envconfig:"BUCKET" default:"library-media"`
	Region        string `envconfig:"REGION" default:"eu-west-1"`
	PublicBaseURL string `envconfig:"PUBLIC_BASE_URL" default:""`
}

type RateLimitConfig struct {
	RPS         int           `envconfig:"RPS" default:"50"`
	Burst       int           `envconfig:"BURST" default:"100"`
	WindowSize  time.Duration `envconfig:"WINDOW_SIZE" default:"1s"`
	Enabled     bool          `envconfig:"ENABLED" default:"true"`
	ExemptPaths []string      `envconfig:"EXEMPT_PATHS" default:"/healthz,/readyz,/metrics"`
}

type ObservabilityConfig struct {
	MetricsPath    string  `envconfig:"METRICS_PATH" default:"/metrics"`
	OTLPEndpoint   string  `envconfig:"OTLP_ENDPOINT" default:"http://localhost:4318"`
	TracingEnabled bool    `envconfig:"TRACING_ENABLED" default:"false"`
	SampleRate     float64 `envconfig:"SAMPLE_RATE" default:"0.1"`
}

type CORSConfig struct {
	AllowOrigins string `envconfig:"ALLOW_ORIGINS" default:"http://localhost:3000"`
}

type LogConfig struct {
	Level  string `envconfig:"LEVEL" default:"info"`
	Format string `envconfig:"FORMAT" default:"json"`
}

// AdminConfig seeds the bootstrap admin account (cmd/seedadmin).
type AdminConfig struct {
	Email    string `envconfig:"EMAIL" default:"admin@hblibrary.com"`
	Password string `envconfig:"PASSWORD" default:""`
	Name     string `envconfig:"NAME" default:"Admin User"`
}

func Load() (*Config, error) {
	var cfg Config

	// Load from environment variables
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment config: %w", err)
	}

	// Additional processing for slice fields that envconfig doesn't handle well
	if exemptPaths := os.Getenv("RATE_LIMIT_EXEMPT_PATHS"); exemptPaths != "" {
		cfg.RateLimit.ExemptPaths = strings.Split(exemptPaths, ",")
		for i := range cfg.RateLimit.ExemptPaths {
			cfg.RateLimit.ExemptPaths[i] = strings.TrimSpace(cfg.RateLimit.ExemptPaths[i])
		}
	}

	// Validate required fields
	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func validateConfig(cfg *Config) error {
	// Validate port
	if port, err := strconv.Atoi(cfg.Server.Port); err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("invalid server port: %s", cfg.Server.Port)
	}

	// Token lifetime is fixed at 10h by default; anything outside 1m..24h
	// is almost certainly a misconfigured unit
	if cfg.JWT.TokenTTL < time.Minute || cfg.JWT.TokenTTL > 24*time.Hour {
		return fmt.Errorf("invalid token TTL: %s", cfg.JWT.TokenTTL)
	}

	if len(cfg.JWT.Secret) < 16 {
		return fmt.Errorf("JWT secret must be at least 16 characters")
	}

	// Validate sample rate
	if cfg.Observability.SampleRate < 0 || cfg.Observability.SampleRate > 1 {
		return fmt.Errorf("invalid tracing sample rate: %f", cfg.Observability.SampleRate)
	}

	return nil
}
