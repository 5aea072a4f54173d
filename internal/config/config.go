package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	Stripe    StripeConfig
	Webhook   WebhookConfig
	SMS       SMSConfig
	Email     EmailConfig
	Fees      FeeConfig
	Payout    PayoutConfig
	Scheduler SchedulerConfig
	Queue     QueueConfig
	CORS      CORSConfig
	Security  SecurityConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port        string
	Environment string // development, staging, production
	LogLevel    string // debug, info, warn, error
}

// DatabaseConfig holds database-related configuration.
// The URL must carry service-level credentials: the webhook path writes
// bookings, payments and transfers without per-user row checks.
type DatabaseConfig struct {
	URL                string
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
}

// JWTConfig holds JWT-related configuration
type JWTConfig struct {
	Secret            string
	Issuer            string
	AccessTokenExpiry time.Duration
}

// StripeConfig holds payment gateway credentials
type StripeConfig struct {
	SecretKey string // sk_live_... / sk_test_...
	Currency  string // lower-case ISO code used for transfers
}

// WebhookConfig holds webhook signing secrets and processing limits
type WebhookConfig struct {
	PrimarySecret     string // platform endpoint (whsec_...)
	SecondarySecret   string // Connect endpoint, optional
	ProcessingTimeout time.Duration
	StoreRawBody      bool
}

// SMSConfig holds SMS provider configuration
type SMSConfig struct {
	Mode          string // "dev" logs messages, "production" sends through Twilio
	AccountSID    string
	AuthToken     string
	DefaultSender string
	// Region senders keyed by validator.Region value (north_america, uk, australia, new_zealand)
	RegionSenders  map[string]string
	DefaultCountry string // calling code assumed for national-format numbers
}

// EmailConfig holds SendGrid configuration
type EmailConfig struct {
	Mode        string // "dev" or "production"
	APIKey      string
	FromEmail   string
	FromName    string
	SandboxMode bool
}

// FeeConfig holds platform fee settings (percent values, e.g. 15 = 15%)
type FeeConfig struct {
	PlatformFeePercent            float64
	SubscriptionProcessingPercent float64
}

// PayoutConfig holds payout batching settings
type PayoutConfig struct {
	BatchSize int
	Currency  string
}

// SchedulerConfig holds cron expressions (with seconds) for background jobs
type SchedulerConfig struct {
	Enabled            bool
	WeeklyPayoutBatch  string
	AssignmentRetry    string
	TransferBackfill   string
	BookingReminders   string
	AssignmentBatchMax int
}

// QueueConfig holds RabbitMQ configuration; an empty URL disables the queue
type QueueConfig struct {
	URL               string
	Exchange          string
	NotificationQueue string
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	EnableRequestLog bool
	EnableAuditLog   bool
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8080"),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
		},
		Database: DatabaseConfig{
			URL:                getEnv("DATABASE_URL", ""),
			MaxConnections:     getEnvAsInt("DATABASE_MAX_CONNECTIONS", 10),
			MaxIdleConnections: getEnvAsInt("DATABASE_MAX_IDLE_CONNECTIONS", 5),
			ConnMaxLifetime:    time.Duration(getEnvAsInt("DATABASE_CONN_MAX_LIFETIME", 300)) * time.Second,
		},
		JWT: JWTConfig{
			Secret:            getEnv("JWT_SECRET", ""),
			Issuer:            getEnv("JWT_ISSUER", "cleanswift"),
			AccessTokenExpiry: time.Duration(getEnvAsInt("JWT_ACCESS_TOKEN_EXPIRY", 3600)) * time.Second,
		},
		Stripe: StripeConfig{
			SecretKey: getEnv("STRIPE_SECRET_KEY", ""),
			Currency:  strings.ToLower(getEnv("STRIPE_CURRENCY", "usd")),
		},
		Webhook: WebhookConfig{
			PrimarySecret:     getEnv("STRIPE_WEBHOOK_SECRET", ""),
			SecondarySecret:   getEnv("STRIPE_CONNECT_WEBHOOK_SECRET", ""),
			ProcessingTimeout: time.Duration(getEnvAsInt("WEBHOOK_PROCESSING_TIMEOUT", 20)) * time.Second,
			StoreRawBody:      getEnvAsBool("WEBHOOK_STORE_RAW_BODY", false),
		},
		SMS: SMSConfig{
			Mode:          getEnv("SMS_MODE", "dev"),
			AccountSID:    getEnv("TWILIO_ACCOUNT_SID", ""),
			AuthToken:     getEnv("TWILIO_AUTH_TOKEN", ""),
			DefaultSender: getEnv("TWILIO_DEFAULT_FROM", ""),
			RegionSenders: map[string]string{
				"north_america": getEnv("TWILIO_FROM_NORTH_AMERICA", ""),
				"uk":            getEnv("TWILIO_FROM_UK", ""),
				"australia":     getEnv("TWILIO_FROM_AUSTRALIA", ""),
				"new_zealand":   getEnv("TWILIO_FROM_NEW_ZEALAND", ""),
			},
			DefaultCountry: getEnv("SMS_DEFAULT_COUNTRY_CODE", "1"),
		},
		Email: EmailConfig{
			Mode:        getEnv("EMAIL_MODE", "dev"),
			APIKey:      getEnv("SENDGRID_API_KEY", ""),
			FromEmail:   getEnv("SENDGRID_FROM_EMAIL", "notifications@cleanswift.app"),
			FromName:    getEnv("SENDGRID_FROM_NAME", "CleanSwift"),
			SandboxMode: getEnvAsBool("SENDGRID_SANDBOX_MODE", false),
		},
		Fees: FeeConfig{
			PlatformFeePercent:            getEnvAsFloat("PLATFORM_FEE_PERCENT", 15),
			SubscriptionProcessingPercent: getEnvAsFloat("SUBSCRIPTION_PROCESSING_FEE_PERCENT", 3),
		},
		Payout: PayoutConfig{
			BatchSize: getEnvAsInt("PAYOUT_BATCH_SIZE", 200),
			Currency:  strings.ToLower(getEnv("PAYOUT_CURRENCY", getEnv("STRIPE_CURRENCY", "usd"))),
		},
		Scheduler: SchedulerConfig{
			Enabled:            getEnvAsBool("SCHEDULER_ENABLED", true),
			WeeklyPayoutBatch:  getEnv("CRON_WEEKLY_PAYOUT_BATCH", "0 0 6 * * 1"),
			AssignmentRetry:    getEnv("CRON_ASSIGNMENT_RETRY", "0 */10 * * * *"),
			TransferBackfill:   getEnv("CRON_TRANSFER_BACKFILL", "0 30 5 * * *"),
			BookingReminders:   getEnv("CRON_BOOKING_REMINDERS", "0 0 18 * * *"),
			AssignmentBatchMax: getEnvAsInt("ASSIGNMENT_RETRY_BATCH", 50),
		},
		Queue: QueueConfig{
			URL:               getEnv("RABBITMQ_URL", ""),
			Exchange:          getEnv("RABBITMQ_EXCHANGE", "cleanswift.events"),
			NotificationQueue: getEnv("RABBITMQ_NOTIFICATION_QUEUE", "detailer-notifications"),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getEnvAsSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}),
			AllowedHeaders: getEnvAsSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type", "Authorization"}),
		},
		Security: SecurityConfig{
			EnableRequestLog: getEnvAsBool("ENABLE_REQUEST_LOGGING", true),
			EnableAuditLog:   getEnvAsBool("ENABLE_AUDIT_LOGGING", true),
		},
	}

	// Validate required configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate validates the configuration.
// Stripe credentials are deliberately not required here: the webhook
// endpoint reports missing gateway configuration as a 500 on its own.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if c.SMS.Mode == "production" {
		if c.SMS.AccountSID == "" || c.SMS.AuthToken == "" {
			return fmt.Errorf("TWILIO_ACCOUNT_SID and TWILIO_AUTH_TOKEN are required in production SMS mode")
		}
		if c.SMS.DefaultSender == "" {
			return fmt.Errorf("TWILIO_DEFAULT_FROM is required in production SMS mode")
		}
	} else if c.SMS.Mode != "dev" {
		return fmt.Errorf("invalid SMS mode: %s (must be 'dev' or 'production')", c.SMS.Mode)
	}

	if c.Email.Mode == "production" && c.Email.APIKey == "" {
		return fmt.Errorf("SENDGRID_API_KEY is required in production email mode")
	}

	if c.Fees.PlatformFeePercent < 0 || c.Fees.PlatformFeePercent > 100 {
		return fmt.Errorf("PLATFORM_FEE_PERCENT must be between 0 and 100, got %v", c.Fees.PlatformFeePercent)
	}
	if c.Fees.SubscriptionProcessingPercent < 0 || c.Fees.SubscriptionProcessingPercent > 100 {
		return fmt.Errorf("SUBSCRIPTION_PROCESSING_FEE_PERCENT must be between 0 and 100, got %v", c.Fees.SubscriptionProcessingPercent)
	}

	if c.Payout.BatchSize <= 0 {
		return fmt.Errorf("PAYOUT_BATCH_SIZE must be positive")
	}

	return nil
}

// StripeConfigured reports whether the gateway API key is present
func (c *Config) StripeConfigured() bool {
	return c.Stripe.SecretKey != ""
}

// Helper functions to get environment variables

func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Invalid integer value for %s, using default: %d", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		log.Printf("Invalid number value for %s, using default: %v", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		log.Printf("Invalid boolean value for %s, using default: %t", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var result []string
	for _, v := range strings.Split(valueStr, ",") {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
