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
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// Redis configuration (poll gate; optional)
	Redis RedisConfig

	// Receiving bank account descriptor
	Bank BankConfig

	// Bank aggregator transaction feed
	Feed FeedConfig

	// Reconciliation behaviour
	Recon ReconConfig

	// Operator JWT configuration
	JWT JWTConfig

	// CORS configuration
	CORS CORSConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port        string
	Environment string // development, staging, production
	LogLevel    string // debug, info, warn, error
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	URL                string
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
}

// RedisConfig holds the optional Redis connection used for the distributed
// feed poll gate. When Addr is empty the service falls back to an
// in-process gate.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// BankConfig describes the account customers transfer into. Rendered into
// the QR payload, never used to call the bank directly.
type BankConfig struct {
	AcquirerID    string // NAPAS bank BIN, e.g. "970436"
	BankCode      string // Short code used by the quick-link host, e.g. "vietcombank"
	AccountNumber string
	AccountName   string
}

// FeedConfig holds transaction feed API configuration
type FeedConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration // Per-request bound, distinct from rate-limit backoff
}

// ReconConfig holds reconciliation behaviour configuration
type ReconConfig struct {
	IntentTTL        time.Duration // Window before an unmatched intent expires
	LookbackDays     int           // Default feed window
	MaxLookbackDays  int           // Widen-on-miss cap
	PollInterval     time.Duration // Background sweep cadence
	RateLimitFloor   time.Duration // Minimum backoff when the feed rate-limits
	ExpireBatchLimit int           // Intents expired per sweep
}

// JWTConfig holds operator token configuration
type JWTConfig struct {
	Secret      string
	TokenExpiry time.Duration
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
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
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Bank: BankConfig{
			AcquirerID:    getEnv("BANK_ACQUIRER_ID", ""),
			BankCode:      getEnv("BANK_CODE", ""),
			AccountNumber: getEnv("BANK_ACCOUNT_NUMBER", ""),
			AccountName:   getEnv("BANK_ACCOUNT_NAME", ""),
		},
		Feed: FeedConfig{
			BaseURL: getEnv("FEED_API_URL", ""),
			APIKey:  getEnv("FEED_API_KEY", ""),
			Timeout: time.Duration(getEnvAsInt("FEED_TIMEOUT_SECONDS", 10)) * time.Second,
		},
		Recon: ReconConfig{
			IntentTTL:        time.Duration(getEnvAsInt("INTENT_TTL_MINUTES", 30)) * time.Minute,
			LookbackDays:     getEnvAsInt("RECON_LOOKBACK_DAYS", 7),
			MaxLookbackDays:  getEnvAsInt("RECON_MAX_LOOKBACK_DAYS", 30),
			PollInterval:     time.Duration(getEnvAsInt("RECON_POLL_INTERVAL_SECONDS", 30)) * time.Second,
			RateLimitFloor:   time.Duration(getEnvAsInt("RECON_RATE_LIMIT_FLOOR_SECONDS", 60)) * time.Second,
			ExpireBatchLimit: getEnvAsInt("RECON_EXPIRE_BATCH_LIMIT", 100),
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", ""),
			TokenExpiry: time.Duration(getEnvAsInt("JWT_TOKEN_EXPIRY", 3600)) * time.Second,
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getEnvAsSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
			AllowedHeaders: getEnvAsSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type", "Authorization"}),
		},
	}

	// Validate required configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if c.Bank.AcquirerID == "" || c.Bank.AccountNumber == "" || c.Bank.BankCode == "" {
		return fmt.Errorf("BANK_ACQUIRER_ID, BANK_CODE and BANK_ACCOUNT_NUMBER are required")
	}

	if c.Feed.BaseURL == "" {
		return fmt.Errorf("FEED_API_URL is required")
	}

	if c.Recon.LookbackDays <= 0 || c.Recon.MaxLookbackDays < c.Recon.LookbackDays {
		return fmt.Errorf("invalid reconciliation window: lookback %d, max %d",
			c.Recon.LookbackDays, c.Recon.MaxLookbackDays)
	}

	return nil
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

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var result []string
	for _, v := range strings.Split(valueStr, ",") {
		trimmed := strings.TrimSpace(v)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
