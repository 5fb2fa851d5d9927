// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Job broker
	RedisURL string // Redis connection string (optional, uses in-memory broker if not set)

	// Credential sealing
	SealKey string // hex-encoded 32-byte key for sealing store API credentials

	// WhatsApp messaging provider
	WhatsAppAPIURL string
	WhatsAppToken  string

	// Periodic discovery cadence
	OrderScanSpec     string        // cron spec for the order sync scan
	ProductScanSpec   string        // cron spec for the product sync scan
	OrderScanExpiry   time.Duration // queued fetch_orders jobs older than this are dropped
	ProductScanExpiry time.Duration

	// Win-back campaign
	CampaignSpec      string        // cron spec for the dormant-customer campaign
	CampaignCutoff    time.Duration // customers quiet longer than this are targeted
	CampaignLanguages []string      // message languages, in send order

	// Worker pool
	WorkerConcurrency int

	// Observability
	OTLPEndpoint string // OTLP gRPC endpoint; empty disables tracing
}

// Defaults
const (
	DefaultPort              = "8080"
	DefaultEnv               = "development"
	DefaultLogLevel          = "info"
	DefaultOrderScanSpec     = "@every 1m"
	DefaultProductScanSpec   = "0 */2 * * *"
	DefaultOrderScanExpiry   = 50 * time.Second
	DefaultProductScanExpiry = 3500 * time.Second
	DefaultWorkerConcurrency = 4
	DefaultCampaignSpec      = "0 10 * * *"
	DefaultCampaignCutoff    = 60 * 24 * time.Hour
	DefaultCampaignLanguages = "en"
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:              getEnv("PORT", DefaultPort),
		Env:               getEnv("ENV", DefaultEnv),
		LogLevel:          getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:       os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		RedisURL:          os.Getenv("REDIS_URL"),    // Optional, uses in-memory broker if not set
		SealKey:           os.Getenv("SEAL_KEY"),     // Required, no default
		WhatsAppAPIURL:    os.Getenv("WHATSAPP_API_URL"),
		WhatsAppToken:     os.Getenv("WHATSAPP_TOKEN"),
		OrderScanSpec:     getEnv("ORDER_SCAN_SPEC", DefaultOrderScanSpec),
		ProductScanSpec:   getEnv("PRODUCT_SCAN_SPEC", DefaultProductScanSpec),
		OrderScanExpiry:   getEnvDuration("ORDER_SCAN_EXPIRY", DefaultOrderScanExpiry),
		ProductScanExpiry: getEnvDuration("PRODUCT_SCAN_EXPIRY", DefaultProductScanExpiry),
		CampaignSpec:      getEnv("CAMPAIGN_SPEC", DefaultCampaignSpec),
		CampaignCutoff:    getEnvDuration("CAMPAIGN_CUTOFF", DefaultCampaignCutoff),
		CampaignLanguages: splitList(getEnv("CAMPAIGN_LANGUAGES", DefaultCampaignLanguages)),
		WorkerConcurrency: int(getEnvInt64("WORKER_CONCURRENCY", DefaultWorkerConcurrency)),
		OTLPEndpoint:      os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if c.SealKey == "" {
		return fmt.Errorf("SEAL_KEY is required")
	}

	if len(c.SealKey) != 64 {
		return fmt.Errorf("SEAL_KEY must be 64 hex characters (32 bytes)")
	}

	if c.WorkerConcurrency < 1 {
		return fmt.Errorf("WORKER_CONCURRENCY must be at least 1")
	}

	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
