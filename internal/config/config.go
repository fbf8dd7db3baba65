// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir         string  // Base directory for all databases (always absolute)
	Port            int     // HTTP listen port
	LogLevel        string  // debug, info, warn, error
	DevMode         bool    // Disables response compression, enables verbose output
	StartingCash    float64 // Cash balance a new portfolio is seeded with
	PriceTimeout    time.Duration
	PriceCacheTTL   time.Duration
	AlphaVantageKey string // Optional fallback quote provider API key
	BackupS3Bucket  string // When set, nightly backups are uploaded to this bucket
	BackupS3Prefix  string // Key prefix inside the backup bucket
	MaintenanceSpec string // Cron spec for the daily maintenance job
	BackupSpec      string // Cron spec for the nightly backup job
	DefaultUserID   string // Identity assumed when the gateway sends no X-User-ID
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("FOLIO_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:         absDataDir,
		Port:            getEnvAsInt("FOLIO_PORT", 8004),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		DevMode:         getEnvAsBool("DEV_MODE", false),
		StartingCash:    getEnvAsFloat("STARTING_CASH", 100000.0),
		PriceTimeout:    time.Duration(getEnvAsInt("PRICE_TIMEOUT_MS", 5000)) * time.Millisecond,
		PriceCacheTTL:   time.Duration(getEnvAsInt("PRICE_CACHE_TTL_SECONDS", 60)) * time.Second,
		AlphaVantageKey: getEnv("ALPHAVANTAGE_API_KEY", ""),
		BackupS3Bucket:  getEnv("BACKUP_S3_BUCKET", ""),
		BackupS3Prefix:  getEnv("BACKUP_S3_PREFIX", "folio-backups"),
		MaintenanceSpec: getEnv("MAINTENANCE_CRON", "0 2 * * *"),
		BackupSpec:      getEnv("BACKUP_CRON", "30 2 * * *"),
		DefaultUserID:   getEnv("DEFAULT_USER_ID", "user_1"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present and sane
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.StartingCash < 0 {
		return fmt.Errorf("starting cash must be non-negative, got %f", c.StartingCash)
	}
	if c.PriceTimeout <= 0 {
		return fmt.Errorf("price timeout must be positive")
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}
