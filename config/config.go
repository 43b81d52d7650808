package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	// Database configuration
	Database DatabaseConfig

	// Encryption configuration
	Encryption EncryptionConfig

	// Kite Connect configuration
	Kite KiteConfig

	// Scheduler configuration
	Scheduler SchedulerConfig

	// HTTP configuration
	HTTP HTTPConfig
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	URL string
}

// EncryptionConfig holds the at-rest encryption key
type EncryptionConfig struct {
	// Key is the raw 256-bit AES key, decoded from the hex ENCRYPTION_KEY
	// environment variable.
	Key []byte
}

// KiteConfig holds Kite Connect API configuration
type KiteConfig struct {
	BaseURL string
	Timeout time.Duration
}

// SchedulerConfig holds timing configuration for the background jobs
type SchedulerConfig struct {
	// CutoffHour and CutoffMinute define the fixed daily time-of-day at
	// which every token expires. Kite invalidates sessions at 06:00 IST.
	CutoffHour   int
	CutoffMinute int

	// ReconcileInterval is how often the reconciliation job corrects
	// tokens whose expiry passed without being flagged.
	ReconcileInterval time.Duration

	// ReportOffset is how long after the daily cutoff the stats report
	// runs.
	ReportOffset time.Duration
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	Addr               string
	CORSAllowedOrigins string
}

// Load loads configuration from environment variables. A missing or
// malformed encryption key is a fatal error: nothing can be stored or
// read without it.
func Load() (*Config, error) {
	key, err := loadEncryptionKey()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Database: DatabaseConfig{
			URL: os.Getenv("DATABASE_URL"),
		},
		Encryption: EncryptionConfig{
			Key: key,
		},
		Kite: KiteConfig{
			BaseURL: getEnvString("KITE_BASE_URL", ""),
			Timeout: getEnvDuration("KITE_TIMEOUT", 10*time.Second),
		},
		Scheduler: SchedulerConfig{
			CutoffHour:        getEnvIntRange("TOKEN_CUTOFF_HOUR", 6, 0, 23),
			CutoffMinute:      getEnvIntRange("TOKEN_CUTOFF_MINUTE", 0, 0, 59),
			ReconcileInterval: getEnvDuration("RECONCILE_INTERVAL", time.Hour),
			ReportOffset:      getEnvDuration("REPORT_OFFSET", time.Hour),
		},
		HTTP: HTTPConfig{
			Addr:               getEnvString("HTTP_ADDR", ":8080"),
			CORSAllowedOrigins: getEnvString("CORS_ALLOWED_ORIGINS", "*"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadEncryptionKey reads and decodes the ENCRYPTION_KEY environment
// variable, which must be 64 hex characters (a 256-bit key).
func loadEncryptionKey() ([]byte, error) {
	raw := os.Getenv("ENCRYPTION_KEY")
	if raw == "" {
		return nil, fmt.Errorf("ENCRYPTION_KEY not set; generate one with 'openssl rand -hex 32'")
	}

	key, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("ENCRYPTION_KEY is not valid hex: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("ENCRYPTION_KEY must decode to 32 bytes, got %d", len(key))
	}

	return key, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Kite.Timeout <= 0 {
		return fmt.Errorf("KITE_TIMEOUT must be positive, got %s", c.Kite.Timeout)
	}
	if c.Scheduler.ReconcileInterval < time.Minute {
		return fmt.Errorf("RECONCILE_INTERVAL must be at least 1m, got %s", c.Scheduler.ReconcileInterval)
	}
	if c.Scheduler.ReportOffset <= 0 {
		return fmt.Errorf("REPORT_OFFSET must be positive, got %s", c.Scheduler.ReportOffset)
	}
	return nil
}

// HasDatabase returns true if database configuration is available
func (c *Config) HasDatabase() bool {
	return c.Database.URL != ""
}

// Cutoff returns the daily expiry cutoff as a time-of-day pair.
func (c *Config) Cutoff() (hour, minute int) {
	return c.Scheduler.CutoffHour, c.Scheduler.CutoffMinute
}

func getEnvString(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultValue
}

func getEnvIntRange(key string, defaultValue, min, max int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil && parsed >= min && parsed <= max {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultValue
}
