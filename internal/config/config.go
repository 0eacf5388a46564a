// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir            string // Base directory for all databases (always absolute)
	ProviderBaseURL    string // Financial-data provider API base URL
	ProviderToken      string // Provider API token
	IssuerPoliciesPath string // Optional YAML file overriding built-in issuer policies
	LogLevel           string
	Port               int
	DevMode            bool
	Backup             *BackupConfig
}

// BackupConfig holds S3-compatible backup configuration.
// Backups are disabled when no bucket is configured.
type BackupConfig struct {
	Enabled         bool
	Endpoint        string // S3-compatible endpoint (empty for AWS)
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	RetainCount     int // Number of backup archives to keep
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	// Determine data directory with fallback logic
	// 1. Check CARDSENTRY_DATA_DIR environment variable
	// 2. If not set, default to ./data
	// 3. Always resolve to absolute path
	// 4. Ensure directory exists
	dataDir := getEnv("CARDSENTRY_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "data"
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:            absDataDir,
		Port:               getEnvAsInt("PORT", 8040),
		DevMode:            getEnvAsBool("DEV_MODE", false),
		ProviderBaseURL:    getEnv("PROVIDER_BASE_URL", "http://localhost:8090"),
		ProviderToken:      getEnv("PROVIDER_TOKEN", ""),
		IssuerPoliciesPath: getEnv("ISSUER_POLICIES_PATH", ""),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		Backup:             loadBackupConfig(),
	}

	return cfg, nil
}

// loadBackupConfig reads backup settings from the environment.
// Backups are opt-in: without a bucket the service never touches S3.
func loadBackupConfig() *BackupConfig {
	bucket := getEnv("BACKUP_S3_BUCKET", "")

	return &BackupConfig{
		Enabled:         bucket != "",
		Endpoint:        getEnv("BACKUP_S3_ENDPOINT", ""),
		Region:          getEnv("BACKUP_S3_REGION", "auto"),
		Bucket:          bucket,
		AccessKeyID:     getEnv("BACKUP_S3_ACCESS_KEY_ID", ""),
		SecretAccessKey: getEnv("BACKUP_S3_SECRET_ACCESS_KEY", ""),
		RetainCount:     getEnvAsInt("BACKUP_RETAIN_COUNT", 14),
	}
}

// getEnv retrieves an environment variable with a fallback default
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// getEnvAsInt retrieves an environment variable as an integer with a fallback default
func getEnvAsInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

// getEnvAsBool retrieves an environment variable as a boolean with a fallback default
func getEnvAsBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return fallback
}
