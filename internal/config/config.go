// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir           string // Base directory for all databases (always absolute)
	ConfigDir         string // Directory holding factor/scenario catalogs (YAML)
	LogLevel          string
	Port              int
	DevMode           bool
	PortfolioWorkers  int     // Max portfolios processed concurrently
	RegressionWorkers int     // Worker pool size for (position, factor) OLS fits
	BatchSchedule     string  // Cron expression for the nightly batch
	WeeklySchedule    string  // Cron expression for the weekly deep correlation refresh
	MinimumCoverage   float64 // Quality score required for a "passed" report
	Backup            BackupConfig
}

// BackupConfig holds post-batch S3 backup configuration.
// Backups are disabled when Bucket is empty.
type BackupConfig struct {
	Bucket string
	Prefix string
	Region string
}

// Load loads configuration from environment variables.
// A .env file in the working directory is honored when present.
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if it doesn't)
	_ = godotenv.Load()

	dataDir := getEnv("RISKCORE_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data dir to absolute path: %w", err)
	}

	configDir := getEnv("RISKCORE_CONFIG_DIR", "./config")
	absConfigDir, err := filepath.Abs(configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config dir to absolute path: %w", err)
	}

	port, err := strconv.Atoi(getEnv("RISKCORE_PORT", "8090"))
	if err != nil {
		return nil, fmt.Errorf("invalid RISKCORE_PORT: %w", err)
	}

	portfolioWorkers, err := strconv.Atoi(getEnv("RISKCORE_PORTFOLIO_WORKERS", "4"))
	if err != nil {
		return nil, fmt.Errorf("invalid RISKCORE_PORTFOLIO_WORKERS: %w", err)
	}

	regressionWorkers, err := strconv.Atoi(getEnv("RISKCORE_REGRESSION_WORKERS",
		strconv.Itoa(runtime.NumCPU())))
	if err != nil {
		return nil, fmt.Errorf("invalid RISKCORE_REGRESSION_WORKERS: %w", err)
	}

	minCoverage, err := strconv.ParseFloat(getEnv("RISKCORE_MINIMUM_COVERAGE", "0.90"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid RISKCORE_MINIMUM_COVERAGE: %w", err)
	}

	return &Config{
		DataDir:           absDataDir,
		ConfigDir:         absConfigDir,
		LogLevel:          getEnv("RISKCORE_LOG_LEVEL", "info"),
		Port:              port,
		DevMode:           getEnv("RISKCORE_DEV_MODE", "false") == "true",
		PortfolioWorkers:  portfolioWorkers,
		RegressionWorkers: regressionWorkers,
		// 01:30 every weekday night, after market data settles
		BatchSchedule: getEnv("RISKCORE_BATCH_SCHEDULE", "0 30 1 * * TUE-SAT"),
		// Sunday morning deep correlation refresh
		WeeklySchedule:  getEnv("RISKCORE_WEEKLY_SCHEDULE", "0 0 6 * * SUN"),
		MinimumCoverage: minCoverage,
		Backup: BackupConfig{
			Bucket: getEnv("RISKCORE_BACKUP_BUCKET", ""),
			Prefix: getEnv("RISKCORE_BACKUP_PREFIX", "riskcore-backups"),
			Region: getEnv("RISKCORE_BACKUP_REGION", ""),
		},
	}, nil
}

// DatabasePath returns the full path for a named database file.
func (c *Config) DatabasePath(name string) string {
	return filepath.Join(c.DataDir, name+".db")
}

// getEnv retrieves an environment variable value, returning a fallback if
// the variable is not set or is empty.
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
