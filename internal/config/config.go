// Package config provides configuration management functionality.
//
// This package handles loading configuration from environment variables
// (and an optional .env file). Configuration Loading Order:
// 1. Load from .env file (if present)
// 2. Read environment variables, falling back to defaults
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	DataDir  string // base directory for the SQLite stores (always absolute)
	Port     int    // HTTP server port
	LogLevel string // zerolog level name (debug, info, warn, error)
	DevMode  bool

	// C1 market/factor data access
	MarketDataWorkers int // bounded parallel chunk-reader pool size

	// C6 job runtime
	JobWorkers int // bounded task worker pool size

	// C7 log buffering
	LogBufferThreshold int    // entries per task before an eager flush
	LogFlushInterval   int    // seconds between timer-driven flushes
	LogSpillDir        string // disk spill-to-disk overflow directory; empty means <DataDir>/logspill
	LogSpillThreshold  int    // per-task queue size past which overflow spills to disk
}

// Load reads configuration from environment variables.
//
// dataDirOverride takes highest priority when provided (e.g. a CLI flag).
func Load(dataDirOverride ...string) (*Config, error) {
	_ = godotenv.Load()

	var dataDir string
	if len(dataDirOverride) > 0 && dataDirOverride[0] != "" {
		dataDir = dataDirOverride[0]
	} else {
		dataDir = getEnv("FACTORLAB_DATA_DIR", "")
		if dataDir == "" {
			dataDir = "./data"
		}
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
		Port:               getEnvAsInt("FACTORLAB_PORT", 8001),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		DevMode:            getEnvAsBool("DEV_MODE", false),
		MarketDataWorkers:  getEnvAsInt("FACTORLAB_MARKETDATA_WORKERS", 8),
		JobWorkers:         getEnvAsInt("FACTORLAB_JOB_WORKERS", 4),
		LogBufferThreshold: getEnvAsInt("FACTORLAB_LOG_BUFFER_THRESHOLD", 50),
		LogFlushInterval:   getEnvAsInt("FACTORLAB_LOG_FLUSH_INTERVAL_SECONDS", 5),
		LogSpillDir:        getEnv("FACTORLAB_LOG_SPILL_DIR", ""),
		LogSpillThreshold:  getEnvAsInt("FACTORLAB_LOG_SPILL_THRESHOLD", 500),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.MarketDataWorkers <= 0 {
		return fmt.Errorf("config: FACTORLAB_MARKETDATA_WORKERS must be positive, got %d", c.MarketDataWorkers)
	}
	if c.JobWorkers <= 0 {
		return fmt.Errorf("config: FACTORLAB_JOB_WORKERS must be positive, got %d", c.JobWorkers)
	}
	if c.LogBufferThreshold <= 0 {
		return fmt.Errorf("config: FACTORLAB_LOG_BUFFER_THRESHOLD must be positive, got %d", c.LogBufferThreshold)
	}
	if c.LogFlushInterval <= 0 {
		return fmt.Errorf("config: FACTORLAB_LOG_FLUSH_INTERVAL_SECONDS must be positive, got %d", c.LogFlushInterval)
	}
	return nil
}

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
