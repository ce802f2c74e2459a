package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all runtime configuration for the fedchain node.
type Config struct {
	// Data Configuration
	DataDir        string // Base directory for data files
	PrivateKeyPath string // Path to the node's secp256k1 private key file (hex)
	GenesisPath    string // Path to the genesis YAML file

	// Server Configuration
	MetricsAddr string
	HealthAddr  string

	// Consensus Configuration
	ConsensusTimeoutMS        uint64 // Propose-step timeout per round, in milliseconds
	RepeatRoundForFirstLeader int    // Rounds the first leader keeps the proposer slot
	DriveIntervalMS           uint64 // How often the shell ticks the consensus timer

	// Storage Configuration
	StorageBackend     string // "memory" | "cometbft"
	StorageBackendName string // cometbft-db database name
	StorageDataDir     string // cometbft-db data directory

	// Service Configuration
	NodeName string
	LogLevel string
}

// Load reads configuration from environment variables.
//
// Optional variables fall back to defaults suitable for a local single
// process node; call Validate() after Load() before starting the node.
func Load() (*Config, error) {
	cfg := &Config{
		// Data Configuration
		DataDir:        getEnv("DATA_DIR", "./data"),
		PrivateKeyPath: getEnv("PRIVATE_KEY_PATH", ""),
		GenesisPath:    getEnv("GENESIS_PATH", "./genesis.yaml"),

		// Server Configuration - safe defaults
		MetricsAddr: getEnv("METRICS_HOST", "0.0.0.0") + ":" + getEnv("METRICS_PORT", "9090"),
		HealthAddr:  getEnv("HEALTH_HOST", "0.0.0.0") + ":" + getEnv("HEALTH_CHECK_PORT", "8081"),

		// Consensus Configuration
		ConsensusTimeoutMS:        getEnvUint64("CONSENSUS_TIMEOUT_MS", 6000),
		RepeatRoundForFirstLeader: getEnvInt("REPEAT_ROUND_FOR_FIRST_LEADER", 1),
		DriveIntervalMS:           getEnvUint64("DRIVE_INTERVAL_MS", 200),

		// Storage Configuration
		StorageBackend:     getEnv("STORAGE_BACKEND", "cometbft"),
		StorageBackendName: getEnv("STORAGE_BACKEND_NAME", "fedchain"),
		StorageDataDir:     getEnv("STORAGE_DATA_DIR", ""),

		// Service Configuration
		NodeName: getEnv("NODE_NAME", "fedchain-node"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
	if cfg.StorageDataDir == "" {
		cfg.StorageDataDir = cfg.DataDir
	}

	return cfg, nil
}

// Validate checks that all required configuration is present and coherent.
// This must be called after Load() before starting the node.
func (c *Config) Validate() error {
	var errors []string

	if c.GenesisPath == "" {
		errors = append(errors, "GENESIS_PATH is required but not set")
	}
	if c.ConsensusTimeoutMS == 0 {
		errors = append(errors, "CONSENSUS_TIMEOUT_MS must be positive")
	}
	if c.RepeatRoundForFirstLeader < 1 {
		errors = append(errors, "REPEAT_ROUND_FOR_FIRST_LEADER must be at least 1")
	}
	if c.DriveIntervalMS == 0 {
		errors = append(errors, "DRIVE_INTERVAL_MS must be positive")
	}

	switch c.StorageBackend {
	case "memory":
	case "cometbft":
		if c.StorageDataDir == "" {
			errors = append(errors, "STORAGE_DATA_DIR (or DATA_DIR) is required for the cometbft storage backend")
		}
	default:
		errors = append(errors, fmt.Sprintf("STORAGE_BACKEND must be \"memory\" or \"cometbft\", got %q", c.StorageBackend))
	}

	if c.PrivateKeyPath != "" {
		if _, err := os.Stat(c.PrivateKeyPath); err != nil {
			errors = append(errors, fmt.Sprintf("PRIVATE_KEY_PATH %q is not readable: %v", c.PrivateKeyPath, err))
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	return nil
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvUint64(key string, defaultValue uint64) uint64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseUint(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}
