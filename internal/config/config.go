package config

import (
	"os"
	"strconv"

	"speccoh/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Analysis  AnalysisConfig
	Batch     BatchConfig
	Profiling ProfilingConfig
}

// ServerConfig holds web server settings
type ServerConfig struct {
	Port    string
	GinMode string
}

// DatabaseConfig holds database connection settings. URL may be empty, in
// which case the application runs without persistence.
type DatabaseConfig struct {
	URL     string
	SSLMode string
}

// AnalysisConfig holds default coherence analysis parameters. These are
// caller-side defaults only; the engine takes its parameters per call.
type AnalysisConfig struct {
	Window    int
	Step      int
	Threshold float64
	Sigma     float64 // Multiplier for data-derived thresholds
}

// BatchConfig holds directory batch settings
type BatchConfig struct {
	Workers int
	Pattern string
}

// ProfilingConfig holds performance profiling settings
type ProfilingConfig struct {
	Port    string
	Enabled bool
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	config := &Config{
		Server:    loadServerConfig(),
		Database:  loadDatabaseConfig(),
		Analysis:  loadAnalysisConfig(),
		Batch:     loadBatchConfig(),
		Profiling: loadProfilingConfig(),
	}

	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}

	return config, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Port:    getEnvOrDefault("PORT", "8080"),
		GinMode: getEnvOrDefault("GIN_MODE", "debug"),
	}
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		URL:     getEnvOrDefault("DATABASE_URL", ""),
		SSLMode: getEnvOrDefault("SSL_MODE", "disable"),
	}
}

func loadAnalysisConfig() AnalysisConfig {
	return AnalysisConfig{
		Window:    getEnvIntOrDefault("ANALYSIS_WINDOW", 200),
		Step:      getEnvIntOrDefault("ANALYSIS_STEP", 100),
		Threshold: getEnvFloatOrDefault("ANALYSIS_THRESHOLD", 0.5),
		Sigma:     getEnvFloatOrDefault("ANALYSIS_SIGMA", 2.0),
	}
}

func loadBatchConfig() BatchConfig {
	return BatchConfig{
		Workers: getEnvIntOrDefault("BATCH_WORKERS", 4),
		Pattern: getEnvOrDefault("BATCH_PATTERN", "*.fits"),
	}
}

// BatchDefaults returns the batch settings alone, for callers that take the
// rest of their configuration from flags.
func BatchDefaults() BatchConfig {
	return loadBatchConfig()
}

func loadProfilingConfig() ProfilingConfig {
	return ProfilingConfig{
		Port:    getEnvOrDefault("PPROF_PORT", "6060"),
		Enabled: getEnvBoolOrDefault("PPROF_ENABLED", false),
	}
}

func validateConfig(config *Config) error {
	if config.Analysis.Window < 2 {
		return errors.ConfigInvalid("ANALYSIS_WINDOW must be at least 2")
	}
	if config.Analysis.Step < 1 {
		return errors.ConfigInvalid("ANALYSIS_STEP must be at least 1")
	}
	if config.Analysis.Threshold < 0 || config.Analysis.Threshold > 1 {
		return errors.ConfigInvalid("ANALYSIS_THRESHOLD must be in [0,1]")
	}
	if config.Analysis.Sigma <= 0 {
		return errors.ConfigInvalid("ANALYSIS_SIGMA must be positive")
	}
	if config.Batch.Workers < 1 {
		return errors.ConfigInvalid("BATCH_WORKERS must be at least 1")
	}
	if config.Server.Port == "" {
		return errors.ConfigInvalid("PORT must not be empty")
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
