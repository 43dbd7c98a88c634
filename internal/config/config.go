package config

import (
	"os"
	"regexp"
	"strconv"
	"strings"

	"goharmonic/internal/errors"
)

// Config represents the process-level configuration read from the environment
type Config struct {
	Logging  LoggingConfig
	Results  ResultsConfig
	Database DatabaseConfig
	Server   ServerConfig
	// RunConfigPath points at the YAML run configuration; empty means defaults
	RunConfigPath string
}

// LoggingConfig holds operational logging settings
type LoggingConfig struct {
	Level  string
	Format string
}

// ResultsConfig locates the durable result store and the transcript
type ResultsConfig struct {
	ResultsFile    string
	TranscriptFile string
}

// DatabaseConfig enables the Postgres result store when URL is set
type DatabaseConfig struct {
	URL   string
	Table string
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port    string
	GinMode string
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	config := &Config{
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "INFO"),
			Format: getEnvOrDefault("LOG_FORMAT", "console"),
		},
		Results: ResultsConfig{
			ResultsFile:    getEnvOrDefault("RESULTS_FILE", "outputs/analysis_results.json"),
			TranscriptFile: getEnvOrDefault("TRANSCRIPT_FILE", "outputs/analysis_summary.txt"),
		},
		Database: DatabaseConfig{
			URL:   os.Getenv("DATABASE_URL"),
			Table: getEnvOrDefault("RESULTS_TABLE", "analysis_results"),
		},
		Server: ServerConfig{
			Port:    getEnvOrDefault("PORT", "8080"),
			GinMode: getEnvOrDefault("GIN_MODE", "release"),
		},
		RunConfigPath: os.Getenv("RUN_CONFIG"),
	}

	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return config, nil
}

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func validateConfig(config *Config) error {
	if config.Results.ResultsFile == "" {
		return errors.ConfigInvalid("RESULTS_FILE must not be empty")
	}
	if config.Results.TranscriptFile == "" {
		return errors.ConfigInvalid("TRANSCRIPT_FILE must not be empty")
	}
	if !tableNamePattern.MatchString(config.Database.Table) {
		return errors.ConfigInvalid("RESULTS_TABLE must be a plain identifier")
	}
	if _, err := strconv.Atoi(config.Server.Port); err != nil {
		return errors.ConfigInvalid("PORT must be numeric")
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

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandEnvVar expands ${VAR} and $VAR, leaving unknown variables untouched
func expandEnvVar(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		var name string
		if strings.HasPrefix(match, "${") {
			name = match[2 : len(match)-1]
		} else {
			name = match[1:]
		}
		if value, ok := os.LookupEnv(name); ok {
			return value
		}
		return match
	})
}
