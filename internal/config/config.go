// Package config loads the kommet.yml configuration file.
package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// Config represents the kommet configuration.
type Config struct {
	EnvName  string         `mapstructure:"env_name"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Log      LogConfig      `mapstructure:"log"`
	Auth     AuthConfig     `mapstructure:"auth"`
}

// DatabaseConfig represents database configuration.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	URL    string `mapstructure:"url"`
}

// RedisConfig represents the optional label cache backend.
type RedisConfig struct {
	Addr string `mapstructure:"addr"`
}

// LogConfig represents logging configuration.
type LogConfig struct {
	Level string `mapstructure:"level"`
	Dev   bool   `mapstructure:"dev"`
}

// AuthConfig represents session token configuration.
type AuthConfig struct {
	TokenSecret string `mapstructure:"token_secret"`
}

// Load loads the configuration from kommet.yml or kommet.yaml.
func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("env_name", "default")
	v.SetDefault("database.driver", "pgx")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.dev", false)

	// Set config name and paths
	v.SetConfigName("kommet")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Enable environment variable support
	v.AutomaticEnv()

	// Read config file if it exists
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found - use defaults
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

// GetDatabaseURL returns the database URL from environment or config.
func GetDatabaseURL() string {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url
	}
	cfg, err := Load()
	if err != nil {
		return ""
	}
	return cfg.Database.URL
}

func validateConfig(cfg *Config) error {
	switch cfg.Database.Driver {
	case "pgx", "sqlite3":
	default:
		return fmt.Errorf("invalid database driver %q (expected pgx or sqlite3)", cfg.Database.Driver)
	}
	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q", cfg.Log.Level)
	}
	return nil
}
