// Package config provides configuration management for the game server
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

var (
	ErrInvalidPort      = errors.New("invalid port")
	ErrInvalidLogLevel  = errors.New("invalid log level")
	ErrInvalidLogFormat = errors.New("invalid log format")
)

// Config holds all configuration for the game server
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Log      LogConfig
	Game     GameConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Addr returns the listen address for the HTTP server
func (s ServerConfig) Addr() string {
	return ":" + s.Port
}

// DatabaseConfig holds database configuration.
// An empty DSN disables the database and audit events go to the log only.
type DatabaseConfig struct {
	Driver string
	DSN    string
}

// Enabled reports whether an audit database is configured
func (d DatabaseConfig) Enabled() bool {
	return d.DSN != ""
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level  string
	Format string // text or json
}

// GameConfig holds game-related configuration
type GameConfig struct {
	Currency string
	Seed     int64 // 0 selects the crypto RNG
}

// Load loads configuration from environment with defaults
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            getEnv("DOND_PORT", "8080"),
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Driver: getEnv("DOND_DB_DRIVER", "postgres"),
			DSN:    getEnv("DOND_DB_DSN", ""),
		},
		Log: LogConfig{
			Level:  getEnv("DOND_LOG_LEVEL", "info"),
			Format: getEnv("DOND_LOG_FORMAT", "text"),
		},
		Game: GameConfig{
			Currency: getEnv("DOND_CURRENCY", "USD"),
			Seed:     getEnvInt64("DOND_SEED", 0),
		},
	}
}

// Validate checks the loaded values
func (c *Config) Validate() error {
	port, err := strconv.Atoi(c.Server.Port)
	if err != nil || port <= 0 || port > 65535 {
		return fmt.Errorf("%w: %q", ErrInvalidPort, c.Server.Port)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.Log.Level)
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLogFormat, c.Log.Format)
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return defaultValue
	}
	return n
}
