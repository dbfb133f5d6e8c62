// Package config loads runtime configuration from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all runtime configuration.
type Config struct {
	Server    ServerConfig
	Apps      AppsConfig
	Engine    EngineConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8090"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
}

// AppsConfig holds app registry and permission store configuration.
type AppsConfig struct {
	Root            string `envconfig:"APPS_ROOT" default:"data/apps"`
	PermissionsPath string `envconfig:"PERMISSIONS_PATH" default:"data/permissions.json"`
	MaxApps         int    `envconfig:"MAX_APPS" default:"16"`
}

// EngineConfig holds script engine limits.
type EngineConfig struct {
	MaxSandboxes       int   `envconfig:"MAX_SANDBOXES" default:"8"`
	DefaultMemoryLimit int64 `envconfig:"DEFAULT_MEMORY_LIMIT" default:"65536"`
	DefaultTimeLimitMS int   `envconfig:"DEFAULT_TIME_LIMIT_MS" default:"5000"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"50"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"100"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// DefaultTimeLimit returns the engine time limit as a duration.
func (e EngineConfig) DefaultTimeLimit() time.Duration {
	return time.Duration(e.DefaultTimeLimitMS) * time.Millisecond
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns defaults.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8090",
			Host: "0.0.0.0",
		},
		Apps: AppsConfig{
			Root:            "data/apps",
			PermissionsPath: "data/permissions.json",
			MaxApps:         16,
		},
		Engine: EngineConfig{
			MaxSandboxes:       8,
			DefaultMemoryLimit: 65536,
			DefaultTimeLimitMS: 5000,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 50,
			Burst:             100,
			Enabled:           true,
		},
	}
}
