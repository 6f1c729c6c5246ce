package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv    string `env:"APP_ENV" default:"development"`
	Port      string `env:"PORT" default:"8080"`
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`
	StaticDir string `env:"STATIC_DIR"`
	AppURL    string `env:"APP_URL"` // public origin of the page host; empty accepts any origin

	MaxClients       int           `env:"MAX_CLIENTS" default:"20"`
	MaxMessageLength int           `env:"MAX_MESSAGE_LENGTH" default:"500"` // bytes of the raw frame
	PushInterval     time.Duration `env:"PUSH_INTERVAL" default:"75ms"`

	ConnectionsPerSecond float64 `env:"CONNECTIONS_PER_SECOND" default:"10"`
	ConnectionBurst      int     `env:"CONNECTION_BURST" default:"20"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	port, err := strconv.Atoi(cfg.Port)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("PORT must be a number between 1 and 65535, got %q", cfg.Port)
	}
	if cfg.MaxClients < 1 {
		return errors.New("MAX_CLIENTS must be at least 1")
	}
	if cfg.MaxMessageLength < 2 {
		return errors.New("MAX_MESSAGE_LENGTH must be at least 2 bytes")
	}
	if cfg.PushInterval <= 0 {
		return errors.New("PUSH_INTERVAL must be positive")
	}
	if cfg.ConnectionsPerSecond <= 0 {
		return errors.New("CONNECTIONS_PER_SECOND must be positive")
	}
	if cfg.ConnectionBurst < 1 {
		return errors.New("CONNECTION_BURST must be at least 1")
	}
	return nil
}

// IsDevelopment reports whether the app runs in the development environment.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}
