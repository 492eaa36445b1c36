// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port           string
	FrontendURL    string
	DBPath         string
	NATSURL        string // empty disables event publishing
	LogLevel       slog.Level
	AllowAnonymous bool
	Games          GamesConfig
}

// GamesConfig controls the live game channels.
type GamesConfig struct {
	SessionRetention time.Duration
	SweepInterval    time.Duration
	PersistTimeout   time.Duration
	DotsRows         int
	DotsCols         int
	OutboundQueue    int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		FrontendURL:    getEnv("FRONTEND_URL", ""),
		DBPath:         getEnv("DB_PATH", "./data/arcade.db"),
		NATSURL:        getEnv("NATS_URL", ""),
		LogLevel:       parseLevel(getEnv("LOG_LEVEL", "info")),
		AllowAnonymous: getEnvBool("ALLOW_ANONYMOUS", true),
		Games: GamesConfig{
			SessionRetention: getEnvDuration("SESSION_RETENTION", 30*time.Minute),
			SweepInterval:    getEnvDuration("SWEEP_INTERVAL", 5*time.Minute),
			PersistTimeout:   getEnvDuration("PERSIST_TIMEOUT", 5*time.Second),
			DotsRows:         getEnvInt("DOTS_ROWS", 4),
			DotsCols:         getEnvInt("DOTS_COLS", 6),
			OutboundQueue:    getEnvInt("OUTBOUND_QUEUE", 64),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.Games.SessionRetention <= 0 {
		return fmt.Errorf("SESSION_RETENTION must be > 0")
	}
	if c.Games.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be > 0")
	}
	if c.Games.PersistTimeout <= 0 {
		return fmt.Errorf("PERSIST_TIMEOUT must be > 0")
	}
	if c.Games.DotsRows <= 0 || c.Games.DotsCols <= 0 {
		return fmt.Errorf("DOTS_ROWS and DOTS_COLS must be > 0")
	}
	if c.Games.OutboundQueue <= 0 {
		return fmt.Errorf("OUTBOUND_QUEUE must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// AllowedOrigins returns the CORS origins for the configured frontend.
func (c *Config) AllowedOrigins() []string {
	if c.IsDevelopment() {
		return []string{"*"}
	}
	return []string{c.FrontendURL}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return level
}
