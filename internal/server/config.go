// Package server provides configuration helpers that define runtime defaults,
// validation, and rate-limiting parameters for the termchat broker.
package server

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment variable read by LoadConfig.
const EnvPrefix = "TERMCHAT_"

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int           `env:"RATE_BURST" envDefault:"5" validate:"gte=1"`
	RefillInterval time.Duration `env:"RATE_INTERVAL" envDefault:"1s" validate:"gt=0"`
}

// Config holds the broker configuration.
type Config struct {
	// Host and Port form the TCP listen address. Port 0 picks a free port.
	Host string `env:"HOST" envDefault:"0.0.0.0"`
	Port int    `env:"PORT" envDefault:"7878" validate:"gte=0,lte=65535"`

	// HTTPAddr serves the status endpoints and the WebSocket gateway.
	// Empty disables the HTTP server.
	HTTPAddr       string   `env:"HTTP_ADDR" envDefault:":8080"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:8080"`

	// MaxUsers caps concurrently authenticated users; 0 means unlimited.
	MaxUsers     int `env:"MAX_USERS" envDefault:"10" validate:"gte=0"`
	MaxFrameSize int `env:"MAX_FRAME_SIZE" envDefault:"4096" validate:"gte=64"`

	PollInterval     time.Duration `env:"POLL_INTERVAL" envDefault:"10ms" validate:"gt=0"`
	AuthPollInterval time.Duration `env:"AUTH_POLL_INTERVAL" envDefault:"1s" validate:"gt=0"`
	AuthMaxRetries   int           `env:"AUTH_MAX_RETRIES" envDefault:"25" validate:"gte=1"`
	WriteTimeout     time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s" validate:"gt=0"`
	ShutdownTimeout  time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"5s" validate:"gt=0"`

	RateLimit RateLimitConfig

	LogFormat string `env:"LOG_FORMAT" envDefault:"text" validate:"oneof=text json"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
}

var validate = validator.New()

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		Host:             "0.0.0.0",
		Port:             7878,
		HTTPAddr:         ":8080",
		AllowedOrigins:   []string{"http://localhost:8080"},
		MaxUsers:         10,
		MaxFrameSize:     4096,
		PollInterval:     10 * time.Millisecond,
		AuthPollInterval: time.Second,
		AuthMaxRetries:   25,
		WriteTimeout:     10 * time.Second,
		ShutdownTimeout:  5 * time.Second,
		RateLimit: RateLimitConfig{
			Burst:          5,
			RefillInterval: time.Second,
		},
		LogFormat: "text",
		LogLevel:  "info",
	}
}

// LoadConfig reads an optional .env file, then TERMCHAT_* environment
// variables, and validates the result.
func LoadConfig() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("Could not load .env file", "error", err)
	}

	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}

	cfg = sanitizeConfig(cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// ListenAddr is the TCP address the broker binds.
func (c Config) ListenAddr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// sanitizeConfig replaces unset or nonsensical values with defaults so that
// a partially filled Config is always usable.
func sanitizeConfig(cfg Config) Config {
	def := DefaultConfig()

	if cfg.Host == "" {
		cfg.Host = def.Host
	}
	if cfg.Port < 0 {
		cfg.Port = def.Port
	}
	if cfg.MaxUsers < 0 {
		cfg.MaxUsers = 0
	}
	if cfg.MaxFrameSize <= 0 {
		cfg.MaxFrameSize = def.MaxFrameSize
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.AuthPollInterval <= 0 {
		cfg.AuthPollInterval = def.AuthPollInterval
	}
	if cfg.AuthMaxRetries <= 0 {
		cfg.AuthMaxRetries = def.AuthMaxRetries
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = def.RateLimit.Burst
	}
	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = def.RateLimit.RefillInterval
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = def.LogFormat
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = def.LogLevel
	}

	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return cfg
}
