package config

import (
	"errors"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds application configuration values.
type Config struct {
	Secret      string        `envconfig:"SECRET" default:"dev_secret"`
	HTTPPort    int           `envconfig:"HTTP_PORT" default:"8080"`
	RegistryDSN string        `envconfig:"REGISTRY_DSN" default:"file:data/registry.db"`
	DataDir     string        `envconfig:"DATA_DIR" default:"data/stores"`
	TokenTTL    time.Duration `envconfig:"TOKEN_TTL" default:"24h"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`

	// LoginRateLimit caps login attempts per client IP per minute.
	LoginRateLimit int `envconfig:"LOGIN_RATE_LIMIT" default:"10"`

	CORSOrigins []string `envconfig:"CORS_ORIGINS" default:"*"`
}

// Load reads configuration from a .env file, when present, and the environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, err
	}
	if cfg.Secret == "" {
		return Config{}, errors.New("SECRET must not be empty")
	}
	if cfg.HTTPPort <= 0 || cfg.HTTPPort > 65535 {
		return Config{}, errors.New("HTTP_PORT must be a valid port")
	}
	if cfg.DataDir == "" {
		return Config{}, errors.New("DATA_DIR must not be empty")
	}
	return cfg, nil
}

// IsJSONLog reports whether logs should be written as JSON lines.
func (c Config) IsJSONLog() bool {
	return c.LogFormat == "json"
}
