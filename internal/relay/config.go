package relay

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// DefaultReadLimit caps the size of a single inbound frame.
const DefaultReadLimit = 64 << 10

// Config holds relay settings read from the environment.
type Config struct {
	Port          int           `env:"CHAT_WS_PORT" envDefault:"4000"`
	SweepInterval time.Duration `env:"CHAT_SWEEP_INTERVAL" envDefault:"30s"`
	WriteTimeout  time.Duration `env:"CHAT_WRITE_TIMEOUT" envDefault:"5s"`
	ReadLimit     int64         `env:"CHAT_READ_LIMIT" envDefault:"65536"`
	MetricsPort   int           `env:"CHAT_METRICS_PORT" envDefault:"0"`
	LogLevel      string        `env:"LOG_LEVEL" envDefault:"info"`
}

// DefaultConfig returns the values LoadEnv uses when nothing is set.
func DefaultConfig() Config {
	return Config{
		Port:          4000,
		SweepInterval: 30 * time.Second,
		WriteTimeout:  5 * time.Second,
		ReadLimit:     DefaultReadLimit,
		LogLevel:      "info",
	}
}

// LoadEnv loads configuration from environment variables.
func LoadEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse environment variables: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.MetricsPort < 0 || c.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", c.MetricsPort)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("sweep interval must be positive, got %s", c.SweepInterval)
	}
	if c.ReadLimit <= 0 {
		return fmt.Errorf("read limit must be positive, got %d", c.ReadLimit)
	}
	if _, ok := logLevels[strings.ToLower(c.LogLevel)]; !ok {
		return fmt.Errorf("invalid log level: %s", c.LogLevel)
	}
	return nil
}

// Addr is the listen address for the WebSocket port.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Level maps LogLevel to a slog level.
func (c Config) Level() slog.Level {
	return logLevels[strings.ToLower(c.LogLevel)]
}

var logLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}
