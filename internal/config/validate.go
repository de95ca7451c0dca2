package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if c.Market.TickInterval <= 0 {
		return errors.New("market.tick_interval must be > 0")
	}
	if c.Market.MaxDelta < 0 {
		return errors.New("market.max_delta must be >= 0")
	}
	if c.Market.PriceFloor < 0 || c.Market.VolumeFloor < 0 {
		return errors.New("market floors must be >= 0")
	}

	if c.Alerts.HighPercent < c.Alerts.SpikePercent {
		return fmt.Errorf("alerts.high_percent (%g) cannot be below spike_percent (%g)",
			c.Alerts.HighPercent, c.Alerts.SpikePercent)
	}
	if c.Alerts.Retention < 1 {
		return errors.New("alerts.retention must be >= 1")
	}

	switch c.Notifications.Store {
	case "memory", "file":
	case "redis":
		if c.Notifications.RedisURL == "" {
			return errors.New("notifications.redis_url is required when store is redis")
		}
	default:
		return fmt.Errorf("notifications.store must be memory, file or redis, got %q", c.Notifications.Store)
	}
	switch c.Notifications.DesktopPermission {
	case "default", "granted", "denied":
	default:
		return fmt.Errorf("notifications.desktop_permission must be default, granted or denied, got %q",
			c.Notifications.DesktopPermission)
	}
	if c.Notifications.ToastRetention < 1 {
		return errors.New("notifications.toast_retention must be >= 1")
	}

	if c.Transport.MaxAttempts < 0 {
		return errors.New("transport.max_attempts must be >= 0")
	}

	if c.Agmarknet.Enabled {
		if c.Agmarknet.APIKey == "" {
			return errors.New("agmarknet.api_key is required when enabled")
		}
		if c.Agmarknet.Concurrency < 1 {
			return errors.New("agmarknet.concurrency must be >= 1")
		}
	}

	if c.Database.Enabled {
		if err := c.Database.Timescale.validate("database.timescale"); err != nil {
			return err
		}
		if c.Writers.BatchSize < 1 {
			return errors.New("writers.batch_size must be >= 1")
		}
		if c.Writers.BufferSize < 1 {
			return errors.New("writers.buffer_size must be >= 1")
		}
	}

	if c.News.Enabled && c.News.DSN == "" {
		return errors.New("news.dsn is required when enabled")
	}
	if c.Cache.Enabled && c.Cache.RedisURL == "" {
		return errors.New("cache.redis_url is required when enabled")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	if !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /, got %q", c.Metrics.Path)
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
