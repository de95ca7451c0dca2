package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	yaml := `
instance:
  id: test-marketd
market:
  tick_interval: 10s
  seed: 42
agmarknet:
  enabled: true
  api_key: abc
  commodities: [Wheat, Onion]
database:
  enabled: true
  timescale:
    host: localhost
    port: 5433
    name: test_ts
    user: testuser
    password: testpass
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Instance.ID != "test-marketd" {
		t.Errorf("Instance.ID = %q, want %q", cfg.Instance.ID, "test-marketd")
	}
	if cfg.Market.TickInterval != 10*time.Second {
		t.Errorf("Market.TickInterval = %v, want 10s", cfg.Market.TickInterval)
	}
	if cfg.Market.Seed != 42 {
		t.Errorf("Market.Seed = %d, want 42", cfg.Market.Seed)
	}
	if len(cfg.Agmarknet.Commodities) != 2 || cfg.Agmarknet.Commodities[1] != "Onion" {
		t.Errorf("Agmarknet.Commodities = %v", cfg.Agmarknet.Commodities)
	}
	if cfg.Database.Timescale.Port != 5433 {
		t.Errorf("Database.Timescale.Port = %d, want 5433", cfg.Database.Timescale.Port)
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_DB_PASSWORD", "secret123")
	t.Setenv("TEST_AGMARKNET_KEY", "key-1")

	yaml := `
instance:
  id: test-marketd
agmarknet:
  api_key: ${TEST_AGMARKNET_KEY}
database:
  timescale:
    host: localhost
    name: test_ts
    user: testuser
    password: ${TEST_DB_PASSWORD}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Database.Timescale.Password != "secret123" {
		t.Errorf("Database.Timescale.Password = %q, want %q", cfg.Database.Timescale.Password, "secret123")
	}
	if cfg.Agmarknet.APIKey != "key-1" {
		t.Errorf("Agmarknet.APIKey = %q, want %q", cfg.Agmarknet.APIKey, "key-1")
	}
}

func TestLoadWithDefaults(t *testing.T) {
	yaml := `
instance:
  id: test-marketd
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	if cfg.Market.TickInterval != DefaultTickInterval {
		t.Errorf("Market.TickInterval = %v, want default %v", cfg.Market.TickInterval, DefaultTickInterval)
	}
	if cfg.Market.MaxDelta != DefaultMaxDelta {
		t.Errorf("Market.MaxDelta = %v, want default %v", cfg.Market.MaxDelta, DefaultMaxDelta)
	}
	if cfg.Alerts.VolumeThreshold != DefaultVolumeThreshold {
		t.Errorf("Alerts.VolumeThreshold = %d, want default %d", cfg.Alerts.VolumeThreshold, DefaultVolumeThreshold)
	}
	if cfg.Transport.URL != DefaultTransportURL {
		t.Errorf("Transport.URL = %q, want default %q", cfg.Transport.URL, DefaultTransportURL)
	}
	if cfg.Transport.BaseInterval != DefaultBaseInterval {
		t.Errorf("Transport.BaseInterval = %v, want default %v", cfg.Transport.BaseInterval, DefaultBaseInterval)
	}
	if cfg.Notifications.RedisKey != "notificationConfig" {
		t.Errorf("Notifications.RedisKey = %q", cfg.Notifications.RedisKey)
	}
	if cfg.Database.Timescale.Port != DefaultDBPort {
		t.Errorf("Database.Timescale.Port = %d, want default %d", cfg.Database.Timescale.Port, DefaultDBPort)
	}
	if cfg.Cache.Key != "prices:snapshot" {
		t.Errorf("Cache.Key = %q", cfg.Cache.Key)
	}
	if len(cfg.Agmarknet.Commodities) != len(DefaultCommodities) {
		t.Errorf("Agmarknet.Commodities = %v", cfg.Agmarknet.Commodities)
	}
	if cfg.Metrics.Path != DefaultMetricsPath {
		t.Errorf("Metrics.Path = %q, want default %q", cfg.Metrics.Path, DefaultMetricsPath)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestDefault_IsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("Default().Validate() = %v", err)
	}
}

func TestValidate(t *testing.T) {
	validDB := DBConfig{Host: "localhost", Name: "db", User: "user", Password: "pass", MaxConns: 10, MinConns: 2}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing instance id",
			mutate:  func(c *Config) { c.Instance.ID = "" },
			wantErr: "instance.id is required",
		},
		{
			name:    "zero tick interval",
			mutate:  func(c *Config) { c.Market.TickInterval = -time.Second },
			wantErr: "market.tick_interval must be > 0",
		},
		{
			name:    "high below spike",
			mutate:  func(c *Config) { c.Alerts.HighPercent = 3 },
			wantErr: "alerts.high_percent (3) cannot be below spike_percent (5)",
		},
		{
			name:    "redis store without url",
			mutate:  func(c *Config) { c.Notifications.Store = "redis" },
			wantErr: "notifications.redis_url is required when store is redis",
		},
		{
			name:    "unknown store",
			mutate:  func(c *Config) { c.Notifications.Store = "sqlite" },
			wantErr: `notifications.store must be memory, file or redis, got "sqlite"`,
		},
		{
			name:    "agmarknet without key",
			mutate:  func(c *Config) { c.Agmarknet.Enabled = true },
			wantErr: "agmarknet.api_key is required when enabled",
		},
		{
			name:    "database enabled without host",
			mutate:  func(c *Config) { c.Database.Enabled = true },
			wantErr: "database.timescale.host is required",
		},
		{
			name: "min_conns exceeds max_conns",
			mutate: func(c *Config) {
				c.Database.Enabled = true
				c.Database.Timescale = DBConfig{Host: "localhost", Name: "db", User: "user", Password: "pass", MaxConns: 5, MinConns: 10}
			},
			wantErr: "database.timescale.min_conns (10) cannot exceed max_conns (5)",
		},
		{
			name:    "disabled database is not checked",
			mutate:  func(c *Config) { c.Database.Timescale = DBConfig{} },
			wantErr: "",
		},
		{
			name:    "news without dsn",
			mutate:  func(c *Config) { c.News.Enabled = true },
			wantErr: "news.dsn is required when enabled",
		},
		{
			name:    "cache without redis",
			mutate:  func(c *Config) { c.Cache.Enabled = true },
			wantErr: "cache.redis_url is required when enabled",
		},
		{
			name:    "bad log format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: `logging.format must be text or json, got "xml"`,
		},
		{
			name: "valid config",
			mutate: func(c *Config) {
				c.Database.Enabled = true
				c.Database.Timescale = validDB
				c.Notifications.Store = "redis"
				c.Notifications.RedisURL = "redis://localhost:6379/0"
			},
			wantErr: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
			} else {
				if err == nil {
					t.Errorf("Validate() expected error containing %q, got nil", tt.wantErr)
				} else if err.Error() != tt.wantErr {
					t.Errorf("Validate() error = %q, want %q", err.Error(), tt.wantErr)
				}
			}
		})
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}
