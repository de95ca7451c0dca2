package config

import "time"

// Config is the root configuration for a marketd instance.
type Config struct {
	Instance      InstanceConfig      `yaml:"instance"`
	HTTP          HTTPConfig          `yaml:"http"`
	Market        MarketConfig        `yaml:"market"`
	Alerts        AlertsConfig        `yaml:"alerts"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Transport     TransportConfig     `yaml:"transport"`
	Relay         RelayConfig         `yaml:"relay"`
	Agmarknet     AgmarknetConfig     `yaml:"agmarknet"`
	Database      DatabaseConfig      `yaml:"database"`
	Writers       WritersConfig       `yaml:"writers"`
	News          NewsConfig          `yaml:"news"`
	Cache         CacheConfig         `yaml:"cache"`
	Logging       LoggingConfig       `yaml:"logging"`
	Metrics       MetricsConfig       `yaml:"metrics"`
}

// InstanceConfig identifies this instance.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// HTTPConfig holds the browser gateway listener settings.
type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	StreamPing      time.Duration `yaml:"stream_ping"` // ping interval on /ws
}

// MarketConfig drives the update loop.
type MarketConfig struct {
	TickInterval time.Duration `yaml:"tick_interval"`
	MaxDelta     float64       `yaml:"max_delta"`
	PriceFloor   float64       `yaml:"price_floor"`
	VolumeFloor  int           `yaml:"volume_floor"`
	VolumeWalk   float64       `yaml:"volume_walk"`
	Seed         uint64        `yaml:"seed"` // 0 seeds from the clock
}

// AlertsConfig holds alert thresholds.
type AlertsConfig struct {
	SpikePercent    float64 `yaml:"spike_percent"`
	HighPercent     float64 `yaml:"high_percent"`
	VolumeThreshold int     `yaml:"volume_threshold"`
	Retention       int     `yaml:"retention"`
}

// NotificationsConfig selects where user preferences persist and how
// toasts are kept.
type NotificationsConfig struct {
	Store             string `yaml:"store"` // memory, file or redis
	FilePath          string `yaml:"file_path"`
	RedisURL          string `yaml:"redis_url"`
	RedisKey          string `yaml:"redis_key"`
	ToastRetention    int    `yaml:"toast_retention"`
	DesktopPermission string `yaml:"desktop_permission"` // default, granted or denied
}

// TransportConfig configures the reconnecting chat client.
type TransportConfig struct {
	URL          string        `yaml:"url"`
	BaseInterval time.Duration `yaml:"base_interval"`
	MaxAttempts  int           `yaml:"max_attempts"`
	PingTimeout  time.Duration `yaml:"ping_timeout"`
}

// RelayConfig mounts a chat relay on the gateway at /chat.
type RelayConfig struct {
	Enabled       bool          `yaml:"enabled"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// AgmarknetConfig holds the data.gov.in mandi price feed settings.
type AgmarknetConfig struct {
	Enabled      bool          `yaml:"enabled"`
	BaseURL      string        `yaml:"base_url"`
	APIKey       string        `yaml:"api_key"`
	ResourceID   string        `yaml:"resource_id"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxRetries   int           `yaml:"max_retries"`
	PollInterval time.Duration `yaml:"poll_interval"`
	Concurrency  int           `yaml:"concurrency"`
	Commodities  []string      `yaml:"commodities"`
}

// DatabaseConfig holds the TimescaleDB connection for tick and alert history.
type DatabaseConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Timescale DBConfig `yaml:"timescale"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// WritersConfig holds batch writer settings.
type WritersConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

// NewsConfig holds the Postgres LISTEN/NOTIFY market news feed.
type NewsConfig struct {
	Enabled              bool          `yaml:"enabled"`
	DSN                  string        `yaml:"dsn"`
	Channel              string        `yaml:"channel"`
	MinReconnectInterval time.Duration `yaml:"min_reconnect_interval"`
	MaxReconnectInterval time.Duration `yaml:"max_reconnect_interval"`
}

// CacheConfig holds the Redis snapshot publisher.
type CacheConfig struct {
	Enabled  bool          `yaml:"enabled"`
	RedisURL string        `yaml:"redis_url"`
	Key      string        `yaml:"key"`
	TTL      time.Duration `yaml:"ttl"`
}

// LoggingConfig selects the log level and handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Path string `yaml:"path"`
}
