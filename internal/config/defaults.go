package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultHTTPAddr             = ":8080"
	DefaultReadTimeout          = 15 * time.Second
	DefaultShutdownTimeout      = 10 * time.Second
	DefaultStreamPing           = 30 * time.Second
	DefaultTickInterval         = 30 * time.Second
	DefaultMaxDelta             = 50
	DefaultPriceFloor           = 100
	DefaultVolumeFloor          = 50
	DefaultVolumeWalk           = 100
	DefaultSpikePercent         = 5
	DefaultHighPercent          = 10
	DefaultVolumeThreshold      = 800
	DefaultAlertRetention       = 500
	DefaultNotificationStore    = "file"
	DefaultNotificationFile     = "notification_config.json"
	DefaultNotificationRedisKey = "notificationConfig"
	DefaultToastRetention       = 100
	DefaultDesktopPermission    = "default"
	DefaultTransportURL         = "ws://localhost:4000"
	DefaultBaseInterval         = 3 * time.Second
	DefaultMaxAttempts          = 10
	DefaultPingTimeout          = 90 * time.Second
	DefaultSweepInterval        = 30 * time.Second
	DefaultAgmarknetURL         = "https://api.data.gov.in"
	DefaultAgmarknetResource    = "9ef84268-d588-465a-a308-a864a43d0070"
	DefaultAPITimeout           = 30 * time.Second
	DefaultMaxRetries           = 3
	DefaultPollInterval         = 15 * time.Minute
	DefaultPollConcurrency      = 4
	DefaultDBPort               = 5432
	DefaultDBSSLMode            = "prefer"
	DefaultMaxConns             = 10
	DefaultMinConns             = 2
	DefaultBatchSize            = 500
	DefaultFlushInterval        = 1 * time.Second
	DefaultBufferSize           = 10000
	DefaultNewsChannel          = "market_news"
	DefaultMinReconnect         = 10 * time.Second
	DefaultMaxReconnect         = time.Minute
	DefaultCacheKey             = "prices:snapshot"
	DefaultCacheTTL             = 2 * time.Minute
	DefaultLogLevel             = "info"
	DefaultLogFormat            = "text"
	DefaultMetricsPath          = "/metrics"
)

// DefaultCommodities are polled when agmarknet.commodities is empty.
var DefaultCommodities = []string{"Wheat", "Rice", "Cotton", "Sugarcane", "Maize", "Onion"}

func (c *Config) applyDefaults() {
	// HTTP defaults
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = DefaultHTTPAddr
	}
	if c.HTTP.ReadTimeout == 0 {
		c.HTTP.ReadTimeout = DefaultReadTimeout
	}
	if c.HTTP.ShutdownTimeout == 0 {
		c.HTTP.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.HTTP.StreamPing == 0 {
		c.HTTP.StreamPing = DefaultStreamPing
	}

	// Market defaults
	if c.Market.TickInterval == 0 {
		c.Market.TickInterval = DefaultTickInterval
	}
	if c.Market.MaxDelta == 0 {
		c.Market.MaxDelta = DefaultMaxDelta
	}
	if c.Market.PriceFloor == 0 {
		c.Market.PriceFloor = DefaultPriceFloor
	}
	if c.Market.VolumeFloor == 0 {
		c.Market.VolumeFloor = DefaultVolumeFloor
	}
	if c.Market.VolumeWalk == 0 {
		c.Market.VolumeWalk = DefaultVolumeWalk
	}

	// Alerts defaults
	if c.Alerts.SpikePercent == 0 {
		c.Alerts.SpikePercent = DefaultSpikePercent
	}
	if c.Alerts.HighPercent == 0 {
		c.Alerts.HighPercent = DefaultHighPercent
	}
	if c.Alerts.VolumeThreshold == 0 {
		c.Alerts.VolumeThreshold = DefaultVolumeThreshold
	}
	if c.Alerts.Retention == 0 {
		c.Alerts.Retention = DefaultAlertRetention
	}

	// Notifications defaults
	if c.Notifications.Store == "" {
		c.Notifications.Store = DefaultNotificationStore
	}
	if c.Notifications.FilePath == "" {
		c.Notifications.FilePath = DefaultNotificationFile
	}
	if c.Notifications.RedisKey == "" {
		c.Notifications.RedisKey = DefaultNotificationRedisKey
	}
	if c.Notifications.ToastRetention == 0 {
		c.Notifications.ToastRetention = DefaultToastRetention
	}
	if c.Notifications.DesktopPermission == "" {
		c.Notifications.DesktopPermission = DefaultDesktopPermission
	}

	// Transport defaults
	if c.Transport.URL == "" {
		c.Transport.URL = DefaultTransportURL
	}
	if c.Transport.BaseInterval == 0 {
		c.Transport.BaseInterval = DefaultBaseInterval
	}
	if c.Transport.MaxAttempts == 0 {
		c.Transport.MaxAttempts = DefaultMaxAttempts
	}
	if c.Transport.PingTimeout == 0 {
		c.Transport.PingTimeout = DefaultPingTimeout
	}

	// Relay defaults
	if c.Relay.SweepInterval == 0 {
		c.Relay.SweepInterval = DefaultSweepInterval
	}

	// Agmarknet defaults
	if c.Agmarknet.BaseURL == "" {
		c.Agmarknet.BaseURL = DefaultAgmarknetURL
	}
	if c.Agmarknet.ResourceID == "" {
		c.Agmarknet.ResourceID = DefaultAgmarknetResource
	}
	if c.Agmarknet.Timeout == 0 {
		c.Agmarknet.Timeout = DefaultAPITimeout
	}
	if c.Agmarknet.MaxRetries == 0 {
		c.Agmarknet.MaxRetries = DefaultMaxRetries
	}
	if c.Agmarknet.PollInterval == 0 {
		c.Agmarknet.PollInterval = DefaultPollInterval
	}
	if c.Agmarknet.Concurrency == 0 {
		c.Agmarknet.Concurrency = DefaultPollConcurrency
	}
	if len(c.Agmarknet.Commodities) == 0 {
		c.Agmarknet.Commodities = append([]string(nil), DefaultCommodities...)
	}

	// Database defaults
	applyDBDefaults(&c.Database.Timescale)

	// Writers defaults
	if c.Writers.BatchSize == 0 {
		c.Writers.BatchSize = DefaultBatchSize
	}
	if c.Writers.FlushInterval == 0 {
		c.Writers.FlushInterval = DefaultFlushInterval
	}
	if c.Writers.BufferSize == 0 {
		c.Writers.BufferSize = DefaultBufferSize
	}

	// News defaults
	if c.News.Channel == "" {
		c.News.Channel = DefaultNewsChannel
	}
	if c.News.MinReconnectInterval == 0 {
		c.News.MinReconnectInterval = DefaultMinReconnect
	}
	if c.News.MaxReconnectInterval == 0 {
		c.News.MaxReconnectInterval = DefaultMaxReconnect
	}

	// Cache defaults
	if c.Cache.Key == "" {
		c.Cache.Key = DefaultCacheKey
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = DefaultCacheTTL
	}

	// Logging defaults
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}

	// Metrics defaults
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
