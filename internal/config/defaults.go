package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultBackendTimeout      = 30 * time.Second
	DefaultMaxRetries          = 3
	DefaultStreamPath          = "/ws/dashboard"
	DefaultTokenParam          = "token"
	DefaultReconnectDelay      = 5 * time.Second
	DefaultReconnectMaxDelay   = 5 * time.Minute
	DefaultReconnectMultiplier = 1.0
	DefaultHeartbeatInterval   = 30 * time.Second
	DefaultKeepaliveToken      = "ping"
	DefaultMessageBufferSize   = 1000
	DefaultHandshakeTimeout    = 10 * time.Second
	DefaultWriteTimeout        = 5 * time.Second
	DefaultOverviewInterval    = 30 * time.Second
	DefaultMetricsInterval     = 10 * time.Second
	DefaultHealthInterval      = 30 * time.Second
	DefaultSourceTimeout       = 10 * time.Second
	DefaultRecentAlerts        = 50
	DefaultQueueSize           = 256
	DefaultQueueMaxSize        = 10000
	DefaultDBPort              = 5432
	DefaultDBSSLMode           = "prefer"
	DefaultMaxConns            = 10
	DefaultMinConns            = 2
	DefaultBatchSize           = 500
	DefaultFlushInterval       = 5 * time.Second
	DefaultHTTPPort            = 8080
	DefaultRefreshRate         = 1.0
	DefaultRefreshBurst        = 3
	DefaultMetricsPath         = "/metrics"
	DefaultLogLevel            = "info"
	DefaultLogFormat           = "text"
)

// ApplyDefaults fills zero-valued optional fields.
func (c *Config) ApplyDefaults() {
	// Backend defaults
	if c.Backend.Timeout == 0 {
		c.Backend.Timeout = DefaultBackendTimeout
	}
	if c.Backend.MaxRetries == 0 {
		c.Backend.MaxRetries = DefaultMaxRetries
	}

	// Stream defaults
	if c.Stream.Path == "" {
		c.Stream.Path = DefaultStreamPath
	}
	if c.Stream.TokenParam == "" {
		c.Stream.TokenParam = DefaultTokenParam
	}
	if c.Stream.ReconnectDelay == 0 {
		c.Stream.ReconnectDelay = DefaultReconnectDelay
	}
	if c.Stream.ReconnectMaxDelay == 0 {
		c.Stream.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if c.Stream.ReconnectMultiplier == 0 {
		c.Stream.ReconnectMultiplier = DefaultReconnectMultiplier
	}
	if c.Stream.HeartbeatInterval == 0 {
		c.Stream.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.Stream.KeepaliveToken == "" {
		c.Stream.KeepaliveToken = DefaultKeepaliveToken
	}
	if c.Stream.MessageBufferSize == 0 {
		c.Stream.MessageBufferSize = DefaultMessageBufferSize
	}
	if c.Stream.HandshakeTimeout == 0 {
		c.Stream.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Stream.WriteTimeout == 0 {
		c.Stream.WriteTimeout = DefaultWriteTimeout
	}

	// Source defaults
	applySourceDefaults(&c.Sources.Overview, DefaultOverviewInterval)
	applySourceDefaults(&c.Sources.Metrics, DefaultMetricsInterval)
	applySourceDefaults(&c.Sources.Health, DefaultHealthInterval)

	// Router defaults
	if c.Router.RecentAlerts == 0 {
		c.Router.RecentAlerts = DefaultRecentAlerts
	}
	if c.Router.QueueSize == 0 {
		c.Router.QueueSize = DefaultQueueSize
	}
	if c.Router.QueueMaxSize == 0 {
		c.Router.QueueMaxSize = DefaultQueueMaxSize
	}

	// Archive defaults
	applyDBDefaults(&c.Archive.Database)
	if c.Archive.BatchSize == 0 {
		c.Archive.BatchSize = DefaultBatchSize
	}
	if c.Archive.FlushInterval == 0 {
		c.Archive.FlushInterval = DefaultFlushInterval
	}

	// HTTP defaults
	if c.HTTP.Port == 0 {
		c.HTTP.Port = DefaultHTTPPort
	}
	if c.HTTP.RefreshRate == 0 {
		c.HTTP.RefreshRate = DefaultRefreshRate
	}
	if c.HTTP.RefreshBurst == 0 {
		c.HTTP.RefreshBurst = DefaultRefreshBurst
	}

	// Metrics defaults
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}

	// Logging defaults
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
}

func applySourceDefaults(s *SourceConfig, interval time.Duration) {
	if s.Interval == 0 {
		s.Interval = interval
	}
	if s.StaleAfter == 0 {
		s.StaleAfter = 3 * s.Interval
	}
	if s.Timeout == 0 {
		s.Timeout = DefaultSourceTimeout
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
