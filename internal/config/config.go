package config

import "time"

// Config is the root configuration for an ops dashboard instance.
type Config struct {
	Instance InstanceConfig `yaml:"instance"`
	Backend  BackendConfig  `yaml:"backend"`
	Stream   StreamConfig   `yaml:"stream"`
	Sources  SourcesConfig  `yaml:"sources"`
	Router   RouterConfig   `yaml:"router"`
	Archive  ArchiveConfig  `yaml:"archive"`
	HTTP     HTTPConfig     `yaml:"http"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// InstanceConfig identifies this dashboard instance.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// BackendConfig holds the scam-ops backend settings shared by the REST
// client and the live stream.
type BackendConfig struct {
	Origin     string        `yaml:"origin"`     // e.g. https://ops.example.com
	TokenFile  string        `yaml:"token_file"` // Re-read at every use
	TokenEnv   string        `yaml:"token_env"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// StreamConfig holds live stream connection manager settings.
type StreamConfig struct {
	Path                string        `yaml:"path"`
	TokenParam          string        `yaml:"token_param"`
	ReconnectDelay      time.Duration `yaml:"reconnect_delay"`
	ReconnectMaxDelay   time.Duration `yaml:"reconnect_max_delay"`
	ReconnectMultiplier float64       `yaml:"reconnect_multiplier"`
	HeartbeatInterval   time.Duration `yaml:"heartbeat_interval"`
	KeepaliveToken      string        `yaml:"keepalive_token"`
	MessageBufferSize   int           `yaml:"message_buffer_size"`
	HandshakeTimeout    time.Duration `yaml:"handshake_timeout"`
	WriteTimeout        time.Duration `yaml:"write_timeout"`
}

// SourcesConfig holds one poll schedule per dashboard panel.
type SourcesConfig struct {
	Overview SourceConfig `yaml:"overview"`
	Metrics  SourceConfig `yaml:"metrics"`
	Health   SourceConfig `yaml:"health"`
}

// SourceConfig holds the poll schedule of a single REST resource.
type SourceConfig struct {
	Interval   time.Duration `yaml:"interval"`
	StaleAfter time.Duration `yaml:"stale_after"` // 0 means 3x interval
	Timeout    time.Duration `yaml:"timeout"`
	AutoStart  *bool         `yaml:"auto_start"` // Default true
	Fallback   *bool         `yaml:"fallback"`   // Default true
}

// AutoStartEnabled reports whether the source starts polling on construction.
func (s SourceConfig) AutoStartEnabled() bool {
	return s.AutoStart == nil || *s.AutoStart
}

// FallbackEnabled reports whether failed fetches are replaced with synthetic data.
func (s SourceConfig) FallbackEnabled() bool {
	return s.Fallback == nil || *s.Fallback
}

// RouterConfig holds stream demultiplexer settings.
type RouterConfig struct {
	RecentAlerts int `yaml:"recent_alerts"`
	QueueSize    int `yaml:"queue_size"`
	QueueMaxSize int `yaml:"queue_max_size"`
}

// ArchiveConfig holds the optional alert archive settings.
type ArchiveConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Database      DBConfig      `yaml:"database"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
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

// HTTPConfig holds the dashboard HTTP API settings.
type HTTPConfig struct {
	Port         int     `yaml:"port"`
	RefreshRate  float64 `yaml:"refresh_rate"` // Manual refreshes per second
	RefreshBurst int     `yaml:"refresh_burst"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}
