package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if c.Backend.Origin == "" {
		return errors.New("backend.origin is required")
	}
	u, err := url.Parse(c.Backend.Origin)
	if err != nil || u.Host == "" {
		return fmt.Errorf("backend.origin %q is not an absolute url", c.Backend.Origin)
	}
	switch u.Scheme {
	case "http", "https":
	default:
		return fmt.Errorf("backend.origin scheme must be http or https, got %q", u.Scheme)
	}
	if c.Backend.MaxRetries < 0 {
		return errors.New("backend.max_retries must be >= 0")
	}

	if !strings.HasPrefix(c.Stream.Path, "/") {
		return fmt.Errorf("stream.path must start with '/', got %q", c.Stream.Path)
	}
	if c.Stream.ReconnectDelay <= 0 {
		return errors.New("stream.reconnect_delay must be > 0")
	}
	if c.Stream.ReconnectMultiplier < 1 {
		return fmt.Errorf("stream.reconnect_multiplier must be >= 1, got %g", c.Stream.ReconnectMultiplier)
	}
	if c.Stream.ReconnectMaxDelay < c.Stream.ReconnectDelay {
		return fmt.Errorf("stream.reconnect_max_delay (%v) cannot be less than reconnect_delay (%v)",
			c.Stream.ReconnectMaxDelay, c.Stream.ReconnectDelay)
	}
	if c.Stream.HeartbeatInterval <= 0 {
		return errors.New("stream.heartbeat_interval must be > 0")
	}
	if c.Stream.MessageBufferSize < 1 {
		return errors.New("stream.message_buffer_size must be >= 1")
	}

	if err := c.Sources.Overview.validate("sources.overview"); err != nil {
		return err
	}
	if err := c.Sources.Metrics.validate("sources.metrics"); err != nil {
		return err
	}
	if err := c.Sources.Health.validate("sources.health"); err != nil {
		return err
	}

	if c.Router.RecentAlerts < 1 {
		return errors.New("router.recent_alerts must be >= 1")
	}
	if c.Router.QueueSize < 1 {
		return errors.New("router.queue_size must be >= 1")
	}
	if c.Router.QueueMaxSize < c.Router.QueueSize {
		return fmt.Errorf("router.queue_max_size (%d) cannot be less than queue_size (%d)",
			c.Router.QueueMaxSize, c.Router.QueueSize)
	}

	if c.Archive.Enabled {
		if err := c.Archive.Database.validate("archive.database"); err != nil {
			return err
		}
		if c.Archive.BatchSize < 1 {
			return errors.New("archive.batch_size must be >= 1")
		}
		if c.Archive.FlushInterval <= 0 {
			return errors.New("archive.flush_interval must be > 0")
		}
	}

	if c.HTTP.Port < 1 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.HTTP.RefreshRate <= 0 {
		return errors.New("http.refresh_rate must be > 0")
	}
	if c.HTTP.RefreshBurst < 1 {
		return errors.New("http.refresh_burst must be >= 1")
	}

	if !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with '/', got %q", c.Metrics.Path)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

func (s *SourceConfig) validate(prefix string) error {
	if s.Interval <= 0 {
		return fmt.Errorf("%s.interval must be > 0", prefix)
	}
	if s.StaleAfter < 0 {
		return fmt.Errorf("%s.stale_after must be >= 0", prefix)
	}
	if s.Timeout < 0 {
		return fmt.Errorf("%s.timeout must be >= 0", prefix)
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
