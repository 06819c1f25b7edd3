package router

import (
	"encoding/json"
	"time"

	"github.com/rickgao/scamwatch-ops/internal/model"
)

// Stream message types.
const (
	TypeMetricsUpdate = "metrics_update"
	TypeAlert         = "alert"
	TypeActiveAlerts  = "active_alerts"
)

// RouterConfig holds configuration for the Message Router.
type RouterConfig struct {
	RecentAlerts      int  // Size of the recent alert feed. Default: 50
	AlertQueueSize    int  // Initial archive queue capacity. Default: 256
	AlertQueueMaxSize int  // Archive queue hard limit; oldest dropped beyond it. Default: 10000
	ArchiveAlerts     bool // Queue alerts for the archive writer
}

// DefaultRouterConfig returns default configuration.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		RecentAlerts:      50,
		AlertQueueSize:    256,
		AlertQueueMaxSize: 10000,
	}
}

// AlertMsg is an alert taken off the stream, queued for archiving.
type AlertMsg struct {
	Alert      model.Alert
	Seq        uint64
	ReceivedAt time.Time
}

// LiveMetrics is the most recent metrics_update.
type LiveMetrics struct {
	Snapshot   model.MetricsSnapshot `json:"snapshot"`
	Seq        uint64                `json:"seq"`
	ReceivedAt time.Time             `json:"received_at"`
}

// envelope is the stream wire format: {"type": "...", "data": ...}.
type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// activeAlertsWire accepts data as a bare array or {"alerts": [...]}.
type activeAlertsWire struct {
	Alerts []model.Alert `json:"alerts"`
}
