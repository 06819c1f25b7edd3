package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rickgao/scamwatch-ops/internal/model"
)

// Resource paths, relative to the backend origin.
const (
	PathOverview     = "/api/dashboard/overview"
	PathMetrics      = "/api/dashboard/metrics"
	PathHealth       = "/api/health"
	PathActiveAlerts = "/api/alerts/active"
)

// GetOverview fetches the dashboard overview.
func (c *Client) GetOverview(ctx context.Context) (model.Overview, error) {
	var o model.Overview
	if err := c.get(ctx, PathOverview, nil, &o); err != nil {
		return model.Overview{}, fmt.Errorf("get overview: %w", err)
	}
	return o, nil
}

// GetMetrics fetches the current throughput metrics.
func (c *Client) GetMetrics(ctx context.Context) (model.MetricsSnapshot, error) {
	var m model.MetricsSnapshot
	if err := c.get(ctx, PathMetrics, nil, &m); err != nil {
		return model.MetricsSnapshot{}, fmt.Errorf("get metrics: %w", err)
	}
	return m, nil
}

// GetHealth fetches backend service health. A missing aggregate status is
// derived from the services.
func (c *Client) GetHealth(ctx context.Context) (model.HealthReport, error) {
	var h model.HealthReport
	if err := c.get(ctx, PathHealth, nil, &h); err != nil {
		return model.HealthReport{}, fmt.Errorf("get health: %w", err)
	}
	h.Status = h.Overall()
	return h, nil
}

// GetActiveAlerts fetches unacknowledged alerts. The body may be a bare
// array or an object with an "alerts" field.
func (c *Client) GetActiveAlerts(ctx context.Context) ([]model.Alert, error) {
	body, err := c.doWithRetry(ctx, http.MethodGet, PathActiveAlerts, nil)
	if err != nil {
		return nil, fmt.Errorf("get active alerts: %w", err)
	}

	alerts, err := DecodeAlerts(body)
	if err != nil {
		return nil, fmt.Errorf("get active alerts: %w", err)
	}
	return alerts, nil
}

// DecodeAlerts parses an alert list in either wire form and normalizes
// severities.
func DecodeAlerts(data []byte) ([]model.Alert, error) {
	var alerts []model.Alert

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &alerts); err != nil {
			return nil, fmt.Errorf("unmarshal alerts: %w", err)
		}
	} else {
		var wrapped struct {
			Alerts []model.Alert `json:"alerts"`
		}
		if err := json.Unmarshal(trimmed, &wrapped); err != nil {
			return nil, fmt.Errorf("unmarshal alerts: %w", err)
		}
		alerts = wrapped.Alerts
	}

	for i := range alerts {
		alerts[i].Severity = model.ParseSeverity(string(alerts[i].Severity))
	}
	if alerts == nil {
		alerts = []model.Alert{}
	}
	return alerts, nil
}
