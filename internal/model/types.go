package model

import (
	"strings"
	"time"
)

// -----------------------------------------------------------------------------
// REST resources
// -----------------------------------------------------------------------------

// Overview is the headline summary shown at the top of the dashboard.
type Overview struct {
	TotalMessages  int64     `json:"total_messages"`   // Messages screened since midnight UTC
	ScamsDetected  int64     `json:"scams_detected"`   // Messages classified as scam
	DetectionRate  float64   `json:"detection_rate"`   // ScamsDetected / TotalMessages
	ActiveUsers    int64     `json:"active_users"`     // Distinct users in the last 24h
	ReportsPending int64     `json:"reports_pending"`  // User reports awaiting review
	AvgResponseMs  float64   `json:"avg_response_ms"`  // Mean classification latency
	UpdatedAt      time.Time `json:"updated_at"`
}

// MetricsSnapshot is a single throughput sample. The REST metrics resource
// and the "metrics_update" stream message both carry this shape.
type MetricsSnapshot struct {
	Timestamp         time.Time `json:"timestamp"`
	MessagesPerMinute float64   `json:"messages_per_minute"`
	ScamsPerMinute    float64   `json:"scams_per_minute"`
	AvgLatencyMs      float64   `json:"avg_latency_ms"`
	P95LatencyMs      float64   `json:"p95_latency_ms"`
	ErrorRate         float64   `json:"error_rate"`
	QueueDepth        int64     `json:"queue_depth"`
}

// -----------------------------------------------------------------------------
// Health
// -----------------------------------------------------------------------------

// HealthStatus is the coarse status of a backend service.
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
	HealthUnknown   HealthStatus = "unknown"
)

// ServiceHealth is the health of one backend dependency.
type ServiceHealth struct {
	Name      string       `json:"name"`
	Status    HealthStatus `json:"status"`
	LatencyMs float64      `json:"latency_ms"`
	Uptime    float64      `json:"uptime"` // Fraction of the last 24h
	Message   string       `json:"message,omitempty"`
}

// HealthReport is the body of the health resource.
type HealthReport struct {
	Status    HealthStatus    `json:"status"`
	Services  []ServiceHealth `json:"services"`
	CheckedAt time.Time       `json:"checked_at"`
}

// Overall derives an aggregate status from the services when the backend
// did not report one: any unhealthy service wins, then any degraded one.
func (h HealthReport) Overall() HealthStatus {
	if h.Status != "" {
		return h.Status
	}
	if len(h.Services) == 0 {
		return HealthUnknown
	}

	overall := HealthHealthy
	for _, s := range h.Services {
		switch s.Status {
		case HealthUnhealthy:
			return HealthUnhealthy
		case HealthDegraded, HealthUnknown:
			overall = HealthDegraded
		}
	}
	return overall
}

// -----------------------------------------------------------------------------
// Alerts
// -----------------------------------------------------------------------------

// Severity ranks alerts for display ordering.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ParseSeverity normalizes a wire severity. Unrecognized values map to info.
func ParseSeverity(s string) Severity {
	switch sev := Severity(strings.ToLower(strings.TrimSpace(s))); sev {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return sev
	case "warning", "warn":
		return SeverityMedium
	case "error":
		return SeverityHigh
	default:
		return SeverityInfo
	}
}

// Rank returns a sortable weight (higher is more severe).
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// Alert is a single operator alert, delivered either on the stream ("alert",
// "active_alerts") or by the active-alerts REST resource.
type Alert struct {
	ID           string    `json:"id"`
	Severity     Severity  `json:"severity"`
	Title        string    `json:"title"`
	Message      string    `json:"message"`
	Source       string    `json:"source"` // Emitting subsystem, e.g. "classifier"
	CreatedAt    time.Time `json:"created_at"`
	Acknowledged bool      `json:"acknowledged"`
}
