package dashboard

import (
	"time"

	"github.com/rickgao/scamwatch-ops/internal/connection"
	"github.com/rickgao/scamwatch-ops/internal/model"
	"github.com/rickgao/scamwatch-ops/internal/poll"
	"github.com/rickgao/scamwatch-ops/internal/router"
)

// View is the complete dashboard state at one instant.
type View struct {
	Instance    string    `json:"instance"`
	GeneratedAt time.Time `json:"generated_at"`

	Connection ConnectionView `json:"connection"`

	Overview Panel[model.Overview]        `json:"overview"`
	Metrics  Panel[model.MetricsSnapshot] `json:"metrics"`
	Health   Panel[model.HealthReport]    `json:"health"`

	LiveMetrics  *model.MetricsSnapshot `json:"live_metrics,omitempty"`
	ActiveAlerts []model.Alert          `json:"active_alerts"`
	RecentAlerts []model.Alert          `json:"recent_alerts"`
}

// ConnectionView describes the live stream.
type ConnectionView struct {
	State         connection.State        `json:"state"`
	LastMessageAt *time.Time              `json:"last_message_at,omitempty"`
	Stats         connection.ManagerStats `json:"stats"`
	Router        router.RouterStats      `json:"router"`
}

// Panel is one polled resource as a consumer renders it.
type Panel[T any] struct {
	Data          *T         `json:"data"`
	IsLoading     bool       `json:"is_loading"`
	Error         string     `json:"error,omitempty"`
	IsStale       bool       `json:"is_stale"`
	UsingFallback bool       `json:"using_fallback"`
	FetchedAt     *time.Time `json:"fetched_at,omitempty"`
	LastSuccess   *time.Time `json:"last_success,omitempty"`
	Running       bool       `json:"running"`
	Stats         poll.Stats `json:"stats"`
}

// Snapshot assembles the current View.
func (d *Dashboard) Snapshot() View {
	v := View{
		Instance:    d.cfg.Instance.ID,
		GeneratedAt: d.clock.Now().UTC(),
		Connection: ConnectionView{
			State:  d.manager.State(),
			Stats:  d.manager.Stats(),
			Router: d.router.Stats(),
		},
		Overview:     panelOf(d.overview),
		Metrics:      panelOf(d.metrics),
		Health:       panelOf(d.health),
		ActiveAlerts: d.router.ActiveAlerts(),
		RecentAlerts: d.router.RecentAlerts(),
	}

	if msg, ok := d.manager.LastMessage(); ok {
		v.Connection.LastMessageAt = timePtr(msg.ReceivedAt)
	}
	if live, ok := d.router.LiveMetrics(); ok {
		snap := live.Snapshot
		v.LiveMetrics = &snap
	}
	if v.ActiveAlerts == nil {
		v.ActiveAlerts = []model.Alert{}
	}
	if v.RecentAlerts == nil {
		v.RecentAlerts = []model.Alert{}
	}

	return v
}

func panelOf[T any](src *poll.Source[T]) Panel[T] {
	res := src.Snapshot()
	p := Panel[T]{
		IsLoading:     res.IsLoading,
		IsStale:       res.IsStale,
		UsingFallback: res.UsingFallback,
		FetchedAt:     timePtr(res.FetchedAt),
		LastSuccess:   timePtr(res.LastSuccess),
		Running:       src.Running(),
		Stats:         src.Stats(),
	}
	if res.HasValue {
		value := res.Value
		p.Data = &value
	}
	if res.Err != nil {
		p.Error = res.Err.Error()
	}
	return p
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}
