package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/rickgao/scamwatch-ops/internal/connection"
	"github.com/rickgao/scamwatch-ops/internal/model"
)

var errEmptyData = errors.New("empty data")

// Router demultiplexes stream payloads by envelope type into typed views.
type Router interface {
	// Start begins routing messages from the input channel.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the router.
	Stop(ctx context.Context) error

	// Buffers returns output buffers for writers to consume.
	Buffers() RouterBuffers

	// LiveMetrics returns the latest metrics_update, if any.
	LiveMetrics() (LiveMetrics, bool)

	// ActiveAlerts returns the current active alert set, most severe first.
	ActiveAlerts() []model.Alert

	// ReplaceActiveAlerts replaces the active set, e.g. after a REST resync.
	ReplaceActiveAlerts(alerts []model.Alert)

	// RecentAlerts returns streamed alerts, newest first.
	RecentAlerts() []model.Alert

	// Updates signals after any view changes. Signals coalesce.
	Updates() <-chan struct{}

	// Stats returns current router statistics.
	Stats() RouterStats
}

// RouterBuffers provides access to output buffers for writers.
type RouterBuffers struct {
	Alerts *GrowableBuffer[AlertMsg] // nil unless ArchiveAlerts is set
}

// RouterStats contains runtime statistics.
type RouterStats struct {
	MessagesReceived int64        `json:"messages_received"`
	MessagesRouted   int64        `json:"messages_routed"`
	ParseErrors      int64        `json:"parse_errors"`
	UnknownMessages  int64        `json:"unknown_messages"`
	AlertQueue       *BufferStats `json:"alert_queue,omitempty"`
}

// Counter is notified of each routed or rejected message, typically for metrics.
type Counter interface {
	MessageRouted(msgType string)
	MessageRejected(reason string)
}

// router is the internal implementation.
type router struct {
	cfg     RouterConfig
	logger  *slog.Logger
	counter Counter

	// Input from Connection Manager
	input <-chan connection.InboundMessage

	// Output to the archive writer
	alertBuf *GrowableBuffer[AlertMsg]

	// Views
	viewMu  sync.RWMutex
	live    LiveMetrics
	hasLive bool
	active  []model.Alert
	recent  []model.Alert // newest first, len <= cfg.RecentAlerts
	updates chan struct{}

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Stats
	received        atomic.Int64
	routed          atomic.Int64
	parseErrors     atomic.Int64
	unknownMessages atomic.Int64
}

// NewRouter creates a new Message Router. counter may be nil.
func NewRouter(cfg RouterConfig, input <-chan connection.InboundMessage, counter Counter, logger *slog.Logger) Router {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RecentAlerts <= 0 {
		cfg.RecentAlerts = DefaultRouterConfig().RecentAlerts
	}

	r := &router{
		cfg:     cfg,
		logger:  logger.With("component", "router"),
		counter: counter,
		input:   input,
		active:  []model.Alert{},
		updates: make(chan struct{}, 1),
	}
	if cfg.ArchiveAlerts {
		r.alertBuf = NewGrowableBuffer[AlertMsg](cfg.AlertQueueSize, cfg.AlertQueueMaxSize)
	}
	return r
}

// Start begins routing messages.
func (r *router) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(1)
	go r.routeLoop()

	r.logger.Info("message router started",
		"recent_alerts", r.cfg.RecentAlerts,
		"archive_alerts", r.cfg.ArchiveAlerts,
	)

	return nil
}

// Stop gracefully shuts down the router.
func (r *router) Stop(ctx context.Context) error {
	r.logger.Info("stopping message router")

	if r.cancel != nil {
		r.cancel()
	}

	// Wait for goroutine to finish
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("message router stopped")
	case <-ctx.Done():
		r.logger.Warn("message router stop timed out")
	}

	if r.alertBuf != nil {
		r.alertBuf.Close()
	}

	return nil
}

// Buffers returns output buffers for writers.
func (r *router) Buffers() RouterBuffers {
	return RouterBuffers{Alerts: r.alertBuf}
}

func (r *router) LiveMetrics() (LiveMetrics, bool) {
	r.viewMu.RLock()
	defer r.viewMu.RUnlock()
	return r.live, r.hasLive
}

func (r *router) ActiveAlerts() []model.Alert {
	r.viewMu.RLock()
	defer r.viewMu.RUnlock()
	return append([]model.Alert{}, r.active...)
}

func (r *router) RecentAlerts() []model.Alert {
	r.viewMu.RLock()
	defer r.viewMu.RUnlock()
	return append([]model.Alert{}, r.recent...)
}

func (r *router) Updates() <-chan struct{} {
	return r.updates
}

// Stats returns current statistics.
func (r *router) Stats() RouterStats {
	stats := RouterStats{
		MessagesReceived: r.received.Load(),
		MessagesRouted:   r.routed.Load(),
		ParseErrors:      r.parseErrors.Load(),
		UnknownMessages:  r.unknownMessages.Load(),
	}
	if r.alertBuf != nil {
		bs := r.alertBuf.Stats()
		stats.AlertQueue = &bs
	}
	return stats
}

// routeLoop is the main routing goroutine.
func (r *router) routeLoop() {
	defer r.wg.Done()

	for {
		select {
		case <-r.ctx.Done():
			return
		case msg, ok := <-r.input:
			if !ok {
				r.logger.Info("input channel closed")
				return
			}
			r.route(msg)
		}
	}
}

// route parses and applies a single message. Malformed and unknown messages
// are counted and dropped; routing continues.
func (r *router) route(msg connection.InboundMessage) {
	r.received.Add(1)

	var env envelope
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		r.reject("not_json", "dropping non-JSON message", err, msg)
		return
	}
	if env.Type == "" {
		r.reject("no_type", "dropping message without type", nil, msg)
		return
	}

	var err error
	switch env.Type {
	case TypeMetricsUpdate:
		err = r.applyMetrics(env.Data, msg)
	case TypeAlert:
		err = r.applyAlert(env.Data, msg)
	case TypeActiveAlerts:
		err = r.applyActiveAlerts(env.Data)
	default:
		r.unknownMessages.Add(1)
		if r.counter != nil {
			r.counter.MessageRejected("unknown_type")
		}
		r.logger.Debug("skipping message type", "type", env.Type, "seq", msg.Seq)
		return
	}

	if err != nil {
		r.parseErrors.Add(1)
		if r.counter != nil {
			r.counter.MessageRejected("bad_data")
		}
		r.logger.Warn("failed to parse message data", "type", env.Type, "seq", msg.Seq, "error", err)
		return
	}

	r.routed.Add(1)
	if r.counter != nil {
		r.counter.MessageRouted(env.Type)
	}
	r.notify()
}

func (r *router) reject(reason, logMsg string, err error, msg connection.InboundMessage) {
	r.parseErrors.Add(1)
	if r.counter != nil {
		r.counter.MessageRejected(reason)
	}
	r.logger.Debug(logMsg, "seq", msg.Seq, "bytes", len(msg.Data), "error", err)
}

func (r *router) applyMetrics(data json.RawMessage, msg connection.InboundMessage) error {
	if isEmpty(data) {
		return errEmptyData
	}

	var snap model.MetricsSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return err
	}
	if snap.Timestamp.IsZero() {
		snap.Timestamp = msg.ReceivedAt
	}

	r.viewMu.Lock()
	r.live = LiveMetrics{Snapshot: snap, Seq: msg.Seq, ReceivedAt: msg.ReceivedAt}
	r.hasLive = true
	r.viewMu.Unlock()
	return nil
}

func (r *router) applyAlert(data json.RawMessage, msg connection.InboundMessage) error {
	if isEmpty(data) {
		return errEmptyData
	}

	var alert model.Alert
	if err := json.Unmarshal(data, &alert); err != nil {
		return err
	}
	alert.Severity = model.ParseSeverity(string(alert.Severity))
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = msg.ReceivedAt
	}

	r.viewMu.Lock()
	r.recent = append([]model.Alert{alert}, r.recent...)
	if len(r.recent) > r.cfg.RecentAlerts {
		r.recent = r.recent[:r.cfg.RecentAlerts]
	}
	r.active = upsertActive(r.active, alert)
	r.viewMu.Unlock()

	if r.alertBuf != nil {
		r.alertBuf.Send(AlertMsg{Alert: alert, Seq: msg.Seq, ReceivedAt: msg.ReceivedAt})
	}
	return nil
}

func (r *router) applyActiveAlerts(data json.RawMessage) error {
	alerts, err := parseAlertList(data)
	if err != nil {
		return err
	}

	r.setActive(alerts)
	return nil
}

// ReplaceActiveAlerts installs an active set fetched out of band.
func (r *router) ReplaceActiveAlerts(alerts []model.Alert) {
	r.setActive(append([]model.Alert{}, alerts...))
	r.notify()
}

func (r *router) setActive(alerts []model.Alert) {
	for i := range alerts {
		alerts[i].Severity = model.ParseSeverity(string(alerts[i].Severity))
	}
	sortAlerts(alerts)

	r.viewMu.Lock()
	r.active = alerts
	r.viewMu.Unlock()
}

func (r *router) notify() {
	select {
	case r.updates <- struct{}{}:
	default:
	}
}

// parseAlertList accepts a bare array, {"alerts": [...]} or null.
func parseAlertList(data json.RawMessage) ([]model.Alert, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return []model.Alert{}, nil
	}

	var alerts []model.Alert
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &alerts); err != nil {
			return nil, err
		}
	} else {
		var wire activeAlertsWire
		if err := json.Unmarshal(trimmed, &wire); err != nil {
			return nil, fmt.Errorf("active alerts: %w", err)
		}
		alerts = wire.Alerts
	}
	if alerts == nil {
		alerts = []model.Alert{}
	}
	return alerts, nil
}

// upsertActive applies a streamed alert to the active set: acknowledged
// alerts leave it, others are added or replaced by ID.
func upsertActive(active []model.Alert, alert model.Alert) []model.Alert {
	out := make([]model.Alert, 0, len(active)+1)
	for _, a := range active {
		if alert.ID != "" && a.ID == alert.ID {
			continue
		}
		out = append(out, a)
	}
	if !alert.Acknowledged {
		out = append(out, alert)
	}
	sortAlerts(out)
	return out
}

// sortAlerts orders by severity, then newest first.
func sortAlerts(alerts []model.Alert) {
	sort.SliceStable(alerts, func(i, j int) bool {
		ri, rj := alerts[i].Severity.Rank(), alerts[j].Severity.Rank()
		if ri != rj {
			return ri > rj
		}
		return alerts[i].CreatedAt.After(alerts[j].CreatedAt)
	})
}

func isEmpty(data json.RawMessage) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
