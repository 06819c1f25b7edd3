package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/rickgao/scamwatch-ops/internal/api"
	"github.com/rickgao/scamwatch-ops/internal/archive"
	"github.com/rickgao/scamwatch-ops/internal/auth"
	"github.com/rickgao/scamwatch-ops/internal/config"
	"github.com/rickgao/scamwatch-ops/internal/connection"
	"github.com/rickgao/scamwatch-ops/internal/fallback"
	"github.com/rickgao/scamwatch-ops/internal/metrics"
	"github.com/rickgao/scamwatch-ops/internal/model"
	"github.com/rickgao/scamwatch-ops/internal/poll"
	"github.com/rickgao/scamwatch-ops/internal/router"
	"github.com/rickgao/scamwatch-ops/internal/synthetic"
	"github.com/rickgao/scamwatch-ops/internal/version"
)

// Source names, also used as the {source} path parameter.
const (
	SourceOverview = "overview"
	SourceMetrics  = "metrics"
	SourceHealth   = "health"
)

var sourceOrder = []string{SourceOverview, SourceMetrics, SourceHealth}

// Deps are the collaborators a Dashboard does not build from config.
// Every field is optional except ArchiveDB when the archive is enabled.
type Deps struct {
	Logger        *slog.Logger
	Tokens        auth.TokenSource         // Default: from backend.token_file / token_env
	Clock         clockwork.Clock          // Default: real clock
	Registry      *prometheus.Registry     // Default: a fresh registry
	ClientFactory connection.ClientFactory // Default: gorilla websocket client
	HTTPClient    *http.Client             // Default: api package default
	Synthetic     *synthetic.Generator     // Default: unseeded generator
	ArchiveDB     archive.BatchSender      // Required when archive.enabled
}

// sourceControl is the type-independent surface of a poll.Source.
type sourceControl interface {
	Name() string
	Start() error
	Stop()
	Refresh() bool
	Close()
	Running() bool
	Stale() bool
	Stats() poll.Stats
	Changes() <-chan struct{}
}

// Dashboard wires the stream, the poll sources and the archive together.
type Dashboard struct {
	cfg    *config.Config
	logger *slog.Logger
	clock  clockwork.Clock

	client    *api.Client
	manager   *connection.Manager
	router    router.Router
	writer    *archive.AlertWriter
	collector *metrics.Collector
	registry  *prometheus.Registry
	limiter   *rate.Limiter

	overview *poll.Source[model.Overview]
	metrics  *poll.Source[model.MetricsSnapshot]
	health   *poll.Source[model.HealthReport]
	sources  map[string]sourceControl

	hub       *hub
	resyncing atomic.Bool

	mu      sync.Mutex
	started bool
	stopped bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New builds a Dashboard from a validated config. Nothing runs until Start.
func New(cfg *config.Config, deps Deps) (*Dashboard, error) {
	if cfg == nil {
		return nil, errors.New("dashboard config is nil")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := deps.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	tokens := deps.Tokens
	if tokens == nil {
		tokens = auth.FromConfig(cfg.Backend.TokenFile, cfg.Backend.TokenEnv)
	}
	registry := deps.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	gen := deps.Synthetic
	if gen == nil {
		gen = synthetic.New(synthetic.WithClock(clock))
	}

	d := &Dashboard{
		cfg:      cfg,
		logger:   logger.With("component", "dashboard"),
		clock:    clock,
		registry: registry,
		limiter:  rate.NewLimiter(rate.Limit(cfg.HTTP.RefreshRate), cfg.HTTP.RefreshBurst),
		hub:      newHub(),
	}

	d.collector = metrics.NewCollector(registry, cfg.Instance.ID, version.Version)

	// REST client
	clientOpts := []api.ClientOption{}
	if deps.HTTPClient != nil {
		clientOpts = append(clientOpts, api.WithHTTPClient(deps.HTTPClient))
	}
	clientOpts = append(clientOpts,
		api.WithLogger(logger),
		api.WithTimeout(cfg.Backend.Timeout),
		api.WithRetries(cfg.Backend.MaxRetries, time.Second),
	)
	d.client = api.NewClient(cfg.Backend.Origin, tokens, clientOpts...)

	// Live stream
	managerOpts := []connection.ManagerOption{
		connection.WithClock(clock),
		connection.WithObserver(d.collector),
	}
	if deps.ClientFactory != nil {
		managerOpts = append(managerOpts, connection.WithClientFactory(deps.ClientFactory))
	}
	d.manager = connection.NewManager(managerConfig(cfg), tokens, logger, managerOpts...)

	d.router = router.NewRouter(router.RouterConfig{
		RecentAlerts:      cfg.Router.RecentAlerts,
		AlertQueueSize:    cfg.Router.QueueSize,
		AlertQueueMaxSize: cfg.Router.QueueMaxSize,
		ArchiveAlerts:     cfg.Archive.Enabled,
	}, d.manager.Messages(), d.collector, logger)

	// Alert archive
	if cfg.Archive.Enabled {
		if deps.ArchiveDB == nil {
			return nil, errors.New("archive enabled but no database provided")
		}
		queue := d.router.Buffers().Alerts
		d.writer = archive.NewAlertWriter(archive.WriterConfig{
			BatchSize:     cfg.Archive.BatchSize,
			FlushInterval: cfg.Archive.FlushInterval,
		}, queue, deps.ArchiveDB, logger, archive.WithClock(clock))
		d.collector.RegisterQueue("alerts", queue.Stats)
		d.collector.RegisterArchive(d.writer.Stats)
	}

	// Poll sources
	pollOpts := []poll.Option{poll.WithClock(clock), poll.WithObserver(d.collector)}
	d.overview = newSource(SourceOverview, cfg.Sources.Overview, d.client.GetOverview, gen.Overview, logger, pollOpts)
	d.metrics = newSource(SourceMetrics, cfg.Sources.Metrics, d.client.GetMetrics, gen.Metrics, logger, pollOpts)
	d.health = newSource(SourceHealth, cfg.Sources.Health, d.client.GetHealth, gen.Health, logger, pollOpts)
	d.sources = map[string]sourceControl{
		SourceOverview: d.overview,
		SourceMetrics:  d.metrics,
		SourceHealth:   d.health,
	}

	return d, nil
}

func managerConfig(cfg *config.Config) connection.ManagerConfig {
	mc := connection.DefaultManagerConfig()
	mc.Origin = cfg.Backend.Origin
	mc.Path = cfg.Stream.Path
	mc.TokenParam = cfg.Stream.TokenParam
	mc.Reconnect = connection.ReconnectPolicy{
		Delay:      cfg.Stream.ReconnectDelay,
		MaxDelay:   cfg.Stream.ReconnectMaxDelay,
		Multiplier: cfg.Stream.ReconnectMultiplier,
	}
	mc.HeartbeatInterval = cfg.Stream.HeartbeatInterval
	mc.KeepaliveToken = cfg.Stream.KeepaliveToken
	mc.MessageBufferSize = cfg.Stream.MessageBufferSize
	mc.Client.HandshakeTimeout = cfg.Stream.HandshakeTimeout
	mc.Client.WriteTimeout = cfg.Stream.WriteTimeout
	return mc
}

// newSource builds a poll source that does not start on its own; Dashboard.Start
// decides from the source config.
func newSource[T any](
	name string,
	sc config.SourceConfig,
	fetch fallback.FetchFunc[T],
	gen fallback.Generator[T],
	logger *slog.Logger,
	opts []poll.Option,
) *poll.Source[T] {
	if !sc.FallbackEnabled() {
		gen = nil
	}
	policy := fallback.New(fetch, gen, logger.With("source", name))
	return poll.New(poll.Config{
		Name:       name,
		Interval:   sc.Interval,
		StaleAfter: sc.StaleAfter,
		Timeout:    sc.Timeout,
	}, policy, logger, opts...)
}

// Start launches the router, the archive writer, the stream and every poll
// source configured to auto-start.
func (d *Dashboard) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return errors.New("dashboard already stopped")
	}
	if d.started {
		return errors.New("dashboard already started")
	}
	d.ctx, d.cancel = context.WithCancel(ctx)

	if err := d.router.Start(d.ctx); err != nil {
		d.cancel()
		return fmt.Errorf("start router: %w", err)
	}
	if d.writer != nil {
		if err := d.writer.Start(d.ctx); err != nil {
			d.cancel()
			return fmt.Errorf("start archive writer: %w", err)
		}
	}
	if err := d.manager.Start(d.ctx); err != nil {
		d.cancel()
		return fmt.Errorf("start connection manager: %w", err)
	}

	d.wg.Add(1)
	go d.watchLoop()

	autoStart := map[string]bool{
		SourceOverview: d.cfg.Sources.Overview.AutoStartEnabled(),
		SourceMetrics:  d.cfg.Sources.Metrics.AutoStartEnabled(),
		SourceHealth:   d.cfg.Sources.Health.AutoStartEnabled(),
	}
	for _, name := range sourceOrder {
		if !autoStart[name] {
			continue
		}
		if err := d.sources[name].Start(); err != nil {
			d.logger.Warn("poll source did not start", "source", name, "error", err)
		}
	}

	d.started = true
	d.logger.Info("dashboard started",
		"instance_id", d.cfg.Instance.ID,
		"origin", d.cfg.Backend.Origin,
		"archive", d.writer != nil,
	)
	return nil
}

// Stop tears everything down. Poll sources and the stream close concurrently;
// the router and archive writer stop after the stream so the last alerts are
// still written.
func (d *Dashboard) Stop(ctx context.Context) error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return nil
	}
	d.stopped = true
	started := d.started
	d.mu.Unlock()

	d.logger.Info("stopping dashboard")

	var g errgroup.Group
	for _, name := range sourceOrder {
		src := d.sources[name]
		g.Go(func() error {
			src.Close()
			return nil
		})
	}
	g.Go(func() error {
		if err := d.manager.Stop(ctx); err != nil {
			return fmt.Errorf("stop connection manager: %w", err)
		}
		return nil
	})
	errs := []error{g.Wait()}

	if started {
		if err := d.router.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop router: %w", err))
		}
		if d.writer != nil {
			if err := d.writer.Stop(ctx); err != nil {
				errs = append(errs, fmt.Errorf("stop archive writer: %w", err))
			}
		}
		d.cancel()
		d.wg.Wait()
	}

	d.hub.closeAll()
	d.logger.Info("dashboard stopped")
	return errors.Join(errs...)
}

// Refresh issues an out-of-band fetch on the named source, or on every source
// for "all". It reports whether at least one fetch was started.
func (d *Dashboard) Refresh(name string) (bool, error) {
	if name == "all" {
		began := false
		for _, n := range sourceOrder {
			if d.sources[n].Refresh() {
				began = true
			}
		}
		return began, nil
	}
	src, ok := d.sources[name]
	if !ok {
		return false, fmt.Errorf("unknown source %q", name)
	}
	return src.Refresh(), nil
}

// Manager returns the stream connection manager.
func (d *Dashboard) Manager() *connection.Manager {
	return d.manager
}

// Registry returns the Prometheus registry holding the dashboard metrics.
func (d *Dashboard) Registry() *prometheus.Registry {
	return d.registry
}

// Subscribe returns a channel signalled after any part of the View changes,
// and a function to cancel the subscription. Signals coalesce.
func (d *Dashboard) Subscribe() (<-chan struct{}, func()) {
	return d.hub.subscribe()
}

// watchLoop fans change signals from every component out to subscribers.
func (d *Dashboard) watchLoop() {
	defer d.wg.Done()

	states := d.manager.States()
	for {
		select {
		case <-d.ctx.Done():
			return
		case change, ok := <-states:
			if !ok {
				states = nil
				continue
			}
			d.logger.Info("stream state changed",
				"from", change.From.String(),
				"to", change.To.String(),
			)
			if change.To == connection.StateConnected {
				d.resyncAlerts()
			}
		case <-d.router.Updates():
		case <-d.overview.Changes():
		case <-d.metrics.Changes():
		case <-d.health.Changes():
		}
		d.hub.publish()
	}
}

// resyncAlerts replaces the active alert set from the REST resource after the
// stream (re)connects, covering alerts raised while it was down. A resync
// already in flight absorbs the request.
func (d *Dashboard) resyncAlerts() {
	if !d.resyncing.CompareAndSwap(false, true) {
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.resyncing.Store(false)

		ctx, cancel := context.WithTimeout(d.ctx, d.cfg.Backend.Timeout)
		defer cancel()

		start := time.Now()
		alerts, err := d.client.GetActiveAlerts(ctx)
		if err != nil {
			d.logger.Warn("active alert resync failed", "error", err)
			return
		}
		d.router.ReplaceActiveAlerts(alerts)

		d.logger.Info("active alerts resynced",
			"count", len(alerts),
			"duration", time.Since(start),
		)
	}()
}
