package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/rickgao/scamwatch-ops/internal/archive"
	"github.com/rickgao/scamwatch-ops/internal/connection"
	"github.com/rickgao/scamwatch-ops/internal/poll"
	"github.com/rickgao/scamwatch-ops/internal/router"
)

const namespace = "opsdash"

var streamStates = []connection.State{
	connection.StateConnecting,
	connection.StateConnected,
	connection.StateDisconnected,
	connection.StateFailed,
}

// Collector holds every dashboard metric. It satisfies connection.Observer,
// poll.Observer and router.Counter.
type Collector struct {
	reg   prometheus.Registerer
	build prometheus.Gauge

	streamState       *prometheus.GaugeVec
	streamTransitions *prometheus.CounterVec
	streamMessages    prometheus.Counter
	keepalives        *prometheus.CounterVec
	reconnectDelay    prometheus.Histogram

	pollFetches  *prometheus.CounterVec
	pollDuration *prometheus.HistogramVec
	pollSkipped  *prometheus.CounterVec

	routed   *prometheus.CounterVec
	rejected *prometheus.CounterVec
}

var (
	_ connection.Observer = (*Collector)(nil)
	_ poll.Observer       = (*Collector)(nil)
	_ router.Counter      = (*Collector)(nil)
)

// NewCollector creates and registers all metrics on reg.
func NewCollector(reg prometheus.Registerer, instance, version string) *Collector {
	f := promauto.With(reg)

	c := &Collector{
		reg: reg,
		build: f.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "build_info",
			Help:        "Always 1; labels carry the instance and version",
			ConstLabels: prometheus.Labels{"instance_id": instance, "version": version},
		}),
		streamState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "state",
			Help:      "1 for the current live stream connection state, 0 otherwise",
		}, []string{"state"}),
		streamTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "transitions_total",
			Help:      "Connection state transitions",
		}, []string{"from", "to"}),
		streamMessages: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "messages_total",
			Help:      "Inbound messages delivered by the live stream",
		}),
		keepalives: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "keepalives_total",
			Help:      "Keepalive sends by result",
		}, []string{"result"}),
		reconnectDelay: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "reconnect_delay_seconds",
			Help:      "Delay scheduled before each reconnect attempt",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}),
		pollFetches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poll",
			Name:      "fetches_total",
			Help:      "Completed fetches by source and outcome",
		}, []string{"source", "outcome"}),
		pollDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "poll",
			Name:      "fetch_duration_seconds",
			Help:      "Fetch latency by source",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source"}),
		pollSkipped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poll",
			Name:      "fetches_skipped_total",
			Help:      "Ticks skipped because a fetch was already in flight",
		}, []string{"source"}),
		routed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "messages_total",
			Help:      "Stream messages applied to a dashboard view, by type",
		}, []string{"type"}),
		rejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "rejected_total",
			Help:      "Stream messages dropped, by reason",
		}, []string{"reason"}),
	}

	c.build.Set(1)
	c.setState(connection.StateConnecting)
	return c
}

// StateChanged implements connection.Observer.
func (c *Collector) StateChanged(change connection.StateChange) {
	c.streamTransitions.WithLabelValues(change.From.String(), change.To.String()).Inc()
	c.setState(change.To)
}

// MessageReceived implements connection.Observer.
func (c *Collector) MessageReceived() {
	c.streamMessages.Inc()
}

// KeepaliveSent implements connection.Observer.
func (c *Collector) KeepaliveSent(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.keepalives.WithLabelValues(result).Inc()
}

// ReconnectScheduled implements connection.Observer.
func (c *Collector) ReconnectScheduled(attempt int, delay time.Duration) {
	c.reconnectDelay.Observe(delay.Seconds())
}

// FetchSkipped implements poll.Observer.
func (c *Collector) FetchSkipped(source string) {
	c.pollSkipped.WithLabelValues(source).Inc()
}

// FetchCompleted implements poll.Observer.
func (c *Collector) FetchCompleted(source string, outcome poll.Outcome, took time.Duration) {
	c.pollFetches.WithLabelValues(source, string(outcome)).Inc()
	if outcome != poll.OutcomeDiscarded {
		c.pollDuration.WithLabelValues(source).Observe(took.Seconds())
	}
}

// MessageRouted implements router.Counter.
func (c *Collector) MessageRouted(msgType string) {
	c.routed.WithLabelValues(msgType).Inc()
}

// MessageRejected implements router.Counter.
func (c *Collector) MessageRejected(reason string) {
	c.rejected.WithLabelValues(reason).Inc()
}

// RegisterQueue exposes a router queue's occupancy and drop count.
func (c *Collector) RegisterQueue(name string, stats func() router.BufferStats) {
	f := promauto.With(c.reg)
	labels := prometheus.Labels{"queue": name}

	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   namespace,
		Subsystem:   "router",
		Name:        "queue_length",
		Help:        "Items waiting in the queue",
		ConstLabels: labels,
	}, func() float64 { return float64(stats().Count) })
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   namespace,
		Subsystem:   "router",
		Name:        "queue_capacity",
		Help:        "Current queue capacity",
		ConstLabels: labels,
	}, func() float64 { return float64(stats().Capacity) })
	f.NewCounterFunc(prometheus.CounterOpts{
		Namespace:   namespace,
		Subsystem:   "router",
		Name:        "queue_dropped_total",
		Help:        "Items evicted because the queue was at its hard limit",
		ConstLabels: labels,
	}, func() float64 { return float64(stats().Dropped) })
}

// RegisterArchive exposes the archive writer's counters.
func (c *Collector) RegisterArchive(stats func() archive.WriterMetrics) {
	f := promauto.With(c.reg)

	counter := func(name, help string, get func(archive.WriterMetrics) int64) {
		f.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(get(stats())) })
	}

	counter("inserts_total", "Alert rows inserted", func(m archive.WriterMetrics) int64 { return m.Inserts })
	counter("conflicts_total", "Alert rows skipped as duplicates", func(m archive.WriterMetrics) int64 { return m.Conflicts })
	counter("errors_total", "Failed batch inserts", func(m archive.WriterMetrics) int64 { return m.Errors })
	counter("flushes_total", "Successful batch flushes", func(m archive.WriterMetrics) int64 { return m.Flushes })
}

func (c *Collector) setState(current connection.State) {
	for _, s := range streamStates {
		v := 0.0
		if s == current {
			v = 1
		}
		c.streamState.WithLabelValues(s.String()).Set(v)
	}
}
