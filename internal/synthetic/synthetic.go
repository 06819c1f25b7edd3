// Package synthetic produces plausible stand-in values for the dashboard's
// REST resources. Values have the same shape as real responses; the ranges
// are cosmetic.
package synthetic

import (
	"math"
	"math/rand/v2"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/rickgao/scamwatch-ops/internal/model"
)

// DefaultServices are the backend services reported in synthetic health.
var DefaultServices = []string{"api", "classifier", "stream", "database", "queue"}

// Generator creates synthetic dashboard data. It is safe for concurrent use.
type Generator struct {
	clock    clockwork.Clock
	services []string

	mu  sync.Mutex
	rng *rand.Rand
}

// Option configures a Generator.
type Option func(*Generator)

// WithClock sets the clock used for timestamps.
func WithClock(clock clockwork.Clock) Option {
	return func(g *Generator) {
		if clock != nil {
			g.clock = clock
		}
	}
}

// WithSeed makes output deterministic.
func WithSeed(seed uint64) Option {
	return func(g *Generator) {
		g.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
}

// WithServices overrides the services listed in synthetic health reports.
func WithServices(names ...string) Option {
	return func(g *Generator) {
		if len(names) > 0 {
			g.services = append([]string(nil), names...)
		}
	}
}

// New creates a Generator.
func New(opts ...Option) *Generator {
	g := &Generator{
		clock:    clockwork.NewRealClock(),
		services: DefaultServices,
		rng:      rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Overview returns a synthetic Overview.
func (g *Generator) Overview() model.Overview {
	g.mu.Lock()
	defer g.mu.Unlock()

	total := g.between(80_000, 150_000)
	scams := int64(float64(total) * g.uniform(0.01, 0.04))

	return model.Overview{
		TotalMessages:  total,
		ScamsDetected:  scams,
		DetectionRate:  round(float64(scams)/float64(total), 4),
		ActiveUsers:    g.between(5_000, 12_000),
		ReportsPending: g.between(0, 60),
		AvgResponseMs:  round(g.uniform(40, 180), 1),
		UpdatedAt:      g.clock.Now().UTC(),
	}
}

// Metrics returns a synthetic MetricsSnapshot.
func (g *Generator) Metrics() model.MetricsSnapshot {
	g.mu.Lock()
	defer g.mu.Unlock()

	mpm := g.uniform(600, 1400)
	avg := g.uniform(40, 160)

	return model.MetricsSnapshot{
		Timestamp:         g.clock.Now().UTC(),
		MessagesPerMinute: round(mpm, 1),
		ScamsPerMinute:    round(mpm*g.uniform(0.01, 0.04), 1),
		AvgLatencyMs:      round(avg, 1),
		P95LatencyMs:      round(avg*g.uniform(1.8, 3.2), 1),
		ErrorRate:         round(g.uniform(0, 0.02), 4),
		QueueDepth:        g.between(0, 500),
	}
}

// Health returns a synthetic HealthReport, mostly healthy.
func (g *Generator) Health() model.HealthReport {
	g.mu.Lock()
	defer g.mu.Unlock()

	services := make([]model.ServiceHealth, 0, len(g.services))
	for _, name := range g.services {
		status := model.HealthHealthy
		if g.rng.Float64() < 0.1 {
			status = model.HealthDegraded
		}
		services = append(services, model.ServiceHealth{
			Name:      name,
			Status:    status,
			LatencyMs: round(g.uniform(2, 120), 1),
			Uptime:    round(g.uniform(0.98, 1), 4),
		})
	}

	report := model.HealthReport{
		Services:  services,
		CheckedAt: g.clock.Now().UTC(),
	}
	report.Status = report.Overall()
	return report
}

func (g *Generator) uniform(lo, hi float64) float64 {
	return lo + g.rng.Float64()*(hi-lo)
}

func (g *Generator) between(lo, hi int64) int64 {
	return lo + g.rng.Int64N(hi-lo+1)
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
