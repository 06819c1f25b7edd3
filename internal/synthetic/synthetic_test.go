package synthetic

import (
	"testing"

	"github.com/jonboulle/clockwork"

	"github.com/rickgao/scamwatch-ops/internal/model"
)

func TestGenerator_Overview(t *testing.T) {
	clock := clockwork.NewFakeClock()
	g := New(WithSeed(1), WithClock(clock))

	for i := 0; i < 100; i++ {
		o := g.Overview()
		if o.TotalMessages <= 0 {
			t.Fatalf("TotalMessages = %d, want > 0", o.TotalMessages)
		}
		if o.ScamsDetected > o.TotalMessages {
			t.Errorf("ScamsDetected = %d exceeds TotalMessages = %d", o.ScamsDetected, o.TotalMessages)
		}
		if o.DetectionRate < 0 || o.DetectionRate > 1 {
			t.Errorf("DetectionRate = %v, want within [0,1]", o.DetectionRate)
		}
		if !o.UpdatedAt.Equal(clock.Now()) {
			t.Errorf("UpdatedAt = %v, want %v", o.UpdatedAt, clock.Now())
		}
	}
}

func TestGenerator_Metrics(t *testing.T) {
	g := New(WithSeed(2))

	for i := 0; i < 100; i++ {
		m := g.Metrics()
		if m.MessagesPerMinute <= 0 {
			t.Errorf("MessagesPerMinute = %v, want > 0", m.MessagesPerMinute)
		}
		if m.P95LatencyMs < m.AvgLatencyMs {
			t.Errorf("P95LatencyMs = %v below AvgLatencyMs = %v", m.P95LatencyMs, m.AvgLatencyMs)
		}
		if m.ErrorRate < 0 || m.ErrorRate > 1 {
			t.Errorf("ErrorRate = %v, want within [0,1]", m.ErrorRate)
		}
		if m.Timestamp.IsZero() {
			t.Error("Timestamp should not be zero")
		}
	}
}

func TestGenerator_Health(t *testing.T) {
	g := New(WithSeed(3), WithServices("api", "classifier"))

	h := g.Health()
	if len(h.Services) != 2 {
		t.Fatalf("len(Services) = %d, want 2", len(h.Services))
	}
	if h.Services[0].Name != "api" || h.Services[1].Name != "classifier" {
		t.Errorf("services = %v, want [api classifier]", h.Services)
	}
	if h.Status != h.Overall() {
		t.Errorf("Status = %s, want %s", h.Status, h.Overall())
	}
	if h.Status == model.HealthUnhealthy {
		t.Errorf("synthetic health should never be unhealthy")
	}
}

func TestGenerator_Deterministic(t *testing.T) {
	clock := clockwork.NewFakeClock()
	a := New(WithSeed(42), WithClock(clock))
	b := New(WithSeed(42), WithClock(clock))

	if a.Overview() != b.Overview() {
		t.Error("same seed should produce the same overview")
	}
}
