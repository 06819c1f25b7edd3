package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/scamwatch-ops/internal/api"
	"github.com/rickgao/scamwatch-ops/internal/auth"
	"github.com/rickgao/scamwatch-ops/internal/config"
	"github.com/rickgao/scamwatch-ops/internal/connection"
	"github.com/rickgao/scamwatch-ops/internal/model"
	"github.com/rickgao/scamwatch-ops/internal/synthetic"
)

// fakeBackend serves the REST resources and the live stream.
type fakeBackend struct {
	*httptest.Server

	restStatus   atomic.Int32 // 0 means 200
	streamed     [][]byte
	tokens       chan string
	activeAlerts atomic.Pointer[[]model.Alert] // nil serves 404
}

func newFakeBackend(t *testing.T, streamed ...string) *fakeBackend {
	t.Helper()

	b := &fakeBackend{tokens: make(chan string, 16)}
	for _, s := range streamed {
		b.streamed = append(b.streamed, []byte(s))
	}

	rest := func(v any) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if status := int(b.restStatus.Load()); status != 0 {
				w.WriteHeader(status)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(v)
		}
	}

	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

	mux := http.NewServeMux()
	mux.HandleFunc(api.PathOverview, rest(model.Overview{TotalMessages: 1200, ScamsDetected: 37}))
	mux.HandleFunc(api.PathMetrics, rest(model.MetricsSnapshot{MessagesPerMinute: 88}))
	mux.HandleFunc(api.PathHealth, rest(model.HealthReport{
		Services: []model.ServiceHealth{{Name: "classifier", Status: model.HealthHealthy}},
	}))
	mux.HandleFunc(api.PathActiveAlerts, func(w http.ResponseWriter, r *http.Request) {
		alerts := b.activeAlerts.Load()
		if alerts == nil {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"alerts": *alerts})
	})
	mux.HandleFunc("/ws/dashboard", func(w http.ResponseWriter, r *http.Request) {
		b.tokens <- r.URL.Query().Get("token")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, msg := range b.streamed {
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	b.Server = httptest.NewServer(mux)
	t.Cleanup(b.Server.Close)
	return b
}

type recordingDB struct {
	mu  sync.Mutex
	ids []string
}

func (r *recordingDB) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, q := range b.QueuedQueries {
		r.ids = append(r.ids, q.Arguments[0].(string))
	}
	return &okResults{}
}

func (r *recordingDB) archived() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ids...)
}

type okResults struct{}

func (okResults) Exec() (pgconn.CommandTag, error) { return pgconn.NewCommandTag("INSERT 0 1"), nil }
func (okResults) Query() (pgx.Rows, error)         { return nil, nil }
func (okResults) QueryRow() pgx.Row                { return nil }
func (okResults) Close() error                     { return nil }

func testConfig(origin string) *config.Config {
	cfg := &config.Config{
		Instance: config.InstanceConfig{ID: "test-dash"},
		Backend:  config.BackendConfig{Origin: origin},
	}
	cfg.ApplyDefaults()
	cfg.Backend.MaxRetries = 0
	cfg.Backend.Timeout = 2 * time.Second
	return cfg
}

func newTestDashboard(t *testing.T, cfg *config.Config, deps Deps) (*Dashboard, *clockwork.FakeClock) {
	t.Helper()

	clock := clockwork.NewFakeClock()
	deps.Clock = clock
	if deps.Tokens == nil {
		deps.Tokens = auth.StaticToken("test-token")
	}
	if deps.Synthetic == nil {
		deps.Synthetic = synthetic.New(synthetic.WithClock(clock), synthetic.WithSeed(7))
	}

	d, err := New(cfg, deps)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		d.Stop(ctx)
	})
	return d, clock
}

func TestNew_NilConfig(t *testing.T) {
	_, err := New(nil, Deps{})
	assert.Error(t, err)
}

func TestNew_ArchiveRequiresDatabase(t *testing.T) {
	cfg := testConfig("http://localhost:1")
	cfg.Archive.Enabled = true

	_, err := New(cfg, Deps{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "archive enabled")
}

func TestDashboard_SnapshotFromBackend(t *testing.T) {
	backend := newFakeBackend(t,
		`{"type":"metrics_update","data":{"messages_per_minute":140,"queue_depth":3}}`,
		`{"type":"alert","data":{"id":"a-1","severity":"critical","title":"Phishing wave"}}`,
	)
	d, _ := newTestDashboard(t, testConfig(backend.URL), Deps{})

	require.NoError(t, d.Start(context.Background()))

	assert.Equal(t, "test-token", <-backend.tokens)

	require.Eventually(t, func() bool {
		v := d.Snapshot()
		return v.Overview.Data != nil && v.Metrics.Data != nil && v.Health.Data != nil &&
			v.LiveMetrics != nil && len(v.RecentAlerts) == 1
	}, 3*time.Second, 10*time.Millisecond)

	v := d.Snapshot()
	assert.Equal(t, "test-dash", v.Instance)
	assert.Equal(t, connection.StateConnected, v.Connection.State)
	assert.NotNil(t, v.Connection.LastMessageAt)

	assert.Equal(t, int64(1200), v.Overview.Data.TotalMessages)
	assert.False(t, v.Overview.UsingFallback)
	assert.False(t, v.Overview.IsStale)
	assert.Empty(t, v.Overview.Error)
	assert.True(t, v.Overview.Running)
	assert.NotNil(t, v.Overview.LastSuccess)

	assert.Equal(t, model.HealthHealthy, v.Health.Data.Status)
	assert.Equal(t, 140.0, v.LiveMetrics.MessagesPerMinute)
	assert.Equal(t, "Phishing wave", v.RecentAlerts[0].Title)
	assert.Len(t, v.ActiveAlerts, 1)
}

func TestDashboard_FallbackWhenBackendDown(t *testing.T) {
	backend := newFakeBackend(t)
	backend.restStatus.Store(http.StatusBadGateway)

	d, _ := newTestDashboard(t, testConfig(backend.URL), Deps{})
	require.NoError(t, d.Start(context.Background()))

	require.Eventually(t, func() bool {
		return d.Snapshot().Overview.Data != nil
	}, 3*time.Second, 10*time.Millisecond)

	p := d.Snapshot().Overview
	assert.True(t, p.UsingFallback)
	assert.True(t, p.IsStale, "synthetic data never counts as a success")
	assert.Contains(t, p.Error, "502")
	assert.Nil(t, p.LastSuccess)
}

func TestDashboard_FallbackDisabled(t *testing.T) {
	backend := newFakeBackend(t)
	backend.restStatus.Store(http.StatusInternalServerError)

	cfg := testConfig(backend.URL)
	off := false
	cfg.Sources.Metrics.Fallback = &off

	d, _ := newTestDashboard(t, cfg, Deps{})
	require.NoError(t, d.Start(context.Background()))

	require.Eventually(t, func() bool {
		return d.Snapshot().Metrics.Error != ""
	}, 3*time.Second, 10*time.Millisecond)

	p := d.Snapshot().Metrics
	assert.Nil(t, p.Data)
	assert.False(t, p.UsingFallback)
	assert.True(t, p.IsStale)
}

func TestDashboard_AutoStartDisabled(t *testing.T) {
	backend := newFakeBackend(t)
	cfg := testConfig(backend.URL)
	off := false
	cfg.Sources.Health.AutoStart = &off

	d, _ := newTestDashboard(t, cfg, Deps{})
	require.NoError(t, d.Start(context.Background()))

	require.Eventually(t, func() bool {
		return d.Snapshot().Overview.Data != nil
	}, 3*time.Second, 10*time.Millisecond)

	v := d.Snapshot()
	assert.False(t, v.Health.Running)
	assert.Nil(t, v.Health.Data)
	assert.Equal(t, int64(0), v.Health.Stats.Fetches)

	started, err := d.Refresh(SourceHealth)
	require.NoError(t, err)
	assert.True(t, started)
	require.Eventually(t, func() bool {
		return d.Snapshot().Health.Data != nil
	}, 3*time.Second, 10*time.Millisecond)
}

func TestDashboard_RefreshUnknownSource(t *testing.T) {
	d, _ := newTestDashboard(t, testConfig("http://localhost:1"), Deps{})

	_, err := d.Refresh("alerts")
	assert.EqualError(t, err, `unknown source "alerts"`)
}

func TestDashboard_StartStopLifecycle(t *testing.T) {
	backend := newFakeBackend(t)
	d, _ := newTestDashboard(t, testConfig(backend.URL), Deps{})

	require.NoError(t, d.Start(context.Background()))
	assert.Error(t, d.Start(context.Background()), "second Start")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Stop(ctx))
	require.NoError(t, d.Stop(ctx), "Stop is idempotent")

	assert.Error(t, d.Start(context.Background()), "Start after Stop")
	assert.False(t, d.Snapshot().Overview.Running)
}

func TestDashboard_StopWithoutStart(t *testing.T) {
	d, _ := newTestDashboard(t, testConfig("http://localhost:1"), Deps{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, d.Stop(ctx))
}

func TestDashboard_Subscribe(t *testing.T) {
	backend := newFakeBackend(t)
	d, _ := newTestDashboard(t, testConfig(backend.URL), Deps{})

	changes, unsubscribe := d.Subscribe()
	defer unsubscribe()

	require.NoError(t, d.Start(context.Background()))

	select {
	case <-changes:
	case <-time.After(3 * time.Second):
		t.Fatal("no change signal after start")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Stop(ctx))

	// Drain any pending signal; the channel must then be closed.
	for range changes {
	}
}

func TestDashboard_ArchivesStreamedAlerts(t *testing.T) {
	backend := newFakeBackend(t,
		`{"type":"alert","data":{"id":"a-1","severity":"high","title":"One"}}`,
		`{"type":"alert","data":{"id":"a-2","severity":"low","title":"Two"}}`,
	)
	cfg := testConfig(backend.URL)
	cfg.Archive.Enabled = true
	cfg.Archive.BatchSize = 100

	db := &recordingDB{}
	d, _ := newTestDashboard(t, cfg, Deps{ArchiveDB: db})
	require.NoError(t, d.Start(context.Background()))

	require.Eventually(t, func() bool {
		return len(d.Snapshot().RecentAlerts) == 2
	}, 3*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Stop(ctx))

	assert.ElementsMatch(t, []string{"a-1", "a-2"}, db.archived())
}

func TestDashboard_ResyncActiveAlertsOnConnect(t *testing.T) {
	backend := newFakeBackend(t)
	backend.activeAlerts.Store(&[]model.Alert{
		{ID: "open-1", Severity: model.SeverityLow, Title: "Old report backlog"},
		{ID: "open-2", Severity: model.SeverityCritical, Title: "Classifier offline"},
	})

	d, _ := newTestDashboard(t, testConfig(backend.URL), Deps{})
	require.NoError(t, d.Start(context.Background()))

	require.Eventually(t, func() bool {
		return len(d.Snapshot().ActiveAlerts) == 2
	}, 3*time.Second, 10*time.Millisecond)

	active := d.Snapshot().ActiveAlerts
	assert.Equal(t, "open-2", active[0].ID)
	assert.Empty(t, d.Snapshot().RecentAlerts, "resync does not touch the streamed feed")
}

func wsURL(server *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(server.URL, "http") + path
}
