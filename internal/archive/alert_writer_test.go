package archive

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jonboulle/clockwork"

	"github.com/rickgao/scamwatch-ops/internal/model"
	"github.com/rickgao/scamwatch-ops/internal/router"
)

// fakeDB records queued statements and answers each Exec from a set of
// already-seen ids, mimicking ON CONFLICT (id) DO NOTHING.
type fakeDB struct {
	mu      sync.Mutex
	seen    map[string]bool
	batches [][]pgx.QueuedQuery
	err     error
}

func newFakeDB() *fakeDB {
	return &fakeDB{seen: make(map[string]bool)}
}

func (f *fakeDB) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	f.mu.Lock()
	defer f.mu.Unlock()

	queued := make([]pgx.QueuedQuery, 0, len(b.QueuedQueries))
	tags := make([]pgconn.CommandTag, 0, len(b.QueuedQueries))
	for _, q := range b.QueuedQueries {
		queued = append(queued, *q)
		id := q.Arguments[0].(string)
		if f.seen[id] {
			tags = append(tags, pgconn.NewCommandTag("INSERT 0 0"))
			continue
		}
		f.seen[id] = true
		tags = append(tags, pgconn.NewCommandTag("INSERT 0 1"))
	}
	f.batches = append(f.batches, queued)
	return &fakeResults{tags: tags, err: f.err}
}

func (f *fakeDB) rows() []pgx.QueuedQuery {
	f.mu.Lock()
	defer f.mu.Unlock()
	var all []pgx.QueuedQuery
	for _, b := range f.batches {
		all = append(all, b...)
	}
	return all
}

func (f *fakeDB) batchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

type fakeResults struct {
	tags []pgconn.CommandTag
	err  error
	i    int
}

func (r *fakeResults) Exec() (pgconn.CommandTag, error) {
	if r.err != nil {
		return pgconn.CommandTag{}, r.err
	}
	ct := r.tags[r.i]
	r.i++
	return ct, nil
}

func (r *fakeResults) Query() (pgx.Rows, error) { return nil, errors.New("not implemented") }
func (r *fakeResults) QueryRow() pgx.Row        { return nil }
func (r *fakeResults) Close() error             { return nil }

func alertMsg(id string, seq uint64) router.AlertMsg {
	return router.AlertMsg{
		Alert: model.Alert{
			ID:        id,
			Severity:  model.SeverityHigh,
			Title:     "Spike in impersonation reports",
			Message:   "42 reports in 5 minutes",
			Source:    "classifier",
			CreatedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		},
		Seq:        seq,
		ReceivedAt: time.Date(2026, 3, 1, 9, 0, 1, 0, time.UTC),
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestAlertWriter_Transform(t *testing.T) {
	w := NewAlertWriter(DefaultWriterConfig(), nil, nil, nil)

	row := w.transform(alertMsg("alert-1", 7))

	if row.ID != "alert-1" {
		t.Errorf("ID = %s, want alert-1", row.ID)
	}
	if row.Severity != "high" {
		t.Errorf("Severity = %s, want high", row.Severity)
	}
	if row.Description != "42 reports in 5 minutes" {
		t.Errorf("Description = %q", row.Description)
	}
	if row.StreamSeq != 7 {
		t.Errorf("StreamSeq = %d, want 7", row.StreamSeq)
	}
	if !row.CreatedAt.Equal(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)) {
		t.Errorf("CreatedAt = %v", row.CreatedAt)
	}

	var payload model.Alert
	if err := json.Unmarshal(row.Payload, &payload); err != nil {
		t.Fatalf("payload is not json: %v", err)
	}
	if payload.Title != "Spike in impersonation reports" {
		t.Errorf("payload title = %q", payload.Title)
	}
}

func TestAlertWriter_Transform_MissingID(t *testing.T) {
	w := NewAlertWriter(DefaultWriterConfig(), nil, nil, nil)

	msg := alertMsg("", 1)
	msg.Alert.CreatedAt = time.Time{}

	a := w.transform(msg)
	b := w.transform(msg)

	if a.ID == "" {
		t.Fatal("ID is empty, want generated uuid")
	}
	if a.ID == b.ID {
		t.Errorf("generated ids collide: %s", a.ID)
	}
	if !a.CreatedAt.Equal(msg.ReceivedAt) {
		t.Errorf("CreatedAt = %v, want ReceivedAt %v", a.CreatedAt, msg.ReceivedAt)
	}
}

func TestAlertWriter_FlushOnBatchSize(t *testing.T) {
	db := newFakeDB()
	input := router.NewGrowableBuffer[router.AlertMsg](16, 0)
	cfg := WriterConfig{BatchSize: 3, FlushInterval: time.Hour}
	w := NewAlertWriter(cfg, input, db, nil, WithClock(clockwork.NewFakeClock()))

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop(context.Background())

	for i := 1; i <= 3; i++ {
		input.Send(alertMsg("alert-"+string(rune('a'+i)), uint64(i)))
	}

	waitFor(t, func() bool { return w.Stats().Flushes == 1 })

	stats := w.Stats()
	if stats.Inserts != 3 {
		t.Errorf("Inserts = %d, want 3", stats.Inserts)
	}
	if db.batchCount() != 1 {
		t.Errorf("batches = %d, want 1", db.batchCount())
	}
}

func TestAlertWriter_FlushOnInterval(t *testing.T) {
	db := newFakeDB()
	clock := clockwork.NewFakeClock()
	input := router.NewGrowableBuffer[router.AlertMsg](16, 0)
	cfg := WriterConfig{BatchSize: 100, FlushInterval: 5 * time.Second}
	w := NewAlertWriter(cfg, input, db, nil, WithClock(clock))

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop(context.Background())

	input.Send(alertMsg("alert-1", 1))
	waitFor(t, func() bool { return w.Pending() == 1 })

	if db.batchCount() != 0 {
		t.Fatalf("flushed before interval elapsed")
	}

	clock.Advance(5 * time.Second)
	waitFor(t, func() bool { return w.Stats().Flushes == 1 })

	if w.Pending() != 0 {
		t.Errorf("Pending = %d, want 0 after flush", w.Pending())
	}
}

func TestAlertWriter_ConflictsCounted(t *testing.T) {
	db := newFakeDB()
	input := router.NewGrowableBuffer[router.AlertMsg](16, 0)
	cfg := WriterConfig{BatchSize: 2, FlushInterval: time.Hour}
	w := NewAlertWriter(cfg, input, db, nil, WithClock(clockwork.NewFakeClock()))

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop(context.Background())

	// Same alert replayed after a reconnect.
	input.Send(alertMsg("alert-1", 1))
	input.Send(alertMsg("alert-1", 9))

	waitFor(t, func() bool { return w.Stats().Flushes == 1 })

	stats := w.Stats()
	if stats.Inserts != 1 {
		t.Errorf("Inserts = %d, want 1", stats.Inserts)
	}
	if stats.Conflicts != 1 {
		t.Errorf("Conflicts = %d, want 1", stats.Conflicts)
	}
}

func TestAlertWriter_InsertError(t *testing.T) {
	db := newFakeDB()
	db.err = errors.New("connection reset")
	input := router.NewGrowableBuffer[router.AlertMsg](16, 0)
	cfg := WriterConfig{BatchSize: 1, FlushInterval: time.Hour}
	w := NewAlertWriter(cfg, input, db, nil, WithClock(clockwork.NewFakeClock()))

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop(context.Background())

	input.Send(alertMsg("alert-1", 1))
	waitFor(t, func() bool { return w.Stats().Errors == 1 })

	stats := w.Stats()
	if stats.Inserts != 0 || stats.Flushes != 0 {
		t.Errorf("Stats = %+v, want no inserts or flushes", stats)
	}
}

func TestAlertWriter_StopDrainsQueue(t *testing.T) {
	db := newFakeDB()
	input := router.NewGrowableBuffer[router.AlertMsg](16, 0)
	cfg := WriterConfig{BatchSize: 100, FlushInterval: time.Hour}
	w := NewAlertWriter(cfg, input, db, nil, WithClock(clockwork.NewFakeClock()))

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	for i := 0; i < 5; i++ {
		input.Send(alertMsg("", uint64(i)))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := w.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if got := len(db.rows()); got != 5 {
		t.Errorf("archived rows = %d, want 5", got)
	}
	if input.Len() != 0 {
		t.Errorf("queue Len = %d, want 0", input.Len())
	}
}

func TestAlertWriter_StartRequiresDeps(t *testing.T) {
	w := NewAlertWriter(DefaultWriterConfig(), nil, newFakeDB(), nil)
	if err := w.Start(context.Background()); err == nil {
		t.Error("Start without input expected error")
	}

	input := router.NewGrowableBuffer[router.AlertMsg](4, 0)
	w = NewAlertWriter(DefaultWriterConfig(), input, nil, nil)
	if err := w.Start(context.Background()); err == nil {
		t.Error("Start without database expected error")
	}
}

func TestNewAlertWriter_Defaults(t *testing.T) {
	w := NewAlertWriter(WriterConfig{}, nil, nil, nil)
	want := DefaultWriterConfig()
	if w.cfg != want {
		t.Errorf("cfg = %+v, want %+v", w.cfg, want)
	}
}
