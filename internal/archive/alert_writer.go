package archive

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jonboulle/clockwork"

	"github.com/rickgao/scamwatch-ops/internal/router"
)

const insertAlertSQL = `
	INSERT INTO dashboard_alerts (id, severity, title, description, source, created_at, received_at, stream_seq, payload)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (id) DO NOTHING
`

// Option configures an AlertWriter.
type Option func(*AlertWriter)

// WithClock sets the clock driving the flush ticker.
func WithClock(c clockwork.Clock) Option {
	return func(w *AlertWriter) {
		w.clock = c
	}
}

// AlertWriter consumes AlertMsg from the router queue and writes to dashboard_alerts.
type AlertWriter struct {
	cfg    WriterConfig
	logger *slog.Logger
	clock  clockwork.Clock

	// Input from the stream router
	input *router.GrowableBuffer[router.AlertMsg]

	// Database
	db BatchSender

	// Batching
	batch   []alertRow
	batchMu sync.Mutex
	flushMu sync.Mutex

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Metrics
	metrics WriterMetrics
}

// NewAlertWriter creates a new AlertWriter.
func NewAlertWriter(
	cfg WriterConfig,
	input *router.GrowableBuffer[router.AlertMsg],
	db BatchSender,
	logger *slog.Logger,
	opts ...Option,
) *AlertWriter {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultWriterConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	w := &AlertWriter{
		cfg:    cfg,
		input:  input,
		db:     db,
		logger: logger.With("component", "alert_writer"),
		clock:  clockwork.NewRealClock(),
		batch:  make([]alertRow, 0, cfg.BatchSize),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins consuming alerts and writing to the database.
func (w *AlertWriter) Start(ctx context.Context) error {
	if w.input == nil {
		return errors.New("alert writer has no input queue")
	}
	if w.db == nil {
		return errors.New("alert writer has no database")
	}

	w.ctx, w.cancel = context.WithCancel(ctx)
	ticker := w.clock.NewTicker(w.cfg.FlushInterval)

	// Consumer goroutine
	w.wg.Add(1)
	go w.consumeLoop()

	// Flush ticker goroutine
	w.wg.Add(1)
	go w.flushLoop(ticker)

	w.logger.Info("alert writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop drains whatever is left in the queue, writes it, and shuts down.
func (w *AlertWriter) Stop(ctx context.Context) error {
	w.logger.Info("stopping alert writer")

	if w.cancel != nil {
		w.cancel()
	}

	// Wait for goroutines
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("alert writer stopped")
	case <-ctx.Done():
		w.logger.Warn("alert writer stop timed out")
		return ctx.Err()
	}

	if w.input != nil {
		for _, msg := range w.input.DrainTo(0) {
			w.append(msg)
		}
	}

	// Final flush runs on the caller's context; the writer's own is cancelled.
	return w.flush(ctx)
}

// Stats returns current metrics.
func (w *AlertWriter) Stats() WriterMetrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

// Pending returns the number of rows waiting for the next flush.
func (w *AlertWriter) Pending() int {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return len(w.batch)
}

// consumeLoop reads from the input queue and accumulates batches.
func (w *AlertWriter) consumeLoop() {
	defer w.wg.Done()

	for {
		msg, ok := w.input.ReceiveContext(w.ctx)
		if !ok {
			return
		}
		if w.append(msg) {
			w.flush(w.ctx)
		}
	}
}

// flushLoop periodically flushes the batch.
func (w *AlertWriter) flushLoop(ticker clockwork.Ticker) {
	defer w.wg.Done()
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.Chan():
			w.flush(w.ctx)
		}
	}
}

// append adds a message to the batch and reports whether the batch is full.
func (w *AlertWriter) append(msg router.AlertMsg) bool {
	row := w.transform(msg)

	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	w.batch = append(w.batch, row)
	return len(w.batch) >= w.cfg.BatchSize
}

// transform converts an AlertMsg to an alertRow.
func (w *AlertWriter) transform(msg router.AlertMsg) alertRow {
	a := msg.Alert
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	createdAt := a.CreatedAt
	if createdAt.IsZero() {
		createdAt = msg.ReceivedAt
	}

	payload, err := json.Marshal(a)
	if err != nil {
		// Alert holds only plain fields; keep the row rather than lose it.
		w.logger.Warn("marshal alert payload", "id", a.ID, "error", err)
		payload = []byte("{}")
	}

	return alertRow{
		ID:          a.ID,
		Severity:    string(a.Severity),
		Title:       a.Title,
		Description: a.Message,
		Source:      a.Source,
		CreatedAt:   createdAt.UTC(),
		ReceivedAt:  msg.ReceivedAt.UTC(),
		StreamSeq:   int64(msg.Seq),
		Payload:     payload,
	}
}

// flush writes the current batch to the database.
func (w *AlertWriter) flush(ctx context.Context) error {
	w.flushMu.Lock()
	defer w.flushMu.Unlock()

	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return nil
	}

	// Take ownership of current batch
	batch := w.batch
	w.batch = make([]alertRow, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

	conflicts, err := w.batchInsert(ctx, batch)
	if err != nil {
		w.logger.Error("batch insert failed", "error", err, "count", len(batch))
		w.batchMu.Lock()
		w.metrics.Errors++
		w.batchMu.Unlock()
		return err
	}

	w.batchMu.Lock()
	w.metrics.Inserts += int64(len(batch) - conflicts)
	w.metrics.Conflicts += int64(conflicts)
	w.metrics.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed alerts",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
	return nil
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (w *AlertWriter) batchInsert(ctx context.Context, rows []alertRow) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(insertAlertSQL,
			r.ID, r.Severity, r.Title, r.Description, r.Source,
			r.CreatedAt, r.ReceivedAt, r.StreamSeq, r.Payload)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}
