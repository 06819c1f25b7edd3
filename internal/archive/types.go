package archive

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
)

// WriterConfig holds batching settings.
type WriterConfig struct {
	BatchSize     int
	FlushInterval time.Duration
}

// DefaultWriterConfig returns the default batching settings.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		BatchSize:     500,
		FlushInterval: 5 * time.Second,
	}
}

// WriterMetrics tracks writer throughput.
type WriterMetrics struct {
	Inserts   int64 `json:"inserts"`
	Conflicts int64 `json:"conflicts"`
	Errors    int64 `json:"errors"`
	Flushes   int64 `json:"flushes"`
}

// BatchSender sends a queued batch. *pgxpool.Pool satisfies it.
type BatchSender interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// alertRow is one dashboard_alerts row.
type alertRow struct {
	ID          string
	Severity    string
	Title       string
	Description string
	Source      string
	CreatedAt   time.Time
	ReceivedAt  time.Time
	StreamSeq   int64
	Payload     []byte
}
