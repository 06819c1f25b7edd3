package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// Execer is the subset of pgxpool.Pool used to apply the schema.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// schemaStatements create the archive table. Each statement is idempotent.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS dashboard_alerts (
	id          TEXT PRIMARY KEY,
	severity    TEXT NOT NULL,
	title       TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	source      TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL,
	received_at TIMESTAMPTZ NOT NULL,
	stream_seq  BIGINT NOT NULL,
	payload     JSONB NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS dashboard_alerts_created_at_idx ON dashboard_alerts (created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS dashboard_alerts_severity_idx ON dashboard_alerts (severity, created_at DESC)`,
}

// EnsureSchema creates the archive table and its indexes if they do not exist.
func EnsureSchema(ctx context.Context, db Execer) error {
	for i, stmt := range schemaStatements {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i, err)
		}
	}
	return nil
}
