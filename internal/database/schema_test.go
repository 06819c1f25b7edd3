package database

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

type recordingExecer struct {
	stmts  []string
	failAt int
}

func (r *recordingExecer) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	r.stmts = append(r.stmts, sql)
	if r.failAt > 0 && len(r.stmts) == r.failAt {
		return pgconn.CommandTag{}, errors.New("permission denied")
	}
	return pgconn.NewCommandTag("CREATE TABLE"), nil
}

func TestEnsureSchema(t *testing.T) {
	db := &recordingExecer{}
	if err := EnsureSchema(context.Background(), db); err != nil {
		t.Fatalf("EnsureSchema failed: %v", err)
	}

	if len(db.stmts) != len(schemaStatements) {
		t.Fatalf("executed %d statements, want %d", len(db.stmts), len(schemaStatements))
	}
	if !strings.Contains(db.stmts[0], "CREATE TABLE IF NOT EXISTS dashboard_alerts") {
		t.Errorf("first statement = %q, want dashboard_alerts table", db.stmts[0])
	}
	for i, stmt := range db.stmts {
		if !strings.Contains(stmt, "IF NOT EXISTS") {
			t.Errorf("statement %d is not idempotent: %q", i, stmt)
		}
	}
}

func TestEnsureSchemaError(t *testing.T) {
	db := &recordingExecer{failAt: 2}
	err := EnsureSchema(context.Background(), db)
	if err == nil {
		t.Fatal("EnsureSchema expected error")
	}
	if !strings.Contains(err.Error(), "apply schema statement 1") {
		t.Errorf("error = %q, want statement index 1", err.Error())
	}
	if len(db.stmts) != 2 {
		t.Errorf("executed %d statements, want to stop after failure at 2", len(db.stmts))
	}
}
