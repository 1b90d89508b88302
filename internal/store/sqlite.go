// Copyright 2025 James Ross
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore backs the queue with a single-writer SQLite database, used by
// tests and single-node/dev deployments. SQLite has no row-level locking, so
// "claim" is implemented as select-candidates-then-update inside one
// transaction; SQLite's own writer serialization gives the same
// at-most-one-worker-per-claim guarantee FOR UPDATE SKIP LOCKED gives
// Postgres.
type SQLiteStore struct {
	baseStore
}

// NewSQLiteStore opens path (use ":memory:" for ephemeral stores), applies
// migrations, and caps the connection pool at one connection so writers
// never race past SQLite's own lock.
func NewSQLiteStore(ctx context.Context, path string, migrationsDir string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("store: ping sqlite: %w", err)
	}
	if err := applyMigrations(db, migrationsDir); err != nil {
		return nil, err
	}
	return &SQLiteStore{baseStore: baseStore{db: db, rebind: nil}}, nil
}

func (s *SQLiteStore) ClaimWorkItems(ctx context.Context, workerID string, limit int, leaseSeconds int) ([]WorkItem, error) {
	ids, err := claimIDsWithLock(ctx, s.db, identity, "work_items", "work_item_id", workerID, limit, leaseSeconds,
		"status = 'pending'", "status = 'in_progress'", "status = 'in_progress', locked_by = ?, lock_expires_utc = ?, attempt = attempt + 1, updated_utc = ?", "")
	if err != nil {
		return nil, fmt.Errorf("store: claim work items: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return loadWorkItemsByID(ctx, s.db, identity, ids)
}

func (s *SQLiteStore) ClaimJobs(ctx context.Context, workerID string, limit int, leaseSeconds int) ([]Job, error) {
	ids, err := claimIDsWithLock(ctx, s.db, identity, "jobs", "job_id", workerID, limit, leaseSeconds,
		"status = 'queued'", "status = 'running'", "status = 'running', locked_by = ?, lock_expires_utc = ?, attempt_count = attempt_count + 1", "")
	if err != nil {
		return nil, fmt.Errorf("store: claim jobs: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return loadJobsByID(ctx, s.db, identity, ids)
}

func identity(q string) string { return q }
