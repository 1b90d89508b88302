// Copyright 2025 James Ross
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/lib/pq"
)

// PostgresStore backs the queue with Postgres row-locking: Claim* runs
// "SELECT ... FOR UPDATE SKIP LOCKED" inside a transaction so concurrent
// claimers never contend on the same row and never block behind one
// another's lock.
type PostgresStore struct {
	baseStore
}

// NewPostgresStore opens dsn, applies pending migrations, and returns a
// ready Backend. migrationsDir defaults to the package's bundled
// migrations/ tree when empty.
func NewPostgresStore(ctx context.Context, dsn string, migrationsDir string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("store: ping postgres: %w", err)
	}
	if err := applyMigrations(db, migrationsDir); err != nil {
		return nil, err
	}
	return &PostgresStore{baseStore: baseStore{db: db, rebind: rebindDollar}}, nil
}

func rebindDollar(query string) string {
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (p *PostgresStore) ClaimWorkItems(ctx context.Context, workerID string, limit int, leaseSeconds int) ([]WorkItem, error) {
	var ids []string
	op := func() error {
		got, err := claimIDs(ctx, p.db, p.rebind, "work_items", "work_item_id", workerID, limit, leaseSeconds,
			"status = 'pending'", "status = 'in_progress'", "status = 'in_progress', locked_by = ?, lock_expires_utc = ?, attempt = attempt + 1, updated_utc = ?")
		if err != nil {
			if isSerializationFailure(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		ids = got
		return nil
	}
	if err := retryClaim(ctx, op); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return p.loadWorkItems(ctx, ids)
}

func (p *PostgresStore) ClaimJobs(ctx context.Context, workerID string, limit int, leaseSeconds int) ([]Job, error) {
	var ids []string
	op := func() error {
		got, err := claimIDs(ctx, p.db, p.rebind, "jobs", "job_id", workerID, limit, leaseSeconds,
			"status = 'queued'", "status = 'running'", "status = 'running', locked_by = ?, lock_expires_utc = ?, attempt_count = attempt_count + 1")
		if err != nil {
			if isSerializationFailure(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		ids = got
		return nil
	}
	if err := retryClaim(ctx, op); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return p.loadJobs(ctx, ids)
}

func isSerializationFailure(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "deadlock") || strings.Contains(msg, "serialization")
}

// retryClaim bounds claim-transaction deadlock/serialization retries to 5
// attempts with small jitter (Open Question b).
func retryClaim(ctx context.Context, op backoff.Operation) error {
	// WithMaxRetries counts retries after the first try: 4 retries = 5 attempts.
	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 4)
	return backoff.Retry(op, backoff.WithContext(policy, ctx))
}

func claimIDs(ctx context.Context, db *sql.DB, rebind func(string) string, table, idCol, workerID string, limit, leaseSeconds int, claimableWhere, staleWhere, setClause string) ([]string, error) {
	return claimIDsWithLock(ctx, db, rebind, table, idCol, workerID, limit, leaseSeconds, claimableWhere, staleWhere, setClause, "FOR UPDATE SKIP LOCKED")
}

// claimIDsWithLock selects up to limit claimable row IDs and marks them
// claimed in one transaction. A row is claimable either because it's fresh
// (claimableWhere, e.g. status='pending', with available_utc reached) or
// because it was claimed by a worker whose lease expired without a
// heartbeat (staleWhere, e.g. status='in_progress', with lock_expires_utc
// in the past) — the Recovery Invariant requires the latter to be
// reclaimable by a different worker without waiting on the original
// status transition.
func claimIDsWithLock(ctx context.Context, db *sql.DB, rebind func(string) string, table, idCol, workerID string, limit, leaseSeconds int, claimableWhere, staleWhere, setClause, lockClause string) ([]string, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	selectQ := rebind(fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE ((%s) AND available_utc <= ?) OR ((%s) AND lock_expires_utc <= ?)
		ORDER BY priority DESC, available_utc ASC
		LIMIT ? %s
	`, idCol, table, claimableWhere, staleWhere, lockClause))
	rows, err := tx.QueryContext(ctx, selectQ, now, now, limit)
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, tx.Commit()
	}

	lockExpires := now.Add(time.Duration(leaseSeconds) * time.Second)
	placeholders := make([]string, len(ids))
	args := []interface{}{workerID, lockExpires}
	if strings.Contains(setClause, "updated_utc") {
		args = append(args, now)
	}
	for i, id := range ids {
		placeholders[i] = "?"
		args = append(args, id)
	}
	updateQ := rebind(fmt.Sprintf(`UPDATE %s SET %s WHERE %s IN (%s)`,
		table, setClause, idCol, strings.Join(placeholders, ",")))
	if _, err := tx.ExecContext(ctx, updateQ, args...); err != nil {
		return nil, err
	}
	return ids, tx.Commit()
}

func (p *PostgresStore) loadWorkItems(ctx context.Context, ids []string) ([]WorkItem, error) {
	return loadWorkItemsByID(ctx, p.db, p.rebind, ids)
}

func (p *PostgresStore) loadJobs(ctx context.Context, ids []string) ([]Job, error) {
	return loadJobsByID(ctx, p.db, p.rebind, ids)
}

// applyMigrations runs every *.sql file in dir (or the bundled migrations/
// directory) in filename order. Each file is split into statements on
// ";"; CREATE TABLE/INDEX IF NOT EXISTS makes re-application idempotent.
func applyMigrations(db *sql.DB, dir string) error {
	if dir == "" {
		dir = defaultMigrationsDir()
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("store: read migrations dir %s: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	for _, name := range files {
		raw, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("store: read migration %s: %w", name, err)
		}
		for _, stmt := range strings.Split(string(raw), ";") {
			stmt = strings.TrimSpace(stmt)
			if stmt == "" {
				continue
			}
			if _, err := db.Exec(stmt); err != nil {
				return fmt.Errorf("store: apply migration %s: %w", name, err)
			}
		}
	}
	return nil
}

func defaultMigrationsDir() string {
	return filepath.Join("internal", "store", "migrations")
}
