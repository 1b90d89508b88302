// Copyright 2025 James Ross
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

func nowUTC() time.Time {
	return time.Now().UTC()
}

// AdminBackend extends Backend with the read/maintenance operations the
// CLI and HTTP admin surfaces need: listing, searching, and the small set
// of operator-triggered corrections that don't belong in the claim/complete
// lifecycle. PostgresStore and SQLiteStore satisfy this automatically since
// both embed baseStore.
type AdminBackend interface {
	Backend

	ListWorkItems(ctx context.Context, status string, limit int) ([]WorkItem, error)
	ListJobs(ctx context.Context, status string, limit int) ([]Job, error)
	GetJob(ctx context.Context, jobID string) (Job, error)
	GetWorkItem(ctx context.Context, workItemID string) (WorkItem, error)

	// MarkSourceFailed force-fails every pending/in_progress work item for
	// sourceSystem/sourceName, e.g. after discovering an upstream outage so
	// the backoff doesn't have to be rediscovered item by item. Returns the
	// number of rows updated.
	MarkSourceFailed(ctx context.Context, sourceSystem, sourceName, reason string) (int64, error)

	// ResetCompletedToPending re-queues every completed work item back to
	// pending, for re-processing after a downstream bug is fixed. Returns
	// the number of rows updated.
	ResetCompletedToPending(ctx context.Context) (int64, error)

	// PurgeDeadJobs deletes every job row in the dead state, along with its
	// runs/artifacts, and returns the number of jobs purged.
	PurgeDeadJobs(ctx context.Context) (int64, error)
}

func (b *baseStore) ListWorkItems(ctx context.Context, status string, limit int) ([]WorkItem, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT work_item_id, source_system, source_name, resource_type, resource_id,
		       request_uri, request_method, request_body, variant, status, priority,
		       attempt, max_attempts, dedupe_key, available_utc, last_error, created_utc, updated_utc
		FROM work_items`
	args := []interface{}{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_utc DESC LIMIT ?`
	args = append(args, limit)

	rows, err := b.db.QueryContext(ctx, b.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("store: list work items: %w", err)
	}
	defer rows.Close()

	var out []WorkItem
	for rows.Next() {
		var w WorkItem
		var lastError sql.NullString
		if err := rows.Scan(&w.WorkItemID, &w.SourceSystem, &w.SourceName, &w.ResourceType, &w.ResourceID,
			&w.RequestURI, &w.RequestMethod, &w.RequestBody, &w.Variant, &w.Status, &w.Priority,
			&w.Attempt, &w.MaxAttempts, &w.DedupeKey, &w.AvailableUTC, &lastError, &w.CreatedUTC, &w.UpdatedUTC); err != nil {
			return nil, err
		}
		w.LastError = lastError.String
		out = append(out, w)
	}
	return out, rows.Err()
}

func (b *baseStore) ListJobs(ctx context.Context, status string, limit int) ([]Job, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT job_id, interrogation_key, input_json, status, priority, attempt_count,
		       max_attempts, dedupe_key, available_utc, model_hint, last_error, created_utc
		FROM jobs`
	args := []interface{}{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_utc DESC LIMIT ?`
	args = append(args, limit)

	rows, err := b.db.QueryContext(ctx, b.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("store: list jobs: %w", err)
	}
	defer rows.Close()

	var out []Job
	for rows.Next() {
		var j Job
		var modelHint, lastError sql.NullString
		if err := rows.Scan(&j.JobID, &j.InterrogationKey, &j.InputJSON, &j.Status, &j.Priority, &j.AttemptCount,
			&j.MaxAttempts, &j.DedupeKey, &j.AvailableUTC, &modelHint, &lastError, &j.CreatedUTC); err != nil {
			return nil, err
		}
		j.ModelHint = modelHint.String
		j.LastError = lastError.String
		out = append(out, j)
	}
	return out, rows.Err()
}

func (b *baseStore) GetJob(ctx context.Context, jobID string) (Job, error) {
	row := b.db.QueryRowContext(ctx, b.q(`
		SELECT job_id, interrogation_key, input_json, status, priority, attempt_count,
		       max_attempts, dedupe_key, available_utc, model_hint, last_error, created_utc
		FROM jobs WHERE job_id = ?
	`), jobID)
	var j Job
	var modelHint, lastError sql.NullString
	if err := row.Scan(&j.JobID, &j.InterrogationKey, &j.InputJSON, &j.Status, &j.Priority, &j.AttemptCount,
		&j.MaxAttempts, &j.DedupeKey, &j.AvailableUTC, &modelHint, &lastError, &j.CreatedUTC); err != nil {
		return Job{}, fmt.Errorf("store: get job %s: %w", jobID, err)
	}
	j.ModelHint = modelHint.String
	j.LastError = lastError.String
	return j, nil
}

func (b *baseStore) GetWorkItem(ctx context.Context, workItemID string) (WorkItem, error) {
	row := b.db.QueryRowContext(ctx, b.q(`
		SELECT work_item_id, source_system, source_name, resource_type, resource_id,
		       request_uri, request_method, request_body, variant, status, priority,
		       attempt, max_attempts, dedupe_key, available_utc, last_error, created_utc, updated_utc
		FROM work_items WHERE work_item_id = ?
	`), workItemID)
	var w WorkItem
	var lastError sql.NullString
	if err := row.Scan(&w.WorkItemID, &w.SourceSystem, &w.SourceName, &w.ResourceType, &w.ResourceID,
		&w.RequestURI, &w.RequestMethod, &w.RequestBody, &w.Variant, &w.Status, &w.Priority,
		&w.Attempt, &w.MaxAttempts, &w.DedupeKey, &w.AvailableUTC, &lastError, &w.CreatedUTC, &w.UpdatedUTC); err != nil {
		return WorkItem{}, fmt.Errorf("store: get work item %s: %w", workItemID, err)
	}
	w.LastError = lastError.String
	return w, nil
}

func (b *baseStore) MarkSourceFailed(ctx context.Context, sourceSystem, sourceName, reason string) (int64, error) {
	res, err := b.db.ExecContext(ctx, b.q(`
		UPDATE work_items
		SET status = ?, locked_by = NULL, lock_expires_utc = NULL, last_error = ?, updated_utc = ?
		WHERE source_system = ? AND source_name = ? AND status IN (?, ?)
	`), WorkItemFailed, reason, nowUTC(), sourceSystem, sourceName, WorkItemPending, WorkItemInProgress)
	if err != nil {
		return 0, fmt.Errorf("store: mark source failed: %w", err)
	}
	return res.RowsAffected()
}

func (b *baseStore) ResetCompletedToPending(ctx context.Context) (int64, error) {
	res, err := b.db.ExecContext(ctx, b.q(`
		UPDATE work_items
		SET status = ?, attempt = 0, last_error = '', updated_utc = ?
		WHERE status = ?
	`), WorkItemPending, nowUTC(), WorkItemCompleted)
	if err != nil {
		return 0, fmt.Errorf("store: reset completed to pending: %w", err)
	}
	return res.RowsAffected()
}

func (b *baseStore) PurgeDeadJobs(ctx context.Context) (int64, error) {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("store: begin purge dead jobs: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, b.q(`SELECT job_id FROM jobs WHERE status = ?`), JobDead)
	if err != nil {
		return 0, fmt.Errorf("store: select dead jobs: %w", err)
	}
	var jobIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		jobIDs = append(jobIDs, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}
	if len(jobIDs) == 0 {
		return 0, tx.Commit()
	}

	for _, id := range jobIDs {
		if _, err := tx.ExecContext(ctx, b.q(`
			DELETE FROM artifacts WHERE run_id IN (SELECT run_id FROM runs WHERE job_id = ?)
		`), id); err != nil {
			return 0, fmt.Errorf("store: purge artifacts for job %s: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx, b.q(`DELETE FROM runs WHERE job_id = ?`), id); err != nil {
			return 0, fmt.Errorf("store: purge runs for job %s: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx, b.q(`DELETE FROM jobs WHERE job_id = ?`), id); err != nil {
			return 0, fmt.Errorf("store: purge job %s: %w", id, err)
		}
	}
	return int64(len(jobIDs)), tx.Commit()
}
