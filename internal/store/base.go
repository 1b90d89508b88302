// Copyright 2025 James Ross
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// baseStore implements every Backend method that doesn't depend on
// dialect-specific row-locking (everything but Claim*). PostgresStore and
// SQLiteStore embed it and supply their own Claim implementations plus a
// rebind function translating "?" placeholders into the driver's syntax.
type baseStore struct {
	db     *sql.DB
	rebind func(string) string
}

func (b *baseStore) q(query string) string {
	if b.rebind == nil {
		return query
	}
	return b.rebind(query)
}

func (b *baseStore) Close() error {
	return b.db.Close()
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}

func marshalJSON(v interface{}) (string, error) {
	if v == nil {
		return "", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (b *baseStore) EnqueueWorkItem(ctx context.Context, item *WorkItem) (EnqueueResult, error) {
	if item.DedupeKey == "" {
		item.DedupeKey = item.ComputeDedupeKey()
	}
	if item.Status == "" {
		item.Status = WorkItemPending
	}
	if item.MaxAttempts == 0 {
		item.MaxAttempts = 3
	}
	now := time.Now().UTC()
	if item.AvailableUTC.IsZero() {
		item.AvailableUTC = now
	}
	item.CreatedUTC = now
	item.UpdatedUTC = now

	headers, err := marshalJSON(item.RequestHeaders)
	if err != nil {
		return EnqueueResult{}, fmt.Errorf("store: marshal headers: %w", err)
	}
	metadata, err := marshalJSON(item.Metadata)
	if err != nil {
		return EnqueueResult{}, fmt.Errorf("store: marshal metadata: %w", err)
	}

	_, err = b.db.ExecContext(ctx, b.q(`
		INSERT INTO work_items
			(work_item_id, source_system, source_name, resource_type, resource_id,
			 request_uri, request_method, request_headers, request_body, variant,
			 status, priority, attempt, max_attempts, dedupe_key, available_utc,
			 metadata_json, created_utc, updated_utc)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
	`), item.WorkItemID, item.SourceSystem, item.SourceName, item.ResourceType, item.ResourceID,
		item.RequestURI, item.RequestMethod, headers, item.RequestBody, item.Variant,
		item.Status, item.Priority, item.Attempt, item.MaxAttempts, item.DedupeKey, item.AvailableUTC,
		metadata, item.CreatedUTC, item.UpdatedUTC)
	if err != nil {
		if isUniqueViolation(err) {
			return EnqueueResult{Accepted: false, ID: item.WorkItemID}, nil
		}
		return EnqueueResult{}, fmt.Errorf("store: enqueue work item: %w", err)
	}
	return EnqueueResult{Accepted: true, ID: item.WorkItemID}, nil
}

func (b *baseStore) HeartbeatWorkItem(ctx context.Context, workItemID, workerID string, leaseSeconds int) (HeartbeatResult, error) {
	now := time.Now().UTC()
	res, err := b.db.ExecContext(ctx, b.q(`
		UPDATE work_items SET lock_expires_utc = ?, updated_utc = ?
		WHERE work_item_id = ? AND locked_by = ?
	`), now.Add(time.Duration(leaseSeconds)*time.Second), now, workItemID, workerID)
	if err != nil {
		return "", fmt.Errorf("store: heartbeat work item: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return HeartbeatLost, nil
	}
	return HeartbeatOK, nil
}

func (b *baseStore) CompleteWorkItem(ctx context.Context, workItemID string, outcome Outcome, errMsg string, backoffSeconds float64) error {
	now := time.Now().UTC()
	switch outcome {
	case OutcomeSucceeded:
		_, err := b.db.ExecContext(ctx, b.q(`
			UPDATE work_items SET status = ?, locked_by = NULL, lock_expires_utc = NULL, updated_utc = ?
			WHERE work_item_id = ?
		`), WorkItemCompleted, now, workItemID)
		return err
	case OutcomeSkipped:
		_, err := b.db.ExecContext(ctx, b.q(`
			UPDATE work_items SET status = ?, locked_by = NULL, lock_expires_utc = NULL, updated_utc = ?
			WHERE work_item_id = ?
		`), WorkItemSkipped, now, workItemID)
		return err
	case OutcomeFailed:
		row := b.db.QueryRowContext(ctx, b.q(`SELECT attempt, max_attempts FROM work_items WHERE work_item_id = ?`), workItemID)
		var attempt, maxAttempts int
		if err := row.Scan(&attempt, &maxAttempts); err != nil {
			return fmt.Errorf("store: load work item for completion: %w", err)
		}
		if attempt < maxAttempts {
			availableAt := now.Add(time.Duration(backoffSeconds * float64(time.Second)))
			_, err := b.db.ExecContext(ctx, b.q(`
				UPDATE work_items
				SET status = ?, locked_by = NULL, lock_expires_utc = NULL, available_utc = ?, last_error = ?, updated_utc = ?
				WHERE work_item_id = ?
			`), WorkItemPending, availableAt, errMsg, now, workItemID)
			return err
		}
		_, err := b.db.ExecContext(ctx, b.q(`
			UPDATE work_items SET status = ?, locked_by = NULL, lock_expires_utc = NULL, last_error = ?, updated_utc = ?
			WHERE work_item_id = ?
		`), WorkItemFailed, errMsg, now, workItemID)
		return err
	default:
		return fmt.Errorf("store: unknown outcome %q", outcome)
	}
}

func (b *baseStore) WorkItemStats(ctx context.Context) (Stats, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT status, count(*) FROM work_items GROUP BY status`)
	if err != nil {
		return Stats{}, fmt.Errorf("store: work item stats: %w", err)
	}
	defer rows.Close()
	out := Stats{ByStatus: map[string]int64{}}
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return Stats{}, err
		}
		out.ByStatus[status] = n
	}
	return out, rows.Err()
}

func (b *baseStore) EnqueueJob(ctx context.Context, job *Job) (EnqueueResult, error) {
	if job.Status == "" {
		job.Status = JobQueued
	}
	if job.MaxAttempts == 0 {
		job.MaxAttempts = 3
	}
	now := time.Now().UTC()
	if job.AvailableUTC.IsZero() {
		job.AvailableUTC = now
	}
	job.CreatedUTC = now

	_, err := b.db.ExecContext(ctx, b.q(`
		INSERT INTO jobs
			(job_id, interrogation_key, input_json, status, priority, attempt_count,
			 max_attempts, dedupe_key, available_utc, model_hint, created_utc)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)
	`), job.JobID, job.InterrogationKey, job.InputJSON, job.Status, job.Priority, job.AttemptCount,
		job.MaxAttempts, job.DedupeKey, job.AvailableUTC, job.ModelHint, job.CreatedUTC)
	if err != nil {
		if isUniqueViolation(err) {
			return EnqueueResult{Accepted: false, ID: job.JobID}, nil
		}
		return EnqueueResult{}, fmt.Errorf("store: enqueue job: %w", err)
	}
	return EnqueueResult{Accepted: true, ID: job.JobID}, nil
}

func (b *baseStore) HeartbeatJob(ctx context.Context, jobID, workerID string, leaseSeconds int) (HeartbeatResult, error) {
	now := time.Now().UTC()
	res, err := b.db.ExecContext(ctx, b.q(`
		UPDATE jobs SET lock_expires_utc = ? WHERE job_id = ? AND locked_by = ?
	`), now.Add(time.Duration(leaseSeconds)*time.Second), jobID, workerID)
	if err != nil {
		return "", fmt.Errorf("store: heartbeat job: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return HeartbeatLost, nil
	}
	return HeartbeatOK, nil
}

func (b *baseStore) CompleteJob(ctx context.Context, jobID string, outcome Outcome, errMsg string, backoffSeconds float64) error {
	now := time.Now().UTC()
	switch outcome {
	case OutcomeSucceeded:
		_, err := b.db.ExecContext(ctx, b.q(`
			UPDATE jobs SET status = ?, locked_by = NULL, lock_expires_utc = NULL WHERE job_id = ?
		`), JobSucceeded, jobID)
		return err
	case OutcomeSkipped:
		_, err := b.db.ExecContext(ctx, b.q(`
			UPDATE jobs SET status = ?, locked_by = NULL, lock_expires_utc = NULL WHERE job_id = ?
		`), JobSucceeded, jobID)
		return err
	case OutcomeFailed:
		row := b.db.QueryRowContext(ctx, b.q(`SELECT attempt_count, max_attempts FROM jobs WHERE job_id = ?`), jobID)
		var attempt, maxAttempts int
		if err := row.Scan(&attempt, &maxAttempts); err != nil {
			return fmt.Errorf("store: load job for completion: %w", err)
		}
		if attempt < maxAttempts {
			availableAt := now.Add(time.Duration(backoffSeconds * float64(time.Second)))
			_, err := b.db.ExecContext(ctx, b.q(`
				UPDATE jobs SET status = ?, locked_by = NULL, lock_expires_utc = NULL, available_utc = ?, last_error = ?
				WHERE job_id = ?
			`), JobQueued, availableAt, errMsg, jobID)
			return err
		}
		_, err := b.db.ExecContext(ctx, b.q(`
			UPDATE jobs SET status = ?, locked_by = NULL, lock_expires_utc = NULL, last_error = ? WHERE job_id = ?
		`), JobDead, errMsg, jobID)
		return err
	default:
		return fmt.Errorf("store: unknown outcome %q", outcome)
	}
}

func (b *baseStore) JobStats(ctx context.Context) (Stats, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT status, count(*) FROM jobs GROUP BY status`)
	if err != nil {
		return Stats{}, fmt.Errorf("store: job stats: %w", err)
	}
	defer rows.Close()
	out := Stats{ByStatus: map[string]int64{}}
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return Stats{}, err
		}
		out.ByStatus[status] = n
	}
	return out, rows.Err()
}

func (b *baseStore) CreateRun(ctx context.Context, run *Run) error {
	if run.Status == "" {
		run.Status = RunRunning
	}
	if run.StartedUTC.IsZero() {
		run.StartedUTC = time.Now().UTC()
	}
	_, err := b.db.ExecContext(ctx, b.q(`
		INSERT INTO runs (run_id, job_id, status, model_name, started_utc, metrics_json, error)
		VALUES (?,?,?,?,?,?,?)
	`), run.RunID, run.JobID, run.Status, run.ModelName, run.StartedUTC, run.MetricsJSON, run.Error)
	if err != nil {
		return fmt.Errorf("store: create run: %w", err)
	}
	return nil
}

func (b *baseStore) CompleteRun(ctx context.Context, runID string, status RunStatus, metricsJSON, errMsg string) error {
	_, err := b.db.ExecContext(ctx, b.q(`
		UPDATE runs SET status = ?, completed_utc = ?, metrics_json = ?, error = ? WHERE run_id = ?
	`), status, time.Now().UTC(), metricsJSON, errMsg, runID)
	if err != nil {
		return fmt.Errorf("store: complete run: %w", err)
	}
	return nil
}

func (b *baseStore) CreateArtifact(ctx context.Context, a *Artifact) error {
	if !a.StoredInSQL && !a.MirroredToLake {
		return fmt.Errorf("store: artifact %s must be stored_in_sql or mirrored_to_lake", a.ArtifactID)
	}
	if a.MirroredToLake && a.LakeURI == "" {
		return fmt.Errorf("store: artifact %s marked mirrored_to_lake but has no lake_uri", a.ArtifactID)
	}
	if a.ContentSHA256 == "" {
		return fmt.Errorf("store: artifact %s missing content_sha256", a.ArtifactID)
	}
	if a.CreatedUTC.IsZero() {
		a.CreatedUTC = time.Now().UTC()
	}
	_, err := b.db.ExecContext(ctx, b.q(`
		INSERT INTO artifacts
			(artifact_id, run_id, artifact_type, lake_uri, content, content_mime_type,
			 content_sha256, byte_count, stored_in_sql, mirrored_to_lake, created_utc)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)
	`), a.ArtifactID, a.RunID, a.ArtifactType, nullableString(a.LakeURI), nullableString(a.Content),
		a.ContentMIMEType, a.ContentSHA256, a.ByteCount, a.StoredInSQL, a.MirroredToLake, a.CreatedUTC)
	if err != nil {
		return fmt.Errorf("store: create artifact: %w", err)
	}
	return nil
}

func (b *baseStore) CreateEvidenceBundle(ctx context.Context, eb *EvidenceBundle) error {
	if eb.CreatedUTC.IsZero() {
		eb.CreatedUTC = time.Now().UTC()
	}
	_, err := b.db.ExecContext(ctx, b.q(`
		INSERT INTO evidence_bundles
			(bundle_id, run_id, build_version, policy_json, summary_json, lake_uri,
			 bundle_json, content_sha256, redactions_json, created_utc)
		VALUES (?,?,?,?,?,?,?,?,?,?)
	`), eb.BundleID, eb.RunID, eb.BuildVersion, eb.PolicyJSON, eb.SummaryJSON, nullableString(eb.LakeURI),
		nullableString(eb.BundleJSON), eb.ContentSHA256, eb.RedactionsJSON, eb.CreatedUTC)
	if err != nil {
		return fmt.Errorf("store: create evidence bundle: %w", err)
	}
	return nil
}

func (b *baseStore) CreateChunks(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin chunk insert: %w", err)
	}
	defer tx.Rollback()

	stmt := b.q(`
		INSERT INTO chunks
			(chunk_id, source_id, source_type, source_ref, content, content_sha256,
			 byte_count, start_offset, end_offset, chunk_index, policy_json, created_utc)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)
	`)
	now := time.Now().UTC()
	for _, c := range chunks {
		if _, err := tx.ExecContext(ctx, stmt,
			c.ChunkID, c.SourceID, c.SourceType, c.SourceRef, c.Content, c.ContentSHA256,
			c.ByteCount, c.StartOffset, c.EndOffset, c.ChunkIndex, c.PolicyJSON, now); err != nil {
			return fmt.Errorf("store: insert chunk %s: %w", c.ChunkID, err)
		}
	}
	return tx.Commit()
}

func (b *baseStore) RunsForJob(ctx context.Context, jobID string) ([]Run, error) {
	rows, err := b.db.QueryContext(ctx, b.q(`
		SELECT run_id, job_id, status, model_name, started_utc, completed_utc, metrics_json, error
		FROM runs WHERE job_id = ? ORDER BY started_utc DESC
	`), jobID)
	if err != nil {
		return nil, fmt.Errorf("store: runs for job: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var completed sql.NullTime
		if err := rows.Scan(&r.RunID, &r.JobID, &r.Status, &r.ModelName, &r.StartedUTC, &completed, &r.MetricsJSON, &r.Error); err != nil {
			return nil, err
		}
		if completed.Valid {
			r.CompletedUTC = completed.Time
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (b *baseStore) ArtifactsForRun(ctx context.Context, runID string) ([]Artifact, error) {
	rows, err := b.db.QueryContext(ctx, b.q(`
		SELECT artifact_id, run_id, artifact_type, lake_uri, content, content_mime_type,
		       content_sha256, byte_count, stored_in_sql, mirrored_to_lake, created_utc
		FROM artifacts WHERE run_id = ? ORDER BY created_utc ASC
	`), runID)
	if err != nil {
		return nil, fmt.Errorf("store: artifacts for run: %w", err)
	}
	defer rows.Close()

	var out []Artifact
	for rows.Next() {
		var a Artifact
		var lakeURI, content sql.NullString
		if err := rows.Scan(&a.ArtifactID, &a.RunID, &a.ArtifactType, &lakeURI, &content, &a.ContentMIMEType,
			&a.ContentSHA256, &a.ByteCount, &a.StoredInSQL, &a.MirroredToLake, &a.CreatedUTC); err != nil {
			return nil, err
		}
		a.LakeURI = lakeURI.String
		a.Content = content.String
		out = append(out, a)
	}
	return out, rows.Err()
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
