// Copyright 2025 James Ross
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

func placeholdersFor(n int) string {
	ph := make([]string, n)
	for i := range ph {
		ph[i] = "?"
	}
	return strings.Join(ph, ",")
}

func loadWorkItemsByID(ctx context.Context, db *sql.DB, rebind func(string) string, ids []string) ([]WorkItem, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	query := rebind(fmt.Sprintf(`
		SELECT work_item_id, source_system, source_name, resource_type, resource_id,
		       request_uri, request_method, request_headers, request_body, variant,
		       status, priority, attempt, max_attempts, dedupe_key, available_utc,
		       locked_by, lock_expires_utc, last_error, metadata_json, created_utc, updated_utc
		FROM work_items WHERE work_item_id IN (%s)
	`, placeholdersFor(len(ids))))
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: load work items: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]WorkItem, len(ids))
	for rows.Next() {
		var w WorkItem
		var headers, metadata sql.NullString
		var lockedBy, lastError sql.NullString
		var lockExpires sql.NullTime
		if err := rows.Scan(&w.WorkItemID, &w.SourceSystem, &w.SourceName, &w.ResourceType, &w.ResourceID,
			&w.RequestURI, &w.RequestMethod, &headers, &w.RequestBody, &w.Variant,
			&w.Status, &w.Priority, &w.Attempt, &w.MaxAttempts, &w.DedupeKey, &w.AvailableUTC,
			&lockedBy, &lockExpires, &lastError, &metadata, &w.CreatedUTC, &w.UpdatedUTC); err != nil {
			return nil, err
		}
		if headers.Valid && headers.String != "" {
			_ = json.Unmarshal([]byte(headers.String), &w.RequestHeaders)
		}
		if metadata.Valid && metadata.String != "" {
			_ = json.Unmarshal([]byte(metadata.String), &w.Metadata)
		}
		w.LockedBy = lockedBy.String
		w.LastError = lastError.String
		if lockExpires.Valid {
			w.LockExpiresUTC = lockExpires.Time
		}
		byID[w.WorkItemID] = w
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]WorkItem, 0, len(ids))
	for _, id := range ids {
		if w, ok := byID[id]; ok {
			out = append(out, w)
		}
	}
	return out, nil
}

func loadJobsByID(ctx context.Context, db *sql.DB, rebind func(string) string, ids []string) ([]Job, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	query := rebind(fmt.Sprintf(`
		SELECT job_id, interrogation_key, input_json, status, priority, attempt_count,
		       max_attempts, dedupe_key, available_utc, locked_by, lock_expires_utc,
		       model_hint, last_error, created_utc
		FROM jobs WHERE job_id IN (%s)
	`, placeholdersFor(len(ids))))
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: load jobs: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]Job, len(ids))
	for rows.Next() {
		var j Job
		var lockedBy, modelHint, lastError sql.NullString
		var lockExpires sql.NullTime
		if err := rows.Scan(&j.JobID, &j.InterrogationKey, &j.InputJSON, &j.Status, &j.Priority, &j.AttemptCount,
			&j.MaxAttempts, &j.DedupeKey, &j.AvailableUTC, &lockedBy, &lockExpires,
			&modelHint, &lastError, &j.CreatedUTC); err != nil {
			return nil, err
		}
		j.LockedBy = lockedBy.String
		j.ModelHint = modelHint.String
		j.LastError = lastError.String
		if lockExpires.Valid {
			j.LockExpiresUTC = lockExpires.Time
		}
		byID[j.JobID] = j
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]Job, 0, len(ids))
	for _, id := range ids {
		if j, ok := byID[id]; ok {
			out = append(out, j)
		}
	}
	return out, nil
}
