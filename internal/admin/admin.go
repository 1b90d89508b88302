// Copyright 2025 James Ross
package admin

import (
	"context"
	"fmt"
	"sort"
	"strings"

	asciigraph "github.com/guptarohit/asciigraph"
	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/holocron/orchestrator/internal/store"
)

// StatsResult summarizes both queue tables for the CLI/HTTP admin surfaces.
type StatsResult struct {
	WorkItems store.Stats `json:"work_items"`
	Jobs      store.Stats `json:"jobs"`
}

// Stats reports a point-in-time row count by status for both tables.
func Stats(ctx context.Context, backend store.AdminBackend) (StatsResult, error) {
	wi, err := backend.WorkItemStats(ctx)
	if err != nil {
		return StatsResult{}, err
	}
	jobs, err := backend.JobStats(ctx)
	if err != nil {
		return StatsResult{}, err
	}
	return StatsResult{WorkItems: wi, Jobs: jobs}, nil
}

// ListWorkItems returns up to limit work items, most recently created
// first, optionally filtered to a single status.
func ListWorkItems(ctx context.Context, backend store.AdminBackend, status string, limit int) ([]store.WorkItem, error) {
	return backend.ListWorkItems(ctx, status, limit)
}

// ListJobs returns up to limit jobs, most recently created first,
// optionally filtered to a single status.
func ListJobs(ctx context.Context, backend store.AdminBackend, status string, limit int) ([]store.Job, error) {
	return backend.ListJobs(ctx, status, limit)
}

// JobDetail is one job plus its run history and the artifacts each run
// produced, for the CLI's --job-id detail view.
type JobDetail struct {
	Job       store.Job                `json:"job"`
	Runs      []store.Run              `json:"runs"`
	Artifacts map[string][]store.Artifact `json:"artifacts_by_run"`
}

// InspectJob loads the JobDetail for jobID.
func InspectJob(ctx context.Context, backend store.AdminBackend, jobID string) (JobDetail, error) {
	job, err := backend.GetJob(ctx, jobID)
	if err != nil {
		return JobDetail{}, err
	}
	runs, err := backend.RunsForJob(ctx, jobID)
	if err != nil {
		return JobDetail{}, err
	}
	artifacts := make(map[string][]store.Artifact, len(runs))
	for _, r := range runs {
		as, err := backend.ArtifactsForRun(ctx, r.RunID)
		if err != nil {
			return JobDetail{}, err
		}
		artifacts[r.RunID] = as
	}
	return JobDetail{Job: job, Runs: runs, Artifacts: artifacts}, nil
}

// SearchJobs fuzzy-matches query against interrogation_key across a batch
// of recent jobs (bounded by scanLimit), ranked by edit distance.
func SearchJobs(ctx context.Context, backend store.AdminBackend, query string, scanLimit int) ([]store.Job, error) {
	candidates, err := backend.ListJobs(ctx, "", scanLimit)
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(candidates))
	for i, j := range candidates {
		keys[i] = j.InterrogationKey
	}
	ranks := fuzzy.RankFindNormalizedFold(query, keys)
	sort.Sort(ranks)
	out := make([]store.Job, 0, len(ranks))
	for _, r := range ranks {
		out = append(out, candidates[r.OriginalIndex])
	}
	return out, nil
}

// QueueDepthTrend renders an ASCII sparkline of a status's row count across
// samples (oldest first), suitable for terminal display of a history the
// caller has already collected (e.g. via repeated Stats polls).
func QueueDepthTrend(title string, samples []float64) string {
	if len(samples) == 0 {
		return fmt.Sprintf("%s\n(no data yet)", title)
	}
	return asciigraph.Plot(samples, asciigraph.Height(8), asciigraph.Width(60), asciigraph.Caption(title))
}

// MarkSourceFailed force-fails every pending/in-flight work item for one
// source, for operators responding to a known upstream outage.
func MarkSourceFailed(ctx context.Context, backend store.AdminBackend, sourceSystem, sourceName, reason string) (int64, error) {
	if sourceSystem == "" || sourceName == "" {
		return 0, fmt.Errorf("admin: source_system and source_name are required")
	}
	return backend.MarkSourceFailed(ctx, sourceSystem, sourceName, reason)
}

// ResetCompletedToPending re-queues every completed work item, for
// re-running ingestion after fixing a downstream bug.
func ResetCompletedToPending(ctx context.Context, backend store.AdminBackend) (int64, error) {
	return backend.ResetCompletedToPending(ctx)
}

// PurgeDeadJobs deletes every dead job along with its runs and artifacts.
func PurgeDeadJobs(ctx context.Context, backend store.AdminBackend) (int64, error) {
	return backend.PurgeDeadJobs(ctx)
}

// ResolveWorkItemStatus normalizes a user-supplied status string against the
// table's known values, returning an error listing the valid options on a
// miss so a typo doesn't silently return nothing.
func ResolveWorkItemStatus(s string) (string, error) {
	if s == "" {
		return "", nil
	}
	known := []string{
		string(store.WorkItemPending), string(store.WorkItemInProgress),
		string(store.WorkItemCompleted), string(store.WorkItemFailed), string(store.WorkItemSkipped),
	}
	for _, k := range known {
		if strings.EqualFold(s, k) {
			return k, nil
		}
	}
	return "", fmt.Errorf("admin: unknown work item status %q; known: %s", s, strings.Join(known, ", "))
}

// ResolveJobStatus is ResolveWorkItemStatus's counterpart for the jobs table.
func ResolveJobStatus(s string) (string, error) {
	if s == "" {
		return "", nil
	}
	known := []string{
		string(store.JobQueued), string(store.JobRunning),
		string(store.JobSucceeded), string(store.JobFailed), string(store.JobDead),
	}
	for _, k := range known {
		if strings.EqualFold(s, k) {
			return k, nil
		}
	}
	return "", fmt.Errorf("admin: unknown job status %q; known: %s", s, strings.Join(known, ", "))
}
