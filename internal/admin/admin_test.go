// Copyright 2025 James Ross
package admin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holocron/orchestrator/internal/store"
)

type fakeBackend struct {
	workItems []store.WorkItem
	jobs      []store.Job
	runs      map[string][]store.Run
	artifacts map[string][]store.Artifact

	workItemStats store.Stats
	jobStats      store.Stats

	markedSource     string
	resetCount       int64
	purgedDeadCount  int64
}

func (f *fakeBackend) EnqueueWorkItem(ctx context.Context, item *store.WorkItem) (store.EnqueueResult, error) {
	return store.EnqueueResult{}, nil
}
func (f *fakeBackend) ClaimWorkItems(ctx context.Context, workerID string, limit int, leaseSeconds int) ([]store.WorkItem, error) {
	return nil, nil
}
func (f *fakeBackend) HeartbeatWorkItem(ctx context.Context, workItemID, workerID string, leaseSeconds int) (store.HeartbeatResult, error) {
	return store.HeartbeatOK, nil
}
func (f *fakeBackend) CompleteWorkItem(ctx context.Context, workItemID string, outcome store.Outcome, errMsg string, backoffSeconds float64) error {
	return nil
}
func (f *fakeBackend) WorkItemStats(ctx context.Context) (store.Stats, error) { return f.workItemStats, nil }

func (f *fakeBackend) EnqueueJob(ctx context.Context, job *store.Job) (store.EnqueueResult, error) {
	return store.EnqueueResult{}, nil
}
func (f *fakeBackend) ClaimJobs(ctx context.Context, workerID string, limit int, leaseSeconds int) ([]store.Job, error) {
	return nil, nil
}
func (f *fakeBackend) HeartbeatJob(ctx context.Context, jobID, workerID string, leaseSeconds int) (store.HeartbeatResult, error) {
	return store.HeartbeatOK, nil
}
func (f *fakeBackend) CompleteJob(ctx context.Context, jobID string, outcome store.Outcome, errMsg string, backoffSeconds float64) error {
	return nil
}
func (f *fakeBackend) JobStats(ctx context.Context) (store.Stats, error) { return f.jobStats, nil }

func (f *fakeBackend) CreateRun(ctx context.Context, run *store.Run) error { return nil }
func (f *fakeBackend) CompleteRun(ctx context.Context, runID string, status store.RunStatus, metricsJSON, errMsg string) error {
	return nil
}
func (f *fakeBackend) CreateArtifact(ctx context.Context, artifact *store.Artifact) error { return nil }
func (f *fakeBackend) CreateEvidenceBundle(ctx context.Context, bundle *store.EvidenceBundle) error {
	return nil
}
func (f *fakeBackend) CreateChunks(ctx context.Context, chunks []store.Chunk) error { return nil }
func (f *fakeBackend) RunsForJob(ctx context.Context, jobID string) ([]store.Run, error) {
	return f.runs[jobID], nil
}
func (f *fakeBackend) ArtifactsForRun(ctx context.Context, runID string) ([]store.Artifact, error) {
	return f.artifacts[runID], nil
}
func (f *fakeBackend) Close() error { return nil }

func (f *fakeBackend) ListWorkItems(ctx context.Context, status string, limit int) ([]store.WorkItem, error) {
	var out []store.WorkItem
	for _, w := range f.workItems {
		if status != "" && string(w.Status) != status {
			continue
		}
		out = append(out, w)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}
func (f *fakeBackend) ListJobs(ctx context.Context, status string, limit int) ([]store.Job, error) {
	var out []store.Job
	for _, j := range f.jobs {
		if status != "" && string(j.Status) != status {
			continue
		}
		out = append(out, j)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}
func (f *fakeBackend) GetJob(ctx context.Context, jobID string) (store.Job, error) {
	for _, j := range f.jobs {
		if j.JobID == jobID {
			return j, nil
		}
	}
	return store.Job{}, assert.AnError
}
func (f *fakeBackend) GetWorkItem(ctx context.Context, workItemID string) (store.WorkItem, error) {
	for _, w := range f.workItems {
		if w.WorkItemID == workItemID {
			return w, nil
		}
	}
	return store.WorkItem{}, assert.AnError
}
func (f *fakeBackend) MarkSourceFailed(ctx context.Context, sourceSystem, sourceName, reason string) (int64, error) {
	f.markedSource = sourceSystem + ":" + sourceName
	return 3, nil
}
func (f *fakeBackend) ResetCompletedToPending(ctx context.Context) (int64, error) {
	return f.resetCount, nil
}
func (f *fakeBackend) PurgeDeadJobs(ctx context.Context) (int64, error) {
	return f.purgedDeadCount, nil
}

func TestStatsAggregatesBothTables(t *testing.T) {
	f := &fakeBackend{
		workItemStats: store.Stats{ByStatus: map[string]int64{"pending": 5}},
		jobStats:      store.Stats{ByStatus: map[string]int64{"queued": 2}},
	}
	res, err := Stats(context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, int64(5), res.WorkItems.ByStatus["pending"])
	assert.Equal(t, int64(2), res.Jobs.ByStatus["queued"])
}

func TestInspectJobLoadsRunsAndArtifacts(t *testing.T) {
	f := &fakeBackend{
		jobs: []store.Job{{JobID: "j1", InterrogationKey: "summarize"}},
		runs: map[string][]store.Run{
			"j1": {{RunID: "r1", JobID: "j1", Status: store.RunSucceeded}},
		},
		artifacts: map[string][]store.Artifact{
			"r1": {{ArtifactID: "a1", RunID: "r1"}},
		},
	}
	detail, err := InspectJob(context.Background(), f, "j1")
	require.NoError(t, err)
	assert.Equal(t, "j1", detail.Job.JobID)
	require.Len(t, detail.Runs, 1)
	assert.Equal(t, "r1", detail.Runs[0].RunID)
	require.Len(t, detail.Artifacts["r1"], 1)
}

func TestSearchJobsRanksByFuzzyMatch(t *testing.T) {
	f := &fakeBackend{
		jobs: []store.Job{
			{JobID: "j1", InterrogationKey: "summarize-incident"},
			{JobID: "j2", InterrogationKey: "classify-severity"},
			{JobID: "j3", InterrogationKey: "summarize-timeline"},
		},
	}
	results, err := SearchJobs(context.Background(), f, "summarize", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Contains(t, r.InterrogationKey, "summarize")
	}
}

func TestQueueDepthTrendHandlesEmptySamples(t *testing.T) {
	out := QueueDepthTrend("work_items", nil)
	assert.Contains(t, out, "no data yet")
}

func TestQueueDepthTrendPlotsSamples(t *testing.T) {
	out := QueueDepthTrend("work_items", []float64{1, 5, 3, 8, 2})
	assert.Contains(t, out, "work_items")
}

func TestMarkSourceFailedRequiresSourceFields(t *testing.T) {
	f := &fakeBackend{}
	_, err := MarkSourceFailed(context.Background(), f, "", "feed-a", "outage")
	assert.Error(t, err)

	n, err := MarkSourceFailed(context.Background(), f, "rss", "feed-a", "outage")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.Equal(t, "rss:feed-a", f.markedSource)
}

func TestResetCompletedToPending(t *testing.T) {
	f := &fakeBackend{resetCount: 7}
	n, err := ResetCompletedToPending(context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
}

func TestPurgeDeadJobs(t *testing.T) {
	f := &fakeBackend{purgedDeadCount: 4}
	n, err := PurgeDeadJobs(context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
}

func TestResolveWorkItemStatus(t *testing.T) {
	s, err := ResolveWorkItemStatus("PENDING")
	require.NoError(t, err)
	assert.Equal(t, "pending", s)

	_, err = ResolveWorkItemStatus("bogus")
	assert.Error(t, err)

	s, err = ResolveWorkItemStatus("")
	require.NoError(t, err)
	assert.Equal(t, "", s)
}

func TestResolveJobStatus(t *testing.T) {
	s, err := ResolveJobStatus("DEAD")
	require.NoError(t, err)
	assert.Equal(t, "dead", s)

	_, err = ResolveJobStatus("bogus")
	assert.Error(t, err)
}
