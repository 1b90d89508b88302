// Copyright 2025 James Ross
package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holocron/orchestrator/internal/lake"
	"github.com/holocron/orchestrator/internal/registry"
	"github.com/holocron/orchestrator/internal/store"
)

type fakeQueue struct {
	jobs           []store.Job
	runs           map[string]*store.Run
	artifacts      []store.Artifact
	completedJobs  map[string]store.Outcome
	completedError map[string]string
}

func newFakeQueue(jobs ...store.Job) *fakeQueue {
	return &fakeQueue{
		jobs:           jobs,
		runs:           map[string]*store.Run{},
		completedJobs:  map[string]store.Outcome{},
		completedError: map[string]string{},
	}
}

func (f *fakeQueue) EnqueueWorkItem(ctx context.Context, item *store.WorkItem) (store.EnqueueResult, error) {
	return store.EnqueueResult{}, nil
}
func (f *fakeQueue) ClaimWorkItems(ctx context.Context, workerID string, limit int, leaseSeconds int) ([]store.WorkItem, error) {
	return nil, nil
}
func (f *fakeQueue) HeartbeatWorkItem(ctx context.Context, workItemID, workerID string, leaseSeconds int) (store.HeartbeatResult, error) {
	return store.HeartbeatOK, nil
}
func (f *fakeQueue) CompleteWorkItem(ctx context.Context, workItemID string, outcome store.Outcome, errMsg string, backoffSeconds float64) error {
	return nil
}
func (f *fakeQueue) WorkItemStats(ctx context.Context) (store.Stats, error) { return store.Stats{}, nil }

func (f *fakeQueue) EnqueueJob(ctx context.Context, job *store.Job) (store.EnqueueResult, error) {
	return store.EnqueueResult{}, nil
}
func (f *fakeQueue) ClaimJobs(ctx context.Context, workerID string, limit int, leaseSeconds int) ([]store.Job, error) {
	if len(f.jobs) == 0 {
		return nil, nil
	}
	n := limit
	if n > len(f.jobs) {
		n = len(f.jobs)
	}
	claimed := f.jobs[:n]
	f.jobs = f.jobs[n:]
	return claimed, nil
}
func (f *fakeQueue) HeartbeatJob(ctx context.Context, jobID, workerID string, leaseSeconds int) (store.HeartbeatResult, error) {
	return store.HeartbeatOK, nil
}
func (f *fakeQueue) CompleteJob(ctx context.Context, jobID string, outcome store.Outcome, errMsg string, backoffSeconds float64) error {
	f.completedJobs[jobID] = outcome
	f.completedError[jobID] = errMsg
	return nil
}
func (f *fakeQueue) JobStats(ctx context.Context) (store.Stats, error) { return store.Stats{}, nil }

func (f *fakeQueue) CreateRun(ctx context.Context, run *store.Run) error {
	f.runs[run.RunID] = run
	return nil
}
func (f *fakeQueue) CompleteRun(ctx context.Context, runID string, status store.RunStatus, metricsJSON, errMsg string) error {
	r, ok := f.runs[runID]
	if !ok {
		return errors.New("no such run")
	}
	r.Status = status
	r.MetricsJSON = metricsJSON
	r.Error = errMsg
	return nil
}
func (f *fakeQueue) CreateArtifact(ctx context.Context, artifact *store.Artifact) error {
	f.artifacts = append(f.artifacts, *artifact)
	return nil
}
func (f *fakeQueue) CreateEvidenceBundle(ctx context.Context, bundle *store.EvidenceBundle) error {
	return nil
}
func (f *fakeQueue) CreateChunks(ctx context.Context, chunks []store.Chunk) error { return nil }

func (f *fakeQueue) RunsForJob(ctx context.Context, jobID string) ([]store.Run, error) {
	return nil, nil
}
func (f *fakeQueue) ArtifactsForRun(ctx context.Context, runID string) ([]store.Artifact, error) {
	return nil, nil
}
func (f *fakeQueue) Close() error { return nil }

type fakeLake struct {
	written int
}

func (l *fakeLake) Write(ctx context.Context, loc lake.Locator, content []byte, contentSHA256 string) (lake.Result, error) {
	l.written++
	return lake.Result{LakeURI: "lake://test/" + loc.ArtifactType, ContentSHA256: contentSHA256, ByteCount: len(content), Status: lake.StatusWritten}, nil
}
func (l *fakeLake) Read(ctx context.Context, uri string) ([]byte, error) { return nil, nil }
func (l *fakeLake) Exists(ctx context.Context, uri string) (bool, error) { return false, nil }

type fakePublisher struct {
	events []string
}

func (p *fakePublisher) PublishRunCompleted(ctx context.Context, jobID, runID, status, correlationID string) {
	p.events = append(p.events, status)
}

func testRegistry(handler registry.Handler) *registry.Registry {
	r := registry.New()
	_ = r.Register(registry.JobTypeDefinition{
		JobType:          "page_classification",
		InterrogationKey: "page_classification_v1",
		Handler:          handler,
	})
	r.Start()
	return r
}

func TestDispatchOnceReturnsFalseWhenQueueEmpty(t *testing.T) {
	q := newFakeQueue()
	d := New(DefaultConfig("w1", false), q, &fakeLake{}, testRegistry(nil), nil, nil)
	claimed, err := d.DispatchOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestDispatchOnceSucceedsAndWritesArtifacts(t *testing.T) {
	job := store.Job{JobID: "j1", InterrogationKey: "page_classification_v1", InputJSON: "{}", MaxAttempts: 3}
	q := newFakeQueue(job)
	lk := &fakeLake{}
	pub := &fakePublisher{}
	handler := func(ctx context.Context, inputJSON string, rc registry.RunContext) (registry.HandlerResult, error) {
		return registry.HandlerResult{
			Kind: registry.ResultSucceeded,
			Artifacts: []registry.DeclaredArtifact{
				{ArtifactType: "classification", Content: []byte(`{"label":"bio"}`), ContentMIMEType: "application/json", StoredInSQL: true, MirroredToLake: true},
			},
		}, nil
	}
	d := New(DefaultConfig("w1", false), q, lk, testRegistry(handler), pub, nil)

	claimed, err := d.DispatchOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.Equal(t, store.OutcomeSucceeded, q.completedJobs["j1"])
	require.Len(t, q.artifacts, 1)
	assert.Equal(t, "classification", q.artifacts[0].ArtifactType)
	assert.NotEmpty(t, q.artifacts[0].LakeURI)
	assert.Equal(t, 1, lk.written)
	assert.Equal(t, []string{"succeeded"}, pub.events)
}

func TestDispatchOnceFailsWhenNoHandlerRegistered(t *testing.T) {
	job := store.Job{JobID: "j2", InterrogationKey: "unknown_v1", InputJSON: "{}", MaxAttempts: 3}
	q := newFakeQueue(job)
	d := New(DefaultConfig("w1", false), q, &fakeLake{}, registry.New(), nil, nil)

	claimed, err := d.DispatchOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.Equal(t, store.OutcomeFailed, q.completedJobs["j2"])
	assert.Contains(t, q.completedError["j2"], "no handler registered")
}

func TestDispatchOnceHandlerFailureRequeues(t *testing.T) {
	job := store.Job{JobID: "j3", InterrogationKey: "page_classification_v1", InputJSON: "{}", AttemptCount: 1, MaxAttempts: 3}
	q := newFakeQueue(job)
	handler := func(ctx context.Context, inputJSON string, rc registry.RunContext) (registry.HandlerResult, error) {
		return registry.HandlerResult{Kind: registry.ResultFailed, Error: "upstream timeout"}, nil
	}
	d := New(DefaultConfig("w1", false), q, &fakeLake{}, testRegistry(handler), nil, nil)

	claimed, err := d.DispatchOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.Equal(t, store.OutcomeFailed, q.completedJobs["j3"])
	assert.Equal(t, "upstream timeout", q.completedError["j3"])
}

func TestDispatchOnceHandlerPanicFailsRunInsteadOfCrashing(t *testing.T) {
	job := store.Job{JobID: "j3p", InterrogationKey: "page_classification_v1", InputJSON: "{}", AttemptCount: 1, MaxAttempts: 3}
	q := newFakeQueue(job)
	handler := func(ctx context.Context, inputJSON string, rc registry.RunContext) (registry.HandlerResult, error) {
		panic("boom")
	}
	d := New(DefaultConfig("w1", false), q, &fakeLake{}, testRegistry(handler), nil, nil)

	claimed, err := d.DispatchOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.Equal(t, store.OutcomeFailed, q.completedJobs["j3p"])
	assert.Contains(t, q.completedError["j3p"], "handler panicked")
	assert.Contains(t, q.completedError["j3p"], "boom")
}

func TestDispatchOnceSkippedClosesJobSucceeded(t *testing.T) {
	job := store.Job{JobID: "j4", InterrogationKey: "page_classification_v1", InputJSON: "{}", MaxAttempts: 3}
	q := newFakeQueue(job)
	handler := func(ctx context.Context, inputJSON string, rc registry.RunContext) (registry.HandlerResult, error) {
		return registry.HandlerResult{Kind: registry.ResultSkipped}, nil
	}
	pub := &fakePublisher{}
	d := New(DefaultConfig("w1", false), q, &fakeLake{}, testRegistry(handler), pub, nil)

	claimed, err := d.DispatchOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.Equal(t, store.OutcomeSkipped, q.completedJobs["j4"])
	require.Len(t, q.runs, 1)
	for _, r := range q.runs {
		assert.Equal(t, store.RunSkipped, r.Status)
	}
	assert.Equal(t, []string{"skipped"}, pub.events)
}

func TestDispatchOnceDryRunPropagatesExecutionMode(t *testing.T) {
	job := store.Job{JobID: "j5", InterrogationKey: "page_classification_v1", InputJSON: "{}", MaxAttempts: 3}
	q := newFakeQueue(job)
	var sawMode registry.ExecutionMode
	handler := func(ctx context.Context, inputJSON string, rc registry.RunContext) (registry.HandlerResult, error) {
		sawMode = rc.ExecutionMode
		return registry.HandlerResult{Kind: registry.ResultSucceeded, OutputJSON: "DRY-RUN"}, nil
	}
	d := New(DefaultConfig("w1", true), q, &fakeLake{}, testRegistry(handler), nil, nil)

	_, err := d.DispatchOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, registry.ExecutionDryRun, sawMode)
	assert.Equal(t, 0, len(q.artifacts))
}
