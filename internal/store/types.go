// Copyright 2025 James Ross

// Package store implements the durable, transactional job queue shared by
// both pipelines: work_items (ingest) and jobs (LLM derivation) follow the
// same enqueue/claim/heartbeat/complete contract over a relational backend.
package store

import (
	"context"
	"time"
)

// WorkItemStatus is the lifecycle state of an ingest queue row.
type WorkItemStatus string

const (
	WorkItemPending    WorkItemStatus = "pending"
	WorkItemInProgress WorkItemStatus = "in_progress"
	WorkItemCompleted  WorkItemStatus = "completed"
	WorkItemFailed     WorkItemStatus = "failed"
	WorkItemSkipped    WorkItemStatus = "skipped"
)

// JobStatus is the lifecycle state of an LLM queue row.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
	JobDead      JobStatus = "dead"
)

// RunStatus is the terminal or in-flight state of one execution attempt.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
	RunSkipped   RunStatus = "skipped"
)

// Outcome is what Complete transitions a row to.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomeSkipped   Outcome = "skipped"
)

// WorkItem is one row of the ingest queue, keyed by the four-tuple natural
// key (plus an optional variant) folded into DedupeKey.
type WorkItem struct {
	WorkItemID     string
	SourceSystem   string
	SourceName     string
	ResourceType   string
	ResourceID     string
	RequestURI     string
	RequestMethod  string
	RequestHeaders map[string]string
	RequestBody    string
	Variant        string
	Status         WorkItemStatus
	Priority       int
	Attempt        int
	MaxAttempts    int
	DedupeKey      string
	AvailableUTC   time.Time
	LockedBy       string
	LockExpiresUTC time.Time
	LastError      string
	Metadata       map[string]interface{}
	CreatedUTC     time.Time
	UpdatedUTC     time.Time
}

// ComputeDedupeKey renders the natural key the queue enforces uniqueness on.
func (w WorkItem) ComputeDedupeKey() string {
	key := w.SourceSystem + ":" + w.SourceName + ":" + w.ResourceType + ":" + w.ResourceID
	if w.Variant != "" {
		key += ":" + w.Variant
	}
	return key
}

// Job is one row of the LLM derivation queue.
type Job struct {
	JobID            string
	InterrogationKey string
	InputJSON        string
	Status           JobStatus
	Priority         int
	AttemptCount     int
	MaxAttempts      int
	AvailableUTC     time.Time
	LockedBy         string
	LockExpiresUTC   time.Time
	ModelHint        string
	LastError        string
	DedupeKey        string
	CreatedUTC       time.Time
}

// Run is one execution attempt of a Job.
type Run struct {
	RunID        string
	JobID        string
	Status       RunStatus
	ModelName    string
	StartedUTC   time.Time
	CompletedUTC time.Time
	MetricsJSON  string
	Error        string
}

// Artifact is one declared output of a Run.
type Artifact struct {
	ArtifactID      string
	RunID           string
	ArtifactType    string
	LakeURI         string
	Content         string
	ContentMIMEType string
	ContentSHA256   string
	ByteCount       int
	StoredInSQL     bool
	MirroredToLake  bool
	CreatedUTC      time.Time
}

// EvidenceBundle is a bounded, possibly redacted evidence set attached to a run.
type EvidenceBundle struct {
	BundleID      string
	RunID         string
	BuildVersion  string
	PolicyJSON    string
	SummaryJSON   string
	LakeURI       string
	BundleJSON    string
	ContentSHA256 string
	RedactionsJSON string
	CreatedUTC    time.Time
}

// Chunk is one offset-stable slice of a chunked source.
type Chunk struct {
	ChunkID       string
	SourceID      string
	SourceType    string
	SourceRef     string
	Content       string
	ContentSHA256 string
	ByteCount     int
	StartOffset   int
	EndOffset     int
	ChunkIndex    int
	PolicyJSON    string
	CreatedUTC    time.Time
}

// EnqueueResult reports whether Enqueue inserted a new row or hit the
// dedupe index on an existing one.
type EnqueueResult struct {
	Accepted bool
	ID       string
}

// Stats is a point-in-time count-by-status snapshot.
type Stats struct {
	ByStatus map[string]int64
}

// HeartbeatResult reports whether the caller still owns the lease.
type HeartbeatResult string

const (
	HeartbeatOK   HeartbeatResult = "ok"
	HeartbeatLost HeartbeatResult = "lost"
)

// Backend is the transactional job-queue contract shared by work items and
// jobs. A single implementation backs both tables; callers pick the table
// via the method family (WorkItem* vs Job*).
type Backend interface {
	EnqueueWorkItem(ctx context.Context, item *WorkItem) (EnqueueResult, error)
	ClaimWorkItems(ctx context.Context, workerID string, limit int, leaseSeconds int) ([]WorkItem, error)
	HeartbeatWorkItem(ctx context.Context, workItemID, workerID string, leaseSeconds int) (HeartbeatResult, error)
	CompleteWorkItem(ctx context.Context, workItemID string, outcome Outcome, errMsg string, backoffSeconds float64) error
	WorkItemStats(ctx context.Context) (Stats, error)

	EnqueueJob(ctx context.Context, job *Job) (EnqueueResult, error)
	ClaimJobs(ctx context.Context, workerID string, limit int, leaseSeconds int) ([]Job, error)
	HeartbeatJob(ctx context.Context, jobID, workerID string, leaseSeconds int) (HeartbeatResult, error)
	CompleteJob(ctx context.Context, jobID string, outcome Outcome, errMsg string, backoffSeconds float64) error
	JobStats(ctx context.Context) (Stats, error)

	CreateRun(ctx context.Context, run *Run) error
	CompleteRun(ctx context.Context, runID string, status RunStatus, metricsJSON, errMsg string) error
	CreateArtifact(ctx context.Context, artifact *Artifact) error
	CreateEvidenceBundle(ctx context.Context, bundle *EvidenceBundle) error
	CreateChunks(ctx context.Context, chunks []Chunk) error

	// RunsForJob returns the execution history of a job, most recent first —
	// genealogy is derived by query, never stored as a back-pointer.
	RunsForJob(ctx context.Context, jobID string) ([]Run, error)
	ArtifactsForRun(ctx context.Context, runID string) ([]Artifact, error)

	Close() error
}
