// Copyright 2025 James Ross
package dispatch

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/holocron/orchestrator/internal/canon"
	"github.com/holocron/orchestrator/internal/lake"
	"github.com/holocron/orchestrator/internal/registry"
	"github.com/holocron/orchestrator/internal/retry"
	"github.com/holocron/orchestrator/internal/store"
)

// EventPublisher is the narrow slice of internal/events.Publisher the
// dispatcher needs, kept here to avoid an import cycle between dispatch
// and events.
type EventPublisher interface {
	PublishRunCompleted(ctx context.Context, jobID, runID, status, correlationID string)
}

// Dispatcher claims jobs, resolves handlers, and persists run/artifact outcomes.
type Dispatcher struct {
	cfg       Config
	queue     store.Backend
	lakeBack  lake.Backend
	reg       *registry.Registry
	publisher EventPublisher
	log       *zap.Logger
	retryCfg  retry.Config
}

// New builds a Dispatcher over queue/lakeBack/reg. publisher and log may be
// nil; a nil publisher disables lifecycle events, a nil log uses zap.NewNop().
func New(cfg Config, queue store.Backend, lakeBack lake.Backend, reg *registry.Registry, publisher EventPublisher, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		cfg:       cfg,
		queue:     queue,
		lakeBack:  lakeBack,
		reg:       reg,
		publisher: publisher,
		log:       log,
		retryCfg:  retry.DefaultConfig(),
	}
}

// DispatchOnce claims at most one job and runs it to a terminal state. It
// returns false when there was no claimable job, true otherwise.
func (d *Dispatcher) DispatchOnce(ctx context.Context) (bool, error) {
	jobs, err := d.queue.ClaimJobs(ctx, d.cfg.WorkerID, 1, d.cfg.LeaseSeconds)
	if err != nil {
		return false, fmt.Errorf("dispatch: claim job: %w", err)
	}
	if len(jobs) == 0 {
		return false, nil
	}
	job := jobs[0]
	d.runJob(ctx, job)
	return true, nil
}

func (d *Dispatcher) runJob(ctx context.Context, job store.Job) {
	jobType := registry.InferJobType(job.InterrogationKey)
	def, ok := d.reg.Get(job.InterrogationKey)

	run := &store.Run{
		RunID:      uuid.NewString(),
		JobID:      job.JobID,
		Status:     store.RunRunning,
		StartedUTC: time.Now().UTC(),
	}
	if err := d.queue.CreateRun(ctx, run); err != nil {
		d.log.Error("dispatch: create run failed", zap.Error(err), zap.String("job_id", job.JobID))
		return
	}

	rc := registry.RunContext{
		JobID:         job.JobID,
		RunID:         run.RunID,
		CorrelationID: uuid.NewString(),
		WorkerID:      d.cfg.WorkerID,
		JobType:       jobType,
		AttemptNumber: job.AttemptCount,
		MaxAttempts:   job.MaxAttempts,
		ExecutionMode: d.cfg.ExecutionMode(),
		StartedAt:     run.StartedUTC,
	}
	log := d.log.With(rc.GetLogContext()...)

	if !ok || def.Handler == nil {
		d.failRun(ctx, job, run, rc, fmt.Sprintf("no handler registered for interrogation_key %q", job.InterrogationKey))
		return
	}

	result, err := d.invokeHandler(ctx, def.Handler, job.InputJSON, rc)
	if err != nil {
		d.failRun(ctx, job, run, rc, err.Error())
		return
	}

	switch result.Kind {
	case registry.ResultSkipped:
		d.completeRun(ctx, job, run, store.RunSkipped, result, log)
		if err := d.queue.CompleteJob(ctx, job.JobID, store.OutcomeSkipped, "", 0); err != nil {
			log.Error("dispatch: complete job (skipped) failed", zap.Error(err))
		}
		d.publish(ctx, job.JobID, run.RunID, string(store.RunSkipped), rc.CorrelationID)
		return
	case registry.ResultFailed:
		d.failRun(ctx, job, run, rc, result.Error)
		return
	case registry.ResultSucceeded:
		if def.OutputSchemaJSON != "" {
			if err := def.ValidateOutput(result.OutputJSON); err != nil {
				d.failRun(ctx, job, run, rc, fmt.Sprintf("handler contract error: %v", err))
				return
			}
		}
		if err := d.writeArtifacts(ctx, run.RunID, result); err != nil {
			d.failRun(ctx, job, run, rc, fmt.Sprintf("artifact write failed: %v", err))
			return
		}
		d.completeRun(ctx, job, run, store.RunSucceeded, result, log)
		if err := d.queue.CompleteJob(ctx, job.JobID, store.OutcomeSucceeded, "", 0); err != nil {
			log.Error("dispatch: complete job (succeeded) failed", zap.Error(err))
		}
		d.publish(ctx, job.JobID, run.RunID, string(store.RunSucceeded), rc.CorrelationID)
	default:
		d.failRun(ctx, job, run, rc, fmt.Sprintf("handler returned unknown result kind %q", result.Kind))
	}
}

// invokeHandler calls handler under a recover guard: the one place a panic
// is caught and turned into a FAILED result, per the handler contract — a
// bad handler must never take the worker process down with it.
func (d *Dispatcher) invokeHandler(ctx context.Context, handler registry.Handler, inputJSON string, rc registry.RunContext) (result registry.HandlerResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v\n%s", r, debug.Stack())
		}
	}()
	return handler(ctx, inputJSON, rc)
}

func (d *Dispatcher) completeRun(ctx context.Context, job store.Job, run *store.Run, status store.RunStatus, result registry.HandlerResult, log *zap.Logger) {
	if err := d.queue.CompleteRun(ctx, run.RunID, status, result.MetricsJSON, result.Error); err != nil {
		log.Error("dispatch: complete run failed", zap.Error(err))
	}
}

func (d *Dispatcher) failRun(ctx context.Context, job store.Job, run *store.Run, rc registry.RunContext, errMsg string) {
	log := d.log.With(rc.GetLogContext()...)
	if err := d.queue.CompleteRun(ctx, run.RunID, store.RunFailed, "", errMsg); err != nil {
		log.Error("dispatch: complete run (failed) failed", zap.Error(err))
	}
	backoffSeconds := retry.CalculateDelay(job.AttemptCount, d.retryCfg).Seconds()
	if err := d.queue.CompleteJob(ctx, job.JobID, store.OutcomeFailed, errMsg, backoffSeconds); err != nil {
		log.Error("dispatch: complete job (failed) failed", zap.Error(err))
	}
	d.publish(ctx, job.JobID, run.RunID, string(store.RunFailed), rc.CorrelationID)
}

func (d *Dispatcher) publish(ctx context.Context, jobID, runID, status, correlationID string) {
	if d.publisher == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			d.log.Warn("dispatch: event publish panicked, ignoring", zap.Any("recover", r))
		}
	}()
	d.publisher.PublishRunCompleted(ctx, jobID, runID, status, correlationID)
}

// writeArtifacts persists every declared artifact per the storage policy:
// content_sha256 is always computed, lake writes use the run's locator, and
// at least one of stored_in_sql/mirrored_to_lake must end up true.
func (d *Dispatcher) writeArtifacts(ctx context.Context, runID string, result registry.HandlerResult) error {
	for _, da := range result.Artifacts {
		digest := canon.Hash(da.Content)

		artifact := &store.Artifact{
			ArtifactID:      uuid.NewString(),
			RunID:           runID,
			ArtifactType:    da.ArtifactType,
			ContentMIMEType: da.ContentMIMEType,
			ContentSHA256:   digest,
			ByteCount:       len(da.Content),
			StoredInSQL:     da.StoredInSQL,
			MirroredToLake:  da.MirroredToLake,
		}
		if da.StoredInSQL {
			artifact.Content = string(da.Content)
		}
		if da.MirroredToLake {
			if d.lakeBack == nil {
				return fmt.Errorf("artifact %s declared mirrored_to_lake but no lake backend is configured", da.ArtifactType)
			}
			res, err := d.lakeBack.Write(ctx, lake.Locator{
				Kind:         lake.KindRun,
				RunID:        runID,
				ArtifactType: da.ArtifactType,
				Date:         time.Now().UTC(),
			}, da.Content, digest)
			if err != nil {
				return fmt.Errorf("write artifact %s to lake: %w", da.ArtifactType, err)
			}
			artifact.LakeURI = res.LakeURI
		}
		if err := d.queue.CreateArtifact(ctx, artifact); err != nil {
			return fmt.Errorf("persist artifact %s: %w", da.ArtifactType, err)
		}
	}
	return nil
}
