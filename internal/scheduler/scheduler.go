// Copyright 2025 James Ross

// Package scheduler runs standing maintenance jobs (a lease-recovery sweep
// and a periodic stats snapshot) on top of the queue's claim/complete
// contract. It is additive ambient infrastructure: the recovery invariant
// holds on the claim path alone, with or without this scheduler running.
package scheduler

import (
	"context"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/holocron/orchestrator/internal/store"
)

// Config controls the scheduler's cron expressions and sweep sizing.
type Config struct {
	LeaseSweepCron  string
	StatsCron       string
	SweepWorkerID   string
	SweepBatchSize  int
	LeaseSeconds    int
}

// DefaultConfig sweeps every minute and snapshots stats every five.
func DefaultConfig() Config {
	return Config{
		LeaseSweepCron: "@every 1m",
		StatsCron:      "@every 5m",
		SweepWorkerID:  "scheduler:lease-sweep",
		SweepBatchSize: 50,
		LeaseSeconds:   300,
	}
}

// StatsRecorder is the narrow slice of store.StatsMirror the scheduler
// needs; satisfied by a nil-safe *store.StatsMirror or a test double.
type StatsRecorder interface {
	Record(table string, snapshot store.Stats)
}

// Scheduler owns the cron runtime and the queue it sweeps.
type Scheduler struct {
	cfg   Config
	queue store.Backend
	stats StatsRecorder
	log   *zap.Logger
	cron  *cron.Cron
}

// New builds a Scheduler. stats may be nil to disable snapshotting.
func New(cfg Config, queue store.Backend, stats StatsRecorder, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{cfg: cfg, queue: queue, stats: stats, log: log, cron: cron.New()}
}

// Start registers and starts the standing jobs. It returns an error if a
// cron expression fails to parse.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.cfg.LeaseSweepCron, func() { s.leaseSweep(ctx) }); err != nil {
		return err
	}
	if s.stats != nil {
		if _, err := s.cron.AddFunc(s.cfg.StatsCron, func() { s.snapshotStats(ctx) }); err != nil {
			return err
		}
	}
	s.cron.Start()
	return nil
}

// Stop halts the cron runtime, waiting for any in-flight job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// leaseSweep reclaims any work item or job whose lease has expired —
// Claim already does this inline for any in-process worker, so this sweep
// only matters when no long-lived worker is polling (e.g. short-lived pods).
// Reclaimed rows are immediately requeued with no backoff so the next real
// worker picks them up without waiting out the sweep's own cron interval.
func (s *Scheduler) leaseSweep(ctx context.Context) {
	items, err := s.queue.ClaimWorkItems(ctx, s.cfg.SweepWorkerID, s.cfg.SweepBatchSize, s.cfg.LeaseSeconds)
	if err != nil {
		s.log.Warn("scheduler: work item lease sweep failed", zap.Error(err))
	} else {
		for _, item := range items {
			if err := s.queue.CompleteWorkItem(ctx, item.WorkItemID, store.OutcomeFailed, "reclaimed by lease-recovery sweep", 0); err != nil {
				s.log.Warn("scheduler: requeue swept work item failed", zap.Error(err), zap.String("work_item_id", item.WorkItemID))
			}
		}
		if len(items) > 0 {
			s.log.Info("scheduler: swept abandoned work items", zap.Int("count", len(items)))
		}
	}

	jobs, err := s.queue.ClaimJobs(ctx, s.cfg.SweepWorkerID, s.cfg.SweepBatchSize, s.cfg.LeaseSeconds)
	if err != nil {
		s.log.Warn("scheduler: job lease sweep failed", zap.Error(err))
		return
	}
	for _, job := range jobs {
		if err := s.queue.CompleteJob(ctx, job.JobID, store.OutcomeFailed, "reclaimed by lease-recovery sweep", 0); err != nil {
			s.log.Warn("scheduler: requeue swept job failed", zap.Error(err), zap.String("job_id", job.JobID))
		}
	}
	if len(jobs) > 0 {
		s.log.Info("scheduler: swept abandoned jobs", zap.Int("count", len(jobs)))
	}
}

func (s *Scheduler) snapshotStats(ctx context.Context) {
	if wiStats, err := s.queue.WorkItemStats(ctx); err != nil {
		s.log.Warn("scheduler: work item stats snapshot failed", zap.Error(err))
	} else {
		s.stats.Record("work_items", wiStats)
	}
	if jobStats, err := s.queue.JobStats(ctx); err != nil {
		s.log.Warn("scheduler: job stats snapshot failed", zap.Error(err))
	} else {
		s.stats.Record("jobs", jobStats)
	}
}
