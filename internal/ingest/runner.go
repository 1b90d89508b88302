// Copyright 2025 James Ross
package ingest

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/holocron/orchestrator/internal/canon"
	"github.com/holocron/orchestrator/internal/connector"
	"github.com/holocron/orchestrator/internal/lake"
	"github.com/holocron/orchestrator/internal/retry"
	"github.com/holocron/orchestrator/internal/store"
)

// Runner claims ingest work items, fetches them through a per-source
// connector, mirrors the canonical payload to the lake, runs discovery
// plugins over the fetched content, and closes each item out.
type Runner struct {
	cfg        Config
	queue      store.Backend
	lakeBack   lake.Backend
	connectors map[string]connector.Connector
	limiter    *connector.RateLimiter
	plugins    []DiscoveryPlugin
	log        *zap.Logger
	retryCfg   retry.Config
}

// New builds a Runner. connectors is keyed by WorkItem.SourceSystem.
func New(cfg Config, queue store.Backend, lakeBack lake.Backend, connectors map[string]connector.Connector, plugins []DiscoveryPlugin, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{
		cfg:        cfg,
		queue:      queue,
		lakeBack:   lakeBack,
		connectors: connectors,
		limiter:    connector.NewRateLimiter(cfg.RequestsPerSecond),
		plugins:    plugins,
		log:        log,
		retryCfg:   retry.DefaultConfig(),
	}
}

// RunBatch claims up to cfg.BatchSize items and processes each to
// completion. It returns the number of items claimed.
func (r *Runner) RunBatch(ctx context.Context) (int, error) {
	items, err := r.queue.ClaimWorkItems(ctx, r.cfg.WorkerID, r.cfg.BatchSize, r.cfg.LeaseSeconds)
	if err != nil {
		return 0, fmt.Errorf("ingest: claim work items: %w", err)
	}
	for _, item := range items {
		r.processOne(ctx, item)
	}
	return len(items), nil
}

func (r *Runner) processOne(ctx context.Context, item store.WorkItem) {
	log := r.log.With(
		zap.String("work_item_id", item.WorkItemID),
		zap.String("source_system", item.SourceSystem),
		zap.String("resource_type", item.ResourceType),
		zap.String("resource_id", item.ResourceID),
	)

	stop := r.startHeartbeat(ctx, item.WorkItemID, log)
	defer stop()

	conn, ok := r.connectors[item.SourceSystem]
	if !ok {
		r.fail(ctx, item, fmt.Sprintf("no connector registered for source_system %q", item.SourceSystem), log)
		return
	}

	if err := r.limiter.Wait(ctx); err != nil {
		r.fail(ctx, item, fmt.Sprintf("rate limiter wait: %v", err), log)
		return
	}

	resp, err := conn.Fetch(ctx, connector.Request{
		URI:     item.RequestURI,
		Method:  item.RequestMethod,
		Headers: item.RequestHeaders,
		Body:    item.RequestBody,
	})
	if err != nil {
		r.failWithRetryAfter(ctx, item, fmt.Sprintf("fetch transport error: %v", err), 0, log)
		return
	}
	if !resp.Succeeded() {
		r.failWithRetryAfter(ctx, item, resp.ErrorMessage, resp.RetryAfter, log)
		return
	}
	if resp.StatusCode >= 400 {
		r.failWithRetryAfter(ctx, item, fmt.Sprintf("upstream status %d", resp.StatusCode), resp.RetryAfter, log)
		return
	}

	canonical, digest, err := canonicalizePayload(resp.Payload)
	if err != nil {
		r.fail(ctx, item, fmt.Sprintf("canonicalize payload: %v", err), log)
		return
	}

	lakeRes, err := r.lakeBack.Write(ctx, lake.Locator{
		Kind:         lake.KindIngest,
		SourceSystem: item.SourceSystem,
		SourceName:   item.SourceName,
		ResourceType: item.ResourceType,
		ResourceID:   item.ResourceID,
		Date:         time.Now().UTC(),
	}, canonical, digest)
	if err != nil {
		r.fail(ctx, item, fmt.Sprintf("lake write failed: %v", err), log)
		return
	}

	if err := r.runDiscovery(ctx, item, resp.Payload, log); err != nil {
		log.Warn("ingest: discovery plugin failed, completing item anyway", zap.Error(err))
	}

	if err := r.queue.CompleteWorkItem(ctx, item.WorkItemID, store.OutcomeSucceeded, "", 0); err != nil {
		log.Error("ingest: complete work item (succeeded) failed", zap.Error(err))
		return
	}
	log.Debug("ingest: item completed", zap.String("lake_uri", lakeRes.LakeURI), zap.String("status", string(lakeRes.Status)))
}

// canonicalizePayload treats the payload as JSON when it parses as such,
// falling back to hashing the raw bytes for non-JSON upstreams (HTML pages,
// binary documents).
func canonicalizePayload(payload []byte) ([]byte, string, error) {
	if canonical, err := canon.FromJSON(payload); err == nil {
		return canonical, canon.Hash(canonical), nil
	}
	return payload, canon.Hash(payload), nil
}

func (r *Runner) runDiscovery(ctx context.Context, item store.WorkItem, payload []byte, log *zap.Logger) error {
	var firstErr error
	for _, plugin := range r.plugins {
		discovered, err := plugin.Discover(ctx, item, payload)
		if err != nil {
			log.Warn("ingest: discovery plugin errored", zap.String("plugin", plugin.Name()), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		for i := range discovered {
			res, err := r.queue.EnqueueWorkItem(ctx, &discovered[i])
			if err != nil {
				log.Warn("ingest: enqueue discovered item failed",
					zap.String("plugin", plugin.Name()), zap.Error(err))
				continue
			}
			if res.Accepted {
				log.Debug("ingest: discovered item enqueued",
					zap.String("plugin", plugin.Name()), zap.String("work_item_id", res.ID))
			}
		}
	}
	return firstErr
}

func (r *Runner) fail(ctx context.Context, item store.WorkItem, errMsg string, log *zap.Logger) {
	r.failWithRetryAfter(ctx, item, errMsg, 0, log)
}

func (r *Runner) failWithRetryAfter(ctx context.Context, item store.WorkItem, errMsg string, retryAfter time.Duration, log *zap.Logger) {
	backoffSeconds := retryAfter.Seconds()
	if backoffSeconds <= 0 {
		backoffSeconds = retry.CalculateDelay(item.Attempt, r.retryCfg).Seconds()
	}
	if err := r.queue.CompleteWorkItem(ctx, item.WorkItemID, store.OutcomeFailed, errMsg, backoffSeconds); err != nil {
		log.Error("ingest: complete work item (failed) failed", zap.Error(err))
		return
	}
	log.Warn("ingest: item failed", zap.String("error", errMsg), zap.Float64("backoff_seconds", backoffSeconds))
}

// startHeartbeat renews the item's lease on a fixed interval until stop is
// called, so a slow fetch or discovery pass doesn't lose its claim to
// another worker's lease-expiry sweep.
func (r *Runner) startHeartbeat(ctx context.Context, workItemID string, log *zap.Logger) (stop func()) {
	if r.cfg.HeartbeatSeconds <= 0 {
		return func() {}
	}
	hbCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(time.Duration(r.cfg.HeartbeatSeconds) * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-hbCtx.Done():
				return
			case <-ticker.C:
				res, err := r.queue.HeartbeatWorkItem(hbCtx, workItemID, r.cfg.WorkerID, r.cfg.LeaseSeconds)
				if err != nil {
					log.Warn("ingest: heartbeat failed", zap.Error(err))
					continue
				}
				if res == store.HeartbeatLost {
					log.Warn("ingest: lease lost to another worker")
					return
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}
