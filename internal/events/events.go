// Copyright 2025 James Ross

// Package events publishes job/run lifecycle transitions as a fire-and-forget
// side channel off the dispatcher's hot path: a publish failure is logged and
// counted, never propagated back into the run it describes.
package events

import (
	"context"
	"encoding/json"
	"time"
)

// RunCompleted is the payload published after every terminal run transition.
type RunCompleted struct {
	JobID         string    `json:"job_id"`
	RunID         string    `json:"run_id"`
	Status        string    `json:"status"`
	CorrelationID string    `json:"correlation_id"`
	PublishedUTC  time.Time `json:"published_utc"`
}

// Publisher fans out lifecycle events. Implementations must not block the
// caller on a slow or unreachable downstream.
type Publisher interface {
	PublishRunCompleted(ctx context.Context, jobID, runID, status, correlationID string)
	Close() error
}

// NopPublisher discards every event. It is the default when no broker is
// configured, so lifecycle publishing is always safe to call unconditionally.
type NopPublisher struct{}

func (NopPublisher) PublishRunCompleted(ctx context.Context, jobID, runID, status, correlationID string) {
}
func (NopPublisher) Close() error { return nil }

func marshalEvent(jobID, runID, status, correlationID string) ([]byte, error) {
	return json.Marshal(RunCompleted{
		JobID:         jobID,
		RunID:         runID,
		Status:        status,
		CorrelationID: correlationID,
		PublishedUTC:  time.Now().UTC(),
	})
}
