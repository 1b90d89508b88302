// Copyright 2025 James Ross
package events

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// NATSPublisher publishes run-completed events to a NATS subject, one
// subject per job status ("events.run.succeeded", "events.run.failed", ...).
type NATSPublisher struct {
	conn    *nats.Conn
	subject string
	log     *zap.Logger
}

// NewNATSPublisher connects to natsURL and returns a publisher that sends to
// subjectPrefix + "." + status for every event.
func NewNATSPublisher(natsURL, subjectPrefix string, log *zap.Logger) (*NATSPublisher, error) {
	conn, err := nats.Connect(natsURL, nats.Name("orchestrator-dispatcher"))
	if err != nil {
		return nil, fmt.Errorf("events: connect to NATS: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &NATSPublisher{conn: conn, subject: subjectPrefix, log: log}, nil
}

// PublishRunCompleted sends the event; any error is logged and swallowed.
func (p *NATSPublisher) PublishRunCompleted(ctx context.Context, jobID, runID, status, correlationID string) {
	payload, err := marshalEvent(jobID, runID, status, correlationID)
	if err != nil {
		p.log.Warn("events: marshal run-completed event failed", zap.Error(err), zap.String("job_id", jobID))
		return
	}
	subject := p.subject + "." + status
	if err := p.conn.Publish(subject, payload); err != nil {
		p.log.Warn("events: publish failed",
			zap.Error(err), zap.String("subject", subject), zap.String("job_id", jobID), zap.String("run_id", runID))
		return
	}
	p.log.Debug("events: published run-completed",
		zap.String("subject", subject), zap.String("job_id", jobID), zap.String("run_id", runID))
}

// Close drains and closes the underlying NATS connection.
func (p *NATSPublisher) Close() error {
	if p.conn == nil {
		return nil
	}
	return p.conn.Drain()
}
