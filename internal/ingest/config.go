// Copyright 2025 James Ross

// Package ingest implements the source-ingestion runner: claim a work item,
// fetch it through a connector, canonicalize and mirror the payload to the
// lake, run discovery plugins over it to enqueue further work, and close the
// item out.
package ingest

import (
	"os"
	"strconv"
)

// Config controls one ingest runner's polling, batching, and lease behavior.
type Config struct {
	WorkerID          string
	PollSeconds       int
	BatchSize         int
	MaxItems          int
	LeaseSeconds      int
	HeartbeatSeconds  int
	RequestsPerSecond float64
}

// DefaultConfig matches the reference runner's documented defaults.
func DefaultConfig(workerID string) Config {
	return Config{
		WorkerID:          workerID,
		PollSeconds:       5,
		BatchSize:         10,
		MaxItems:          0,
		LeaseSeconds:      120,
		HeartbeatSeconds:  30,
		RequestsPerSecond: 0,
	}
}

// ConfigFromEnv builds a Config from WORKER_ID/BATCH_SIZE/POLL_SECONDS,
// falling back to DefaultConfig's values when unset.
func ConfigFromEnv() Config {
	cfg := DefaultConfig(os.Getenv("WORKER_ID"))
	if v := os.Getenv("BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.BatchSize = n
		}
	}
	if v := os.Getenv("POLL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.PollSeconds = n
		}
	}
	return cfg
}
