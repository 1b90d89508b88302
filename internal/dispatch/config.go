// Copyright 2025 James Ross

// Package dispatch implements the LLM job dispatcher: claim a job, open a
// run, resolve a handler by interrogation_key, invoke it under a run
// context, and persist the outcome.
package dispatch

import (
	"os"
	"strconv"

	"github.com/holocron/orchestrator/internal/registry"
)

// Config controls one dispatcher worker's polling and storage behavior.
type Config struct {
	WorkerID     string
	DryRun       bool
	PollSeconds  int
	LakeRoot     string
	LeaseSeconds int
	ClaimBatch   int
}

// ExecutionMode derives the run-context execution mode from DryRun.
func (c Config) ExecutionMode() registry.ExecutionMode {
	if c.DryRun {
		return registry.ExecutionDryRun
	}
	return registry.ExecutionLive
}

// DefaultConfig matches the reference dispatcher's defaults.
func DefaultConfig(workerID string, dryRun bool) Config {
	return Config{
		WorkerID:     workerID,
		DryRun:       dryRun,
		PollSeconds:  10,
		LakeRoot:     "lake/llm_runs",
		LeaseSeconds: 300,
		ClaimBatch:   1,
	}
}

// ConfigFromEnv builds a Config from WORKER_ID/POLL_SECONDS/LAKE_ROOT,
// falling back to DefaultConfig's values when unset.
func ConfigFromEnv(dryRun bool) Config {
	cfg := DefaultConfig(os.Getenv("WORKER_ID"), dryRun)
	if v := os.Getenv("POLL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.PollSeconds = n
		}
	}
	if v := os.Getenv("LAKE_ROOT"); v != "" {
		cfg.LakeRoot = v
	}
	return cfg
}
