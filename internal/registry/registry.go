// Copyright 2025 James Ross

// Package registry holds the process-owned catalog of job types the
// dispatcher can resolve a handler for, plus the per-run correlation
// context passed into every handler invocation.
package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"
)

// ExecutionMode tells a handler whether it may perform live side effects.
type ExecutionMode string

const (
	ExecutionLive   ExecutionMode = "live"
	ExecutionDryRun ExecutionMode = "dry_run"
)

// JobTypeDefinition is one versioned prompt/schema contract a handler
// implements.
type JobTypeDefinition struct {
	JobType          string
	DisplayName      string
	InterrogationKey string
	HandlerRef       string
	MaxAttempts      int
	DefaultPriority  int
	TimeoutSeconds   int
	Version          string
	Description      string
	Tags             []string
	OutputSchemaJSON string

	Handler Handler
}

// ToDict renders the definition as a JSON-shaped map, matching the
// reference job type registry's introspection method.
func (d JobTypeDefinition) ToDict() map[string]interface{} {
	return map[string]interface{}{
		"job_type":          d.JobType,
		"display_name":      d.DisplayName,
		"interrogation_key": d.InterrogationKey,
		"handler_ref":       d.HandlerRef,
		"max_attempts":      d.MaxAttempts,
		"default_priority":  d.DefaultPriority,
		"timeout_seconds":   d.TimeoutSeconds,
		"version":           d.Version,
		"description":       d.Description,
		"tags":              d.Tags,
	}
}

// RunContext is the per-run correlation context passed into every handler.
type RunContext struct {
	JobID          string
	RunID          string
	CorrelationID  string
	WorkerID       string
	JobType        string
	AttemptNumber  int
	MaxAttempts    int
	ExecutionMode  ExecutionMode
	StartedAt      time.Time
}

// IsDryRun reports whether handlers must avoid live side effects.
func (rc RunContext) IsDryRun() bool {
	return rc.ExecutionMode == ExecutionDryRun
}

// GetLogContext renders the run's correlation fields for structured
// logging, so every log line a handler emits can be joined back to its run.
func (rc RunContext) GetLogContext() []zap.Field {
	return []zap.Field{
		zap.String("job_id", rc.JobID),
		zap.String("run_id", rc.RunID),
		zap.String("correlation_id", rc.CorrelationID),
		zap.String("worker_id", rc.WorkerID),
		zap.String("job_type", rc.JobType),
		zap.Int("attempt_number", rc.AttemptNumber),
		zap.String("execution_mode", string(rc.ExecutionMode)),
	}
}

// HandlerResultKind tags the three possible run outcomes.
type HandlerResultKind string

const (
	ResultSucceeded HandlerResultKind = "succeeded"
	ResultFailed    HandlerResultKind = "failed"
	ResultSkipped   HandlerResultKind = "skipped"
)

// DeclaredArtifact is one artifact a handler wants persisted, before the
// dispatcher applies the storage policy (content/lake writing).
type DeclaredArtifact struct {
	ArtifactType    string
	Content         []byte
	ContentMIMEType string
	StoredInSQL     bool
	MirroredToLake  bool
}

// HandlerResult is the tagged-variant outcome a handler returns.
type HandlerResult struct {
	Kind         HandlerResultKind
	Artifacts    []DeclaredArtifact
	MetricsJSON  string
	Error        string
	OutputJSON   string
}

// Handler implements one job type's business logic.
type Handler func(ctx context.Context, inputJSON string, rc RunContext) (HandlerResult, error)

// Registry is the process-owned catalog of job-type definitions, keyed by
// interrogation_key. It is populated at startup (typically from package
// init() functions registering against a shared instance) and never
// mutated once workers begin claiming jobs.
type Registry struct {
	mu          sync.RWMutex
	started     bool
	definitions map[string]JobTypeDefinition
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{definitions: map[string]JobTypeDefinition{}}
}

// Register adds a job type definition, keyed by InterrogationKey. Calling
// Register after Start returns an error — this is a startup-only operation,
// not a runtime one.
func (r *Registry) Register(def JobTypeDefinition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return fmt.Errorf("registry: cannot register job type %q after Start", def.JobType)
	}
	if def.InterrogationKey == "" {
		return fmt.Errorf("registry: job type %q missing interrogation_key", def.JobType)
	}
	if def.OutputSchemaJSON != "" {
		if _, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(def.OutputSchemaJSON)); err != nil {
			return fmt.Errorf("registry: invalid output_schema_json for %q: %w", def.JobType, err)
		}
	}
	r.definitions[def.InterrogationKey] = def
	return nil
}

// Start freezes the registry against further registration.
func (r *Registry) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = true
}

// Get resolves a job type definition by interrogation key.
func (r *Registry) Get(interrogationKey string) (JobTypeDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.definitions[interrogationKey]
	return d, ok
}

// List returns every registered definition.
func (r *Registry) List() []JobTypeDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]JobTypeDefinition, 0, len(r.definitions))
	for _, d := range r.definitions {
		out = append(out, d)
	}
	return out
}

// ValidateOutput checks outputJSON against the job type's declared
// output_schema_json, when one was registered. No schema means no check.
func (d JobTypeDefinition) ValidateOutput(outputJSON string) error {
	if d.OutputSchemaJSON == "" {
		return nil
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(d.OutputSchemaJSON))
	if err != nil {
		return fmt.Errorf("registry: compile output schema for %q: %w", d.JobType, err)
	}
	result, err := schema.Validate(gojsonschema.NewStringLoader(outputJSON))
	if err != nil {
		return fmt.Errorf("registry: validate output for %q: %w", d.JobType, err)
	}
	if !result.Valid() {
		msg := "handler output failed schema validation:"
		for _, e := range result.Errors() {
			msg += " " + e.String() + ";"
		}
		return fmt.Errorf("registry: %s", msg)
	}
	return nil
}
