// Copyright 2025 James Ross

// Package lake persists content-addressed blobs to a hierarchical path
// derived from (kind, source system/run, artifact type) and a content
// digest, skipping the write whenever the digest already matches what is
// on the backend.
package lake

import (
	"context"
	"fmt"
	"time"
)

// Status reports what Write actually did.
type Status string

const (
	StatusWritten Status = "written"
	StatusSkipped Status = "skipped"
)

// Kind distinguishes the two lake layouts described by the layout spec:
// ingest records are filed under the source system/name/resource type,
// LLM artifacts under the owning run.
type Kind string

const (
	KindIngest Kind = "ingest"
	KindRun    Kind = "llm_runs"
)

// Locator is the set of inputs that deterministically produce a lake path.
// It never includes the content itself, so two callers with identical
// Locator+digest always agree on where a blob lives before either writes it.
type Locator struct {
	Kind Kind

	// Ingest fields.
	SourceSystem string
	SourceName   string
	ResourceType string
	ResourceID   string

	// LLM run fields.
	RunID        string
	ArtifactType string

	Date time.Time
	Ext  string
}

// Result is returned by Write.
type Result struct {
	LakeURI       string
	ContentSHA256 string
	ByteCount     int
	Status        Status
}

// Backend persists and retrieves canonical blobs addressed by a Locator and
// a content digest. Implementations must be idempotent: writing the same
// (locator, digest, content) twice is a no-op the second time.
type Backend interface {
	// Write stores content at the path derived from loc, unless a blob with
	// the same digest already exists there, in which case it reports
	// StatusSkipped without touching the backend. contentSHA256 must equal
	// sha256(content) in hex; callers compute it via internal/canon.
	Write(ctx context.Context, loc Locator, content []byte, contentSHA256 string) (Result, error)

	// Read fetches the raw bytes stored at uri.
	Read(ctx context.Context, uri string) ([]byte, error)

	// Exists reports whether uri is present without reading its content.
	Exists(ctx context.Context, uri string) (bool, error)
}

// Path renders the deterministic lake-relative path for loc, matching the
// layout: "<kind>/<source_system>/<source_name>/<resource_type>/YYYY/MM/DD/<id>.<ext>"
// for ingest records, "llm_runs/YYYY/MM/DD/<run_id>/<artifact_type>.<ext>" for
// LLM artifacts.
func Path(loc Locator) (string, error) {
	ext := loc.Ext
	if ext == "" {
		ext = "json"
	}
	y, m, d := loc.Date.UTC().Date()
	datePath := fmt.Sprintf("%04d/%02d/%02d", y, m, d)

	switch loc.Kind {
	case KindIngest:
		if loc.SourceSystem == "" || loc.SourceName == "" || loc.ResourceType == "" || loc.ResourceID == "" {
			return "", fmt.Errorf("lake: ingest locator requires source_system, source_name, resource_type, resource_id")
		}
		return fmt.Sprintf("ingest/%s/%s/%s/%s/%s.%s",
			loc.SourceSystem, loc.SourceName, loc.ResourceType, datePath, loc.ResourceID, ext), nil
	case KindRun:
		if loc.RunID == "" || loc.ArtifactType == "" {
			return "", fmt.Errorf("lake: run locator requires run_id, artifact_type")
		}
		return fmt.Sprintf("llm_runs/%s/%s/%s.%s", datePath, loc.RunID, loc.ArtifactType, ext), nil
	default:
		return "", fmt.Errorf("lake: unknown kind %q", loc.Kind)
	}
}
