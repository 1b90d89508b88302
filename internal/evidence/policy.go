// Copyright 2025 James Ross

// Package evidence implements bounded, sampled, and redacted evidence
// bundles attached to LLM runs: per-item truncation, bundle-level caps,
// tabular sampling, and pattern-based redaction over free text.
package evidence

import "fmt"

// SamplingStrategy selects which rows a tabular extraction keeps.
type SamplingStrategy string

const (
	SamplingFirstOnly SamplingStrategy = "first_only"
	SamplingFirstLast SamplingStrategy = "first_last"
	SamplingStride    SamplingStrategy = "stride"
)

// Policy bounds one evidence bundle.
type Policy struct {
	MaxItems          int
	MaxItemBytes      int
	MaxTotalBytes     int
	SamplingStrategy  SamplingStrategy
	ChunkSize         int
	ChunkOverlap      int
	EnableRedaction   bool
}

// ValidatePolicy reports every violated constraint, not just the first —
// callers are expected to show all of them at once.
func ValidatePolicy(p Policy) []string {
	var errs []string
	if p.MaxItems <= 0 {
		errs = append(errs, "max_items must be positive")
	}
	if p.MaxTotalBytes <= 0 {
		errs = append(errs, "max_total_bytes must be positive")
	}
	if p.MaxItemBytes <= 0 {
		errs = append(errs, "max_item_bytes must be positive")
	}
	if p.MaxItemBytes > 0 && p.MaxTotalBytes > 0 && p.MaxItemBytes > p.MaxTotalBytes {
		errs = append(errs, "max_item_bytes must not exceed max_total_bytes")
	}
	switch p.SamplingStrategy {
	case SamplingFirstOnly, SamplingFirstLast, SamplingStride, "":
	default:
		errs = append(errs, fmt.Sprintf("invalid sampling_strategy %q", p.SamplingStrategy))
	}
	if p.ChunkSize > 0 && p.ChunkOverlap >= p.ChunkSize {
		errs = append(errs, "chunk_overlap must be less than chunk_size")
	}
	return errs
}
