// Copyright 2025 James Ross
package ingest

import (
	"context"

	"github.com/holocron/orchestrator/internal/store"
)

// DiscoveryPlugin inspects a fetched item's payload and yields further work
// items to enqueue — the mechanism by which, e.g., a listing page discovers
// the detail pages it links to. Plugins never enqueue directly; the runner
// owns dedupe and persistence so a misbehaving plugin can't bypass it.
type DiscoveryPlugin interface {
	Name() string
	Discover(ctx context.Context, item store.WorkItem, payload []byte) ([]store.WorkItem, error)
}
