// Copyright 2025 James Ross
package ingest

import (
	"context"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"

	"github.com/holocron/orchestrator/internal/store"
)

// GlobFilterPlugin wraps another DiscoveryPlugin and drops discovered work
// items whose RequestURI doesn't match IncludeGlobs (or matches
// ExcludeGlobs), the same include/exclude scan-filter idiom the reference
// file-scanning producer applies to local paths, generalized here to
// discovered request URIs.
type GlobFilterPlugin struct {
	inner        DiscoveryPlugin
	includeGlobs []string
	excludeGlobs []string
	log          *zap.Logger
}

// NewGlobFilterPlugin wraps inner with include/exclude doublestar filtering.
// An empty includeGlobs matches everything.
func NewGlobFilterPlugin(inner DiscoveryPlugin, includeGlobs, excludeGlobs []string, log *zap.Logger) *GlobFilterPlugin {
	if log == nil {
		log = zap.NewNop()
	}
	return &GlobFilterPlugin{inner: inner, includeGlobs: includeGlobs, excludeGlobs: excludeGlobs, log: log}
}

func (g *GlobFilterPlugin) Name() string { return g.inner.Name() + ":glob-filtered" }

func (g *GlobFilterPlugin) Discover(ctx context.Context, item store.WorkItem, payload []byte) ([]store.WorkItem, error) {
	discovered, err := g.inner.Discover(ctx, item, payload)
	if err != nil {
		return nil, err
	}
	out := make([]store.WorkItem, 0, len(discovered))
	for _, d := range discovered {
		if g.allowed(d.RequestURI) {
			out = append(out, d)
		} else {
			g.log.Debug("ingest: discovery item filtered by glob", zap.String("request_uri", d.RequestURI))
		}
	}
	return out, nil
}

func (g *GlobFilterPlugin) allowed(requestURI string) bool {
	included := len(g.includeGlobs) == 0
	for _, pattern := range g.includeGlobs {
		if ok, _ := doublestar.Match(pattern, requestURI); ok {
			included = true
			break
		}
	}
	if !included {
		return false
	}
	for _, pattern := range g.excludeGlobs {
		if ok, _ := doublestar.Match(pattern, requestURI); ok {
			return false
		}
	}
	return true
}
