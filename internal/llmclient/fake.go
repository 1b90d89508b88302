// Copyright 2025 James Ross
package llmclient

import (
	"context"
	"fmt"
	"sync"
)

// FakeClient is a fixture-driven test double: callers register a response
// per model name, and every call is recorded for later assertion. It never
// reaches a real provider.
type FakeClient struct {
	mu        sync.Mutex
	responses map[string]ChatResult
	models    map[string]ModelMetadata
	calls     [][]Message
}

// NewFakeClient returns an empty fake with no fixtures registered.
func NewFakeClient() *FakeClient {
	return &FakeClient{
		responses: map[string]ChatResult{},
		models:    map[string]ModelMetadata{},
	}
}

// SetResponse registers the ChatResult to return for the given model.
func (f *FakeClient) SetResponse(model string, result ChatResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[model] = result
}

// SetModelInfo registers the ModelMetadata to return for the given model.
func (f *FakeClient) SetModelInfo(model string, meta ModelMetadata) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.models[model] = meta
}

// Calls returns every message list passed to Chat, in call order.
func (f *FakeClient) Calls() [][]Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]Message, len(f.calls))
	copy(out, f.calls)
	return out
}

// Chat returns the fixture registered for opts.Model, or an in-band error
// result when none was registered.
func (f *FakeClient) Chat(ctx context.Context, messages []Message, schema string, opts ChatOptions) (ChatResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, messages)
	result, ok := f.responses[opts.Model]
	if !ok {
		return ChatResult{ErrorMessage: fmt.Sprintf("llmclient: no fixture registered for model %q", opts.Model)}, nil
	}
	return result, nil
}

// ModelInfo returns the fixture registered for name, or an error when none exists.
func (f *FakeClient) ModelInfo(ctx context.Context, name string) (ModelMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	meta, ok := f.models[name]
	if !ok {
		return ModelMetadata{}, fmt.Errorf("llmclient: no model info registered for %q", name)
	}
	return meta, nil
}
