// Copyright 2025 James Ross

// Package llmclient defines the contract a handler uses to call an LLM
// provider. Only a fake/test implementation ships here — the real chat
// endpoint is an external collaborator.
package llmclient

import "context"

// Message is one turn of a chat-style prompt.
type Message struct {
	Role    string
	Content string
}

// ChatOptions tunes a single Chat call.
type ChatOptions struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// ChatResult is the provider-independent shape of a completion.
type ChatResult struct {
	Content          string
	RawResponse      string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	Done             bool
	ErrorMessage     string
}

// Succeeded reports whether the call completed without a provider-level error.
func (r ChatResult) Succeeded() bool {
	return r.ErrorMessage == ""
}

// ModelMetadata describes the model used for a run, captured into
// Run.MetricsJSON for reproducibility.
type ModelMetadata struct {
	Name          string
	Digest        string
	Family        string
	ParameterSize string
	Quantization  string
}

// Client is the narrow interface handlers invoke to reach an LLM provider.
type Client interface {
	Chat(ctx context.Context, messages []Message, schema string, opts ChatOptions) (ChatResult, error)
	ModelInfo(ctx context.Context, name string) (ModelMetadata, error)
}
