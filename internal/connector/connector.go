// Copyright 2025 James Ross

// Package connector defines the unified request/response contract upstream
// fetchers speak, independent of what's on the other end of the wire.
package connector

import (
	"context"
	"time"
)

// Request is the inbound side of a fetch.
type Request struct {
	URI     string
	Method  string
	Headers map[string]string
	Body    string
	Params  map[string]string
}

// Response is the outbound side of a fetch. Failures are always expressed
// in-band via StatusCode/ErrorMessage, never as an out-of-band panic or a
// surprising error return from Fetch for ordinary upstream failures.
type Response struct {
	StatusCode   int
	Payload      []byte
	Headers      map[string]string
	DurationMS   int64
	ErrorMessage string
	RetryAfter   time.Duration
}

// Succeeded reports whether the upstream call itself completed without a
// connector-level error (a non-2xx status is still "succeeded" at this
// layer; that distinction belongs to the caller's retry classification).
func (r Response) Succeeded() bool {
	return r.ErrorMessage == ""
}

// Connector is a stateless (w.r.t. the queue) upstream fetcher. It may hold
// a private rate-limit clock and an identification parameter appended to
// every request.
type Connector interface {
	Name() string
	Fetch(ctx context.Context, req Request) (Response, error)
}
