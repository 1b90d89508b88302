// Copyright 2025 James Ross
package connector

import (
	"context"
	"fmt"
	"sync"
)

// Fixture is one canned response served by TestConnector, keyed by
// resource_id.
type Fixture struct {
	Response Response
	Err      error
}

// TestConnector serves a fixed synthetic corpus and records every request
// it receives, so handler/dispatcher tests can assert on call history
// without talking to a real upstream.
type TestConnector struct {
	name string

	mu       sync.Mutex
	fixtures map[string]Fixture
	requests []Request
}

// NewTestConnector builds a connector named name with no fixtures loaded.
func NewTestConnector(name string) *TestConnector {
	return &TestConnector{name: name, fixtures: map[string]Fixture{}}
}

func (c *TestConnector) Name() string { return c.name }

// SetFixture registers the response (or error) to serve for resourceID.
func (c *TestConnector) SetFixture(resourceID string, fixture Fixture) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fixtures[resourceID] = fixture
}

// Requests returns every request Fetch has seen so far, in order.
func (c *TestConnector) Requests() []Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Request, len(c.requests))
	copy(out, c.requests)
	return out
}

func (c *TestConnector) Fetch(ctx context.Context, req Request) (Response, error) {
	c.mu.Lock()
	c.requests = append(c.requests, req)
	resourceID := req.Params["resource_id"]
	fixture, ok := c.fixtures[resourceID]
	c.mu.Unlock()

	if !ok {
		return Response{
			StatusCode:   404,
			ErrorMessage: fmt.Sprintf("no fixture registered for resource_id %q", resourceID),
		}, nil
	}
	if fixture.Err != nil {
		return Response{}, fixture.Err
	}
	return fixture.Response, nil
}
