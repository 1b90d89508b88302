// Copyright 2025 James Ross
package connector

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTestConnectorServesFixtureAndRecordsHistory(t *testing.T) {
	c := NewTestConnector("wiki-fixture")
	c.SetFixture("42", Fixture{Response: Response{StatusCode: 200, Payload: []byte(`{"title":"answer"}`)}})

	resp, err := c.Fetch(context.Background(), Request{URI: "/page/42", Params: map[string]string{"resource_id": "42"}})
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.True(t, resp.Succeeded())

	history := c.Requests()
	require.Len(t, history, 1)
	assert.Equal(t, "/page/42", history[0].URI)
}

func TestTestConnectorMissingFixtureIsInBandError(t *testing.T) {
	c := NewTestConnector("wiki-fixture")
	resp, err := c.Fetch(context.Background(), Request{Params: map[string]string{"resource_id": "missing"}})
	require.NoError(t, err, "connector failures are expressed in-band, never as a Go error")
	assert.False(t, resp.Succeeded())
	assert.Equal(t, 404, resp.StatusCode)
}

func TestTestConnectorInjectedError(t *testing.T) {
	c := NewTestConnector("wiki-fixture")
	injected := assert.AnError
	c.SetFixture("1", Fixture{Err: injected})
	_, err := c.Fetch(context.Background(), Request{Params: map[string]string{"resource_id": "1"}})
	assert.ErrorIs(t, err, injected)
}

func TestRateLimiterDisabledWhenNonPositive(t *testing.T) {
	rl := NewRateLimiter(0)
	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	assert.NoError(t, rl.Wait(ctx))
}

func TestCircuitBreakerOpensAfterFailureRateThreshold(t *testing.T) {
	cb := NewCircuitBreaker(time.Minute, 50*time.Millisecond, 0.5, 4)
	for i := 0; i < 4; i++ {
		assert.True(t, cb.Allow())
		cb.Record(false)
	}
	assert.Equal(t, Open, cb.State())
	assert.False(t, cb.Allow())
}

func TestCircuitBreakerHalfOpenAdmitsSingleProbe(t *testing.T) {
	cb := NewCircuitBreaker(time.Minute, 10*time.Millisecond, 0.5, 2)
	cb.Record(false)
	cb.Record(false)
	require.Equal(t, Open, cb.State())

	time.Sleep(15 * time.Millisecond)
	assert.True(t, cb.Allow(), "cooldown elapsed, one probe should be admitted")
	assert.False(t, cb.Allow(), "a second concurrent probe must be rejected")

	cb.Record(true)
	assert.Equal(t, Closed, cb.State())
}

func TestExtractFieldJSONPath(t *testing.T) {
	payload := []byte(`{"continue":{"cmcontinue":"page|123"},"query":{"pages":[]}}`)
	v, err := ExtractField(payload, "$.continue.cmcontinue")
	require.NoError(t, err)
	assert.Equal(t, "page|123", v)
}
