// Copyright 2025 James Ross
package connector

import (
	"sync"
	"time"
)

// BreakerState is one of the three circuit states.
type BreakerState int

const (
	Closed BreakerState = iota
	HalfOpen
	Open
)

type breakerResult struct {
	t  time.Time
	ok bool
}

// CircuitBreaker guards a connector against a sustained run of upstream
// failures: once the failure rate over a sliding window crosses
// failureThresh, it opens and rejects calls until cooldown elapses, then
// lets exactly one probe through before fully closing or reopening.
type CircuitBreaker struct {
	mu               sync.Mutex
	state            BreakerState
	window           time.Duration
	cooldown         time.Duration
	failureThresh    float64
	minSamples       int
	lastTransition   time.Time
	results          []breakerResult
	halfOpenInFlight bool
}

// NewCircuitBreaker builds a breaker over a sliding window.
func NewCircuitBreaker(window, cooldown time.Duration, failureThresh float64, minSamples int) *CircuitBreaker {
	return &CircuitBreaker{
		state:          Closed,
		window:         window,
		cooldown:       cooldown,
		failureThresh:  failureThresh,
		minSamples:     minSamples,
		lastTransition: time.Now(),
	}
}

// State reports the current breaker state.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Allow reports whether a call may proceed, transitioning Open->HalfOpen
// after cooldown and admitting exactly one in-flight probe per HalfOpen period.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch cb.state {
	case Open:
		if time.Since(cb.lastTransition) >= cb.cooldown {
			cb.state = HalfOpen
			cb.lastTransition = time.Now()
			cb.halfOpenInFlight = true
			return true
		}
		return false
	case HalfOpen:
		if cb.halfOpenInFlight {
			return false
		}
		cb.halfOpenInFlight = true
		return true
	default:
		return true
	}
}

// Record reports the outcome of a call admitted by Allow.
func (cb *CircuitBreaker) Record(ok bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	now := time.Now()

	cutoff := now.Add(-cb.window)
	filtered := cb.results[:0]
	for _, r := range cb.results {
		if r.t.After(cutoff) {
			filtered = append(filtered, r)
		}
	}
	cb.results = append(filtered, breakerResult{t: now, ok: ok})

	total := len(cb.results)
	if total < cb.minSamples {
		if cb.state == HalfOpen {
			if ok {
				cb.state = Closed
			} else {
				cb.state = Open
			}
			cb.lastTransition = now
			cb.halfOpenInFlight = false
		}
		return
	}

	fails := 0
	for _, r := range cb.results {
		if !r.ok {
			fails++
		}
	}
	failureRate := float64(fails) / float64(total)

	switch cb.state {
	case Closed:
		if failureRate >= cb.failureThresh {
			cb.state = Open
			cb.lastTransition = now
		}
	case HalfOpen:
		if ok {
			cb.state = Closed
		} else {
			cb.state = Open
		}
		cb.halfOpenInFlight = false
		cb.lastTransition = now
	case Open:
		// resolved in Allow
	}
}
