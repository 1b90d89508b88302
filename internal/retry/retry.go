// Copyright 2025 James Ross

// Package retry wraps github.com/cenkalti/backoff/v4 behind the spec's
// exact contract: CalculateDelay(attempt, config) and
// Do(op, config, retryOn) -> {success, result, attempts, error, error_history}.
package retry

import (
	"context"
	"math/rand"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Config mirrors the reference RetryConfig.
type Config struct {
	MaxAttempts       int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	Jitter            bool
}

// DefaultConfig matches the reference defaults (250ms initial, 1s cap,
// multiplier 2, jitter on).
func DefaultConfig() Config {
	return Config{
		MaxAttempts:       3,
		InitialDelay:      250 * time.Millisecond,
		MaxDelay:          time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            true,
	}
}

func (c Config) toExponentialBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.InitialDelay
	b.MaxInterval = c.MaxDelay
	b.Multiplier = c.BackoffMultiplier
	if c.Jitter {
		// RandomizationFactor of 0.25 spreads backoff.Retry's delay over
		// base * [0.75, 1.25], matching the required jitter band.
		b.RandomizationFactor = 0.25
	} else {
		b.RandomizationFactor = 0
	}
	b.MaxElapsedTime = 0 // bounded externally by MaxAttempts, not wall clock
	return b
}

// CalculateDelay returns the backoff delay for the given 1-indexed attempt.
// When cfg.Jitter is set it applies a fresh ±25% random draw per call,
// matching the reference's jitter_factor = 0.75 + rand()*0.5.
func CalculateDelay(attempt int, cfg Config) time.Duration {
	b := cfg.toExponentialBackOff()
	b.RandomizationFactor = 0
	delay := b.InitialInterval
	for i := 1; i < attempt; i++ {
		next := time.Duration(float64(delay) * b.Multiplier)
		if next > b.MaxInterval {
			next = b.MaxInterval
		}
		delay = next
	}
	if delay > b.MaxInterval {
		delay = b.MaxInterval
	}
	if cfg.Jitter {
		jitterFactor := 0.75 + rand.Float64()*0.5
		delay = time.Duration(float64(delay) * jitterFactor)
	}
	return delay
}

// Result is the outcome of Do, mirroring the reference RetryResult.
type Result struct {
	Success      bool
	Result       interface{}
	Attempts     int
	Err          error
	ErrorHistory []error
}

// Operation is a unit of work that may fail and be retried.
type Operation func(ctx context.Context) (interface{}, error)

// RetryClassifier decides whether an error returned by Operation should be
// retried. A nil classifier retries every error.
type RetryClassifier func(err error) bool

// Do invokes op, retrying retryable errors with exponential backoff and
// jitter up to cfg.MaxAttempts. Non-retryable errors terminate immediately.
func Do(ctx context.Context, op Operation, cfg Config, retryOn RetryClassifier) Result {
	if retryOn == nil {
		retryOn = func(error) bool { return true }
	}

	result := Result{}
	attempt := 0

	maxRetries := cfg.MaxAttempts - 1
	if maxRetries < 0 {
		maxRetries = 0
	}
	boff := backoff.WithContext(backoff.WithMaxRetries(cfg.toExponentialBackOff(), uint64(maxRetries)), ctx)

	wrapped := func() error {
		attempt++
		value, err := op(ctx)
		if err == nil {
			result.Result = value
			return nil
		}
		result.ErrorHistory = append(result.ErrorHistory, err)
		if !retryOn(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	err := backoff.Retry(wrapped, boff)
	result.Attempts = attempt
	if err == nil {
		result.Success = true
		return result
	}

	if perm, ok := err.(*backoff.PermanentError); ok {
		result.Err = perm.Err
	} else {
		result.Err = err
	}
	result.Success = false
	return result
}
