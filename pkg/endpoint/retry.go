// Copyright 2025 LLMFinder Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package endpoint

// This file implements the bounded retry policy used for probe and
// embedding requests.
//
// Features:
//   - Exponential backoff: Wait time grows by Multiplier after each attempt
//   - Jitter: Random ±25% variation to prevent thundering herd
//   - Context-aware: Respects context cancellation and the per-prompt deadline
//   - Transient-only: permanent failures (4xx, malformed replies) fail fast
//
// Usage:
//
//	attempts, err := endpoint.Do(ctx, endpoint.DefaultRetryPolicy(), func(ctx context.Context) error {
//	    text, err = client.Complete(ctx, prompt)
//	    return err
//	})

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// RetryPolicy defines retry behavior for endpoint operations.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts including the first one.
	// Values below 1 are treated as 1.
	MaxAttempts int `koanf:"max_attempts" yaml:"max_attempts" validate:"gte=0,lte=20"`

	// InitialWait is the wait time before the first retry.
	InitialWait time.Duration `koanf:"initial_wait" yaml:"initial_wait" validate:"gte=0"`

	// MaxWait caps the wait time between retries. Zero means uncapped.
	MaxWait time.Duration `koanf:"max_wait" yaml:"max_wait" validate:"gte=0"`

	// Multiplier for exponential backoff (must be >= 1.0).
	Multiplier float64 `koanf:"multiplier" yaml:"multiplier"`

	// Jitter adds up to ±25% randomness to each wait.
	Jitter bool `koanf:"jitter" yaml:"jitter"`
}

// DefaultRetryPolicy returns the default policy: three attempts with
// exponential backoff and jitter.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		InitialWait: 500 * time.Millisecond,
		MaxWait:     10 * time.Second,
		Multiplier:  2.0,
		Jitter:      true,
	}
}

// NoRetry returns a policy that performs exactly one attempt.
func NoRetry() RetryPolicy {
	return RetryPolicy{MaxAttempts: 1, Multiplier: 1}
}

// Validate checks if the retry policy is valid.
func (p RetryPolicy) Validate() error {
	if p.MaxAttempts < 0 {
		return fmt.Errorf("MaxAttempts must be >= 0, got %d", p.MaxAttempts)
	}
	if p.MaxAttempts <= 1 {
		return nil
	}
	if p.InitialWait < 0 {
		return fmt.Errorf("InitialWait must be >= 0, got %v", p.InitialWait)
	}
	if p.MaxWait < 0 {
		return fmt.Errorf("MaxWait must be >= 0, got %v", p.MaxWait)
	}
	if p.Multiplier < 1.0 {
		return fmt.Errorf("multiplier must be >= 1.0, got %f", p.Multiplier)
	}
	if p.MaxWait > 0 && p.InitialWait > p.MaxWait {
		return fmt.Errorf("InitialWait (%v) must be <= MaxWait (%v)", p.InitialWait, p.MaxWait)
	}
	return nil
}

// wait computes the backoff before retry number n (1-based).
func (p RetryPolicy) wait(n int) time.Duration {
	if n <= 0 {
		return 0
	}

	w := float64(p.InitialWait) * math.Pow(p.Multiplier, float64(n-1))
	if p.MaxWait > 0 && w > float64(p.MaxWait) {
		w = float64(p.MaxWait)
	}
	if p.Jitter {
		jitterRange := w * 0.25
		w += (rand.Float64() * 2 * jitterRange) - jitterRange
	}
	if w < 0 {
		w = 0
	}
	return time.Duration(w)
}

// Do runs fn until it succeeds, returns a non-transient error, the policy is
// exhausted or ctx is done. It reports how many attempts were made.
func Do(ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) error) (int, error) {
	if err := policy.Validate(); err != nil {
		return 0, fmt.Errorf("invalid retry policy: %w", err)
	}
	maxAttempts := max(policy.MaxAttempts, 1)

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return attempt - 1, fmt.Errorf("%w (last error: %v)", err, lastErr)
			}
			return attempt - 1, err
		}

		err := fn(ctx)
		if err == nil {
			return attempt, nil
		}
		lastErr = err

		if !IsTransient(err) {
			return attempt, err
		}
		if attempt == maxAttempts {
			break
		}

		timer := time.NewTimer(policy.wait(attempt))
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return attempt, fmt.Errorf("%w (last error: %v)", ctx.Err(), lastErr)
		}
	}

	return maxAttempts, fmt.Errorf("max attempts (%d) exceeded: %w", maxAttempts, lastErr)
}
