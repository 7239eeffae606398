// Package retryx implements the per-message retry scheduler: in-flight
// exponential backoff with jitter (layer a) and the rescheduled-via-store
// delay computation (layer b), generalized from the teacher's
// handleFailure (express-aware backoff) and the queue's Fail/Retry SQL
// state transitions.
package retryx

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// JitterType selects how jitter is combined with the base backoff.
type JitterType string

const (
	JitterRandom       JitterType = "random"
	JitterFull         JitterType = "full"
	JitterDecorrelated JitterType = "decorrelated"
)

// Config carries the tunables from spec.md §6.
type Config struct {
	RetryMax          int
	BackoffCapSeconds int
	BaseDelayMs       int
	JitterMs          int
	JitterType        JitterType

	// InFlightMax bounds how many consecutive in-flight attempts (layer
	// a) a single worker claim performs before yielding the rest of the
	// retry budget to the rescheduled-via-store layer (b), per spec.md
	// §4.4's "or the worker chooses to yield". Zero means "derive it",
	// see InFlightLimit.
	InFlightMax int
}

// DefaultConfig returns the spec's documented defaults.
func DefaultConfig() Config {
	return Config{
		RetryMax:          8,
		BackoffCapSeconds: 300,
		BaseDelayMs:       1000,
		JitterMs:          1000,
		JitterType:        JitterRandom,
	}
}

// InFlightLimit returns the configured InFlightMax, or half of RetryMax
// (minimum 1) when unset, so layer (b) is exercised by every caller
// without each one having to size InFlightMax by hand.
func (c Config) InFlightLimit() int {
	if c.InFlightMax > 0 {
		return c.InFlightMax
	}
	limit := c.RetryMax / 2
	if limit < 1 {
		limit = 1
	}
	return limit
}

// Backoff computes the base exponential backoff in ms for a given attempt
// number (1-indexed), capped at BackoffCapSeconds.
func (c Config) Backoff(attempt int) time.Duration {
	capSeconds := float64(c.BackoffCapSeconds)
	raw := math.Pow(2, float64(attempt))
	if raw > capSeconds {
		raw = capSeconds
	}
	return time.Duration(raw*1000) * time.Millisecond
}

// Jitter returns the delay for one in-flight retry after a non-terminal
// failure, combining backoff and jitter per the configured JitterType.
// serverRetryAfter, when non-zero, always wins (honor Retry-After).
func (c Config) Jitter(attempt int, serverRetryAfter time.Duration) time.Duration {
	if serverRetryAfter > 0 {
		return serverRetryAfter
	}

	backoff := c.Backoff(attempt)

	switch c.JitterType {
	case JitterFull:
		// Uniform in [0, backoff].
		return time.Duration(rand.Int63n(int64(backoff) + 1))
	case JitterDecorrelated:
		base := time.Duration(c.BaseDelayMs) * time.Millisecond
		capDur := time.Duration(c.BackoffCapSeconds) * time.Second
		upper := backoff * 3
		if upper > capDur {
			upper = capDur
		}
		if upper <= base {
			return base
		}
		span := int64(upper - base)
		return base + time.Duration(rand.Int63n(span+1))
	default: // JitterRandom
		jitter := time.Duration(rand.Int63n(int64(c.JitterMs)+1)) * time.Millisecond
		return backoff + jitter
	}
}

// RescheduleDelay computes earliestNextAttemptAt - now for the
// rescheduled-via-store retry layer, per spec.md §4.4(b):
// min(2^nextAttempt, cap) + uniform[0,1) seconds. nextAttempt is the
// attempt number the reschedule is sizing the delay for (completed
// attempts + 1), used only to scale the backoff; the persisted attempt
// counter itself stays the completed-attempts count.
func (c Config) RescheduleDelay(nextAttempt int) time.Duration {
	capSeconds := float64(c.BackoffCapSeconds)
	raw := math.Pow(2, float64(nextAttempt))
	if raw > capSeconds {
		raw = capSeconds
	}
	raw += rand.Float64()
	return time.Duration(raw * float64(time.Second))
}

// ShouldDeadLetter reports whether an item that has already completed
// attempts sends (across both retry layers, via the unified counter)
// has exhausted its retry budget.
func (c Config) ShouldDeadLetter(attempts int) bool {
	return attempts >= c.RetryMax
}

// Result is returned by Execute.
type Result struct {
	Success  bool
	Err      error
	Attempts int
}

// Execute is the standalone execute(fn) helper from spec.md §4.4: it
// invokes fn up to maxAttempts times with the configured backoff/jitter
// delays between attempts, and reports the final outcome. fn returns nil
// on success, or a non-nil retriable error to keep retrying.
func Execute(ctx context.Context, cfg Config, maxAttempts int, fn func(ctx context.Context, attempt int) error) Result {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = fn(ctx, attempt)
		if lastErr == nil {
			return Result{Success: true, Attempts: attempt}
		}

		if attempt == maxAttempts {
			break
		}

		delay := cfg.Jitter(attempt, 0)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Result{Success: false, Err: ctx.Err(), Attempts: attempt}
		case <-timer.C:
		}
	}
	return Result{Success: false, Err: lastErr, Attempts: maxAttempts}
}
