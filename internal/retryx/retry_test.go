package retryx

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestServerRetryAfterWins(t *testing.T) {
	cfg := DefaultConfig()
	got := cfg.Jitter(3, 1500*time.Millisecond)
	if got != 1500*time.Millisecond {
		t.Fatalf("expected server retry-after to win, got %v", got)
	}
}

func TestBackoffCap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BackoffCapSeconds = 10
	got := cfg.Backoff(20) // 2^20 seconds, way over cap
	if got != 10*time.Second {
		t.Fatalf("expected backoff capped at 10s, got %v", got)
	}
}

func TestDecorrelatedJitterRange(t *testing.T) {
	cfg := Config{
		RetryMax:          8,
		BackoffCapSeconds: 3,
		BaseDelayMs:       100,
		JitterMs:          1000,
		JitterType:        JitterDecorrelated,
	}

	minSeen := time.Hour
	maxSeen := time.Duration(0)
	seenDistinct := map[time.Duration]bool{}
	for i := 0; i < 10000; i++ {
		d := cfg.Jitter(5, 0)
		if d < minSeen {
			minSeen = d
		}
		if d > maxSeen {
			maxSeen = d
		}
		seenDistinct[d] = true
	}

	if minSeen < 100*time.Millisecond {
		t.Fatalf("decorrelated jitter below base delay: %v", minSeen)
	}
	if maxSeen > 3*time.Second {
		t.Fatalf("decorrelated jitter above cap: %v", maxSeen)
	}
	if len(seenDistinct) < 10 {
		t.Fatalf("expected a spread of distinct delays, got only %d distinct values", len(seenDistinct))
	}
}

func TestRescheduleDeadLetterThreshold(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.ShouldDeadLetter(cfg.RetryMax) != true {
		t.Fatal("expected completed attempts == retryMax to move to DLQ")
	}
	if cfg.ShouldDeadLetter(cfg.RetryMax-1) != false {
		t.Fatal("expected completed attempts < retryMax to not move to DLQ")
	}
}

func TestInFlightLimitDerivesFromRetryMax(t *testing.T) {
	cfg := Config{RetryMax: 8}
	if got := cfg.InFlightLimit(); got != 4 {
		t.Fatalf("expected derived in-flight limit of 4 (half of 8), got %d", got)
	}

	cfg = Config{RetryMax: 1}
	if got := cfg.InFlightLimit(); got != 1 {
		t.Fatalf("expected derived in-flight limit to floor at 1, got %d", got)
	}

	cfg = Config{RetryMax: 20, InFlightMax: 3}
	if got := cfg.InFlightLimit(); got != 3 {
		t.Fatalf("expected explicit InFlightMax to win, got %d", got)
	}
}

func TestExecuteRetriesUntilSuccess(t *testing.T) {
	cfg := Config{RetryMax: 8, BackoffCapSeconds: 1, BaseDelayMs: 1, JitterMs: 1, JitterType: JitterFull}
	calls := 0
	res := Execute(context.Background(), cfg, 3, func(ctx context.Context, attempt int) error {
		calls++
		if attempt < 2 {
			return errors.New("not yet")
		}
		return nil
	})
	if !res.Success {
		t.Fatalf("expected eventual success, got %+v", res)
	}
	if res.Attempts != 2 {
		t.Fatalf("expected success on attempt 2, got %d (calls=%d)", res.Attempts, calls)
	}
}

func TestExecuteReportsFailureAfterMaxAttempts(t *testing.T) {
	cfg := Config{RetryMax: 8, BackoffCapSeconds: 1, BaseDelayMs: 1, JitterMs: 1, JitterType: JitterFull}
	res := Execute(context.Background(), cfg, 3, func(ctx context.Context, attempt int) error {
		return errors.New("permanent")
	})
	if res.Success {
		t.Fatal("expected failure")
	}
	if res.Attempts != 3 {
		t.Fatalf("expected exactly maxAttempts=3 attempts, got %d", res.Attempts)
	}
}
