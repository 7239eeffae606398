package breaker

import (
	"testing"
	"time"
)

func TestClosedTripsToOpenAtThreshold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FailureThreshold = 3
	b := New(cfg)

	for i := 0; i < 2; i++ {
		b.OnFailure()
		if b.State() != Closed {
			t.Fatalf("expected still closed after %d failures", i+1)
		}
	}
	b.OnFailure()
	if b.State() != Open {
		t.Fatal("expected open after reaching failureThreshold")
	}
}

func TestSuccessResetsConsecutiveFailures(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FailureThreshold = 3
	b := New(cfg)

	b.OnFailure()
	b.OnFailure()
	b.OnSuccess()
	b.OnFailure()
	b.OnFailure()
	if b.State() != Closed {
		t.Fatal("expected success to reset the counter, preventing premature trip")
	}
}

func TestOpenBlocksUntilTimerExpires(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FailureThreshold = 1
	cfg.OpenDuration = 50 * time.Millisecond
	b := New(cfg)

	b.OnFailure()
	if !b.ShouldBlock() {
		t.Fatal("expected open breaker to block immediately")
	}

	time.Sleep(80 * time.Millisecond)
	if b.ShouldBlock() {
		t.Fatal("expected open timer to have expired, transitioning to half-open")
	}
	if b.State() != HalfOpen {
		t.Fatalf("expected half-open after timer expiry, got %s", b.State())
	}
}

func TestHalfOpenFailureReopens(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FailureThreshold = 1
	cfg.OpenDuration = 10 * time.Millisecond
	b := New(cfg)

	b.OnFailure()
	time.Sleep(30 * time.Millisecond)
	b.ShouldBlock() // advances Open -> HalfOpen

	b.OnFailure()
	if b.State() != Open {
		t.Fatalf("expected half-open failure to reopen, got %s", b.State())
	}
}

func TestHalfOpenSuccessClosesAfterUntil(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FailureThreshold = 1
	cfg.OpenDuration = 10 * time.Millisecond
	cfg.HalfOpenDuration = 10 * time.Millisecond
	b := New(cfg)

	b.OnFailure()
	time.Sleep(20 * time.Millisecond)
	b.ShouldBlock() // Open -> HalfOpen, until = now+10ms

	time.Sleep(20 * time.Millisecond) // now > until
	b.OnSuccess()
	if b.State() != Closed {
		t.Fatalf("expected half-open success after until to close, got %s", b.State())
	}
}

func TestFullLifecycleListenerSequence(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FailureThreshold = 1
	cfg.OpenDuration = 10 * time.Millisecond
	cfg.HalfOpenDuration = 10 * time.Millisecond
	b := New(cfg)

	var seq []State
	b.OnStateChange(func(from, to State) {
		seq = append(seq, to)
	})

	b.OnFailure() // Closed -> Open
	time.Sleep(20 * time.Millisecond)
	b.ShouldBlock() // Open -> HalfOpen
	time.Sleep(20 * time.Millisecond)
	b.OnSuccess() // HalfOpen -> Closed

	want := []State{Open, HalfOpen, Closed}
	if len(seq) != len(want) {
		t.Fatalf("expected sequence %v, got %v", want, seq)
	}
	for i := range want {
		if seq[i] != want[i] {
			t.Fatalf("expected sequence %v, got %v", want, seq)
		}
	}
}

func TestListenerReentrancyDoesNotDeadlock(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FailureThreshold = 1
	b := New(cfg)

	done := make(chan struct{})
	b.OnStateChange(func(from, to State) {
		// Contract forbids this; verify it doesn't hang the caller even
		// if a misbehaving listener calls back into the breaker, since
		// listeners run after the mutex is released.
		_ = b.State()
		close(done)
	})

	go b.OnFailure()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("listener call appears to have deadlocked the breaker")
	}
}
