package pacer

import (
	"testing"
	"time"
)

func TestAcquireConsumesToken(t *testing.T) {
	p := New(10, 1)
	before := p.AvailableTokens()
	if !p.TryAcquire() {
		t.Fatal("expected token to be available")
	}
	after := p.AvailableTokens()
	if after != before-1 {
		t.Fatalf("expected tokens to drop by 1, got before=%d after=%d", before, after)
	}
}

func TestTryAcquireFailsWhenEmpty(t *testing.T) {
	p := New(1, 1)
	if !p.TryAcquire() {
		t.Fatal("expected first acquire to succeed")
	}
	if p.TryAcquire() {
		t.Fatal("expected second immediate acquire to fail, bucket should be empty")
	}
}

func TestSetRateDoesNotBurstOnDecrease(t *testing.T) {
	p := New(100, 1)
	// Let the bucket fill near capacity.
	time.Sleep(20 * time.Millisecond)
	p.AvailableTokens() // force a refill

	p.SetRate(5)
	if tok := p.AvailableTokens(); tok > 5 {
		t.Fatalf("expected tokens clamped to new capacity 5, got %d", tok)
	}
}

func TestSetRateNeverZero(t *testing.T) {
	p := New(10, 2)
	p.SetRate(0)
	if p.Rate() < 2 {
		t.Fatalf("expected rate clamped to minRate=2, got %f", p.Rate())
	}
}

func TestAcquireBlocksUntilTokenAvailable(t *testing.T) {
	p := New(1, 1)
	if !p.TryAcquire() {
		t.Fatal("expected first acquire to succeed")
	}

	start := time.Now()
	done := make(chan struct{})
	ok := make(chan bool, 1)
	go func() {
		ok <- p.Acquire(done)
	}()

	select {
	case got := <-ok:
		if !got {
			t.Fatal("expected Acquire to succeed")
		}
		if elapsed := time.Since(start); elapsed < 500*time.Millisecond {
			t.Fatalf("expected Acquire to wait roughly 1s for refill, took %v", elapsed)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Acquire did not return within 2s")
	}
}

func TestRateSafetyOverInterval(t *testing.T) {
	rate := 20.0
	p := New(rate, 1)
	done := make(chan struct{})
	defer close(done)

	start := time.Now()
	attempts := 0
	deadline := start.Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if p.Acquire(done) {
			attempts++
		}
	}
	elapsed := time.Since(start).Seconds()
	maxAllowed := elapsed*rate + rate + 1 // + capacity burst slack
	if float64(attempts) > maxAllowed {
		t.Fatalf("rate safety violated: %d attempts in %.3fs, max allowed %.1f", attempts, elapsed, maxAllowed)
	}
}
