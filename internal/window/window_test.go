package window

import (
	"testing"
	"time"
)

func TestEmptyWindowReturnsZero(t *testing.T) {
	w := New(30 * time.Second)
	snap := w.Snapshot()
	if snap.Count != 0 || snap.ErrorRate != 0 || snap.P95Ms != 0 || snap.AvgMs != 0 || snap.ThroughputS != 0 {
		t.Fatalf("expected all-zero snapshot for empty window, got %+v", snap)
	}
}

func TestErrorRateHonesty(t *testing.T) {
	w := New(30 * time.Second)
	for i := 0; i < 7; i++ {
		w.Record(10*time.Millisecond, true)
	}
	for i := 0; i < 3; i++ {
		w.Record(10*time.Millisecond, false)
	}
	if got := w.ErrorRate(); got != 0.3 {
		t.Fatalf("expected errorRate 0.3, got %f", got)
	}
}

func TestPercentileFloorIndex(t *testing.T) {
	w := New(30 * time.Second)
	// Latencies 10..100 in steps of 10, n=10.
	for ms := 10; ms <= 100; ms += 10 {
		w.Record(time.Duration(ms)*time.Millisecond, true)
	}
	// floor(10*0.95)=9 -> sorted[9] = 100
	if got := w.P95(); got != 100 {
		t.Fatalf("expected p95=100 (floor(n*p) index), got %d", got)
	}
	// floor(10*0.5)=5 -> sorted[5] = 60
	if got := w.Median(); got != 60 {
		t.Fatalf("expected median=60, got %d", got)
	}
}

func TestEvictionExpiresOldPoints(t *testing.T) {
	w := New(50 * time.Millisecond)
	w.Record(5*time.Millisecond, true)
	if w.Count() != 1 {
		t.Fatalf("expected 1 point before expiry")
	}
	time.Sleep(80 * time.Millisecond)
	if w.Count() != 0 {
		t.Fatalf("expected points to be evicted after windowDuration elapsed")
	}
}

func TestIdempotentReads(t *testing.T) {
	w := New(30 * time.Second)
	w.Record(20*time.Millisecond, true)
	w.Record(40*time.Millisecond, false)

	a := w.Snapshot()
	b := w.Snapshot()
	if a != b {
		t.Fatalf("expected repeated reads without writes to be identical, got %+v vs %+v", a, b)
	}
}

func TestLifetimeCountersNeverEvicted(t *testing.T) {
	w := New(10 * time.Millisecond)
	w.Record(1*time.Millisecond, true)
	w.Record(1*time.Millisecond, false)
	time.Sleep(30 * time.Millisecond)
	snap := w.Snapshot()
	if snap.Count != 0 {
		t.Fatalf("expected windowed count to be evicted, got %d", snap.Count)
	}
	if snap.Total != 2 || snap.TotalSuccess != 1 {
		t.Fatalf("expected lifetime counters to survive eviction, got total=%d totalSuccess=%d", snap.Total, snap.TotalSuccess)
	}
}
