package controller

import (
	"testing"
	"time"
)

func TestWarmupPinning(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WarmupDuration = 100 * time.Millisecond
	cfg.WarmupRate = 1
	cfg.InitialRate = 5

	c := New(cfg)
	if got := c.EffectiveRate(); got != 1 {
		t.Fatalf("expected warmup rate 1, got %d", got)
	}
	if !c.InWarmup() {
		t.Fatal("expected to still be in warmup")
	}

	time.Sleep(150 * time.Millisecond)
	if c.InWarmup() {
		t.Fatal("expected warmup to have elapsed")
	}
	if got := c.EffectiveRate(); got != 5 {
		t.Fatalf("expected post-warmup rate to be initialRate=5, got %d", got)
	}
}

func TestWarmupCompleteListener(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WarmupDuration = 30 * time.Millisecond
	c := New(cfg)

	var gotReason Reason
	fired := make(chan struct{}, 1)
	c.OnRateChange(func(old, new int, reason Reason, sig Signals) {
		gotReason = reason
		fired <- struct{}{}
	})

	time.Sleep(50 * time.Millisecond)
	c.EffectiveRate()

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("expected warmup_complete listener to fire")
	}
	if gotReason != ReasonWarmupComplete {
		t.Fatalf("expected reason warmup_complete, got %s", gotReason)
	}
}

func TestAIMDMonotonicity(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WarmupDuration = 0
	c := New(cfg)
	c.EffectiveRate() // trigger warmup completion -> currentRate = InitialRate(5)

	before := c.CurrentRate()
	after := c.Update(Signals{ErrorRate: 0.2, P95Ms: 100})
	if after >= before {
		t.Fatalf("expected strict decrease on bad signal, before=%d after=%d", before, after)
	}

	before = c.CurrentRate()
	after = c.Update(Signals{ErrorRate: 0, P95Ms: 50})
	if after <= before {
		t.Fatalf("expected strict increase on good signal, before=%d after=%d", before, after)
	}
}

func TestDecreaseFloorsAndFloorsAtMinRate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WarmupDuration = 0
	cfg.MinRate = 1
	c := New(cfg)
	c.EffectiveRate()
	c.SetRate(3)

	got := c.Update(Signals{ErrorRate: 0.5, P95Ms: 1000})
	if got != 1 { // floor(3*0.5) = 1
		t.Fatalf("expected floor(3*0.5)=1, got %d", got)
	}

	got = c.Update(Signals{ErrorRate: 0.5, P95Ms: 1000})
	if got != cfg.MinRate {
		t.Fatalf("expected to clamp at minRate=%d, got %d", cfg.MinRate, got)
	}
}

func TestIncreaseCapsAtMaxRate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WarmupDuration = 0
	cfg.MaxRate = 10
	c := New(cfg)
	c.EffectiveRate()
	c.SetRate(10)

	got := c.Update(Signals{ErrorRate: 0, P95Ms: 0})
	if got != 10 {
		t.Fatalf("expected to stay clamped at maxRate=10, got %d", got)
	}
}

func TestHalfOpenProbeRateClamp(t *testing.T) {
	if got := EffectiveHalfOpenRate(50, 3); got != 3 {
		t.Fatalf("expected clamp to halfOpenProbeRate=3, got %d", got)
	}
	if got := EffectiveHalfOpenRate(2, 3); got != 2 {
		t.Fatalf("expected currentRate=2 to pass through unclamped, got %d", got)
	}
}

func TestForcedRateChangeListener(t *testing.T) {
	c := New(DefaultConfig())
	var gotReason Reason
	c.OnRateChange(func(old, new int, reason Reason, sig Signals) {
		gotReason = reason
	})
	c.SetRate(42)
	if gotReason != ReasonForced {
		t.Fatalf("expected forced reason, got %s", gotReason)
	}
}
