// Package controller implements the AIMD controller: warmup pinning
// followed by additive-increase / multiplicative-decrease over the
// pacer's rate, driven by the window's error-rate/p95 signals and the
// breaker's state. Grounded on the teacher's ticker-driven
// performanceMonitor / systemHealthMonitor control loops.
package controller

import (
	"sync"
	"time"
)

// Reason classifies why currentRate changed on a given tick.
type Reason string

const (
	ReasonWarmupComplete Reason = "warmup_complete"
	ReasonIncrease       Reason = "increase"
	ReasonDecrease       Reason = "decrease"
	ReasonForced         Reason = "forced"
)

// Signals is the pair of window readings a tick acts on.
type Signals struct {
	ErrorRate float64
	P95Ms     int64
}

// RateChangeListener is invoked synchronously on every actual rate
// change. Must not block, must not call back into the Controller.
type RateChangeListener func(old, new int, reason Reason, signals Signals)

// Config carries the tunables from spec.md §6.
type Config struct {
	MinRate              int
	MaxRate              int
	InitialRate          int
	WarmupRate           int
	WarmupDuration       time.Duration
	RampInterval         time.Duration
	AdditiveStep         int
	MultiplicativeFactor float64
	ErrorThreshold       float64
	LatencyThresholdMs   int64
}

// DefaultConfig returns the spec's documented production defaults.
func DefaultConfig() Config {
	return Config{
		MinRate:              1,
		MaxRate:              100,
		InitialRate:          5,
		WarmupRate:           1,
		WarmupDuration:       60 * time.Second,
		RampInterval:         30 * time.Second,
		AdditiveStep:         1,
		MultiplicativeFactor: 0.5,
		ErrorThreshold:       0.05,
		LatencyThresholdMs:   400,
	}
}

// Controller owns currentRate and warmup state. It never touches the
// pacer directly; callers read Update's returned effective rate and push
// it into the pacer themselves, keeping the controller a pure decision
// maker over its own mutex-guarded state.
type Controller struct {
	cfg Config

	mu          sync.Mutex
	currentRate int
	startedAt   time.Time
	warmupDone  bool

	listeners []RateChangeListener
}

// New creates a Controller pinned to WarmupRate until WarmupDuration
// elapses, per spec.md §4.5.
func New(cfg Config) *Controller {
	return &Controller{
		cfg:         cfg,
		currentRate: cfg.WarmupRate,
		startedAt:   time.Now(),
	}
}

// OnRateChange registers a listener invoked on every actual rate change.
func (c *Controller) OnRateChange(l RateChangeListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

func (c *Controller) notify(old, new int, reason Reason, sig Signals) {
	if old == new {
		return
	}
	for _, l := range c.listeners {
		func() {
			defer func() { recover() }()
			l(old, new, reason, sig)
		}()
	}
}

// InWarmup reports whether the controller is still pinned to WarmupRate.
func (c *Controller) InWarmup() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.warmupDone && time.Since(c.startedAt) < c.cfg.WarmupDuration
}

// EffectiveRate returns the rate that should currently be applied to the
// pacer: WarmupRate during warmup, else currentRate. It also performs the
// warmup-complete transition exactly once, emitting ReasonWarmupComplete.
func (c *Controller) EffectiveRate() int {
	c.mu.Lock()

	if !c.warmupDone {
		if time.Since(c.startedAt) < c.cfg.WarmupDuration {
			c.mu.Unlock()
			return c.cfg.WarmupRate
		}
		old := c.currentRate
		c.warmupDone = true
		c.currentRate = c.cfg.InitialRate
		c.mu.Unlock()
		c.notify(old, c.cfg.InitialRate, ReasonWarmupComplete, Signals{})
		return c.cfg.InitialRate
	}

	rate := c.currentRate
	c.mu.Unlock()
	return rate
}

// Update runs one tick of the AIMD rule (spec.md §4.5 "Per-tick rule")
// and returns the new effective rate. It is a no-op (besides the warmup
// check) while still in warmup — per spec, the controller does not tick
// during warmup; callers should not invoke Update until InWarmup is
// false, but Update tolerates being called anyway.
func (c *Controller) Update(sig Signals) int {
	if c.InWarmup() {
		return c.EffectiveRate()
	}

	c.mu.Lock()
	old := c.currentRate
	badSignal := sig.ErrorRate > c.cfg.ErrorThreshold || sig.P95Ms > c.cfg.LatencyThresholdMs

	var newRate int
	var reason Reason
	if badSignal {
		newRate = int(float64(old) * c.cfg.MultiplicativeFactor)
		if newRate < c.cfg.MinRate {
			newRate = c.cfg.MinRate
		}
		reason = ReasonDecrease
	} else {
		// Always additive-increase on a good tick: the production
		// variant observed in the reference pack does not gate on
		// backlog (see DESIGN.md open-question decision).
		newRate = old + c.cfg.AdditiveStep
		if newRate > c.cfg.MaxRate {
			newRate = c.cfg.MaxRate
		}
		reason = ReasonIncrease
	}

	c.currentRate = newRate
	c.mu.Unlock()

	c.notify(old, newRate, reason, sig)
	return newRate
}

// SetRate forces an override, clamped to [minRate, maxRate], emitting
// ReasonForced on an actual change.
func (c *Controller) SetRate(r int) int {
	if r < c.cfg.MinRate {
		r = c.cfg.MinRate
	}
	if r > c.cfg.MaxRate {
		r = c.cfg.MaxRate
	}

	c.mu.Lock()
	old := c.currentRate
	c.currentRate = r
	c.mu.Unlock()

	c.notify(old, r, ReasonForced, Signals{})
	return r
}

// CurrentRate is a pure read of currentRate (ignoring warmup pinning).
func (c *Controller) CurrentRate() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentRate
}

// RampInterval returns the configured control-loop tick cadence.
func (c *Controller) RampInterval() time.Duration {
	return c.cfg.RampInterval
}

// EffectiveHalfOpenRate clamps rate to at most halfOpenProbeRate, per the
// breaker interlock in spec.md §4.5.
func EffectiveHalfOpenRate(currentRate, halfOpenProbeRate int) int {
	if halfOpenProbeRate < currentRate {
		return halfOpenProbeRate
	}
	return currentRate
}
