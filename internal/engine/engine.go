// Package engine composes the pacer, window, breaker, controller, retry
// scheduler, work-store, and transport into the dispatcher's main loop,
// grounded on the teacher's internal/worker/enhanced_worker.go
// (Start/Stop, wg sync.WaitGroup, context-cancellation shutdown) and
// internal/worker/pool.go (bounded worker pool over a shared queue).
package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"throttlepipe/internal/breaker"
	"throttlepipe/internal/controller"
	"throttlepipe/internal/notify"
	"throttlepipe/internal/observability"
	"throttlepipe/internal/pacer"
	"throttlepipe/internal/retryx"
	"throttlepipe/internal/window"
)

// breakerBlockSleep is the spin interval while a task waits for the
// breaker to stop blocking, per spec.md §9's documented 50ms figure.
const breakerBlockSleep = 50 * time.Millisecond

// Config carries the dispatcher tunables from spec.md §6.
type Config struct {
	BatchSize       int
	Concurrency     int
	IdleSleep       time.Duration
	StatsInterval   time.Duration
	SendTimeout     time.Duration
	ExitWhenDrained bool // demo/test mode: Run returns once all items are terminal
}

// DefaultConfig returns the spec's documented defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:       200,
		Concurrency:     6,
		IdleSleep:       300 * time.Millisecond,
		StatsInterval:   10 * time.Second,
		SendTimeout:     10 * time.Second,
		ExitWhenDrained: false,
	}
}

// Stats is the periodic observability snapshot from spec.md §6.
type Stats struct {
	QueueDepth       int
	RatePerSec       float64
	P95LatencyMs     int64
	ErrorRatePercent float64
	BreakerState     string
	SentTotal        int64
	FailedTotal      int64
	DeadLetteredTotal int64
}

// Engine is the single explicit aggregate owning every piece of mutable
// control state; there is no process-global, per the design notes.
type Engine struct {
	cfg      Config
	store    Store
	sender   Sender
	pacer    *pacer.Pacer
	window   *window.Window
	breaker  *breaker.Breaker
	ctrl     *controller.Controller
	retryCfg retryx.Config
	logger   *zap.Logger
	metrics  *observability.Metrics // nil-safe: every use is guarded
	notifier *notify.Notifier       // nil-safe: optional wake-up side channel

	halfOpenSem chan struct{}
	wake        chan struct{}

	sem sync.WaitGroup // tracks in-flight worker goroutines so Run can wait for them
	slots chan struct{} // bounds in-flight worker goroutines by Concurrency

	sentTotal        int64
	failedTotal      int64
	deadLetteredTotal int64

	stopped chan struct{}
}

// New wires the given components into an Engine. All dependencies are
// constructed by the caller (cmd/dispatcher), keeping Engine itself free
// of any knowledge of which concrete store/transport is in use.
func New(
	cfg Config,
	store Store,
	sender Sender,
	p *pacer.Pacer,
	w *window.Window,
	b *breaker.Breaker,
	ctrl *controller.Controller,
	retryCfg retryx.Config,
	logger *zap.Logger,
	metrics *observability.Metrics,
	notifier *notify.Notifier,
) *Engine {
	halfOpenRate := b.HalfOpenProbeRate()
	if halfOpenRate < 1 {
		halfOpenRate = 1
	}

	e := &Engine{
		cfg:         cfg,
		store:       store,
		sender:      sender,
		pacer:       p,
		window:      w,
		breaker:     b,
		ctrl:        ctrl,
		retryCfg:    retryCfg,
		logger:      logger,
		metrics:     metrics,
		notifier:    notifier,
		halfOpenSem: make(chan struct{}, halfOpenRate),
		wake:        make(chan struct{}, 1),
		slots:       make(chan struct{}, cfg.Concurrency),
		stopped:     make(chan struct{}),
	}

	if notifier != nil {
		if _, err := notifier.Subscribe(e.signalWake); err != nil {
			logger.Warn("failed to subscribe to work-available notifications", zap.Error(err))
		}
	}

	b.OnStateChange(func(from, to breaker.State) {
		logger.Info("breaker state change", zap.String("from", from.String()), zap.String("to", to.String()))
		if metrics != nil && to == breaker.Open {
			metrics.BreakerOpenTotal.Inc()
		}
	})
	ctrl.OnRateChange(func(old, new int, reason controller.Reason, sig controller.Signals) {
		logger.Debug("rate change", zap.Int("old", old), zap.Int("new", new), zap.String("reason", string(reason)))
	})

	return e
}

func (e *Engine) signalWake() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// Run executes the dispatcher's main loop (spec.md §4.6) until ctx is
// cancelled or, in ExitWhenDrained mode, every item reaches a terminal
// state. It also starts the AIMD controller tick loop and the periodic
// stats emitter, and stops both on return.
func (e *Engine) Run(ctx context.Context) error {
	var bg sync.WaitGroup

	bg.Add(2)
	go func() { defer bg.Done(); e.controlLoop(ctx) }()
	go func() { defer bg.Done(); e.statsLoop(ctx) }()

	err := e.dispatchLoop(ctx)

	e.sem.Wait() // allow in-flight worker tasks to complete (no hard abort)
	bg.Wait()
	close(e.stopped)
	return err
}

func (e *Engine) dispatchLoop(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		items, err := e.store.Claim(ctx, e.cfg.BatchSize)
		if err != nil {
			e.logger.Error("claim failed", zap.Error(err))
			if !e.sleepOrWake(ctx, e.cfg.IdleSleep) {
				return nil
			}
			continue
		}

		if len(items) == 0 {
			if e.cfg.ExitWhenDrained {
				done, err := e.store.AllTerminal(ctx)
				if err != nil {
					e.logger.Error("all-terminal check failed", zap.Error(err))
				} else if done {
					return nil
				}
			}
			if !e.sleepOrWake(ctx, e.cfg.IdleSleep) {
				return nil
			}
			continue
		}

		for _, item := range items {
			item := item
			select {
			case e.slots <- struct{}{}:
			case <-ctx.Done():
				return nil
			}
			e.sem.Add(1)
			go func() {
				defer e.sem.Done()
				defer func() { <-e.slots }()
				e.processItem(ctx, item)
			}()
		}
	}
}

func (e *Engine) sleepOrWake(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	case <-e.wake:
		return true
	}
}

// processItem runs the strict per-worker sequence from spec.md §5:
// breaker check -> pacer acquire -> send -> outcome recording -> breaker
// update -> finalize, looping as the in-flight retry layer (a) until the
// outcome is terminal, the claim's in-flight budget (retryCfg.
// InFlightLimit) is used up, or ctx is cancelled. Once that budget is
// used up the worker yields the remaining retry budget to the
// rescheduled-via-store layer (b) rather than spinning on the same
// claim for the item's whole RetryMax.
func (e *Engine) processItem(ctx context.Context, item *WorkItem) {
	for {
		if ctx.Err() != nil {
			return
		}

		probing, ok := e.awaitBreaker(ctx)
		if !ok {
			return
		}

		if !e.pacer.Acquire(ctx.Done()) {
			if probing {
				<-e.halfOpenSem
			}
			return
		}

		sendCtx, cancelSend := e.sendCtx(ctx)
		outcome := e.sender.Send(sendCtx, item.Payload)
		cancelSend()

		if probing {
			<-e.halfOpenSem
		}

		e.window.Record(outcome.Latency, outcome.Kind == OutcomeSuccess)
		if outcome.Kind == OutcomeSuccess {
			e.breaker.OnSuccess()
		} else {
			e.breaker.OnFailure()
		}
		e.recordMetrics(outcome)

		item.Attempts++

		if outcome.Kind == OutcomeSuccess {
			e.finalizeSuccess(ctx, item)
			return
		}

		if !outcome.Retriable() {
			e.finalizeDeadLetter(ctx, item, outcome)
			return
		}

		if item.Attempts >= e.retryCfg.InFlightLimit() {
			e.finalizeRescheduleOrDLQ(ctx, item, outcome)
			return
		}

		delay := e.retryCfg.Jitter(item.Attempts, outcome.RetryAfter)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// awaitBreaker spins on ShouldBlock per spec.md §4.6, additionally
// capping concurrent HalfOpen probes to halfOpenProbeRate (Open Question
// decision, see DESIGN.md). Returns whether a probe slot is held and
// whether the caller should proceed (false only on ctx cancellation).
func (e *Engine) awaitBreaker(ctx context.Context) (probing bool, ok bool) {
	for {
		for e.breaker.ShouldBlock() {
			timer := time.NewTimer(breakerBlockSleep)
			select {
			case <-ctx.Done():
				timer.Stop()
				return false, false
			case <-timer.C:
			}
		}

		if e.breaker.State() != breaker.HalfOpen {
			return false, true
		}

		select {
		case e.halfOpenSem <- struct{}{}:
			return true, true
		default:
			timer := time.NewTimer(breakerBlockSleep)
			select {
			case <-ctx.Done():
				timer.Stop()
				return false, false
			case <-timer.C:
			}
		}
	}
}

func (e *Engine) sendCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.cfg.SendTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, e.cfg.SendTimeout)
}

func (e *Engine) recordMetrics(outcome Outcome) {
	if e.metrics == nil {
		return
	}
	e.metrics.SendAttemptsTotal.WithLabelValues(string(outcome.Kind)).Inc()
	e.metrics.SendLatencyMs.Observe(float64(outcome.Latency.Milliseconds()))
}

func (e *Engine) finalizeSuccess(ctx context.Context, item *WorkItem) {
	if err := e.store.MarkSent(ctx, item.ID); err != nil {
		e.logger.Error("mark sent failed", zap.Error(err))
		return
	}
	atomic.AddInt64(&e.sentTotal, 1)
	if e.metrics != nil {
		e.metrics.SentTotal.Inc()
	}
}

func (e *Engine) finalizeDeadLetter(ctx context.Context, item *WorkItem, outcome Outcome) {
	reason := "non-retriable"
	if outcome.Err != nil {
		reason = outcome.Err.Error()
	}
	if err := e.store.MoveToDeadLetter(ctx, item.ID, reason); err != nil {
		e.logger.Error("move to dead letter failed", zap.Error(err))
		return
	}
	atomic.AddInt64(&e.deadLetteredTotal, 1)
	if e.metrics != nil {
		e.metrics.DeadLetteredTotal.Inc()
	}
}

// finalizeRescheduleOrDLQ implements retry layer (b): either hand the
// item back to the store as Failed with a future earliestNextAttemptAt,
// or move it to the dead letter queue if the unified attempt counter
// (item.Attempts, shared with layer (a)) has already reached RetryMax.
// item.Attempts always reflects attempts actually completed: the
// persisted counter is never advanced past what's been sent, so a
// reclaimed item resumes its in-flight budget from the true count.
func (e *Engine) finalizeRescheduleOrDLQ(ctx context.Context, item *WorkItem, outcome Outcome) {
	if e.retryCfg.ShouldDeadLetter(item.Attempts) {
		e.finalizeDeadLetter(ctx, item, outcome)
		return
	}

	delay := e.retryCfg.RescheduleDelay(item.Attempts + 1)
	lastErr := ""
	if outcome.Err != nil {
		lastErr = outcome.Err.Error()
	}
	if err := e.store.ScheduleRetry(ctx, item.ID, item.Attempts, delay.Seconds(), lastErr); err != nil {
		e.logger.Error("schedule retry failed", zap.Error(err))
		return
	}
	atomic.AddInt64(&e.failedTotal, 1)
	if e.metrics != nil {
		e.metrics.RetryScheduledTotal.Inc()
	}
	e.signalWake()
}

// controlLoop ticks the AIMD controller every RampInterval once warmup
// has elapsed, per spec.md §4.5, and pushes the resulting rate into the
// pacer, clamped during HalfOpen.
func (e *Engine) controlLoop(ctx context.Context) {
	for e.ctrl.InWarmup() {
		e.pacer.SetRate(float64(e.ctrl.EffectiveRate()))
		select {
		case <-ctx.Done():
			return
		case <-time.After(50 * time.Millisecond):
		}
	}

	e.pacer.SetRate(float64(e.ctrl.EffectiveRate()))

	ticker := time.NewTicker(e.rampInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := e.window.Snapshot()
			rate := e.ctrl.Update(controller.Signals{ErrorRate: snap.ErrorRate, P95Ms: snap.P95Ms})
			e.applyRate(rate)
		}
	}
}

func (e *Engine) rampInterval() time.Duration {
	// Derived from the controller's own configured cadence; exposed here
	// so the control loop doesn't need a second copy of the config.
	return e.ctrl.RampInterval()
}

func (e *Engine) applyRate(rate int) {
	if e.breaker.State() == breaker.HalfOpen {
		rate = controller.EffectiveHalfOpenRate(rate, e.breaker.HalfOpenProbeRate())
	}
	e.pacer.SetRate(float64(rate))
	if e.metrics != nil {
		e.metrics.CurrentRate.Set(float64(rate))
	}
}

// statsLoop periodically logs the observability snapshot from spec.md
// §6: queueDepth, ratePerSec, p95LatencyMs, errorRatePercent,
// breakerState, sentTotal.
func (e *Engine) statsLoop(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.StatsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := e.Snapshot(ctx)
			e.logger.Info("dispatcher stats",
				zap.Int("queue_depth", s.QueueDepth),
				zap.Float64("rate_per_sec", s.RatePerSec),
				zap.Int64("p95_latency_ms", s.P95LatencyMs),
				zap.Float64("error_rate_percent", s.ErrorRatePercent),
				zap.String("breaker_state", s.BreakerState),
				zap.Int64("sent_total", s.SentTotal))
			if e.metrics != nil {
				e.metrics.QueueDepth.Set(float64(s.QueueDepth))
			}
		}
	}
}

// Snapshot returns the current observability fields without waiting for
// the next stats tick, used by cmd/api's /v1/stats handler.
func (e *Engine) Snapshot(ctx context.Context) Stats {
	win := e.window.Snapshot()

	queueDepth := 0
	if counts, err := e.store.Counts(ctx); err == nil {
		queueDepth = counts.QueueDepth()
	}

	return Stats{
		QueueDepth:        queueDepth,
		RatePerSec:        e.pacer.Rate(),
		P95LatencyMs:      win.P95Ms,
		ErrorRatePercent:  win.ErrorRate * 100,
		BreakerState:      e.breaker.State().String(),
		SentTotal:         atomic.LoadInt64(&e.sentTotal),
		FailedTotal:       atomic.LoadInt64(&e.failedTotal),
		DeadLetteredTotal: atomic.LoadInt64(&e.deadLetteredTotal),
	}
}

// Tallies returns the final counters for SIGINT's print-then-exit path
// (spec.md §6 process lifecycle).
func (e *Engine) Tallies(ctx context.Context) (sent, failed, dlq, pending int64) {
	sent = atomic.LoadInt64(&e.sentTotal)
	failed = atomic.LoadInt64(&e.failedTotal)
	dlq = atomic.LoadInt64(&e.deadLetteredTotal)
	if counts, err := e.store.Counts(ctx); err == nil {
		pending = int64(counts.QueueDepth())
	}
	return
}

// Stopped returns a channel closed once Run has returned.
func (e *Engine) Stopped() <-chan struct{} {
	return e.stopped
}
