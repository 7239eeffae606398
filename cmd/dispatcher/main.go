package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"throttlepipe/internal/breaker"
	"throttlepipe/internal/config"
	"throttlepipe/internal/controller"
	"throttlepipe/internal/engine"
	"throttlepipe/internal/notify"
	"throttlepipe/internal/observability"
	"throttlepipe/internal/pacer"
	"throttlepipe/internal/retryx"
	"throttlepipe/internal/transport"
	"throttlepipe/internal/window"
	"throttlepipe/internal/workstore"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config:", err)
	}

	logger := observability.GetLoggerFromEnv("dispatcher", cfg.LogLevel)
	defer logger.Sync()

	logger.Info("starting throttlepipe dispatcher",
		zap.String("log_level", cfg.LogLevel),
		zap.Int("concurrency", cfg.Concurrency),
		zap.Int("initial_rate", cfg.InitialRate))

	var metrics *observability.Metrics
	if cfg.MetricsEnabled {
		metrics = observability.NewMetrics()
	}

	if cfg.OtelEnabled {
		shutdown, err := observability.SetupOpenTelemetry("throttlepipe-dispatcher", logger)
		if err != nil {
			logger.Warn("failed to set up opentelemetry, continuing without it", zap.Error(err))
		} else {
			defer shutdown()
		}
	}

	ctx := context.Background()

	store, closeStore := buildStore(ctx, cfg, logger)
	defer closeStore()

	sender := buildSender(cfg)

	var notifier *notify.Notifier
	if cfg.NotifyEnabled && cfg.NATSURL != "" {
		n, err := notify.NewNotifier(cfg.NATSURL, logger)
		if err != nil {
			logger.Warn("failed to connect to nats, continuing without wake-up notifications", zap.Error(err))
		} else {
			notifier = n
			defer notifier.Close()
		}
	}

	jitterType := retryx.JitterType(cfg.JitterType)
	switch jitterType {
	case retryx.JitterRandom, retryx.JitterFull, retryx.JitterDecorrelated:
	default:
		logger.Warn("unrecognized jitter type, defaulting to random", zap.String("configured", cfg.JitterType))
		jitterType = retryx.JitterRandom
	}

	p := pacer.New(float64(cfg.WarmupRate), float64(cfg.MinRate))
	w := window.New(time.Duration(cfg.WindowMs) * time.Millisecond)
	b := breaker.New(breaker.Config{
		FailureThreshold:  cfg.FailureThreshold,
		OpenDuration:      cfg.OpenDuration,
		HalfOpenDuration:  cfg.HalfOpenDuration,
		HalfOpenProbeRate: cfg.HalfOpenProbeRate,
	})
	ctrl := controller.New(controller.Config{
		MinRate:              cfg.MinRate,
		MaxRate:              cfg.MaxRate,
		InitialRate:          cfg.InitialRate,
		WarmupRate:           cfg.WarmupRate,
		WarmupDuration:       cfg.WarmupDuration,
		RampInterval:         cfg.RampInterval,
		AdditiveStep:         cfg.AdditiveStep,
		MultiplicativeFactor: cfg.MultiplicativeFactor,
		ErrorThreshold:       cfg.ErrorThreshold,
		LatencyThresholdMs:   cfg.LatencyThresholdMs,
	})
	retryCfg := retryx.Config{
		RetryMax:          cfg.RetryMax,
		BackoffCapSeconds: cfg.BackoffCapSeconds,
		BaseDelayMs:       cfg.BaseDelayMs,
		JitterMs:          cfg.JitterMs,
		JitterType:        jitterType,
		InFlightMax:       cfg.InFlightRetryMax,
	}

	engineCfg := engine.Config{
		BatchSize:       cfg.BatchSize,
		Concurrency:     cfg.Concurrency,
		IdleSleep:       cfg.IdleSleep,
		StatsInterval:   cfg.StatsInterval,
		SendTimeout:     cfg.SendTimeout,
		ExitWhenDrained: cfg.ExitWhenDrained,
	}

	eng := engine.New(engineCfg, store, sender, p, w, b, ctrl, retryCfg, logger, metrics, notifier)

	runCtx, cancel := context.WithCancel(ctx)

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigc
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	logger.Info("dispatcher running, draining backlog...")

	if err := eng.Run(runCtx); err != nil {
		logger.Fatal("dispatcher exited with error", zap.Error(err))
	}

	sent, failed, dlq, pending := eng.Tallies(context.Background())
	logger.Info("dispatcher shutdown complete",
		zap.Int64("sent_total", sent),
		zap.Int64("failed_total", failed),
		zap.Int64("dead_lettered_total", dlq),
		zap.Int64("pending", pending))
}

// buildStore selects PostgresStore when POSTGRES_URL is configured, else
// falls back to an in-process MemoryStore for local runs and demos. The
// returned cleanup func is always safe to call.
func buildStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (engine.Store, func()) {
	if cfg.PostgresURL == "" {
		logger.Info("no POSTGRES_URL configured, using in-memory work store")
		return workstore.NewMemoryStore(), func() {}
	}

	var lease *workstore.RedisLeaseCache
	if cfg.RedisURL != "" {
		l, err := workstore.NewRedisLeaseCache(ctx, cfg.RedisURL, cfg.SendTimeout*3)
		if err != nil {
			logger.Warn("failed to connect to redis, continuing without lease markers", zap.Error(err))
		} else {
			lease = l
		}
	}

	store, err := workstore.NewPostgresStore(ctx, cfg.PostgresURL, lease)
	if err != nil {
		logger.Fatal("failed to connect to postgres work store", zap.Error(err))
	}

	return store, func() {
		store.Close()
		if lease != nil {
			lease.Close()
		}
	}
}

// buildSender selects HTTPSender when DOWNSTREAM_URL is configured, else
// falls back to MockSender for local runs and demos.
func buildSender(cfg *config.Config) engine.Sender {
	if cfg.DownstreamURL == "" {
		return transport.NewMockSender()
	}
	return transport.NewHTTPSender(cfg.DownstreamURL, cfg.SendTimeout)
}
