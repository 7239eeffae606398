package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"throttlepipe/internal/breaker"
	"throttlepipe/internal/config"
	"throttlepipe/internal/controller"
	"throttlepipe/internal/engine"
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

	logger := observability.GetLoggerFromEnv("api", cfg.LogLevel)
	defer logger.Sync()

	logger.Info("starting throttlepipe API", zap.String("port", cfg.Port))

	var metrics *observability.Metrics
	if cfg.MetricsEnabled {
		metrics = observability.NewMetrics()
	}

	ctx := context.Background()

	var store engine.Store
	if cfg.PostgresURL != "" {
		s, err := workstore.NewPostgresStore(ctx, cfg.PostgresURL, nil)
		if err != nil {
			logger.Fatal("failed to connect to postgres work store", zap.Error(err))
		}
		defer s.Close()
		store = s
	} else {
		logger.Info("no POSTGRES_URL configured, using in-memory work store")
		store = workstore.NewMemoryStore()
	}

	var sender engine.Sender
	if cfg.DownstreamURL != "" {
		sender = transport.NewHTTPSender(cfg.DownstreamURL, cfg.SendTimeout)
	} else {
		sender = transport.NewMockSender()
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
		JitterType:        retryx.JitterType(cfg.JitterType),
		InFlightMax:       cfg.InFlightRetryMax,
	}

	eng := engine.New(engine.Config{
		BatchSize:     cfg.BatchSize,
		Concurrency:   cfg.Concurrency,
		IdleSleep:     cfg.IdleSleep,
		StatsInterval: cfg.StatsInterval,
		SendTimeout:   cfg.SendTimeout,
	}, store, sender, p, w, b, ctrl, retryCfg, logger, metrics, nil)

	engineCtx, cancelEngine := context.WithCancel(ctx)
	go func() {
		if err := eng.Run(engineCtx); err != nil {
			logger.Error("engine exited with error", zap.Error(err))
		}
	}()

	handlers := NewHandlers(logger, eng, store)

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			logger.Error("fiber error", zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
		},
	})

	ingress := NewIngressLimiter(cfg.IngressQPS)
	SetupRoutes(app, logger, handlers, ingress)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	logger.Info("throttlepipe API started", zap.String("port", cfg.Port))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down...")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error("failed to shut down http server gracefully", zap.Error(err))
	}

	cancelEngine()
	<-eng.Stopped()

	logger.Info("throttlepipe API stopped")
}
