package main

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"throttlepipe/internal/engine"
)

// Handlers groups the HTTP surface over a running Engine and its Store,
// grounded on the teacher's internal/api/handlers.go.
type Handlers struct {
	logger *zap.Logger
	eng    *engine.Engine
	store  engine.Store
}

// NewHandlers builds a Handlers bound to a running engine and its store.
func NewHandlers(logger *zap.Logger, eng *engine.Engine, store engine.Store) *Handlers {
	return &Handlers{logger: logger, eng: eng, store: store}
}

// HealthCheck handles GET /healthz: a liveness probe with no downstream
// dependency, per the teacher's own Health handler.
//
//	@Summary		Health check
//	@Description	Basic liveness probe
//	@Tags			System
//	@Produce		json
//	@Success		200	{object}	map[string]interface{}
//	@Router			/healthz [get]
func (h *Handlers) HealthCheck(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok", "time": time.Now().Unix()})
}

// ReadyCheck handles GET /readyz: a readiness probe that confirms the
// work store actually answers.
func (h *Handlers) ReadyCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	if _, err := h.store.Counts(ctx); err != nil {
		h.logger.Warn("readiness check failed", zap.Error(err))
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "not ready"})
	}
	return c.JSON(fiber.Map{"status": "ready"})
}

// Stats handles GET /v1/stats, exposing the same snapshot the dispatcher
// logs periodically (spec.md §6 observability fields).
//
//	@Summary		Dispatcher stats
//	@Description	Queue depth, current rate, latency and breaker state
//	@Tags			Stats
//	@Produce		json
//	@Success		200	{object}	map[string]interface{}
//	@Router			/v1/stats [get]
func (h *Handlers) Stats(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	s := h.eng.Snapshot(ctx)
	return c.JSON(fiber.Map{
		"queue_depth":        s.QueueDepth,
		"rate_per_sec":       s.RatePerSec,
		"p95_latency_ms":     s.P95LatencyMs,
		"error_rate_percent": s.ErrorRatePercent,
		"breaker_state":      s.BreakerState,
		"sent_total":         s.SentTotal,
		"failed_total":       s.FailedTotal,
		"dead_lettered_total": s.DeadLetteredTotal,
	})
}

// enqueueRequest is the body accepted by POST /v1/items.
type enqueueRequest struct {
	Payload string `json:"payload"`
}

// EnqueueItem handles POST /v1/items: adds one new pending work item to
// the backlog for the dispatcher to drain.
func (h *Handlers) EnqueueItem(c *fiber.Ctx) error {
	var req enqueueRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request"})
	}
	if req.Payload == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "payload is required"})
	}

	item, err := h.store.Enqueue(c.Context(), []byte(req.Payload))
	if err != nil {
		h.logger.Error("failed to enqueue item", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to enqueue item"})
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"id":     item.ID,
		"status": string(item.Status),
	})
}
