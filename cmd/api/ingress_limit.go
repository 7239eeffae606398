package main

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/time/rate"
)

// IngressLimiter is a global token-bucket guard in front of the producer
// surface (POST /v1/items), distinct from the dispatcher's own internal
// pacer: this protects the API process itself from being overwhelmed by
// enqueue traffic, independent of how fast the dispatcher drains it
// downstream. Grounded on the pack's gateway rate-limit middleware
// (golang.org/x/time/rate token bucket with 429 + Retry-After on
// exhaustion).
type IngressLimiter struct {
	limiter *rate.Limiter
}

// NewIngressLimiter builds a limiter allowing qps requests/sec with a
// burst of the same size.
func NewIngressLimiter(qps float64) *IngressLimiter {
	if qps <= 0 {
		qps = 1
	}
	return &IngressLimiter{limiter: rate.NewLimiter(rate.Limit(qps), int(qps))}
}

// Middleware rejects a request with 429 and a Retry-After header once
// the bucket is exhausted, rather than queueing or blocking the caller.
func (l *IngressLimiter) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if l.limiter.Allow() {
			return c.Next()
		}
		c.Set("Retry-After", strconv.Itoa(1))
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "too many requests"})
	}
}
