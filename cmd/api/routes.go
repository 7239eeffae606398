package main

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// SetupRoutes wires the HTTP surface, grounded on the teacher's
// internal/api/routes.go.
func SetupRoutes(app *fiber.App, logger *zap.Logger, handlers *Handlers, ingress *IngressLimiter) {
	SetupMiddleware(app, logger)

	app.Get("/healthz", handlers.HealthCheck)
	app.Get("/readyz", handlers.ReadyCheck)

	// Metrics endpoint, gathered manually against the default registry
	// the way the teacher's routes.go does rather than pulling in a
	// separate promhttp adaptor dependency.
	app.Get("/metrics", func(c *fiber.Ctx) error {
		metricFamilies, err := prometheus.DefaultGatherer.Gather()
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).SendString("error gathering metrics")
		}

		c.Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		for _, mf := range metricFamilies {
			name := mf.GetName()
			for _, m := range mf.GetMetric() {
				switch {
				case m.GetCounter() != nil:
					c.WriteString(fmt.Sprintf("# TYPE %s counter\n%s %g\n", name, name, m.GetCounter().GetValue()))
				case m.GetGauge() != nil:
					c.WriteString(fmt.Sprintf("# TYPE %s gauge\n%s %g\n", name, name, m.GetGauge().GetValue()))
				case m.GetHistogram() != nil:
					h := m.GetHistogram()
					c.WriteString(fmt.Sprintf("# TYPE %s histogram\n%s_count %d\n%s_sum %g\n",
						name, name, h.GetSampleCount(), name, h.GetSampleSum()))
				}
			}
		}
		return nil
	})

	v1 := app.Group("/v1")
	v1.Get("/stats", handlers.Stats)
	v1.Post("/items", ingress.Middleware(), handlers.EnqueueItem)
}
