package observability

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the Prometheus instruments the engine and API surface
// update directly, registered against the default registry the way the
// teacher's internal/api/routes.go gathers it for /metrics.
type Metrics struct {
	SendAttemptsTotal   *prometheus.CounterVec
	SentTotal           prometheus.Counter
	DeadLetteredTotal   prometheus.Counter
	RetryScheduledTotal prometheus.Counter
	SendLatencyMs       prometheus.Histogram
	QueueDepth          prometheus.Gauge
	CurrentRate         prometheus.Gauge
	BreakerOpenTotal    prometheus.Counter
}

// NewMetrics constructs and registers the engine's Prometheus instruments.
func NewMetrics() *Metrics {
	m := &Metrics{
		SendAttemptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "throttle_send_attempts_total",
			Help: "Total send attempts by outcome kind.",
		}, []string{"outcome"}),
		SentTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "throttle_sent_total",
			Help: "Total work items successfully sent.",
		}),
		DeadLetteredTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "throttle_dead_lettered_total",
			Help: "Total work items moved to the dead-letter bucket.",
		}),
		RetryScheduledTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "throttle_retry_scheduled_total",
			Help: "Total rescheduled-via-store retries.",
		}),
		SendLatencyMs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "throttle_send_latency_ms",
			Help:    "Send attempt latency in milliseconds.",
			Buckets: prometheus.ExponentialBuckets(5, 2, 12),
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "throttle_queue_depth",
			Help: "Backlog of pending/eligible-for-retry work items.",
		}),
		CurrentRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "throttle_current_rate",
			Help: "Current pacer rate in tokens/sec.",
		}),
		BreakerOpenTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "throttle_breaker_open_total",
			Help: "Total times the breaker tripped to Open.",
		}),
	}

	prometheus.MustRegister(
		m.SendAttemptsTotal, m.SentTotal, m.DeadLetteredTotal, m.RetryScheduledTotal,
		m.SendLatencyMs, m.QueueDepth, m.CurrentRate, m.BreakerOpenTotal,
	)

	return m
}
