// Package config loads the recognized options from spec.md §6 via
// envconfig, matching the teacher's internal/config/config.go style.
package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config carries every recognized option from spec.md §6 plus the
// connection strings for the optional durable adapters.
type Config struct {
	// Dispatcher / worker pool
	BatchSize   int           `envconfig:"BATCH_SIZE" default:"200"`
	Concurrency int           `envconfig:"CONCURRENCY" default:"6"`
	IdleSleep   time.Duration `envconfig:"IDLE_SLEEP" default:"300ms"`

	// Pacer / controller
	InitialRate          int           `envconfig:"INITIAL_RATE" default:"5"`
	MinRate              int           `envconfig:"MIN_RATE" default:"1"`
	MaxRate              int           `envconfig:"MAX_RATE" default:"100"`
	WarmupRate           int           `envconfig:"WARMUP_RATE" default:"1"`
	WarmupDuration       time.Duration `envconfig:"WARMUP_DURATION" default:"60s"`
	RampInterval         time.Duration `envconfig:"RAMP_INTERVAL" default:"30s"`
	AdditiveStep         int           `envconfig:"ADDITIVE_STEP" default:"1"`
	MultiplicativeFactor float64       `envconfig:"MULTIPLICATIVE_FACTOR" default:"0.5"`
	ErrorThreshold       float64       `envconfig:"ERROR_THRESHOLD" default:"0.05"`
	LatencyThresholdMs   int64         `envconfig:"LATENCY_THRESHOLD_MS" default:"400"`

	// Circuit breaker
	FailureThreshold  int           `envconfig:"FAILURE_THRESHOLD" default:"10"`
	OpenDuration      time.Duration `envconfig:"OPEN_DURATION" default:"30s"`
	HalfOpenDuration  time.Duration `envconfig:"HALF_OPEN_DURATION" default:"10s"`
	HalfOpenProbeRate int           `envconfig:"HALF_OPEN_PROBE_RATE" default:"3"`

	// Retry scheduler
	RetryMax          int    `envconfig:"RETRY_MAX" default:"8"`
	BackoffCapSeconds int    `envconfig:"BACKOFF_CAP_SECONDS" default:"300"`
	BaseDelayMs       int    `envconfig:"BASE_DELAY_MS" default:"1000"`
	JitterMs          int    `envconfig:"JITTER_MS" default:"1000"`
	JitterType        string `envconfig:"JITTER_TYPE" default:"random"`
	// InFlightRetryMax caps consecutive in-flight attempts per claim
	// before yielding to the rescheduled-via-store layer; 0 derives it
	// from RetryMax (see retryx.Config.InFlightLimit).
	InFlightRetryMax int `envconfig:"INFLIGHT_RETRY_MAX" default:"0"`

	// Sliding window
	WindowMs int `envconfig:"WINDOW_MS" default:"30000"`

	// Observability
	LogLevel      string        `envconfig:"LOG_LEVEL" default:"info"`
	StatsInterval time.Duration `envconfig:"STATS_INTERVAL" default:"5s"`

	// Durable adapters (optional — unset means use in-memory)
	PostgresURL string `envconfig:"POSTGRES_URL"`
	RedisURL    string `envconfig:"REDIS_URL"`
	NATSURL     string `envconfig:"NATS_URL"`

	// Transport: DownstreamURL selects HTTPSender when set, else the
	// dispatcher falls back to MockSender for demos and local runs.
	SendTimeout   time.Duration `envconfig:"SEND_TIMEOUT" default:"10s"`
	DownstreamURL string        `envconfig:"DOWNSTREAM_URL"`

	// Optional notify side channel
	NotifyEnabled bool `envconfig:"NOTIFY_ENABLED" default:"false"`

	// Metrics / tracing
	MetricsEnabled bool `envconfig:"METRICS_ENABLED" default:"true"`
	OtelEnabled    bool `envconfig:"OTEL_ENABLED" default:"false"`

	// Exit behavior for demo/batch runs: stop once every known item is
	// terminal instead of running until signaled.
	ExitWhenDrained bool `envconfig:"EXIT_WHEN_DRAINED" default:"false"`

	// API server
	Port       string  `envconfig:"PORT" default:"8080"`
	IngressQPS float64 `envconfig:"INGRESS_QPS" default:"50"`
}

// Load reads Config from the environment, applying defaults.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
