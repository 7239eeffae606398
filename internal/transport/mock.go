package transport

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"throttlepipe/internal/engine"
)

// MockSender simulates a downstream endpoint with a tunable outcome mix,
// grounded on the teacher's internal/providers/mock/provider.go. Unlike
// the teacher's mock, it exposes a ServerBusy outcome (with a
// server-supplied Retry-After) so the full pacer/controller/breaker
// pipeline can be exercised without a live dependency.
type MockSender struct {
	SuccessRate    float64
	ServerBusyRate float64
	RejectRate     float64
	// remaining probability mass is TransportErr
	LatencyMean time.Duration
	LatencyJit  time.Duration
	RetryAfter  time.Duration
}

// NewMockSender returns a MockSender tuned close to the teacher's
// default mock provider (successRate 0.95), with the remaining 0.05
// split across the three failure kinds.
func NewMockSender() *MockSender {
	return &MockSender{
		SuccessRate:    0.95,
		ServerBusyRate: 0.02,
		RejectRate:     0.02,
		LatencyMean:    80 * time.Millisecond,
		LatencyJit:     40 * time.Millisecond,
		RetryAfter:     2 * time.Second,
	}
}

func (m *MockSender) Send(ctx context.Context, payload []byte) engine.Outcome {
	return classifyLatency(func() engine.Outcome {
		jit := time.Duration(rand.Int63n(int64(m.LatencyJit) + 1))
		select {
		case <-time.After(m.LatencyMean + jit):
		case <-ctx.Done():
			return engine.Outcome{Kind: engine.OutcomeTransportErr, Err: ctx.Err()}
		}

		r := rand.Float64()
		switch {
		case r < m.SuccessRate:
			return engine.Outcome{Kind: engine.OutcomeSuccess}
		case r < m.SuccessRate+m.ServerBusyRate:
			return engine.Outcome{
				Kind:       engine.OutcomeServerBusy,
				RetryAfter: m.RetryAfter,
				Err:        fmt.Errorf("mock: server busy"),
			}
		case r < m.SuccessRate+m.ServerBusyRate+m.RejectRate:
			return engine.Outcome{Kind: engine.OutcomeClientReject, Err: fmt.Errorf("mock: rejected payload")}
		default:
			return engine.Outcome{Kind: engine.OutcomeTransportErr, Err: fmt.Errorf("mock: connection reset")}
		}
	})
}
