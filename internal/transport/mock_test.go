package transport

import (
	"context"
	"testing"
	"time"

	"throttlepipe/internal/engine"
)

func TestMockSenderAlwaysSucceeds(t *testing.T) {
	m := NewMockSender()
	m.SuccessRate = 1
	m.ServerBusyRate = 0
	m.RejectRate = 0
	m.LatencyMean = time.Millisecond
	m.LatencyJit = 0

	out := m.Send(context.Background(), []byte("hi"))
	if out.Kind != engine.OutcomeSuccess {
		t.Fatalf("expected success, got %v (%v)", out.Kind, out.Err)
	}
	if out.Latency <= 0 {
		t.Fatalf("expected positive latency, got %v", out.Latency)
	}
}

func TestMockSenderServerBusyCarriesRetryAfter(t *testing.T) {
	m := NewMockSender()
	m.SuccessRate = 0
	m.ServerBusyRate = 1
	m.RejectRate = 0
	m.LatencyMean = time.Millisecond
	m.LatencyJit = 0
	m.RetryAfter = 5 * time.Second

	out := m.Send(context.Background(), []byte("hi"))
	if out.Kind != engine.OutcomeServerBusy {
		t.Fatalf("expected server busy, got %v", out.Kind)
	}
	if out.RetryAfter != 5*time.Second {
		t.Fatalf("expected retry-after 5s, got %v", out.RetryAfter)
	}
	if !out.Retriable() {
		t.Fatal("server busy outcome must be retriable")
	}
}

func TestMockSenderRejectIsTerminal(t *testing.T) {
	m := NewMockSender()
	m.SuccessRate = 0
	m.ServerBusyRate = 0
	m.RejectRate = 1
	m.LatencyMean = time.Millisecond
	m.LatencyJit = 0

	out := m.Send(context.Background(), []byte("hi"))
	if out.Kind != engine.OutcomeClientReject {
		t.Fatalf("expected client reject, got %v", out.Kind)
	}
	if !out.Terminal() {
		t.Fatal("client reject outcome must be terminal")
	}
	if out.Retriable() {
		t.Fatal("client reject outcome must not be retriable")
	}
}

func TestMockSenderHonorsContextCancellation(t *testing.T) {
	m := NewMockSender()
	m.LatencyMean = time.Second
	m.LatencyJit = 0

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	out := m.Send(ctx, []byte("hi"))
	if out.Kind != engine.OutcomeTransportErr {
		t.Fatalf("expected transport error on cancellation, got %v", out.Kind)
	}
}
