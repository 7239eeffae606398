package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"throttlepipe/internal/engine"
)

func TestHTTPSenderSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewHTTPSender(srv.URL, time.Second)
	out := s.Send(context.Background(), []byte("payload"))
	if out.Kind != engine.OutcomeSuccess {
		t.Fatalf("expected success, got %v (%v)", out.Kind, out.Err)
	}
}

func TestHTTPSenderServerBusyWithRetryAfter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "3")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	s := NewHTTPSender(srv.URL, time.Second)
	out := s.Send(context.Background(), []byte("payload"))
	if out.Kind != engine.OutcomeServerBusy {
		t.Fatalf("expected server busy, got %v", out.Kind)
	}
	if out.RetryAfter != 3*time.Second {
		t.Fatalf("expected retry-after 3s, got %v", out.RetryAfter)
	}
}

func TestHTTPSenderClientRejectIsNotRetried(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	s := NewHTTPSender(srv.URL, time.Second)
	out := s.Send(context.Background(), []byte("payload"))
	if out.Kind != engine.OutcomeClientReject {
		t.Fatalf("expected client reject, got %v", out.Kind)
	}
	if out.Retriable() {
		t.Fatal("4xx (non-429) must not be retriable")
	}
}

func TestHTTPSenderServerErrorIsRetriable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := NewHTTPSender(srv.URL, time.Second)
	out := s.Send(context.Background(), []byte("payload"))
	if out.Kind != engine.OutcomeTransportErr {
		t.Fatalf("expected transport error, got %v", out.Kind)
	}
	if !out.Retriable() {
		t.Fatal("5xx must be retriable")
	}
}

func TestParseRetryAfterSeconds(t *testing.T) {
	if got := parseRetryAfter("7"); got != 7*time.Second {
		t.Fatalf("expected 7s, got %v", got)
	}
}

func TestParseRetryAfterEmpty(t *testing.T) {
	if got := parseRetryAfter(""); got != 0 {
		t.Fatalf("expected 0, got %v", got)
	}
}
