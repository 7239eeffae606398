// Package engine composes the pacer, window, breaker, controller, retry
// scheduler and work-store/transport adapters into the dispatcher
// described by the throttling pipeline.
package engine

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a WorkItem.
type Status string

const (
	StatusPending      Status = "PENDING"
	StatusInFlight     Status = "IN_FLIGHT"
	StatusSent         Status = "SENT"
	StatusFailed       Status = "FAILED"
	StatusDeadLettered Status = "DEAD_LETTERED"
)

// WorkItem is one unit of deliverable work drained from the backlog.
type WorkItem struct {
	ID                    uuid.UUID
	Payload               []byte
	Status                Status
	Attempts              int
	EarliestNextAttemptAt time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
	LastError             string
}

// OutcomeKind classifies the result of one send attempt.
type OutcomeKind string

const (
	OutcomeSuccess       OutcomeKind = "success"
	OutcomeServerBusy    OutcomeKind = "server_busy"
	OutcomeClientReject  OutcomeKind = "client_reject"
	OutcomeTransportErr  OutcomeKind = "transport_error"
)

// Outcome is produced by one send attempt. It is ephemeral — never
// persisted — and is consumed by the window collector, the breaker and
// the per-item finalizer in the same worker task.
type Outcome struct {
	Kind       OutcomeKind
	Latency    time.Duration
	RetryAfter time.Duration // only meaningful for OutcomeServerBusy
	Err        error
}

// Retriable reports whether this outcome should be retried (in-flight or
// rescheduled) rather than finalized immediately.
func (o Outcome) Retriable() bool {
	return o.Kind == OutcomeServerBusy || o.Kind == OutcomeTransportErr
}

// Terminal reports whether this outcome ends the item's lifecycle without
// any further attempt (success, or a non-retriable client rejection).
func (o Outcome) Terminal() bool {
	return o.Kind == OutcomeSuccess || o.Kind == OutcomeClientReject
}
