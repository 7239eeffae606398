package engine

import (
	"context"

	"github.com/google/uuid"
)

// Store is the polymorphic work-store adapter contract from spec.md §6:
// fetch-and-claim, mark-sent, schedule-retry, move-to-dead-letter, each
// atomic per-item. Declared in this package (rather than workstore) so
// that workstore's concrete implementations can depend on engine's data
// model without engine depending back on workstore.
type Store interface {
	// Claim atomically marks up to limit eligible items (status
	// Pending|Failed with earliestNextAttemptAt <= now) as InFlight and
	// returns them.
	Claim(ctx context.Context, limit int) ([]*WorkItem, error)

	// MarkSent transitions an item to the terminal Sent state.
	MarkSent(ctx context.Context, id uuid.UUID) error

	// ScheduleRetry transitions an item back to Failed with an updated
	// attempt count and earliestNextAttemptAt = now + delay.
	ScheduleRetry(ctx context.Context, id uuid.UUID, attempt int, delay float64, lastErr string) error

	// MoveToDeadLetter transitions an item to the terminal
	// DeadLettered state.
	MoveToDeadLetter(ctx context.Context, id uuid.UUID, reason string) error

	// AllTerminal reports whether every known item is Sent or
	// DeadLettered. Optional in production; used only by the
	// dispatcher's termination check in demo/test runs.
	AllTerminal(ctx context.Context) (bool, error)

	// Enqueue adds a new Pending item to the backlog (producer-side,
	// outside the §4.6 contract proper, but needed by every adapter to
	// exercise the store end-to-end in tests and the demo command).
	Enqueue(ctx context.Context, payload []byte) (*WorkItem, error)

	// Counts reports a cheap breakdown of item statuses, backing the
	// observability snapshot's queueDepth field.
	Counts(ctx context.Context) (StatusCounts, error)
}

// StatusCounts is a cheap tally of work-item statuses.
type StatusCounts struct {
	Pending      int
	InFlight     int
	Sent         int
	Failed       int
	DeadLettered int
}

// QueueDepth is the backlog definition from the glossary: Pending, plus
// Failed items whose earliestNextAttemptAt has already elapsed. The
// in-memory/Postgres stores both report Failed conservatively (counting
// all Failed items) since distinguishing "eligible now" from "not yet
// eligible" requires a timestamp comparison already folded into Claim.
func (c StatusCounts) QueueDepth() int {
	return c.Pending + c.Failed
}
