// Package workstore provides work-store adapter implementations of
// engine.Store (spec.md §6): an in-memory implementation for
// tests/demos and a durable PostgreSQL implementation for production,
// mirroring the teacher's abstraction over internal/messages.Store and
// internal/queue/database.go.
package workstore

import "throttlepipe/internal/engine"

// Store is the polymorphic work-store adapter contract. Aliased from
// engine.Store, which owns the definition to avoid an import cycle
// between this package and engine.
type Store = engine.Store

// StatusCounts is a cheap tally of work-item statuses.
type StatusCounts = engine.StatusCounts
