// Package transport provides Sender implementations of engine.Sender
// (spec.md §6): MockSender for tests/demos and HTTPSender for production.
package transport

import (
	"time"

	"throttlepipe/internal/engine"
)

// Sender performs the actual downstream call for one work item.
// Aliased from engine.Sender, which owns the definition to avoid an
// import cycle between this package and engine.
type Sender = engine.Sender

// classifyLatency wraps fn, timing it and stamping the result's Latency
// field, so individual Sender implementations don't each have to.
func classifyLatency(fn func() engine.Outcome) engine.Outcome {
	start := time.Now()
	out := fn()
	out.Latency = time.Since(start)
	return out
}
