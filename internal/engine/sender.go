package engine

import "context"

// Sender performs the actual downstream call for one work item and
// classifies the result into an Outcome. Declared here (rather than
// transport) so transport's concrete implementations can depend on
// engine's data model without a dependency cycle. Implementations must
// honor ctx cancellation and must never panic.
type Sender interface {
	Send(ctx context.Context, payload []byte) Outcome
}
