package movement

import (
	"context"
	"time"
)

// MovementPostedEvent is emitted after a document's effects commit.
type MovementPostedEvent struct {
	Kind           DocumentKind
	DocumentNumber string
	Lines          int
	PostedAt       time.Time
}

// Hooks receives post-commit notifications. Implementations invalidate
// caches and bump counters; they must not fail the posting call.
type Hooks interface {
	MovementPosted(ctx context.Context, evt MovementPostedEvent)
	MovementFailed(ctx context.Context, kind DocumentKind, reason string)
}
