package ports

import (
	"context"
	"time"
)

// Scheduler is the cooperative runtime that trigger sources schedule work onto.
// The engine never owns it; callers inject a wall-clock loop in production and a
// virtual one in tests.
type Scheduler interface {
	// Now returns the scheduler's notion of the current time.
	Now() time.Time

	// Sleep suspends the calling task for d. It returns early with ctx.Err()
	// if the context is cancelled. A non-positive d is a plain yield point.
	Sleep(ctx context.Context, d time.Duration) error

	// Go starts fn as a new task.
	Go(fn func())
}
