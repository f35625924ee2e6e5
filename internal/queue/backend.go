package queue

import (
	"context"

	"github.com/kiranshivaraju/sketchforge/pkg/models"
)

const (
	ModeDurable  = "durable"
	ModeFallback = "fallback"
)

// Backend stores transient jobs and drives their execution. Implementations
// must be safe for concurrent use.
type Backend interface {
	// Mode reports which implementation is active.
	Mode() string
	// Start begins dequeuing; each dequeued job is passed to dispatch.
	Start(ctx context.Context, dispatch models.DispatchFunc) error
	// Enqueue stores job and returns without waiting for execution. The
	// backend stamps CreatedAt, RunAt and Status.
	Enqueue(ctx context.Context, job *models.Job) error
	Stats(ctx context.Context, t models.JobType) (models.QueueStats, error)
	// Clear removes every job of type t regardless of state.
	Clear(ctx context.Context, t models.JobType) (int64, error)
	// Close stops dequeuing and waits for in-flight handlers.
	Close() error
}
