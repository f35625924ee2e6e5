package models

import "context"

// Handler performs the work for one job type. Implementations receive the job
// as dequeued and report the outcome of a single execution. A returned error
// or a panic counts as a failed execution and triggers the retry policy.
type Handler interface {
	Handle(ctx context.Context, job *Job) (JobResult, error)
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(ctx context.Context, job *Job) (JobResult, error)

func (f HandlerFunc) Handle(ctx context.Context, job *Job) (JobResult, error) {
	return f(ctx, job)
}

// DispatchFunc is how a backend hands a dequeued job to the facade. The bool
// is false when no handler is registered for the job's type; backends drop
// such jobs instead of retrying them.
type DispatchFunc func(ctx context.Context, job *Job) (JobResult, bool)
