package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/kiranshivaraju/sketchforge/pkg/models"
)

// Registry maps job types to their handlers. Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[models.JobType]models.Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[models.JobType]models.Handler)}
}

// Register binds h to t, replacing any earlier handler.
func (r *Registry) Register(t models.JobType, h models.Handler) error {
	if !t.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownJobType, t)
	}
	if h == nil {
		return fmt.Errorf("register %s: handler is nil", t)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[t] = h
	return nil
}

func (r *Registry) Lookup(t models.JobType) (models.Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[t]
	return h, ok
}

// Types returns the registered job types in declaration order.
func (r *Registry) Types() []models.JobType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.JobType, 0, len(r.handlers))
	for _, t := range models.AllJobTypes() {
		if _, ok := r.handlers[t]; ok {
			out = append(out, t)
		}
	}
	return out
}

// Execute runs h for one attempt of job. Returned errors and panics are
// converted into a failed JobResult plus a *HandlerError.
func Execute(ctx context.Context, h models.Handler, job *models.Job) (result models.JobResult, err error) {
	attempt := job.AttemptsMade + 1
	defer func() {
		if rec := recover(); rec != nil {
			err = &HandlerError{JobID: job.ID, Type: job.Type, Attempt: attempt, Err: fmt.Errorf("panic: %v", rec)}
			result = models.JobResult{Success: false, Error: err.Error()}
		}
	}()

	res, herr := h.Handle(ctx, job)
	if herr != nil {
		res.Success = false
		res.Error = herr.Error()
		return res, &HandlerError{JobID: job.ID, Type: job.Type, Attempt: attempt, Err: herr}
	}
	if !res.Success {
		if res.Error == "" {
			res.Error = "handler reported failure"
		}
		return res, &HandlerError{JobID: job.ID, Type: job.Type, Attempt: attempt, Err: errors.New(res.Error)}
	}
	return res, nil
}
