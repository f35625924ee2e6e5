package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/sketchforge/pkg/models"
)

// Queue is the single entry point for enqueueing and inspecting jobs. The
// backend is bound once at construction and never re-selected.
type Queue struct {
	backend  Backend
	registry *Registry
	validate *validator.Validate
	logger   *slog.Logger
}

// New creates a Queue over backend. Handlers are looked up in registry at
// dequeue time.
func New(backend Backend, registry *Registry, logger *slog.Logger) *Queue {
	if registry == nil {
		registry = NewRegistry()
	}
	return &Queue{
		backend:  backend,
		registry: registry,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger.With("component", "queue", "mode", backend.Mode()),
	}
}

// Start begins job execution on the active backend.
func (q *Queue) Start(ctx context.Context) error {
	if err := q.backend.Start(ctx, q.dispatch); err != nil {
		return fmt.Errorf("start %s backend: %w", q.backend.Mode(), err)
	}
	q.logger.Info("queue started", "registered_types", q.registry.Types())
	return nil
}

// Close stops the backend and waits for in-flight handlers.
func (q *Queue) Close() error {
	return q.backend.Close()
}

// Mode reports whether the durable backend or the fallback scheduler is active.
func (q *Queue) Mode() string {
	return q.backend.Mode()
}

// RegisterProcessor binds h to jobs of type t.
func (q *Queue) RegisterProcessor(t models.JobType, h models.Handler) error {
	if err := q.registry.Register(t, h); err != nil {
		return err
	}
	q.logger.Info("processor registered", "job_type", t)
	return nil
}

// Types returns the job types that have a registered processor.
func (q *Queue) Types() []models.JobType {
	return q.registry.Types()
}

// AddJob enqueues payload as a job of type t. opts are applied over the type
// defaults. The job id is returned before the job runs.
func (q *Queue) AddJob(ctx context.Context, t models.JobType, payload any, opts ...Option) (string, error) {
	if _, ok := q.registry.Lookup(t); !ok {
		return "", fmt.Errorf("%w: %q has no registered processor", ErrUnknownJobType, t)
	}

	options := DefaultOptions(t)
	for _, opt := range opts {
		opt(&options)
	}
	if err := q.validate.Struct(options); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}

	data, err := encodePayload(payload)
	if err != nil {
		return "", err
	}

	job := &models.Job{
		ID:      uuid.NewString(),
		Type:    t,
		Data:    data,
		Options: options,
	}
	if err := q.backend.Enqueue(ctx, job); err != nil {
		return "", fmt.Errorf("enqueue %s job: %w", t, err)
	}

	q.logger.Debug("job enqueued",
		"job_id", job.ID,
		"job_type", t,
		"priority", options.Priority.String(),
		"delay_ms", options.Delay.Milliseconds())
	return job.ID, nil
}

// GetQueueStats returns current counts for one job type.
func (q *Queue) GetQueueStats(ctx context.Context, t models.JobType) (models.QueueStats, error) {
	if !t.Valid() {
		return models.QueueStats{}, fmt.Errorf("%w: %q", ErrUnknownJobType, t)
	}
	stats, err := q.backend.Stats(ctx, t)
	if err != nil {
		return models.QueueStats{}, fmt.Errorf("stats for %s: %w", t, err)
	}
	stats.Type = t
	return stats, nil
}

// GetAllStats returns counts for every known job type.
func (q *Queue) GetAllStats(ctx context.Context) (map[models.JobType]models.QueueStats, error) {
	out := make(map[models.JobType]models.QueueStats, len(models.AllJobTypes()))
	for _, t := range models.AllJobTypes() {
		s, err := q.GetQueueStats(ctx, t)
		if err != nil {
			return nil, err
		}
		out[t] = s
	}
	return out, nil
}

// GetQueueHealth labels each type healthy or degraded by failure ratio.
func (q *Queue) GetQueueHealth(ctx context.Context) (models.QueueHealth, error) {
	stats, err := q.GetAllStats(ctx)
	if err != nil {
		return models.QueueHealth{}, err
	}
	return models.NewQueueHealth(q.Mode(), stats), nil
}

// ClearQueue removes every job of type t in any state.
func (q *Queue) ClearQueue(ctx context.Context, t models.JobType) (int64, error) {
	if !t.Valid() {
		return 0, fmt.Errorf("%w: %q", ErrUnknownJobType, t)
	}
	n, err := q.backend.Clear(ctx, t)
	if err != nil {
		return 0, fmt.Errorf("clear %s: %w", t, err)
	}
	q.logger.Warn("queue cleared", "job_type", t, "removed", n)
	return n, nil
}

// dispatch runs the registered handler for a dequeued job.
func (q *Queue) dispatch(ctx context.Context, job *models.Job) (models.JobResult, bool) {
	logger := q.logger.With("job_id", job.ID, "job_type", job.Type, "attempt", job.AttemptsMade+1)

	h, ok := q.registry.Lookup(job.Type)
	if !ok {
		logger.Warn("dropping job with no registered processor")
		return models.JobResult{}, false
	}

	result, err := Execute(ctx, h, job)
	if err != nil {
		var herr *HandlerError
		if errors.As(err, &herr) {
			logger.Warn("job attempt failed", "error", herr.Err, "max_attempts", job.Options.Attempts)
		}
		return result, true
	}
	logger.Info("job attempt succeeded")
	return result, true
}

func encodePayload(payload any) (json.RawMessage, error) {
	switch p := payload.(type) {
	case nil:
		return json.RawMessage("null"), nil
	case json.RawMessage:
		if !json.Valid(p) {
			return nil, fmt.Errorf("%w: raw payload is not valid JSON", ErrInvalidPayload)
		}
		return p, nil
	case []byte:
		if !json.Valid(p) {
			return nil, fmt.Errorf("%w: raw payload is not valid JSON", ErrInvalidPayload)
		}
		return json.RawMessage(p), nil
	default:
		b, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		return b, nil
	}
}
