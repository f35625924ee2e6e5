package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kiranshivaraju/sketchforge/internal/queue"
	"github.com/kiranshivaraju/sketchforge/internal/status"
	"github.com/kiranshivaraju/sketchforge/pkg/models"
)

// Tracker is the subset of status.Tracker the sketch workflow drives.
type Tracker interface {
	CreateJob(ctx context.Context, req status.NewJob) (*models.SketchGenerationJob, error)
	UpdateJobStatus(ctx context.Context, id string, s models.SketchStatus, opts ...status.UpdateOption) (*models.SketchGenerationJob, error)
	ReserveUserQuota(ctx context.Context, userID string) (models.QuotaCheck, error)
	ReleaseUserQuota(ctx context.Context, userID string) (models.QuotaCheck, error)
}

// SketchProcessor renders sketches for a tracked sketch job. Every attempt
// marks the job PROCESSING; the final failed attempt marks it FAILED.
type SketchProcessor struct {
	tracker  Tracker
	provider models.AIProvider
	logger   *slog.Logger
	now      func() time.Time
}

func NewSketchProcessor(t Tracker, p models.AIProvider, logger *slog.Logger) *SketchProcessor {
	return &SketchProcessor{
		tracker:  t,
		provider: p,
		logger:   logger.With("component", "processor", "job_type", models.JobTypeSketchGeneration),
		now:      time.Now,
	}
}

// Handle runs one attempt. Whatever ends the final attempt unsuccessfully,
// an error or a panic, leaves the sketch job FAILED.
func (p *SketchProcessor) Handle(ctx context.Context, job *models.Job) (res models.JobResult, err error) {
	var payload models.SketchGenerationPayload
	if err := decode(job, &payload); err != nil {
		return failed(err)
	}
	attempt := job.AttemptsMade + 1
	logger := p.logger.With("job_id", job.ID, "sketch_job_id", payload.SketchJobID, "attempt", attempt)

	var elapsed time.Duration
	defer func() {
		if r := recover(); r != nil {
			res, err = failed(fmt.Errorf("sketch generation panicked: %v", r))
		}
		if err != nil && job.IsFinalAttempt() {
			p.recordFailure(ctx, payload.SketchJobID, attempt, elapsed, err, logger)
		}
	}()

	_, err = p.tracker.UpdateJobStatus(ctx, payload.SketchJobID, models.SketchStatusProcessing, status.WithAttempts(attempt))
	if errors.Is(err, status.ErrTerminalState) {
		logger.Info("sketch job already finished, skipping")
		return models.JobResult{Success: true, Metadata: map[string]any{"skipped": true}}, nil
	}
	if err != nil {
		return failed(fmt.Errorf("mark processing: %w", err))
	}

	start := p.now()
	out, genErr := p.provider.GenerateSketch(ctx, models.SketchRequest{
		StoryID:  payload.StoryID,
		Style:    payload.Style,
		Variants: payload.Variants,
		Prompt:   payload.Prompt,
	})
	elapsed = p.now().Sub(start)
	if genErr != nil {
		return failed(genErr)
	}

	if _, err := p.tracker.UpdateJobStatus(ctx, payload.SketchJobID, models.SketchStatusCompleted,
		status.WithAttempts(attempt),
		status.WithProvider(p.provider.Name()),
		status.WithCost(out.Cost),
		status.WithProcessingTime(elapsed),
	); err != nil {
		return failed(fmt.Errorf("mark completed: %w", err))
	}

	return models.JobResult{
		Success: true,
		Data:    out,
		Metadata: map[string]any{
			"provider":           p.provider.Name(),
			"cost":               out.Cost,
			"processing_time_ms": elapsed.Milliseconds(),
			"attempts":           attempt,
		},
	}, nil
}

// recordFailure marks the sketch job FAILED after its last attempt.
func (p *SketchProcessor) recordFailure(ctx context.Context, id string, attempt int, elapsed time.Duration, cause error, logger *slog.Logger) {
	_, err := p.tracker.UpdateJobStatus(ctx, id, models.SketchStatusFailed,
		status.WithAttempts(attempt),
		status.WithProvider(p.provider.Name()),
		status.WithProcessingTime(elapsed),
		status.WithError(cause.Error()),
	)
	switch {
	case errors.Is(err, status.ErrTerminalState):
		logger.Debug("sketch job already terminal, failure not recorded")
	case err != nil:
		logger.Error("failed to record sketch failure", "error", err)
	}
	logger.Error("sketch generation exhausted retries", "error", cause)
}

// SketchEnqueuer is the producer method the workflow uses.
type SketchEnqueuer interface {
	EnqueueSketchGeneration(ctx context.Context, payload models.SketchGenerationPayload, opts ...queue.Option) (string, error)
}

// SketchSubmission is a request to generate sketches for a story.
type SketchSubmission struct {
	StoryID  string `json:"story_id" validate:"required"`
	UserID   string `json:"user_id"  validate:"required"`
	Style    string `json:"style"    validate:"required"`
	Variants int    `json:"variants" validate:"omitempty,gte=1,lte=8"`
	Prompt   string `json:"prompt,omitempty"`
}

// SketchWorkflow ties quota, tracking and queueing together for a new
// sketch request.
type SketchWorkflow struct {
	tracker  Tracker
	producer SketchEnqueuer
	logger   *slog.Logger
}

func NewSketchWorkflow(t Tracker, p SketchEnqueuer, logger *slog.Logger) *SketchWorkflow {
	return &SketchWorkflow{tracker: t, producer: p, logger: logger.With("component", "sketch_workflow")}
}

// Submit reserves one sketch of the user's quota, records a PENDING sketch
// job and queues its generation. The reservation is returned if the job
// cannot be recorded or queued. The returned job is PENDING.
func (w *SketchWorkflow) Submit(ctx context.Context, req SketchSubmission) (*models.SketchGenerationJob, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", status.ErrInvalidArgument, err)
	}
	if req.Variants == 0 {
		req.Variants = 1
	}

	if _, err := w.tracker.ReserveUserQuota(ctx, req.UserID); err != nil {
		return nil, err
	}

	job, err := w.tracker.CreateJob(ctx, status.NewJob{
		StoryID:  req.StoryID,
		UserID:   req.UserID,
		Style:    req.Style,
		Variants: req.Variants,
	})
	if err != nil {
		w.release(ctx, req.UserID)
		return nil, err
	}

	queueID, err := w.producer.EnqueueSketchGeneration(ctx, models.SketchGenerationPayload{
		SketchJobID: job.ID,
		StoryID:     req.StoryID,
		UserID:      req.UserID,
		Style:       req.Style,
		Variants:    req.Variants,
		Prompt:      req.Prompt,
	})
	if err != nil {
		if _, uerr := w.tracker.UpdateJobStatus(ctx, job.ID, models.SketchStatusFailed, status.WithError(err.Error())); uerr != nil {
			w.logger.Error("failed to mark unqueued sketch job", "sketch_job_id", job.ID, "error", uerr)
		}
		w.release(ctx, req.UserID)
		return nil, fmt.Errorf("enqueue sketch generation: %w", err)
	}

	w.logger.Info("sketch submitted", "sketch_job_id", job.ID, "job_id", queueID, "user_id", req.UserID)
	return job, nil
}

func (w *SketchWorkflow) release(ctx context.Context, userID string) {
	if _, err := w.tracker.ReleaseUserQuota(ctx, userID); err != nil {
		w.logger.Error("failed to release sketch quota", "user_id", userID, "error", err)
	}
}
