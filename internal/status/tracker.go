// Package status tracks the lifecycle of sketch generation jobs and per-user
// quotas. It does not depend on the queue: handlers report into it.
package status

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/sketchforge/internal/store"
	"github.com/kiranshivaraju/sketchforge/pkg/models"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// CANCELLED is reachable but nothing in the system requests it.
var validTransitions = map[models.SketchStatus][]models.SketchStatus{
	models.SketchStatusPending: {
		models.SketchStatusProcessing,
		models.SketchStatusFailed,
		models.SketchStatusCancelled,
	},
	models.SketchStatusProcessing: {
		models.SketchStatusProcessing,
		models.SketchStatusCompleted,
		models.SketchStatusFailed,
		models.SketchStatusCancelled,
	},
}

// Tracker is the only mutator of sketch jobs and quotas. mu serialises every
// read-modify-write so concurrent handlers cannot lose updates.
type Tracker struct {
	store        store.Store
	logger       *slog.Logger
	now          func() time.Time
	dailyLimit   int
	monthlyLimit int

	mu sync.Mutex
}

type Option func(*Tracker)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithQuotaLimits sets the limits given to quotas created on first use.
func WithQuotaLimits(daily, monthly int) Option {
	return func(t *Tracker) {
		t.dailyLimit = daily
		t.monthlyLimit = monthly
	}
}

func NewTracker(s store.Store, logger *slog.Logger, opts ...Option) *Tracker {
	t := &Tracker{
		store:        s,
		logger:       logger.With("component", "status"),
		now:          time.Now,
		dailyLimit:   10,
		monthlyLimit: 100,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// NewJob describes a sketch request to be tracked.
type NewJob struct {
	StoryID  string
	UserID   string
	Style    string
	Variants int
}

// CreateJob records a PENDING sketch job and returns it.
func (t *Tracker) CreateJob(ctx context.Context, req NewJob) (*models.SketchGenerationJob, error) {
	if req.StoryID == "" || req.UserID == "" {
		return nil, fmt.Errorf("%w: story and user are required", ErrInvalidArgument)
	}
	if req.Variants <= 0 {
		req.Variants = 1
	}
	job := &models.SketchGenerationJob{
		ID:        uuid.NewString(),
		StoryID:   req.StoryID,
		UserID:    req.UserID,
		Status:    models.SketchStatusPending,
		Style:     req.Style,
		Variants:  req.Variants,
		CreatedAt: t.now().UTC(),
	}
	if err := t.store.CreateSketchJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create sketch job: %w", err)
	}
	t.logger.Info("sketch job created", "sketch_job_id", job.ID, "user_id", job.UserID, "story_id", job.StoryID)
	return job, nil
}

type update struct {
	provider         *string
	cost             *float64
	processingTimeMs *int64
	attempts         *int
	errMsg           *string
}

// UpdateOption patches metadata or the error message within UpdateJobStatus.
type UpdateOption func(*update)

func WithProvider(name string) UpdateOption {
	return func(u *update) { u.provider = &name }
}

func WithCost(cost float64) UpdateOption {
	return func(u *update) { u.cost = &cost }
}

func WithProcessingTime(d time.Duration) UpdateOption {
	return func(u *update) {
		ms := d.Milliseconds()
		u.processingTimeMs = &ms
	}
}

func WithAttempts(n int) UpdateOption {
	return func(u *update) { u.attempts = &n }
}

func WithError(msg string) UpdateOption {
	return func(u *update) { u.errMsg = &msg }
}

// UpdateJobStatus moves job id to status and applies opts. Jobs in a terminal
// state are never modified. Entering PROCESSING stamps StartedAt only once;
// entering a terminal state stamps CompletedAt.
func (t *Tracker) UpdateJobStatus(ctx context.Context, id string, status models.SketchStatus, opts ...UpdateOption) (*models.SketchGenerationJob, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, status)
	}
	u := &update{}
	for _, opt := range opts {
		opt(u)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	job, err := t.store.GetSketchJob(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get sketch job %s: %w", id, err)
	}
	if job.Status.Terminal() {
		return nil, fmt.Errorf("%w: %s is %s", ErrTerminalState, id, job.Status)
	}
	if !allowed(job.Status, status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, job.Status, status)
	}

	now := t.now().UTC()
	job.Status = status
	if status == models.SketchStatusProcessing && job.StartedAt == nil {
		job.StartedAt = &now
	}
	if status.Terminal() {
		job.CompletedAt = &now
	}

	if u.provider != nil {
		job.Metadata.Provider = *u.provider
	}
	if u.cost != nil {
		job.Metadata.Cost = *u.cost
	}
	if u.processingTimeMs != nil {
		job.Metadata.ProcessingTimeMs = *u.processingTimeMs
	}
	if u.attempts != nil {
		job.Metadata.Attempts = *u.attempts
	}
	if u.errMsg != nil {
		job.Error = u.errMsg
	}

	if err := t.store.SaveSketchJob(ctx, job); err != nil {
		return nil, fmt.Errorf("save sketch job %s: %w", id, err)
	}
	t.logger.Debug("sketch job status updated", "sketch_job_id", id, "status", status)
	return job, nil
}

func allowed(from, to models.SketchStatus) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func (t *Tracker) GetJob(ctx context.Context, id string) (*models.SketchGenerationJob, error) {
	job, err := t.store.GetSketchJob(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get sketch job %s: %w", id, err)
	}
	return job, nil
}

func (t *Tracker) GetJobsByUser(ctx context.Context, userID string, limit int) ([]*models.SketchGenerationJob, error) {
	return t.list(ctx, store.SketchJobFilter{UserID: userID, Limit: NormalizeLimit(limit)})
}

func (t *Tracker) GetJobsByStory(ctx context.Context, storyID string, limit int) ([]*models.SketchGenerationJob, error) {
	return t.list(ctx, store.SketchJobFilter{StoryID: storyID, Limit: NormalizeLimit(limit)})
}

func (t *Tracker) GetJobsByStatus(ctx context.Context, status models.SketchStatus, limit int) ([]*models.SketchGenerationJob, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidArgument, status)
	}
	return t.list(ctx, store.SketchJobFilter{Status: status, Limit: NormalizeLimit(limit)})
}

func (t *Tracker) list(ctx context.Context, f store.SketchJobFilter) ([]*models.SketchGenerationJob, error) {
	jobs, err := t.store.ListSketchJobs(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list sketch jobs: %w", err)
	}
	return jobs, nil
}

// NormalizeLimit applies the default and maximum list sizes.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}

// CleanupOldJobs deletes terminal jobs completed more than olderThanDays ago.
func (t *Tracker) CleanupOldJobs(ctx context.Context, olderThanDays int) (int, error) {
	if olderThanDays < 1 {
		return 0, fmt.Errorf("%w: days must be at least 1", ErrInvalidArgument)
	}
	cutoff := t.now().UTC().AddDate(0, 0, -olderThanDays)

	t.mu.Lock()
	defer t.mu.Unlock()
	n, err := t.store.DeleteSketchJobsCompletedBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup sketch jobs: %w", err)
	}
	t.logger.Info("old sketch jobs removed", "removed", n, "cutoff", cutoff)
	return n, nil
}
