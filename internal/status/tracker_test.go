package status_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/kiranshivaraju/sketchforge/internal/status"
	"github.com/kiranshivaraju/sketchforge/internal/store"
	"github.com/kiranshivaraju/sketchforge/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTracker(t *testing.T) (*status.Tracker, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tr := status.NewTracker(store.NewMemoryStore(), logger,
		status.WithClock(clock.Now),
		status.WithQuotaLimits(3, 5))
	return tr, clock
}

func createJob(t *testing.T, tr *status.Tracker, user, story string) *models.SketchGenerationJob {
	t.Helper()
	job, err := tr.CreateJob(context.Background(), status.NewJob{StoryID: story, UserID: user, Style: "pencil", Variants: 2})
	require.NoError(t, err)
	return job
}

// --- Lifecycle ---

func TestCreateJob_StartsPending(t *testing.T) {
	tr, clock := newTracker(t)
	job := createJob(t, tr, "u-1", "st-1")

	assert.NotEmpty(t, job.ID)
	assert.Equal(t, models.SketchStatusPending, job.Status)
	assert.Equal(t, clock.Now(), job.CreatedAt)
	assert.Nil(t, job.StartedAt)

	_, err := tr.CreateJob(context.Background(), status.NewJob{StoryID: "st-1"})
	assert.ErrorIs(t, err, status.ErrInvalidArgument)
}

func TestUpdateJobStatus_StartedAtStampedOnce(t *testing.T) {
	tr, clock := newTracker(t)
	ctx := context.Background()
	job := createJob(t, tr, "u-1", "st-1")

	clock.Advance(2 * time.Second)
	first, err := tr.UpdateJobStatus(ctx, job.ID, models.SketchStatusProcessing)
	require.NoError(t, err)
	require.NotNil(t, first.StartedAt)
	startedAt := *first.StartedAt

	clock.Advance(10 * time.Second)
	again, err := tr.UpdateJobStatus(ctx, job.ID, models.SketchStatusProcessing, status.WithAttempts(2))
	require.NoError(t, err)
	assert.Equal(t, startedAt, *again.StartedAt)
	assert.Equal(t, 2, again.Metadata.Attempts)
}

func TestUpdateJobStatus_CompleteFreezesJob(t *testing.T) {
	tr, clock := newTracker(t)
	ctx := context.Background()
	job := createJob(t, tr, "u-1", "st-1")

	_, err := tr.UpdateJobStatus(ctx, job.ID, models.SketchStatusProcessing)
	require.NoError(t, err)
	clock.Advance(3 * time.Second)
	done, err := tr.UpdateJobStatus(ctx, job.ID, models.SketchStatusCompleted,
		status.WithProvider("mock"),
		status.WithCost(0.08),
		status.WithProcessingTime(3*time.Second),
		status.WithAttempts(1))
	require.NoError(t, err)
	require.NotNil(t, done.CompletedAt)
	assert.Equal(t, clock.Now(), *done.CompletedAt)
	assert.Equal(t, int64(3000), done.Metadata.ProcessingTimeMs)

	_, err = tr.UpdateJobStatus(ctx, job.ID, models.SketchStatusFailed, status.WithCost(99))
	assert.ErrorIs(t, err, status.ErrTerminalState)

	stored, err := tr.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SketchStatusCompleted, stored.Status)
	assert.InDelta(t, 0.08, stored.Metadata.Cost, 1e-9)
}

func TestUpdateJobStatus_Transitions(t *testing.T) {
	tests := []struct {
		name    string
		path    []models.SketchStatus
		wantErr error
	}{
		{"pending to processing", []models.SketchStatus{models.SketchStatusProcessing}, nil},
		{"pending to failed", []models.SketchStatus{models.SketchStatusFailed}, nil},
		{"pending to cancelled", []models.SketchStatus{models.SketchStatusCancelled}, nil},
		{"processing to cancelled", []models.SketchStatus{models.SketchStatusProcessing, models.SketchStatusCancelled}, nil},
		{"pending to completed", []models.SketchStatus{models.SketchStatusCompleted}, status.ErrInvalidTransition},
		{"back to pending", []models.SketchStatus{models.SketchStatusProcessing, models.SketchStatusPending}, status.ErrInvalidTransition},
		{"cancelled is terminal", []models.SketchStatus{models.SketchStatusCancelled, models.SketchStatusProcessing}, status.ErrTerminalState},
		{"failed is terminal", []models.SketchStatus{models.SketchStatusFailed, models.SketchStatusFailed}, status.ErrTerminalState},
		{"unknown status", []models.SketchStatus{"exploded"}, status.ErrInvalidTransition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, _ := newTracker(t)
			job := createJob(t, tr, "u-1", "st-1")
			var err error
			for _, s := range tt.path {
				_, err = tr.UpdateJobStatus(context.Background(), job.ID, s)
			}
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestUpdateJobStatus_FailureRecordsAttemptsAndError(t *testing.T) {
	tr, _ := newTracker(t)
	ctx := context.Background()
	job := createJob(t, tr, "u-1", "st-1")

	_, err := tr.UpdateJobStatus(ctx, job.ID, models.SketchStatusProcessing)
	require.NoError(t, err)
	failed, err := tr.UpdateJobStatus(ctx, job.ID, models.SketchStatusFailed, status.WithAttempts(3), status.WithError("provider unavailable"))
	require.NoError(t, err)

	assert.Equal(t, 3, failed.Metadata.Attempts)
	require.NotNil(t, failed.Error)
	assert.Equal(t, "provider unavailable", *failed.Error)
}

func TestGetJob_NotFound(t *testing.T) {
	tr, _ := newTracker(t)
	_, err := tr.GetJob(context.Background(), "nope")
	assert.ErrorIs(t, err, status.ErrNotFound)

	_, err = tr.UpdateJobStatus(context.Background(), "nope", models.SketchStatusProcessing)
	assert.ErrorIs(t, err, status.ErrNotFound)
}

// --- Queries ---

func TestGetJobsBy_NewestFirstWithLimit(t *testing.T) {
	tr, clock := newTracker(t)
	ctx := context.Background()
	a := createJob(t, tr, "u-1", "st-1")
	clock.Advance(time.Second)
	b := createJob(t, tr, "u-1", "st-2")
	clock.Advance(time.Second)
	c := createJob(t, tr, "u-2", "st-1")

	byUser, err := tr.GetJobsByUser(ctx, "u-1", 0)
	require.NoError(t, err)
	require.Len(t, byUser, 2)
	assert.Equal(t, b.ID, byUser[0].ID)
	assert.Equal(t, a.ID, byUser[1].ID)

	byStory, err := tr.GetJobsByStory(ctx, "st-1", 1)
	require.NoError(t, err)
	require.Len(t, byStory, 1)
	assert.Equal(t, c.ID, byStory[0].ID)

	_, err = tr.UpdateJobStatus(ctx, a.ID, models.SketchStatusProcessing)
	require.NoError(t, err)
	byStatus, err := tr.GetJobsByStatus(ctx, models.SketchStatusPending, 10)
	require.NoError(t, err)
	assert.Len(t, byStatus, 2)

	_, err = tr.GetJobsByStatus(ctx, "bogus", 10)
	assert.ErrorIs(t, err, status.ErrInvalidArgument)
}

func TestGetStatistics(t *testing.T) {
	tr, clock := newTracker(t)
	ctx := context.Background()

	// Outside the hour window.
	old := createJob(t, tr, "u-1", "st-0")
	_, err := tr.UpdateJobStatus(ctx, old.ID, models.SketchStatusFailed)
	require.NoError(t, err)
	clock.Advance(2 * time.Hour)

	for i, ms := range []time.Duration{2 * time.Second, 4 * time.Second} {
		j := createJob(t, tr, "u-1", "st-1")
		_, err := tr.UpdateJobStatus(ctx, j.ID, models.SketchStatusProcessing)
		require.NoError(t, err)
		_, err = tr.UpdateJobStatus(ctx, j.ID, models.SketchStatusCompleted,
			status.WithProcessingTime(ms), status.WithCost(0.5*float64(i+1)))
		require.NoError(t, err)
	}
	f := createJob(t, tr, "u-1", "st-1")
	_, err = tr.UpdateJobStatus(ctx, f.ID, models.SketchStatusFailed, status.WithCost(0.25))
	require.NoError(t, err)
	createJob(t, tr, "u-1", "st-1")

	hour, err := tr.GetStatistics(ctx, "hour")
	require.NoError(t, err)
	assert.Equal(t, 4, hour.Total)
	assert.Equal(t, 2, hour.ByStatus[models.SketchStatusCompleted])
	assert.Equal(t, 1, hour.ByStatus[models.SketchStatusFailed])
	assert.Equal(t, 1, hour.ByStatus[models.SketchStatusPending])
	assert.Equal(t, 0, hour.ByStatus[models.SketchStatusCancelled])
	assert.InDelta(t, 3000, hour.AverageProcessingTimeMs, 1e-9)
	assert.InDelta(t, 1.75, hour.TotalCost, 1e-9)
	assert.InDelta(t, 2.0/3.0, hour.SuccessRate, 1e-9)

	all, err := tr.GetStatistics(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 5, all.Total)
	assert.Equal(t, "all", all.Timeframe)

	_, err = tr.GetStatistics(ctx, "decade")
	assert.ErrorIs(t, err, status.ErrInvalidTimeframe)
}

func TestGetQueueHealth(t *testing.T) {
	tr, clock := newTracker(t)
	ctx := context.Background()

	oldest := createJob(t, tr, "u-1", "st-1")
	_ = oldest
	clock.Advance(time.Minute)
	createJob(t, tr, "u-1", "st-2")

	running := createJob(t, tr, "u-1", "st-3")
	clock.Advance(10 * time.Second)
	_, err := tr.UpdateJobStatus(ctx, running.ID, models.SketchStatusProcessing)
	require.NoError(t, err)

	done := createJob(t, tr, "u-1", "st-4")
	clock.Advance(20 * time.Second)
	_, err = tr.UpdateJobStatus(ctx, done.ID, models.SketchStatusProcessing)
	require.NoError(t, err)
	_, err = tr.UpdateJobStatus(ctx, done.ID, models.SketchStatusCompleted)
	require.NoError(t, err)

	h, err := tr.GetQueueHealth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, h.Pending)
	assert.Equal(t, 1, h.Processing)
	assert.Equal(t, 3, h.QueueLength)
	assert.Equal(t, int64(90_000), h.OldestPendingAgeMs)
	assert.InDelta(t, 20_000, h.AverageWaitTimeMs, 1e-9)
	assert.Equal(t, 0.0, h.FailureRate)
	assert.Equal(t, models.HealthHealthy, h.Status)

	bad := createJob(t, tr, "u-1", "st-5")
	_, err = tr.UpdateJobStatus(ctx, bad.ID, models.SketchStatusFailed)
	require.NoError(t, err)

	h, err = tr.GetQueueHealth(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, h.FailureRate, 1e-9)
	assert.Equal(t, models.HealthDegraded, h.Status)

	// Completions older than the window drop out.
	clock.Advance(2 * time.Hour)
	h, err = tr.GetQueueHealth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0.0, h.FailureRate)
	assert.Equal(t, models.HealthHealthy, h.Status)
}

// --- Cleanup ---

func TestCleanupOldJobs_Idempotent(t *testing.T) {
	tr, clock := newTracker(t)
	ctx := context.Background()

	old := createJob(t, tr, "u-1", "st-1")
	_, err := tr.UpdateJobStatus(ctx, old.ID, models.SketchStatusFailed)
	require.NoError(t, err)
	stale := createJob(t, tr, "u-1", "st-2")

	clock.Advance(31 * 24 * time.Hour)
	recent := createJob(t, tr, "u-1", "st-3")
	_, err = tr.UpdateJobStatus(ctx, recent.ID, models.SketchStatusCancelled)
	require.NoError(t, err)

	n, err := tr.CleanupOldJobs(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = tr.CleanupOldJobs(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// Non-terminal jobs survive regardless of age.
	_, err = tr.GetJob(ctx, stale.ID)
	assert.NoError(t, err)

	_, err = tr.CleanupOldJobs(ctx, 0)
	assert.ErrorIs(t, err, status.ErrInvalidArgument)
}
