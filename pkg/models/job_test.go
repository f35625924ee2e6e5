package models_test

import (
	"testing"
	"time"

	"github.com/kiranshivaraju/sketchforge/pkg/models"
	"github.com/stretchr/testify/assert"
)

func TestBackoffDelay_Fixed(t *testing.T) {
	opts := models.JobOptions{Backoff: models.Backoff{Type: models.BackoffFixed, Delay: 10 * time.Second}}

	for attempt := 1; attempt <= 4; attempt++ {
		assert.Equal(t, 10*time.Second, opts.BackoffDelay(attempt))
	}
}

func TestBackoffDelay_Exponential(t *testing.T) {
	opts := models.JobOptions{Backoff: models.Backoff{Type: models.BackoffExponential, Delay: 5 * time.Second}}

	assert.Equal(t, 5*time.Second, opts.BackoffDelay(1))
	assert.Equal(t, 10*time.Second, opts.BackoffDelay(2))
	assert.Equal(t, 20*time.Second, opts.BackoffDelay(3))
}

func TestBackoffDelay_ZeroDelay(t *testing.T) {
	opts := models.JobOptions{Backoff: models.Backoff{Type: models.BackoffExponential}}
	assert.Equal(t, time.Duration(0), opts.BackoffDelay(3))
}

func TestJob_IsFinalAttempt(t *testing.T) {
	job := &models.Job{Options: models.JobOptions{Attempts: 3}}

	job.AttemptsMade = 0
	assert.False(t, job.IsFinalAttempt())
	job.AttemptsMade = 2
	assert.True(t, job.IsFinalAttempt())
}

func TestQueueStats_HealthLabel(t *testing.T) {
	tests := []struct {
		name      string
		completed int64
		failed    int64
		want      string
	}{
		{"empty queue", 0, 0, models.HealthHealthy},
		{"no failures", 50, 0, models.HealthHealthy},
		// 10 / (89 + 10 + 1) = 0.10 exactly, not above the threshold
		{"at threshold", 89, 10, models.HealthHealthy},
		{"above threshold", 80, 10, models.HealthDegraded},
		{"single failure", 0, 1, models.HealthDegraded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := models.QueueStats{Completed: tt.completed, Failed: tt.failed}
			assert.Equal(t, tt.want, s.HealthLabel())
		})
	}
}

func TestJobType_Valid(t *testing.T) {
	for _, jt := range models.AllJobTypes() {
		assert.True(t, jt.Valid(), jt)
	}
	assert.False(t, models.JobType("video-render").Valid())
}

func TestSketchStatus_Terminal(t *testing.T) {
	assert.False(t, models.SketchStatusPending.Terminal())
	assert.False(t, models.SketchStatusProcessing.Terminal())
	assert.True(t, models.SketchStatusCompleted.Terminal())
	assert.True(t, models.SketchStatusFailed.Terminal())
	assert.True(t, models.SketchStatusCancelled.Terminal())
}

func TestNewQueueHealth(t *testing.T) {
	stats := map[models.JobType]models.QueueStats{
		models.JobTypeEmailNotification: {Type: models.JobTypeEmailNotification, Completed: 100, Failed: 1},
		models.JobTypeSketchGeneration:  {Type: models.JobTypeSketchGeneration, Completed: 2, Failed: 3},
	}

	h := models.NewQueueHealth("fallback", stats)

	assert.Equal(t, models.HealthDegraded, h.Status)
	assert.Equal(t, "fallback", h.Mode)
	assert.Equal(t, models.HealthHealthy, h.Queues[models.JobTypeEmailNotification].Status)
	assert.Equal(t, models.HealthDegraded, h.Queues[models.JobTypeSketchGeneration].Status)
	assert.InDelta(t, 0.5, h.Queues[models.JobTypeSketchGeneration].FailureRatio, 1e-9)
}

func TestNewQueueHealth_AllHealthy(t *testing.T) {
	h := models.NewQueueHealth("durable", map[models.JobType]models.QueueStats{
		models.JobTypePaymentProcessing: {Completed: 10},
	})
	assert.Equal(t, models.HealthHealthy, h.Status)
}
