package status

import (
	"context"
	"fmt"
	"time"

	"github.com/kiranshivaraju/sketchforge/internal/store"
	"github.com/kiranshivaraju/sketchforge/pkg/models"
)

// healthWindow is the rolling window of completions used by GetQueueHealth.
const healthWindow = time.Hour

// GetStatistics summarises jobs created within timeframe: "hour", "day",
// "week", "month" or "" for all time.
func (t *Tracker) GetStatistics(ctx context.Context, timeframe string) (models.SketchStatistics, error) {
	since, err := t.since(timeframe)
	if err != nil {
		return models.SketchStatistics{}, err
	}
	jobs, err := t.store.ListSketchJobs(ctx, store.SketchJobFilter{CreatedAfter: since})
	if err != nil {
		return models.SketchStatistics{}, fmt.Errorf("list sketch jobs: %w", err)
	}

	stats := models.SketchStatistics{
		Timeframe: timeframe,
		Total:     len(jobs),
		ByStatus:  make(map[models.SketchStatus]int, len(models.AllSketchStatuses())),
	}
	if stats.Timeframe == "" {
		stats.Timeframe = "all"
	}
	for _, s := range models.AllSketchStatuses() {
		stats.ByStatus[s] = 0
	}

	var (
		timed   int
		totalMs int64
	)
	for _, j := range jobs {
		stats.ByStatus[j.Status]++
		stats.TotalCost += j.Metadata.Cost
		if j.Status == models.SketchStatusCompleted && j.Metadata.ProcessingTimeMs > 0 {
			timed++
			totalMs += j.Metadata.ProcessingTimeMs
		}
	}
	if timed > 0 {
		stats.AverageProcessingTimeMs = float64(totalMs) / float64(timed)
	}
	completed := stats.ByStatus[models.SketchStatusCompleted]
	failed := stats.ByStatus[models.SketchStatusFailed]
	if completed+failed > 0 {
		stats.SuccessRate = float64(completed) / float64(completed+failed)
	}
	return stats, nil
}

func (t *Tracker) since(timeframe string) (time.Time, error) {
	now := t.now().UTC()
	switch timeframe {
	case "":
		return time.Time{}, nil
	case "hour":
		return now.Add(-time.Hour), nil
	case "day":
		return now.AddDate(0, 0, -1), nil
	case "week":
		return now.AddDate(0, 0, -7), nil
	case "month":
		return now.AddDate(0, -1, 0), nil
	default:
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimeframe, timeframe)
	}
}

// GetQueueHealth reports the sketch backlog and outcomes of the last hour.
func (t *Tracker) GetQueueHealth(ctx context.Context) (models.SketchQueueHealth, error) {
	now := t.now().UTC()

	pending, err := t.store.ListSketchJobs(ctx, store.SketchJobFilter{Status: models.SketchStatusPending})
	if err != nil {
		return models.SketchQueueHealth{}, fmt.Errorf("list pending: %w", err)
	}
	processing, err := t.store.ListSketchJobs(ctx, store.SketchJobFilter{Status: models.SketchStatusProcessing})
	if err != nil {
		return models.SketchQueueHealth{}, fmt.Errorf("list processing: %w", err)
	}
	recent, err := t.store.ListSketchJobs(ctx, store.SketchJobFilter{CompletedAfter: now.Add(-healthWindow)})
	if err != nil {
		return models.SketchQueueHealth{}, fmt.Errorf("list recent: %w", err)
	}

	h := models.SketchQueueHealth{
		Status:      models.HealthHealthy,
		Pending:     len(pending),
		Processing:  len(processing),
		QueueLength: len(pending) + len(processing),
	}

	// Lists are newest first, so the oldest pending job is last.
	if n := len(pending); n > 0 {
		h.OldestPendingAgeMs = now.Sub(pending[n-1].CreatedAt).Milliseconds()
	}

	var (
		waited    int
		waitMs    int64
		completed int
		failed    int
	)
	for _, j := range recent {
		switch j.Status {
		case models.SketchStatusCompleted:
			completed++
		case models.SketchStatusFailed:
			failed++
		}
		if j.StartedAt != nil {
			waited++
			waitMs += j.StartedAt.Sub(j.CreatedAt).Milliseconds()
		}
	}
	if waited > 0 {
		h.AverageWaitTimeMs = float64(waitMs) / float64(waited)
	}
	if completed+failed > 0 {
		h.FailureRate = float64(failed) / float64(completed+failed)
	}
	if h.FailureRate > models.DegradedThreshold {
		h.Status = models.HealthDegraded
	}
	return h, nil
}
