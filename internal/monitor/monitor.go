// Package monitor aggregates queue and sketch status into read-only reports.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/kiranshivaraju/sketchforge/internal/cache"
	"github.com/kiranshivaraju/sketchforge/pkg/models"
)

// DefaultSnapshotTTL bounds how stale a cached report may be.
const DefaultSnapshotTTL = 5 * time.Second

// QueueReader is the read side of the queue facade.
type QueueReader interface {
	Mode() string
	GetAllStats(ctx context.Context) (map[models.JobType]models.QueueStats, error)
}

// SketchReader is the read side of the status tracker.
type SketchReader interface {
	GetQueueHealth(ctx context.Context) (models.SketchQueueHealth, error)
	GetJobsByStatus(ctx context.Context, s models.SketchStatus, limit int) ([]*models.SketchGenerationJob, error)
}

// failureSampleSize is how many recent failed sketch jobs feed TopFailures.
const failureSampleSize = 200

// Summary totals every job type.
type Summary struct {
	Mode         string  `json:"mode"`
	TotalJobs    int64   `json:"total_jobs"`
	Waiting      int64   `json:"waiting"`
	Delayed      int64   `json:"delayed"`
	Active       int64   `json:"active"`
	Completed    int64   `json:"completed"`
	Failed       int64   `json:"failed"`
	FailureRatio float64 `json:"failure_ratio"`

	// Healthy and Degraded count job types by label.
	Healthy  int `json:"healthy_types"`
	Degraded int `json:"degraded_types"`
}

type Dashboard struct {
	Health      models.QueueHealth                   `json:"health"`
	Stats       map[models.JobType]models.QueueStats `json:"stats"`
	Summary     Summary                              `json:"summary"`
	Sketches    *models.SketchQueueHealth            `json:"sketches,omitempty"`
	TopFailures []FailureGroup                       `json:"top_failures,omitempty"`
	GeneratedAt time.Time                            `json:"generated_at"`
}

// Monitor never mutates queue or status state. Reports are cached for ttl
// when a cache is configured.
type Monitor struct {
	queue    QueueReader
	sketches SketchReader
	cache    cache.Cache
	ttl      time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

type Option func(*Monitor)

func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(m *Monitor) {
		m.cache = c
		m.ttl = ttl
	}
}

func WithSketchReader(s SketchReader) Option {
	return func(m *Monitor) { m.sketches = s }
}

func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

func New(q QueueReader, logger *slog.Logger, opts ...Option) *Monitor {
	m := &Monitor{
		queue:  q,
		ttl:    DefaultSnapshotTTL,
		logger: logger.With("component", "monitor"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Health labels each job type healthy or degraded.
func (m *Monitor) Health(ctx context.Context) (models.QueueHealth, error) {
	var h models.QueueHealth
	err := m.cached(ctx, cache.HealthKey(), &h, func() (any, error) {
		stats, err := m.queue.GetAllStats(ctx)
		if err != nil {
			return nil, err
		}
		return models.NewQueueHealth(m.queue.Mode(), stats), nil
	})
	return h, err
}

// Dashboard returns health, per-type stats, summary totals and, when a sketch
// reader is configured, sketch backlog health and the largest groups of
// recent sketch failures.
func (m *Monitor) Dashboard(ctx context.Context) (Dashboard, error) {
	var d Dashboard
	err := m.cached(ctx, cache.DashboardKey(), &d, func() (any, error) {
		return m.buildDashboard(ctx)
	})
	return d, err
}

func (m *Monitor) buildDashboard(ctx context.Context) (Dashboard, error) {
	stats, err := m.queue.GetAllStats(ctx)
	if err != nil {
		return Dashboard{}, fmt.Errorf("queue stats: %w", err)
	}
	health := models.NewQueueHealth(m.queue.Mode(), stats)

	d := Dashboard{
		Health:      health,
		Stats:       stats,
		Summary:     summarize(health, stats),
		GeneratedAt: m.now().UTC(),
	}
	if m.sketches != nil {
		sh, err := m.sketches.GetQueueHealth(ctx)
		if err != nil {
			return Dashboard{}, fmt.Errorf("sketch health: %w", err)
		}
		d.Sketches = &sh

		failed, err := m.sketches.GetJobsByStatus(ctx, models.SketchStatusFailed, failureSampleSize)
		if err != nil {
			return Dashboard{}, fmt.Errorf("failed sketch jobs: %w", err)
		}
		groups := GroupFailures(failed)
		if len(groups) > MaxFailureGroups {
			groups = groups[:MaxFailureGroups]
		}
		d.TopFailures = groups
	}
	return d, nil
}

func summarize(health models.QueueHealth, stats map[models.JobType]models.QueueStats) Summary {
	s := Summary{Mode: health.Mode}
	var total models.QueueStats
	for _, st := range stats {
		total.Waiting += st.Waiting
		total.Delayed += st.Delayed
		total.Active += st.Active
		total.Completed += st.Completed
		total.Failed += st.Failed
	}
	s.Waiting = total.Waiting
	s.Delayed = total.Delayed
	s.Active = total.Active
	s.Completed = total.Completed
	s.Failed = total.Failed
	s.TotalJobs = total.Total()
	s.FailureRatio = total.FailureRatio()

	for _, th := range health.Queues {
		if th.Status == models.HealthDegraded {
			s.Degraded++
		} else {
			s.Healthy++
		}
	}
	return s
}

// cached decodes key into out, or calls build and stores its result. Cache
// errors are logged and never fail the report.
func (m *Monitor) cached(ctx context.Context, key string, out any, build func() (any, error)) error {
	if m.cache != nil {
		if raw, found, err := m.cache.Get(ctx, key); err != nil {
			m.logger.Warn("snapshot cache read failed", "key", key, "error", err)
		} else if found {
			if err := json.Unmarshal(raw, out); err == nil {
				return nil
			}
		}
	}

	v, err := build()
	if err != nil {
		return err
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if m.cache != nil {
		if err := m.cache.Set(ctx, key, raw, m.ttl); err != nil {
			m.logger.Warn("snapshot cache write failed", "key", key, "error", err)
		}
	}
	return json.Unmarshal(raw, out)
}
