package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/kiranshivaraju/sketchforge/internal/api/response"
	"github.com/kiranshivaraju/sketchforge/internal/monitor"
	"github.com/kiranshivaraju/sketchforge/pkg/models"
)

// QueueService is the facade surface the queue endpoints read and clear.
type QueueService interface {
	GetQueueStats(ctx context.Context, t models.JobType) (models.QueueStats, error)
	GetAllStats(ctx context.Context) (map[models.JobType]models.QueueStats, error)
	ClearQueue(ctx context.Context, t models.JobType) (int64, error)
}

// Monitor serves the aggregated health and dashboard views.
type Monitor interface {
	Health(ctx context.Context) (models.QueueHealth, error)
	Dashboard(ctx context.Context) (monitor.Dashboard, error)
}

// NewHealthHandler returns GET /queue/health.
func NewHealthHandler(m Monitor, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health, err := m.Health(r.Context())
		if err != nil {
			writeError(w, logger, err)
			return
		}
		response.JSON(w, health)
	}
}

// NewDashboardHandler returns GET /queue/dashboard.
func NewDashboardHandler(m Monitor, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, err := m.Dashboard(r.Context())
		if err != nil {
			writeError(w, logger, err)
			return
		}
		response.JSON(w, d)
	}
}

// NewAllStatsHandler returns GET /queue/stats.
func NewAllStatsHandler(q QueueService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := q.GetAllStats(r.Context())
		if err != nil {
			writeError(w, logger, err)
			return
		}
		response.JSON(w, stats)
	}
}

// NewStatsHandler returns GET /queue/stats/{type}.
func NewStatsHandler(q QueueService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := q.GetQueueStats(r.Context(), models.JobType(chi.URLParam(r, "type")))
		if err != nil {
			writeError(w, logger, err)
			return
		}
		response.JSON(w, stats)
	}
}

// NewClearHandler returns DELETE /queue/clear/{type}.
func NewClearHandler(q QueueService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t := models.JobType(chi.URLParam(r, "type"))
		n, err := q.ClearQueue(r.Context(), t)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		response.JSON(w, map[string]any{"type": t, "removed": n})
	}
}
