package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/kiranshivaraju/sketchforge/internal/api/response"
	"github.com/kiranshivaraju/sketchforge/internal/processor"
	"github.com/kiranshivaraju/sketchforge/internal/status"
	"github.com/kiranshivaraju/sketchforge/pkg/models"
)

const defaultCleanupDays = 30

// SketchService is the read and maintenance surface of the sketch tracker.
type SketchService interface {
	GetStatistics(ctx context.Context, timeframe string) (models.SketchStatistics, error)
	GetQueueHealth(ctx context.Context) (models.SketchQueueHealth, error)
	GetJob(ctx context.Context, id string) (*models.SketchGenerationJob, error)
	GetJobsByUser(ctx context.Context, userID string, limit int) ([]*models.SketchGenerationJob, error)
	GetJobsByStory(ctx context.Context, storyID string, limit int) ([]*models.SketchGenerationJob, error)
	GetJobsByStatus(ctx context.Context, s models.SketchStatus, limit int) ([]*models.SketchGenerationJob, error)
	CheckUserQuota(ctx context.Context, userID string) (models.QuotaCheck, error)
	CleanupOldJobs(ctx context.Context, olderThanDays int) (int, error)
}

// SketchSubmitter starts the sketch workflow.
type SketchSubmitter interface {
	Submit(ctx context.Context, req processor.SketchSubmission) (*models.SketchGenerationJob, error)
}

// NewSubmitSketchHandler returns POST /queue/sketches.
func NewSubmitSketchHandler(svc SketchSubmitter, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req processor.SketchSubmission
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			badRequest(w, "Invalid JSON body", nil)
			return
		}
		job, err := svc.Submit(r.Context(), req)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		response.Accepted(w, job)
	}
}

// NewSketchStatsHandler returns GET /queue/sketches/stats?timeframe=.
func NewSketchStatsHandler(svc SketchService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := svc.GetStatistics(r.Context(), r.URL.Query().Get("timeframe"))
		if err != nil {
			writeError(w, logger, err)
			return
		}
		response.JSON(w, stats)
	}
}

// NewSketchHealthHandler returns GET /queue/sketches/health.
func NewSketchHealthHandler(svc SketchService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h, err := svc.GetQueueHealth(r.Context())
		if err != nil {
			writeError(w, logger, err)
			return
		}
		response.JSON(w, h)
	}
}

// NewSketchJobHandler returns GET /queue/sketches/job/{jobID}.
func NewSketchJobHandler(svc SketchService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := svc.GetJob(r.Context(), chi.URLParam(r, "jobID"))
		if err != nil {
			writeError(w, logger, err)
			return
		}
		response.JSON(w, job)
	}
}

// Sketch job list filters.
const (
	ByUser   = "user"
	ByStory  = "story"
	ByStatus = "status"
)

// NewSketchJobsHandler returns GET /queue/sketches/jobs/{by}/{id}?limit=.
func NewSketchJobsHandler(svc SketchService, by string, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, ok := intParam(w, r, "limit", 0)
		if !ok {
			return
		}
		id := chi.URLParam(r, "id")

		var (
			jobs []*models.SketchGenerationJob
			err  error
		)
		switch by {
		case ByUser:
			jobs, err = svc.GetJobsByUser(r.Context(), id, limit)
		case ByStory:
			jobs, err = svc.GetJobsByStory(r.Context(), id, limit)
		case ByStatus:
			jobs, err = svc.GetJobsByStatus(r.Context(), models.SketchStatus(id), limit)
		default:
			badRequest(w, "Unknown job filter", map[string]string{"by": by})
			return
		}
		if err != nil {
			writeError(w, logger, err)
			return
		}
		if jobs == nil {
			jobs = []*models.SketchGenerationJob{}
		}
		response.List(w, jobs, response.ListMeta{Count: len(jobs), Limit: status.NormalizeLimit(limit)})
	}
}

// NewQuotaHandler returns GET /queue/sketches/quota/{userID}.
func NewQuotaHandler(svc SketchService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		check, err := svc.CheckUserQuota(r.Context(), chi.URLParam(r, "userID"))
		if err != nil {
			writeError(w, logger, err)
			return
		}
		response.JSON(w, check)
	}
}

// NewCleanupHandler returns POST /queue/sketches/cleanup?days=.
func NewCleanupHandler(svc SketchService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		days, ok := intParam(w, r, "days", defaultCleanupDays)
		if !ok {
			return
		}
		if days < 1 {
			badRequest(w, "days must be at least 1", map[string]int{"days": days})
			return
		}
		n, err := svc.CleanupOldJobs(r.Context(), days)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		response.JSON(w, map[string]int{"removed": n, "days": days})
	}
}

// intParam reads an optional integer query parameter, writing a 400 when it
// is present but malformed.
func intParam(w http.ResponseWriter, r *http.Request, name string, def int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		badRequest(w, name+" must be an integer", map[string]string{name: raw})
		return 0, false
	}
	return v, true
}
