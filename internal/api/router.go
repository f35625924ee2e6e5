package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	mw "github.com/kiranshivaraju/sketchforge/internal/api/middleware"
	"github.com/kiranshivaraju/sketchforge/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Logger    *slog.Logger
	Admin     *mw.AdminAuth
	RateLimit *mw.RateLimit

	HealthHandler    http.HandlerFunc
	DashboardHandler http.HandlerFunc
	AllStatsHandler  http.HandlerFunc
	StatsHandler     http.HandlerFunc
	ClearHandler     http.HandlerFunc

	SubmitSketchHandler http.HandlerFunc
	SketchStatsHandler  http.HandlerFunc
	SketchHealthHandler http.HandlerFunc
	SketchJobHandler    http.HandlerFunc
	JobsByUserHandler   http.HandlerFunc
	JobsByStoryHandler  http.HandlerFunc
	JobsByStatusHandler http.HandlerFunc
	QuotaHandler        http.HandlerFunc
	CleanupHandler      http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	admin := deps.Admin
	if admin == nil {
		admin = mw.NewAdminAuth("")
	}

	r := chi.NewRouter()

	r.Use(mw.RequestID)
	r.Use(mw.Logger(logger))
	r.Use(mw.Recovery(logger))
	if deps.RateLimit != nil {
		r.Use(deps.RateLimit.Limit)
	}

	r.Get("/queue/health", orNotImplemented(deps.HealthHandler))
	r.Get("/queue/dashboard", orNotImplemented(deps.DashboardHandler))
	r.Get("/queue/stats", orNotImplemented(deps.AllStatsHandler))
	r.Get("/queue/stats/{type}", orNotImplemented(deps.StatsHandler))

	r.Post("/queue/sketches", orNotImplemented(deps.SubmitSketchHandler))
	r.Get("/queue/sketches/stats", orNotImplemented(deps.SketchStatsHandler))
	r.Get("/queue/sketches/health", orNotImplemented(deps.SketchHealthHandler))
	r.Get("/queue/sketches/job/{jobID}", orNotImplemented(deps.SketchJobHandler))
	r.Get("/queue/sketches/jobs/user/{id}", orNotImplemented(deps.JobsByUserHandler))
	r.Get("/queue/sketches/jobs/story/{id}", orNotImplemented(deps.JobsByStoryHandler))
	r.Get("/queue/sketches/jobs/status/{id}", orNotImplemented(deps.JobsByStatusHandler))
	r.Get("/queue/sketches/quota/{userID}", orNotImplemented(deps.QuotaHandler))

	// Destructive routes
	r.Group(func(r chi.Router) {
		r.Use(admin.Require)

		r.Delete("/queue/clear/{type}", orNotImplemented(deps.ClearHandler))
		r.Post("/queue/sketches/cleanup", orNotImplemented(deps.CleanupHandler))
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
