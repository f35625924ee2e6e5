package store

import (
	"context"
	"errors"
	"time"

	"github.com/kiranshivaraju/sketchforge/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// Store persists sketch jobs and user quotas. Implementations must be safe for
// concurrent use; read-modify-write sequences are serialised by the caller.
type Store interface {
	Ping(ctx context.Context) error

	CreateSketchJob(ctx context.Context, job *models.SketchGenerationJob) error
	GetSketchJob(ctx context.Context, id string) (*models.SketchGenerationJob, error)
	SaveSketchJob(ctx context.Context, job *models.SketchGenerationJob) error
	ListSketchJobs(ctx context.Context, filter SketchJobFilter) ([]*models.SketchGenerationJob, error)
	DeleteSketchJobsCompletedBefore(ctx context.Context, cutoff time.Time) (int, error)

	GetQuota(ctx context.Context, userID string) (*models.UserQuota, error)
	SaveQuota(ctx context.Context, quota *models.UserQuota) error
}

// SketchJobFilter narrows ListSketchJobs. Zero fields match everything.
// Results are ordered newest first.
type SketchJobFilter struct {
	UserID         string
	StoryID        string
	Status         models.SketchStatus
	CreatedAfter   time.Time
	CompletedAfter time.Time
	Limit          int
}

func (f SketchJobFilter) matches(j *models.SketchGenerationJob) bool {
	if f.UserID != "" && j.UserID != f.UserID {
		return false
	}
	if f.StoryID != "" && j.StoryID != f.StoryID {
		return false
	}
	if f.Status != "" && j.Status != f.Status {
		return false
	}
	if !f.CreatedAfter.IsZero() && j.CreatedAt.Before(f.CreatedAfter) {
		return false
	}
	if !f.CompletedAfter.IsZero() && (j.CompletedAt == nil || j.CompletedAt.Before(f.CompletedAfter)) {
		return false
	}
	return true
}
