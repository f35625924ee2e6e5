package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kiranshivaraju/sketchforge/pkg/models"
)

// MemoryStore keeps records in process memory. Values are copied on the way
// in and out so callers never share state with the store.
type MemoryStore struct {
	mu     sync.RWMutex
	jobs   map[string]*models.SketchGenerationJob
	quotas map[string]*models.UserQuota
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:   make(map[string]*models.SketchGenerationJob),
		quotas: make(map[string]*models.UserQuota),
	}
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) CreateSketchJob(_ context.Context, job *models.SketchGenerationJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return ErrDuplicateKey
	}
	s.jobs[job.ID] = copyJob(job)
	return nil
}

func (s *MemoryStore) GetSketchJob(_ context.Context, id string) (*models.SketchGenerationJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyJob(j), nil
}

func (s *MemoryStore) SaveSketchJob(_ context.Context, job *models.SketchGenerationJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; !ok {
		return ErrNotFound
	}
	s.jobs[job.ID] = copyJob(job)
	return nil
}

func (s *MemoryStore) ListSketchJobs(_ context.Context, filter SketchJobFilter) ([]*models.SketchGenerationJob, error) {
	s.mu.RLock()
	out := make([]*models.SketchGenerationJob, 0)
	for _, j := range s.jobs {
		if filter.matches(j) {
			out = append(out, copyJob(j))
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(a, b int) bool {
		if out[a].CreatedAt.Equal(out[b].CreatedAt) {
			return out[a].ID > out[b].ID
		}
		return out[a].CreatedAt.After(out[b].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *MemoryStore) DeleteSketchJobsCompletedBefore(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, j := range s.jobs {
		if j.Status.Terminal() && j.CompletedAt != nil && j.CompletedAt.Before(cutoff) {
			delete(s.jobs, id)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) GetQuota(_ context.Context, userID string) (*models.UserQuota, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.quotas[userID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *q
	return &cp, nil
}

func (s *MemoryStore) SaveQuota(_ context.Context, quota *models.UserQuota) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *quota
	s.quotas[quota.UserID] = &cp
	return nil
}

func copyJob(j *models.SketchGenerationJob) *models.SketchGenerationJob {
	cp := *j
	if j.StartedAt != nil {
		t := *j.StartedAt
		cp.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		cp.CompletedAt = &t
	}
	if j.Error != nil {
		e := *j.Error
		cp.Error = &e
	}
	return &cp
}
