// Package memq is the in-process fallback scheduler used when the queue
// broker is unreachable at startup. Jobs live only in memory and are lost on
// restart.
//
// Dequeue order is strict priority then FIFO. There is no aging, so a steady
// stream of high-priority jobs starves lower priorities indefinitely.
package memq

import (
	"container/heap"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kiranshivaraju/sketchforge/pkg/models"
	"golang.org/x/sync/semaphore"
)

const mode = "fallback"

// Config controls the tick loop.
type Config struct {
	// TickInterval is how often waiting jobs are selected. Defaults to 1s.
	TickInterval time.Duration
	// BatchSize caps jobs started per tick. Defaults to 5.
	BatchSize int
	// Retention is how long finished jobs stay visible. Defaults to 5m.
	Retention time.Duration
	// Concurrency caps in-flight handlers per job type. Missing types get 1.
	Concurrency map[models.JobType]int
}

// Scheduler is a single tick loop over an in-memory heap. All state is
// guarded by mu; handlers run on their own goroutines.
type Scheduler struct {
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	ready    readyHeap
	delayed  []*entry
	jobs     map[string]*entry
	sems     map[models.JobType]*semaphore.Weighted
	seq      uint64
	dispatch models.DispatchFunc

	inflight sync.WaitGroup
	cancel   context.CancelFunc
	done     chan struct{}
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// New creates a stopped scheduler; call Start to begin ticking.
func New(cfg Config, logger *slog.Logger, opts ...Option) *Scheduler {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 5
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 5 * time.Minute
	}

	s := &Scheduler{
		cfg:    cfg,
		logger: logger.With("component", "memq"),
		now:    time.Now,
		jobs:   make(map[string]*entry),
		sems:   make(map[models.JobType]*semaphore.Weighted),
	}
	for _, t := range models.AllJobTypes() {
		n := cfg.Concurrency[t]
		if n <= 0 {
			n = 1
		}
		s.sems[t] = semaphore.NewWeighted(int64(n))
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Scheduler) Mode() string { return mode }

// Start launches the tick loop.
func (s *Scheduler) Start(ctx context.Context, dispatch models.DispatchFunc) error {
	s.mu.Lock()
	s.dispatch = dispatch
	s.mu.Unlock()

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.cfg.TickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				s.tick(loopCtx)
			}
		}
	}()

	s.logger.Info("fallback scheduler started",
		"tick_interval", s.cfg.TickInterval.String(),
		"batch_size", s.cfg.BatchSize)
	return nil
}

// Close stops the tick loop and waits for running handlers.
func (s *Scheduler) Close() error {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
	s.inflight.Wait()
	return nil
}

// Enqueue stores job as waiting, or delayed when Options.Delay is set.
func (s *Scheduler) Enqueue(_ context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	job.CreatedAt = now
	job.RunAt = now.Add(job.Options.Delay)
	s.seq++
	e := &entry{job: job, seq: s.seq, index: -1}
	s.jobs[job.ID] = e

	if job.Options.Delay > 0 {
		job.Status = models.JobStateDelayed
		s.delayed = append(s.delayed, e)
		return nil
	}
	job.Status = models.JobStateWaiting
	heap.Push(&s.ready, e)
	return nil
}

// Stats counts the jobs of type t by state.
func (s *Scheduler) Stats(_ context.Context, t models.JobType) (models.QueueStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := models.QueueStats{Type: t}
	for _, e := range s.jobs {
		if e.job.Type != t {
			continue
		}
		switch e.job.Status {
		case models.JobStateWaiting:
			stats.Waiting++
		case models.JobStateDelayed:
			stats.Delayed++
		case models.JobStateActive:
			stats.Active++
		case models.JobStateCompleted:
			stats.Completed++
		case models.JobStateFailed:
			stats.Failed++
		}
	}
	return stats, nil
}

// Clear drops every job of type t. Handlers already running are not
// interrupted, but their outcome is discarded.
func (s *Scheduler) Clear(_ context.Context, t models.JobType) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for id, e := range s.jobs {
		if e.job.Type == t {
			delete(s.jobs, id)
			removed++
		}
	}

	kept := s.ready[:0]
	for _, e := range s.ready {
		if e.job.Type != t {
			kept = append(kept, e)
		}
	}
	for i := len(kept); i < len(s.ready); i++ {
		s.ready[i] = nil
	}
	s.ready = kept
	for i, e := range s.ready {
		e.index = i
	}
	heap.Init(&s.ready)

	delayed := s.delayed[:0]
	for _, e := range s.delayed {
		if e.job.Type != t {
			delayed = append(delayed, e)
		}
	}
	s.delayed = delayed

	return removed, nil
}

// tick purges expired finished jobs, promotes due delayed jobs and starts up
// to BatchSize waiting jobs whose type has a free slot.
func (s *Scheduler) tick(ctx context.Context) {
	s.mu.Lock()
	now := s.now()
	s.purge(now)
	s.promote(now)

	var (
		launch  []*entry
		blocked []*entry
	)
	for len(launch) < s.cfg.BatchSize && s.ready.Len() > 0 {
		e := heap.Pop(&s.ready).(*entry)
		if !s.sems[e.job.Type].TryAcquire(1) {
			blocked = append(blocked, e)
			continue
		}
		e.job.Status = models.JobStateActive
		launch = append(launch, e)
	}
	for _, e := range blocked {
		heap.Push(&s.ready, e)
	}
	dispatch := s.dispatch
	s.mu.Unlock()

	for _, e := range launch {
		s.inflight.Add(1)
		go s.run(ctx, dispatch, e)
	}
}

func (s *Scheduler) run(ctx context.Context, dispatch models.DispatchFunc, e *entry) {
	defer s.inflight.Done()
	defer s.sems[e.job.Type].Release(1)

	s.mu.Lock()
	snapshot := *e.job
	s.mu.Unlock()

	result, ok := dispatch(context.WithoutCancel(ctx), &snapshot)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.finish(e, result, ok)
}

// finish records the outcome of one attempt. Callers hold mu.
func (s *Scheduler) finish(e *entry, result models.JobResult, handled bool) {
	job := e.job
	if _, live := s.jobs[job.ID]; !live {
		return
	}
	if !handled {
		delete(s.jobs, job.ID)
		return
	}

	now := s.now()
	job.AttemptsMade++

	if result.Success {
		job.Status = models.JobStateCompleted
		job.FinishedAt = &now
		job.LastError = ""
		return
	}

	job.LastError = result.Error
	if job.AttemptsMade < job.Options.Attempts {
		delay := job.Options.BackoffDelay(job.AttemptsMade)
		job.Status = models.JobStateDelayed
		job.RunAt = now.Add(delay)
		s.delayed = append(s.delayed, e)
		s.logger.Warn("job retry scheduled",
			"job_id", job.ID,
			"job_type", job.Type,
			"attempt", job.AttemptsMade,
			"delay_ms", delay.Milliseconds())
		return
	}

	job.Status = models.JobStateFailed
	job.FinishedAt = &now
	s.logger.Error("job failed permanently",
		"job_id", job.ID,
		"job_type", job.Type,
		"attempts", job.AttemptsMade,
		"error", job.LastError)
}

// promote moves delayed jobs whose RunAt has passed onto the ready heap.
// Callers hold mu.
func (s *Scheduler) promote(now time.Time) {
	pending := s.delayed[:0]
	for _, e := range s.delayed {
		if _, live := s.jobs[e.job.ID]; !live {
			continue
		}
		if e.job.RunAt.After(now) {
			pending = append(pending, e)
			continue
		}
		e.job.Status = models.JobStateWaiting
		heap.Push(&s.ready, e)
	}
	for i := len(pending); i < len(s.delayed); i++ {
		s.delayed[i] = nil
	}
	s.delayed = pending
}

// purge forgets finished jobs older than the retention window. Callers hold mu.
func (s *Scheduler) purge(now time.Time) {
	cutoff := now.Add(-s.cfg.Retention)
	for id, e := range s.jobs {
		if e.job.FinishedAt != nil && !e.job.FinishedAt.After(cutoff) {
			delete(s.jobs, id)
		}
	}
}
