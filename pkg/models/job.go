package models

import (
	"encoding/json"
	"math"
	"time"
)

// JobType is the closed set of queue job categories. The type decides default
// concurrency and retry policy.
type JobType string

const (
	JobTypeSketchGeneration  JobType = "sketch-generation"
	JobTypeEmotionAnalysis   JobType = "emotion-analysis"
	JobTypeEmailNotification JobType = "email-notification"
	JobTypePaymentProcessing JobType = "payment-processing"
)

// AllJobTypes returns every known job type in a stable order.
func AllJobTypes() []JobType {
	return []JobType{
		JobTypeSketchGeneration,
		JobTypeEmotionAnalysis,
		JobTypeEmailNotification,
		JobTypePaymentProcessing,
	}
}

// Valid reports whether t is one of the known job types.
func (t JobType) Valid() bool {
	for _, known := range AllJobTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// JobPriority orders dequeueing; higher values are serviced first.
type JobPriority int

const (
	PriorityLow      JobPriority = 1
	PriorityNormal   JobPriority = 5
	PriorityHigh     JobPriority = 10
	PriorityCritical JobPriority = 20
)

func (p JobPriority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return "custom"
	}
}

// JobState is the transient lifecycle of a queued job.
const (
	JobStateWaiting   = "waiting"
	JobStateDelayed   = "delayed"
	JobStateActive    = "active"
	JobStateCompleted = "completed"
	JobStateFailed    = "failed"
)

type BackoffType string

const (
	BackoffFixed       BackoffType = "fixed"
	BackoffExponential BackoffType = "exponential"
)

// Backoff is the delay policy applied between attempts.
type Backoff struct {
	Type  BackoffType   `json:"type"  validate:"omitempty,oneof=fixed exponential"`
	Delay time.Duration `json:"delay" validate:"gte=0"`
}

// JobOptions holds the per-job scheduling policy.
type JobOptions struct {
	Priority         JobPriority   `json:"priority"           validate:"gte=1,lte=100"`
	Delay            time.Duration `json:"delay"              validate:"gte=0"`
	Attempts         int           `json:"attempts"           validate:"gte=1,lte=25"`
	Backoff          Backoff       `json:"backoff"`
	RemoveOnComplete int           `json:"remove_on_complete" validate:"gte=0"`
	RemoveOnFail     int           `json:"remove_on_fail"     validate:"gte=0"`
}

// BackoffDelay returns the wait before the next attempt once attemptsMade
// executions have failed.
func (o JobOptions) BackoffDelay(attemptsMade int) time.Duration {
	if o.Backoff.Delay <= 0 {
		return 0
	}
	if o.Backoff.Type != BackoffExponential || attemptsMade <= 1 {
		return o.Backoff.Delay
	}
	factor := math.Pow(2, float64(attemptsMade-1))
	d := float64(o.Backoff.Delay) * factor
	if d > float64(math.MaxInt64) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

// Job is a transient unit of queued work. It only exists while one of the
// queue backends holds it.
type Job struct {
	ID           string          `json:"id"`
	Type         JobType         `json:"type"`
	Data         json.RawMessage `json:"data"`
	Options      JobOptions      `json:"options"`
	Status       string          `json:"status"`
	AttemptsMade int             `json:"attempts_made"`
	CreatedAt    time.Time       `json:"created_at"`
	RunAt        time.Time       `json:"run_at"`
	FinishedAt   *time.Time      `json:"finished_at,omitempty"`
	LastError    string          `json:"last_error,omitempty"`
}

// IsFinalAttempt reports whether the execution currently in flight is the
// last one the retry policy allows.
func (j *Job) IsFinalAttempt() bool {
	return j.AttemptsMade+1 >= j.Options.Attempts
}

// JobResult is what a handler returns for one execution.
type JobResult struct {
	Success  bool           `json:"success"`
	Data     any            `json:"data,omitempty"`
	Error    string         `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// QueueStats holds current job counts per state for one job type.
type QueueStats struct {
	Type      JobType `json:"type"`
	Waiting   int64   `json:"waiting"`
	Delayed   int64   `json:"delayed"`
	Active    int64   `json:"active"`
	Completed int64   `json:"completed"`
	Failed    int64   `json:"failed"`
}

// Total returns the number of jobs of every state.
func (s QueueStats) Total() int64 {
	return s.Waiting + s.Delayed + s.Active + s.Completed + s.Failed
}

// FailureRatio is failed / (completed + failed + 1).
func (s QueueStats) FailureRatio() float64 {
	return float64(s.Failed) / float64(s.Completed+s.Failed+1)
}

// DegradedThreshold is the failure ratio above which a queue is degraded.
const DegradedThreshold = 0.10

const (
	HealthHealthy  = "healthy"
	HealthDegraded = "degraded"
)

// HealthLabel applies the failure-ratio heuristic to s.
func (s QueueStats) HealthLabel() string {
	if s.FailureRatio() > DegradedThreshold {
		return HealthDegraded
	}
	return HealthHealthy
}

// QueueHealth aggregates per-type health for the whole facade.
type QueueHealth struct {
	Status string                 `json:"status"`
	Mode   string                 `json:"mode"`
	Queues map[JobType]TypeHealth `json:"queues"`
}

type TypeHealth struct {
	Status       string     `json:"status"`
	FailureRatio float64    `json:"failure_ratio"`
	Stats        QueueStats `json:"stats"`
}

// NewQueueHealth labels each type with the failure-ratio heuristic. The
// overall status is degraded when any type is degraded.
func NewQueueHealth(mode string, stats map[JobType]QueueStats) QueueHealth {
	h := QueueHealth{
		Status: HealthHealthy,
		Mode:   mode,
		Queues: make(map[JobType]TypeHealth, len(stats)),
	}
	for t, s := range stats {
		label := s.HealthLabel()
		h.Queues[t] = TypeHealth{Status: label, FailureRatio: s.FailureRatio(), Stats: s}
		if label == HealthDegraded {
			h.Status = HealthDegraded
		}
	}
	return h
}
