package queue

import (
	"time"

	"github.com/kiranshivaraju/sketchforge/pkg/models"
)

// policy is the default scheduling policy and worker concurrency of a job type.
type policy struct {
	options     models.JobOptions
	concurrency int
}

// Concurrency reflects whether the work is CPU bound or limited by an external
// API, not raw throughput.
var policies = map[models.JobType]policy{
	models.JobTypeSketchGeneration: {
		options: models.JobOptions{
			Priority:         models.PriorityNormal,
			Attempts:         3,
			Backoff:          models.Backoff{Type: models.BackoffExponential, Delay: 5 * time.Second},
			RemoveOnComplete: 5,
			RemoveOnFail:     3,
		},
		concurrency: 2,
	},
	models.JobTypeEmotionAnalysis: {
		options: models.JobOptions{
			Priority:         models.PriorityNormal,
			Attempts:         2,
			Backoff:          models.Backoff{Type: models.BackoffFixed, Delay: 3 * time.Second},
			RemoveOnComplete: 10,
			RemoveOnFail:     5,
		},
		concurrency: 3,
	},
	models.JobTypeEmailNotification: {
		options: models.JobOptions{
			Priority:         models.PriorityNormal,
			Attempts:         5,
			Backoff:          models.Backoff{Type: models.BackoffExponential, Delay: 2 * time.Second},
			RemoveOnComplete: 20,
			RemoveOnFail:     10,
		},
		concurrency: 10,
	},
	// Payment retries use a fixed delay so waits do not compound during a
	// provider outage.
	models.JobTypePaymentProcessing: {
		options: models.JobOptions{
			Priority:         models.PriorityCritical,
			Attempts:         3,
			Backoff:          models.Backoff{Type: models.BackoffFixed, Delay: 10 * time.Second},
			RemoveOnComplete: 10,
			RemoveOnFail:     20,
		},
		concurrency: 5,
	},
}

// DefaultOptions returns the default policy for t. Unknown types get a
// conservative single-attempt policy.
func DefaultOptions(t models.JobType) models.JobOptions {
	if p, ok := policies[t]; ok {
		return p.options
	}
	return models.JobOptions{Priority: models.PriorityNormal, Attempts: 1}
}

// Concurrency returns the worker count for t.
func Concurrency(t models.JobType) int {
	if p, ok := policies[t]; ok {
		return p.concurrency
	}
	return 1
}

// ConcurrencyMap returns the worker count of every known job type.
func ConcurrencyMap() map[models.JobType]int {
	out := make(map[models.JobType]int, len(policies))
	for _, t := range models.AllJobTypes() {
		out[t] = Concurrency(t)
	}
	return out
}

// Option overrides one field of a job's default policy.
type Option func(*models.JobOptions)

func WithPriority(p models.JobPriority) Option {
	return func(o *models.JobOptions) { o.Priority = p }
}

func WithDelay(d time.Duration) Option {
	return func(o *models.JobOptions) { o.Delay = d }
}

func WithAttempts(n int) Option {
	return func(o *models.JobOptions) { o.Attempts = n }
}

func WithBackoff(t models.BackoffType, delay time.Duration) Option {
	return func(o *models.JobOptions) { o.Backoff = models.Backoff{Type: t, Delay: delay} }
}

func WithRetention(completed, failed int) Option {
	return func(o *models.JobOptions) {
		o.RemoveOnComplete = completed
		o.RemoveOnFail = failed
	}
}
