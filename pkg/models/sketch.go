package models

import "time"

// SketchStatus is the lifecycle of a sketch generation request. PENDING is the
// only initial state; COMPLETED, FAILED and CANCELLED are terminal.
type SketchStatus string

const (
	SketchStatusPending    SketchStatus = "pending"
	SketchStatusProcessing SketchStatus = "processing"
	SketchStatusCompleted  SketchStatus = "completed"
	SketchStatusFailed     SketchStatus = "failed"
	SketchStatusCancelled  SketchStatus = "cancelled"
)

// AllSketchStatuses returns every status in lifecycle order.
func AllSketchStatuses() []SketchStatus {
	return []SketchStatus{
		SketchStatusPending,
		SketchStatusProcessing,
		SketchStatusCompleted,
		SketchStatusFailed,
		SketchStatusCancelled,
	}
}

func (s SketchStatus) Valid() bool {
	for _, known := range AllSketchStatuses() {
		if s == known {
			return true
		}
	}
	return false
}

func (s SketchStatus) Terminal() bool {
	return s == SketchStatusCompleted || s == SketchStatusFailed || s == SketchStatusCancelled
}

// SketchMetadata is frozen once the job reaches a terminal state.
type SketchMetadata struct {
	Provider         string  `json:"provider,omitempty"`
	Cost             float64 `json:"cost"`
	ProcessingTimeMs int64   `json:"processing_time_ms"`
	Attempts         int     `json:"attempts"`
}

// SketchGenerationJob is the long-lived domain record of one sketch request.
// It outlives the transient queue job, which may be retried several times.
type SketchGenerationJob struct {
	ID          string         `db:"id"           json:"id"`
	StoryID     string         `db:"story_id"     json:"story_id"`
	UserID      string         `db:"user_id"      json:"user_id"`
	Status      SketchStatus   `db:"status"       json:"status"`
	Style       string         `db:"style"        json:"style"`
	Variants    int            `db:"variants"     json:"variants"`
	CreatedAt   time.Time      `db:"created_at"   json:"created_at"`
	StartedAt   *time.Time     `db:"started_at"   json:"started_at,omitempty"`
	CompletedAt *time.Time     `db:"completed_at" json:"completed_at,omitempty"`
	Error       *string        `db:"error"        json:"error,omitempty"`
	Metadata    SketchMetadata `db:"metadata"     json:"metadata"`
}

// UserQuota tracks per-user sketch usage. Daily usage resets once per calendar
// day crossing relative to LastReset, monthly usage once per calendar month.
type UserQuota struct {
	UserID       string    `db:"user_id"       json:"user_id"`
	DailyLimit   int       `db:"daily_limit"   json:"daily_limit"`
	DailyUsed    int       `db:"daily_used"    json:"daily_used"`
	MonthlyLimit int       `db:"monthly_limit" json:"monthly_limit"`
	MonthlyUsed  int       `db:"monthly_used"  json:"monthly_used"`
	LastReset    time.Time `db:"last_reset"    json:"last_reset"`
}

// QuotaCheck is the outcome of a quota lookup.
type QuotaCheck struct {
	Allowed          bool      `json:"allowed"`
	DailyRemaining   int       `json:"daily_remaining"`
	MonthlyRemaining int       `json:"monthly_remaining"`
	Quota            UserQuota `json:"quota"`
}

// SketchStatistics summarises sketch jobs created within a timeframe.
type SketchStatistics struct {
	Timeframe               string               `json:"timeframe"`
	Total                   int                  `json:"total"`
	ByStatus                map[SketchStatus]int `json:"by_status"`
	AverageProcessingTimeMs float64              `json:"average_processing_time_ms"`
	TotalCost               float64              `json:"total_cost"`
	SuccessRate             float64              `json:"success_rate"`
}

// SketchQueueHealth describes the sketch backlog and recent outcomes.
type SketchQueueHealth struct {
	Status             string  `json:"status"`
	QueueLength        int     `json:"queue_length"`
	Pending            int     `json:"pending"`
	Processing         int     `json:"processing"`
	OldestPendingAgeMs int64   `json:"oldest_pending_age_ms"`
	AverageWaitTimeMs  float64 `json:"average_wait_time_ms"`
	FailureRate        float64 `json:"failure_rate"`
}
