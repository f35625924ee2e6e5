package queue

import (
	"errors"
	"fmt"

	"github.com/kiranshivaraju/sketchforge/pkg/models"
)

var (
	ErrUnknownJobType     = errors.New("unknown job type")
	ErrBackendUnavailable = errors.New("queue backend unavailable")
	ErrInvalidOptions     = errors.New("invalid job options")
	ErrInvalidPayload     = errors.New("invalid job payload")
)

// HandlerError wraps a failure raised inside a handler, either a returned
// error or a recovered panic. It never escapes the dispatch boundary raw.
type HandlerError struct {
	JobID   string
	Type    models.JobType
	Attempt int
	Err     error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler %s failed on job %s (attempt %d): %v", e.Type, e.JobID, e.Attempt, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }
