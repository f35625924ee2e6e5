// Package processor holds the handlers registered for each job type. Each
// handler wraps an injected collaborator and reports one attempt's outcome.
package processor

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/kiranshivaraju/sketchforge/pkg/models"
)

var ErrInvalidPayload = errors.New("invalid job payload")

var validate = validator.New(validator.WithRequiredStructEnabled())

// Registrar is the part of the queue facade handlers are registered with.
type Registrar interface {
	RegisterProcessor(t models.JobType, h models.Handler) error
}

// Deps are the collaborators the handlers need.
type Deps struct {
	Tracker  Tracker
	Provider models.AIProvider
	Mailer   Mailer
	Gateway  Gateway
	Logger   *slog.Logger
}

// RegisterAll binds a handler for every job type.
func RegisterAll(r Registrar, d Deps) error {
	handlers := map[models.JobType]models.Handler{
		models.JobTypeSketchGeneration:  NewSketchProcessor(d.Tracker, d.Provider, d.Logger),
		models.JobTypeEmotionAnalysis:   NewEmotionProcessor(d.Provider, d.Logger),
		models.JobTypeEmailNotification: NewEmailProcessor(d.Mailer, d.Logger),
		models.JobTypePaymentProcessing: NewPaymentProcessor(d.Gateway, d.Logger),
	}
	for _, t := range models.AllJobTypes() {
		if err := r.RegisterProcessor(t, handlers[t]); err != nil {
			return fmt.Errorf("register %s processor: %w", t, err)
		}
	}
	return nil
}

// decode unmarshals and validates a job payload.
func decode(job *models.Job, into any) error {
	if err := json.Unmarshal(job.Data, into); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := validate.Struct(into); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

func failed(err error) (models.JobResult, error) {
	return models.JobResult{Success: false, Error: err.Error()}, err
}
