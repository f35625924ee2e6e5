package processor

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/sketchforge/pkg/models"
)

// Mailer delivers one email and returns the provider's message id.
type Mailer interface {
	Send(ctx context.Context, msg models.EmailPayload) (string, error)
}

// LogMailer writes emails to the log instead of sending them.
type LogMailer struct {
	Logger *slog.Logger
}

func (m LogMailer) Send(_ context.Context, msg models.EmailPayload) (string, error) {
	id := uuid.NewString()
	m.Logger.Info("email sent", "message_id", id, "to", msg.To, "subject", msg.Subject, "template", msg.Template)
	return id, nil
}

type EmailProcessor struct {
	mailer Mailer
	logger *slog.Logger
}

func NewEmailProcessor(m Mailer, logger *slog.Logger) *EmailProcessor {
	return &EmailProcessor{
		mailer: m,
		logger: logger.With("component", "processor", "job_type", models.JobTypeEmailNotification),
	}
}

func (p *EmailProcessor) Handle(ctx context.Context, job *models.Job) (models.JobResult, error) {
	var msg models.EmailPayload
	if err := decode(job, &msg); err != nil {
		return failed(err)
	}
	id, err := p.mailer.Send(ctx, msg)
	if err != nil {
		return failed(err)
	}
	return models.JobResult{Success: true, Data: map[string]string{"message_id": id}}, nil
}
