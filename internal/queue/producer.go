package queue

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/kiranshivaraju/sketchforge/pkg/models"
)

// Enqueuer is the part of Queue the producer depends on.
type Enqueuer interface {
	AddJob(ctx context.Context, t models.JobType, payload any, opts ...Option) (string, error)
}

// Producer offers one typed enqueue method per job class. It is the single
// place retry policy is chosen; callers pass Options only to override it.
type Producer struct {
	queue    Enqueuer
	validate *validator.Validate
}

func NewProducer(q Enqueuer) *Producer {
	return &Producer{
		queue:    q,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// EnqueueSketchGeneration queues image generation for an existing sketch job.
func (p *Producer) EnqueueSketchGeneration(ctx context.Context, payload models.SketchGenerationPayload, opts ...Option) (string, error) {
	return p.enqueue(ctx, models.JobTypeSketchGeneration, payload, opts)
}

// EnqueueEmotionAnalysis queues emotion scoring of a story text.
func (p *Producer) EnqueueEmotionAnalysis(ctx context.Context, payload models.EmotionAnalysisPayload, opts ...Option) (string, error) {
	return p.enqueue(ctx, models.JobTypeEmotionAnalysis, payload, opts)
}

// EnqueueEmail queues a notification email.
func (p *Producer) EnqueueEmail(ctx context.Context, payload models.EmailPayload, opts ...Option) (string, error) {
	return p.enqueue(ctx, models.JobTypeEmailNotification, payload, opts)
}

// EnqueuePayment queues a payment operation. Captures keep the critical
// default priority; authorizations and refunds run at high priority.
func (p *Producer) EnqueuePayment(ctx context.Context, payload models.PaymentPayload, opts ...Option) (string, error) {
	if payload.Action != models.PaymentActionCapture {
		opts = append([]Option{WithPriority(models.PriorityHigh)}, opts...)
	}
	return p.enqueue(ctx, models.JobTypePaymentProcessing, payload, opts)
}

func (p *Producer) enqueue(ctx context.Context, t models.JobType, payload any, opts []Option) (string, error) {
	if err := p.validate.Struct(payload); err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrInvalidPayload, t, err)
	}
	return p.queue.AddJob(ctx, t, payload, opts...)
}
