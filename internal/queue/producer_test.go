package queue_test

import (
	"context"
	"testing"

	"github.com/kiranshivaraju/sketchforge/internal/queue"
	"github.com/kiranshivaraju/sketchforge/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedCall struct {
	Type    models.JobType
	Payload any
	Options models.JobOptions
}

type mockEnqueuer struct {
	calls []recordedCall
}

func (m *mockEnqueuer) AddJob(_ context.Context, t models.JobType, payload any, opts ...queue.Option) (string, error) {
	o := queue.DefaultOptions(t)
	for _, opt := range opts {
		opt(&o)
	}
	m.calls = append(m.calls, recordedCall{Type: t, Payload: payload, Options: o})
	return "job-1", nil
}

func TestProducer_SketchGeneration(t *testing.T) {
	m := &mockEnqueuer{}
	p := queue.NewProducer(m)

	id, err := p.EnqueueSketchGeneration(context.Background(), models.SketchGenerationPayload{
		SketchJobID: "sk-1", StoryID: "st-1", UserID: "u-1", Style: "watercolor", Variants: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, "job-1", id)
	require.Len(t, m.calls, 1)
	assert.Equal(t, models.JobTypeSketchGeneration, m.calls[0].Type)
	assert.Equal(t, 3, m.calls[0].Options.Attempts)
}

func TestProducer_RejectsInvalidPayload(t *testing.T) {
	m := &mockEnqueuer{}
	p := queue.NewProducer(m)

	_, err := p.EnqueueSketchGeneration(context.Background(), models.SketchGenerationPayload{StoryID: "st-1"})
	assert.ErrorIs(t, err, queue.ErrInvalidPayload)

	_, err = p.EnqueueEmail(context.Background(), models.EmailPayload{To: "not-an-address", Subject: "hi"})
	assert.ErrorIs(t, err, queue.ErrInvalidPayload)

	_, err = p.EnqueuePayment(context.Background(), models.PaymentPayload{OrderID: "o", Action: "void", AmountCents: 100, Currency: "USD"})
	assert.ErrorIs(t, err, queue.ErrInvalidPayload)

	assert.Empty(t, m.calls)
}

func TestProducer_PaymentPriority(t *testing.T) {
	tests := []struct {
		action string
		want   models.JobPriority
	}{
		{models.PaymentActionCapture, models.PriorityCritical},
		{models.PaymentActionAuthorize, models.PriorityHigh},
		{models.PaymentActionRefund, models.PriorityHigh},
	}
	for _, tt := range tests {
		t.Run(tt.action, func(t *testing.T) {
			m := &mockEnqueuer{}
			p := queue.NewProducer(m)
			_, err := p.EnqueuePayment(context.Background(), models.PaymentPayload{
				OrderID: "o-1", Action: tt.action, AmountCents: 1299, Currency: "EUR",
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, m.calls[0].Options.Priority)
			assert.Equal(t, models.JobTypePaymentProcessing, m.calls[0].Type)
		})
	}
}

func TestProducer_CallerOptionsWin(t *testing.T) {
	m := &mockEnqueuer{}
	p := queue.NewProducer(m)
	_, err := p.EnqueuePayment(context.Background(),
		models.PaymentPayload{OrderID: "o-1", Action: models.PaymentActionRefund, AmountCents: 1, Currency: "USD"},
		queue.WithPriority(models.PriorityLow))
	require.NoError(t, err)
	assert.Equal(t, models.PriorityLow, m.calls[0].Options.Priority)
}

func TestProducer_EmotionAndEmail(t *testing.T) {
	m := &mockEnqueuer{}
	p := queue.NewProducer(m)

	_, err := p.EnqueueEmotionAnalysis(context.Background(), models.EmotionAnalysisPayload{StoryID: "st-1", Text: "once upon a time"})
	require.NoError(t, err)
	_, err = p.EnqueueEmail(context.Background(), models.EmailPayload{To: "reader@example.com", Subject: "Your sketch is ready"})
	require.NoError(t, err)

	require.Len(t, m.calls, 2)
	assert.Equal(t, models.JobTypeEmotionAnalysis, m.calls[0].Type)
	assert.Equal(t, models.JobTypeEmailNotification, m.calls[1].Type)
	assert.Equal(t, 5, m.calls[1].Options.Attempts)
}
