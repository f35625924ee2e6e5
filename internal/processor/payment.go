package processor

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/sketchforge/pkg/models"
)

// Gateway executes a payment action. idempotencyKey is stable across retries
// of the same job so a retried capture is not charged twice.
type Gateway interface {
	Execute(ctx context.Context, idempotencyKey string, p models.PaymentPayload) (string, error)
}

// LogGateway records payments in memory and logs them.
type LogGateway struct {
	Logger *slog.Logger

	mu   sync.Mutex
	seen map[string]string
}

func (g *LogGateway) Execute(_ context.Context, key string, p models.PaymentPayload) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.seen == nil {
		g.seen = make(map[string]string)
	}
	if tx, ok := g.seen[key]; ok {
		return tx, nil
	}
	tx := uuid.NewString()
	g.seen[key] = tx
	g.Logger.Info("payment executed",
		"transaction_id", tx,
		"order_id", p.OrderID,
		"action", p.Action,
		"amount_cents", p.AmountCents,
		"currency", p.Currency)
	return tx, nil
}

type PaymentProcessor struct {
	gateway Gateway
	logger  *slog.Logger
}

func NewPaymentProcessor(g Gateway, logger *slog.Logger) *PaymentProcessor {
	return &PaymentProcessor{
		gateway: g,
		logger:  logger.With("component", "processor", "job_type", models.JobTypePaymentProcessing),
	}
}

func (p *PaymentProcessor) Handle(ctx context.Context, job *models.Job) (models.JobResult, error) {
	var payment models.PaymentPayload
	if err := decode(job, &payment); err != nil {
		return failed(err)
	}
	tx, err := p.gateway.Execute(ctx, job.ID, payment)
	if err != nil {
		p.logger.Warn("payment attempt failed", "job_id", job.ID, "order_id", payment.OrderID, "error", err)
		return failed(err)
	}
	return models.JobResult{
		Success:  true,
		Data:     map[string]string{"transaction_id": tx},
		Metadata: map[string]any{"order_id": payment.OrderID, "action": payment.Action},
	}, nil
}
