// Package presign produces the signed payment window of a new subscription.
package presign

import (
	"context"
	"fmt"

	"github.com/core-coin/solvere/internal/models"
	"github.com/core-coin/solvere/internal/schedule"
	"github.com/core-coin/solvere/internal/userop"
	"github.com/core-coin/solvere/pkg/logger"
)

// DefaultBatchSize is the number of future payments signed when a
// subscription is created.
const DefaultBatchSize = 100

type Presigner struct {
	builder *userop.Builder
	logger  *logger.Logger
}

func NewPresigner(builder *userop.Builder, logger *logger.Logger) *Presigner {
	return &Presigner{builder: builder, logger: logger.Named("presign")}
}

// PresignBatch signs payments 0..count-1 of sub, in sequence order. Payment i
// becomes valid at StartedAt + i*interval. Nothing is sent anywhere; handing
// the batch to a relay is the caller's job.
func (p *Presigner) PresignBatch(ctx context.Context, sub *models.Subscription, token *models.Token, count int) ([]*models.UserOperation, error) {
	if count <= 0 {
		return nil, fmt.Errorf("%w: batch size must be greater than 0", models.ErrInvalidSubscription)
	}
	if err := sub.Validate(); err != nil {
		return nil, err
	}

	ops := make([]*models.UserOperation, 0, count)
	for _, payment := range schedule.Payments(sub, 0, count) {
		op, err := p.builder.BuildPaymentOperation(ctx, sub, token, payment.SequenceIndex, payment.DueAt)
		if err != nil {
			return nil, fmt.Errorf("failed to sign payment %d of subscription %d: %w", payment.SequenceIndex, sub.ID, err)
		}
		ops = append(ops, op)
	}

	p.logger.Debug("Presigned payment batch", "subscription", sub.ID, "chain_id", sub.ChainID, "count", len(ops))
	return ops, nil
}
