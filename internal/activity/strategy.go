package activity

import (
	"context"
	"fmt"
	"strings"

	"github.com/core-coin/solvere/internal/models"
	"github.com/core-coin/solvere/internal/schedule"
	"github.com/core-coin/solvere/internal/userop"
)

const (
	StrategyProbing = "probing"
	StrategyBatch   = "batch"
)

// Strategy produces the payment actions of one subscription that are not yet
// in the local history. lastPaid is the newest stored payment, or nil.
// Actions come back in sequence order. On error the actions produced before
// the failure are returned alongside it.
type Strategy interface {
	Name() string
	Payments(ctx context.Context, sub *models.Subscription, token *models.Token, lastPaid *models.ActivityAction, asOf int64) ([]*models.ActivityAction, error)
}

// NewStrategy returns the strategy with the given name.
func NewStrategy(name string, builder *userop.Builder, lookup models.OperationLookup, window int) (Strategy, error) {
	switch strings.ToLower(name) {
	case StrategyProbing, "":
		return NewProbingStrategy(builder, lookup, window), nil
	case StrategyBatch:
		return NewBatchStrategy(builder, window), nil
	default:
		return nil, fmt.Errorf("unknown reconcile strategy %q", name)
	}
}

// ProbingStrategy asks the bundler about each payment after the last stored
// one and stops at the first unknown hash. Payments execute in nonce order, so
// nothing after a missing payment can have executed.
type ProbingStrategy struct {
	builder *userop.Builder
	lookup  models.OperationLookup
	// limit caps the sequence index probed, as only the pre-signed window can
	// have results. Zero means no cap.
	limit int
}

func NewProbingStrategy(builder *userop.Builder, lookup models.OperationLookup, limit int) *ProbingStrategy {
	return &ProbingStrategy{builder: builder, lookup: lookup, limit: limit}
}

func (s *ProbingStrategy) Name() string { return StrategyProbing }

func (s *ProbingStrategy) Payments(ctx context.Context, sub *models.Subscription, token *models.Token, lastPaid *models.ActivityAction, asOf int64) ([]*models.ActivityAction, error) {
	var (
		next  uint64
		count int
	)
	if lastPaid == nil {
		count = schedule.DuePaymentCount(sub, asOf)
	} else {
		next = sequenceOf(sub, lastPaid) + 1
		count = schedule.NewPaymentCount(sub, lastPaid.Timestamp, asOf)
	}
	if s.limit > 0 {
		if next >= uint64(s.limit) {
			return nil, nil
		}
		if remaining := s.limit - int(next); count > remaining {
			count = remaining
		}
	}

	var actions []*models.ActivityAction
	for _, payment := range schedule.Payments(sub, next, count) {
		hash, err := s.builder.PaymentHash(sub, token, payment.SequenceIndex)
		if err != nil {
			return actions, err
		}
		result, err := s.lookup.GetOperationResult(ctx, sub.ChainID, hash)
		if err != nil {
			return actions, fmt.Errorf("failed to look up payment %d: %w", payment.SequenceIndex, err)
		}
		if !result.IsFound() {
			break
		}
		actions = append(actions, PaymentAction(sub, token, payment, hash))
	}
	return actions, nil
}

// BatchStrategy assumes every payment due so far was executed by the relay and
// emits all of them. Already stored payments are dropped by the dedup key on
// insert.
type BatchStrategy struct {
	builder *userop.Builder
	// limit is the pre-signed window size. Payments beyond it were never
	// handed to the relay. Zero means no cap.
	limit int
}

func NewBatchStrategy(builder *userop.Builder, limit int) *BatchStrategy {
	return &BatchStrategy{builder: builder, limit: limit}
}

func (s *BatchStrategy) Name() string { return StrategyBatch }

func (s *BatchStrategy) Payments(ctx context.Context, sub *models.Subscription, token *models.Token, _ *models.ActivityAction, asOf int64) ([]*models.ActivityAction, error) {
	due := schedule.Due(sub, asOf)
	if s.limit > 0 && len(due) > s.limit {
		due = due[:s.limit]
	}
	actions := make([]*models.ActivityAction, 0, len(due))
	for _, payment := range due {
		if err := ctx.Err(); err != nil {
			return actions, err
		}
		hash, err := s.builder.PaymentHash(sub, token, payment.SequenceIndex)
		if err != nil {
			return actions, err
		}
		actions = append(actions, PaymentAction(sub, token, payment, hash))
	}
	return actions, nil
}
