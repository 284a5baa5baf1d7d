// Package schedule derives the payment stream of a subscription.
//
// Everything here is pure. Pre-signing and reconciliation both call into this
// package, so the two always agree on which sequence indices exist.
package schedule

import (
	"github.com/shopspring/decimal"

	"github.com/core-coin/solvere/internal/models"
)

// Payment is one occurrence of a subscription's recurring transfer.
type Payment struct {
	SubscriptionID uint64
	SequenceIndex  uint64
	DueAt          int64
	Amount         decimal.Decimal
	Token          string
	To             string
}

// EffectiveEnd is the point up to which payments can be due: asOf, or the
// cancellation time when that is earlier.
func EffectiveEnd(sub *models.Subscription, asOf int64) int64 {
	if sub.CanceledAt != nil && *sub.CanceledAt < asOf {
		return *sub.CanceledAt
	}
	return asOf
}

// DuePaymentCount returns how many payments are due as of asOf, counted from
// the subscription start.
func DuePaymentCount(sub *models.Subscription, asOf int64) int {
	return countFrom(sub, sub.StartedAt, asOf)
}

// NewPaymentCount returns how many payments are due after the payment
// confirmed at lastPaidAt.
func NewPaymentCount(sub *models.Subscription, lastPaidAt int64, asOf int64) int {
	return countFrom(sub, lastPaidAt+sub.IntervalInSeconds, asOf)
}

// countFrom is ceil((end - referenceStart) / interval), floored at zero.
// Nothing is due before the first full interval since the start has elapsed.
func countFrom(sub *models.Subscription, referenceStart int64, asOf int64) int {
	interval := sub.IntervalInSeconds
	if interval <= 0 {
		return 0
	}
	end := EffectiveEnd(sub, asOf)
	if end-sub.StartedAt < interval {
		return 0
	}
	elapsed := end - referenceStart
	if elapsed <= 0 {
		return 0
	}
	return int((elapsed + interval - 1) / interval)
}

// Payments returns count consecutive payments starting at sequence index from.
func Payments(sub *models.Subscription, from uint64, count int) []Payment {
	if count <= 0 {
		return nil
	}
	payments := make([]Payment, 0, count)
	for i := 0; i < count; i++ {
		payments = append(payments, PaymentAt(sub, from+uint64(i)))
	}
	return payments
}

// PaymentAt returns the payment with the given sequence index.
func PaymentAt(sub *models.Subscription, sequenceIndex uint64) Payment {
	return Payment{
		SubscriptionID: sub.ID,
		SequenceIndex:  sequenceIndex,
		DueAt:          sub.DueAt(sequenceIndex),
		Amount:         sub.HumanAmount,
		Token:          sub.TokenAddress,
		To:             sub.To,
	}
}

// Due returns every payment due as of asOf, in sequence order.
func Due(sub *models.Subscription, asOf int64) []Payment {
	return Payments(sub, 0, DuePaymentCount(sub, asOf))
}

// NextPaymentAt returns when the next payment falls due. It reports false for
// canceled subscriptions.
func NextPaymentAt(sub *models.Subscription, asOf int64) (int64, bool) {
	if sub.Canceled() || sub.IntervalInSeconds <= 0 {
		return 0, false
	}
	elapsed := asOf - sub.StartedAt
	if elapsed <= 0 {
		return sub.StartedAt, true
	}
	made := (elapsed + sub.IntervalInSeconds - 1) / sub.IntervalInSeconds
	return sub.StartedAt + made*sub.IntervalInSeconds, true
}
