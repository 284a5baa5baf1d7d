// Package activity reconciles scheduled subscription payments with their
// on-chain results and assembles the account's activity feed.
package activity

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/core-coin/solvere/internal/models"
	"github.com/core-coin/solvere/internal/schedule"
	"github.com/core-coin/solvere/pkg/validation"
)

// PaymentAction builds the activity entry of a paid subscription payment.
// Its timestamp is the payment's due time.
func PaymentAction(sub *models.Subscription, token *models.Token, payment schedule.Payment, opHash common.Hash) *models.ActivityAction {
	id := sub.ID
	seq := payment.SequenceIndex
	hash := opHash.Hex()
	return &models.ActivityAction{
		Account:       sub.Account,
		ChainID:       sub.ChainID,
		DedupKey:      models.PaymentDedupKey(sub.ID, payment.DueAt),
		Title:         models.TitleSubscriptionPayment,
		Description:   PaymentDescription(sub, token),
		Timestamp:     payment.DueAt,
		OperationHash: &hash,
		ActivityType:  models.ActivitySubscriptionPayment,
		Details:       models.ActivityDetails{SubscriptionID: &id, SequenceIndex: &seq},
	}
}

// PaymentDescription renders "Paid <amount> <symbol> for subscription <name> to <short address>".
func PaymentDescription(sub *models.Subscription, token *models.Token) string {
	return fmt.Sprintf("Paid %s %s for subscription %s to %s",
		sub.HumanAmount.StringFixed(6), token.Symbol, sub.Name, validation.ShortenAddress(sub.To))
}

// MissingTokenNotice is the feed entry shown instead of the payments of a
// subscription whose token the account has not imported. It sorts above
// everything else and is never stored.
func MissingTokenNotice(sub *models.Subscription) *models.ActivityAction {
	id := sub.ID
	return &models.ActivityAction{
		Account: sub.Account,
		ChainID: sub.ChainID,
		Title:   models.TitleImportToken,
		Description: fmt.Sprintf("Please import token %s on chain %d into your account to see the payments of subscription %s",
			sub.TokenAddress, sub.ChainID, sub.Name),
		Timestamp:    models.FarFuture,
		ActivityType: models.ActivityNotice,
		Details:      models.ActivityDetails{SubscriptionID: &id},
	}
}

// lastPayment returns the most recent stored payment of the subscription.
func lastPayment(history []*models.ActivityAction, subscriptionID uint64) *models.ActivityAction {
	var last *models.ActivityAction
	for _, action := range history {
		if !action.IsPaymentOf(subscriptionID) {
			continue
		}
		if last == nil || action.Timestamp > last.Timestamp {
			last = action
		}
	}
	return last
}

// sequenceOf returns the sequence index of a stored payment.
func sequenceOf(sub *models.Subscription, payment *models.ActivityAction) uint64 {
	if payment.Details.SequenceIndex != nil {
		return *payment.Details.SequenceIndex
	}
	if payment.Timestamp <= sub.StartedAt {
		return 0
	}
	return uint64((payment.Timestamp - sub.StartedAt) / sub.IntervalInSeconds)
}
