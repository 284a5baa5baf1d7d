package solvere

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/core-coin/solvere/internal/models"
	"github.com/core-coin/solvere/pkg/validation"
)

var intervalNames = map[int64]string{
	5 * 60:       "5 minutes",
	60 * 60:      "hour",
	24 * 60 * 60: "day",
	7 * 86400:    "week",
	30 * 86400:   "month",
}

// IntervalWords renders an interval the way the feed phrases it ("every day").
func IntervalWords(seconds int64) string {
	if name, ok := intervalNames[seconds]; ok {
		return name
	}
	switch {
	case seconds%86400 == 0:
		return fmt.Sprintf("%d days", seconds/86400)
	case seconds%3600 == 0:
		return fmt.Sprintf("%d hours", seconds/3600)
	case seconds%60 == 0:
		return fmt.Sprintf("%d minutes", seconds/60)
	}
	return fmt.Sprintf("%d seconds", seconds)
}

func startedAction(sub *models.Subscription, token *models.Token) *models.ActivityAction {
	id := sub.ID
	return &models.ActivityAction{
		Account: sub.Account,
		ChainID: sub.ChainID,
		Title:   models.TitleStartedSubscription,
		Description: fmt.Sprintf("Started \"%s\" subscription. Paying %s %s every %s to %s",
			sub.Name, sub.HumanAmount.String(), token.Symbol, IntervalWords(sub.IntervalInSeconds), validation.ShortenAddress(sub.To)),
		Timestamp:    sub.StartedAt,
		ActivityType: models.ActivityStartSubscription,
		Details:      models.ActivityDetails{SubscriptionID: &id},
	}
}

func canceledAction(sub *models.Subscription, canceledAt int64, opHash common.Hash) *models.ActivityAction {
	id := sub.ID
	hash := opHash.Hex()
	return &models.ActivityAction{
		Account:       sub.Account,
		ChainID:       sub.ChainID,
		Title:         models.TitleCanceledSubscription,
		Description:   fmt.Sprintf("Canceled \"%s\" subscription. No more payments will be made.", sub.Name),
		Timestamp:     canceledAt,
		OperationHash: &hash,
		ActivityType:  models.ActivityCancelSubscription,
		Details:       models.ActivityDetails{SubscriptionID: &id},
	}
}

func sentAction(scope models.Scope, token *models.Token, to common.Address, amount decimal.Decimal, at int64, opHash common.Hash) *models.ActivityAction {
	hash := opHash.Hex()
	return &models.ActivityAction{
		Account:       scope.Account.Hex(),
		ChainID:       scope.ChainID,
		Title:         models.TitleSentToken,
		Description:   fmt.Sprintf("Sent %s %s to %s", amount.String(), token.Symbol, validation.ShortenAddress(to.Hex())),
		Timestamp:     at,
		OperationHash: &hash,
		ActivityType:  models.ActivityTransfer,
	}
}
