package models

import (
	"fmt"
	"sort"
)

type ActivityType string

const (
	ActivityStartSubscription   ActivityType = "start-subscription"
	ActivitySubscriptionPayment ActivityType = "subscription-payment"
	ActivityCancelSubscription  ActivityType = "cancel-subscription"
	ActivityTransfer            ActivityType = "transfer"
	// ActivityNotice is never persisted. It carries feed-only messages such as
	// the missing token placeholder.
	ActivityNotice ActivityType = "notice"
)

const (
	TitleSubscriptionPayment  = "Subscription payment"
	TitleStartedSubscription  = "Started subscription"
	TitleCanceledSubscription = "Canceled subscription"
	TitleSentToken            = "Sent token"
	TitleImportToken          = "Import token"
)

// FarFuture is the timestamp of feed entries that must stay on top (9999-12-31).
const FarFuture int64 = 253402300799

// ActivityDetails carries structured data attached to an action.
type ActivityDetails struct {
	SubscriptionID *uint64 `json:"subscription_id,omitempty" gorm:"column:subscription_id;index"`
	// SequenceIndex is set on subscription payments.
	SequenceIndex *uint64 `json:"sequence_index,omitempty" gorm:"column:sequence_index"`
}

// ActivityAction is an append-only audit log entry.
type ActivityAction struct {
	ID      int64  `json:"-" gorm:"column:id;primaryKey;autoIncrement"`
	Account string `json:"account" gorm:"column:account;size:42;not null;uniqueIndex:idx_activity_dedup,priority:1"`
	ChainID int64  `json:"chain_id" gorm:"column:chain_id;not null;uniqueIndex:idx_activity_dedup,priority:2"`
	// DedupKey enforces the (chain, subscription, timestamp) uniqueness of payments.
	// Other actions get a random key.
	DedupKey      string          `json:"-" gorm:"column:dedup_key;size:96;not null;uniqueIndex:idx_activity_dedup,priority:3"`
	Title         string          `json:"title" gorm:"column:title"`
	Description   string          `json:"description" gorm:"column:description"`
	Timestamp     int64           `json:"timestamp" gorm:"column:timestamp;index"`
	OperationHash *string         `json:"operation_hash,omitempty" gorm:"column:operation_hash;size:66"`
	ActivityType  ActivityType    `json:"activity_type" gorm:"column:activity_type;size:32"`
	Details       ActivityDetails `json:"details" gorm:"embedded"`
	ExplorerLink  string          `json:"explorer_url,omitempty" gorm:"-"`
}

func (ActivityAction) TableName() string {
	return "activity_actions"
}

// PaymentDedupKey returns the uniqueness key of a subscription payment.
func PaymentDedupKey(subscriptionID uint64, timestamp int64) string {
	return fmt.Sprintf("payment:%d:%d", subscriptionID, timestamp)
}

// IsPaymentOf reports whether the action is a payment of the given subscription.
func (a *ActivityAction) IsPaymentOf(subscriptionID uint64) bool {
	return a.ActivityType == ActivitySubscriptionPayment &&
		a.Details.SubscriptionID != nil &&
		*a.Details.SubscriptionID == subscriptionID
}

// SortActivity orders actions newest first. On equal timestamps a
// "Subscription payment" action comes before any other action.
func SortActivity(actions []*ActivityAction) {
	sort.SliceStable(actions, func(i, j int) bool {
		a, b := actions[i], actions[j]
		if a.Timestamp != b.Timestamp {
			return a.Timestamp > b.Timestamp
		}
		return a.Title == TitleSubscriptionPayment && b.Title != TitleSubscriptionPayment
	})
}
