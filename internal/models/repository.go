package models

import "context"

// Repository persists subscriptions, tokens and activity.
// Every call is scoped to one account and chain.
type Repository interface {
	ListSubscriptions(ctx context.Context, scope Scope) ([]*Subscription, error)
	GetSubscription(ctx context.Context, scope Scope, id uint64) (*Subscription, error)
	AddSubscription(ctx context.Context, sub *Subscription) error
	// MarkSubscriptionCanceled sets CanceledAt once. Canceling a canceled
	// subscription returns ErrAlreadyCanceled.
	MarkSubscriptionCanceled(ctx context.Context, scope Scope, id uint64, canceledAt int64) error

	ListTokens(ctx context.Context, scope Scope) ([]*Token, error)
	AddToken(ctx context.Context, token *Token) error

	ListActivity(ctx context.Context, scope Scope) ([]*ActivityAction, error)
	// AddActivity appends an action. A subscription payment whose dedup key is
	// already stored is skipped and reported with inserted == false.
	AddActivity(ctx context.Context, action *ActivityAction) (inserted bool, err error)

	Close() error
}
