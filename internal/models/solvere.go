package models

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// NewSubscription is the input of the "add subscription" flow.
type NewSubscription struct {
	ChainID           int64
	Name              string
	TokenAddress      common.Address
	HumanAmount       decimal.Decimal
	To                common.Address
	IntervalInSeconds int64
}

type SolvereI interface {
	// Start runs the periodic reconciliation loop until ctx is done.
	Start(ctx context.Context)

	// CreateSubscription stores a subscription, pre-signs its payment batch and
	// uploads the batch to the relay.
	CreateSubscription(ctx context.Context, req NewSubscription) (*Subscription, error)
	// CancelSubscription terminates the subscription on chain, then locally.
	CancelSubscription(ctx context.Context, chainID int64, id uint64) (common.Hash, error)
	ListSubscriptions(ctx context.Context, chainID int64) ([]*Subscription, error)

	// ImportToken resolves a token on chain and stores it for the account.
	ImportToken(ctx context.Context, chainID int64, address common.Address) (*Token, error)
	ListTokens(ctx context.Context, chainID int64) ([]*Token, error)

	// SendToken transfers tokens right away.
	SendToken(ctx context.Context, chainID int64, token, to common.Address, amount decimal.Decimal) (common.Hash, error)

	// Activity reconciles every subscription of the chain and returns the feed.
	Activity(ctx context.Context, chainID int64) ([]*ActivityAction, error)
}

type APIServer interface {
	Start()
	Shutdown() error
}
