package models

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// BlockchainService represents a service that reads chain state.
type BlockchainService interface {
	// ResolveToken reads name, symbol and decimals of an ERC-20 contract.
	ResolveToken(ctx context.Context, chainID int64, address common.Address) (*Token, error)
	// TokenBalance returns the raw balance of the owner. The native token
	// sentinel reads the account balance.
	TokenBalance(ctx context.Context, chainID int64, token, owner common.Address) (*big.Int, error)
	// SubscriptionsOwner returns the owner registered for the account in the
	// subscription validator storage.
	SubscriptionsOwner(ctx context.Context, chainID int64, account common.Address) (common.Address, error)
}
