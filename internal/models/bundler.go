package models

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// OperationResult is either Found (with metadata) or NotFound.
type OperationResult struct {
	found           bool
	EntryPoint      common.Address
	TransactionHash common.Hash
	BlockNumber     uint64
}

// Found builds a result for an operation the bundler knows about.
func Found(entryPoint common.Address, txHash common.Hash, block uint64) OperationResult {
	return OperationResult{found: true, EntryPoint: entryPoint, TransactionHash: txHash, BlockNumber: block}
}

// NotFound is the result for an operation that has not been executed.
func NotFound() OperationResult {
	return OperationResult{}
}

func (r OperationResult) IsFound() bool {
	return r.found
}

// OperationLookup answers whether an operation hash has an on-chain result.
type OperationLookup interface {
	GetOperationResult(ctx context.Context, chainID int64, hash common.Hash) (OperationResult, error)
}

// AccountSender executes a single call through the smart account right away and
// blocks until it is included. It returns the operation hash.
type AccountSender interface {
	Send(ctx context.Context, chainID int64, call Call) (common.Hash, error)
}

// Relay holds pre-signed operations and broadcasts each once it is valid.
type Relay interface {
	Upload(ctx context.Context, sub *Subscription, ops []*UserOperation) error
}

// Signer produces owner signatures.
type Signer interface {
	Address() common.Address
	// SignMessage signs data as an EIP-191 personal message.
	SignMessage(ctx context.Context, data []byte) ([]byte, error)
}
