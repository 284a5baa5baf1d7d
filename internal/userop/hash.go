// Package userop builds and identifies EntryPoint v0.6 user operations.
package userop

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/core-coin/solvere/internal/models"
)

var (
	addressT = mustType("address")
	uint256T = mustType("uint256")
	bytes32T = mustType("bytes32")

	packArgs = abi.Arguments{
		{Type: addressT}, // sender
		{Type: uint256T}, // nonce
		{Type: bytes32T}, // keccak(initCode)
		{Type: bytes32T}, // keccak(callData)
		{Type: uint256T}, // callGasLimit
		{Type: uint256T}, // verificationGasLimit
		{Type: uint256T}, // preVerificationGas
		{Type: uint256T}, // maxFeePerGas
		{Type: uint256T}, // maxPriorityFeePerGas
		{Type: bytes32T}, // keccak(paymasterAndData)
	}
	envelopeArgs = abi.Arguments{
		{Type: bytes32T}, // keccak(pack(op))
		{Type: addressT}, // entry point
		{Type: uint256T}, // chain id
	}
)

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}

// Hash returns the canonical operation hash the EntryPoint and bundlers use.
// The signature is not part of the hash, so it is stable before signing.
func Hash(op *models.UserOperation, entryPoint common.Address, chainID int64) (common.Hash, error) {
	packed, err := packArgs.Pack(
		op.Sender,
		orZero(op.Nonce),
		[32]byte(crypto.Keccak256Hash(op.InitCode)),
		[32]byte(crypto.Keccak256Hash(op.CallData)),
		orZero(op.CallGasLimit),
		orZero(op.VerificationGasLimit),
		orZero(op.PreVerificationGas),
		orZero(op.MaxFeePerGas),
		orZero(op.MaxPriorityFeePerGas),
		[32]byte(crypto.Keccak256Hash(op.PaymasterAndData)),
	)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to pack user operation: %w", err)
	}
	envelope, err := envelopeArgs.Pack(
		[32]byte(crypto.Keccak256Hash(packed)),
		entryPoint,
		big.NewInt(chainID),
	)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to pack user operation envelope: %w", err)
	}
	return crypto.Keccak256Hash(envelope), nil
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
