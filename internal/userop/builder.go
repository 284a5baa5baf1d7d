package userop

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/core-coin/solvere/internal/chains"
	"github.com/core-coin/solvere/internal/models"
)

// Builder turns scheduled payments into signed operations for one account.
type Builder struct {
	account  common.Address
	registry *chains.Registry
	signer   models.Signer
}

// NewBuilder creates a builder for the given smart account.
func NewBuilder(account common.Address, registry *chains.Registry, signer models.Signer) *Builder {
	return &Builder{account: account, registry: registry, signer: signer}
}

// Account returns the sender of every built operation.
func (b *Builder) Account() common.Address {
	return b.account
}

// Owner returns the address of the key that signs operations.
func (b *Builder) Owner() common.Address {
	return b.signer.Address()
}

// Registry returns the chain settings table.
func (b *Builder) Registry() *chains.Registry {
	return b.registry
}

// PaymentOperation builds the unsigned operation paying the given sequence index.
func (b *Builder) PaymentOperation(sub *models.Subscription, token *models.Token, sequenceIndex uint64) (*models.UserOperation, *chains.Settings, error) {
	if err := sub.Validate(); err != nil {
		return nil, nil, err
	}
	if token == nil || !strings.EqualFold(token.Address, sub.TokenAddress) {
		return nil, nil, fmt.Errorf("%w: %s", models.ErrTokenNotFound, sub.TokenAddress)
	}
	if token.Decimals < 0 || token.Decimals > 77 {
		return nil, nil, fmt.Errorf("%w: token decimals %d out of range", models.ErrInvalidSubscription, token.Decimals)
	}
	settings, err := b.registry.Get(sub.ChainID)
	if err != nil {
		return nil, nil, err
	}

	amount := IntegerAmount(sub.HumanAmount, token.Decimals)
	payment, err := EncodePayForSubscription(common.HexToAddress(sub.TokenAddress), amount, common.HexToAddress(sub.To), sub.ID)
	if err != nil {
		return nil, nil, err
	}
	callData, err := EncodeExecute(b.account, nil, payment)
	if err != nil {
		return nil, nil, err
	}

	op := &models.UserOperation{
		Sender:               b.account,
		Nonce:                Nonce(sub.ID, sequenceIndex),
		InitCode:             []byte{},
		CallData:             callData,
		CallGasLimit:         new(big.Int).Set(settings.Gas.CallGasLimit),
		VerificationGasLimit: new(big.Int).Set(settings.Gas.VerificationGasLimit),
		PreVerificationGas:   new(big.Int).Set(settings.Gas.PreVerificationGas),
		MaxFeePerGas:         new(big.Int).Set(settings.Gas.MaxFeePerGas),
		MaxPriorityFeePerGas: new(big.Int).Set(settings.Gas.MaxPriorityFeePerGas),
		PaymasterAndData:     []byte{},
		Signature:            []byte{},
	}
	return op, settings, nil
}

// PaymentHash returns the pre-signature hash of the payment at sequenceIndex.
// It is the join key between scheduled payments and on-chain results.
func (b *Builder) PaymentHash(sub *models.Subscription, token *models.Token, sequenceIndex uint64) (common.Hash, error) {
	op, settings, err := b.PaymentOperation(sub, token, sequenceIndex)
	if err != nil {
		return common.Hash{}, err
	}
	return Hash(op, settings.EntryPoint, settings.ChainID)
}

// BuildPaymentOperation builds and signs the payment at sequenceIndex. The
// operation only becomes valid on chain at validAfter.
func (b *Builder) BuildPaymentOperation(ctx context.Context, sub *models.Subscription, token *models.Token, sequenceIndex uint64, validAfter int64) (*models.UserOperation, error) {
	if validAfter < 0 || uint64(validAfter) > MaxValidAfter {
		return nil, fmt.Errorf("%w: validAfter %d out of range", models.ErrInvalidSubscription, validAfter)
	}
	op, settings, err := b.PaymentOperation(sub, token, sequenceIndex)
	if err != nil {
		return nil, err
	}
	hash, err := Hash(op, settings.EntryPoint, settings.ChainID)
	if err != nil {
		return nil, err
	}

	sig, err := b.signer.SignMessage(ctx, ValidAfterDigest(hash, uint64(validAfter)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrSigningFailed, err)
	}
	encoded, err := (&ValidatorSignature{Mode: ModePlugin, ValidAfter: uint64(validAfter), Signature: sig}).Encode()
	if err != nil {
		return nil, err
	}
	op.Signature = encoded
	return op, nil
}

// SignSudo signs op with the account's default validator.
func (b *Builder) SignSudo(ctx context.Context, op *models.UserOperation, chainID int64) (common.Hash, error) {
	settings, err := b.registry.Get(chainID)
	if err != nil {
		return common.Hash{}, err
	}
	hash, err := Hash(op, settings.EntryPoint, settings.ChainID)
	if err != nil {
		return common.Hash{}, err
	}
	sig, err := b.signer.SignMessage(ctx, hash.Bytes())
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: %v", models.ErrSigningFailed, err)
	}
	op.Signature = append(append([]byte{}, ModeSudo[:]...), sig...)
	return hash, nil
}
