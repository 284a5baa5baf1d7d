package bundler

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/core-coin/solvere/internal/models"
	"github.com/core-coin/solvere/internal/userop"
	"github.com/core-coin/solvere/pkg/logger"
)

// DefaultInclusionTimeout bounds how long Send waits for a receipt.
const DefaultInclusionTimeout = 2 * time.Minute

// NonceSource reads EntryPoint nonces.
type NonceSource interface {
	EntryPointNonce(ctx context.Context, chainID int64, sender common.Address, key *big.Int) (*big.Int, error)
}

// Sender executes single calls through the smart account with its sudo
// validator. Immediate operations use nonce key 0, which no subscription uses.
type Sender struct {
	client  *Client
	builder *userop.Builder
	nonces  NonceSource
	timeout time.Duration
	logger  *logger.Logger
}

var _ models.AccountSender = (*Sender)(nil)

func NewSender(client *Client, builder *userop.Builder, nonces NonceSource, logger *logger.Logger) *Sender {
	return &Sender{
		client:  client,
		builder: builder,
		nonces:  nonces,
		timeout: DefaultInclusionTimeout,
		logger:  logger.Named("sender"),
	}
}

// Send builds, signs and submits call, then waits for it to be included.
// A rejected or reverted operation yields ErrSubmissionFailed, or
// ErrInsufficientFunds when the account cannot pay for gas.
func (s *Sender) Send(ctx context.Context, chainID int64, call models.Call) (common.Hash, error) {
	settings, err := s.builder.Registry().Get(chainID)
	if err != nil {
		return common.Hash{}, err
	}
	callData, err := userop.EncodeExecute(call.Target, call.Value, call.Data)
	if err != nil {
		return common.Hash{}, err
	}
	account := s.builder.Account()
	nonce, err := s.nonces.EntryPointNonce(ctx, chainID, account, new(big.Int))
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: %v", models.ErrSubmissionFailed, err)
	}

	op := &models.UserOperation{
		Sender:               account,
		Nonce:                nonce,
		InitCode:             []byte{},
		CallData:             callData,
		CallGasLimit:         new(big.Int).Set(settings.Gas.CallGasLimit),
		VerificationGasLimit: new(big.Int).Set(settings.Gas.VerificationGasLimit),
		PreVerificationGas:   new(big.Int).Set(settings.Gas.PreVerificationGas),
		MaxFeePerGas:         new(big.Int).Set(settings.Gas.MaxFeePerGas),
		MaxPriorityFeePerGas: new(big.Int).Set(settings.Gas.MaxPriorityFeePerGas),
		PaymasterAndData:     []byte{},
	}
	hash, err := s.builder.SignSudo(ctx, op, chainID)
	if err != nil {
		return common.Hash{}, err
	}

	sent, err := s.client.SendUserOperation(ctx, chainID, op, settings.EntryPoint)
	if err != nil {
		return common.Hash{}, classify(err)
	}
	if sent != hash {
		s.logger.Warn("Bundler returned a different operation hash", "expected", hash.Hex(), "got", sent.Hex())
	}
	s.logger.Info("Submitted user operation", "chain_id", chainID, "hash", sent.Hex(), "target", call.Target.Hex())

	waitCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	receipt, err := s.client.WaitForReceipt(waitCtx, chainID, sent)
	if err != nil {
		return sent, fmt.Errorf("%w: %v", models.ErrSubmissionFailed, err)
	}
	if !receipt.Success {
		return sent, fmt.Errorf("%w: operation %s reverted: %s", models.ErrSubmissionFailed, sent.Hex(), receipt.Reason)
	}
	return sent, nil
}

// classify maps bundler rejections to the service's errors. AA21 and AA31 are
// the EntryPoint codes for an unfunded account or paymaster.
func classify(err error) error {
	msg := err.Error()
	if strings.Contains(msg, "AA21") || strings.Contains(msg, "AA31") || strings.Contains(strings.ToLower(msg), "insufficient funds") {
		return fmt.Errorf("%w: %v", models.ErrInsufficientFunds, err)
	}
	return fmt.Errorf("%w: %v", models.ErrSubmissionFailed, err)
}
