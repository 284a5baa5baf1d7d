package solvere

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/core-coin/solvere/internal/activity"
	"github.com/core-coin/solvere/internal/chains"
	"github.com/core-coin/solvere/internal/config"
	"github.com/core-coin/solvere/internal/models"
	"github.com/core-coin/solvere/internal/presign"
	"github.com/core-coin/solvere/internal/userop"
	"github.com/core-coin/solvere/pkg/logger"
)

// maxSubscriptionID keeps generated ids in the range the wallet has always used.
const maxSubscriptionID = 1_000_000_000_000

const idAttempts = 3

// Solvere is the main struct for the Solvere application
// It wires the payment engine of one smart account and serves all business logic
type Solvere struct {
	logger *logger.Logger
	config *config.Config

	repo        models.Repository
	chain       models.BlockchainService
	builder     *userop.Builder
	presigner   *presign.Presigner
	reconciler  *activity.Reconciler
	sender      models.AccountSender
	relay       models.Relay
	notificator models.NotificationService

	now   func() time.Time
	newID func() uint64
}

var _ models.SolvereI = (*Solvere)(nil)

// NewSolvere creates a new Solvere instance
func NewSolvere(
	repo models.Repository,
	chain models.BlockchainService,
	builder *userop.Builder,
	reconciler *activity.Reconciler,
	sender models.AccountSender,
	relay models.Relay,
	notificator models.NotificationService,
	logger *logger.Logger,
	config *config.Config,
) *Solvere {
	return &Solvere{
		logger:      logger.Named("solvere"),
		config:      config,
		repo:        repo,
		chain:       chain,
		builder:     builder,
		presigner:   presign.NewPresigner(builder, logger),
		reconciler:  reconciler,
		sender:      sender,
		relay:       relay,
		notificator: notificator,
		now:         time.Now,
		newID:       randomSubscriptionID,
	}
}

func randomSubscriptionID() uint64 {
	u := uuid.New()
	return binary.BigEndian.Uint64(u[:8])%(maxSubscriptionID-1) + 1
}

func (s *Solvere) scope(chainID int64) (models.Scope, *chains.Settings, error) {
	settings, err := s.builder.Registry().Get(chainID)
	if err != nil {
		return models.Scope{}, nil, err
	}
	return models.Scope{Account: s.builder.Account(), ChainID: chainID}, settings, nil
}

// Start reconciles every configured chain right away and then on every tick
// of RECONCILE_INTERVAL until ctx is done.
func (s *Solvere) Start(ctx context.Context) {
	ticker := time.NewTicker(s.config.ReconcileInterval)
	defer ticker.Stop()
	for {
		for _, chainID := range s.builder.Registry().ChainIDs() {
			s.logger.Debug("Reconciling activity", "chain_id", chainID)
			if _, err := s.Activity(ctx, chainID); err != nil {
				s.logger.Error("Failed to reconcile activity", "chain_id", chainID, "error", err)
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Solvere) notify(ctx context.Context, action *models.ActivityAction) {
	if s.notificator == nil {
		return
	}
	s.notificator.SendNotification(ctx, models.NotificationFromAction(action))
}

// CreateSubscription stores the subscription before its batch is uploaded. An
// upload failure is returned to the caller with the stored id in the message;
// the "Started subscription" action is only added once the relay has the batch.
func (s *Solvere) CreateSubscription(ctx context.Context, req models.NewSubscription) (*models.Subscription, error) {
	scope, _, err := s.scope(req.ChainID)
	if err != nil {
		return nil, err
	}
	sub := &models.Subscription{
		Account:           scope.Account.Hex(),
		ChainID:           req.ChainID,
		Name:              req.Name,
		TokenAddress:      req.TokenAddress.Hex(),
		HumanAmount:       req.HumanAmount,
		To:                req.To.Hex(),
		StartedAt:         s.now().Unix(),
		IntervalInSeconds: req.IntervalInSeconds,
	}
	if err := sub.Validate(); err != nil {
		return nil, err
	}

	tokens, err := s.repo.ListTokens(ctx, scope)
	if err != nil {
		return nil, err
	}
	token, ok := models.FindToken(tokens, sub.TokenAddress)
	if !ok {
		return nil, fmt.Errorf("%w: import %s first", models.ErrTokenNotFound, sub.TokenAddress)
	}
	if err := s.requireBalance(ctx, scope, token, sub.HumanAmount); err != nil {
		return nil, err
	}

	owner, err := s.chain.SubscriptionsOwner(ctx, scope.ChainID, scope.Account)
	if err != nil {
		return nil, fmt.Errorf("failed to check subscription validator: %w", err)
	}
	if owner != s.builder.Owner() {
		return nil, fmt.Errorf("%w: validator owner is %s", models.ErrSubscriptionsDisabled, owner.Hex())
	}

	if err := s.store(ctx, sub); err != nil {
		return nil, err
	}
	s.logger.Info("Subscription stored", "id", sub.ID, "chain_id", sub.ChainID, "name", sub.Name)

	// Sign what the reconciler will read back, not the request.
	sub, err = s.repo.GetSubscription(ctx, scope, sub.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload subscription: %w", err)
	}

	ops, err := s.presigner.PresignBatch(ctx, sub, token, s.config.PresignBatchSize)
	if err != nil {
		return nil, fmt.Errorf("subscription %d stored but not signed: %w", sub.ID, err)
	}
	if err := s.relay.Upload(ctx, sub, ops); err != nil {
		s.logger.Error("Failed to upload subscription operations", "id", sub.ID, "error", err)
		return nil, fmt.Errorf("subscription %d stored but not scheduled: %w", sub.ID, err)
	}

	started := startedAction(sub, token)
	if _, err := s.repo.AddActivity(ctx, started); err != nil {
		return nil, fmt.Errorf("failed to record subscription start: %w", err)
	}
	s.notify(ctx, started)
	return sub, nil
}

// store assigns a fresh id, retrying on the unlikely collision.
func (s *Solvere) store(ctx context.Context, sub *models.Subscription) error {
	var err error
	for i := 0; i < idAttempts; i++ {
		sub.ID = s.newID()
		if err = s.repo.AddSubscription(ctx, sub); !errors.Is(err, models.ErrSubscriptionExists) {
			return err
		}
	}
	return err
}

func (s *Solvere) requireBalance(ctx context.Context, scope models.Scope, token *models.Token, amount decimal.Decimal) error {
	balance, err := s.chain.TokenBalance(ctx, scope.ChainID, common.HexToAddress(token.Address), scope.Account)
	if err != nil {
		return fmt.Errorf("failed to read %s balance: %w", token.Symbol, err)
	}
	need := userop.IntegerAmount(amount, token.Decimals)
	if balance.Cmp(need) < 0 {
		have := decimal.NewFromBigInt(balance, -token.Decimals)
		return fmt.Errorf("%w: balance %s %s is below %s", models.ErrInsufficientFunds, have.String(), token.Symbol, amount.String())
	}
	return nil
}

// CancelSubscription terminates the subscription on chain first. Nothing is
// changed locally unless the terminate operation was included.
func (s *Solvere) CancelSubscription(ctx context.Context, chainID int64, id uint64) (common.Hash, error) {
	scope, settings, err := s.scope(chainID)
	if err != nil {
		return common.Hash{}, err
	}
	sub, err := s.repo.GetSubscription(ctx, scope, id)
	if err != nil {
		return common.Hash{}, err
	}
	if sub.Canceled() {
		return common.Hash{}, models.ErrAlreadyCanceled
	}

	data, err := userop.EncodeTerminateSubscription(id)
	if err != nil {
		return common.Hash{}, err
	}
	hash, err := s.sender.Send(ctx, chainID, models.Call{Target: settings.ValidatorAddress, Data: data})
	if err != nil {
		s.logger.Error("Failed to terminate subscription", "id", id, "chain_id", chainID, "error", err)
		return hash, fmt.Errorf("%w: %w", models.ErrCancellationFailed, err)
	}

	canceledAt := s.now().Unix()
	if err := s.repo.MarkSubscriptionCanceled(ctx, scope, id, canceledAt); err != nil {
		return hash, err
	}
	canceled := canceledAction(sub, canceledAt, hash)
	if _, err := s.repo.AddActivity(ctx, canceled); err != nil {
		return hash, fmt.Errorf("failed to record cancellation: %w", err)
	}
	s.logger.Info("Subscription canceled", "id", id, "chain_id", chainID, "hash", hash.Hex())
	s.notify(ctx, canceled)
	return hash, nil
}

func (s *Solvere) ListSubscriptions(ctx context.Context, chainID int64) ([]*models.Subscription, error) {
	scope, _, err := s.scope(chainID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListSubscriptions(ctx, scope)
}

func (s *Solvere) ImportToken(ctx context.Context, chainID int64, address common.Address) (*models.Token, error) {
	scope, _, err := s.scope(chainID)
	if err != nil {
		return nil, err
	}
	token, err := s.chain.ResolveToken(ctx, chainID, address)
	if err != nil {
		return nil, err
	}
	token.Account = scope.Account.Hex()
	token.ChainID = chainID
	if err := s.repo.AddToken(ctx, token); err != nil {
		return nil, err
	}
	s.logger.Info("Token imported", "chain_id", chainID, "address", token.Address, "symbol", token.Symbol)
	return token, nil
}

func (s *Solvere) ListTokens(ctx context.Context, chainID int64) ([]*models.Token, error) {
	scope, _, err := s.scope(chainID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListTokens(ctx, scope)
}

// SendToken transfers an imported token, or the native currency when token is
// the native sentinel address.
func (s *Solvere) SendToken(ctx context.Context, chainID int64, tokenAddress, to common.Address, amount decimal.Decimal) (common.Hash, error) {
	scope, _, err := s.scope(chainID)
	if err != nil {
		return common.Hash{}, err
	}
	if !amount.IsPositive() {
		return common.Hash{}, fmt.Errorf("%w: %s", models.ErrInvalidAmount, amount.String())
	}
	tokens, err := s.repo.ListTokens(ctx, scope)
	if err != nil {
		return common.Hash{}, err
	}
	token, ok := models.FindToken(tokens, tokenAddress.Hex())
	if !ok {
		return common.Hash{}, fmt.Errorf("%w: %s", models.ErrTokenNotFound, tokenAddress.Hex())
	}
	if err := s.requireBalance(ctx, scope, token, amount); err != nil {
		return common.Hash{}, err
	}

	raw := userop.IntegerAmount(amount, token.Decimals)
	call := models.Call{Target: to, Value: raw}
	if !token.IsNative() {
		data, err := userop.EncodeTransfer(to, raw)
		if err != nil {
			return common.Hash{}, err
		}
		call = models.Call{Target: tokenAddress, Value: new(big.Int), Data: data}
	}

	hash, err := s.sender.Send(ctx, chainID, call)
	if err != nil {
		return hash, err
	}
	sent := sentAction(scope, token, to, amount, s.now().Unix(), hash)
	if _, err := s.repo.AddActivity(ctx, sent); err != nil {
		return hash, fmt.Errorf("failed to record transfer: %w", err)
	}
	return hash, nil
}

// Activity runs one reconciliation pass and notifies about every payment it
// recorded.
func (s *Solvere) Activity(ctx context.Context, chainID int64) ([]*models.ActivityAction, error) {
	scope, _, err := s.scope(chainID)
	if err != nil {
		return nil, err
	}
	pass, err := s.reconciler.Reconcile(ctx, scope, s.now().Unix())
	if err != nil {
		return nil, err
	}
	if pass.Failed > 0 {
		s.logger.Warn("Some subscriptions could not be reconciled", "chain_id", chainID, "failed", pass.Failed)
	}
	for _, payment := range pass.Recorded {
		s.notify(ctx, payment)
	}
	return pass.Feed, nil
}
