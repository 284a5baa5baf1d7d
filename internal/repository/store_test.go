package repository

import (
	"context"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/core-coin/solvere/internal/models"
	"github.com/core-coin/solvere/pkg/logger"
)

var (
	account = common.HexToAddress("0x1111111111111111111111111111111111111111")
	scope   = models.Scope{Account: account, ChainID: 8453}
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	store, err := NewSQLiteDB(dsn, logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func subscription(id uint64) *models.Subscription {
	return &models.Subscription{
		ID:                id,
		Account:           "0x1111111111111111111111111111111111111111",
		ChainID:           8453,
		Name:              "Netflix",
		TokenAddress:      "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
		HumanAmount:       decimal.RequireFromString("9.99"),
		To:                "0x2222222222222222222222222222222222222222",
		StartedAt:         1000,
		IntervalInSeconds: 3600,
	}
}

func TestSubscriptions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AddSubscription(ctx, subscription(2)))
	require.NoError(t, store.AddSubscription(ctx, subscription(1)))

	other := subscription(3)
	other.ChainID = 84531
	require.NoError(t, store.AddSubscription(ctx, other))

	err := store.AddSubscription(ctx, subscription(1))
	assert.ErrorIs(t, err, models.ErrSubscriptionExists)

	subs, err := store.ListSubscriptions(ctx, scope)
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, uint64(1), subs[0].ID)
	assert.True(t, decimal.RequireFromString("9.99").Equal(subs[0].HumanAmount))
	assert.Nil(t, subs[0].CanceledAt)

	sub, err := store.GetSubscription(ctx, scope, 2)
	require.NoError(t, err)
	assert.Equal(t, "Netflix", sub.Name)

	_, err = store.GetSubscription(ctx, scope, 3)
	assert.ErrorIs(t, err, models.ErrSubscriptionNotFound)
}

func TestSubscriptionAmountIsExact(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i, amount := range []string{"1.000000000000000001", "0.123456789012345678", "123456789012.345678"} {
		sub := subscription(uint64(i + 1))
		sub.HumanAmount = decimal.RequireFromString(amount)
		require.NoError(t, store.AddSubscription(ctx, sub))

		stored, err := store.GetSubscription(ctx, scope, sub.ID)
		require.NoError(t, err)
		assert.Equal(t, amount, stored.HumanAmount.String())
	}
}

func TestMarkSubscriptionCanceled(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.AddSubscription(ctx, subscription(1)))

	require.NoError(t, store.MarkSubscriptionCanceled(ctx, scope, 1, 5000))
	sub, err := store.GetSubscription(ctx, scope, 1)
	require.NoError(t, err)
	require.NotNil(t, sub.CanceledAt)
	assert.Equal(t, int64(5000), *sub.CanceledAt)

	err = store.MarkSubscriptionCanceled(ctx, scope, 1, 6000)
	assert.ErrorIs(t, err, models.ErrAlreadyCanceled)

	err = store.MarkSubscriptionCanceled(ctx, scope, 9, 6000)
	assert.ErrorIs(t, err, models.ErrSubscriptionNotFound)
}

func TestTokens(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	token := &models.Token{Account: account.Hex(), ChainID: 8453, Address: "0x833589fcd6edb6e08f4c7c32d4f71b54bda02913", Name: "USD", Symbol: "USDC", Decimals: 6}
	require.NoError(t, store.AddToken(ctx, token))

	again := *token
	again.Name = "USD Coin"
	require.NoError(t, store.AddToken(ctx, &again))

	tokens, err := store.ListTokens(ctx, scope)
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.Equal(t, "USD Coin", tokens[0].Name)
	assert.Equal(t, "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", tokens[0].Address)
}

func TestAddActivity_Dedup(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	id := uint64(1)

	payment := func() *models.ActivityAction {
		return &models.ActivityAction{
			Account:      account.Hex(),
			ChainID:      8453,
			DedupKey:     models.PaymentDedupKey(1, 4600),
			Title:        models.TitleSubscriptionPayment,
			Timestamp:    4600,
			ActivityType: models.ActivitySubscriptionPayment,
			Details:      models.ActivityDetails{SubscriptionID: &id},
		}
	}

	inserted, err := store.AddActivity(ctx, payment())
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = store.AddActivity(ctx, payment())
	require.NoError(t, err)
	assert.False(t, inserted)

	// Same key on another chain is a different payment.
	other := payment()
	other.ChainID = 84531
	inserted, err = store.AddActivity(ctx, other)
	require.NoError(t, err)
	assert.True(t, inserted)

	// Non-payment actions never collide.
	for i := 0; i < 2; i++ {
		inserted, err = store.AddActivity(ctx, &models.ActivityAction{
			Account:      account.Hex(),
			ChainID:      8453,
			Title:        models.TitleSentToken,
			Timestamp:    4600,
			ActivityType: models.ActivityTransfer,
		})
		require.NoError(t, err)
		assert.True(t, inserted)
	}

	actions, err := store.ListActivity(ctx, scope)
	require.NoError(t, err)
	require.Len(t, actions, 3)
	assert.True(t, actions[0].IsPaymentOf(1))

	_, err = store.AddActivity(ctx, &models.ActivityAction{ActivityType: models.ActivityNotice})
	assert.Error(t, err)
}
