package activity

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/core-coin/solvere/internal/chains"
	"github.com/core-coin/solvere/internal/models"
	"github.com/core-coin/solvere/internal/signer"
	"github.com/core-coin/solvere/internal/userop"
	"github.com/core-coin/solvere/pkg/logger"
)

const (
	testKey  = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	start    = int64(1_700_000_000)
	interval = int64(3600)
	usdc     = "0x036CbD53842c5426634e7929541eC2318f3dCF7e"
)

var (
	account = common.HexToAddress("0x1111111111111111111111111111111111111111")
	scope   = models.Scope{Account: account, ChainID: chains.BaseGoerli}
)

// memRepo keeps everything in memory and enforces the payment dedup key.
type memRepo struct {
	models.Repository
	mu       sync.Mutex
	subs     []*models.Subscription
	tokens   []*models.Token
	activity []*models.ActivityAction
	keys     map[string]bool
}

func newMemRepo() *memRepo {
	return &memRepo{keys: map[string]bool{}}
}

func (m *memRepo) ListSubscriptions(context.Context, models.Scope) ([]*models.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.Subscription(nil), m.subs...), nil
}

func (m *memRepo) ListTokens(context.Context, models.Scope) ([]*models.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.Token(nil), m.tokens...), nil
}

func (m *memRepo) ListActivity(context.Context, models.Scope) ([]*models.ActivityAction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.ActivityAction, 0, len(m.activity))
	for _, a := range m.activity {
		cp := *a
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memRepo) AddActivity(_ context.Context, action *models.ActivityAction) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys[action.DedupKey] {
		return false, nil
	}
	m.keys[action.DedupKey] = true
	cp := *action
	m.activity = append(m.activity, &cp)
	return true, nil
}

func (m *memRepo) payments() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, a := range m.activity {
		if a.ActivityType == models.ActivitySubscriptionPayment {
			n++
		}
	}
	return n
}

// fakeLookup reports hashes in found as executed and fails for hashes in failing.
type fakeLookup struct {
	mu      sync.Mutex
	found   map[common.Hash]bool
	failing map[common.Hash]bool
	queried []common.Hash
}

func newFakeLookup() *fakeLookup {
	return &fakeLookup{found: map[common.Hash]bool{}, failing: map[common.Hash]bool{}}
}

func (f *fakeLookup) GetOperationResult(_ context.Context, _ int64, hash common.Hash) (models.OperationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queried = append(f.queried, hash)
	if f.failing[hash] {
		return models.NotFound(), errors.New("bundler unavailable")
	}
	if f.found[hash] {
		return models.Found(chains.EntryPointV06, common.HexToHash("0xabc"), 1), nil
	}
	return models.NotFound(), nil
}

func newBuilder(t *testing.T) *userop.Builder {
	t.Helper()
	s, err := signer.NewLocalSigner(testKey)
	require.NoError(t, err)
	settings, _ := chains.Defaults(chains.BaseGoerli)
	settings.ValidatorAddress = common.HexToAddress("0x3333333333333333333333333333333333333333")
	return userop.NewBuilder(account, chains.NewStaticRegistry(settings), s)
}

func subscription(id uint64) *models.Subscription {
	return &models.Subscription{
		ID:                id,
		Account:           account.Hex(),
		ChainID:           chains.BaseGoerli,
		Name:              "Netflix",
		TokenAddress:      usdc,
		HumanAmount:       decimal.NewFromInt(10),
		To:                "0x2222222222222222222222222222222222222222",
		StartedAt:         start,
		IntervalInSeconds: interval,
	}
}

func usdcToken() *models.Token {
	return &models.Token{Account: account.Hex(), ChainID: chains.BaseGoerli, Address: usdc, Symbol: "USDC", Decimals: 6}
}

func hashOf(t *testing.T, b *userop.Builder, sub *models.Subscription, seq uint64) common.Hash {
	t.Helper()
	h, err := b.PaymentHash(sub, usdcToken(), seq)
	require.NoError(t, err)
	return h
}

func newReconciler(b *userop.Builder, repo models.Repository, strategy Strategy) *Reconciler {
	return NewReconciler(repo, b.Registry(), strategy, 2, logger.NewNop())
}

func TestProbing_StopsAtFirstMissingPayment(t *testing.T) {
	b := newBuilder(t)
	repo := newMemRepo()
	sub := subscription(1)
	repo.subs = []*models.Subscription{sub}
	repo.tokens = []*models.Token{usdcToken()}

	lookup := newFakeLookup()
	lookup.found[hashOf(t, b, sub, 0)] = true
	lookup.found[hashOf(t, b, sub, 2)] = true

	r := newReconciler(b, repo, NewProbingStrategy(b, lookup, 100))
	pass, err := r.Reconcile(context.Background(), scope, start+3*interval)
	require.NoError(t, err)

	require.Len(t, pass.Recorded, 1)
	assert.Equal(t, start, pass.Recorded[0].Timestamp)
	assert.Equal(t, []common.Hash{hashOf(t, b, sub, 0), hashOf(t, b, sub, 1)}, lookup.queried)
}

func TestProbing_ContinuesAfterLastStoredPayment(t *testing.T) {
	b := newBuilder(t)
	repo := newMemRepo()
	sub := subscription(1)
	repo.subs = []*models.Subscription{sub}
	repo.tokens = []*models.Token{usdcToken()}

	lookup := newFakeLookup()
	for seq := uint64(0); seq < 5; seq++ {
		lookup.found[hashOf(t, b, sub, seq)] = true
	}
	r := newReconciler(b, repo, NewProbingStrategy(b, lookup, 100))

	_, err := r.Reconcile(context.Background(), scope, start+interval)
	require.NoError(t, err)
	assert.Equal(t, 1, repo.payments())

	lookup.queried = nil
	pass, err := r.Reconcile(context.Background(), scope, start+3*interval)
	require.NoError(t, err)
	require.Len(t, pass.Recorded, 2)
	assert.Equal(t, []common.Hash{hashOf(t, b, sub, 1), hashOf(t, b, sub, 2)}, lookup.queried)
	assert.Equal(t, uint64(2), *pass.Recorded[1].Details.SequenceIndex)
	assert.Equal(t, 3, repo.payments())
}

func TestProbing_RespectsLimit(t *testing.T) {
	b := newBuilder(t)
	sub := subscription(1)
	lookup := newFakeLookup()
	for seq := uint64(0); seq < 10; seq++ {
		lookup.found[hashOf(t, b, sub, seq)] = true
	}

	actions, err := NewProbingStrategy(b, lookup, 2).Payments(context.Background(), sub, usdcToken(), nil, start+10*interval)
	require.NoError(t, err)
	assert.Len(t, actions, 2)
}

func TestBatch_IsIdempotent(t *testing.T) {
	b := newBuilder(t)
	repo := newMemRepo()
	repo.subs = []*models.Subscription{subscription(1)}
	repo.tokens = []*models.Token{usdcToken()}
	r := newReconciler(b, repo, NewBatchStrategy(b, 0))

	first, err := r.Reconcile(context.Background(), scope, start+7201)
	require.NoError(t, err)
	assert.Len(t, first.Recorded, 3)

	second, err := r.Reconcile(context.Background(), scope, start+7201)
	require.NoError(t, err)
	assert.Empty(t, second.Recorded)
	assert.Equal(t, 3, repo.payments())
	assert.Len(t, second.Feed, 3)
}

func TestBatch_StopsAtPresignedWindow(t *testing.T) {
	b := newBuilder(t)
	sub := subscription(1)

	actions, err := NewBatchStrategy(b, 3).Payments(context.Background(), sub, usdcToken(), nil, start+10*interval)
	require.NoError(t, err)
	require.Len(t, actions, 3)
	assert.Equal(t, uint64(2), *actions[2].Details.SequenceIndex)
}

func TestBatch_CanceledSubscriptionIsFrozen(t *testing.T) {
	b := newBuilder(t)
	repo := newMemRepo()
	sub := subscription(1)
	canceledAt := start + 5000
	sub.CanceledAt = &canceledAt
	repo.subs = []*models.Subscription{sub}
	repo.tokens = []*models.Token{usdcToken()}

	pass, err := newReconciler(b, repo, NewBatchStrategy(b, 0)).Reconcile(context.Background(), scope, start+100000)
	require.NoError(t, err)
	assert.Len(t, pass.Recorded, 2)
}

func TestReconcile_MissingTokenNotice(t *testing.T) {
	b := newBuilder(t)
	repo := newMemRepo()
	repo.subs = []*models.Subscription{subscription(1)}
	lookup := newFakeLookup()

	pass, err := newReconciler(b, repo, NewProbingStrategy(b, lookup, 100)).Reconcile(context.Background(), scope, start+10*interval)
	require.NoError(t, err)

	require.Len(t, pass.Feed, 1)
	assert.Equal(t, models.ActivityNotice, pass.Feed[0].ActivityType)
	assert.Equal(t, models.FarFuture, pass.Feed[0].Timestamp)
	assert.Contains(t, pass.Feed[0].Description, "Please import token")
	assert.Empty(t, lookup.queried)
	assert.Empty(t, repo.activity)
}

func TestReconcile_FailureIsLocalToSubscription(t *testing.T) {
	b := newBuilder(t)
	repo := newMemRepo()
	broken, healthy := subscription(1), subscription(2)
	repo.subs = []*models.Subscription{broken, healthy}
	repo.tokens = []*models.Token{usdcToken()}

	lookup := newFakeLookup()
	lookup.failing[hashOf(t, b, broken, 0)] = true
	lookup.found[hashOf(t, b, healthy, 0)] = true

	pass, err := newReconciler(b, repo, NewProbingStrategy(b, lookup, 100)).Reconcile(context.Background(), scope, start+interval)
	require.NoError(t, err)
	assert.Equal(t, 1, pass.Failed)
	require.Len(t, pass.Recorded, 1)
	assert.True(t, pass.Recorded[0].IsPaymentOf(2))
}

func TestReconcile_FeedOrderAndLinks(t *testing.T) {
	b := newBuilder(t)
	repo := newMemRepo()
	repo.subs = []*models.Subscription{subscription(1)}
	repo.tokens = []*models.Token{usdcToken()}
	repo.activity = []*models.ActivityAction{{
		Account:      account.Hex(),
		ChainID:      chains.BaseGoerli,
		DedupKey:     "start",
		Title:        models.TitleStartedSubscription,
		Timestamp:    start,
		ActivityType: models.ActivityStartSubscription,
	}}

	pass, err := newReconciler(b, repo, NewBatchStrategy(b, 0)).Reconcile(context.Background(), scope, start+2*interval)
	require.NoError(t, err)
	require.Len(t, pass.Feed, 3)

	assert.Equal(t, start+interval, pass.Feed[0].Timestamp)
	assert.Equal(t, models.TitleSubscriptionPayment, pass.Feed[1].Title)
	assert.Equal(t, start, pass.Feed[1].Timestamp)
	assert.Equal(t, models.TitleStartedSubscription, pass.Feed[2].Title)

	assert.Contains(t, pass.Feed[0].ExplorerLink, "https://www.jiffyscan.xyz/userOpHash/0x")
	assert.Contains(t, pass.Feed[0].ExplorerLink, "network=base-testnet")
	assert.Empty(t, pass.Feed[2].ExplorerLink)
}

func TestReconcile_UnsupportedChain(t *testing.T) {
	b := newBuilder(t)
	_, err := newReconciler(b, newMemRepo(), NewBatchStrategy(b, 0)).Reconcile(context.Background(), models.Scope{Account: account, ChainID: 1}, start)
	assert.ErrorIs(t, err, models.ErrUnsupportedChain)
}

func TestPaymentDescription(t *testing.T) {
	assert.Equal(t, "Paid 10.000000 USDC for subscription Netflix to 0x22...22", PaymentDescription(subscription(1), usdcToken()))
}

func TestNewStrategy(t *testing.T) {
	b := newBuilder(t)
	s, err := NewStrategy("batch", b, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, StrategyBatch, s.Name())

	s, err = NewStrategy("", b, newFakeLookup(), 0)
	require.NoError(t, err)
	assert.Equal(t, StrategyProbing, s.Name())

	_, err = NewStrategy("eager", b, nil, 0)
	assert.Error(t, err)
}
