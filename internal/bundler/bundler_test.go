package bundler

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/core-coin/solvere/internal/chains"
	"github.com/core-coin/solvere/internal/models"
	"github.com/core-coin/solvere/internal/signer"
	"github.com/core-coin/solvere/internal/userop"
	"github.com/core-coin/solvere/pkg/logger"
)

const testKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

var account = common.HexToAddress("0x1111111111111111111111111111111111111111")

// fakeBundler implements the eth_ namespace of a bundler.
type fakeBundler struct {
	mu           sync.Mutex
	executed     map[common.Hash]bool
	pending      map[common.Hash]bool
	sent         []models.UserOperation
	reject       string
	revert       bool
	receiptAfter int
	polls        int
}

func (f *fakeBundler) GetUserOperationByHash(hash common.Hash) (map[string]interface{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pending[hash] {
		return map[string]interface{}{
			"entryPoint":      chains.EntryPointV06,
			"transactionHash": nil,
			"blockNumber":     nil,
		}, nil
	}
	if !f.executed[hash] {
		return nil, nil
	}
	return map[string]interface{}{
		"entryPoint":      chains.EntryPointV06,
		"transactionHash": common.HexToHash("0xfeed"),
		"blockNumber":     (*hexutil.Big)(big.NewInt(123)),
	}, nil
}

func (f *fakeBundler) SendUserOperation(op models.UserOperation, entryPoint common.Address) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reject != "" {
		return common.Hash{}, errors.New(f.reject)
	}
	f.sent = append(f.sent, op)
	return userop.Hash(&op, entryPoint, chains.BaseGoerli)
}

func (f *fakeBundler) GetUserOperationReceipt(hash common.Hash) (*Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	if f.polls <= f.receiptAfter {
		return nil, nil
	}
	r := &Receipt{UserOpHash: hash, Success: !f.revert}
	if f.revert {
		r.Reason = "execution reverted"
	}
	return r, nil
}

type fixedNonce struct{}

func (fixedNonce) EntryPointNonce(context.Context, int64, common.Address, *big.Int) (*big.Int, error) {
	return big.NewInt(4), nil
}

func newTestClient(t *testing.T, fake *fakeBundler) *Client {
	t.Helper()
	server := rpc.NewServer()
	require.NoError(t, server.RegisterName("eth", fake))
	t.Cleanup(server.Stop)

	c := NewClient(1000, logger.NewNop())
	c.pollInterval = time.Millisecond
	c.attach(chains.BaseGoerli, rpc.DialInProc(server))
	t.Cleanup(c.Close)
	return c
}

func newTestSender(t *testing.T, fake *fakeBundler) (*Sender, *signer.LocalSigner) {
	t.Helper()
	s, err := signer.NewLocalSigner(testKey)
	require.NoError(t, err)
	settings, _ := chains.Defaults(chains.BaseGoerli)
	settings.ValidatorAddress = common.HexToAddress("0x3333333333333333333333333333333333333333")
	builder := userop.NewBuilder(account, chains.NewStaticRegistry(settings), s)
	return NewSender(newTestClient(t, fake), builder, fixedNonce{}, logger.NewNop()), s
}

func TestGetOperationResult(t *testing.T) {
	known := common.HexToHash("0x01")
	c := newTestClient(t, &fakeBundler{executed: map[common.Hash]bool{known: true}})

	res, err := c.GetOperationResult(context.Background(), chains.BaseGoerli, known)
	require.NoError(t, err)
	assert.True(t, res.IsFound())
	assert.Equal(t, uint64(123), res.BlockNumber)
	assert.Equal(t, chains.EntryPointV06, res.EntryPoint)

	res, err = c.GetOperationResult(context.Background(), chains.BaseGoerli, common.HexToHash("0x02"))
	require.NoError(t, err)
	assert.False(t, res.IsFound())

	_, err = c.GetOperationResult(context.Background(), chains.BaseMainnet, known)
	assert.ErrorIs(t, err, models.ErrUnsupportedChain)
}

func TestGetOperationResult_PendingIsNotFound(t *testing.T) {
	pending := common.HexToHash("0x03")
	c := newTestClient(t, &fakeBundler{pending: map[common.Hash]bool{pending: true}})

	res, err := c.GetOperationResult(context.Background(), chains.BaseGoerli, pending)
	require.NoError(t, err)
	assert.False(t, res.IsFound())
}

func TestWaitForReceipt_Polls(t *testing.T) {
	fake := &fakeBundler{receiptAfter: 2}
	c := newTestClient(t, fake)

	receipt, err := c.WaitForReceipt(context.Background(), chains.BaseGoerli, common.HexToHash("0x01"))
	require.NoError(t, err)
	assert.True(t, receipt.Success)
	assert.Equal(t, 3, fake.polls)
}

func TestWaitForReceipt_Timeout(t *testing.T) {
	c := newTestClient(t, &fakeBundler{receiptAfter: 1 << 30})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.WaitForReceipt(ctx, chains.BaseGoerli, common.HexToHash("0x01"))
	assert.ErrorIs(t, err, ErrReceiptTimeout)
}

func TestSend(t *testing.T) {
	fake := &fakeBundler{}
	sender, s := newTestSender(t, fake)
	target := common.HexToAddress("0x3333333333333333333333333333333333333333")

	hash, err := sender.Send(context.Background(), chains.BaseGoerli, models.Call{Target: target, Data: []byte{1, 2, 3, 4}})
	require.NoError(t, err)

	require.Len(t, fake.sent, 1)
	op := fake.sent[0]
	assert.Equal(t, account, op.Sender)
	assert.Equal(t, int64(4), op.Nonce.Int64())
	assert.Equal(t, userop.ModeSudo[:], []byte(op.Signature[:4]))

	expected, err := userop.Hash(&op, chains.EntryPointV06, chains.BaseGoerli)
	require.NoError(t, err)
	assert.Equal(t, expected, hash)

	recovered, err := signer.RecoverMessageSigner(hash.Bytes(), op.Signature[4:])
	require.NoError(t, err)
	assert.Equal(t, s.Address(), recovered)
}

func TestSend_Failures(t *testing.T) {
	target := common.HexToAddress("0x3333333333333333333333333333333333333333")

	sender, _ := newTestSender(t, &fakeBundler{reject: "AA21 didn't pay prefund"})
	_, err := sender.Send(context.Background(), chains.BaseGoerli, models.Call{Target: target})
	assert.ErrorIs(t, err, models.ErrInsufficientFunds)

	sender, _ = newTestSender(t, &fakeBundler{reject: "invalid signature"})
	_, err = sender.Send(context.Background(), chains.BaseGoerli, models.Call{Target: target})
	assert.ErrorIs(t, err, models.ErrSubmissionFailed)

	sender, _ = newTestSender(t, &fakeBundler{revert: true})
	hash, err := sender.Send(context.Background(), chains.BaseGoerli, models.Call{Target: target})
	assert.ErrorIs(t, err, models.ErrSubmissionFailed)
	assert.NotEqual(t, common.Hash{}, hash)

	_, err = sender.Send(context.Background(), chains.BaseMainnet, models.Call{Target: target})
	assert.ErrorIs(t, err, models.ErrUnsupportedChain)
}
