package chains

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/core-coin/solvere/internal/models"
)

func TestNewRegistry(t *testing.T) {
	validator := common.HexToAddress("0x1000000000000000000000000000000000000001")
	executor := common.HexToAddress("0x2000000000000000000000000000000000000002")

	r, err := NewRegistry(map[int64]Deployment{
		BaseGoerli: {ValidatorAddress: validator, ExecutorAddress: executor},
	})
	require.NoError(t, err)

	s, err := r.Get(BaseGoerli)
	require.NoError(t, err)
	assert.Equal(t, validator, s.ValidatorAddress)
	assert.Equal(t, executor, s.ExecutorAddress)
	assert.Equal(t, EntryPointV06, s.EntryPoint)
	assert.Equal(t, int64(300_000), s.Gas.CallGasLimit.Int64())
	assert.Equal(t, int64(1_000_000_000), s.Gas.MaxFeePerGas.Int64())
	assert.Equal(t, int64(100_000_000), s.Gas.MaxPriorityFeePerGas.Int64())
	assert.Equal(t, []int64{BaseGoerli}, r.ChainIDs())

	_, err = r.Get(BaseMainnet)
	assert.ErrorIs(t, err, models.ErrUnsupportedChain)
}

func TestNewRegistry_RejectsUnknownChain(t *testing.T) {
	_, err := NewRegistry(map[int64]Deployment{
		1: {ValidatorAddress: common.HexToAddress("0x01")},
	})
	assert.ErrorIs(t, err, models.ErrUnsupportedChain)
}

func TestNewRegistry_RequiresValidator(t *testing.T) {
	_, err := NewRegistry(map[int64]Deployment{BaseMainnet: {}})
	assert.Error(t, err)
}

func TestPaymentSelector(t *testing.T) {
	assert.Len(t, PaymentSelector, 4)
	assert.Equal(t, PaymentSelector, defaultsFor(t, BaseMainnet).PaymentSelector)
	assert.Equal(t, 10, len(hexutil.Encode(PaymentSelector)))
}

func TestExplorerURL(t *testing.T) {
	s := defaultsFor(t, BaseMainnet)
	assert.Equal(t, "https://www.jiffyscan.xyz/userOpHash/0xabc?network=base", s.ExplorerURL("0xabc"))
}

func defaultsFor(t *testing.T, chainID int64) Settings {
	t.Helper()
	s, ok := Defaults(chainID)
	require.True(t, ok)
	return s
}
