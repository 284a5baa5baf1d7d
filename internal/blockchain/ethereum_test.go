package blockchain

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/core-coin/solvere/internal/chains"
	"github.com/core-coin/solvere/internal/models"
	"github.com/core-coin/solvere/internal/userop"
	"github.com/core-coin/solvere/pkg/logger"
)

var (
	usdc      = common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913")
	account   = common.HexToAddress("0x1111111111111111111111111111111111111111")
	owner     = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	validator = common.HexToAddress("0x3333333333333333333333333333333333333333")
)

type callArgs struct {
	To    *common.Address `json:"to"`
	Data  hexutil.Bytes   `json:"data"`
	Input hexutil.Bytes   `json:"input"`
}

// fakeEth answers eth_call and eth_getBalance like a node with USDC, the
// subscription validator and the EntryPoint deployed.
type fakeEth struct{}

func (f *fakeEth) Call(_ context.Context, args callArgs, _ string) (hexutil.Bytes, error) {
	input := args.Input
	if len(input) == 0 {
		input = args.Data
	}
	if args.To == nil || len(input) < 4 {
		return nil, errors.New("bad call")
	}
	erc20 := userop.ERC20ContractABI()
	sub := userop.SubscriptionContractABI()
	parsedEntryPoint, err := abi.JSON(strings.NewReader(EntryPointABI))
	if err != nil {
		return nil, err
	}

	selector := input[:4]
	switch {
	case *args.To == usdc && bytes.Equal(selector, erc20.Methods["name"].ID):
		return erc20.Methods["name"].Outputs.Pack("USD Coin")
	case *args.To == usdc && bytes.Equal(selector, erc20.Methods["symbol"].ID):
		return erc20.Methods["symbol"].Outputs.Pack("USDC")
	case *args.To == usdc && bytes.Equal(selector, erc20.Methods["decimals"].ID):
		return erc20.Methods["decimals"].Outputs.Pack(uint8(6))
	case *args.To == usdc && bytes.Equal(selector, erc20.Methods["balanceOf"].ID):
		return erc20.Methods["balanceOf"].Outputs.Pack(big.NewInt(25_000_000))
	case *args.To == validator && bytes.Equal(selector, sub.Methods["subscriptionValidatorStorage"].ID):
		return sub.Methods["subscriptionValidatorStorage"].Outputs.Pack(owner)
	case *args.To == chains.EntryPointV06 && bytes.Equal(selector, parsedEntryPoint.Methods["getNonce"].ID):
		return parsedEntryPoint.Methods["getNonce"].Outputs.Pack(big.NewInt(7))
	}
	return nil, errors.New("execution reverted")
}

func (f *fakeEth) GetBalance(_ context.Context, _ common.Address, _ string) (*hexutil.Big, error) {
	return (*hexutil.Big)(big.NewInt(1e18)), nil
}

func newTestEthereum(t *testing.T) *Ethereum {
	t.Helper()
	server := rpc.NewServer()
	require.NoError(t, server.RegisterName("eth", &fakeEth{}))
	t.Cleanup(server.Stop)

	settings, _ := chains.Defaults(chains.BaseMainnet)
	settings.ValidatorAddress = validator
	e := NewEthereum(nil, chains.NewStaticRegistry(settings), logger.NewNop())
	require.NoError(t, e.BuildBindings())
	e.attach(chains.BaseMainnet, ethclient.NewClient(rpc.DialInProc(server)))
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestResolveToken(t *testing.T) {
	e := newTestEthereum(t)

	token, err := e.ResolveToken(context.Background(), chains.BaseMainnet, usdc)
	require.NoError(t, err)
	assert.Equal(t, "USD Coin", token.Name)
	assert.Equal(t, "USDC", token.Symbol)
	assert.Equal(t, int32(6), token.Decimals)
	assert.Equal(t, usdc.Hex(), token.Address)

	native, err := e.ResolveToken(context.Background(), chains.BaseMainnet, models.NativeTokenAddress)
	require.NoError(t, err)
	assert.Equal(t, int32(18), native.Decimals)

	_, err = e.ResolveToken(context.Background(), chains.BaseMainnet, common.HexToAddress("0x9999999999999999999999999999999999999999"))
	assert.Error(t, err)
}

func TestTokenBalance(t *testing.T) {
	e := newTestEthereum(t)

	balance, err := e.TokenBalance(context.Background(), chains.BaseMainnet, usdc, account)
	require.NoError(t, err)
	assert.Equal(t, int64(25_000_000), balance.Int64())

	native, err := e.TokenBalance(context.Background(), chains.BaseMainnet, models.NativeTokenAddress, account)
	require.NoError(t, err)
	assert.Equal(t, int64(1e18), native.Int64())
}

func TestSubscriptionsOwnerAndNonce(t *testing.T) {
	e := newTestEthereum(t)

	got, err := e.SubscriptionsOwner(context.Background(), chains.BaseMainnet, account)
	require.NoError(t, err)
	assert.Equal(t, owner, got)

	nonce, err := e.EntryPointNonce(context.Background(), chains.BaseMainnet, account, big.NewInt(0))
	require.NoError(t, err)
	assert.Equal(t, int64(7), nonce.Int64())
}

func TestUnknownChain(t *testing.T) {
	e := newTestEthereum(t)

	_, err := e.TokenBalance(context.Background(), chains.BaseGoerli, usdc, account)
	assert.ErrorIs(t, err, models.ErrUnsupportedChain)
}
