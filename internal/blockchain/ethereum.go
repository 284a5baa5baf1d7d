package blockchain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/core-coin/solvere/internal/chains"
	"github.com/core-coin/solvere/internal/models"
	"github.com/core-coin/solvere/internal/userop"
	"github.com/core-coin/solvere/pkg/logger"
)

// EntryPointABI is the nonce getter of the EntryPoint.
const EntryPointABI = `[{"inputs":[{"internalType":"address","name":"sender","type":"address"},{"internalType":"uint192","name":"key","type":"uint192"}],"name":"getNonce","outputs":[{"internalType":"uint256","name":"nonce","type":"uint256"}],"stateMutability":"view","type":"function"}]`

// Ethereum reads chain state over JSON-RPC, one client per configured chain.
type Ethereum struct {
	logger   *logger.Logger
	registry *chains.Registry
	rpcURLs  map[int64]string

	mu      sync.RWMutex
	clients map[int64]*ethclient.Client

	entryPointABI abi.ABI
}

var _ models.BlockchainService = (*Ethereum)(nil)

// NewEthereum creates a new Ethereum instance. Run must be called before use.
func NewEthereum(rpcURLs map[int64]string, registry *chains.Registry, logger *logger.Logger) *Ethereum {
	return &Ethereum{
		logger:   logger.Named("blockchain"),
		registry: registry,
		rpcURLs:  rpcURLs,
		clients:  make(map[int64]*ethclient.Client, len(rpcURLs)),
	}
}

func (e *Ethereum) Run() error {
	if err := e.BuildBindings(); err != nil {
		return fmt.Errorf("failed to build bindings: %w", err)
	}
	for chainID, url := range e.rpcURLs {
		if err := e.ConnectToRPC(chainID, url); err != nil {
			return err
		}
	}
	return nil
}

func (e *Ethereum) ConnectToRPC(chainID int64, url string) error {
	client, err := ethclient.Dial(url)
	if err != nil {
		return fmt.Errorf("failed to connect to the RPC server of chain %d: %w", chainID, err)
	}
	e.attach(chainID, client)
	e.logger.Info("Connected to RPC", "chain_id", chainID)
	return nil
}

func (e *Ethereum) BuildBindings() error {
	parsed, err := abi.JSON(strings.NewReader(EntryPointABI))
	if err != nil {
		return fmt.Errorf("failed to parse EntryPoint ABI: %w", err)
	}
	e.entryPointABI = parsed
	return nil
}

func (e *Ethereum) attach(chainID int64, client *ethclient.Client) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if old, ok := e.clients[chainID]; ok {
		old.Close()
	}
	e.clients[chainID] = client
}

func (e *Ethereum) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for chainID, client := range e.clients {
		client.Close()
		delete(e.clients, chainID)
	}
	return nil
}

func (e *Ethereum) client(chainID int64) (*ethclient.Client, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	client, ok := e.clients[chainID]
	if !ok {
		return nil, fmt.Errorf("%w: no RPC client for chain %d", models.ErrUnsupportedChain, chainID)
	}
	return client, nil
}

func (e *Ethereum) contract(chainID int64, address common.Address, parsed abi.ABI) (*bind.BoundContract, error) {
	client, err := e.client(chainID)
	if err != nil {
		return nil, err
	}
	return bind.NewBoundContract(address, parsed, client, client, client), nil
}

// ResolveToken reads name, symbol and decimals of an ERC-20 contract.
func (e *Ethereum) ResolveToken(ctx context.Context, chainID int64, address common.Address) (*models.Token, error) {
	if address == models.NativeTokenAddress {
		return &models.Token{ChainID: chainID, Address: address.Hex(), Name: "Ether", Symbol: "ETH", Decimals: 18}, nil
	}
	contract, err := e.contract(chainID, address, userop.ERC20ContractABI())
	if err != nil {
		return nil, err
	}
	opts := &bind.CallOpts{Context: ctx}

	var name, symbol []interface{}
	if err := contract.Call(opts, &name, "name"); err != nil {
		return nil, fmt.Errorf("failed to get token name: %w", err)
	}
	if err := contract.Call(opts, &symbol, "symbol"); err != nil {
		return nil, fmt.Errorf("failed to get token symbol: %w", err)
	}
	var decimals []interface{}
	if err := contract.Call(opts, &decimals, "decimals"); err != nil {
		return nil, fmt.Errorf("failed to get token decimals: %w", err)
	}

	return &models.Token{
		ChainID:  chainID,
		Address:  address.Hex(),
		Name:     name[0].(string),
		Symbol:   symbol[0].(string),
		Decimals: int32(decimals[0].(uint8)),
	}, nil
}

// TokenBalance returns the raw token balance of owner.
func (e *Ethereum) TokenBalance(ctx context.Context, chainID int64, token, owner common.Address) (*big.Int, error) {
	if token == models.NativeTokenAddress {
		client, err := e.client(chainID)
		if err != nil {
			return nil, err
		}
		balance, err := client.BalanceAt(ctx, owner, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to get balance: %w", err)
		}
		return balance, nil
	}

	contract, err := e.contract(chainID, token, userop.ERC20ContractABI())
	if err != nil {
		return nil, err
	}
	results := []interface{}{}
	if err := contract.Call(&bind.CallOpts{Context: ctx}, &results, "balanceOf", owner); err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	return results[0].(*big.Int), nil
}

// SubscriptionsOwner returns the owner the subscription validator stores for
// the account. The zero address means the validator is not enabled.
func (e *Ethereum) SubscriptionsOwner(ctx context.Context, chainID int64, account common.Address) (common.Address, error) {
	settings, err := e.registry.Get(chainID)
	if err != nil {
		return common.Address{}, err
	}
	contract, err := e.contract(chainID, settings.ValidatorAddress, userop.SubscriptionContractABI())
	if err != nil {
		return common.Address{}, err
	}
	results := []interface{}{}
	if err := contract.Call(&bind.CallOpts{Context: ctx}, &results, "subscriptionValidatorStorage", account); err != nil {
		return common.Address{}, fmt.Errorf("failed to read validator storage: %w", err)
	}
	return results[0].(common.Address), nil
}

// EntryPointNonce returns the next nonce of sender for the given key.
func (e *Ethereum) EntryPointNonce(ctx context.Context, chainID int64, sender common.Address, key *big.Int) (*big.Int, error) {
	settings, err := e.registry.Get(chainID)
	if err != nil {
		return nil, err
	}
	contract, err := e.contract(chainID, settings.EntryPoint, e.entryPointABI)
	if err != nil {
		return nil, err
	}
	results := []interface{}{}
	if err := contract.Call(&bind.CallOpts{Context: ctx}, &results, "getNonce", sender, key); err != nil {
		return nil, fmt.Errorf("failed to get EntryPoint nonce: %w", err)
	}
	return results[0].(*big.Int), nil
}
