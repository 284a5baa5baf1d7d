// Package bundler talks to ERC-4337 bundlers over JSON-RPC.
package bundler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"golang.org/x/time/rate"

	"github.com/core-coin/solvere/internal/metrics"
	"github.com/core-coin/solvere/internal/models"
	"github.com/core-coin/solvere/pkg/logger"
)

const (
	DefaultRPS          = 10
	DefaultPollInterval = 2 * time.Second
)

// ErrReceiptTimeout is returned when an operation is not included before the context ends.
var ErrReceiptTimeout = errors.New("timed out waiting for operation receipt")

// Receipt is the part of eth_getUserOperationReceipt the service reads.
type Receipt struct {
	UserOpHash common.Hash  `json:"userOpHash"`
	Success    bool         `json:"success"`
	Reason     string       `json:"reason"`
	ActualGas  *hexutil.Big `json:"actualGasUsed"`
	Receipt    struct {
		TransactionHash common.Hash  `json:"transactionHash"`
		BlockNumber     *hexutil.Big `json:"blockNumber"`
	} `json:"receipt"`
}

// operationByHash has null transactionHash and blockNumber while the
// operation is still in the mempool.
type operationByHash struct {
	EntryPoint      common.Address `json:"entryPoint"`
	TransactionHash *common.Hash   `json:"transactionHash"`
	BlockNumber     *hexutil.Big   `json:"blockNumber"`
}

// Client is a rate limited bundler client with one connection per chain.
type Client struct {
	logger       *logger.Logger
	limiter      *rate.Limiter
	pollInterval time.Duration

	mu      sync.RWMutex
	clients map[int64]*rpc.Client
}

var _ models.OperationLookup = (*Client)(nil)

// NewClient creates a client allowing rps requests per second across all chains.
func NewClient(rps float64, logger *logger.Logger) *Client {
	if rps <= 0 {
		rps = DefaultRPS
	}
	return &Client{
		logger:       logger.Named("bundler"),
		limiter:      rate.NewLimiter(rate.Limit(rps), int(rps)+1),
		pollInterval: DefaultPollInterval,
		clients:      map[int64]*rpc.Client{},
	}
}

// Dial connects to the bundler of a chain.
func (c *Client) Dial(ctx context.Context, chainID int64, url string) error {
	client, err := rpc.DialContext(ctx, url)
	if err != nil {
		return fmt.Errorf("failed to connect to the bundler of chain %d: %w", chainID, err)
	}
	c.attach(chainID, client)
	c.logger.Info("Connected to bundler", "chain_id", chainID)
	return nil
}

func (c *Client) attach(chainID int64, client *rpc.Client) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.clients[chainID]; ok {
		old.Close()
	}
	c.clients[chainID] = client
}

func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for chainID, client := range c.clients {
		client.Close()
		delete(c.clients, chainID)
	}
}

func (c *Client) call(ctx context.Context, chainID int64, result interface{}, method string, args ...interface{}) error {
	c.mu.RLock()
	client, ok := c.clients[chainID]
	c.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: no bundler for chain %d", models.ErrUnsupportedChain, chainID)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	if err := client.CallContext(ctx, result, method, args...); err != nil {
		metrics.BundlerRequests.WithLabelValues(method, "error").Inc()
		return err
	}
	metrics.BundlerRequests.WithLabelValues(method, "ok").Inc()
	return nil
}

// GetOperationResult reports whether the bundler has seen the operation
// executed. Pending operations are reported as not found.
func (c *Client) GetOperationResult(ctx context.Context, chainID int64, hash common.Hash) (models.OperationResult, error) {
	var op *operationByHash
	if err := c.call(ctx, chainID, &op, "eth_getUserOperationByHash", hash); err != nil {
		return models.NotFound(), fmt.Errorf("failed to get user operation %s: %w", hash.Hex(), err)
	}
	if op == nil || op.TransactionHash == nil || *op.TransactionHash == (common.Hash{}) {
		return models.NotFound(), nil
	}
	var block uint64
	if op.BlockNumber != nil {
		block = op.BlockNumber.ToInt().Uint64()
	}
	return models.Found(op.EntryPoint, *op.TransactionHash, block), nil
}

// SendUserOperation submits a signed operation and returns its hash.
func (c *Client) SendUserOperation(ctx context.Context, chainID int64, op *models.UserOperation, entryPoint common.Address) (common.Hash, error) {
	var hash common.Hash
	if err := c.call(ctx, chainID, &hash, "eth_sendUserOperation", op, entryPoint); err != nil {
		return common.Hash{}, err
	}
	return hash, nil
}

// WaitForReceipt polls until the operation is included or ctx ends.
func (c *Client) WaitForReceipt(ctx context.Context, chainID int64, hash common.Hash) (*Receipt, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		var receipt *Receipt
		if err := c.call(ctx, chainID, &receipt, "eth_getUserOperationReceipt", hash); err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %s", ErrReceiptTimeout, hash.Hex())
			}
			return nil, fmt.Errorf("failed to get user operation receipt: %w", err)
		}
		if receipt != nil {
			return receipt, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s", ErrReceiptTimeout, hash.Hex())
		case <-ticker.C:
		}
	}
}
