// Package chains holds the static per-chain settings used to build operations.
package chains

import (
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/core-coin/solvere/internal/models"
)

const (
	BaseMainnet int64 = 8453
	BaseGoerli  int64 = 84531
)

// EntryPointV06 is the canonical EntryPoint v0.6 deployment.
var EntryPointV06 = common.HexToAddress("0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789")

// PaymentFunctionSignature is the executor entry point every payment calls.
const PaymentFunctionSignature = "payForSubscription(address,uint256,address,string)"

// PaymentSelector is the 4-byte selector of PaymentFunctionSignature.
var PaymentSelector = crypto.Keccak256([]byte(PaymentFunctionSignature))[:4]

// Gas holds the gas floors of a chain.
type Gas struct {
	PreVerificationGas   *big.Int
	VerificationGasLimit *big.Int
	CallGasLimit         *big.Int
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
}

// Settings describes everything chain specific the builder needs.
type Settings struct {
	ChainID          int64
	Name             string
	EntryPoint       common.Address
	ValidatorAddress common.Address
	ExecutorAddress  common.Address
	PaymentSelector  []byte
	Gas              Gas
	// ExplorerNetwork is the JiffyScan network name.
	ExplorerNetwork string
}

// ExplorerURL returns a link to the operation on JiffyScan.
func (s *Settings) ExplorerURL(opHash string) string {
	return fmt.Sprintf("https://www.jiffyscan.xyz/userOpHash/%s?network=%s", opHash, s.ExplorerNetwork)
}

func gwei(tenths int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(tenths), big.NewInt(100_000_000))
}

// defaults are the floors known for each supported chain. Validator and executor
// addresses are deployment specific and supplied through configuration.
var defaults = map[int64]Settings{
	BaseMainnet: {
		ChainID:         BaseMainnet,
		Name:            "base",
		EntryPoint:      EntryPointV06,
		PaymentSelector: PaymentSelector,
		ExplorerNetwork: "base",
		Gas: Gas{
			PreVerificationGas:   big.NewInt(60_000),
			VerificationGasLimit: big.NewInt(100_000),
			CallGasLimit:         big.NewInt(300_000),
			MaxFeePerGas:         gwei(10),
			MaxPriorityFeePerGas: gwei(1),
		},
	},
	BaseGoerli: {
		ChainID:         BaseGoerli,
		Name:            "base-goerli",
		EntryPoint:      EntryPointV06,
		PaymentSelector: PaymentSelector,
		ExplorerNetwork: "base-testnet",
		Gas: Gas{
			PreVerificationGas:   big.NewInt(60_000),
			VerificationGasLimit: big.NewInt(200_000),
			CallGasLimit:         big.NewInt(300_000),
			MaxFeePerGas:         gwei(10),
			MaxPriorityFeePerGas: gwei(1),
		},
	},
}

// Deployment carries the contract addresses of one chain.
type Deployment struct {
	ValidatorAddress common.Address
	ExecutorAddress  common.Address
}

// Registry is an immutable chainId -> Settings table.
type Registry struct {
	settings map[int64]*Settings
}

// NewRegistry builds the table from the built-in defaults and the configured
// deployments. Chains without a deployment are left out.
func NewRegistry(deployments map[int64]Deployment) (*Registry, error) {
	r := &Registry{settings: make(map[int64]*Settings, len(deployments))}
	for chainID, dep := range deployments {
		base, ok := defaults[chainID]
		if !ok {
			return nil, fmt.Errorf("%w: no built-in settings for chain %d", models.ErrUnsupportedChain, chainID)
		}
		if dep.ValidatorAddress == (common.Address{}) {
			return nil, fmt.Errorf("validator address is required for chain %d", chainID)
		}
		s := base
		s.ValidatorAddress = dep.ValidatorAddress
		s.ExecutorAddress = dep.ExecutorAddress
		r.settings[chainID] = &s
	}
	return r, nil
}

// NewStaticRegistry builds a table from complete settings entries.
func NewStaticRegistry(entries ...Settings) *Registry {
	r := &Registry{settings: make(map[int64]*Settings, len(entries))}
	for i := range entries {
		s := entries[i]
		r.settings[s.ChainID] = &s
	}
	return r
}

// Get returns the settings of a chain or ErrUnsupportedChain.
func (r *Registry) Get(chainID int64) (*Settings, error) {
	s, ok := r.settings[chainID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", models.ErrUnsupportedChain, chainID)
	}
	return s, nil
}

// ChainIDs returns the supported chain ids in ascending order.
func (r *Registry) ChainIDs() []int64 {
	ids := make([]int64, 0, len(r.settings))
	for id := range r.settings {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Defaults returns the built-in settings of a chain, without deployment addresses.
func Defaults(chainID int64) (Settings, bool) {
	s, ok := defaults[chainID]
	return s, ok
}
