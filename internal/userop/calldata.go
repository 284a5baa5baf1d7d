package userop

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// KernelABI is the part of the Kernel v2 account used to execute calls.
const KernelABI = `[{"inputs":[{"internalType":"address","name":"to","type":"address"},{"internalType":"uint256","name":"value","type":"uint256"},{"internalType":"bytes","name":"data","type":"bytes"},{"internalType":"enum Operation","name":"operation","type":"uint8"}],"name":"execute","outputs":[],"stateMutability":"payable","type":"function"}]`

// SubscriptionABI covers the executor payment entry point and the validator
// functions the wallet calls.
const SubscriptionABI = `[{"inputs":[{"internalType":"address","name":"_token","type":"address"},{"internalType":"uint256","name":"_amount","type":"uint256"},{"internalType":"address","name":"_to","type":"address"},{"internalType":"string","name":"subscriptionId","type":"string"}],"name":"payForSubscription","outputs":[],"stateMutability":"nonpayable","type":"function"},{"inputs":[{"internalType":"uint192","name":"_subscriptionId","type":"uint192"}],"name":"terminateSubscription","outputs":[],"stateMutability":"nonpayable","type":"function"},{"inputs":[{"internalType":"address","name":"account","type":"address"}],"name":"subscriptionValidatorStorage","outputs":[{"internalType":"address","name":"","type":"address"}],"stateMutability":"view","type":"function"}]`

// ERC20ABI is the subset of ERC-20 the wallet reads and calls.
const ERC20ABI = `[{"inputs":[],"name":"name","outputs":[{"internalType":"string","name":"","type":"string"}],"stateMutability":"view","type":"function"},{"inputs":[],"name":"symbol","outputs":[{"internalType":"string","name":"","type":"string"}],"stateMutability":"view","type":"function"},{"inputs":[],"name":"decimals","outputs":[{"internalType":"uint8","name":"","type":"uint8"}],"stateMutability":"view","type":"function"},{"inputs":[{"internalType":"address","name":"account","type":"address"}],"name":"balanceOf","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},{"inputs":[{"internalType":"address","name":"recipient","type":"address"},{"internalType":"uint256","name":"amount","type":"uint256"}],"name":"transfer","outputs":[{"internalType":"bool","name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"}]`

// operationCall is Kernel's Operation.Call.
const operationCall uint8 = 0

var (
	kernelABI       = mustABI(KernelABI)
	subscriptionABI = mustABI(SubscriptionABI)
	erc20ABI        = mustABI(ERC20ABI)
)

func mustABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("invalid ABI: %v", err))
	}
	return parsed
}

// SubscriptionContractABI returns the parsed validator/executor ABI.
func SubscriptionContractABI() abi.ABI { return subscriptionABI }

// ERC20ContractABI returns the parsed ERC-20 ABI.
func ERC20ContractABI() abi.ABI { return erc20ABI }

// IntegerAmount converts a human amount to token base units, rounding down.
func IntegerAmount(humanAmount decimal.Decimal, decimals int32) *big.Int {
	return humanAmount.Shift(decimals).Floor().BigInt()
}

// EncodeExecute wraps a call into Kernel's execute.
func EncodeExecute(to common.Address, value *big.Int, data []byte) ([]byte, error) {
	if value == nil {
		value = new(big.Int)
	}
	if data == nil {
		data = []byte{}
	}
	out, err := kernelABI.Pack("execute", to, value, data, operationCall)
	if err != nil {
		return nil, fmt.Errorf("failed to encode execute: %w", err)
	}
	return out, nil
}

// EncodePayForSubscription encodes the executor payment call.
func EncodePayForSubscription(token common.Address, amount *big.Int, to common.Address, subscriptionID uint64) ([]byte, error) {
	out, err := subscriptionABI.Pack("payForSubscription", token, amount, to, strconv.FormatUint(subscriptionID, 10))
	if err != nil {
		return nil, fmt.Errorf("failed to encode payForSubscription: %w", err)
	}
	return out, nil
}

// EncodeTerminateSubscription encodes the validator call that ends a subscription.
func EncodeTerminateSubscription(subscriptionID uint64) ([]byte, error) {
	out, err := subscriptionABI.Pack("terminateSubscription", new(big.Int).SetUint64(subscriptionID))
	if err != nil {
		return nil, fmt.Errorf("failed to encode terminateSubscription: %w", err)
	}
	return out, nil
}

// EncodeTransfer encodes an ERC-20 transfer.
func EncodeTransfer(to common.Address, amount *big.Int) ([]byte, error) {
	out, err := erc20ABI.Pack("transfer", to, amount)
	if err != nil {
		return nil, fmt.Errorf("failed to encode transfer: %w", err)
	}
	return out, nil
}
