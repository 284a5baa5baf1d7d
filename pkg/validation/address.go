package validation

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ValidateAddress validates an EVM address format (0x + 40 hex characters)
func ValidateAddress(addr string) error {
	if addr == "" {
		return fmt.Errorf("address cannot be empty")
	}
	if !strings.HasPrefix(addr, "0x") && !strings.HasPrefix(addr, "0X") {
		return fmt.Errorf("address must start with 0x")
	}
	if len(addr) != 42 {
		return fmt.Errorf("invalid address length: expected 40 characters (without 0x), got %d", len(addr)-2)
	}
	if !common.IsHexAddress(addr) {
		return fmt.Errorf("invalid hex address: %s", addr)
	}
	return nil
}

// NormalizeAddress converts an address to its EIP-55 checksummed form
func NormalizeAddress(addr string) string {
	return common.HexToAddress(addr).Hex()
}

// ValidateAndNormalizeAddress validates an address and returns its checksummed form
func ValidateAndNormalizeAddress(addr string) (common.Address, error) {
	if err := ValidateAddress(addr); err != nil {
		return common.Address{}, err
	}
	return common.HexToAddress(addr), nil
}

// ShortenAddress renders an address as its first four and last two characters,
// e.g. 0xB3...16.
func ShortenAddress(addr string) string {
	if len(addr) <= 6 {
		return addr
	}
	return addr[:4] + "..." + addr[len(addr)-2:]
}
