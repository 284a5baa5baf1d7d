package models

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// NativeTokenAddress stands in for the chain's native currency in token lists.
var NativeTokenAddress = common.HexToAddress("0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE")

// Token represents an ERC-20 token the account has imported
type Token struct {
	// Account is the smart-contract account that imported the token.
	Account string `json:"account" gorm:"column:account;primaryKey;size:42"`
	// ChainID is the chain the token contract is deployed on.
	ChainID int64 `json:"chain_id" gorm:"column:chain_id;primaryKey"`
	// Address is the contract address of the token
	Address string `json:"address" gorm:"column:address;primaryKey;size:42"`
	// Name is the full name of the token
	Name string `json:"name" gorm:"column:name"`
	// Symbol is the short symbol of the token (e.g., USDC, COMP)
	Symbol string `json:"symbol" gorm:"column:symbol"`
	// Decimals is the number of decimals the token uses
	Decimals int32 `json:"decimals" gorm:"column:decimals"`
}

func (Token) TableName() string {
	return "tokens"
}

// IsNative reports whether the token is the native currency sentinel.
func (t *Token) IsNative() bool {
	return common.HexToAddress(t.Address) == NativeTokenAddress
}

// FindToken looks up a token by address, ignoring address case.
func FindToken(tokens []*Token, address string) (*Token, bool) {
	for _, token := range tokens {
		if strings.EqualFold(token.Address, address) {
			return token, true
		}
	}
	return nil, false
}
