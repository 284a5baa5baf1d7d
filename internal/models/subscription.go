package models

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Scope identifies the (account, chain) partition every stored entity belongs to.
type Scope struct {
	// Account is the smart-contract account address.
	Account common.Address
	// ChainID is the EVM chain id.
	ChainID int64
}

func (s Scope) String() string {
	return fmt.Sprintf("%s@%d", s.Account.Hex(), s.ChainID)
}

// Subscription is a recurring payment authorization.
type Subscription struct {
	// ID is caller generated and unique within an account and chain.
	// It is also the high part of every payment nonce.
	ID uint64 `json:"id" gorm:"column:id;primaryKey;autoIncrement:false"`
	// Account is the smart-contract account paying for the subscription.
	Account string `json:"account" gorm:"column:account;primaryKey;size:42"`
	// ChainID is the chain the subscription lives on.
	ChainID int64 `json:"chain_id" gorm:"column:chain_id;primaryKey"`
	// Name is the display name.
	Name string `json:"name" gorm:"column:name;not null"`
	// TokenAddress is the ERC-20 token being paid.
	TokenAddress string `json:"token_address" gorm:"column:token_address;size:42;not null"`
	// HumanAmount is the amount per payment in the token's human units.
	// Stored as text so every driver reads back the exact digits.
	HumanAmount decimal.Decimal `json:"human_amount" gorm:"column:human_amount;type:varchar(80);not null"`
	// To is the payment destination.
	To string `json:"to" gorm:"column:to_address;size:42;not null"`
	// StartedAt is the creation time in Unix seconds. Never changes.
	StartedAt int64 `json:"started_at" gorm:"column:started_at;not null"`
	// IntervalInSeconds is the time between two payments.
	IntervalInSeconds int64 `json:"interval_in_seconds" gorm:"column:interval_in_seconds;not null"`
	// CanceledAt is nil until the subscription is canceled.
	CanceledAt *int64 `json:"canceled_at" gorm:"column:canceled_at"`
}

func (Subscription) TableName() string {
	return "subscriptions"
}

// Scope returns the partition of the subscription.
func (s *Subscription) Scope() Scope {
	return Scope{Account: common.HexToAddress(s.Account), ChainID: s.ChainID}
}

// Canceled reports whether the subscription has been terminated.
func (s *Subscription) Canceled() bool {
	return s.CanceledAt != nil
}

// DueAt returns the due time of the payment with the given sequence index.
func (s *Subscription) DueAt(sequenceIndex uint64) int64 {
	return s.StartedAt + int64(sequenceIndex)*s.IntervalInSeconds
}

// Validate checks the invariants that must hold before any payment is derived.
func (s *Subscription) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidSubscription)
	}
	if !s.HumanAmount.IsPositive() {
		return fmt.Errorf("%w: amount must be greater than 0", ErrInvalidSubscription)
	}
	if s.IntervalInSeconds <= 0 {
		return fmt.Errorf("%w: interval must be greater than 0", ErrInvalidSubscription)
	}
	if !common.IsHexAddress(s.To) {
		return fmt.Errorf("%w: invalid recipient address %q", ErrInvalidSubscription, s.To)
	}
	if !common.IsHexAddress(s.TokenAddress) {
		return fmt.Errorf("%w: invalid token address %q", ErrInvalidSubscription, s.TokenAddress)
	}
	if s.StartedAt < 0 {
		return fmt.Errorf("%w: negative start time", ErrInvalidSubscription)
	}
	if s.CanceledAt != nil && *s.CanceledAt < s.StartedAt {
		return fmt.Errorf("%w: canceled before start", ErrInvalidSubscription)
	}
	return nil
}

// Snapshot returns a copy whose CanceledAt no longer aliases the original.
func (s *Subscription) Snapshot() Subscription {
	cp := *s
	if s.CanceledAt != nil {
		at := *s.CanceledAt
		cp.CanceledAt = &at
	}
	return cp
}
