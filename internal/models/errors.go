package models

import "errors"

var (
	// ErrUnsupportedChain is returned when a chain id has no settings entry.
	ErrUnsupportedChain = errors.New("unsupported chain")
	// ErrSigningFailed is returned when the owner signer rejected or failed.
	ErrSigningFailed = errors.New("signing failed")
	// ErrInsufficientFunds is returned when the account cannot cover a payment or its gas.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrCancellationFailed is returned when the terminate operation was rejected or reverted.
	ErrCancellationFailed = errors.New("cancellation failed")
	// ErrSubmissionFailed is returned when a single operation could not be executed.
	ErrSubmissionFailed = errors.New("operation submission failed")
	// ErrTokenNotFound is returned when a token has not been imported for the account.
	ErrTokenNotFound = errors.New("token not found")
	// ErrInvalidSubscription is returned for subscriptions violating basic invariants.
	ErrInvalidSubscription = errors.New("invalid subscription")
	// ErrSubscriptionNotFound is returned when no subscription has the requested id.
	ErrSubscriptionNotFound = errors.New("subscription not found")
	// ErrSubscriptionExists is returned when storing a subscription id twice.
	ErrSubscriptionExists = errors.New("subscription already exists")
	// ErrAlreadyCanceled is returned when canceling a subscription twice.
	ErrAlreadyCanceled = errors.New("subscription already canceled")
	// ErrSubscriptionsDisabled is returned when the subscription validator is not
	// enabled for the account on chain.
	ErrSubscriptionsDisabled = errors.New("subscriptions are not enabled for the account")
	// ErrInvalidAmount is returned when a transfer amount is not positive.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrRelayUpload is returned when the pre-signed batch could not be handed to the relay.
	ErrRelayUpload = errors.New("failed to upload operations to relay")
)
