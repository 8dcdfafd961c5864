/*

This file contains the error taxonomy surfaced by the core. Every failure is a
distinguishable sentinel so that calling layers (CLI, API, automation) can
present a specific remediation instead of a generic failure.

*/

package types

import "errors"

// Caller errors: reject immediately, not retryable.
var (
	ErrZeroAmount       = errors.New("amount is zero")
	ErrUnauthorized     = errors.New("caller is not the owner")
	ErrOnlyVault        = errors.New("caller is not the registered vault")
	ErrUnsupportedAsset = errors.New("asset is not supported")
	ErrInvalidAddress   = errors.New("address is invalid")
	ErrSlippageTooHigh  = errors.New("slippage bps exceeds hard ceiling")
	ErrNoStateChange    = errors.New("call would not change state")
)

// Upstream data errors: reject the call, safe to retry later.
var (
	ErrStalePrice      = errors.New("price update is too old")
	ErrInvalidPrice    = errors.New("price report is invalid")
	ErrPriceDivergence = errors.New("price sources diverge beyond tolerance")
)

// External backend errors: reject the call; retryability depends on cause.
var (
	ErrNoMarketConfigured         = errors.New("no market configured for backend")
	ErrNoPoolForToken             = errors.New("pool has no market for token")
	ErrInsufficientBackendBalance = errors.New("backend cannot return requested amount")
)

// Invariant and state errors: caller must resubmit with adjusted parameters.
var (
	ErrSlippageExceeded = errors.New("returned amount below minimum out")
	ErrVaultPaused      = errors.New("vault is paused")
)
