package vault

import (
	"context"

	sdkmath "cosmossdk.io/math"

	"github.com/openyield/yrv/internal/types"
)

// VaultService defines the interface for interacting with the vault ledger.
// This interface abstracts away the specific implementation details of vault
// operations, allowing callers (the web API, operational tooling) to depend
// on the contract rather than the concrete ledger.
type VaultService interface {
	// Deposit converts an asset amount to USD at the oracle price, mints the
	// proportional shares to the caller and routes the funds to the active
	// backend. Returns the shares minted.
	Deposit(ctx context.Context, caller types.Identity, asset string, amount sdkmath.Int) (sdkmath.Int, error)

	// Withdraw burns the caller's shares, pulls the proportional asset
	// amount back through the router and returns the amount actually
	// recovered. Fails with ErrSlippageExceeded if the recovered amount is
	// below minAmountOut or the vault's own slippage bound.
	Withdraw(ctx context.Context, caller types.Identity, asset string, shares, minAmountOut sdkmath.Int) (sdkmath.Int, error)

	// TotalVaultUSD returns the 18-decimal USD value of all assets currently
	// routed across all backends.
	TotalVaultUSD(ctx context.Context) (sdkmath.Int, error)

	// SharePriceUSD returns the 18-decimal USD value of one whole share.
	SharePriceUSD(ctx context.Context) (sdkmath.Int, error)

	// Pause halts deposits and withdrawals. Owner-only.
	Pause(caller types.Identity) error

	// Unpause resumes deposits and withdrawals. Owner-only.
	Unpause(caller types.Identity) error

	// UpdateMaxSlippage sets the permitted withdrawal deviation in bps,
	// bounded by a hard ceiling. Owner-only.
	UpdateMaxSlippage(caller types.Identity, bps int64) error

	// Paused reports whether user operations are halted.
	Paused() bool

	// MaxSlippageBps returns the current slippage bound.
	MaxSlippageBps() int64
}
