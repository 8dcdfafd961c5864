/*

This file contains the yield backend capability set shared by the two adapter
variants, plus the boundary interfaces to the external markets they wrap. The
markets are untrusted, partially-reliable external services: they can reject a
withdrawal for liquidity reasons and must never be assumed to succeed.

*/

package backend

import (
	"context"

	sdkmath "cosmossdk.io/math"

	"github.com/openyield/yrv/internal/types"
)

const (
	// maxAPYBps caps the annualized rate an adapter will report. Anything
	// above this is treated as a garbage reading from the market.
	maxAPYBps = 50000

	secondsPerYear = 31_536_000
)

// YieldBackend is the capability set the strategy router dispatches on.
// Exactly two implementations exist: LendingPoolAdapter and
// CometMarketAdapter.
type YieldBackend interface {
	// ID returns the backend kind tag.
	ID() types.BackendID

	// Deposit supplies amount of asset to the external market and updates
	// the position bookkeeping.
	Deposit(ctx context.Context, asset string, amount sdkmath.Int) error

	// Withdraw pulls amount of asset back from the external market and
	// returns the amount actually recovered.
	Withdraw(ctx context.Context, asset string, amount sdkmath.Int) (sdkmath.Int, error)

	// CurrentBalance returns the live balance held at the external market,
	// which may exceed principal due to accrued interest.
	CurrentBalance(ctx context.Context, asset string) (sdkmath.Int, error)

	// EstimatedAPYBps annualizes the market's current rate, clamped to a
	// sane range. Returns 0, never fails, for an asset with no position.
	EstimatedAPYBps(ctx context.Context, asset string) int64

	// GetAnalytics returns the derived analytics view for an asset.
	GetAnalytics(ctx context.Context, asset string) (types.BackendAnalytics, error)

	// EnableAsset enables deposits of an asset on this adapter. Owner-only.
	EnableAsset(caller types.Identity, asset string) error

	// DisableAsset disables future deposits of an asset. Owner-only.
	DisableAsset(caller types.Identity, asset string) error
}

// PoolMarket is the boundary interface for the shared pool-style venue: one
// pool serves many assets, with yield-bearing receipt balances per asset.
type PoolMarket interface {
	Supply(ctx context.Context, asset string, amount sdkmath.Int) error
	Withdraw(ctx context.Context, asset string, amount sdkmath.Int) (sdkmath.Int, error)
	ReceiptBalanceOf(ctx context.Context, asset string) (sdkmath.Int, error)
	// LiquidityRate is the per-second supply rate for the asset.
	LiquidityRate(ctx context.Context, asset string) (sdkmath.LegacyDec, error)
}

// CometMarket is the boundary interface for the per-asset venue style: each
// asset has its own isolated market instance. Base interest accrues into the
// balance; protocol incentives accrue on a separate channel denominated in a
// fixed 6-decimal unit.
type CometMarket interface {
	Supply(ctx context.Context, amount sdkmath.Int) error
	Withdraw(ctx context.Context, amount sdkmath.Int) (sdkmath.Int, error)
	BalanceOf(ctx context.Context) (sdkmath.Int, error)
	// SupplyRatePerSecond is the current per-second base supply rate.
	SupplyRatePerSecond(ctx context.Context) (sdkmath.LegacyDec, error)
	// RewardOwed is the accrued protocol incentive balance, 6 decimals.
	RewardOwed(ctx context.Context) (sdkmath.Int, error)
}

// PositionStore persists per-(adapter, asset) bookkeeping across restarts.
// Persistence is write-through and best-effort: the in-memory record stays
// authoritative and a store failure never fails the user operation.
type PositionStore interface {
	SavePosition(pos types.BackendPosition) error
	LoadPositions(backend types.BackendID) ([]types.BackendPosition, error)
}

// annualizeRateBps converts a per-second rate into clamped annualized bps.
// Simple annualization, no compounding; the result is an estimate for
// routing decisions, not an accounting input.
func annualizeRateBps(perSecond sdkmath.LegacyDec) int64 {
	if perSecond.IsNil() || perSecond.IsNegative() {
		return 0
	}
	annual := perSecond.MulInt64(secondsPerYear).MulInt64(10000)
	// Clamp as a decimal: a garbage rate can annualize past int64 range and
	// truncating first would panic.
	if annual.GT(sdkmath.LegacyNewDec(maxAPYBps)) {
		return maxAPYBps
	}
	bps := annual.TruncateInt64()
	if bps < 0 {
		return 0
	}
	return bps
}

// clampRewards derives the reward estimate currentBalance - netDeposited,
// clamped so a rounding artifact never reports negative rewards.
func clampRewards(currentBalance, netDeposited sdkmath.Int) sdkmath.Int {
	rewards := currentBalance.Sub(netDeposited)
	if rewards.IsNegative() {
		return sdkmath.ZeroInt()
	}
	return rewards
}
