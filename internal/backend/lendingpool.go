/*

This file contains the lending pool adapter: the backend variant that wraps a
single shared pool-style market serving many assets. The pool tracks a
yield-bearing receipt balance per asset; the adapter layers principal and
cumulative flow bookkeeping on top.

*/

package backend

import (
	"context"
	"fmt"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"

	"github.com/openyield/yrv/internal/logger"
	"github.com/openyield/yrv/internal/types"
)

// LendingPoolAdapter routes all enabled assets through one shared PoolMarket.
type LendingPoolAdapter struct {
	logger zerolog.Logger
	owner  types.Identity
	store  PositionStore

	mu        sync.Mutex
	pool      PoolMarket
	positions map[string]*types.BackendPosition
}

// NewLendingPoolAdapter creates the adapter and restores any persisted
// position bookkeeping. The store may be nil (positions then live only in
// memory, e.g. under test).
func NewLendingPoolAdapter(owner types.Identity, store PositionStore) (*LendingPoolAdapter, error) {
	if owner.IsZero() {
		return nil, fmt.Errorf("owner: %w", types.ErrInvalidAddress)
	}

	a := &LendingPoolAdapter{
		logger:    logger.GetForComponent("lending_pool_adapter"),
		owner:     owner,
		store:     store,
		positions: make(map[string]*types.BackendPosition),
	}

	if store != nil {
		restored, err := store.LoadPositions(types.BackendLendingPool)
		if err != nil {
			return nil, fmt.Errorf("failed to restore lending pool positions: %w", err)
		}
		for i := range restored {
			pos := restored[i]
			a.positions[pos.Asset] = &pos
		}
		a.logger.Info().Int("positions", len(restored)).Msg("Restored persisted positions")
	}

	return a, nil
}

// ID implements YieldBackend.
func (a *LendingPoolAdapter) ID() types.BackendID {
	return types.BackendLendingPool
}

// SetPool configures the shared pool market reference. Owner-only.
func (a *LendingPoolAdapter) SetPool(caller types.Identity, pool PoolMarket) error {
	if caller != a.owner {
		return types.ErrUnauthorized
	}
	if pool == nil {
		return types.ErrNoMarketConfigured
	}

	a.mu.Lock()
	a.pool = pool
	a.mu.Unlock()

	a.logger.Info().Msg("Pool market reference configured")
	return nil
}

// EnableAsset enables deposits of an asset. Owner-only. Fails with
// ErrNoMarketConfigured before SetPool, and with ErrNoStateChange when the
// asset is already enabled so operational scripts fail loudly instead of
// silently double-configuring.
func (a *LendingPoolAdapter) EnableAsset(caller types.Identity, asset string) error {
	if caller != a.owner {
		return types.ErrUnauthorized
	}
	if asset == "" {
		return types.ErrInvalidAddress
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.pool == nil {
		return types.ErrNoMarketConfigured
	}

	pos, exists := a.positions[asset]
	if exists && pos.Enabled {
		return fmt.Errorf("asset %s already enabled: %w", asset, types.ErrNoStateChange)
	}
	if !exists {
		created := types.NewBackendPosition(asset, types.BackendLendingPool)
		pos = &created
		a.positions[asset] = pos
	}
	pos.Enabled = true
	pos.UpdatedAt = time.Now()
	a.persist(*pos)

	a.logger.Info().Str("asset", asset).Msg("Asset enabled on lending pool adapter")
	return nil
}

// DisableAsset disables future deposits of an asset. Owner-only. The position
// record and its cumulative counters are kept.
func (a *LendingPoolAdapter) DisableAsset(caller types.Identity, asset string) error {
	if caller != a.owner {
		return types.ErrUnauthorized
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	pos, exists := a.positions[asset]
	if !exists || !pos.Enabled {
		return fmt.Errorf("asset %s not enabled: %w", asset, types.ErrNoStateChange)
	}
	pos.Enabled = false
	pos.UpdatedAt = time.Now()
	a.persist(*pos)

	a.logger.Info().Str("asset", asset).Msg("Asset disabled on lending pool adapter")
	return nil
}

// Deposit implements YieldBackend. Bookkeeping mutates only after the market
// confirms the supply, so a failed external call leaves no partial state.
func (a *LendingPoolAdapter) Deposit(ctx context.Context, asset string, amount sdkmath.Int) error {
	if amount.IsNil() || amount.IsZero() {
		return types.ErrZeroAmount
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	pos, err := a.enabledPositionLocked(asset)
	if err != nil {
		return err
	}

	if err := a.pool.Supply(ctx, asset, amount); err != nil {
		return fmt.Errorf("pool supply of %s %s failed: %w", amount, asset, err)
	}

	pos.Principal = pos.Principal.Add(amount)
	pos.CumulativeDeposited = pos.CumulativeDeposited.Add(amount)
	pos.UpdatedAt = time.Now()
	a.persist(*pos)

	a.logger.Debug().
		Str("asset", asset).
		Str("amount", amount.String()).
		Str("principal", pos.Principal.String()).
		Msg("Deposited to lending pool")
	return nil
}

// Withdraw implements YieldBackend. Returns the amount the pool actually
// recovered; principal is floored at zero since a withdrawal can include
// accrued yield beyond principal.
func (a *LendingPoolAdapter) Withdraw(ctx context.Context, asset string, amount sdkmath.Int) (sdkmath.Int, error) {
	if amount.IsNil() || amount.IsZero() {
		return sdkmath.ZeroInt(), types.ErrZeroAmount
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	pos, err := a.positionLocked(asset)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}

	returned, err := a.pool.Withdraw(ctx, asset, amount)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("pool withdraw of %s %s failed: %w", amount, asset, err)
	}

	pos.CumulativeWithdrawn = pos.CumulativeWithdrawn.Add(returned)
	pos.Principal = pos.Principal.Sub(returned)
	if pos.Principal.IsNegative() {
		pos.Principal = sdkmath.ZeroInt()
	}
	pos.UpdatedAt = time.Now()
	a.persist(*pos)

	a.logger.Debug().
		Str("asset", asset).
		Str("requested", amount.String()).
		Str("returned", returned.String()).
		Msg("Withdrew from lending pool")
	return returned, nil
}

// CurrentBalance implements YieldBackend.
func (a *LendingPoolAdapter) CurrentBalance(ctx context.Context, asset string) (sdkmath.Int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, err := a.positionLocked(asset); err != nil {
		return sdkmath.ZeroInt(), err
	}
	balance, err := a.pool.ReceiptBalanceOf(ctx, asset)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("pool receipt balance for %s failed: %w", asset, err)
	}
	return balance, nil
}

// EstimatedAPYBps implements YieldBackend. Never fails: an asset with no
// position, or a market read failure, reports 0.
func (a *LendingPoolAdapter) EstimatedAPYBps(ctx context.Context, asset string) int64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, err := a.positionLocked(asset); err != nil {
		return 0
	}
	rate, err := a.pool.LiquidityRate(ctx, asset)
	if err != nil {
		a.logger.Warn().Err(err).Str("asset", asset).Msg("Failed to read pool liquidity rate, reporting 0 APY")
		return 0
	}
	return annualizeRateBps(rate)
}

// GetAnalytics implements YieldBackend.
func (a *LendingPoolAdapter) GetAnalytics(ctx context.Context, asset string) (types.BackendAnalytics, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	pos, err := a.positionLocked(asset)
	if err != nil {
		return types.BackendAnalytics{}, err
	}

	currentBalance, err := a.pool.ReceiptBalanceOf(ctx, asset)
	if err != nil {
		return types.BackendAnalytics{}, fmt.Errorf("pool receipt balance for %s failed: %w", asset, err)
	}

	netDeposited := pos.CumulativeDeposited.Sub(pos.CumulativeWithdrawn)

	apyBps := int64(0)
	if rate, rateErr := a.pool.LiquidityRate(ctx, asset); rateErr == nil {
		apyBps = annualizeRateBps(rate)
	}

	return types.BackendAnalytics{
		Asset:               asset,
		Backend:             types.BackendLendingPool,
		CurrentBalance:      currentBalance,
		CumulativeDeposited: pos.CumulativeDeposited,
		CumulativeWithdrawn: pos.CumulativeWithdrawn,
		NetDeposited:        netDeposited,
		EstimatedRewards:    clampRewards(currentBalance, netDeposited),
		IncentiveRewards:    sdkmath.ZeroInt(),
		APYBps:              apyBps,
	}, nil
}

// Position returns a copy of the bookkeeping record for an asset.
func (a *LendingPoolAdapter) Position(asset string) (types.BackendPosition, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	pos, err := a.positionLocked(asset)
	if err != nil {
		return types.BackendPosition{}, err
	}
	return *pos, nil
}

// enabledPositionLocked resolves the position for a deposit path: the asset
// must be enabled and the pool configured. Caller holds the lock.
func (a *LendingPoolAdapter) enabledPositionLocked(asset string) (*types.BackendPosition, error) {
	pos, err := a.positionLocked(asset)
	if err != nil {
		return nil, err
	}
	if !pos.Enabled {
		return nil, fmt.Errorf("asset %s disabled on lending pool adapter: %w", asset, types.ErrUnsupportedAsset)
	}
	return pos, nil
}

// positionLocked resolves the position for read and withdraw paths. A
// disabled asset can still be withdrawn and inspected. Caller holds the lock.
func (a *LendingPoolAdapter) positionLocked(asset string) (*types.BackendPosition, error) {
	if a.pool == nil {
		return nil, types.ErrNoMarketConfigured
	}
	pos, exists := a.positions[asset]
	if !exists {
		return nil, fmt.Errorf("asset %s unknown to lending pool adapter: %w", asset, types.ErrUnsupportedAsset)
	}
	return pos, nil
}

// persist write-through saves the position; failures are logged, never fatal.
func (a *LendingPoolAdapter) persist(pos types.BackendPosition) {
	if a.store == nil {
		return
	}
	if err := a.store.SavePosition(pos); err != nil {
		a.logger.Error().Err(err).Str("asset", pos.Asset).Msg("Failed to persist backend position")
	}
}
