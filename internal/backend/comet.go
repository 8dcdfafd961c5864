/*

This file contains the comet market adapter: the backend variant that wraps
one isolated market instance per asset. Unlike the shared pool, this venue
pays yield through two channels with different mechanisms and scales: base
interest accrues into the supplied balance, protocol incentives accrue
separately in a fixed 6-decimal unit. Analytics report both channels.

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

// IncentiveRewardDecimals is the fixed precision of the protocol incentive
// channel, regardless of the base asset's decimals.
const IncentiveRewardDecimals = 6

// CometMarketAdapter routes each enabled asset through its own CometMarket.
type CometMarketAdapter struct {
	logger zerolog.Logger
	owner  types.Identity
	store  PositionStore

	mu        sync.Mutex
	markets   map[string]CometMarket
	positions map[string]*types.BackendPosition
}

// NewCometMarketAdapter creates the adapter and restores persisted position
// bookkeeping. Market references must be reconfigured after a restart.
func NewCometMarketAdapter(owner types.Identity, store PositionStore) (*CometMarketAdapter, error) {
	if owner.IsZero() {
		return nil, fmt.Errorf("owner: %w", types.ErrInvalidAddress)
	}

	a := &CometMarketAdapter{
		logger:    logger.GetForComponent("comet_market_adapter"),
		owner:     owner,
		store:     store,
		markets:   make(map[string]CometMarket),
		positions: make(map[string]*types.BackendPosition),
	}

	if store != nil {
		restored, err := store.LoadPositions(types.BackendComet)
		if err != nil {
			return nil, fmt.Errorf("failed to restore comet positions: %w", err)
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
func (a *CometMarketAdapter) ID() types.BackendID {
	return types.BackendComet
}

// SetMarket configures the isolated market instance for one asset. Owner-only.
func (a *CometMarketAdapter) SetMarket(caller types.Identity, asset string, market CometMarket) error {
	if caller != a.owner {
		return types.ErrUnauthorized
	}
	if asset == "" {
		return types.ErrInvalidAddress
	}
	if market == nil {
		return types.ErrNoMarketConfigured
	}

	a.mu.Lock()
	a.markets[asset] = market
	a.mu.Unlock()

	a.logger.Info().Str("asset", asset).Msg("Comet market reference configured")
	return nil
}

// EnableAsset enables deposits of an asset. Owner-only. The asset's market
// must be configured first; enabling twice fails with ErrNoStateChange.
func (a *CometMarketAdapter) EnableAsset(caller types.Identity, asset string) error {
	if caller != a.owner {
		return types.ErrUnauthorized
	}
	if asset == "" {
		return types.ErrInvalidAddress
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.markets[asset]; !ok {
		return types.ErrNoMarketConfigured
	}

	pos, exists := a.positions[asset]
	if exists && pos.Enabled {
		return fmt.Errorf("asset %s already enabled: %w", asset, types.ErrNoStateChange)
	}
	if !exists {
		created := types.NewBackendPosition(asset, types.BackendComet)
		pos = &created
		a.positions[asset] = pos
	}
	pos.Enabled = true
	pos.UpdatedAt = time.Now()
	a.persist(*pos)

	a.logger.Info().Str("asset", asset).Msg("Asset enabled on comet market adapter")
	return nil
}

// DisableAsset disables future deposits of an asset. Owner-only.
func (a *CometMarketAdapter) DisableAsset(caller types.Identity, asset string) error {
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

	a.logger.Info().Str("asset", asset).Msg("Asset disabled on comet market adapter")
	return nil
}

// Deposit implements YieldBackend.
func (a *CometMarketAdapter) Deposit(ctx context.Context, asset string, amount sdkmath.Int) error {
	if amount.IsNil() || amount.IsZero() {
		return types.ErrZeroAmount
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	pos, market, err := a.enabledMarketLocked(asset)
	if err != nil {
		return err
	}

	if err := market.Supply(ctx, amount); err != nil {
		return fmt.Errorf("comet supply of %s %s failed: %w", amount, asset, err)
	}

	pos.Principal = pos.Principal.Add(amount)
	pos.CumulativeDeposited = pos.CumulativeDeposited.Add(amount)
	pos.UpdatedAt = time.Now()
	a.persist(*pos)

	a.logger.Debug().
		Str("asset", asset).
		Str("amount", amount.String()).
		Str("principal", pos.Principal.String()).
		Msg("Deposited to comet market")
	return nil
}

// Withdraw implements YieldBackend.
func (a *CometMarketAdapter) Withdraw(ctx context.Context, asset string, amount sdkmath.Int) (sdkmath.Int, error) {
	if amount.IsNil() || amount.IsZero() {
		return sdkmath.ZeroInt(), types.ErrZeroAmount
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	pos, market, err := a.marketLocked(asset)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}

	returned, err := market.Withdraw(ctx, amount)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("comet withdraw of %s %s failed: %w", amount, asset, err)
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
		Msg("Withdrew from comet market")
	return returned, nil
}

// CurrentBalance implements YieldBackend.
func (a *CometMarketAdapter) CurrentBalance(ctx context.Context, asset string) (sdkmath.Int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	_, market, err := a.marketLocked(asset)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	balance, err := market.BalanceOf(ctx)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("comet balance for %s failed: %w", asset, err)
	}
	return balance, nil
}

// EstimatedAPYBps implements YieldBackend. Never fails.
func (a *CometMarketAdapter) EstimatedAPYBps(ctx context.Context, asset string) int64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	_, market, err := a.marketLocked(asset)
	if err != nil {
		return 0
	}
	rate, err := market.SupplyRatePerSecond(ctx)
	if err != nil {
		a.logger.Warn().Err(err).Str("asset", asset).Msg("Failed to read comet supply rate, reporting 0 APY")
		return 0
	}
	return annualizeRateBps(rate)
}

// GetAnalytics implements YieldBackend. The interest channel is derived from
// the balance; the incentive channel is read from the market in 6-decimal
// units.
func (a *CometMarketAdapter) GetAnalytics(ctx context.Context, asset string) (types.BackendAnalytics, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	pos, market, err := a.marketLocked(asset)
	if err != nil {
		return types.BackendAnalytics{}, err
	}

	currentBalance, err := market.BalanceOf(ctx)
	if err != nil {
		return types.BackendAnalytics{}, fmt.Errorf("comet balance for %s failed: %w", asset, err)
	}

	incentives, err := market.RewardOwed(ctx)
	if err != nil {
		// The incentive channel is informational; a read failure degrades
		// analytics to zero rather than failing them.
		a.logger.Warn().Err(err).Str("asset", asset).Msg("Failed to read incentive rewards, reporting 0")
		incentives = sdkmath.ZeroInt()
	}

	netDeposited := pos.CumulativeDeposited.Sub(pos.CumulativeWithdrawn)

	apyBps := int64(0)
	if rate, rateErr := market.SupplyRatePerSecond(ctx); rateErr == nil {
		apyBps = annualizeRateBps(rate)
	}

	return types.BackendAnalytics{
		Asset:               asset,
		Backend:             types.BackendComet,
		CurrentBalance:      currentBalance,
		CumulativeDeposited: pos.CumulativeDeposited,
		CumulativeWithdrawn: pos.CumulativeWithdrawn,
		NetDeposited:        netDeposited,
		EstimatedRewards:    clampRewards(currentBalance, netDeposited),
		IncentiveRewards:    incentives,
		APYBps:              apyBps,
	}, nil
}

// Position returns a copy of the bookkeeping record for an asset.
func (a *CometMarketAdapter) Position(asset string) (types.BackendPosition, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	pos, _, err := a.marketLocked(asset)
	if err != nil {
		return types.BackendPosition{}, err
	}
	return *pos, nil
}

// enabledMarketLocked resolves position and market for the deposit path.
func (a *CometMarketAdapter) enabledMarketLocked(asset string) (*types.BackendPosition, CometMarket, error) {
	pos, market, err := a.marketLocked(asset)
	if err != nil {
		return nil, nil, err
	}
	if !pos.Enabled {
		return nil, nil, fmt.Errorf("asset %s disabled on comet market adapter: %w", asset, types.ErrUnsupportedAsset)
	}
	return pos, market, nil
}

// marketLocked resolves position and market for read and withdraw paths.
func (a *CometMarketAdapter) marketLocked(asset string) (*types.BackendPosition, CometMarket, error) {
	pos, exists := a.positions[asset]
	if !exists {
		return nil, nil, fmt.Errorf("asset %s unknown to comet market adapter: %w", asset, types.ErrUnsupportedAsset)
	}
	market, ok := a.markets[asset]
	if !ok {
		return nil, nil, types.ErrNoMarketConfigured
	}
	return pos, market, nil
}

func (a *CometMarketAdapter) persist(pos types.BackendPosition) {
	if a.store == nil {
		return
	}
	if err := a.store.SavePosition(pos); err != nil {
		a.logger.Error().Err(err).Str("asset", pos.Asset).Msg("Failed to persist backend position")
	}
}
