/*

This file contains deterministic in-memory market implementations. They back
the sim deployment mode and the test suites: interest accrues only when
Accrue is called explicitly, so scenarios are reproducible. Liquidity can be
capped to exercise the rejected-withdrawal paths real venues exhibit.

*/

package backend

import (
	"context"
	"fmt"
	"sync"

	sdkmath "cosmossdk.io/math"

	"github.com/openyield/yrv/internal/types"
)

// SimPoolMarket is a shared pool-style market: many assets, one venue.
type SimPoolMarket struct {
	mu        sync.Mutex
	balances  map[string]sdkmath.Int
	rates     map[string]sdkmath.LegacyDec // per-second
	liquidity map[string]sdkmath.Int       // max withdrawable; missing entry = unlimited
}

// NewSimPoolMarket creates an empty sim pool. Assets must be listed before
// they can be supplied.
func NewSimPoolMarket() *SimPoolMarket {
	return &SimPoolMarket{
		balances:  make(map[string]sdkmath.Int),
		rates:     make(map[string]sdkmath.LegacyDec),
		liquidity: make(map[string]sdkmath.Int),
	}
}

// ListAsset opens the pool for an asset at the given per-second supply rate.
func (m *SimPoolMarket) ListAsset(asset string, ratePerSecond sdkmath.LegacyDec) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[asset] = sdkmath.ZeroInt()
	m.rates[asset] = ratePerSecond
}

// SetWithdrawLiquidity caps how much of an asset the pool will return.
func (m *SimPoolMarket) SetWithdrawLiquidity(asset string, available sdkmath.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.liquidity[asset] = available
}

// Accrue advances the pool by seconds of simple interest on every balance.
func (m *SimPoolMarket) Accrue(seconds int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for asset, balance := range m.balances {
		rate := m.rates[asset]
		if rate.IsNil() || balance.IsZero() {
			continue
		}
		interest := rate.MulInt64(seconds).MulInt(balance).TruncateInt()
		m.balances[asset] = balance.Add(interest)
	}
}

// Supply implements PoolMarket.
func (m *SimPoolMarket) Supply(_ context.Context, asset string, amount sdkmath.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	balance, ok := m.balances[asset]
	if !ok {
		return fmt.Errorf("asset %s not listed: %w", asset, types.ErrNoPoolForToken)
	}
	m.balances[asset] = balance.Add(amount)
	return nil
}

// Withdraw implements PoolMarket.
func (m *SimPoolMarket) Withdraw(_ context.Context, asset string, amount sdkmath.Int) (sdkmath.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	balance, ok := m.balances[asset]
	if !ok {
		return sdkmath.ZeroInt(), fmt.Errorf("asset %s not listed: %w", asset, types.ErrNoPoolForToken)
	}
	if balance.LT(amount) {
		return sdkmath.ZeroInt(), fmt.Errorf("pool holds %s of %s, requested %s: %w",
			balance, asset, amount, types.ErrInsufficientBackendBalance)
	}
	if avail, capped := m.liquidity[asset]; capped && avail.LT(amount) {
		return sdkmath.ZeroInt(), fmt.Errorf("pool liquidity for %s capped at %s, requested %s: %w",
			asset, avail, amount, types.ErrInsufficientBackendBalance)
	}

	m.balances[asset] = balance.Sub(amount)
	return amount, nil
}

// ReceiptBalanceOf implements PoolMarket.
func (m *SimPoolMarket) ReceiptBalanceOf(_ context.Context, asset string) (sdkmath.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	balance, ok := m.balances[asset]
	if !ok {
		return sdkmath.ZeroInt(), fmt.Errorf("asset %s not listed: %w", asset, types.ErrNoPoolForToken)
	}
	return balance, nil
}

// LiquidityRate implements PoolMarket.
func (m *SimPoolMarket) LiquidityRate(_ context.Context, asset string) (sdkmath.LegacyDec, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rate, ok := m.rates[asset]
	if !ok {
		return sdkmath.LegacyZeroDec(), fmt.Errorf("asset %s not listed: %w", asset, types.ErrNoPoolForToken)
	}
	return rate, nil
}

// SimCometMarket is an isolated single-asset market with a separate
// 6-decimal incentive reward channel.
type SimCometMarket struct {
	mu            sync.Mutex
	balance       sdkmath.Int
	ratePerSecond sdkmath.LegacyDec
	rewardOwed    sdkmath.Int // 6 decimals
	liquidity     *sdkmath.Int
}

// NewSimCometMarket creates an empty sim comet market at the given rate.
func NewSimCometMarket(ratePerSecond sdkmath.LegacyDec) *SimCometMarket {
	return &SimCometMarket{
		balance:       sdkmath.ZeroInt(),
		ratePerSecond: ratePerSecond,
		rewardOwed:    sdkmath.ZeroInt(),
	}
}

// SetWithdrawLiquidity caps how much the market will return.
func (m *SimCometMarket) SetWithdrawLiquidity(available sdkmath.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.liquidity = &available
}

// AccrueReward credits incentive rewards on the separate channel.
func (m *SimCometMarket) AccrueReward(reward6 sdkmath.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rewardOwed = m.rewardOwed.Add(reward6)
}

// Accrue advances the market by seconds of simple base interest.
func (m *SimCometMarket) Accrue(seconds int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.balance.IsZero() {
		return
	}
	interest := m.ratePerSecond.MulInt64(seconds).MulInt(m.balance).TruncateInt()
	m.balance = m.balance.Add(interest)
}

// Supply implements CometMarket.
func (m *SimCometMarket) Supply(_ context.Context, amount sdkmath.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balance = m.balance.Add(amount)
	return nil
}

// Withdraw implements CometMarket.
func (m *SimCometMarket) Withdraw(_ context.Context, amount sdkmath.Int) (sdkmath.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.balance.LT(amount) {
		return sdkmath.ZeroInt(), fmt.Errorf("market holds %s, requested %s: %w",
			m.balance, amount, types.ErrInsufficientBackendBalance)
	}
	if m.liquidity != nil && m.liquidity.LT(amount) {
		return sdkmath.ZeroInt(), fmt.Errorf("market liquidity capped at %s, requested %s: %w",
			*m.liquidity, amount, types.ErrInsufficientBackendBalance)
	}

	m.balance = m.balance.Sub(amount)
	return amount, nil
}

// BalanceOf implements CometMarket.
func (m *SimCometMarket) BalanceOf(_ context.Context) (sdkmath.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balance, nil
}

// SupplyRatePerSecond implements CometMarket.
func (m *SimCometMarket) SupplyRatePerSecond(_ context.Context) (sdkmath.LegacyDec, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ratePerSecond, nil
}

// RewardOwed implements CometMarket.
func (m *SimCometMarket) RewardOwed(_ context.Context) (sdkmath.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rewardOwed, nil
}
