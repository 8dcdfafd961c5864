/*

This file contains the share token: a standard fungible ledger whose units
represent a proportional USD-normalized claim on the pooled vault assets.
Minting and burning are reserved to the single registered vault identity.

*/

package token

import (
	"errors"
	"fmt"
	"sync"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"

	"github.com/openyield/yrv/internal/logger"
	"github.com/openyield/yrv/internal/types"
)

// Decimals is the fixed precision of share balances. The bootstrap peg is
// 1 share = $1, so a $1000 first deposit mints 1000 * 10^18 shares.
const Decimals = 18

// ErrInsufficientShares is returned when a burn or transfer exceeds the
// holder's balance.
var ErrInsufficientShares = errors.New("insufficient share balance")

// ShareToken is the fungible share ledger. Invariant: the sum of all holder
// balances equals totalSupply after every operation.
type ShareToken struct {
	logger zerolog.Logger
	owner  types.Identity

	mu          sync.RWMutex
	vault       types.Identity
	balances    map[types.Identity]sdkmath.Int
	totalSupply sdkmath.Int
}

// NewShareToken creates the share ledger with the given administrative owner.
// The vault identity must be registered via SetVault before any mint or burn.
func NewShareToken(owner types.Identity) (*ShareToken, error) {
	if owner.IsZero() {
		return nil, fmt.Errorf("owner: %w", types.ErrInvalidAddress)
	}
	return &ShareToken{
		logger:      logger.GetForComponent("share_token"),
		owner:       owner,
		balances:    make(map[types.Identity]sdkmath.Int),
		totalSupply: sdkmath.ZeroInt(),
	}, nil
}

// SetVault registers the single identity allowed to mint and burn. Owner-only.
// Calling it again is allowed and transfers minting authority entirely to the
// new identity; operational wiring is expected to call it exactly once.
func (t *ShareToken) SetVault(caller, vault types.Identity) error {
	if caller != t.owner {
		return types.ErrUnauthorized
	}
	if vault.IsZero() {
		return fmt.Errorf("vault: %w", types.ErrInvalidAddress)
	}

	t.mu.Lock()
	previous := t.vault
	t.vault = vault
	t.mu.Unlock()

	t.logger.Info().
		Str("previous", string(previous)).
		Str("vault", string(vault)).
		Msg("Vault identity registered on share token")
	return nil
}

// Mint creates amount shares for to. Callable only by the registered vault.
func (t *ShareToken) Mint(caller, to types.Identity, amount sdkmath.Int) error {
	if amount.IsNil() || amount.IsZero() {
		return types.ErrZeroAmount
	}
	if to.IsZero() {
		return fmt.Errorf("mint recipient: %w", types.ErrInvalidAddress)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.vault.IsZero() || caller != t.vault {
		return types.ErrOnlyVault
	}

	t.balances[to] = t.balanceLocked(to).Add(amount)
	t.totalSupply = t.totalSupply.Add(amount)
	return nil
}

// Burn destroys amount shares held by from. Callable only by the registered
// vault.
func (t *ShareToken) Burn(caller, from types.Identity, amount sdkmath.Int) error {
	if amount.IsNil() || amount.IsZero() {
		return types.ErrZeroAmount
	}
	if from.IsZero() {
		return fmt.Errorf("burn holder: %w", types.ErrInvalidAddress)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.vault.IsZero() || caller != t.vault {
		return types.ErrOnlyVault
	}

	balance := t.balanceLocked(from)
	if balance.LT(amount) {
		return fmt.Errorf("burn %s exceeds balance %s: %w", amount, balance, ErrInsufficientShares)
	}

	t.balances[from] = balance.Sub(amount)
	t.totalSupply = t.totalSupply.Sub(amount)
	return nil
}

// Transfer moves amount shares between holders.
func (t *ShareToken) Transfer(from, to types.Identity, amount sdkmath.Int) error {
	if amount.IsNil() || amount.IsZero() {
		return types.ErrZeroAmount
	}
	if from.IsZero() || to.IsZero() {
		return fmt.Errorf("transfer party: %w", types.ErrInvalidAddress)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	balance := t.balanceLocked(from)
	if balance.LT(amount) {
		return fmt.Errorf("transfer %s exceeds balance %s: %w", amount, balance, ErrInsufficientShares)
	}

	t.balances[from] = balance.Sub(amount)
	t.balances[to] = t.balanceLocked(to).Add(amount)
	return nil
}

// BalanceOf returns the share balance of a holder.
func (t *ShareToken) BalanceOf(holder types.Identity) sdkmath.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.balanceLocked(holder)
}

// TotalSupply returns the outstanding share supply.
func (t *ShareToken) TotalSupply() sdkmath.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.totalSupply
}

// Vault returns the currently registered vault identity.
func (t *ShareToken) Vault() types.Identity {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.vault
}

// balanceLocked reads a balance defaulting to zero. Caller holds the lock.
func (t *ShareToken) balanceLocked(holder types.Identity) sdkmath.Int {
	if balance, ok := t.balances[holder]; ok {
		return balance
	}
	return sdkmath.ZeroInt()
}
