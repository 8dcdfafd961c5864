/*

This file contains the strategy router: it owns the per-asset routing table
deciding which yield backend handles an asset's flow, forwards vault-only
deposit and withdraw calls to the routed adapter, aggregates balances and APY
across backends, and provides the emergency drain and explicit migration
paths.

Switching a routing entry does not move principal already parked in the
previously-active backend; MigrateRouting is the explicit drain-then-switch
operation for that.

*/

package router

import (
	"context"
	"fmt"
	"sync"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"

	"github.com/openyield/yrv/internal/backend"
	"github.com/openyield/yrv/internal/logger"
	"github.com/openyield/yrv/internal/types"
)

// RoutingStore persists the routing table across restarts. Write-through and
// best-effort, same policy as the backend position stores.
type RoutingStore interface {
	SaveRoutingEntry(entry types.RoutingEntry) error
	LoadRoutingEntries() ([]types.RoutingEntry, error)
}

// Router holds the routing table and the two backend adapters.
type Router struct {
	logger zerolog.Logger
	owner  types.Identity
	vault  types.Identity
	store  RoutingStore

	backends map[types.BackendID]backend.YieldBackend

	mu      sync.RWMutex
	manager types.Identity
	routing map[string]types.RoutingEntry
}

// NewRouter creates the router over exactly two backend adapters and restores
// any persisted routing table. The vault identity is the only caller allowed
// on the deposit and withdraw paths.
func NewRouter(owner, vault types.Identity, lendingPool, comet backend.YieldBackend, store RoutingStore) (*Router, error) {
	if owner.IsZero() {
		return nil, fmt.Errorf("owner: %w", types.ErrInvalidAddress)
	}
	if vault.IsZero() {
		return nil, fmt.Errorf("vault: %w", types.ErrInvalidAddress)
	}
	if lendingPool == nil || comet == nil {
		return nil, fmt.Errorf("router requires both backend adapters")
	}

	r := &Router{
		logger: logger.GetForComponent("strategy_router"),
		owner:  owner,
		vault:  vault,
		store:  store,
		backends: map[types.BackendID]backend.YieldBackend{
			lendingPool.ID(): lendingPool,
			comet.ID():       comet,
		},
		routing: make(map[string]types.RoutingEntry),
	}
	if len(r.backends) != 2 {
		return nil, fmt.Errorf("backend adapters must have distinct IDs")
	}

	if store != nil {
		entries, err := store.LoadRoutingEntries()
		if err != nil {
			return nil, fmt.Errorf("failed to restore routing table: %w", err)
		}
		for _, entry := range entries {
			r.routing[entry.Asset] = entry
		}
		r.logger.Info().Int("entries", len(entries)).Msg("Restored persisted routing table")
	}

	return r, nil
}

// SetManager authorizes the delegated autonomous-manager identity to change
// routing. Owner-only. Re-setting the same identity fails with
// ErrNoStateChange so the operation is deterministic. Setting the zero
// identity revokes the delegation.
func (r *Router) SetManager(caller, manager types.Identity) error {
	if caller != r.owner {
		return types.ErrUnauthorized
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.manager == manager {
		return fmt.Errorf("manager already %q: %w", manager, types.ErrNoStateChange)
	}
	r.manager = manager

	r.logger.Info().Str("manager", string(manager)).Msg("Autonomous manager updated")
	return nil
}

// SetRoutingForToken points an asset at a backend. Callable by the owner or
// the delegated manager. The first call for an asset marks it supported.
// Re-setting the same backend fails with ErrNoStateChange. The call never
// moves funds; use MigrateRouting to drain-then-switch.
func (r *Router) SetRoutingForToken(caller types.Identity, asset string, backendID types.BackendID) error {
	if err := r.checkRoutingAuthority(caller); err != nil {
		return err
	}
	if asset == "" {
		return types.ErrInvalidAddress
	}
	if !backendID.Valid() {
		return fmt.Errorf("unknown backend %q: %w", backendID, types.ErrNoMarketConfigured)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.routing[asset]
	if exists && entry.ActiveBackend == backendID {
		return fmt.Errorf("asset %s already routed to %s: %w", asset, backendID, types.ErrNoStateChange)
	}

	entry = types.RoutingEntry{Asset: asset, ActiveBackend: backendID, Supported: true}
	r.routing[asset] = entry
	r.persist(entry)

	r.logger.Info().
		Str("asset", asset).
		Str("backend", string(backendID)).
		Bool("firstRouting", !exists).
		Msg("Routing entry updated")
	return nil
}

// Deposit forwards a deposit to the backend currently routed for the asset.
// Callable only by the registered vault. The read lock is held across the
// adapter call so a concurrent migration cannot drain-and-flip underneath an
// in-flight deposit.
func (r *Router) Deposit(ctx context.Context, caller types.Identity, asset string, amount sdkmath.Int) error {
	if caller != r.vault {
		return types.ErrOnlyVault
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	adapter, err := r.routedBackendLocked(asset)
	if err != nil {
		return err
	}
	return adapter.Deposit(ctx, asset, amount)
}

// Withdraw forwards a withdrawal to the backend currently routed for the
// asset and returns the amount recovered. Callable only by the registered
// vault. If the routing was switched without migrating, the routed backend
// may hold less than requested and the call fails accordingly.
func (r *Router) Withdraw(ctx context.Context, caller types.Identity, asset string, amount sdkmath.Int) (sdkmath.Int, error) {
	if caller != r.vault {
		return sdkmath.ZeroInt(), types.ErrOnlyVault
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	adapter, err := r.routedBackendLocked(asset)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return adapter.Withdraw(ctx, asset, amount)
}

// GetStrategyBalance returns the live balance at the backend currently routed
// for the asset.
func (r *Router) GetStrategyBalance(ctx context.Context, asset string) (sdkmath.Int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	adapter, err := r.routedBackendLocked(asset)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return adapter.CurrentBalance(ctx, asset)
}

// GetStrategyAPY returns the routed backend's estimated APY in bps. Returns 0
// for an asset with no routing entry; never fails.
func (r *Router) GetStrategyAPY(ctx context.Context, asset string) int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	adapter, err := r.routedBackendLocked(asset)
	if err != nil {
		return 0
	}
	return adapter.EstimatedAPYBps(ctx, asset)
}

// GetAnalytics returns the routed backend's analytics view for the asset.
func (r *Router) GetAnalytics(ctx context.Context, asset string) (types.BackendAnalytics, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	adapter, err := r.routedBackendLocked(asset)
	if err != nil {
		return types.BackendAnalytics{}, err
	}
	return adapter.GetAnalytics(ctx, asset)
}

// EmergencyWithdraw drains the routed backend's entire balance for an asset
// back to the registered vault, bypassing normal share accounting. Owner-only
// incident response; deliberately independent of the vault pause flag.
func (r *Router) EmergencyWithdraw(ctx context.Context, caller types.Identity, asset string) (sdkmath.Int, error) {
	if caller != r.owner {
		return sdkmath.ZeroInt(), types.ErrUnauthorized
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	adapter, err := r.routedBackendLocked(asset)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}

	balance, err := adapter.CurrentBalance(ctx, asset)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("emergency balance read for %s failed: %w", asset, err)
	}
	if balance.IsZero() {
		return sdkmath.ZeroInt(), nil
	}

	returned, err := adapter.Withdraw(ctx, asset, balance)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("emergency withdraw of %s failed: %w", asset, err)
	}

	r.logger.Warn().
		Str("asset", asset).
		Str("returned", returned.String()).
		Str("vault", string(r.vault)).
		Msg("Emergency withdrawal executed, funds forwarded to vault")
	return returned, nil
}

// MigrateRouting atomically moves an asset's funds from the currently-routed
// backend to newBackend and flips the routing entry. Callable by the owner or
// the delegated manager. On a failed re-deposit the funds are returned to the
// original backend and the entry is left unchanged.
func (r *Router) MigrateRouting(ctx context.Context, caller types.Identity, asset string, newBackend types.BackendID) (sdkmath.Int, error) {
	if err := r.checkRoutingAuthority(caller); err != nil {
		return sdkmath.ZeroInt(), err
	}
	if !newBackend.Valid() {
		return sdkmath.ZeroInt(), fmt.Errorf("unknown backend %q: %w", newBackend, types.ErrNoMarketConfigured)
	}

	// Full write lock for the whole drain-then-switch: no deposit, withdraw
	// or valuation may observe the half-migrated state.
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.routing[asset]
	if !exists || !entry.Supported {
		return sdkmath.ZeroInt(), fmt.Errorf("asset %s has no routing entry: %w", asset, types.ErrUnsupportedAsset)
	}
	if entry.ActiveBackend == newBackend {
		return sdkmath.ZeroInt(), fmt.Errorf("asset %s already routed to %s: %w", asset, newBackend, types.ErrNoStateChange)
	}

	source := r.backends[entry.ActiveBackend]
	target := r.backends[newBackend]

	balance, err := source.CurrentBalance(ctx, asset)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("migration balance read for %s failed: %w", asset, err)
	}

	moved := sdkmath.ZeroInt()
	if balance.IsPositive() {
		moved, err = source.Withdraw(ctx, asset, balance)
		if err != nil {
			return sdkmath.ZeroInt(), fmt.Errorf("migration drain of %s from %s failed: %w", asset, entry.ActiveBackend, err)
		}

		if err := target.Deposit(ctx, asset, moved); err != nil {
			// Compensate: put the drained funds back where they came from so
			// the operation is all-or-nothing.
			if restoreErr := source.Deposit(ctx, asset, moved); restoreErr != nil {
				r.logger.Error().
					Err(restoreErr).
					Str("asset", asset).
					Str("amount", moved.String()).
					Msg("Migration rollback failed, funds stranded outside both backends")
				return sdkmath.ZeroInt(), fmt.Errorf("migration deposit failed (%v) and rollback failed: %w", err, restoreErr)
			}
			return sdkmath.ZeroInt(), fmt.Errorf("migration deposit of %s to %s failed: %w", asset, newBackend, err)
		}
	}

	entry.ActiveBackend = newBackend
	r.routing[asset] = entry
	r.persist(entry)

	r.logger.Info().
		Str("asset", asset).
		Str("backend", string(newBackend)).
		Str("moved", moved.String()).
		Msg("Routing migrated")
	return moved, nil
}

// SupportedAssets returns the assets with a routing entry, for valuation
// fan-out and the API surface.
func (r *Router) SupportedAssets() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	assets := make([]string, 0, len(r.routing))
	for asset, entry := range r.routing {
		if entry.Supported {
			assets = append(assets, asset)
		}
	}
	return assets
}

// RoutingTable returns a copy of all routing entries.
func (r *Router) RoutingTable() []types.RoutingEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]types.RoutingEntry, 0, len(r.routing))
	for _, entry := range r.routing {
		entries = append(entries, entry)
	}
	return entries
}

// checkRoutingAuthority admits the owner or the delegated manager. The owner
// can always perform manager actions; the reverse is false.
func (r *Router) checkRoutingAuthority(caller types.Identity) error {
	if caller == r.owner {
		return nil
	}
	r.mu.RLock()
	manager := r.manager
	r.mu.RUnlock()
	if !manager.IsZero() && caller == manager {
		return nil
	}
	return types.ErrUnauthorized
}

// routedBackendLocked resolves the adapter currently routed for an asset.
// Caller holds the routing lock and keeps it across the adapter call, so the
// entry cannot flip while the call is in flight.
func (r *Router) routedBackendLocked(asset string) (backend.YieldBackend, error) {
	entry, exists := r.routing[asset]
	if !exists || !entry.Supported {
		return nil, fmt.Errorf("asset %s has no routing entry: %w", asset, types.ErrUnsupportedAsset)
	}
	adapter, ok := r.backends[entry.ActiveBackend]
	if !ok {
		return nil, fmt.Errorf("routing entry for %s references unknown backend %s: %w",
			asset, entry.ActiveBackend, types.ErrNoMarketConfigured)
	}
	return adapter, nil
}

// persist write-through saves a routing entry; failures are logged.
func (r *Router) persist(entry types.RoutingEntry) {
	if r.store == nil {
		return
	}
	if err := r.store.SaveRoutingEntry(entry); err != nil {
		r.logger.Error().Err(err).Str("asset", entry.Asset).Msg("Failed to persist routing entry")
	}
}
