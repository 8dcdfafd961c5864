/*

This file contains the types shared between the strategy router and the yield
backend adapters: backend identifiers, routing entries, per-backend position
bookkeeping and the analytics view returned to callers.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

// BackendID identifies one of the two yield backend adapter kinds. Exactly two
// kinds exist; the router dispatches on this tag rather than an open plugin
// registry.
type BackendID string

const (
	BackendLendingPool BackendID = "LENDING_POOL"
	BackendComet       BackendID = "COMET"
)

// Valid reports whether the ID names a known backend kind.
func (b BackendID) Valid() bool {
	return b == BackendLendingPool || b == BackendComet
}

// RoutingEntry records which backend is currently active for an asset.
// Owned exclusively by the strategy router. Switching the active backend does
// not migrate principal already parked in the previous backend; see
// Router.MigrateRouting for the explicit migration path.
type RoutingEntry struct {
	Asset         string    `json:"asset"` // asset address
	ActiveBackend BackendID `json:"active_backend"`
	Supported     bool      `json:"supported"`
}

// BackendPosition is the per-(adapter, asset) bookkeeping record. It is
// created when an asset is first enabled on an adapter, updated on every
// deposit and withdrawal, and persists as a zeroed record after a full
// withdrawal so the cumulative counters survive.
type BackendPosition struct {
	Asset               string      `json:"asset"`
	Backend             BackendID   `json:"backend"`
	Enabled             bool        `json:"enabled"`
	Principal           sdkmath.Int `json:"principal"`
	CumulativeDeposited sdkmath.Int `json:"cumulative_deposited"`
	CumulativeWithdrawn sdkmath.Int `json:"cumulative_withdrawn"`
	UpdatedAt           time.Time   `json:"updated_at"`
}

// NewBackendPosition returns a zeroed position record for an asset.
func NewBackendPosition(asset string, backend BackendID) BackendPosition {
	return BackendPosition{
		Asset:               asset,
		Backend:             backend,
		Principal:           sdkmath.ZeroInt(),
		CumulativeDeposited: sdkmath.ZeroInt(),
		CumulativeWithdrawn: sdkmath.ZeroInt(),
		UpdatedAt:           time.Now(),
	}
}

// BackendAnalytics is a read-only computed view over a backend position.
// EstimatedRewards is derived as currentBalance - netDeposited clamped to
// zero; it is never a source of truth for accounting.
type BackendAnalytics struct {
	Asset               string      `json:"asset"`
	Backend             BackendID   `json:"backend"`
	CurrentBalance      sdkmath.Int `json:"current_balance"`
	CumulativeDeposited sdkmath.Int `json:"cumulative_deposited"`
	CumulativeWithdrawn sdkmath.Int `json:"cumulative_withdrawn"`
	NetDeposited        sdkmath.Int `json:"net_deposited"`
	EstimatedRewards    sdkmath.Int `json:"estimated_rewards"`
	// IncentiveRewards is the protocol incentive channel, reported in a fixed
	// 6-decimal unit regardless of the base asset's decimals. Only the comet
	// adapter populates it; the lending pool adapter reports zero.
	IncentiveRewards sdkmath.Int `json:"incentive_rewards"`
	APYBps           int64       `json:"apy_bps"`
}
