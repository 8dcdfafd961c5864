package oracle

import (
	"context"
	"time"

	sdkmath "cosmossdk.io/math"
)

// PriceObservation is one raw report from an upstream price source. The
// source is untrusted: the observation can be stale, non-positive, or carry a
// rolled-back round, and the oracle must defend accordingly.
type PriceObservation struct {
	Price           sdkmath.Int `json:"price"` // USD, 8 decimal fixed-point
	UpdatedAt       time.Time   `json:"updated_at"`
	RoundID         uint64      `json:"round_id"`
	AnsweredInRound uint64      `json:"answered_in_round"`
}

// FeedSource is the boundary interface to an upstream price source.
type FeedSource interface {
	// LatestPrice returns the most recent observation for the asset.
	LatestPrice(ctx context.Context, asset string) (PriceObservation, error)

	// Description identifies the source for logging and the API surface.
	Description() string
}
