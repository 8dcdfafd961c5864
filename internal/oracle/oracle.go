/*

This file contains the price oracle: it validates and normalizes one or two
external price sources per asset into a single 8-decimal USD price. Every
query re-validates staleness and round consistency; nothing is cached, so the
share math can never observe a price the oracle would no longer accept.

*/

package oracle

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

// feedPair binds the configured sources for one asset. The secondary feed is
// optional and only consulted on primary failure or for the divergence check.
type feedPair struct {
	primary   FeedSource
	secondary FeedSource
}

// PriceOracle validates upstream price reports and serves USD prices to the
// vault ledger.
type PriceOracle struct {
	logger        zerolog.Logger
	maxAge        time.Duration
	divergenceBps int64

	mu    sync.RWMutex
	feeds map[string]feedPair
}

// NewPriceOracle creates a price oracle. maxAge is the staleness threshold
// (reference deployment: 3600s); divergenceBps the tolerated spread between
// two healthy sources (reference: 200 bps).
func NewPriceOracle(maxAge time.Duration, divergenceBps int64) (*PriceOracle, error) {
	if maxAge <= 0 {
		return nil, fmt.Errorf("price max age must be positive, got %s", maxAge)
	}
	if divergenceBps <= 0 {
		return nil, fmt.Errorf("divergence tolerance must be positive, got %d bps", divergenceBps)
	}
	return &PriceOracle{
		logger:        logger.GetForComponent("price_oracle"),
		maxAge:        maxAge,
		divergenceBps: divergenceBps,
		feeds:         make(map[string]feedPair),
	}, nil
}

// RegisterFeeds binds a primary and an optional secondary source to an asset.
// Re-registering replaces the binding; the primary is required.
func (o *PriceOracle) RegisterFeeds(asset string, primary, secondary FeedSource) error {
	if asset == "" {
		return types.ErrInvalidAddress
	}
	if primary == nil {
		return fmt.Errorf("primary feed for %s: %w", asset, types.ErrNoMarketConfigured)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.feeds[asset] = feedPair{primary: primary, secondary: secondary}

	o.logger.Info().
		Str("asset", asset).
		Str("primary", primary.Description()).
		Bool("hasSecondary", secondary != nil).
		Msg("Registered price feeds")
	return nil
}

// Sources returns the descriptions of the configured feeds for an asset.
func (o *PriceOracle) Sources(asset string) []string {
	o.mu.RLock()
	defer o.mu.RUnlock()

	pair, ok := o.feeds[asset]
	if !ok {
		return nil
	}
	out := []string{pair.primary.Description()}
	if pair.secondary != nil {
		out = append(out, pair.secondary.Description())
	}
	return out
}

// GetUsdPrice returns the validated 8-decimal USD price for an asset.
//
// The primary source is preferred. If it fails or its report does not
// validate, the secondary (when configured) is used instead. When both
// sources produce a valid report but diverge beyond the tolerance, the call
// fails with ErrPriceDivergence rather than silently averaging.
func (o *PriceOracle) GetUsdPrice(ctx context.Context, asset string) (sdkmath.Int, error) {
	o.mu.RLock()
	pair, ok := o.feeds[asset]
	o.mu.RUnlock()
	if !ok {
		return sdkmath.ZeroInt(), fmt.Errorf("no price feed for %s: %w", asset, types.ErrUnsupportedAsset)
	}

	primaryObs, primaryErr := o.observe(ctx, pair.primary, asset)

	if pair.secondary == nil {
		if primaryErr != nil {
			return sdkmath.ZeroInt(), primaryErr
		}
		return primaryObs.Price, nil
	}

	secondaryObs, secondaryErr := o.observe(ctx, pair.secondary, asset)

	switch {
	case primaryErr == nil && secondaryErr == nil:
		if err := o.checkDivergence(asset, primaryObs.Price, secondaryObs.Price); err != nil {
			return sdkmath.ZeroInt(), err
		}
		return primaryObs.Price, nil
	case primaryErr == nil:
		o.logger.Warn().
			Err(secondaryErr).
			Str("asset", asset).
			Str("source", pair.secondary.Description()).
			Msg("Secondary feed unhealthy, serving primary without divergence check")
		return primaryObs.Price, nil
	case secondaryErr == nil:
		o.logger.Warn().
			Err(primaryErr).
			Str("asset", asset).
			Str("source", pair.primary.Description()).
			Msg("Primary feed unhealthy, falling back to secondary")
		return secondaryObs.Price, nil
	default:
		return sdkmath.ZeroInt(), fmt.Errorf("all feeds failed for %s (secondary: %v): %w", asset, secondaryErr, primaryErr)
	}
}

// observe pulls and validates one report from one source.
func (o *PriceOracle) observe(ctx context.Context, src FeedSource, asset string) (PriceObservation, error) {
	obs, err := src.LatestPrice(ctx, asset)
	if err != nil {
		return PriceObservation{}, fmt.Errorf("feed %s: %w", src.Description(), err)
	}
	if err := o.validate(obs); err != nil {
		return PriceObservation{}, fmt.Errorf("feed %s: %w", src.Description(), err)
	}
	return obs, nil
}

// validate applies the sanity rules to a raw observation: positive price,
// round consistency (the answering round must not predate the round asked
// for), and staleness.
func (o *PriceOracle) validate(obs PriceObservation) error {
	if obs.Price.IsNil() || !obs.Price.IsPositive() {
		return fmt.Errorf("reported price %s: %w", obs.Price, types.ErrInvalidPrice)
	}
	if obs.AnsweredInRound < obs.RoundID {
		return fmt.Errorf("answered in round %d < round %d: %w",
			obs.AnsweredInRound, obs.RoundID, types.ErrInvalidPrice)
	}
	age := time.Since(obs.UpdatedAt)
	if age > o.maxAge {
		return fmt.Errorf("update is %s old (max %s): %w", age, o.maxAge, types.ErrStalePrice)
	}
	return nil
}

// checkDivergence fails when two healthy sources disagree beyond the
// tolerance, measured relative to the primary report.
func (o *PriceOracle) checkDivergence(asset string, primary, secondary sdkmath.Int) error {
	diff := primary.Sub(secondary).Abs()
	spreadBps := diff.Mul(sdkmath.NewInt(10000)).Quo(primary)
	if spreadBps.GT(sdkmath.NewInt(o.divergenceBps)) {
		o.logger.Error().
			Str("asset", asset).
			Str("primary", primary.String()).
			Str("secondary", secondary.String()).
			Str("spreadBps", spreadBps.String()).
			Msg("Price sources diverge beyond tolerance")
		return fmt.Errorf("spread %s bps for %s: %w", spreadBps, asset, types.ErrPriceDivergence)
	}
	return nil
}
