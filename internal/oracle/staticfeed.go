package oracle

import (
	"context"
	"fmt"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
)

// StaticFeed is an in-memory FeedSource. It backs the sim deployment mode and
// the test suites; observations advance a round counter on every set so the
// round-consistency rules stay exercised.
type StaticFeed struct {
	name string

	mu   sync.RWMutex
	obs  map[string]PriceObservation
	next map[string]uint64
}

// NewStaticFeed creates an empty static feed identified by name.
func NewStaticFeed(name string) *StaticFeed {
	return &StaticFeed{
		name: name,
		obs:  make(map[string]PriceObservation),
		next: make(map[string]uint64),
	}
}

// SetPrice publishes a fresh observation for the asset at the current time.
func (f *StaticFeed) SetPrice(asset string, price8 sdkmath.Int) {
	f.SetObservation(asset, price8, time.Now())
}

// SetObservation publishes an observation with an explicit update time.
func (f *StaticFeed) SetObservation(asset string, price8 sdkmath.Int, updatedAt time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()

	round := f.next[asset] + 1
	f.next[asset] = round
	f.obs[asset] = PriceObservation{
		Price:           price8,
		UpdatedAt:       updatedAt,
		RoundID:         round,
		AnsweredInRound: round,
	}
}

// SetRawObservation publishes an observation verbatim, round fields included.
// Lets tests stage rolled-back or inconsistent reports.
func (f *StaticFeed) SetRawObservation(asset string, obs PriceObservation) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.obs[asset] = obs
	if obs.RoundID > f.next[asset] {
		f.next[asset] = obs.RoundID
	}
}

// LatestPrice implements FeedSource.
func (f *StaticFeed) LatestPrice(_ context.Context, asset string) (PriceObservation, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	obs, ok := f.obs[asset]
	if !ok {
		return PriceObservation{}, fmt.Errorf("feed %s has no observation for %s", f.name, asset)
	}
	return obs, nil
}

// Description implements FeedSource.
func (f *StaticFeed) Description() string {
	return f.name
}
