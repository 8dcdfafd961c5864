package router

import (
	"context"
	"sync"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openyield/yrv/internal/backend"
	"github.com/openyield/yrv/internal/types"
)

const (
	testOwner   = types.Identity("identity:owner")
	testVault   = types.Identity("identity:vault")
	testManager = types.Identity("identity:manager")
	testMallet  = types.Identity("identity:mallet")
	usdcAddr    = "asset:usdc"
	daiAddr     = "asset:dai"
)

type fixture struct {
	router      *Router
	lendingPool *backend.LendingPoolAdapter
	comet       *backend.CometMarketAdapter
	pool        *backend.SimPoolMarket
	cometMarket *backend.SimCometMarket
}

// newFixture wires both adapters over sim markets with usdc enabled on each
// side and routed to the lending pool.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	rate := sdkmath.LegacyNewDecWithPrec(95, 11)

	pool := backend.NewSimPoolMarket()
	pool.ListAsset(usdcAddr, rate)
	lendingPool, err := backend.NewLendingPoolAdapter(testOwner, nil)
	require.NoError(t, err)
	require.NoError(t, lendingPool.SetPool(testOwner, pool))
	require.NoError(t, lendingPool.EnableAsset(testOwner, usdcAddr))

	cometMarket := backend.NewSimCometMarket(rate)
	comet, err := backend.NewCometMarketAdapter(testOwner, nil)
	require.NoError(t, err)
	require.NoError(t, comet.SetMarket(testOwner, usdcAddr, cometMarket))
	require.NoError(t, comet.EnableAsset(testOwner, usdcAddr))

	r, err := NewRouter(testOwner, testVault, lendingPool, comet, nil)
	require.NoError(t, err)
	require.NoError(t, r.SetRoutingForToken(testOwner, usdcAddr, types.BackendLendingPool))

	return &fixture{
		router:      r,
		lendingPool: lendingPool,
		comet:       comet,
		pool:        pool,
		cometMarket: cometMarket,
	}
}

func TestNewRouterValidation(t *testing.T) {
	lendingPool, err := backend.NewLendingPoolAdapter(testOwner, nil)
	require.NoError(t, err)
	comet, err := backend.NewCometMarketAdapter(testOwner, nil)
	require.NoError(t, err)

	_, err = NewRouter("", testVault, lendingPool, comet, nil)
	assert.ErrorIs(t, err, types.ErrInvalidAddress)

	_, err = NewRouter(testOwner, "", lendingPool, comet, nil)
	assert.ErrorIs(t, err, types.ErrInvalidAddress)

	_, err = NewRouter(testOwner, testVault, nil, comet, nil)
	assert.Error(t, err)

	// same adapter twice collapses to one backend ID
	_, err = NewRouter(testOwner, testVault, comet, comet, nil)
	assert.Error(t, err)
}

func TestSetRoutingForToken(t *testing.T) {
	f := newFixture(t)

	// same backend again is a loud no-op
	err := f.router.SetRoutingForToken(testOwner, usdcAddr, types.BackendLendingPool)
	assert.ErrorIs(t, err, types.ErrNoStateChange)

	// switch without moving funds
	require.NoError(t, f.router.SetRoutingForToken(testOwner, usdcAddr, types.BackendComet))

	assert.ErrorIs(t, f.router.SetRoutingForToken(testMallet, usdcAddr, types.BackendLendingPool), types.ErrUnauthorized)
	assert.ErrorIs(t, f.router.SetRoutingForToken(testOwner, "", types.BackendComet), types.ErrInvalidAddress)
	assert.ErrorIs(t, f.router.SetRoutingForToken(testOwner, usdcAddr, types.BackendID("AAVE")), types.ErrNoMarketConfigured)
}

func TestSetManager(t *testing.T) {
	f := newFixture(t)

	assert.ErrorIs(t, f.router.SetManager(testMallet, testManager), types.ErrUnauthorized)
	require.NoError(t, f.router.SetManager(testOwner, testManager))
	assert.ErrorIs(t, f.router.SetManager(testOwner, testManager), types.ErrNoStateChange)

	// manager can change routing
	require.NoError(t, f.router.SetRoutingForToken(testManager, usdcAddr, types.BackendComet))

	// revoking the delegation removes the authority
	require.NoError(t, f.router.SetManager(testOwner, ""))
	assert.ErrorIs(t, f.router.SetRoutingForToken(testManager, usdcAddr, types.BackendLendingPool), types.ErrUnauthorized)
}

func TestDepositWithdrawVaultOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.ErrorIs(t, f.router.Deposit(ctx, testOwner, usdcAddr, sdkmath.NewInt(100)), types.ErrOnlyVault)
	_, err := f.router.Withdraw(ctx, testOwner, usdcAddr, sdkmath.NewInt(100))
	assert.ErrorIs(t, err, types.ErrOnlyVault)

	require.NoError(t, f.router.Deposit(ctx, testVault, usdcAddr, sdkmath.NewInt(100)))
	returned, err := f.router.Withdraw(ctx, testVault, usdcAddr, sdkmath.NewInt(40))
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(40).String(), returned.String())
}

func TestDepositUnroutedAsset(t *testing.T) {
	f := newFixture(t)
	err := f.router.Deposit(context.Background(), testVault, daiAddr, sdkmath.NewInt(100))
	assert.ErrorIs(t, err, types.ErrUnsupportedAsset)
}

func TestGetStrategyBalanceFollowsRouting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.router.Deposit(ctx, testVault, usdcAddr, sdkmath.NewInt(1000)))

	balance, err := f.router.GetStrategyBalance(ctx, usdcAddr)
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(1000).String(), balance.String())

	// switching the entry without migrating leaves the funds behind: the new
	// backend reports zero even though the pool still holds everything
	require.NoError(t, f.router.SetRoutingForToken(testOwner, usdcAddr, types.BackendComet))
	balance, err = f.router.GetStrategyBalance(ctx, usdcAddr)
	require.NoError(t, err)
	assert.True(t, balance.IsZero())
}

func TestGetStrategyAPYNeverFails(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, int64(299), f.router.GetStrategyAPY(context.Background(), usdcAddr))
	assert.Equal(t, int64(0), f.router.GetStrategyAPY(context.Background(), daiAddr))
}

func TestEmergencyWithdraw(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.router.Deposit(ctx, testVault, usdcAddr, sdkmath.NewInt(1000)))

	_, err := f.router.EmergencyWithdraw(ctx, testVault, usdcAddr)
	assert.ErrorIs(t, err, types.ErrUnauthorized)

	drained, err := f.router.EmergencyWithdraw(ctx, testOwner, usdcAddr)
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(1000).String(), drained.String())

	balance, err := f.router.GetStrategyBalance(ctx, usdcAddr)
	require.NoError(t, err)
	assert.True(t, balance.IsZero())

	// draining an empty position is a clean zero
	drained, err = f.router.EmergencyWithdraw(ctx, testOwner, usdcAddr)
	require.NoError(t, err)
	assert.True(t, drained.IsZero())
}

func TestMigrateRouting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.router.Deposit(ctx, testVault, usdcAddr, sdkmath.NewInt(1000)))

	moved, err := f.router.MigrateRouting(ctx, testOwner, usdcAddr, types.BackendComet)
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(1000).String(), moved.String())

	// funds and routing now both point at comet
	balance, err := f.router.GetStrategyBalance(ctx, usdcAddr)
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(1000).String(), balance.String())

	poolBalance, err := f.pool.ReceiptBalanceOf(ctx, usdcAddr)
	require.NoError(t, err)
	assert.True(t, poolBalance.IsZero())

	// migrating to the current backend is a loud no-op
	_, err = f.router.MigrateRouting(ctx, testOwner, usdcAddr, types.BackendComet)
	assert.ErrorIs(t, err, types.ErrNoStateChange)
}

func TestMigrateRoutingAuthorization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.router.MigrateRouting(ctx, testVault, usdcAddr, types.BackendComet)
	assert.ErrorIs(t, err, types.ErrUnauthorized)

	require.NoError(t, f.router.SetManager(testOwner, testManager))
	_, err = f.router.MigrateRouting(ctx, testManager, usdcAddr, types.BackendComet)
	require.NoError(t, err)
}

func TestMigrateRoutingEmptyPosition(t *testing.T) {
	f := newFixture(t)

	moved, err := f.router.MigrateRouting(context.Background(), testOwner, usdcAddr, types.BackendComet)
	require.NoError(t, err)
	assert.True(t, moved.IsZero())

	entries := f.router.RoutingTable()
	require.Len(t, entries, 1)
	assert.Equal(t, types.BackendComet, entries[0].ActiveBackend)
}

func TestMigrateRoutingRollsBackOnTargetFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.router.Deposit(ctx, testVault, usdcAddr, sdkmath.NewInt(1000)))

	// make the comet side reject the incoming deposit
	require.NoError(t, f.comet.DisableAsset(testOwner, usdcAddr))

	_, err := f.router.MigrateRouting(ctx, testOwner, usdcAddr, types.BackendComet)
	assert.ErrorIs(t, err, types.ErrUnsupportedAsset)

	// funds back in the pool, routing unchanged
	balance, err := f.router.GetStrategyBalance(ctx, usdcAddr)
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(1000).String(), balance.String())

	entries := f.router.RoutingTable()
	require.Len(t, entries, 1)
	assert.Equal(t, types.BackendLendingPool, entries[0].ActiveBackend)
}

// gatedBackend delegates to a real adapter but parks the first Deposit after
// the router has already resolved the routing entry, so tests can interleave
// a migration with an in-flight forwarded call.
type gatedBackend struct {
	backend.YieldBackend
	mu      sync.Mutex
	armed   bool
	entered chan struct{}
	release chan struct{}
}

func (g *gatedBackend) Deposit(ctx context.Context, asset string, amount sdkmath.Int) error {
	g.mu.Lock()
	armed := g.armed
	g.armed = false
	g.mu.Unlock()
	if armed {
		close(g.entered)
		<-g.release
	}
	return g.YieldBackend.Deposit(ctx, asset, amount)
}

func TestMigrateRoutingExcludesInFlightDeposit(t *testing.T) {
	ctx := context.Background()
	rate := sdkmath.LegacyNewDecWithPrec(95, 11)

	pool := backend.NewSimPoolMarket()
	pool.ListAsset(usdcAddr, rate)
	lendingPool, err := backend.NewLendingPoolAdapter(testOwner, nil)
	require.NoError(t, err)
	require.NoError(t, lendingPool.SetPool(testOwner, pool))
	require.NoError(t, lendingPool.EnableAsset(testOwner, usdcAddr))

	gated := &gatedBackend{
		YieldBackend: lendingPool,
		armed:        true,
		entered:      make(chan struct{}),
		release:      make(chan struct{}),
	}

	cometMarket := backend.NewSimCometMarket(rate)
	comet, err := backend.NewCometMarketAdapter(testOwner, nil)
	require.NoError(t, err)
	require.NoError(t, comet.SetMarket(testOwner, usdcAddr, cometMarket))
	require.NoError(t, comet.EnableAsset(testOwner, usdcAddr))

	r, err := NewRouter(testOwner, testVault, gated, comet, nil)
	require.NoError(t, err)
	require.NoError(t, r.SetRoutingForToken(testOwner, usdcAddr, types.BackendLendingPool))

	depositErr := make(chan error, 1)
	go func() {
		depositErr <- r.Deposit(ctx, testVault, usdcAddr, sdkmath.NewInt(100))
	}()
	// the deposit has resolved its routing entry and is parked mid-call
	<-gated.entered

	type migrateResult struct {
		moved sdkmath.Int
		err   error
	}
	migrated := make(chan migrateResult, 1)
	go func() {
		moved, migrateErr := r.MigrateRouting(ctx, testOwner, usdcAddr, types.BackendComet)
		migrated <- migrateResult{moved: moved, err: migrateErr}
	}()

	// give the migration time to contend for the routing lock, then let the
	// parked deposit finish
	time.Sleep(50 * time.Millisecond)
	close(gated.release)

	require.NoError(t, <-depositErr)
	result := <-migrated
	require.NoError(t, result.err)

	// the migration must have waited for the in-flight deposit: the drained
	// amount includes it and nothing is stranded in the old backend
	assert.Equal(t, sdkmath.NewInt(100).String(), result.moved.String())

	balance, err := r.GetStrategyBalance(ctx, usdcAddr)
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(100).String(), balance.String())

	poolBalance, err := pool.ReceiptBalanceOf(ctx, usdcAddr)
	require.NoError(t, err)
	assert.True(t, poolBalance.IsZero())
}

func TestSupportedAssets(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, []string{usdcAddr}, f.router.SupportedAssets())

	require.NoError(t, f.router.SetRoutingForToken(testOwner, daiAddr, types.BackendComet))
	assert.Len(t, f.router.SupportedAssets(), 2)
}
