package vault

import (
	"context"
	"sync"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openyield/yrv/internal/backend"
	"github.com/openyield/yrv/internal/oracle"
	"github.com/openyield/yrv/internal/router"
	"github.com/openyield/yrv/internal/token"
	"github.com/openyield/yrv/internal/types"
	"github.com/openyield/yrv/internal/utils"
)

const (
	testOwner = types.Identity("identity:owner")
	testVault = types.Identity("identity:vault")
	alice     = types.Identity("identity:alice")
	bob       = types.Identity("identity:bob")
	usdcAddr  = "asset:usdc"
	daiAddr   = "asset:dai"
)

// oneUsd is the $1.00 price at 8 decimals.
var oneUsd = sdkmath.NewInt(100_000_000)

// memReceiptStore collects receipts in memory so tests can assert on the
// operation history without a database.
type memReceiptStore struct {
	mu       sync.Mutex
	receipts []types.OperationReceipt
}

func (s *memReceiptStore) SaveReceipt(receipt types.OperationReceipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receipts = append(s.receipts, receipt)
	return nil
}

func (s *memReceiptStore) all() []types.OperationReceipt {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.OperationReceipt, len(s.receipts))
	copy(out, s.receipts)
	return out
}

type fixture struct {
	ledger   *Ledger
	shares   *token.ShareToken
	router   *router.Router
	pool     *backend.SimPoolMarket
	feed     *oracle.StaticFeed
	receipts *memReceiptStore
}

// newFixture wires the full stack over sim markets: usdc (6 decimals) at
// $1.00, routed to the lending pool, 100 bps slippage bound.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	feed := oracle.NewStaticFeed("test-feed")
	feed.SetPrice(usdcAddr, oneUsd)
	priceOracle, err := oracle.NewPriceOracle(time.Hour, 200)
	require.NoError(t, err)
	require.NoError(t, priceOracle.RegisterFeeds(usdcAddr, feed, nil))

	rate := sdkmath.LegacyNewDecWithPrec(95, 11)
	pool := backend.NewSimPoolMarket()
	pool.ListAsset(usdcAddr, rate)
	lendingPool, err := backend.NewLendingPoolAdapter(testOwner, nil)
	require.NoError(t, err)
	require.NoError(t, lendingPool.SetPool(testOwner, pool))
	require.NoError(t, lendingPool.EnableAsset(testOwner, usdcAddr))

	comet, err := backend.NewCometMarketAdapter(testOwner, nil)
	require.NoError(t, err)
	require.NoError(t, comet.SetMarket(testOwner, usdcAddr, backend.NewSimCometMarket(rate)))
	require.NoError(t, comet.EnableAsset(testOwner, usdcAddr))

	strategyRouter, err := router.NewRouter(testOwner, testVault, lendingPool, comet, nil)
	require.NoError(t, err)
	require.NoError(t, strategyRouter.SetRoutingForToken(testOwner, usdcAddr, types.BackendLendingPool))

	shares, err := token.NewShareToken(testOwner)
	require.NoError(t, err)
	require.NoError(t, shares.SetVault(testOwner, testVault))

	receipts := &memReceiptStore{}
	ledger, err := NewLedger(Config{
		Owner:    testOwner,
		Identity: testVault,
		Oracle:   priceOracle,
		Router:   strategyRouter,
		Shares:   shares,
		Assets: map[string]types.Asset{
			usdcAddr: {Symbol: "USDC", Address: usdcAddr, Decimals: 6},
		},
		MaxSlippageBps: 100,
		ReceiptStore:   receipts,
	})
	require.NoError(t, err)

	return &fixture{
		ledger:   ledger,
		shares:   shares,
		router:   strategyRouter,
		pool:     pool,
		feed:     feed,
		receipts: receipts,
	}
}

func TestBootstrapDeposit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// first deposit: 1000 usdc at $1.00 pegs 1 share = $1
	minted, err := f.ledger.Deposit(ctx, alice, usdcAddr, sdkmath.NewInt(1_000_000_000))
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewIntWithDecimal(1000, 18).String(), minted.String())
	assert.Equal(t, minted.String(), f.shares.BalanceOf(alice).String())

	totalUSD, err := f.ledger.TotalVaultUSD(ctx)
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewIntWithDecimal(1000, 18).String(), totalUSD.String())

	price, err := f.ledger.SharePriceUSD(ctx)
	require.NoError(t, err)
	assert.Equal(t, utils.Pow10(18).String(), price.String())
}

func TestProportionalSecondDeposit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ledger.Deposit(ctx, alice, usdcAddr, sdkmath.NewInt(1_000_000_000))
	require.NoError(t, err)

	// yield accrues before bob arrives, so his shares cost more
	f.pool.Accrue(31_536_000)

	minted, err := f.ledger.Deposit(ctx, bob, usdcAddr, sdkmath.NewInt(1_000_000_000))
	require.NoError(t, err)
	assert.True(t, minted.LT(f.shares.BalanceOf(alice)))

	// both claims priced identically afterwards
	price, err := f.ledger.SharePriceUSD(ctx)
	require.NoError(t, err)
	assert.True(t, price.GT(utils.Pow10(18)))
}

func TestDepositValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ledger.Deposit(ctx, alice, usdcAddr, sdkmath.ZeroInt())
	assert.ErrorIs(t, err, types.ErrZeroAmount)

	_, err = f.ledger.Deposit(ctx, alice, daiAddr, sdkmath.NewInt(1000))
	assert.ErrorIs(t, err, types.ErrUnsupportedAsset)
}

func TestDepositStalePrice(t *testing.T) {
	f := newFixture(t)

	f.feed.SetObservation(usdcAddr, oneUsd, time.Now().Add(-2*time.Hour))
	_, err := f.ledger.Deposit(context.Background(), alice, usdcAddr, sdkmath.NewInt(1_000_000_000))
	assert.ErrorIs(t, err, types.ErrStalePrice)
	assert.True(t, f.shares.TotalSupply().IsZero())
}

func TestWithdrawRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	deposited := sdkmath.NewInt(1_000_000_000)
	minted, err := f.ledger.Deposit(ctx, alice, usdcAddr, deposited)
	require.NoError(t, err)

	returned, err := f.ledger.Withdraw(ctx, alice, usdcAddr, minted, sdkmath.ZeroInt())
	require.NoError(t, err)

	// truncation may cost dust but never creates value
	assert.True(t, returned.LTE(deposited))
	assert.True(t, returned.GT(deposited.Sub(sdkmath.NewInt(10))))
	assert.True(t, f.shares.BalanceOf(alice).IsZero())
	assert.True(t, f.shares.TotalSupply().IsZero())
}

func TestWithdrawAfterYield(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	deposited := sdkmath.NewInt(1_000_000_000)
	minted, err := f.ledger.Deposit(ctx, alice, usdcAddr, deposited)
	require.NoError(t, err)

	f.pool.Accrue(31_536_000)

	returned, err := f.ledger.Withdraw(ctx, alice, usdcAddr, minted, sdkmath.ZeroInt())
	require.NoError(t, err)
	assert.True(t, returned.GT(deposited), "withdrawal should include accrued yield")
}

func TestWithdrawValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	minted, err := f.ledger.Deposit(ctx, alice, usdcAddr, sdkmath.NewInt(1_000_000_000))
	require.NoError(t, err)

	_, err = f.ledger.Withdraw(ctx, alice, usdcAddr, sdkmath.ZeroInt(), sdkmath.ZeroInt())
	assert.ErrorIs(t, err, types.ErrZeroAmount)

	_, err = f.ledger.Withdraw(ctx, alice, usdcAddr, minted.Add(sdkmath.OneInt()), sdkmath.ZeroInt())
	assert.ErrorIs(t, err, token.ErrInsufficientShares)

	_, err = f.ledger.Withdraw(ctx, bob, usdcAddr, minted, sdkmath.ZeroInt())
	assert.ErrorIs(t, err, token.ErrInsufficientShares)
}

func TestWithdrawSlippageRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	deposited := sdkmath.NewInt(1_000_000_000)
	minted, err := f.ledger.Deposit(ctx, alice, usdcAddr, deposited)
	require.NoError(t, err)

	// demand twice what the position can possibly return
	_, err = f.ledger.Withdraw(ctx, alice, usdcAddr, minted, deposited.MulRaw(2))
	assert.ErrorIs(t, err, types.ErrSlippageExceeded)

	// rejected operation leaves no partial state: shares intact, funds back
	assert.Equal(t, minted.String(), f.shares.BalanceOf(alice).String())
	balance, err := f.router.GetStrategyBalance(ctx, usdcAddr)
	require.NoError(t, err)
	assert.Equal(t, deposited.String(), balance.String())
}

func TestPauseBlocksUserOperations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	minted, err := f.ledger.Deposit(ctx, alice, usdcAddr, sdkmath.NewInt(1_000_000_000))
	require.NoError(t, err)

	assert.ErrorIs(t, f.ledger.Pause(alice), types.ErrUnauthorized)
	require.NoError(t, f.ledger.Pause(testOwner))
	assert.True(t, f.ledger.Paused())

	// pausing twice is a loud no-op
	assert.ErrorIs(t, f.ledger.Pause(testOwner), types.ErrNoStateChange)

	_, err = f.ledger.Deposit(ctx, alice, usdcAddr, sdkmath.NewInt(1000))
	assert.ErrorIs(t, err, types.ErrVaultPaused)
	_, err = f.ledger.Withdraw(ctx, alice, usdcAddr, minted, sdkmath.ZeroInt())
	assert.ErrorIs(t, err, types.ErrVaultPaused)

	// administrative paths stay open while paused
	require.NoError(t, f.ledger.UpdateMaxSlippage(testOwner, 50))
	drained, err := f.router.EmergencyWithdraw(ctx, testOwner, usdcAddr)
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(1_000_000_000).String(), drained.String())

	require.NoError(t, f.ledger.Unpause(testOwner))
	assert.ErrorIs(t, f.ledger.Unpause(testOwner), types.ErrNoStateChange)
	assert.False(t, f.ledger.Paused())
}

func TestUpdateMaxSlippage(t *testing.T) {
	f := newFixture(t)

	assert.ErrorIs(t, f.ledger.UpdateMaxSlippage(alice, 50), types.ErrUnauthorized)
	assert.ErrorIs(t, f.ledger.UpdateMaxSlippage(testOwner, HardMaxSlippageBps+1), types.ErrSlippageTooHigh)
	assert.ErrorIs(t, f.ledger.UpdateMaxSlippage(testOwner, -1), types.ErrSlippageTooHigh)

	require.NoError(t, f.ledger.UpdateMaxSlippage(testOwner, 0))
	assert.Equal(t, int64(0), f.ledger.MaxSlippageBps())
}

func TestNewLedgerValidation(t *testing.T) {
	f := newFixture(t)

	base := Config{
		Owner:          testOwner,
		Identity:       testVault,
		Oracle:         nil,
		Router:         f.router,
		Shares:         f.shares,
		Assets:         map[string]types.Asset{usdcAddr: {Symbol: "USDC", Address: usdcAddr, Decimals: 6}},
		MaxSlippageBps: 100,
	}
	_, err := NewLedger(base)
	assert.Error(t, err)

	base.Oracle = nil
	base.Owner = ""
	_, err = NewLedger(base)
	assert.Error(t, err)
}

func TestSharePriceReflectsYield(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ledger.Deposit(ctx, alice, usdcAddr, sdkmath.NewInt(1_000_000_000))
	require.NoError(t, err)

	before, err := f.ledger.SharePriceUSD(ctx)
	require.NoError(t, err)

	f.pool.Accrue(31_536_000)

	after, err := f.ledger.SharePriceUSD(ctx)
	require.NoError(t, err)
	assert.True(t, after.GT(before))
}

func TestValuationFailsOnUnhealthyFeed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ledger.Deposit(ctx, alice, usdcAddr, sdkmath.NewInt(1_000_000_000))
	require.NoError(t, err)

	// a stale feed must fail the whole valuation, not zero one term
	f.feed.SetObservation(usdcAddr, oneUsd, time.Now().Add(-2*time.Hour))
	_, err = f.ledger.TotalVaultUSD(ctx)
	assert.ErrorIs(t, err, types.ErrStalePrice)
}

func TestReceiptsRecordSuccessAndFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	deposited := sdkmath.NewInt(1_000_000_000)
	minted, err := f.ledger.Deposit(ctx, alice, usdcAddr, deposited)
	require.NoError(t, err)

	// slippage rejection is a failed operation, not an invisible one
	_, err = f.ledger.Withdraw(ctx, alice, usdcAddr, minted, deposited.MulRaw(2))
	require.ErrorIs(t, err, types.ErrSlippageExceeded)

	receipts := f.receipts.all()
	require.Len(t, receipts, 2)

	assert.Equal(t, types.OperationDeposit, receipts[0].Kind)
	assert.True(t, receipts[0].Success)
	assert.Equal(t, alice, receipts[0].Caller)
	assert.Equal(t, minted.String(), receipts[0].Shares.String())

	assert.Equal(t, types.OperationWithdraw, receipts[1].Kind)
	assert.False(t, receipts[1].Success)
	assert.Equal(t, types.ErrSlippageExceeded.Error(), receipts[1].Message)
	assert.NotEmpty(t, receipts[1].OpID)
}

func TestDustDepositWritesFailureReceipt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// an 18-decimal asset at $0.000001 makes small deposits round to zero USD
	feed := oracle.NewStaticFeed("dust-feed")
	feed.SetPrice(daiAddr, sdkmath.NewInt(100))
	priceOracle, err := oracle.NewPriceOracle(time.Hour, 200)
	require.NoError(t, err)
	require.NoError(t, priceOracle.RegisterFeeds(daiAddr, feed, nil))

	receipts := &memReceiptStore{}
	ledger, err := NewLedger(Config{
		Owner:    testOwner,
		Identity: testVault,
		Oracle:   priceOracle,
		Router:   f.router,
		Shares:   f.shares,
		Assets: map[string]types.Asset{
			daiAddr: {Symbol: "DAI", Address: daiAddr, Decimals: 18},
		},
		MaxSlippageBps: 100,
		ReceiptStore:   receipts,
	})
	require.NoError(t, err)

	_, err = ledger.Deposit(ctx, alice, daiAddr, sdkmath.NewInt(1000))
	require.ErrorIs(t, err, types.ErrZeroAmount)

	recorded := receipts.all()
	require.Len(t, recorded, 1)
	assert.Equal(t, types.OperationDeposit, recorded[0].Kind)
	assert.False(t, recorded[0].Success)
	assert.Equal(t, types.ErrZeroAmount.Error(), recorded[0].Message)
	assert.True(t, recorded[0].UsdValue.IsZero())
	assert.True(t, f.shares.TotalSupply().IsZero())
}
