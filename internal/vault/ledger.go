/*

This file contains the vault ledger: the user-facing entry point. It converts
asset amounts to USD through the price oracle, mints and burns shares against
the share token, enforces the slippage bound after the actual withdrawal
amount is known, and forwards net asset flow to the strategy router.

Every deposit and withdrawal is serialized under one mutex so no two share
computations can observe the same stale total vault value. Valuation itself
fans out across assets since per-asset routing state is independent.

*/

package vault

import (
	"context"
	"fmt"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/openyield/yrv/internal/logger"
	"github.com/openyield/yrv/internal/oracle"
	"github.com/openyield/yrv/internal/router"
	"github.com/openyield/yrv/internal/token"
	"github.com/openyield/yrv/internal/types"
	"github.com/openyield/yrv/internal/utils"
)

// HardMaxSlippageBps is the ceiling UpdateMaxSlippage will ever accept.
const HardMaxSlippageBps = 300

// ReceiptStore persists operation receipts. Best-effort: a store failure is
// logged and never fails the user operation.
type ReceiptStore interface {
	SaveReceipt(receipt types.OperationReceipt) error
}

// Ledger implements VaultService.
type Ledger struct {
	logger zerolog.Logger
	owner  types.Identity
	self   types.Identity // identity presented to the router and share token

	oracle *oracle.PriceOracle
	router *router.Router
	shares *token.ShareToken
	assets map[string]types.Asset
	store  ReceiptStore

	mu             sync.Mutex
	paused         bool
	maxSlippageBps int64
}

// Config holds the dependencies for creating a new Ledger.
type Config struct {
	Owner          types.Identity
	Identity       types.Identity
	Oracle         *oracle.PriceOracle
	Router         *router.Router
	Shares         *token.ShareToken
	Assets         map[string]types.Asset
	MaxSlippageBps int64
	ReceiptStore   ReceiptStore
}

// NewLedger creates the vault ledger with dependency injection.
func NewLedger(cfg Config) (*Ledger, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("ledger configuration validation failed: %w", err)
	}

	assets := make(map[string]types.Asset, len(cfg.Assets))
	for address, asset := range cfg.Assets {
		assets[address] = asset
	}

	l := &Ledger{
		logger:         logger.GetForComponent("vault_ledger"),
		owner:          cfg.Owner,
		self:           cfg.Identity,
		oracle:         cfg.Oracle,
		router:         cfg.Router,
		shares:         cfg.Shares,
		assets:         assets,
		store:          cfg.ReceiptStore,
		maxSlippageBps: cfg.MaxSlippageBps,
	}

	l.logger.Info().
		Str("identity", string(cfg.Identity)).
		Int("assets", len(assets)).
		Int64("maxSlippageBps", cfg.MaxSlippageBps).
		Msg("Vault ledger created")
	return l, nil
}

// validateConfig validates the ledger configuration.
func validateConfig(cfg Config) error {
	if cfg.Owner.IsZero() {
		return fmt.Errorf("owner identity cannot be empty")
	}
	if cfg.Identity.IsZero() {
		return fmt.Errorf("vault identity cannot be empty")
	}
	if cfg.Oracle == nil {
		return fmt.Errorf("price oracle cannot be nil")
	}
	if cfg.Router == nil {
		return fmt.Errorf("strategy router cannot be nil")
	}
	if cfg.Shares == nil {
		return fmt.Errorf("share token cannot be nil")
	}
	if len(cfg.Assets) == 0 {
		return fmt.Errorf("asset registry cannot be empty")
	}
	if cfg.MaxSlippageBps < 0 || cfg.MaxSlippageBps > HardMaxSlippageBps {
		return fmt.Errorf("max slippage %d bps outside [0, %d]", cfg.MaxSlippageBps, HardMaxSlippageBps)
	}
	return nil
}

// Deposit implements VaultService.
//
// Shares are minted only after the router confirms the deposit; if minting
// itself fails the routed funds are pulled back, so the operation is
// all-or-nothing.
func (l *Ledger) Deposit(ctx context.Context, caller types.Identity, asset string, amount sdkmath.Int) (sdkmath.Int, error) {
	if amount.IsNil() || amount.IsZero() {
		return sdkmath.ZeroInt(), types.ErrZeroAmount
	}
	assetInfo, ok := l.assets[asset]
	if !ok {
		return sdkmath.ZeroInt(), fmt.Errorf("asset %s not registered: %w", asset, types.ErrUnsupportedAsset)
	}

	opID := uuid.New().String()
	opLogger := l.logger.With().Str("op_id", opID).Str("asset", asset).Logger()

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.paused {
		return sdkmath.ZeroInt(), types.ErrVaultPaused
	}

	price, err := l.oracle.GetUsdPrice(ctx, asset)
	if err != nil {
		l.writeReceipt(opID, types.OperationDeposit, caller, asset, amount, sdkmath.ZeroInt(), sdkmath.ZeroInt(), sdkmath.ZeroInt(), false, err.Error())
		return sdkmath.ZeroInt(), fmt.Errorf("deposit price lookup failed: %w", err)
	}

	usdValue, err := utils.AmountToUSD18(amount, price, assetInfo.Decimals)
	if err != nil {
		l.writeReceipt(opID, types.OperationDeposit, caller, asset, amount, sdkmath.ZeroInt(), sdkmath.ZeroInt(), sdkmath.ZeroInt(), false, err.Error())
		return sdkmath.ZeroInt(), fmt.Errorf("deposit USD normalization failed: %w", err)
	}
	if usdValue.IsZero() {
		// Dust below the price resolution would mint nothing.
		l.writeReceipt(opID, types.OperationDeposit, caller, asset, amount, sdkmath.ZeroInt(), sdkmath.ZeroInt(), sdkmath.ZeroInt(), false, types.ErrZeroAmount.Error())
		return sdkmath.ZeroInt(), types.ErrZeroAmount
	}

	// Total vault value and share supply must be read before the funds move.
	totalSupply := l.shares.TotalSupply()
	sharesToMint := usdValue
	sharePrice := utils.Pow10(token.Decimals) // bootstrap peg: 1 share = $1
	if totalSupply.IsPositive() {
		totalUSD, valErr := l.totalVaultUSD(ctx)
		if valErr != nil {
			l.writeReceipt(opID, types.OperationDeposit, caller, asset, amount, sdkmath.ZeroInt(), usdValue, sdkmath.ZeroInt(), false, valErr.Error())
			return sdkmath.ZeroInt(), fmt.Errorf("deposit valuation failed: %w", valErr)
		}
		if totalUSD.IsPositive() {
			sharesToMint = usdValue.Mul(totalSupply).Quo(totalUSD)
			sharePrice = totalUSD.Mul(utils.Pow10(token.Decimals)).Quo(totalSupply)
		}
		// A positive supply against a zero-value vault means the backends
		// lost everything; the deposit re-pegs at 1 share = $1.
	}
	if sharesToMint.IsZero() {
		l.writeReceipt(opID, types.OperationDeposit, caller, asset, amount, sdkmath.ZeroInt(), usdValue, sharePrice, false, types.ErrZeroAmount.Error())
		return sdkmath.ZeroInt(), types.ErrZeroAmount
	}

	if err := l.router.Deposit(ctx, l.self, asset, amount); err != nil {
		l.writeReceipt(opID, types.OperationDeposit, caller, asset, amount, sdkmath.ZeroInt(), usdValue, sharePrice, false, err.Error())
		return sdkmath.ZeroInt(), fmt.Errorf("deposit routing failed: %w", err)
	}

	if err := l.shares.Mint(l.self, caller, sharesToMint); err != nil {
		// Pull the routed funds back so no value is stranded without shares.
		if returned, rbErr := l.router.Withdraw(ctx, l.self, asset, amount); rbErr != nil {
			opLogger.Error().Err(rbErr).Msg("Deposit rollback failed after mint failure")
		} else {
			opLogger.Warn().Str("returned", returned.String()).Msg("Deposit rolled back after mint failure")
		}
		l.writeReceipt(opID, types.OperationDeposit, caller, asset, amount, sdkmath.ZeroInt(), usdValue, sharePrice, false, err.Error())
		return sdkmath.ZeroInt(), fmt.Errorf("share mint failed: %w", err)
	}

	l.writeReceipt(opID, types.OperationDeposit, caller, asset, amount, sharesToMint, usdValue, sharePrice, true, "")

	opLogger.Info().
		Str("caller", string(caller)).
		Str("amount", amount.String()).
		Str("usdValue", usdValue.String()).
		Str("sharesMinted", sharesToMint.String()).
		Msg("Deposit completed")
	return sharesToMint, nil
}

// Withdraw implements VaultService.
//
// The slippage bound is checked against the amount the router actually
// recovered, not the pre-computed estimate, and shares are burned only after
// that check passes.
func (l *Ledger) Withdraw(ctx context.Context, caller types.Identity, asset string, shares, minAmountOut sdkmath.Int) (sdkmath.Int, error) {
	if shares.IsNil() || shares.IsZero() {
		return sdkmath.ZeroInt(), types.ErrZeroAmount
	}
	assetInfo, ok := l.assets[asset]
	if !ok {
		return sdkmath.ZeroInt(), fmt.Errorf("asset %s not registered: %w", asset, types.ErrUnsupportedAsset)
	}
	if minAmountOut.IsNil() {
		minAmountOut = sdkmath.ZeroInt()
	}

	opID := uuid.New().String()
	opLogger := l.logger.With().Str("op_id", opID).Str("asset", asset).Logger()

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.paused {
		return sdkmath.ZeroInt(), types.ErrVaultPaused
	}

	if balance := l.shares.BalanceOf(caller); balance.LT(shares) {
		return sdkmath.ZeroInt(), fmt.Errorf("withdraw %s shares exceeds balance %s: %w",
			shares, balance, token.ErrInsufficientShares)
	}
	totalSupply := l.shares.TotalSupply()

	price, err := l.oracle.GetUsdPrice(ctx, asset)
	if err != nil {
		l.writeReceipt(opID, types.OperationWithdraw, caller, asset, sdkmath.ZeroInt(), shares, sdkmath.ZeroInt(), sdkmath.ZeroInt(), false, err.Error())
		return sdkmath.ZeroInt(), fmt.Errorf("withdraw price lookup failed: %w", err)
	}

	totalUSD, err := l.totalVaultUSD(ctx)
	if err != nil {
		l.writeReceipt(opID, types.OperationWithdraw, caller, asset, sdkmath.ZeroInt(), shares, sdkmath.ZeroInt(), sdkmath.ZeroInt(), false, err.Error())
		return sdkmath.ZeroInt(), fmt.Errorf("withdraw valuation failed: %w", err)
	}

	usdOwed := shares.Mul(totalUSD).Quo(totalSupply)
	sharePrice := totalUSD.Mul(utils.Pow10(token.Decimals)).Quo(totalSupply)

	amountOut, err := utils.USD18ToAmount(usdOwed, price, assetInfo.Decimals)
	if err != nil {
		l.writeReceipt(opID, types.OperationWithdraw, caller, asset, sdkmath.ZeroInt(), shares, usdOwed, sharePrice, false, err.Error())
		return sdkmath.ZeroInt(), fmt.Errorf("withdraw USD conversion failed: %w", err)
	}
	if amountOut.IsZero() {
		l.writeReceipt(opID, types.OperationWithdraw, caller, asset, sdkmath.ZeroInt(), shares, usdOwed, sharePrice, false, types.ErrZeroAmount.Error())
		return sdkmath.ZeroInt(), types.ErrZeroAmount
	}

	returned, err := l.router.Withdraw(ctx, l.self, asset, amountOut)
	if err != nil {
		l.writeReceipt(opID, types.OperationWithdraw, caller, asset, amountOut, shares, usdOwed, sharePrice, false, err.Error())
		return sdkmath.ZeroInt(), fmt.Errorf("withdraw routing failed: %w", err)
	}

	// Slippage check after the actual amount is known: the backend may have
	// returned less than requested.
	vaultFloor := amountOut.Sub(utils.ApplyBps(amountOut, l.maxSlippageBps))
	floor := vaultFloor
	if minAmountOut.GT(floor) {
		floor = minAmountOut
	}
	if returned.LT(floor) {
		// Push the recovered funds back so the failed operation leaves no
		// partial state behind.
		if rbErr := l.router.Deposit(ctx, l.self, asset, returned); rbErr != nil {
			opLogger.Error().Err(rbErr).Msg("Withdraw rollback failed after slippage rejection")
		}
		l.writeReceipt(opID, types.OperationWithdraw, caller, asset, returned, shares, usdOwed, sharePrice, false, types.ErrSlippageExceeded.Error())
		return sdkmath.ZeroInt(), fmt.Errorf("returned %s below floor %s: %w", returned, floor, types.ErrSlippageExceeded)
	}

	if err := l.shares.Burn(l.self, caller, shares); err != nil {
		if rbErr := l.router.Deposit(ctx, l.self, asset, returned); rbErr != nil {
			opLogger.Error().Err(rbErr).Msg("Withdraw rollback failed after burn failure")
		}
		l.writeReceipt(opID, types.OperationWithdraw, caller, asset, returned, shares, usdOwed, sharePrice, false, err.Error())
		return sdkmath.ZeroInt(), fmt.Errorf("share burn failed: %w", err)
	}

	l.writeReceipt(opID, types.OperationWithdraw, caller, asset, returned, shares, usdOwed, sharePrice, true, "")

	opLogger.Info().
		Str("caller", string(caller)).
		Str("sharesBurned", shares.String()).
		Str("returned", returned.String()).
		Msg("Withdraw completed")
	return returned, nil
}

// TotalVaultUSD implements VaultService.
func (l *Ledger) TotalVaultUSD(ctx context.Context) (sdkmath.Int, error) {
	return l.totalVaultUSD(ctx)
}

// SharePriceUSD implements VaultService. Reports the bootstrap peg while no
// shares are outstanding.
func (l *Ledger) SharePriceUSD(ctx context.Context) (sdkmath.Int, error) {
	totalSupply := l.shares.TotalSupply()
	if totalSupply.IsZero() {
		return utils.Pow10(token.Decimals), nil
	}
	totalUSD, err := l.totalVaultUSD(ctx)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return totalUSD.Mul(utils.Pow10(token.Decimals)).Quo(totalSupply), nil
}

// Pause implements VaultService. Halts deposits and withdrawals but not
// administrative reconfiguration or the router's emergency drain.
func (l *Ledger) Pause(caller types.Identity) error {
	if caller != l.owner {
		return types.ErrUnauthorized
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.paused {
		return fmt.Errorf("already paused: %w", types.ErrNoStateChange)
	}
	l.paused = true

	l.logger.Warn().Msg("Vault paused")
	return nil
}

// Unpause implements VaultService.
func (l *Ledger) Unpause(caller types.Identity) error {
	if caller != l.owner {
		return types.ErrUnauthorized
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.paused {
		return fmt.Errorf("not paused: %w", types.ErrNoStateChange)
	}
	l.paused = false

	l.logger.Info().Msg("Vault unpaused")
	return nil
}

// UpdateMaxSlippage implements VaultService.
func (l *Ledger) UpdateMaxSlippage(caller types.Identity, bps int64) error {
	if caller != l.owner {
		return types.ErrUnauthorized
	}
	if bps < 0 || bps > HardMaxSlippageBps {
		return fmt.Errorf("%d bps outside [0, %d]: %w", bps, HardMaxSlippageBps, types.ErrSlippageTooHigh)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.maxSlippageBps = bps

	l.logger.Info().Int64("maxSlippageBps", bps).Msg("Max slippage updated")
	return nil
}

// Paused implements VaultService.
func (l *Ledger) Paused() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.paused
}

// MaxSlippageBps implements VaultService.
func (l *Ledger) MaxSlippageBps() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.maxSlippageBps
}

// totalVaultUSD sums the USD value of every routed asset. Per-asset reads
// are independent, so they fan out concurrently; any single failure fails
// the valuation since a partial sum would corrupt the share math.
func (l *Ledger) totalVaultUSD(ctx context.Context) (sdkmath.Int, error) {
	assets := l.router.SupportedAssets()
	if len(assets) == 0 {
		return sdkmath.ZeroInt(), nil
	}

	values := make([]sdkmath.Int, len(assets))
	g, gctx := errgroup.WithContext(ctx)
	for i, asset := range assets {
		i, asset := i, asset
		g.Go(func() error {
			assetInfo, ok := l.assets[asset]
			if !ok {
				return fmt.Errorf("routed asset %s not registered: %w", asset, types.ErrUnsupportedAsset)
			}
			balance, err := l.router.GetStrategyBalance(gctx, asset)
			if err != nil {
				return fmt.Errorf("balance for %s: %w", asset, err)
			}
			if balance.IsZero() {
				values[i] = sdkmath.ZeroInt()
				return nil
			}
			price, err := l.oracle.GetUsdPrice(gctx, asset)
			if err != nil {
				return fmt.Errorf("price for %s: %w", asset, err)
			}
			usd, err := utils.AmountToUSD18(balance, price, assetInfo.Decimals)
			if err != nil {
				return fmt.Errorf("valuation of %s: %w", asset, err)
			}
			values[i] = usd
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return sdkmath.ZeroInt(), err
	}

	total := sdkmath.ZeroInt()
	for _, usd := range values {
		if usd.IsNil() {
			continue
		}
		total = total.Add(usd)
	}
	return total, nil
}

// writeReceipt persists an operation receipt; failures are logged.
func (l *Ledger) writeReceipt(opID string, kind types.OperationKind, caller types.Identity, asset string, amount, shares, usdValue, sharePrice sdkmath.Int, success bool, message string) {
	if l.store == nil {
		return
	}
	receipt := types.OperationReceipt{
		OpID:       opID,
		Kind:       kind,
		Caller:     caller,
		Asset:      asset,
		Amount:     amount,
		Shares:     shares,
		UsdValue:   usdValue,
		SharePrice: sharePrice,
		Success:    success,
		Message:    message,
		Timestamp:  time.Now(),
	}
	if err := l.store.SaveReceipt(receipt); err != nil {
		l.logger.Error().Err(err).Str("op_id", opID).Msg("Failed to persist operation receipt")
	}
}
