package main

import (
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/openyield/yrv/internal/backend"
	"github.com/openyield/yrv/internal/config"
	"github.com/openyield/yrv/internal/logger"
	"github.com/openyield/yrv/internal/oracle"
	"github.com/openyield/yrv/internal/router"
	"github.com/openyield/yrv/internal/state"
	"github.com/openyield/yrv/internal/token"
	"github.com/openyield/yrv/internal/types"
	"github.com/openyield/yrv/internal/utils"
	"github.com/openyield/yrv/internal/vault"
	"github.com/openyield/yrv/internal/web"
)

const (
	ACCRUAL_INTERVAL = 1 * time.Minute
)

// main is the entry point for the YRV system.
func main() {
	// --- 1. Initialization Phase ---
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	// Load configuration from environment variables
	if err := config.LoadConfig(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Initialize(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FILE"))
	log.Info().Msg("YRV Vault Starting...")

	// Initialize Database Connection
	dbCfg := state.DBConfig{
		Host: os.Getenv("DB_HOST"), Port: mustAtoi(os.Getenv("DB_PORT"), 5432),
		User: os.Getenv("DB_USER"), Password: os.Getenv("DB_PASSWORD"),
		DBName: os.Getenv("DB_NAME"), SSLMode: os.Getenv("DB_SSLMODE"),
	}
	if err := state.InitDB(dbCfg); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer state.CloseDB()
	if err := state.EnsureSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure database schema")
	}

	owner := types.Identity(config.OwnerIdentity)
	vaultID := types.Identity(config.VaultIdentity)

	// --- 2. Market Initialization (with Safety Switch) ---
	// Only the simulated markets are wired here. Connecting real yield markets
	// means implementing backend.PoolMarket / backend.CometMarket against
	// their client SDKs and swapping these constructors out.
	yrvMode := os.Getenv("YRV_MODE")
	if yrvMode != "sim" {
		log.Fatal().Msg("YRV_MODE is not set to 'sim'. Halting to prevent accidental execution against unconfigured markets. Set YRV_MODE=sim to run.")
	}
	log.Warn().Msg("Initializing YRV in SIM mode. All markets and price feeds are simulated.")

	// Simulated markets: ~3% APY on the lending pool, ~5% on comet.
	poolMarket := backend.NewSimPoolMarket()
	poolRate := sdkmath.LegacyNewDecWithPrec(95, 11) // per-second
	cometRate := sdkmath.LegacyNewDecWithPrec(158, 11)

	// Simulated price feeds, two per asset.
	primaryFeed := oracle.NewStaticFeed("sim-primary")
	secondaryFeed := oracle.NewStaticFeed("sim-secondary")

	// --- 3. Component Wiring ---
	priceOracle, err := oracle.NewPriceOracle(
		time.Duration(config.PriceMaxAgeSeconds)*time.Second,
		config.PriceDivergenceBps,
	)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create price oracle")
	}

	positionStore := state.NewBackendPositionStore()

	lendingPool, err := backend.NewLendingPoolAdapter(owner, positionStore)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create lending pool adapter")
	}
	if err := lendingPool.SetPool(owner, poolMarket); err != nil {
		log.Fatal().Err(err).Msg("Failed to attach pool market")
	}

	comet, err := backend.NewCometMarketAdapter(owner, positionStore)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create comet adapter")
	}

	strategyRouter, err := router.NewRouter(owner, vaultID, lendingPool, comet, state.NewRoutingTableStore())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create strategy router")
	}
	if config.ManagerIdentity != "" {
		if err := strategyRouter.SetManager(owner, types.Identity(config.ManagerIdentity)); err != nil {
			log.Fatal().Err(err).Msg("Failed to set routing manager")
		}
	}

	shares, err := token.NewShareToken(owner)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create share token")
	}
	if err := shares.SetVault(owner, vaultID); err != nil {
		log.Fatal().Err(err).Msg("Failed to bind share token to vault")
	}

	// Register every configured asset: feeds, markets, adapter positions and
	// an initial routing entry pointing at the lending pool.
	simPrice := simFeedPrice()
	cometMarkets := make(map[string]*backend.SimCometMarket, len(config.DefaultAssets))
	for address, asset := range config.DefaultAssets {
		price := simPrice
		primaryFeed.SetPrice(address, price)
		secondaryFeed.SetPrice(address, price)
		if err := priceOracle.RegisterFeeds(address, primaryFeed, secondaryFeed); err != nil {
			log.Fatal().Err(err).Str("asset", asset.Symbol).Msg("Failed to register price feeds")
		}

		poolMarket.ListAsset(address, poolRate)

		cometMarket := backend.NewSimCometMarket(cometRate)
		cometMarkets[address] = cometMarket
		if err := comet.SetMarket(owner, address, cometMarket); err != nil {
			log.Fatal().Err(err).Str("asset", asset.Symbol).Msg("Failed to attach comet market")
		}

		if err := lendingPool.EnableAsset(owner, address); err != nil {
			log.Fatal().Err(err).Str("asset", asset.Symbol).Msg("Failed to enable asset on lending pool")
		}
		if err := comet.EnableAsset(owner, address); err != nil {
			log.Fatal().Err(err).Str("asset", asset.Symbol).Msg("Failed to enable asset on comet")
		}
		if err := strategyRouter.SetRoutingForToken(owner, address, types.BackendLendingPool); err != nil {
			log.Fatal().Err(err).Str("asset", asset.Symbol).Msg("Failed to set initial routing")
		}
	}
	log.Info().Int("assets", len(config.DefaultAssets)).Msg("Asset registry wired")

	ledger, err := vault.NewLedger(vault.Config{
		Owner:          owner,
		Identity:       vaultID,
		Oracle:         priceOracle,
		Router:         strategyRouter,
		Shares:         shares,
		Assets:         config.DefaultAssets,
		MaxSlippageBps: config.MaxSlippageBps,
		ReceiptStore:   state.NewOperationReceiptStore(),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create vault ledger")
	}

	// --- 4. Start Web Server ---
	webPort := os.Getenv("WEB_PORT")
	if webPort == "" {
		webPort = "8080"
	}

	webServer := web.NewWebServer(webPort, ledger, strategyRouter, shares)
	go func() {
		log.Info().Str("port", webPort).Str("url", "http://localhost:"+webPort).Msg("Starting YRV web API")
		if err := webServer.Start(); err != nil {
			log.Error().Err(err).Msg("Web server failed to start")
		}
	}()

	// --- 5. Simulated Yield Accrual Loop ---
	go func() {
		ticker := time.NewTicker(ACCRUAL_INTERVAL)
		defer ticker.Stop()
		seconds := int64(ACCRUAL_INTERVAL / time.Second)
		for range ticker.C {
			poolMarket.Accrue(seconds)
			for _, market := range cometMarkets {
				market.Accrue(seconds)
			}
			log.Debug().Int64("seconds", seconds).Msg("Simulated yield accrued")
		}
	}()

	// --- 6. Block Until Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("Shutdown signal received, stopping YRV")
}

// Helper to convert string to int with a default value
func mustAtoi(s string, defaultValue int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return i
}

// simFeedPrice reads YRV_SIM_PRICE_USD (a USD float, e.g. "1.25") and scales
// it to the 8-decimal feed representation. Defaults to $1.00.
func simFeedPrice() sdkmath.Int {
	raw := os.Getenv("YRV_SIM_PRICE_USD")
	if raw == "" {
		return sdkmath.NewInt(100_000_000)
	}
	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		log.Fatal().Err(err).Str("value", raw).Msg("Invalid YRV_SIM_PRICE_USD")
	}
	price, err := utils.Float64ToSDKInt(parsed, utils.PriceDecimals)
	if err != nil || !price.IsPositive() {
		log.Fatal().Err(err).Str("value", raw).Msg("YRV_SIM_PRICE_USD must be a positive price")
	}
	return price
}
