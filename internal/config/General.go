package config

import (
	"errors"
	"os"
	"strconv"

	"github.com/rs/zerolog/log"
)

// AppConfig holds all application configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// OwnerIdentity is the identity authorized for all administrative mutators.
	OwnerIdentity string
	// ManagerIdentity is the delegated autonomous-manager identity allowed to
	// change routing. Optional; empty means no manager is authorized.
	ManagerIdentity string
	// VaultIdentity is the identity the vault ledger presents to the router
	// and the share token.
	VaultIdentity string

	// MaxSlippageBps is the initial permitted deviation on withdrawals.
	MaxSlippageBps int64
	// PriceMaxAgeSeconds is the staleness threshold for oracle prices.
	PriceMaxAgeSeconds int64
	// PriceDivergenceBps is the tolerated divergence between two price sources.
	PriceDivergenceBps int64
)

// LoadConfig loads configuration from environment variables and sets the global config vars.
// All environment variables except YRV_MANAGER_IDENTITY are required.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	OwnerIdentity, err = getEnv("YRV_OWNER_IDENTITY")
	if err != nil {
		return err
	}

	VaultIdentity, err = getEnv("YRV_VAULT_IDENTITY")
	if err != nil {
		return err
	}

	// The manager is optional; routing changes then require the owner.
	ManagerIdentity = os.Getenv("YRV_MANAGER_IDENTITY")

	MaxSlippageBps, err = getEnvAsInt64("YRV_MAX_SLIPPAGE_BPS")
	if err != nil {
		return err
	}

	PriceMaxAgeSeconds, err = getEnvAsInt64("YRV_PRICE_MAX_AGE_SECONDS")
	if err != nil {
		return err
	}

	PriceDivergenceBps, err = getEnvAsInt64("YRV_PRICE_DIVERGENCE_BPS")
	if err != nil {
		return err
	}

	log.Debug().
		Str("OwnerIdentity", OwnerIdentity).
		Str("VaultIdentity", VaultIdentity).
		Int64("MaxSlippageBps", MaxSlippageBps).
		Int64("PriceMaxAgeSeconds", PriceMaxAgeSeconds).
		Msg("Configuration loaded successfully.")

	return nil
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

// getEnvAsInt64 retrieves an environment variable as an int64. Returns error if not set or invalid.
func getEnvAsInt64(key string) (int64, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid int64, got: " + valueStr)
	}
	return value, nil
}
