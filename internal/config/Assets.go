/*

This file contains the default asset registry. An asset must appear here (or be
registered at runtime) before the vault will accept deposits of it, because the
USD normalization needs the decimal precision.

The addresses are external handles; the core never dereferences them beyond
equality checks and map lookups.

*/

package config

import (
	"github.com/openyield/yrv/internal/types"
)

var (
	// DefaultAssets is the baseline registry keyed by asset address.
	DefaultAssets = map[string]types.Asset{
		"asset:usdc": {Symbol: "usdc", Address: "asset:usdc", Decimals: 6},
		"asset:usdt": {Symbol: "usdt", Address: "asset:usdt", Decimals: 6},
		"asset:dai":  {Symbol: "dai", Address: "asset:dai", Decimals: 18},
		"asset:weth": {Symbol: "weth", Address: "asset:weth", Decimals: 18},
		"asset:wbtc": {Symbol: "wbtc", Address: "asset:wbtc", Decimals: 8},
	}
)
