/*

This file contains the fixed-point conversion helpers the share math is built
on. Prices carry 8 decimals, USD values and shares carry 18 decimals, asset
amounts carry their native decimals; everything meets here.

*/

package utils

import (
	"errors"
	"fmt"
	"math"

	sdkmath "cosmossdk.io/math"
)

// Error definitions for zero-tolerance error handling
var (
	ErrInvalidPrecision = errors.New("precision is invalid")
	ErrAmountNil        = errors.New("amount is nil")
	ErrAmountNegative   = errors.New("amount is negative")
	ErrPriceNotPositive = errors.New("price is not positive")
	ErrNotFinite        = errors.New("value is not finite")
	ErrConversionFailed = errors.New("conversion failed")
)

const (
	// PriceDecimals is the fixed-point precision of oracle prices.
	PriceDecimals = 8
	// UsdDecimals is the fixed-point precision of USD values and shares.
	UsdDecimals = 18
)

// Pow10 returns 10^n as an SDK Int. n must be small and non-negative.
func Pow10(n int) sdkmath.Int {
	return sdkmath.NewIntWithDecimal(1, n)
}

// checkPrecision validates an asset decimal precision.
func checkPrecision(precision int) error {
	if precision < 0 || precision > 18 {
		return fmt.Errorf("%w: %d (must be between 0 and 18)", ErrInvalidPrecision, precision)
	}
	return nil
}

// AmountToUSD18 converts an asset amount with the given decimal precision and
// an 8-decimal USD price into an 18-decimal USD value.
//
//	usd18 = amount * price8 * 10^(18-8) / 10^precision
func AmountToUSD18(amount, price8 sdkmath.Int, precision int) (sdkmath.Int, error) {
	if err := checkPrecision(precision); err != nil {
		return sdkmath.ZeroInt(), err
	}
	if amount.IsNil() {
		return sdkmath.ZeroInt(), ErrAmountNil
	}
	if amount.IsNegative() {
		return sdkmath.ZeroInt(), ErrAmountNegative
	}
	if price8.IsNil() || !price8.IsPositive() {
		return sdkmath.ZeroInt(), ErrPriceNotPositive
	}

	scaled := amount.Mul(price8).Mul(Pow10(UsdDecimals - PriceDecimals))
	return scaled.Quo(Pow10(precision)), nil
}

// USD18ToAmount converts an 18-decimal USD value back into an asset amount at
// the given 8-decimal price. Truncates toward zero so value never leaks to the
// caller on rounding.
func USD18ToAmount(usd18, price8 sdkmath.Int, precision int) (sdkmath.Int, error) {
	if err := checkPrecision(precision); err != nil {
		return sdkmath.ZeroInt(), err
	}
	if usd18.IsNil() {
		return sdkmath.ZeroInt(), ErrAmountNil
	}
	if usd18.IsNegative() {
		return sdkmath.ZeroInt(), ErrAmountNegative
	}
	if price8.IsNil() || !price8.IsPositive() {
		return sdkmath.ZeroInt(), ErrPriceNotPositive
	}

	numerator := usd18.Mul(Pow10(precision))
	denominator := price8.Mul(Pow10(UsdDecimals - PriceDecimals))
	return numerator.Quo(denominator), nil
}

// ApplyBps returns amount * bps / 10000, truncated.
func ApplyBps(amount sdkmath.Int, bps int64) sdkmath.Int {
	if amount.IsNil() {
		return sdkmath.ZeroInt()
	}
	return amount.Mul(sdkmath.NewInt(bps)).Quo(sdkmath.NewInt(10000))
}

// SDKIntToFloat64 converts an SDK Int to float64 with proper precision
// handling. Display use only; never feed the result back into share math.
func SDKIntToFloat64(amount sdkmath.Int, precision int) (float64, error) {
	if err := checkPrecision(precision); err != nil {
		return 0, err
	}
	if amount.IsNil() {
		return 0, ErrAmountNil
	}
	if amount.IsNegative() {
		return 0, ErrAmountNegative
	}

	decAmount := sdkmath.LegacyNewDecFromInt(amount)
	factor := sdkmath.LegacyNewDecFromInt(Pow10(precision))

	result := decAmount.Quo(factor)
	resultFloat, err := result.Float64()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrConversionFailed, err)
	}

	if math.IsNaN(resultFloat) || math.IsInf(resultFloat, 0) {
		return 0, fmt.Errorf("%w: result is %f", ErrNotFinite, resultFloat)
	}

	return resultFloat, nil
}

// Float64ToSDKInt converts a float64 to SDK Int with proper precision
// handling. Uses string conversion to avoid floating point artifacts.
func Float64ToSDKInt(amount float64, precision int) (sdkmath.Int, error) {
	if err := checkPrecision(precision); err != nil {
		return sdkmath.ZeroInt(), err
	}
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: amount is %f", ErrNotFinite, amount)
	}
	if amount < 0 {
		return sdkmath.ZeroInt(), ErrAmountNegative
	}
	if amount == 0 {
		return sdkmath.ZeroInt(), nil
	}

	formatStr := fmt.Sprintf("%%.%df", precision)
	amountStr := fmt.Sprintf(formatStr, amount)

	decAmount, err := sdkmath.LegacyNewDecFromStr(amountStr)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: failed to create decimal from string: %w", ErrConversionFailed, err)
	}

	result := decAmount.MulInt(Pow10(precision)).TruncateInt()
	if result.IsNegative() {
		return sdkmath.ZeroInt(), ErrAmountNegative
	}

	return result, nil
}
