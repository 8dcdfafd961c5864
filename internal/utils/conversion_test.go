package utils

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAmountToUSD18(t *testing.T) {
	t.Run("six decimal asset at one dollar", func(t *testing.T) {
		// 1000 units of a 6-decimal asset at $1.00
		amount := sdkmath.NewInt(1_000_000_000)
		price := sdkmath.NewInt(100_000_000)

		usd, err := AmountToUSD18(amount, price, 6)
		require.NoError(t, err)
		assert.Equal(t, sdkmath.NewIntWithDecimal(1000, 18).String(), usd.String())
	})

	t.Run("eighteen decimal asset at fractional price", func(t *testing.T) {
		// 2 units of an 18-decimal asset at $0.50
		amount := sdkmath.NewIntWithDecimal(2, 18)
		price := sdkmath.NewInt(50_000_000)

		usd, err := AmountToUSD18(amount, price, 18)
		require.NoError(t, err)
		assert.Equal(t, sdkmath.NewIntWithDecimal(1, 18).String(), usd.String())
	})

	t.Run("dust amount truncates to zero", func(t *testing.T) {
		// 1 base unit of an 18-decimal asset at $0.000001 rounds below 1e-18 USD
		usd, err := AmountToUSD18(sdkmath.NewInt(1), sdkmath.NewInt(100), 18)
		require.NoError(t, err)
		assert.True(t, usd.IsZero())
	})

	t.Run("rejects negative amount", func(t *testing.T) {
		_, err := AmountToUSD18(sdkmath.NewInt(-1), sdkmath.NewInt(100_000_000), 6)
		assert.ErrorIs(t, err, ErrAmountNegative)
	})

	t.Run("rejects zero price", func(t *testing.T) {
		_, err := AmountToUSD18(sdkmath.NewInt(1), sdkmath.ZeroInt(), 6)
		assert.ErrorIs(t, err, ErrPriceNotPositive)
	})

	t.Run("rejects invalid precision", func(t *testing.T) {
		_, err := AmountToUSD18(sdkmath.NewInt(1), sdkmath.NewInt(100_000_000), 19)
		assert.ErrorIs(t, err, ErrInvalidPrecision)
	})
}

func TestUSD18ToAmount(t *testing.T) {
	t.Run("round trips whole values", func(t *testing.T) {
		amount := sdkmath.NewInt(1_000_000_000)
		price := sdkmath.NewInt(100_000_000)

		usd, err := AmountToUSD18(amount, price, 6)
		require.NoError(t, err)

		back, err := USD18ToAmount(usd, price, 6)
		require.NoError(t, err)
		assert.Equal(t, amount.String(), back.String())
	})

	t.Run("truncates toward zero", func(t *testing.T) {
		// $1 of a 0-decimal asset priced at $3 is 0 units, not 1
		amount, err := USD18ToAmount(sdkmath.NewIntWithDecimal(1, 18), sdkmath.NewInt(300_000_000), 0)
		require.NoError(t, err)
		assert.True(t, amount.IsZero())
	})

	t.Run("rejects negative usd", func(t *testing.T) {
		_, err := USD18ToAmount(sdkmath.NewInt(-1), sdkmath.NewInt(100_000_000), 6)
		assert.ErrorIs(t, err, ErrAmountNegative)
	})
}

func TestRoundTripNeverCreatesValue(t *testing.T) {
	// Whatever the price, converting an amount to USD and back must never
	// yield more than the original amount.
	prices := []sdkmath.Int{
		sdkmath.NewInt(1),
		sdkmath.NewInt(33_333_333),
		sdkmath.NewInt(100_000_000),
		sdkmath.NewInt(6_123_456_789),
	}
	amount := sdkmath.NewInt(987_654_321)

	for _, price := range prices {
		usd, err := AmountToUSD18(amount, price, 6)
		require.NoError(t, err)
		back, err := USD18ToAmount(usd, price, 6)
		require.NoError(t, err)
		assert.True(t, back.LTE(amount), "price %s created value: %s > %s", price, back, amount)
	}
}

func TestApplyBps(t *testing.T) {
	assert.Equal(t, sdkmath.NewInt(50).String(), ApplyBps(sdkmath.NewInt(10_000), 50).String())
	assert.Equal(t, sdkmath.NewInt(300).String(), ApplyBps(sdkmath.NewInt(10_000), 300).String())
	assert.True(t, ApplyBps(sdkmath.NewInt(10_000), 0).IsZero())
	// truncation
	assert.True(t, ApplyBps(sdkmath.NewInt(1), 50).IsZero())
}

func TestSDKIntToFloat64(t *testing.T) {
	value, err := SDKIntToFloat64(sdkmath.NewInt(1_500_000), 6)
	require.NoError(t, err)
	assert.InDelta(t, 1.5, value, 1e-9)

	_, err = SDKIntToFloat64(sdkmath.NewInt(-1), 6)
	assert.ErrorIs(t, err, ErrAmountNegative)
}

func TestFloat64ToSDKInt(t *testing.T) {
	value, err := Float64ToSDKInt(1.5, 6)
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(1_500_000).String(), value.String())

	zero, err := Float64ToSDKInt(0, 6)
	require.NoError(t, err)
	assert.True(t, zero.IsZero())

	_, err = Float64ToSDKInt(-0.5, 6)
	assert.ErrorIs(t, err, ErrAmountNegative)
}
