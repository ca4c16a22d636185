package engine

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveFeeRate(t *testing.T) {
	params := testParams()

	tests := []struct {
		name       string
		collateral string
		debt       string
		ctx        FeeContext
		want       string
	}{
		{
			name:       "default pair pays the configured rate",
			collateral: "WETH",
			debt:       "DAI",
			want:       "0.002",
		},
		{
			name:       "earn position is fee free",
			collateral: "WETH",
			debt:       "DAI",
			ctx:        FeeContext{IsEarnPosition: true},
			want:       "0",
		},
		{
			name:       "exempt pair is fee free",
			collateral: "WSTETH",
			debt:       "WETH",
			want:       "0",
		},
		{
			name:       "exemption is unordered",
			collateral: "WETH",
			debt:       "WSTETH",
			want:       "0",
		},
		{
			name:       "direction does not change the rate",
			collateral: "WETH",
			debt:       "DAI",
			ctx:        FeeContext{IsIncreasingRisk: true},
			want:       "0.002",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveFeeRate(params, tt.collateral, tt.debt, tt.ctx)
			assert.True(t, got.Equal(sdkmath.LegacyMustNewDecFromStr(tt.want)),
				"got %s, want %s", got, tt.want)
		})
	}
}

func TestApplySlippage(t *testing.T) {
	price := sdkmath.LegacyNewDec(1000)
	slippage := sdkmath.LegacyMustNewDecFromStr("0.005")

	up, err := ApplySlippage(price, slippage, true)
	require.NoError(t, err)
	assert.True(t, up.Equal(sdkmath.LegacyNewDec(1005)), "buying pays more: %s", up)

	down, err := ApplySlippage(price, slippage, false)
	require.NoError(t, err)
	assert.True(t, down.Equal(sdkmath.LegacyNewDec(995)), "selling receives less: %s", down)

	same, err := ApplySlippage(price, sdkmath.LegacyZeroDec(), true)
	require.NoError(t, err)
	assert.True(t, same.Equal(price))
}

func TestApplySlippageRejectsBadInput(t *testing.T) {
	price := sdkmath.LegacyNewDec(1000)

	_, err := ApplySlippage(sdkmath.LegacyZeroDec(), sdkmath.LegacyZeroDec(), true)
	assert.Error(t, err)

	_, err = ApplySlippage(price, sdkmath.LegacyNewDec(-1), true)
	assert.Error(t, err)

	_, err = ApplySlippage(price, sdkmath.LegacyOneDec(), false)
	assert.Error(t, err)
}
