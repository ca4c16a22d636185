/*

This file contains the fee and slippage resolver: the pure policy functions
that decide which protocol fee rate applies to a swap and what the worst-case
execution price is under a slippage tolerance.

*/

package engine

import (
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/oasisdex/earn-engine/internal/types"
)

// FeeContext carries the flags the fee policy discriminates on.
type FeeContext struct {
	IsIncreasingRisk bool
	IsEarnPosition   bool
}

// ResolveFeeRate returns the protocol fee rate in [0, 1) applicable to a swap
// between the given collateral and debt tokens. Earn-type positions and
// configured fee-exempt pairs trade fee-free; everything else pays the default
// rate. The exact table is configuration, not algorithm.
func ResolveFeeRate(params types.EngineParameters, collateralSymbol, debtSymbol string, ctx FeeContext) sdkmath.LegacyDec {
	if ctx.IsEarnPosition {
		return sdkmath.LegacyZeroDec()
	}
	if params.IsFeeExemptPair(collateralSymbol, debtSymbol) {
		return sdkmath.LegacyZeroDec()
	}
	return params.DefaultSwapFeeRate()
}

// ApplySlippage returns the worst-case execution price for a market quote
// under the given tolerance: price * (1 + slippage) when buying collateral
// with debt (increasing risk, paying more per unit), price * (1 - slippage)
// when selling collateral for debt.
func ApplySlippage(price, slippage sdkmath.LegacyDec, increasingRisk bool) (sdkmath.LegacyDec, error) {
	if price.IsNil() || !price.IsPositive() {
		return sdkmath.LegacyDec{}, fmt.Errorf("%w: market price must be positive, got %s", types.ErrInvalidPrice, price.String())
	}
	if slippage.IsNil() || slippage.IsNegative() || slippage.GTE(sdkmath.LegacyOneDec()) {
		return sdkmath.LegacyDec{}, fmt.Errorf("%w: slippage must be in [0, 1), got %s", types.ErrInvalidSlippage, slippage.String())
	}
	one := sdkmath.LegacyOneDec()
	if increasingRisk {
		return price.Mul(one.Add(slippage)), nil
	}
	return price.Mul(one.Sub(slippage)), nil
}

// inflateFee applies the conservative estimation buffer to a computed fee.
func inflateFee(fee sdkmath.LegacyDec, params types.EngineParameters) sdkmath.LegacyDec {
	return fee.Mul(params.FeeEstimateInflator)
}
