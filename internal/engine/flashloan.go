/*

This file contains flashloan sizing: deciding whether the swap must be
pre-funded with a flashloan and how large the loan has to be in the flashloan
token's own base units.

*/

package engine

import (
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/oasisdex/earn-engine/internal/types"
)

// FlashloanParams describes the flashloan venue available to the strategy.
type FlashloanParams struct {
	// MaxLoanToValue is the ceiling the flashloan-providing protocol enforces
	// against the collateral backing the loan.
	MaxLoanToValue sdkmath.LegacyDec
	// Token is the asset the flashloan is denominated in.
	Token types.Token
}

// flashloanSizing holds the outcome of the sizing decision.
type flashloanSizing struct {
	required bool
	amount   sdkmath.Int // flashloan token base units
	capped   bool
}

// sizeFlashloan converts a debt-token funding requirement into a flashloan
// amount with the configured safety margin, re-denominated via the
// flashloan-to-debt oracle rate and rounded up so the loan is never
// under-funded. The naive amount is capped at what the venue allows against
// the collateral value backing the transition; hitting the cap is reported,
// not failed, so callers can surface it as a warning.
func sizeFlashloan(
	fundingDebtUnits sdkmath.LegacyDec, // whole debt-token units the swap must be pre-funded with
	collateralValueDebtUnits sdkmath.LegacyDec, // collateral value backing the loan, whole debt-token units
	oracleFlashloanToDebt sdkmath.LegacyDec, // debt-token value per unit of flashloan token
	fl FlashloanParams,
	params types.EngineParameters,
) (flashloanSizing, error) {
	if !fundingDebtUnits.IsPositive() {
		return flashloanSizing{required: false, amount: sdkmath.ZeroInt()}, nil
	}
	if oracleFlashloanToDebt.IsNil() || !oracleFlashloanToDebt.IsPositive() {
		return flashloanSizing{}, fmt.Errorf("%w: flashloan-to-debt oracle rate must be positive, got %s",
			types.ErrInvalidPrice, oracleFlashloanToDebt.String())
	}

	withMargin := fundingDebtUnits.Mul(sdkmath.LegacyOneDec().Add(params.FlashloanSafetyMargin))
	flUnits := withMargin.Quo(oracleFlashloanToDebt)

	capped := false
	if !fl.MaxLoanToValue.IsNil() && fl.MaxLoanToValue.IsPositive() {
		capUnits := collateralValueDebtUnits.Mul(fl.MaxLoanToValue).Quo(oracleFlashloanToDebt)
		if flUnits.GT(capUnits) {
			flUnits = capUnits
			capped = true
		}
	}

	amount, err := types.BaseUnitsFromDec(flUnits, fl.Token.Decimals, types.RoundUp)
	if err != nil {
		return flashloanSizing{}, err
	}
	return flashloanSizing{required: true, amount: amount, capped: capped}, nil
}
