/*

This file contains the Position value object: the current collateral/debt
state of a leveraged lending position plus the protocol-enforced risk limits
for its pair, with the derived read-only risk metrics.

Positions are immutable. Every adjustment produces a new Position value; the
adjustment algorithm itself lives in the engine package.

*/

package types

import (
	"fmt"

	sdkmath "cosmossdk.io/math"
)

// RiskCategory holds the protocol-enforced risk limits for a given
// collateral/debt pair. Sourced from a protocol-data collaborator and
// immutable for the duration of a simulation.
type RiskCategory struct {
	MaxLoanToValue       sdkmath.LegacyDec `json:"max_loan_to_value"`     // fraction in [0, 1]
	LiquidationThreshold sdkmath.LegacyDec `json:"liquidation_threshold"` // fraction in [0, 1]
	DustLimit            sdkmath.Int       `json:"dust_limit"`            // minimum non-zero debt, in debt base units
}

// Position is the immutable state of a leveraged position.
//
// OraclePrice expresses debt-token value per unit of collateral token: the
// protocol's canonical solvency price, not a tradeable market price.
type Position struct {
	Debt        TokenAmount       `json:"debt"`
	Collateral  TokenAmount       `json:"collateral"`
	OraclePrice sdkmath.LegacyDec `json:"oracle_price"`
	Category    RiskCategory      `json:"category"`
}

// NewPosition validates and constructs a Position.
func NewPosition(debt, collateral TokenAmount, oraclePrice sdkmath.LegacyDec, category RiskCategory) (Position, error) {
	if oraclePrice.IsNil() || !oraclePrice.IsPositive() {
		return Position{}, fmt.Errorf("%w: oracle price must be positive, got %s", ErrInvalidPrice, oraclePrice.String())
	}
	if debt.Amount.IsNil() || debt.Amount.IsNegative() {
		return Position{}, fmt.Errorf("%w: debt amount cannot be negative", ErrInvalidAmount)
	}
	if collateral.Amount.IsNil() || collateral.Amount.IsNegative() {
		return Position{}, fmt.Errorf("%w: collateral amount cannot be negative", ErrInvalidAmount)
	}
	if category.MaxLoanToValue.IsNil() || category.MaxLoanToValue.IsNegative() || category.MaxLoanToValue.GT(sdkmath.LegacyOneDec()) {
		return Position{}, fmt.Errorf("%w: max loan-to-value must be in [0, 1]", ErrInvalidRiskRatio)
	}
	if category.LiquidationThreshold.IsNil() || category.LiquidationThreshold.IsNegative() || category.LiquidationThreshold.GT(sdkmath.LegacyOneDec()) {
		return Position{}, fmt.Errorf("%w: liquidation threshold must be in [0, 1]", ErrInvalidRiskRatio)
	}
	if category.DustLimit.IsNil() {
		category.DustLimit = sdkmath.ZeroInt()
	}
	return Position{Debt: debt, Collateral: collateral, OraclePrice: oraclePrice, Category: category}, nil
}

// collateralValueInDebtUnits is the collateral valued at the oracle price,
// in whole debt-token units.
func (p Position) collateralValueInDebtUnits() sdkmath.LegacyDec {
	return p.Collateral.Units().Mul(p.OraclePrice)
}

// LoanToValue returns debt value divided by collateral value at the oracle
// price. A position with debt but no collateral reports the maximum sortable
// value rather than dividing by zero.
func (p Position) LoanToValue() sdkmath.LegacyDec {
	collateralValue := p.collateralValueInDebtUnits()
	if collateralValue.IsZero() {
		if p.Debt.Amount.IsZero() {
			return sdkmath.LegacyZeroDec()
		}
		return sdkmath.LegacyMaxSortableDec
	}
	return p.Debt.Units().Quo(collateralValue)
}

// RiskRatio returns the position's current risk expressed as a RiskRatio.
func (p Position) RiskRatio() (RiskRatio, error) {
	return RiskRatioFromLTV(p.LoanToValue())
}

// HealthFactor returns collateralValue * liquidationThreshold / debtValue.
// A debt-free position is infinitely healthy and reports the maximum sortable
// value.
func (p Position) HealthFactor() sdkmath.LegacyDec {
	if p.Debt.Amount.IsZero() {
		return sdkmath.LegacyMaxSortableDec
	}
	return p.collateralValueInDebtUnits().Mul(p.Category.LiquidationThreshold).Quo(p.Debt.Units())
}

// LiquidationPrice returns the oracle price at which the health factor
// reaches 1. Zero when the position carries no collateral or no threshold.
func (p Position) LiquidationPrice() sdkmath.LegacyDec {
	denominator := p.Collateral.Units().Mul(p.Category.LiquidationThreshold)
	if denominator.IsZero() {
		return sdkmath.LegacyZeroDec()
	}
	return p.Debt.Units().Quo(denominator)
}

// MaxDebtToBorrow returns the additional debt (in debt base units) the
// protocol would allow against current collateral, floored at zero.
func (p Position) MaxDebtToBorrow() sdkmath.Int {
	headroom := p.collateralValueInDebtUnits().Mul(p.Category.MaxLoanToValue).Sub(p.Debt.Units())
	if !headroom.IsPositive() {
		return sdkmath.ZeroInt()
	}
	amount, err := BaseUnitsFromDec(headroom, p.Debt.Token.Decimals, RoundDown)
	if err != nil {
		// headroom smaller than one base unit
		return sdkmath.ZeroInt()
	}
	return amount
}

// MaxCollateralToWithdraw returns the collateral (in collateral base units)
// that could be withdrawn without breaching the max loan-to-value, floored at
// zero.
func (p Position) MaxCollateralToWithdraw() sdkmath.Int {
	borrowCeiling := p.OraclePrice.Mul(p.Category.MaxLoanToValue)
	if borrowCeiling.IsZero() {
		if p.Debt.Amount.IsZero() {
			return p.Collateral.Amount
		}
		return sdkmath.ZeroInt()
	}
	required := p.Debt.Units().Quo(borrowCeiling)
	withdrawable := p.Collateral.Units().Sub(required)
	if !withdrawable.IsPositive() {
		return sdkmath.ZeroInt()
	}
	amount, err := BaseUnitsFromDec(withdrawable, p.Collateral.Token.Decimals, RoundDown)
	if err != nil {
		return sdkmath.ZeroInt()
	}
	return amount
}

// MinConfigurableRiskRatio returns the lowest risk ratio reachable by selling
// collateral at the given worst-case (slippage-adjusted) market price until
// debt is reduced to the protocol's dust limit. A full unwind below the dust
// limit closes the position instead, so the dust limit is the floor for any
// configurable target.
//
// Fails with ErrUnreachableRiskRatio when even selling the entire collateral
// cannot bring debt down to the dust limit.
func (p Position) MinConfigurableRiskRatio(marketPriceWithSlippage, feeRate sdkmath.LegacyDec) (RiskRatio, error) {
	if marketPriceWithSlippage.IsNil() || !marketPriceWithSlippage.IsPositive() {
		return RiskRatio{}, fmt.Errorf("%w: market price must be positive", ErrInvalidPrice)
	}
	dustUnits := DecFromBaseUnits(p.Category.DustLimit, p.Debt.Token.Decimals)
	debtUnits := p.Debt.Units()
	if debtUnits.LTE(dustUnits) {
		return RiskRatioFromLTV(sdkmath.LegacyZeroDec())
	}

	// Collateral that must be sold to repay down to the dust limit, net of the
	// swap fee taken from the proceeds.
	netRate := marketPriceWithSlippage.Mul(sdkmath.LegacyOneDec().Sub(feeRate))
	if !netRate.IsPositive() {
		return RiskRatio{}, fmt.Errorf("%w: fee rate consumes the entire swap", ErrInvalidSlippage)
	}
	collateralToSell := debtUnits.Sub(dustUnits).Quo(netRate)
	remainingCollateral := p.Collateral.Units().Sub(collateralToSell)
	if !remainingCollateral.IsPositive() {
		return RiskRatio{}, fmt.Errorf("%w: unwinding to the dust limit would exhaust collateral", ErrUnreachableRiskRatio)
	}

	minLTV := dustUnits.Quo(remainingCollateral.Mul(p.OraclePrice))
	if minLTV.GTE(sdkmath.LegacyOneDec()) {
		return RiskRatio{}, fmt.Errorf("%w: residual position would sit above 100%% loan-to-value", ErrUnreachableRiskRatio)
	}
	return RiskRatioFromLTV(minLTV)
}
