/*

This file contains the position adjustment simulator: the central algorithm
that, given a position and a target risk ratio, solves the closed system of
constraints (target loan-to-value, slippage-adjusted market price, protocol
fee on either swap side, flashloan feasibility) and produces a fully
simulated transition.

Every open/close/adjust strategy for every protocol is a thin wrapper around
this one function. It is stateless and idempotent: identical inputs always
produce an identical transition.

The solver works in whole-token units on 18-decimal fixed point and converts
to base units only at the edges, with the rounding direction chosen per
amount: round up what the position will owe, round down what it will receive.

*/

package engine

import (
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/oasisdex/earn-engine/internal/types"
)

// Prices is the consistent market snapshot the simulation runs against.
type Prices struct {
	// Market is the tradeable swap execution price, debt token per unit of
	// collateral token, before slippage.
	Market sdkmath.LegacyDec
	// Oracle is the protocol's canonical solvency price in the same units.
	Oracle sdkmath.LegacyDec
	// OracleFlashloanToDebt is the debt-token value per unit of flashloan
	// token, used to re-denominate the flashloan principal.
	OracleFlashloanToDebt sdkmath.LegacyDec
}

// Fees holds the rates applied during the transition.
type Fees struct {
	// OazoRate is the protocol swap fee in [0, 1), already resolved for the
	// pair via ResolveFeeRate.
	OazoRate sdkmath.LegacyDec
	// Flashloan is the flashloan premium in [0, 1).
	Flashloan sdkmath.LegacyDec
}

// Deposits carries user-contributed base-unit amounts. Deposits are treated
// as part of the delta being solved for, never as pre-existing position
// state.
type Deposits struct {
	Debt       sdkmath.Int // debt token base units
	Collateral sdkmath.Int // collateral token base units
}

// AdjustInput is the full set of simulation inputs. The engine never reads
// anything that is not in this struct.
type AdjustInput struct {
	Position           types.Position
	Target             types.RiskRatio
	Prices             Prices
	Fees               Fees
	Slippage           sdkmath.LegacyDec
	Flashloan          FlashloanParams
	DepositedByUser    Deposits
	CollectSwapFeeFrom types.FeeSource
	Params             types.EngineParameters
}

// AdjustToTargetRiskRatio simulates moving the position to the target risk
// ratio and returns the transition required to get there.
func AdjustToTargetRiskRatio(in AdjustInput) (types.SimulatedTransition, error) {
	if err := validateInput(&in); err != nil {
		return types.SimulatedTransition{}, err
	}

	increasing := in.Target.LoanToValue().GT(in.Position.LoanToValue())
	worstPrice, err := ApplySlippage(in.Prices.Market, in.Slippage, increasing)
	if err != nil {
		return types.SimulatedTransition{}, err
	}

	if increasing {
		return solveIncrease(in, worstPrice)
	}
	return solveDecrease(in, worstPrice)
}

func validateInput(in *AdjustInput) error {
	if err := in.Params.Validate(); err != nil {
		return fmt.Errorf("engine parameters rejected: %w", err)
	}
	if in.Prices.Market.IsNil() || !in.Prices.Market.IsPositive() {
		return fmt.Errorf("%w: market price must be positive", types.ErrInvalidPrice)
	}
	if in.Prices.Oracle.IsNil() || !in.Prices.Oracle.IsPositive() {
		return fmt.Errorf("%w: oracle price must be positive", types.ErrInvalidPrice)
	}
	if in.Slippage.IsNil() || in.Slippage.IsNegative() || in.Slippage.GTE(sdkmath.LegacyOneDec()) {
		return fmt.Errorf("%w: slippage must be in [0, 1)", types.ErrInvalidSlippage)
	}
	if in.Fees.OazoRate.IsNil() || in.Fees.OazoRate.IsNegative() || in.Fees.OazoRate.GTE(sdkmath.LegacyOneDec()) {
		return fmt.Errorf("%w: swap fee rate must be in [0, 1)", types.ErrInvalidSlippage)
	}
	if in.Fees.Flashloan.IsNil() {
		in.Fees.Flashloan = sdkmath.LegacyZeroDec()
	}
	if in.Fees.Flashloan.IsNegative() || in.Fees.Flashloan.GTE(sdkmath.LegacyOneDec()) {
		return fmt.Errorf("%w: flashloan premium must be in [0, 1)", types.ErrInvalidSlippage)
	}
	if in.DepositedByUser.Debt.IsNil() {
		in.DepositedByUser.Debt = sdkmath.ZeroInt()
	}
	if in.DepositedByUser.Collateral.IsNil() {
		in.DepositedByUser.Collateral = sdkmath.ZeroInt()
	}
	if in.DepositedByUser.Debt.IsNegative() || in.DepositedByUser.Collateral.IsNegative() {
		return fmt.Errorf("%w: user deposits cannot be negative", types.ErrInvalidAmount)
	}
	switch in.CollectSwapFeeFrom {
	case types.CollectFeeFromSourceToken, types.CollectFeeFromTargetToken:
	case "":
		in.CollectSwapFeeFrom = types.CollectFeeFromSourceToken
	default:
		return fmt.Errorf("%w: unknown fee source %q", types.ErrInvalidAmount, in.CollectSwapFeeFrom)
	}
	if in.Flashloan.Token.Symbol == "" {
		in.Flashloan.Token = in.Position.Debt.Token
	}
	if in.Prices.OracleFlashloanToDebt.IsNil() || in.Prices.OracleFlashloanToDebt.IsZero() {
		in.Prices.OracleFlashloanToDebt = sdkmath.LegacyOneDec()
	}
	return nil
}

// solveIncrease handles the debt-token -> collateral-token direction.
//
// With X the total debt-token amount entering the swap (new borrow plus user
// debt deposit), fee f, worst-case price m, oracle o and target L:
//
//	newDebt(X)       = D0 + X - uD
//	newCollateral(X) = C0 + uC + X*(1-f)/m
//	newDebt(X)       = L * o * newCollateral(X)
//
// which is a single linear equation in X with the unique solution
//
//	X = (L*o*(C0+uC) - D0 + uD) / (1 - L*o*(1-f)/m)
//
// Solving against the worst-case price guarantees the target is reached even
// at worst execution; the expected receive amount is then evaluated at the
// nominal price.
func solveIncrease(in AdjustInput, worstPrice sdkmath.LegacyDec) (types.SimulatedTransition, error) {
	one := sdkmath.LegacyOneDec()
	pos := in.Position
	debtTok := pos.Debt.Token
	collTok := pos.Collateral.Token

	c0 := pos.Collateral.Units()
	d0 := pos.Debt.Units()
	uD := types.DecFromBaseUnits(in.DepositedByUser.Debt, debtTok.Decimals)
	uC := types.DecFromBaseUnits(in.DepositedByUser.Collateral, collTok.Decimals)
	f := in.Fees.OazoRate
	targetFactor := in.Target.LoanToValue().Mul(in.Prices.Oracle)

	denominator := one.Sub(targetFactor.Mul(one.Sub(f)).Quo(worstPrice))
	if !denominator.IsPositive() {
		return types.SimulatedTransition{}, fmt.Errorf(
			"%w: target %s cannot be reached at price %s, leverage loop diverges",
			types.ErrUnreachableRiskRatio, in.Target.LoanToValue().String(), worstPrice.String())
	}
	numerator := targetFactor.Mul(c0.Add(uC)).Sub(d0).Add(uD)
	x := numerator.Quo(denominator)
	if x.IsNegative() {
		// The user deposit alone overshoots the target: pure deposit flow.
		x = sdkmath.LegacyZeroDec()
	}

	var warnings []types.Warning
	if in.Target.LoanToValue().GT(pos.Category.MaxLoanToValue) {
		warnings = append(warnings, types.Warning{
			Code: types.WarnTargetOutsideRange,
			Message: fmt.Sprintf("target ltv %s exceeds protocol max %s",
				in.Target.LoanToValue().String(), pos.Category.MaxLoanToValue.String()),
		})
	}

	// Swap legs. Fee from source is deducted before the swap, fee from target
	// after; the resulting collateral is identical, only the reporting token
	// differs.
	var swapInUnits, toExpected, toMin, feeUnits sdkmath.LegacyDec
	feeToken := debtTok
	netFactor := one.Sub(f)
	if in.CollectSwapFeeFrom == types.CollectFeeFromSourceToken {
		feeUnits = x.Mul(f)
		swapInUnits = x.Sub(feeUnits)
		toExpected = swapInUnits.Quo(in.Prices.Market)
		toMin = swapInUnits.Quo(worstPrice)
	} else {
		feeToken = collTok
		swapInUnits = x
		toExpected = x.Quo(in.Prices.Market).Mul(netFactor)
		toMin = x.Quo(worstPrice).Mul(netFactor)
		feeUnits = x.Quo(in.Prices.Market).Mul(f)
	}

	swap, err := buildSwapDetails(debtTok, collTok, swapInUnits, toExpected, toMin, feeUnits, feeToken, in)
	if err != nil {
		return types.SimulatedTransition{}, err
	}

	xBase, err := types.BaseUnitsFromDec(x, debtTok.Decimals, types.RoundUp)
	if err != nil {
		return types.SimulatedTransition{}, err
	}
	borrow := xBase.Sub(in.DepositedByUser.Debt)
	if borrow.IsNegative() {
		borrow = sdkmath.ZeroInt()
	}

	deltaCollateral := in.DepositedByUser.Collateral.Add(swap.ToTokenAmount.Amount)
	newCollateralAmt := pos.Collateral.Amount.Add(deltaCollateral)
	newDebtAmt := pos.Debt.Amount.Add(borrow)
	newCollateralUnits := types.DecFromBaseUnits(newCollateralAmt, collTok.Decimals)

	// Flashloan: the swap has to be pre-funded before the protocol recognizes
	// the deposit and allows the borrow, so anything beyond the user's own
	// debt-token deposit needs a flashloan.
	fundingGap := sdkmath.LegacyZeroDec()
	if xBase.GT(in.DepositedByUser.Debt) {
		fundingGap = x.Mul(one.Add(in.Fees.Flashloan))
	}
	sizing, err := sizeFlashloan(
		fundingGap,
		newCollateralUnits.Mul(in.Prices.Oracle),
		in.Prices.OracleFlashloanToDebt,
		in.Flashloan,
		in.Params,
	)
	if err != nil {
		return types.SimulatedTransition{}, err
	}
	if sizing.capped {
		warnings = append(warnings, types.Warning{
			Code:    types.WarnFlashloanCapped,
			Message: "flashloan amount capped by the venue's max loan-to-value",
		})
	}

	newPosition, err := types.NewPosition(
		types.NewTokenAmount(debtTok, newDebtAmt),
		types.NewTokenAmount(collTok, newCollateralAmt),
		pos.OraclePrice,
		pos.Category,
	)
	if err != nil {
		return types.SimulatedTransition{}, err
	}

	return types.SimulatedTransition{
		Delta: types.Delta{
			Debt:            borrow,
			Collateral:      deltaCollateral,
			FlashloanAmount: types.NewTokenAmount(in.Flashloan.Token, sizing.amount),
		},
		Flags: types.Flags{
			IsIncreasingRisk:  true,
			RequiresFlashloan: sizing.required,
		},
		Swap:     swap,
		Position: newPosition,
		Warnings: warnings,
	}, nil
}

// solveDecrease handles the collateral-token -> debt-token direction.
//
// With Y the collateral amount entering the swap:
//
//	newCollateral(Y) = C0 - Y
//	newDebt(Y)       = D0 - Y*m*(1-f)
//	newDebt(Y)       = L * o * newCollateral(Y)
//
// giving Y = (D0 - L*o*C0) / (m*(1-f) - L*o).
func solveDecrease(in AdjustInput, worstPrice sdkmath.LegacyDec) (types.SimulatedTransition, error) {
	one := sdkmath.LegacyOneDec()
	pos := in.Position
	debtTok := pos.Debt.Token
	collTok := pos.Collateral.Token

	c0 := pos.Collateral.Units()
	d0 := pos.Debt.Units()
	f := in.Fees.OazoRate
	targetFactor := in.Target.LoanToValue().Mul(in.Prices.Oracle)

	denominator := worstPrice.Mul(one.Sub(f)).Sub(targetFactor)
	if !denominator.IsPositive() {
		return types.SimulatedTransition{}, fmt.Errorf(
			"%w: unwinding at price %s cannot reach target ltv %s",
			types.ErrUnreachableRiskRatio, worstPrice.String(), in.Target.LoanToValue().String())
	}
	numerator := d0.Sub(targetFactor.Mul(c0))
	y := numerator.Quo(denominator)
	if y.IsNegative() {
		y = sdkmath.LegacyZeroDec()
	}

	var warnings []types.Warning
	if minRatio, err := pos.MinConfigurableRiskRatio(worstPrice, f); err != nil {
		warnings = append(warnings, types.Warning{
			Code:    types.WarnTargetOutsideRange,
			Message: "position cannot be unwound to the dust limit at the worst-case price",
		})
	} else if in.Target.LoanToValue().IsPositive() && in.Target.LoanToValue().LT(minRatio.LoanToValue()) {
		warnings = append(warnings, types.Warning{
			Code: types.WarnTargetOutsideRange,
			Message: fmt.Sprintf("target ltv %s is below the minimum configurable %s",
				in.Target.LoanToValue().String(), minRatio.LoanToValue().String()),
		})
	}
	if y.GT(c0) {
		y = c0
		warnings = append(warnings, types.Warning{
			Code:    types.WarnTargetOutsideRange,
			Message: "full collateral sale is insufficient to reach target, clamping to total collateral",
		})
	}

	var swapInUnits, outExpected, outMin, feeUnits sdkmath.LegacyDec
	feeToken := collTok
	netFactor := one.Sub(f)
	if in.CollectSwapFeeFrom == types.CollectFeeFromSourceToken {
		feeUnits = y.Mul(f)
		swapInUnits = y.Sub(feeUnits)
		outExpected = swapInUnits.Mul(in.Prices.Market)
		outMin = swapInUnits.Mul(worstPrice)
	} else {
		feeToken = debtTok
		swapInUnits = y
		outExpected = y.Mul(in.Prices.Market).Mul(netFactor)
		outMin = y.Mul(worstPrice).Mul(netFactor)
		feeUnits = y.Mul(in.Prices.Market).Mul(f)
	}

	swap, err := buildSwapDetails(collTok, debtTok, swapInUnits, outExpected, outMin, feeUnits, feeToken, in)
	if err != nil {
		return types.SimulatedTransition{}, err
	}

	yBase, err := types.BaseUnitsFromDec(y, collTok.Decimals, types.RoundUp)
	if err != nil {
		return types.SimulatedTransition{}, err
	}
	if yBase.GT(pos.Collateral.Amount) {
		yBase = pos.Collateral.Amount
	}

	repay := swap.ToTokenAmount.Amount
	if repay.GT(pos.Debt.Amount) {
		repay = pos.Debt.Amount
	}

	deltaDebt := repay.Neg()
	deltaCollateral := yBase.Neg()
	newDebtAmt := pos.Debt.Amount.Add(deltaDebt)
	newCollateralAmt := pos.Collateral.Amount.Add(deltaCollateral)

	// Debt must be repaid before the protocol releases collateral, so the
	// repayment is pre-funded by a flashloan unless the user's own debt-token
	// deposit covers it.
	fundingGap := sdkmath.LegacyZeroDec()
	repayUnits := types.DecFromBaseUnits(repay, debtTok.Decimals)
	uD := types.DecFromBaseUnits(in.DepositedByUser.Debt, debtTok.Decimals)
	if repayUnits.GT(uD) {
		fundingGap = repayUnits.Mul(one.Add(in.Fees.Flashloan))
	}
	sizing, err := sizeFlashloan(
		fundingGap,
		c0.Mul(in.Prices.Oracle),
		in.Prices.OracleFlashloanToDebt,
		in.Flashloan,
		in.Params,
	)
	if err != nil {
		return types.SimulatedTransition{}, err
	}
	if sizing.capped {
		warnings = append(warnings, types.Warning{
			Code:    types.WarnFlashloanCapped,
			Message: "flashloan amount capped by the venue's max loan-to-value",
		})
	}

	newPosition, err := types.NewPosition(
		types.NewTokenAmount(debtTok, newDebtAmt),
		types.NewTokenAmount(collTok, newCollateralAmt),
		pos.OraclePrice,
		pos.Category,
	)
	if err != nil {
		return types.SimulatedTransition{}, err
	}

	return types.SimulatedTransition{
		Delta: types.Delta{
			Debt:            deltaDebt,
			Collateral:      deltaCollateral,
			FlashloanAmount: types.NewTokenAmount(in.Flashloan.Token, sizing.amount),
		},
		Flags: types.Flags{
			IsIncreasingRisk:  false,
			RequiresFlashloan: sizing.required,
		},
		Swap:     swap,
		Position: newPosition,
		Warnings: warnings,
	}, nil
}

// buildSwapDetails materializes the solved swap legs as base-unit amounts.
// The from amount and the fee round up (owed), the receive amounts round
// down; a required receive amount that truncates to zero is a precision
// failure, not a zero swap.
func buildSwapDetails(
	fromTok, toTok types.Token,
	fromUnits, toExpected, toMin, feeUnits sdkmath.LegacyDec,
	feeToken types.Token,
	in AdjustInput,
) (types.SwapDetails, error) {
	fromAmt, err := types.BaseUnitsFromDec(fromUnits, fromTok.Decimals, types.RoundUp)
	if err != nil {
		return types.SwapDetails{}, err
	}
	toAmt, err := types.BaseUnitsFromDec(toExpected, toTok.Decimals, types.RoundDown)
	if err != nil {
		return types.SwapDetails{}, err
	}
	minAmt, err := types.BaseUnitsFromDec(toMin, toTok.Decimals, types.RoundDown)
	if err != nil {
		return types.SwapDetails{}, err
	}
	feeAmt, err := types.BaseUnitsFromDec(inflateFee(feeUnits, in.Params), feeToken.Decimals, types.RoundUp)
	if err != nil {
		return types.SwapDetails{}, err
	}
	return types.SwapDetails{
		FromTokenAmount:  types.NewTokenAmount(fromTok, fromAmt),
		ToTokenAmount:    types.NewTokenAmount(toTok, toAmt),
		MinToTokenAmount: types.NewTokenAmount(toTok, minAmt),
		TokenFee:         types.NewTokenAmount(feeToken, feeAmt),
		CollectFeeFrom:   in.CollectSwapFeeFrom,
	}, nil
}
