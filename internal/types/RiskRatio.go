/*

This file contains the RiskRatio type, the canonical representation of a
position's risk level.

Users express risk either as a loan-to-value fraction or as a leverage
multiple; both normalize to a single internal LTV value so the rest of the
engine only ever deals with one number.

*/

package types

import (
	"fmt"

	sdkmath "cosmossdk.io/math"
)

// RiskRatio holds one canonical value: loanToValue in [0, 1).
// The leverage multiple is derived: multiple = 1 / (1 - ltv).
type RiskRatio struct {
	loanToValue sdkmath.LegacyDec
}

// RiskRatioFromLTV constructs a RiskRatio from a loan-to-value fraction.
func RiskRatioFromLTV(ltv sdkmath.LegacyDec) (RiskRatio, error) {
	if ltv.IsNil() || ltv.IsNegative() || ltv.GTE(sdkmath.LegacyOneDec()) {
		return RiskRatio{}, fmt.Errorf("%w: loan-to-value must be in [0, 1), got %s", ErrInvalidRiskRatio, ltv.String())
	}
	return RiskRatio{loanToValue: ltv}, nil
}

// RiskRatioFromMultiple constructs a RiskRatio from a leverage multiple M >= 1,
// via ltv = 1 - 1/M.
func RiskRatioFromMultiple(multiple sdkmath.LegacyDec) (RiskRatio, error) {
	if multiple.IsNil() || multiple.LT(sdkmath.LegacyOneDec()) {
		return RiskRatio{}, fmt.Errorf("%w: multiple must be >= 1, got %s", ErrInvalidRiskRatio, multiple.String())
	}
	one := sdkmath.LegacyOneDec()
	ltv := one.Sub(one.Quo(multiple))
	return RiskRatio{loanToValue: ltv}, nil
}

// LoanToValue returns the canonical loan-to-value fraction.
func (r RiskRatio) LoanToValue() sdkmath.LegacyDec {
	if r.loanToValue.IsNil() {
		return sdkmath.LegacyZeroDec()
	}
	return r.loanToValue
}

// Multiple returns the leverage multiple 1 / (1 - ltv).
func (r RiskRatio) Multiple() sdkmath.LegacyDec {
	one := sdkmath.LegacyOneDec()
	return one.Quo(one.Sub(r.LoanToValue()))
}

func (r RiskRatio) String() string {
	return fmt.Sprintf("ltv=%s multiple=%s", r.LoanToValue().String(), r.Multiple().String())
}
