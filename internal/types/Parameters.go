/*

This file contains the tunable parameters for the position adjustment engine.

Different parameter sets can exist for different deployments; the active set
is versioned in the database and passed by value into the engine. There is no
process-wide mutable parameter state.

*/

package types

import (
	"fmt"
	"strings"

	sdkmath "cosmossdk.io/math"
)

// EngineParameters holds the calibration constants and fee policy used by the
// position adjustment simulator.
type EngineParameters struct {
	// FlashloanSafetyMargin is the fractional buffer added on top of the
	// computed flashloan principal so that rate drift between simulation and
	// execution cannot leave the loan under-funded.
	FlashloanSafetyMargin sdkmath.LegacyDec `json:"flashloan_safety_margin"`

	// FeeEstimateInflator scales the reported swap fee upward so the simulated
	// fee never under-estimates the fee charged on-chain.
	FeeEstimateInflator sdkmath.LegacyDec `json:"fee_estimate_inflator"`

	// DefaultSwapFeeBps is the protocol fee, in basis points of FeeBase,
	// charged on swaps for pairs without a fee exemption.
	DefaultSwapFeeBps int64 `json:"default_swap_fee_bps"`

	// FeeBase is the denominator for DefaultSwapFeeBps. 10000 means one basis
	// point per unit.
	FeeBase int64 `json:"fee_base"`

	// NoFeePairs lists collateral/debt pairs exempt from the swap fee, as
	// unordered "A/B" symbol pairs. Earn-style correlated pairs trade fee-free.
	NoFeePairs []string `json:"no_fee_pairs"`
}

// Validate checks the parameter set before it is accepted into the engine.
func (p EngineParameters) Validate() error {
	if p.FlashloanSafetyMargin.IsNil() || p.FlashloanSafetyMargin.IsNegative() {
		return fmt.Errorf("flashloan safety margin cannot be negative")
	}
	if p.FeeEstimateInflator.IsNil() || p.FeeEstimateInflator.LT(sdkmath.LegacyOneDec()) {
		return fmt.Errorf("fee estimate inflator must be >= 1")
	}
	if p.DefaultSwapFeeBps < 0 || p.FeeBase <= 0 || p.DefaultSwapFeeBps >= p.FeeBase {
		return fmt.Errorf("swap fee %d/%d is out of range", p.DefaultSwapFeeBps, p.FeeBase)
	}
	for _, pair := range p.NoFeePairs {
		if len(strings.Split(pair, "/")) != 2 {
			return fmt.Errorf("no-fee pair %q is not of the form A/B", pair)
		}
	}
	return nil
}

// DefaultSwapFeeRate returns the default fee as a fraction.
func (p EngineParameters) DefaultSwapFeeRate() sdkmath.LegacyDec {
	return sdkmath.LegacyNewDec(p.DefaultSwapFeeBps).Quo(sdkmath.LegacyNewDec(p.FeeBase))
}

// IsFeeExemptPair reports whether the unordered pair of symbols is exempt
// from the swap fee.
func (p EngineParameters) IsFeeExemptPair(symbolA, symbolB string) bool {
	a := strings.ToUpper(symbolA)
	b := strings.ToUpper(symbolB)
	for _, pair := range p.NoFeePairs {
		parts := strings.Split(strings.ToUpper(pair), "/")
		if len(parts) != 2 {
			continue
		}
		if (parts[0] == a && parts[1] == b) || (parts[0] == b && parts[1] == a) {
			return true
		}
	}
	return false
}
