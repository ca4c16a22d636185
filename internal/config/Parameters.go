/*

This file contains the default engine parameters.

These values are used if no active parameters are found in the database during
initialization. They are calibrated against observed mainnet execution: the
flashloan margin and fee inflator absorb interest accrual and quote drift
between simulation and on-chain settlement.

*/

package config

import (
	sdkmath "cosmossdk.io/math"

	"github.com/oasisdex/earn-engine/internal/types"
)

// DefaultEngineParameters provides the baseline tuning for the adjustment engine.
var DefaultEngineParameters = types.EngineParameters{
	// FlashloanSafetyMargin pads the flashloan above the exact funding gap.
	// Debt accrues interest between quoting and execution; 0.1% covers the
	// drift for any realistic inclusion delay.
	FlashloanSafetyMargin: sdkmath.LegacyNewDecWithPrec(1, 3), // 0.001

	// FeeEstimateInflator scales the reported swap fee so the client reserves
	// slightly more than the expected charge.
	FeeEstimateInflator: sdkmath.LegacyNewDecWithPrec(101, 2), // 1.01

	// DefaultSwapFeeBps is the protocol fee taken on swaps, in basis points.
	DefaultSwapFeeBps: 20,
	FeeBase:           10000,

	// NoFeePairs lists correlated-asset pairs that trade fee free.
	// Order within a pair does not matter.
	NoFeePairs: []string{
		"WETH/WSTETH",
		"WETH/STETH",
		"WETH/CBETH",
		"WETH/RETH",
		"DAI/SDAI",
		"USDC/SUSDE",
	},
}
