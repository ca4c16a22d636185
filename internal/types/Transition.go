/*

This file contains the SimulatedTransition type: the fully simulated outcome
of adjusting a position to a target risk ratio, returned by the engine and
consumed by per-protocol strategy builders.

*/

package types

import sdkmath "cosmossdk.io/math"

// FeeSource selects which side of the swap the protocol fee is deducted from.
type FeeSource string

const (
	CollectFeeFromSourceToken FeeSource = "sourceToken" // deducted pre-swap, from the amount entering the swap
	CollectFeeFromTargetToken FeeSource = "targetToken" // deducted post-swap, from the amount received
)

// WarningCode identifies an economically-meaningful edge case that does not
// invalidate the transition but that callers may want to surface.
type WarningCode string

const (
	WarnFlashloanCapped    WarningCode = "flashloan_capped"
	WarnTargetOutsideRange WarningCode = "target_outside_range"
)

// Warning is attached to a SimulatedTransition instead of failing the
// simulation, so UI and strategy layers can still present the best-effort
// transition.
type Warning struct {
	Code    WarningCode `json:"code"`
	Message string      `json:"message"`
}

// Delta holds the signed base-unit changes the transition applies to the
// position, plus the flashloan principal required to pre-fund it.
type Delta struct {
	Debt            sdkmath.Int `json:"debt"`             // positive: borrow, negative: repay (debt base units)
	Collateral      sdkmath.Int `json:"collateral"`       // positive: deposit, negative: withdraw (collateral base units)
	FlashloanAmount TokenAmount `json:"flashloan_amount"` // flashloan token base units, zero when not required
}

// Flags summarizes the direction and financing of the transition.
type Flags struct {
	IsIncreasingRisk  bool `json:"is_increasing_risk"`
	RequiresFlashloan bool `json:"requires_flashloan"`
}

// SwapDetails describes the single swap the transition requires.
//
// ToTokenAmount is the expected receive amount at the nominal market price;
// MinToTokenAmount is the worst-case amount at the slippage-adjusted price and
// is what the on-chain minimum-receive guard must use. Both are retained:
// the simulated Position is built from the expected amount, the transaction
// guard from the pessimistic one.
type SwapDetails struct {
	FromTokenAmount  TokenAmount `json:"from_token_amount"`
	ToTokenAmount    TokenAmount `json:"to_token_amount"`
	MinToTokenAmount TokenAmount `json:"min_to_token_amount"`

	// TokenFee is reported in the token the fee is actually deducted from,
	// inflated by the configured estimation buffer so it never under-estimates
	// the on-chain charge.
	TokenFee       TokenAmount `json:"token_fee"`
	CollectFeeFrom FeeSource   `json:"collect_fee_from"`
}

// SimulatedTransition is the engine's output: an immutable value fully owned
// by the caller, with no shared mutable state.
type SimulatedTransition struct {
	Delta    Delta       `json:"delta"`
	Flags    Flags       `json:"flags"`
	Swap     SwapDetails `json:"swap"`
	Position Position    `json:"position"`
	Warnings []Warning   `json:"warnings,omitempty"`
}

// HasWarning reports whether a warning with the given code is attached.
func (t SimulatedTransition) HasWarning(code WarningCode) bool {
	for _, w := range t.Warnings {
		if w.Code == code {
			return true
		}
	}
	return false
}
