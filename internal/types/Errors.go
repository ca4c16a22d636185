package types

import "errors"

// Error definitions for zero-tolerance input handling. Malformed inputs fail
// immediately with one of these sentinels; economically-meaningful edge cases
// are reported as warnings on the SimulatedTransition instead.
var (
	ErrInvalidRiskRatio = errors.New("risk ratio is invalid")
	ErrInvalidPrice     = errors.New("price is invalid")
	ErrInvalidSlippage  = errors.New("slippage is invalid")
	ErrInvalidAmount    = errors.New("amount is invalid")

	// ErrUnreachableRiskRatio is returned when a requested target sits outside
	// the range reachable by adjusting the position at the given prices.
	ErrUnreachableRiskRatio = errors.New("target risk ratio is unreachable")

	// ErrInsufficientLiquidity is reported by market-data collaborators when a
	// swap or flashloan amount exceeds available on-chain liquidity. It lives
	// in this taxonomy so callers can short-circuit before building a
	// transaction.
	ErrInsufficientLiquidity = errors.New("insufficient on-chain liquidity")

	// ErrPrecisionOverflow signals that an intermediate computation would lose
	// precision below the smallest representable base unit.
	ErrPrecisionOverflow = errors.New("precision loss below one base unit")
)
