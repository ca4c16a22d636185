/*

This file contains the token and token-amount types used across the engine.

All on-chain quantities are carried as base units (wei-style integers) tagged
with the token they belong to. Arithmetic between amounts of different tokens
must go through an explicit price conversion; the helpers here make the
decimal handling and rounding direction explicit at every step.

*/

package types

import (
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
)

// Rounding selects the direction used when a fractional base-unit result must
// be materialized as an integer amount.
type Rounding int

const (
	RoundDown Rounding = iota
	RoundUp
)

// Token describes an ERC-20 style asset.
type Token struct {
	Symbol   string         `json:"symbol"`   // e.g., "WETH"
	Decimals int            `json:"decimals"` // e.g., 18 (USDC: 6)
	Address  common.Address `json:"address"`
}

// TokenAmount is a base-unit amount of a specific token.
type TokenAmount struct {
	Token  Token       `json:"token"`
	Amount sdkmath.Int `json:"amount"`
}

// NewTokenAmount builds a TokenAmount, normalizing a nil Int to zero.
func NewTokenAmount(token Token, amount sdkmath.Int) TokenAmount {
	if amount.IsNil() {
		amount = sdkmath.ZeroInt()
	}
	return TokenAmount{Token: token, Amount: amount}
}

// Units returns the amount in whole token units as an 18-decimal fixed-point
// value. Token decimals beyond 18 are rejected at construction time by the
// address registry, so the conversion is always exact.
func (ta TokenAmount) Units() sdkmath.LegacyDec {
	return DecFromBaseUnits(ta.Amount, ta.Token.Decimals)
}

func (ta TokenAmount) String() string {
	return fmt.Sprintf("%s%s", ta.Amount.String(), ta.Token.Symbol)
}

// DecFromBaseUnits converts a base-unit integer amount into whole token units.
func DecFromBaseUnits(amount sdkmath.Int, decimals int) sdkmath.LegacyDec {
	if amount.IsNil() {
		return sdkmath.LegacyZeroDec()
	}
	return sdkmath.LegacyNewDecFromIntWithPrec(amount, int64(decimals))
}

// BaseUnitsFromDec converts a whole-token-unit value back into base units,
// with the caller choosing the rounding direction. Returns
// ErrPrecisionOverflow when a non-zero value is too small to be represented
// as a single base unit under RoundDown, since silently producing zero would
// make the resulting transaction meaningless.
func BaseUnitsFromDec(value sdkmath.LegacyDec, decimals int, rounding Rounding) (sdkmath.Int, error) {
	if value.IsNil() {
		return sdkmath.ZeroInt(), nil
	}
	scaled := value.MulInt(sdkmath.NewIntWithDecimal(1, decimals))
	var result sdkmath.Int
	switch rounding {
	case RoundUp:
		result = scaled.Ceil().TruncateInt()
	default:
		result = scaled.TruncateInt()
	}
	if result.IsZero() && !value.IsZero() && rounding == RoundDown {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %s token units is below one base unit at %d decimals",
			ErrPrecisionOverflow, value.String(), decimals)
	}
	return result, nil
}

// ConvertBaseUnits re-expresses a base-unit amount of one token as a base-unit
// amount of another, given the price of the source token quoted in the target
// token. Rounding direction is explicit because the conversion is used for
// both owed amounts (round up) and received amounts (round down).
func ConvertBaseUnits(amount sdkmath.Int, fromDecimals, toDecimals int, price sdkmath.LegacyDec, rounding Rounding) (sdkmath.Int, error) {
	if price.IsNil() || !price.IsPositive() {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: conversion price must be positive, got %s", ErrInvalidPrice, price.String())
	}
	units := DecFromBaseUnits(amount, fromDecimals).Mul(price)
	return BaseUnitsFromDec(units, toDecimals, rounding)
}
