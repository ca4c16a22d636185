/*

This file defines the data provider interfaces consumed by the service layer.

Both providers are read only: they describe market state and never submit
transactions. Implementations live alongside in this package; tests swap in
stubs.

*/

package datafetcher

import (
	"context"

	sdkmath "cosmossdk.io/math"

	"github.com/oasisdex/earn-engine/internal/types"
)

// SwapQuote is an aggregator quote for swapping a fixed input amount.
type SwapQuote struct {
	FromToken  types.Token `json:"from_token"`
	ToToken    types.Token `json:"to_token"`
	FromAmount sdkmath.Int `json:"from_amount"` // base units of FromToken
	ToAmount   sdkmath.Int `json:"to_amount"`   // base units of ToToken

	// Price is the implied execution price, in FromToken whole units per one
	// ToToken whole unit.
	Price sdkmath.LegacyDec `json:"price"`
}

// MarketData is the lending market configuration and oracle state for one
// collateral/debt pair on one protocol.
type MarketData struct {
	Protocol        types.ProtocolKind `json:"protocol"`
	CollateralToken types.Token        `json:"collateral_token"`
	DebtToken       types.Token        `json:"debt_token"`

	// OraclePrice is the protocol oracle's price of one collateral whole unit,
	// denominated in debt whole units.
	OraclePrice sdkmath.LegacyDec `json:"oracle_price"`

	MaxLoanToValue       sdkmath.LegacyDec `json:"max_loan_to_value"`
	LiquidationThreshold sdkmath.LegacyDec `json:"liquidation_threshold"`
	DustLimit            sdkmath.Int       `json:"dust_limit"` // debt base units

	// FlashloanFee is the flashloan premium rate charged by the protocol's
	// flashloan source (e.g., 0.0009 for Aave v2).
	FlashloanFee sdkmath.LegacyDec `json:"flashloan_fee"`
}

// QuoteProvider returns swap quotes for exact-input swaps.
type QuoteProvider interface {
	GetSwapQuote(ctx context.Context, from, to types.Token, amount sdkmath.Int) (SwapQuote, error)
}

// ProtocolDataProvider returns lending market configuration and oracle prices.
type ProtocolDataProvider interface {
	GetMarketData(ctx context.Context, protocol types.ProtocolKind, collateral, debt types.Token) (MarketData, error)
}
