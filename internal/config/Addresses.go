/*

This file contains the mainnet address book: the ERC-20 tokens the engine
recognizes and the entry points of the lending protocols it simulates against.

*/

package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/oasisdex/earn-engine/internal/types"
)

var ErrUnknownToken = errors.New("unknown token symbol")

// Tokens is the mainnet token registry, keyed by upper-case symbol.
var Tokens = map[string]types.Token{
	"WETH":   {Symbol: "WETH", Decimals: 18, Address: common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")},
	"WSTETH": {Symbol: "WSTETH", Decimals: 18, Address: common.HexToAddress("0x7f39C581F595B53c5cb19bD0b3f8dA6c935E2Ca0")},
	"STETH":  {Symbol: "STETH", Decimals: 18, Address: common.HexToAddress("0xae7ab96520DE3A18E5e111B5EaAb095312D7fE84")},
	"CBETH":  {Symbol: "CBETH", Decimals: 18, Address: common.HexToAddress("0xBe9895146f7AF43049ca1c1AE358B0541Ea49704")},
	"RETH":   {Symbol: "RETH", Decimals: 18, Address: common.HexToAddress("0xae78736Cd615f374D3085123A210448E74Fc6393")},
	"DAI":    {Symbol: "DAI", Decimals: 18, Address: common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F")},
	"SDAI":   {Symbol: "SDAI", Decimals: 18, Address: common.HexToAddress("0x83F20F44975D03b1b09e64809B757c47f942BEeA")},
	"USDC":   {Symbol: "USDC", Decimals: 6, Address: common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")},
	"USDT":   {Symbol: "USDT", Decimals: 6, Address: common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7")},
	"WBTC":   {Symbol: "WBTC", Decimals: 8, Address: common.HexToAddress("0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599")},
}

// ProtocolEntryPoints maps each supported protocol to its mainnet entry
// contract (lending pool or equivalent).
var ProtocolEntryPoints = map[types.ProtocolKind]common.Address{
	types.ProtocolAaveV2:     common.HexToAddress("0x7d2768dE32b0b80b7a3454c06BdAc94A69DDc7A9"),
	types.ProtocolAaveV3:     common.HexToAddress("0x87870Bca3F3fD6335C3F4ce8392D69350B4fA4E2"),
	types.ProtocolSpark:      common.HexToAddress("0xC13e21B648A5Ee794902342038FF3aDAB66BE987"),
	types.ProtocolAjna:       common.HexToAddress("0x6146DD43C5622bB6D12A5240ab9CF4de14eDC625"),
	types.ProtocolMorphoBlue: common.HexToAddress("0xBBBBBbbBBb9cC5e90e3b3Af64bdAF62C37EEFFCb"),
}

// TokenBySymbol resolves a token from the registry, case insensitively.
func TokenBySymbol(symbol string) (types.Token, error) {
	token, ok := Tokens[strings.ToUpper(symbol)]
	if !ok {
		return types.Token{}, fmt.Errorf("%w: %s", ErrUnknownToken, symbol)
	}
	return token, nil
}
