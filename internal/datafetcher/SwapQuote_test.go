package datafetcher

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oasisdex/earn-engine/internal/types"
)

var (
	quoteWETH = types.Token{
		Symbol:   "WETH",
		Decimals: 18,
		Address:  common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"),
	}
	quoteDAI = types.Token{
		Symbol:   "DAI",
		Decimals: 18,
		Address:  common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F"),
	}
)

func TestGetSwapQuote(t *testing.T) {
	amount := sdkmath.NewIntWithDecimal(1, 18)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/quote", r.URL.Path)
		assert.Equal(t, quoteWETH.Address.Hex(), r.URL.Query().Get("fromTokenAddress"))
		assert.Equal(t, quoteDAI.Address.Hex(), r.URL.Query().Get("toTokenAddress"))
		assert.Equal(t, amount.String(), r.URL.Query().Get("amount"))

		json.NewEncoder(w).Encode(quoteResponse{
			FromTokenAddress: quoteWETH.Address.Hex(),
			ToTokenAddress:   quoteDAI.Address.Hex(),
			FromTokenAmount:  amount.String(),
			ToTokenAmount:    sdkmath.NewIntWithDecimal(2500, 18).String(),
		})
	}))
	defer server.Close()

	client := NewQuoteClient(server.URL)
	quote, err := client.GetSwapQuote(context.Background(), quoteWETH, quoteDAI, amount)
	require.NoError(t, err)

	assert.Equal(t, "WETH", quote.FromToken.Symbol)
	assert.True(t, quote.FromAmount.Equal(amount))
	assert.True(t, quote.ToAmount.Equal(sdkmath.NewIntWithDecimal(2500, 18)))
	// Price is from-units per to-unit: 1 WETH for 2500 DAI.
	assert.True(t, quote.Price.Equal(sdkmath.LegacyMustNewDecFromStr("0.0004")), "price: %s", quote.Price)
}

func TestGetSwapQuoteInsufficientLiquidity(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(quoteResponse{
			Error:       "insufficient liquidity",
			Description: "insufficient liquidity for requested amount",
		})
	}))
	defer server.Close()

	client := NewQuoteClient(server.URL)
	_, err := client.GetSwapQuote(context.Background(), quoteWETH, quoteDAI, sdkmath.NewIntWithDecimal(1, 18))
	assert.ErrorIs(t, err, types.ErrInsufficientLiquidity)
}

func TestGetSwapQuoteRejectsBadAmount(t *testing.T) {
	client := NewQuoteClient("http://unused.invalid")

	_, err := client.GetSwapQuote(context.Background(), quoteWETH, quoteDAI, sdkmath.ZeroInt())
	assert.ErrorIs(t, err, types.ErrInvalidAmount)

	_, err = client.GetSwapQuote(context.Background(), quoteWETH, quoteWETH, sdkmath.NewInt(1))
	assert.ErrorIs(t, err, ErrInvalidQuoteData)
}

func TestBuildSwapQuoteValidation(t *testing.T) {
	amount := sdkmath.NewIntWithDecimal(1, 18)
	valid := func() quoteResponse {
		return quoteResponse{
			FromTokenAddress: quoteWETH.Address.Hex(),
			ToTokenAddress:   quoteDAI.Address.Hex(),
			FromTokenAmount:  amount.String(),
			ToTokenAmount:    sdkmath.NewIntWithDecimal(2500, 18).String(),
		}
	}

	tests := []struct {
		name   string
		mutate func(*quoteResponse)
	}{
		{
			name:   "from token mismatch",
			mutate: func(q *quoteResponse) { q.FromTokenAddress = quoteDAI.Address.Hex() },
		},
		{
			name:   "to token mismatch",
			mutate: func(q *quoteResponse) { q.ToTokenAddress = quoteWETH.Address.Hex() },
		},
		{
			name:   "unparseable amount",
			mutate: func(q *quoteResponse) { q.ToTokenAmount = "not-a-number" },
		},
		{
			name:   "from amount does not match request",
			mutate: func(q *quoteResponse) { q.FromTokenAmount = "1" },
		},
		{
			name:   "zero output",
			mutate: func(q *quoteResponse) { q.ToTokenAmount = "0" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed := valid()
			tt.mutate(&parsed)
			_, err := buildSwapQuote(parsed, quoteWETH, quoteDAI, amount)
			assert.ErrorIs(t, err, ErrInvalidQuoteData)
		})
	}

	// Case-insensitive address comparison is not a failure.
	parsed := valid()
	parsed.FromTokenAddress = "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2"
	_, err := buildSwapQuote(parsed, quoteWETH, quoteDAI, amount)
	assert.NoError(t, err)
}
