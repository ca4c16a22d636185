/*
This file is used to fetch swap quotes from the aggregator API.

Quotes feed directly into flashloan sizing and minimum-output guards, so every
field is validated before it is allowed anywhere near the engine. A bad quote
that slips through becomes a bad on-chain transaction.
*/

package datafetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/oasisdex/earn-engine/internal/logger"
	"github.com/oasisdex/earn-engine/internal/types"
)

var quoteLogger = logger.GetForComponent("quote_client")

var (
	ErrInvalidQuoteData = errors.New("invalid quote data received")
	ErrQuoteAPIFailure  = errors.New("quote API request failed")
)

const (
	QUOTE_MAX_RETRIES     = 3
	QUOTE_TIMEOUT_SECONDS = 15
)

// QuoteClient fetches swap quotes over HTTP. Implements QuoteProvider.
type QuoteClient struct {
	baseURL string
	client  *http.Client
}

// NewQuoteClient creates a quote client against the given aggregator base URL.
func NewQuoteClient(baseURL string) *QuoteClient {
	return &QuoteClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: QUOTE_TIMEOUT_SECONDS * time.Second},
	}
}

type quoteResponse struct {
	FromTokenAddress string `json:"fromTokenAddress"`
	ToTokenAddress   string `json:"toTokenAddress"`
	FromTokenAmount  string `json:"fromTokenAmount"`
	ToTokenAmount    string `json:"toTokenAmount"`
	Error            string `json:"error,omitempty"`
	Description      string `json:"description,omitempty"`
}

// GetSwapQuote requests an exact-input quote for swapping amount of from into to.
func (qc *QuoteClient) GetSwapQuote(ctx context.Context, from, to types.Token, amount sdkmath.Int) (SwapQuote, error) {
	if amount.IsNil() || !amount.IsPositive() {
		return SwapQuote{}, fmt.Errorf("%w: quote amount must be positive", types.ErrInvalidAmount)
	}
	if from.Address == to.Address {
		return SwapQuote{}, fmt.Errorf("%w: from and to token are identical", ErrInvalidQuoteData)
	}

	params := url.Values{}
	params.Set("fromTokenAddress", from.Address.Hex())
	params.Set("toTokenAddress", to.Address.Hex())
	params.Set("amount", amount.String())
	requestURL := qc.baseURL + "/quote?" + params.Encode()

	var lastErr error
	for attempt := 1; attempt <= QUOTE_MAX_RETRIES; attempt++ {
		quote, err := qc.fetchOnce(ctx, requestURL, from, to, amount)
		if err == nil {
			return quote, nil
		}
		// Liquidity errors are a property of the market, not the transport;
		// retrying cannot help.
		if errors.Is(err, types.ErrInsufficientLiquidity) {
			return SwapQuote{}, err
		}
		lastErr = err
		quoteLogger.Warn().
			Err(err).
			Int("attempt", attempt).
			Str("from", from.Symbol).
			Str("to", to.Symbol).
			Msg("Quote request failed, retrying")

		select {
		case <-ctx.Done():
			return SwapQuote{}, ctx.Err()
		case <-time.After(time.Duration(attempt) * time.Second):
		}
	}

	return SwapQuote{}, fmt.Errorf("%w: exhausted %d retries: %w", ErrQuoteAPIFailure, QUOTE_MAX_RETRIES, lastErr)
}

func (qc *QuoteClient) fetchOnce(ctx context.Context, requestURL string, from, to types.Token, amount sdkmath.Int) (SwapQuote, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return SwapQuote{}, fmt.Errorf("failed to build quote request: %w", err)
	}

	resp, err := qc.client.Do(req)
	if err != nil {
		return SwapQuote{}, fmt.Errorf("quote request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return SwapQuote{}, fmt.Errorf("failed to read quote response: %w", err)
	}

	var parsed quoteResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return SwapQuote{}, fmt.Errorf("%w: malformed JSON: %w", ErrInvalidQuoteData, err)
	}

	if resp.StatusCode != http.StatusOK {
		if isLiquidityError(parsed) {
			return SwapQuote{}, fmt.Errorf("%w: %s/%s amount %s", types.ErrInsufficientLiquidity, from.Symbol, to.Symbol, amount.String())
		}
		return SwapQuote{}, fmt.Errorf("%w: status %d: %s", ErrQuoteAPIFailure, resp.StatusCode, parsed.Description)
	}

	return buildSwapQuote(parsed, from, to, amount)
}

// isLiquidityError recognizes the aggregator's insufficient-liquidity
// responses so they can be surfaced as a domain error.
func isLiquidityError(parsed quoteResponse) bool {
	msg := strings.ToLower(parsed.Error + " " + parsed.Description)
	return strings.Contains(msg, "insufficient liquidity") || strings.Contains(msg, "not enough liquidity")
}

// buildSwapQuote validates the raw response and converts it into a SwapQuote.
func buildSwapQuote(parsed quoteResponse, from, to types.Token, amount sdkmath.Int) (SwapQuote, error) {
	if !strings.EqualFold(parsed.FromTokenAddress, from.Address.Hex()) {
		return SwapQuote{}, fmt.Errorf("%w: from token mismatch: %s", ErrInvalidQuoteData, parsed.FromTokenAddress)
	}
	if !strings.EqualFold(parsed.ToTokenAddress, to.Address.Hex()) {
		return SwapQuote{}, fmt.Errorf("%w: to token mismatch: %s", ErrInvalidQuoteData, parsed.ToTokenAddress)
	}

	fromAmount, ok := sdkmath.NewIntFromString(parsed.FromTokenAmount)
	if !ok {
		return SwapQuote{}, fmt.Errorf("%w: unparseable fromTokenAmount: %s", ErrInvalidQuoteData, parsed.FromTokenAmount)
	}
	toAmount, ok := sdkmath.NewIntFromString(parsed.ToTokenAmount)
	if !ok {
		return SwapQuote{}, fmt.Errorf("%w: unparseable toTokenAmount: %s", ErrInvalidQuoteData, parsed.ToTokenAmount)
	}

	if !fromAmount.Equal(amount) {
		return SwapQuote{}, fmt.Errorf("%w: quoted fromTokenAmount %s does not match requested %s",
			ErrInvalidQuoteData, fromAmount.String(), amount.String())
	}
	if !toAmount.IsPositive() {
		return SwapQuote{}, fmt.Errorf("%w: toTokenAmount must be positive, got %s", ErrInvalidQuoteData, toAmount.String())
	}

	fromUnits := types.DecFromBaseUnits(fromAmount, from.Decimals)
	toUnits := types.DecFromBaseUnits(toAmount, to.Decimals)
	if toUnits.IsZero() {
		return SwapQuote{}, fmt.Errorf("%w: quoted output truncates to zero units", ErrInvalidQuoteData)
	}

	quote := SwapQuote{
		FromToken:  from,
		ToToken:    to,
		FromAmount: fromAmount,
		ToAmount:   toAmount,
		Price:      fromUnits.Quo(toUnits),
	}

	quoteLogger.Debug().
		Str("from", from.Symbol).
		Str("to", to.Symbol).
		Str("from_amount", fromAmount.String()).
		Str("to_amount", toAmount.String()).
		Str("price", quote.Price.String()).
		Msg("Fetched swap quote")

	return quote, nil
}
