/*
This file is used to fetch lending market configuration and oracle prices from
the protocol data service.

Risk parameters from this endpoint bound every simulation, so out-of-range
values are rejected here rather than trusted downstream.
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

var protocolLogger = logger.GetForComponent("protocol_data_client")

var (
	ErrInvalidMarketData  = errors.New("invalid market data received")
	ErrProtocolAPIFailure = errors.New("protocol data API request failed")
	ErrMarketNotFound     = errors.New("market not found")
)

const (
	PROTOCOL_MAX_RETRIES     = 3
	PROTOCOL_TIMEOUT_SECONDS = 15
)

// ProtocolDataClient fetches market data over HTTP. Implements ProtocolDataProvider.
type ProtocolDataClient struct {
	baseURL string
	client  *http.Client
}

// NewProtocolDataClient creates a client against the given data service base URL.
func NewProtocolDataClient(baseURL string) *ProtocolDataClient {
	return &ProtocolDataClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: PROTOCOL_TIMEOUT_SECONDS * time.Second},
	}
}

type marketDataResponse struct {
	Protocol             string `json:"protocol"`
	CollateralAddress    string `json:"collateralAddress"`
	DebtAddress          string `json:"debtAddress"`
	OraclePrice          string `json:"oraclePrice"`
	MaxLoanToValue       string `json:"maxLoanToValue"`
	LiquidationThreshold string `json:"liquidationThreshold"`
	DustLimit            string `json:"dustLimit"`
	FlashloanFee         string `json:"flashloanFee"`
	Error                string `json:"error,omitempty"`
}

// GetMarketData requests the market configuration for a collateral/debt pair.
func (pc *ProtocolDataClient) GetMarketData(ctx context.Context, protocol types.ProtocolKind, collateral, debt types.Token) (MarketData, error) {
	if _, err := types.ParseProtocolKind(string(protocol)); err != nil {
		return MarketData{}, err
	}

	params := url.Values{}
	params.Set("protocol", string(protocol))
	params.Set("collateral", collateral.Address.Hex())
	params.Set("debt", debt.Address.Hex())
	requestURL := pc.baseURL + "/markets?" + params.Encode()

	var lastErr error
	for attempt := 1; attempt <= PROTOCOL_MAX_RETRIES; attempt++ {
		data, err := pc.fetchOnce(ctx, requestURL, protocol, collateral, debt)
		if err == nil {
			return data, nil
		}
		if errors.Is(err, ErrMarketNotFound) {
			return MarketData{}, err
		}
		lastErr = err
		protocolLogger.Warn().
			Err(err).
			Int("attempt", attempt).
			Str("protocol", string(protocol)).
			Msg("Market data request failed, retrying")

		select {
		case <-ctx.Done():
			return MarketData{}, ctx.Err()
		case <-time.After(time.Duration(attempt) * time.Second):
		}
	}

	return MarketData{}, fmt.Errorf("%w: exhausted %d retries: %w", ErrProtocolAPIFailure, PROTOCOL_MAX_RETRIES, lastErr)
}

func (pc *ProtocolDataClient) fetchOnce(ctx context.Context, requestURL string, protocol types.ProtocolKind, collateral, debt types.Token) (MarketData, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return MarketData{}, fmt.Errorf("failed to build market data request: %w", err)
	}

	resp, err := pc.client.Do(req)
	if err != nil {
		return MarketData{}, fmt.Errorf("market data request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return MarketData{}, fmt.Errorf("failed to read market data response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return MarketData{}, fmt.Errorf("%w: %s %s/%s", ErrMarketNotFound, protocol, collateral.Symbol, debt.Symbol)
	}
	if resp.StatusCode != http.StatusOK {
		return MarketData{}, fmt.Errorf("%w: status %d", ErrProtocolAPIFailure, resp.StatusCode)
	}

	var parsed marketDataResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return MarketData{}, fmt.Errorf("%w: malformed JSON: %w", ErrInvalidMarketData, err)
	}

	return buildMarketData(parsed, protocol, collateral, debt)
}

// buildMarketData validates the raw response field by field.
func buildMarketData(parsed marketDataResponse, protocol types.ProtocolKind, collateral, debt types.Token) (MarketData, error) {
	if parsed.Protocol != string(protocol) {
		return MarketData{}, fmt.Errorf("%w: protocol mismatch: %s", ErrInvalidMarketData, parsed.Protocol)
	}
	if !strings.EqualFold(parsed.CollateralAddress, collateral.Address.Hex()) {
		return MarketData{}, fmt.Errorf("%w: collateral address mismatch: %s", ErrInvalidMarketData, parsed.CollateralAddress)
	}
	if !strings.EqualFold(parsed.DebtAddress, debt.Address.Hex()) {
		return MarketData{}, fmt.Errorf("%w: debt address mismatch: %s", ErrInvalidMarketData, parsed.DebtAddress)
	}

	oraclePrice, err := sdkmath.LegacyNewDecFromStr(parsed.OraclePrice)
	if err != nil {
		return MarketData{}, fmt.Errorf("%w: unparseable oraclePrice: %s", ErrInvalidMarketData, parsed.OraclePrice)
	}
	if !oraclePrice.IsPositive() {
		return MarketData{}, fmt.Errorf("%w: oraclePrice must be positive, got %s", ErrInvalidMarketData, oraclePrice.String())
	}

	maxLTV, err := sdkmath.LegacyNewDecFromStr(parsed.MaxLoanToValue)
	if err != nil {
		return MarketData{}, fmt.Errorf("%w: unparseable maxLoanToValue: %s", ErrInvalidMarketData, parsed.MaxLoanToValue)
	}
	liqThreshold, err := sdkmath.LegacyNewDecFromStr(parsed.LiquidationThreshold)
	if err != nil {
		return MarketData{}, fmt.Errorf("%w: unparseable liquidationThreshold: %s", ErrInvalidMarketData, parsed.LiquidationThreshold)
	}
	if !maxLTV.IsPositive() || maxLTV.GTE(sdkmath.LegacyOneDec()) {
		return MarketData{}, fmt.Errorf("%w: maxLoanToValue out of range: %s", ErrInvalidMarketData, maxLTV.String())
	}
	if liqThreshold.LT(maxLTV) || liqThreshold.GT(sdkmath.LegacyOneDec()) {
		return MarketData{}, fmt.Errorf("%w: liquidationThreshold out of range: %s", ErrInvalidMarketData, liqThreshold.String())
	}

	dustLimit := sdkmath.ZeroInt()
	if parsed.DustLimit != "" {
		var ok bool
		dustLimit, ok = sdkmath.NewIntFromString(parsed.DustLimit)
		if !ok || dustLimit.IsNegative() {
			return MarketData{}, fmt.Errorf("%w: invalid dustLimit: %s", ErrInvalidMarketData, parsed.DustLimit)
		}
	}

	flashloanFee := sdkmath.LegacyZeroDec()
	if parsed.FlashloanFee != "" {
		flashloanFee, err = sdkmath.LegacyNewDecFromStr(parsed.FlashloanFee)
		if err != nil || flashloanFee.IsNegative() {
			return MarketData{}, fmt.Errorf("%w: invalid flashloanFee: %s", ErrInvalidMarketData, parsed.FlashloanFee)
		}
	}

	data := MarketData{
		Protocol:             protocol,
		CollateralToken:      collateral,
		DebtToken:            debt,
		OraclePrice:          oraclePrice,
		MaxLoanToValue:       maxLTV,
		LiquidationThreshold: liqThreshold,
		DustLimit:            dustLimit,
		FlashloanFee:         flashloanFee,
	}

	protocolLogger.Debug().
		Str("protocol", string(protocol)).
		Str("pair", collateral.Symbol+"/"+debt.Symbol).
		Str("oracle_price", oraclePrice.String()).
		Str("max_ltv", maxLTV.String()).
		Msg("Fetched market data")

	return data, nil
}
