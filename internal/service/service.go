package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/oasisdex/earn-engine/internal/config"
	"github.com/oasisdex/earn-engine/internal/datafetcher"
	"github.com/oasisdex/earn-engine/internal/engine"
	"github.com/oasisdex/earn-engine/internal/logger"
	"github.com/oasisdex/earn-engine/internal/state"
	"github.com/oasisdex/earn-engine/internal/strategies"
	"github.com/oasisdex/earn-engine/internal/types"
)

const (
	// Export constants for use in main.go
	DEFAULT_ENGINE_CONFIG_NAME    = "default_earn_strategy"
	DEFAULT_ENGINE_CONFIG_VERSION = 1
)

// Action selects which plan shape a simulation request produces.
type Action string

const (
	ActionOpen   Action = "open"
	ActionAdjust Action = "adjust"
	ActionClose  Action = "close"
)

// SimulationRequest is the API-facing description of one adjustment to simulate.
// All amounts are base-unit integers carried as decimal strings.
type SimulationRequest struct {
	Action           Action `json:"action,omitempty"` // defaults to adjust, open for empty positions
	Protocol         string `json:"protocol"`
	CollateralSymbol string `json:"collateral_symbol"`
	DebtSymbol       string `json:"debt_symbol"`

	// Exactly one of TargetMultiple and TargetLTV must be set.
	TargetMultiple string `json:"target_multiple,omitempty"`
	TargetLTV      string `json:"target_ltv,omitempty"`

	DebtAmount       string `json:"debt_amount"`
	CollateralAmount string `json:"collateral_amount"`

	DepositDebtAmount       string `json:"deposit_debt_amount,omitempty"`
	DepositCollateralAmount string `json:"deposit_collateral_amount,omitempty"`

	// SlippagePercent overrides the configured default when non-nil.
	SlippagePercent *float64 `json:"slippage_percent,omitempty"`

	CollectFeeFrom string `json:"collect_fee_from,omitempty"`
	EarnPosition   bool   `json:"earn_position,omitempty"`
}

// SimulationResult bundles everything a client needs to execute the adjustment.
type SimulationResult struct {
	ID         uuid.UUID                 `json:"id"`
	CreatedAt  time.Time                 `json:"created_at"`
	Transition types.SimulatedTransition `json:"transition"`
	Plan       strategies.ActionPlan     `json:"plan"`
	Market     datafetcher.MarketData    `json:"market"`
}

// Service wires the data providers, the engine and the audit store together.
type Service struct {
	logger       zerolog.Logger
	quotes       datafetcher.QuoteProvider
	protocolData datafetcher.ProtocolDataProvider
	params       types.EngineParameters
	paramsID     int64

	// persistAudit disables the database dependency for tests.
	persistAudit bool
}

// Config holds the configuration for creating a new Service instance
type Config struct {
	Quotes       datafetcher.QuoteProvider
	ProtocolData datafetcher.ProtocolDataProvider
	Params       *types.EngineParameters
	ParamsID     int64
	PersistAudit bool
}

// NewService creates a new Service instance with dependency injection
func NewService(cfg Config) (*Service, error) {
	if err := validateServiceConfig(cfg); err != nil {
		return nil, fmt.Errorf("service configuration validation failed: %w", err)
	}

	svc := &Service{
		logger:       logger.GetForComponent("earn_service"),
		quotes:       cfg.Quotes,
		protocolData: cfg.ProtocolData,
		params:       *cfg.Params,
		paramsID:     cfg.ParamsID,
		persistAudit: cfg.PersistAudit,
	}

	svc.logger.Info().
		Int64("params_id", svc.paramsID).
		Bool("persist_audit", svc.persistAudit).
		Msg("Service instance created successfully with dependency injection")

	return svc, nil
}

// validateServiceConfig validates the service configuration
func validateServiceConfig(cfg Config) error {
	if cfg.Quotes == nil {
		return fmt.Errorf("quote provider cannot be nil")
	}
	if cfg.ProtocolData == nil {
		return fmt.Errorf("protocol data provider cannot be nil")
	}
	if cfg.Params == nil {
		return fmt.Errorf("engine parameters cannot be nil")
	}
	if err := cfg.Params.Validate(); err != nil {
		return fmt.Errorf("engine parameters invalid: %w", err)
	}
	return nil
}

// Parameters returns the engine parameters the service simulates with.
func (s *Service) Parameters() types.EngineParameters {
	return s.params
}

// Simulate resolves live market state for the request, runs the adjustment
// engine and returns the transition with its execution plan. Every served
// simulation is persisted for audit.
func (s *Service) Simulate(ctx context.Context, req SimulationRequest) (SimulationResult, error) {
	parsed, err := s.parseRequest(req)
	if err != nil {
		return SimulationResult{}, err
	}

	market, err := s.protocolData.GetMarketData(ctx, parsed.protocol, parsed.collateral, parsed.debt)
	if err != nil {
		return SimulationResult{}, fmt.Errorf("failed to fetch market data: %w", err)
	}

	position, err := types.NewPosition(
		types.NewTokenAmount(parsed.debt, parsed.debtAmount),
		types.NewTokenAmount(parsed.collateral, parsed.collateralAmount),
		market.OraclePrice,
		types.RiskCategory{
			MaxLoanToValue:       market.MaxLoanToValue,
			LiquidationThreshold: market.LiquidationThreshold,
			DustLimit:            market.DustLimit,
		},
	)
	if err != nil {
		return SimulationResult{}, err
	}

	increasing := parsed.target.LoanToValue().GT(position.LoanToValue())

	marketPrice, err := s.probeMarketPrice(ctx, parsed, increasing)
	if err != nil {
		return SimulationResult{}, err
	}

	feeRate := engine.ResolveFeeRate(s.params, parsed.collateral.Symbol, parsed.debt.Symbol, engine.FeeContext{
		IsIncreasingRisk: increasing,
		IsEarnPosition:   req.EarnPosition,
	})

	transition, err := engine.AdjustToTargetRiskRatio(engine.AdjustInput{
		Position: position,
		Target:   parsed.target,
		Prices: engine.Prices{
			Market:                marketPrice,
			Oracle:                market.OraclePrice,
			OracleFlashloanToDebt: sdkmath.LegacyOneDec(),
		},
		Fees: engine.Fees{
			OazoRate:  feeRate,
			Flashloan: market.FlashloanFee,
		},
		Slippage: parsed.slippage,
		Flashloan: engine.FlashloanParams{
			MaxLoanToValue: market.MaxLoanToValue,
			Token:          parsed.debt,
		},
		DepositedByUser: engine.Deposits{
			Debt:       parsed.depositDebt,
			Collateral: parsed.depositCollateral,
		},
		CollectSwapFeeFrom: parsed.feeSource,
		Params:             s.params,
	})
	if err != nil {
		return SimulationResult{}, err
	}

	plan, err := s.buildPlan(parsed.action, parsed.protocol, transition)
	if err != nil {
		return SimulationResult{}, err
	}

	result := SimulationResult{
		ID:         uuid.New(),
		CreatedAt:  time.Now().UTC(),
		Transition: transition,
		Plan:       plan,
		Market:     market,
	}

	s.logger.Info().
		Str("simulation_id", result.ID.String()).
		Str("protocol", string(parsed.protocol)).
		Str("pair", parsed.collateral.Symbol+"/"+parsed.debt.Symbol).
		Str("target_ltv", parsed.target.LoanToValue().String()).
		Bool("requires_flashloan", transition.Flags.RequiresFlashloan).
		Int("warnings", len(transition.Warnings)).
		Msg("Simulation complete")

	if s.persistAudit {
		if err := s.persistSimulation(req, result, parsed); err != nil {
			// The simulation itself is valid; losing one audit row is
			// recoverable, a failed request is not.
			s.logger.Error().Err(err).Str("simulation_id", result.ID.String()).Msg("Failed to persist simulation audit record")
		}
	}

	return result, nil
}

// parsedRequest is the validated, engine-ready form of a SimulationRequest.
type parsedRequest struct {
	action            Action
	protocol          types.ProtocolKind
	collateral        types.Token
	debt              types.Token
	target            types.RiskRatio
	debtAmount        sdkmath.Int
	collateralAmount  sdkmath.Int
	depositDebt       sdkmath.Int
	depositCollateral sdkmath.Int
	slippage          sdkmath.LegacyDec
	feeSource         types.FeeSource
}

func (s *Service) parseRequest(req SimulationRequest) (parsedRequest, error) {
	var parsed parsedRequest
	var err error

	parsed.protocol, err = types.ParseProtocolKind(req.Protocol)
	if err != nil {
		return parsedRequest{}, err
	}

	parsed.collateral, err = config.TokenBySymbol(req.CollateralSymbol)
	if err != nil {
		return parsedRequest{}, err
	}
	parsed.debt, err = config.TokenBySymbol(req.DebtSymbol)
	if err != nil {
		return parsedRequest{}, err
	}
	if parsed.collateral.Address == parsed.debt.Address {
		return parsedRequest{}, fmt.Errorf("%w: collateral and debt token must differ", types.ErrInvalidAmount)
	}

	parsed.target, err = parseTarget(req.TargetMultiple, req.TargetLTV)
	if err != nil {
		return parsedRequest{}, err
	}

	parsed.debtAmount, err = parseAmount(req.DebtAmount, "debt_amount")
	if err != nil {
		return parsedRequest{}, err
	}
	parsed.collateralAmount, err = parseAmount(req.CollateralAmount, "collateral_amount")
	if err != nil {
		return parsedRequest{}, err
	}
	parsed.depositDebt, err = parseOptionalAmount(req.DepositDebtAmount, "deposit_debt_amount")
	if err != nil {
		return parsedRequest{}, err
	}
	parsed.depositCollateral, err = parseOptionalAmount(req.DepositCollateralAmount, "deposit_collateral_amount")
	if err != nil {
		return parsedRequest{}, err
	}

	slippagePercent := config.SlippagePercent
	if req.SlippagePercent != nil {
		slippagePercent = *req.SlippagePercent
	}
	if slippagePercent < 0 || slippagePercent >= 100 {
		return parsedRequest{}, fmt.Errorf("%w: slippage percent must be in [0, 100)", types.ErrInvalidSlippage)
	}
	parsed.slippage, err = sdkmath.LegacyNewDecFromStr(fmt.Sprintf("%.8f", slippagePercent/100))
	if err != nil {
		return parsedRequest{}, fmt.Errorf("%w: %v", types.ErrInvalidSlippage, err)
	}

	parsed.feeSource = types.FeeSource(req.CollectFeeFrom)

	parsed.action = req.Action
	if parsed.action == "" {
		if parsed.debtAmount.IsZero() && parsed.collateralAmount.IsZero() {
			parsed.action = ActionOpen
		} else {
			parsed.action = ActionAdjust
		}
	}
	switch parsed.action {
	case ActionOpen, ActionAdjust, ActionClose:
	default:
		return parsedRequest{}, fmt.Errorf("%w: unknown action %q", types.ErrInvalidAmount, parsed.action)
	}

	return parsed, nil
}

// probeMarketPrice derives the tradeable execution price, in debt token per
// collateral token, from a one-unit quote on the side the adjustment will
// actually trade.
func (s *Service) probeMarketPrice(ctx context.Context, parsed parsedRequest, increasing bool) (sdkmath.LegacyDec, error) {
	if increasing {
		// Increasing risk buys collateral with debt.
		probe := sdkmath.NewIntWithDecimal(1, parsed.debt.Decimals)
		quote, err := s.quotes.GetSwapQuote(ctx, parsed.debt, parsed.collateral, probe)
		if err != nil {
			return sdkmath.LegacyDec{}, fmt.Errorf("failed to fetch swap quote: %w", err)
		}
		fromUnits := types.DecFromBaseUnits(quote.FromAmount, parsed.debt.Decimals)
		toUnits := types.DecFromBaseUnits(quote.ToAmount, parsed.collateral.Decimals)
		if toUnits.IsZero() {
			return sdkmath.LegacyDec{}, fmt.Errorf("%w: probe quote returned zero output", datafetcher.ErrInvalidQuoteData)
		}
		return fromUnits.Quo(toUnits), nil
	}

	// Decreasing risk sells collateral for debt.
	probe := sdkmath.NewIntWithDecimal(1, parsed.collateral.Decimals)
	quote, err := s.quotes.GetSwapQuote(ctx, parsed.collateral, parsed.debt, probe)
	if err != nil {
		return sdkmath.LegacyDec{}, fmt.Errorf("failed to fetch swap quote: %w", err)
	}
	fromUnits := types.DecFromBaseUnits(quote.FromAmount, parsed.collateral.Decimals)
	toUnits := types.DecFromBaseUnits(quote.ToAmount, parsed.debt.Decimals)
	if fromUnits.IsZero() {
		return sdkmath.LegacyDec{}, fmt.Errorf("%w: probe quote returned zero input", datafetcher.ErrInvalidQuoteData)
	}
	return toUnits.Quo(fromUnits), nil
}

func (s *Service) buildPlan(action Action, protocol types.ProtocolKind, transition types.SimulatedTransition) (strategies.ActionPlan, error) {
	switch action {
	case ActionOpen:
		return strategies.BuildOpen(protocol, transition)
	case ActionClose:
		return strategies.BuildClose(protocol, transition)
	default:
		return strategies.BuildAdjust(protocol, transition)
	}
}

func (s *Service) persistSimulation(req SimulationRequest, result SimulationResult, parsed parsedRequest) error {
	requestJSON, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	transitionJSON, err := json.Marshal(result.Transition)
	if err != nil {
		return fmt.Errorf("failed to marshal transition: %w", err)
	}

	return state.SaveSimulation(state.SimulationRecord{
		ID:                result.ID,
		CreatedAt:         result.CreatedAt,
		ParamsID:          s.paramsID,
		Protocol:          string(parsed.protocol),
		CollateralSymbol:  parsed.collateral.Symbol,
		DebtSymbol:        parsed.debt.Symbol,
		TargetLTV:         parsed.target.LoanToValue().String(),
		RequiresFlashloan: result.Transition.Flags.RequiresFlashloan,
		IsIncreasingRisk:  result.Transition.Flags.IsIncreasingRisk,
		Request:           requestJSON,
		Transition:        transitionJSON,
	})
}

// parseTarget builds the target risk ratio from exactly one of the two
// accepted encodings.
func parseTarget(multipleStr, ltvStr string) (types.RiskRatio, error) {
	if (multipleStr == "") == (ltvStr == "") {
		return types.RiskRatio{}, fmt.Errorf("%w: exactly one of target_multiple and target_ltv must be set", types.ErrInvalidRiskRatio)
	}
	if multipleStr != "" {
		multiple, err := sdkmath.LegacyNewDecFromStr(multipleStr)
		if err != nil {
			return types.RiskRatio{}, fmt.Errorf("%w: unparseable target_multiple: %v", types.ErrInvalidRiskRatio, err)
		}
		return types.RiskRatioFromMultiple(multiple)
	}
	ltv, err := sdkmath.LegacyNewDecFromStr(ltvStr)
	if err != nil {
		return types.RiskRatio{}, fmt.Errorf("%w: unparseable target_ltv: %v", types.ErrInvalidRiskRatio, err)
	}
	return types.RiskRatioFromLTV(ltv)
}

func parseAmount(value, field string) (sdkmath.Int, error) {
	if value == "" {
		return sdkmath.Int{}, fmt.Errorf("%w: %s is required", types.ErrInvalidAmount, field)
	}
	amount, ok := sdkmath.NewIntFromString(value)
	if !ok {
		return sdkmath.Int{}, fmt.Errorf("%w: unparseable %s: %s", types.ErrInvalidAmount, field, value)
	}
	if amount.IsNegative() {
		return sdkmath.Int{}, fmt.Errorf("%w: %s cannot be negative", types.ErrInvalidAmount, field)
	}
	return amount, nil
}

func parseOptionalAmount(value, field string) (sdkmath.Int, error) {
	if value == "" {
		return sdkmath.ZeroInt(), nil
	}
	return parseAmount(value, field)
}
