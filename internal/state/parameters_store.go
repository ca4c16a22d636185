// ./internal/state/parameters_store.go
package state

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog/log"

	"github.com/oasisdex/earn-engine/internal/types"
)

// SaveEngineParameters saves a new version of engine parameters.
func SaveEngineParameters(params types.EngineParameters, configName string, version int, makeActive bool) (int64, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}
	if err := params.Validate(); err != nil {
		return 0, fmt.Errorf("refusing to persist invalid parameters: %w", err)
	}

	tx, err := DB.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p) // Re-panic after rollback
		} else if err != nil {
			tx.Rollback() // Rollback if error occurred
		}
	}()

	if makeActive {
		stmtDeactivate := `UPDATE engine_parameters SET is_active = FALSE WHERE config_name = $1 AND is_active = TRUE;`
		_, err = tx.Exec(stmtDeactivate, configName)
		if err != nil {
			return 0, fmt.Errorf("failed to deactivate existing active parameters for %s: %w", configName, err)
		}
	}

	noFeePairsJSON, err := json.Marshal(params.NoFeePairs)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal no-fee pairs: %w", err)
	}

	stmt := `
        INSERT INTO engine_parameters (
            version, config_name, is_active, activated_at, created_at,
            flashloan_safety_margin, fee_estimate_inflator,
            default_swap_fee_bps, fee_base, no_fee_pairs
        ) VALUES (
            $1, $2, $3, $4, $5,
            $6, $7,
            $8, $9, $10
        ) RETURNING params_id;`

	var paramsID int64
	currentTime := time.Now()
	err = tx.QueryRow(
		stmt,
		version, configName, makeActive, currentTime, currentTime,
		params.FlashloanSafetyMargin.String(), params.FeeEstimateInflator.String(),
		params.DefaultSwapFeeBps, params.FeeBase, noFeePairsJSON,
	).Scan(&paramsID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert engine parameters: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit engine parameters: %w", err)
	}

	log.Info().
		Int64("params_id", paramsID).
		Str("config_name", configName).
		Int("version", version).
		Bool("active", makeActive).
		Msg("Saved engine parameters")

	return paramsID, nil
}

// LoadActiveEngineParameters loads the currently active parameter set for the
// given config name. Returns sql.ErrNoRows (wrapped) when none is active.
func LoadActiveEngineParameters(configName string) (types.EngineParameters, int64, error) {
	if DB == nil {
		return types.EngineParameters{}, 0, fmt.Errorf("database not initialized")
	}

	stmt := `
        SELECT params_id, flashloan_safety_margin, fee_estimate_inflator,
               default_swap_fee_bps, fee_base, no_fee_pairs
        FROM engine_parameters
        WHERE config_name = $1 AND is_active = TRUE
        ORDER BY activated_at DESC
        LIMIT 1;`

	var (
		paramsID       int64
		marginStr      string
		inflatorStr    string
		swapFeeBps     int64
		feeBase        int64
		noFeePairsJSON []byte
	)
	err := DB.QueryRow(stmt, configName).Scan(&paramsID, &marginStr, &inflatorStr, &swapFeeBps, &feeBase, &noFeePairsJSON)
	if err != nil {
		if err == sql.ErrNoRows {
			return types.EngineParameters{}, 0, fmt.Errorf("no active engine parameters for config %s: %w", configName, err)
		}
		return types.EngineParameters{}, 0, fmt.Errorf("failed to query active engine parameters: %w", err)
	}

	margin, err := sdkmath.LegacyNewDecFromStr(marginStr)
	if err != nil {
		return types.EngineParameters{}, 0, fmt.Errorf("corrupt flashloan_safety_margin %q: %w", marginStr, err)
	}
	inflator, err := sdkmath.LegacyNewDecFromStr(inflatorStr)
	if err != nil {
		return types.EngineParameters{}, 0, fmt.Errorf("corrupt fee_estimate_inflator %q: %w", inflatorStr, err)
	}

	var noFeePairs []string
	if err := json.Unmarshal(noFeePairsJSON, &noFeePairs); err != nil {
		return types.EngineParameters{}, 0, fmt.Errorf("corrupt no_fee_pairs: %w", err)
	}

	params := types.EngineParameters{
		FlashloanSafetyMargin: margin,
		FeeEstimateInflator:   inflator,
		DefaultSwapFeeBps:     swapFeeBps,
		FeeBase:               feeBase,
		NoFeePairs:            noFeePairs,
	}
	if err := params.Validate(); err != nil {
		return types.EngineParameters{}, 0, fmt.Errorf("persisted parameters failed validation: %w", err)
	}

	return params, paramsID, nil
}
