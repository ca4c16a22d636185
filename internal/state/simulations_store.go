// ./internal/state/simulations_store.go
package state

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// SimulationRecord is the audit row persisted for every simulation served.
// The request and transition payloads are stored verbatim as JSON so a past
// result can be replayed against a later engine build bit for bit.
type SimulationRecord struct {
	ID                uuid.UUID       `json:"id"`
	CreatedAt         time.Time       `json:"created_at"`
	ParamsID          int64           `json:"params_id"`
	Protocol          string          `json:"protocol"`
	CollateralSymbol  string          `json:"collateral_symbol"`
	DebtSymbol        string          `json:"debt_symbol"`
	TargetLTV         string          `json:"target_ltv"`
	RequiresFlashloan bool            `json:"requires_flashloan"`
	IsIncreasingRisk  bool            `json:"is_increasing_risk"`
	Request           json.RawMessage `json:"request"`
	Transition        json.RawMessage `json:"transition"`
}

// SaveSimulation persists a simulation audit record.
func SaveSimulation(rec SimulationRecord) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}
	if rec.ID == uuid.Nil {
		return fmt.Errorf("simulation record requires a non-nil ID")
	}

	stmt := `
        INSERT INTO simulations (
            simulation_id, created_at, params_id, protocol,
            collateral_symbol, debt_symbol, target_ltv,
            requires_flashloan, is_increasing_risk, request, transition
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11);`

	_, err := DB.Exec(stmt,
		rec.ID, rec.CreatedAt, rec.ParamsID, rec.Protocol,
		rec.CollateralSymbol, rec.DebtSymbol, rec.TargetLTV,
		rec.RequiresFlashloan, rec.IsIncreasingRisk,
		[]byte(rec.Request), []byte(rec.Transition),
	)
	if err != nil {
		return fmt.Errorf("failed to insert simulation %s: %w", rec.ID, err)
	}

	log.Debug().
		Str("simulation_id", rec.ID.String()).
		Str("protocol", rec.Protocol).
		Str("pair", rec.CollateralSymbol+"/"+rec.DebtSymbol).
		Msg("Saved simulation record")

	return nil
}

// GetSimulation fetches a single simulation by ID.
func GetSimulation(id uuid.UUID) (SimulationRecord, error) {
	if DB == nil {
		return SimulationRecord{}, fmt.Errorf("database not initialized")
	}

	stmt := `
        SELECT simulation_id, created_at, COALESCE(params_id, 0), protocol,
               collateral_symbol, debt_symbol, target_ltv,
               requires_flashloan, is_increasing_risk, request, transition
        FROM simulations
        WHERE simulation_id = $1;`

	var rec SimulationRecord
	var request, transition []byte
	err := DB.QueryRow(stmt, id).Scan(
		&rec.ID, &rec.CreatedAt, &rec.ParamsID, &rec.Protocol,
		&rec.CollateralSymbol, &rec.DebtSymbol, &rec.TargetLTV,
		&rec.RequiresFlashloan, &rec.IsIncreasingRisk, &request, &transition,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return SimulationRecord{}, fmt.Errorf("simulation %s not found: %w", id, err)
		}
		return SimulationRecord{}, fmt.Errorf("failed to query simulation %s: %w", id, err)
	}
	rec.Request = json.RawMessage(request)
	rec.Transition = json.RawMessage(transition)

	return rec, nil
}

// GetRecentSimulations fetches the most recent simulations, newest first.
func GetRecentSimulations(limit int) ([]SimulationRecord, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	stmt := `
        SELECT simulation_id, created_at, COALESCE(params_id, 0), protocol,
               collateral_symbol, debt_symbol, target_ltv,
               requires_flashloan, is_increasing_risk, request, transition
        FROM simulations
        ORDER BY created_at DESC
        LIMIT $1;`

	rows, err := DB.Query(stmt, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent simulations: %w", err)
	}
	defer rows.Close()

	var records []SimulationRecord
	for rows.Next() {
		var rec SimulationRecord
		var request, transition []byte
		if err := rows.Scan(
			&rec.ID, &rec.CreatedAt, &rec.ParamsID, &rec.Protocol,
			&rec.CollateralSymbol, &rec.DebtSymbol, &rec.TargetLTV,
			&rec.RequiresFlashloan, &rec.IsIncreasingRisk, &request, &transition,
		); err != nil {
			return nil, fmt.Errorf("failed to scan simulation row: %w", err)
		}
		rec.Request = json.RawMessage(request)
		rec.Transition = json.RawMessage(transition)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating simulation rows: %w", err)
	}

	return records, nil
}
