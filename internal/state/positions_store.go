// ./internal/state/positions_store.go
package state

import (
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog/log"

	"github.com/openyield/yrv/internal/types"
)

// BackendPositionStore persists per-(adapter, asset) bookkeeping records.
// Satisfies backend.PositionStore.
type BackendPositionStore struct{}

func NewBackendPositionStore() *BackendPositionStore {
	return &BackendPositionStore{}
}

// SavePosition upserts a position record keyed by (asset, backend). Integer
// amounts are stored as NUMERIC(40,0) and marshalled through their decimal
// string form to avoid int64 truncation.
func (s *BackendPositionStore) SavePosition(pos types.BackendPosition) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	query := `
		INSERT INTO backend_positions (
			asset, backend, enabled, principal,
			cumulative_deposited, cumulative_withdrawn, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (asset, backend) DO UPDATE SET
			enabled = EXCLUDED.enabled,
			principal = EXCLUDED.principal,
			cumulative_deposited = EXCLUDED.cumulative_deposited,
			cumulative_withdrawn = EXCLUDED.cumulative_withdrawn,
			updated_at = EXCLUDED.updated_at;
	`

	_, err := DB.Exec(
		query,
		pos.Asset, string(pos.Backend), pos.Enabled, pos.Principal.String(),
		pos.CumulativeDeposited.String(), pos.CumulativeWithdrawn.String(), pos.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save position for %s on %s: %w", pos.Asset, pos.Backend, err)
	}

	log.Debug().
		Str("asset", pos.Asset).
		Str("backend", string(pos.Backend)).
		Str("principal", pos.Principal.String()).
		Msg("Backend position saved to database")

	return nil
}

// LoadPositions returns every persisted position for one backend adapter.
func (s *BackendPositionStore) LoadPositions(backend types.BackendID) ([]types.BackendPosition, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	query := `
		SELECT asset, backend, enabled, principal,
		       cumulative_deposited, cumulative_withdrawn, updated_at
		FROM backend_positions
		WHERE backend = $1
		ORDER BY asset;
	`

	rows, err := DB.Query(query, string(backend))
	if err != nil {
		return nil, fmt.Errorf("failed to query positions for %s: %w", backend, err)
	}
	defer rows.Close()

	var positions []types.BackendPosition
	for rows.Next() {
		var pos types.BackendPosition
		var backendStr, principal, cumDeposited, cumWithdrawn string
		err := rows.Scan(
			&pos.Asset, &backendStr, &pos.Enabled, &principal,
			&cumDeposited, &cumWithdrawn, &pos.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position row: %w", err)
		}
		pos.Backend = types.BackendID(backendStr)
		if pos.Principal, err = parseStoredInt(principal); err != nil {
			return nil, fmt.Errorf("invalid principal for %s on %s: %w", pos.Asset, backendStr, err)
		}
		if pos.CumulativeDeposited, err = parseStoredInt(cumDeposited); err != nil {
			return nil, fmt.Errorf("invalid cumulative_deposited for %s on %s: %w", pos.Asset, backendStr, err)
		}
		if pos.CumulativeWithdrawn, err = parseStoredInt(cumWithdrawn); err != nil {
			return nil, fmt.Errorf("invalid cumulative_withdrawn for %s on %s: %w", pos.Asset, backendStr, err)
		}
		positions = append(positions, pos)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating position rows: %w", err)
	}

	return positions, nil
}

// parseStoredInt converts a NUMERIC(40,0) column value back into an integer.
func parseStoredInt(value string) (sdkmath.Int, error) {
	parsed, ok := sdkmath.NewIntFromString(value)
	if !ok {
		return sdkmath.Int{}, fmt.Errorf("cannot parse %q as integer", value)
	}
	return parsed, nil
}
