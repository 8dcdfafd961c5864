// ./internal/state/routing_store.go
package state

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/openyield/yrv/internal/types"
)

// RoutingTableStore persists the router's routing table through the shared
// connection pool. Satisfies router.RoutingStore.
type RoutingTableStore struct{}

func NewRoutingTableStore() *RoutingTableStore {
	return &RoutingTableStore{}
}

// SaveRoutingEntry upserts a single routing entry keyed by asset address.
func (s *RoutingTableStore) SaveRoutingEntry(entry types.RoutingEntry) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	query := `
		INSERT INTO routing_entries (asset, active_backend, supported, updated_at)
		VALUES ($1, $2, $3, CURRENT_TIMESTAMP)
		ON CONFLICT (asset) DO UPDATE SET
			active_backend = EXCLUDED.active_backend,
			supported = EXCLUDED.supported,
			updated_at = CURRENT_TIMESTAMP;
	`

	_, err := DB.Exec(query, entry.Asset, string(entry.ActiveBackend), entry.Supported)
	if err != nil {
		return fmt.Errorf("failed to save routing entry for %s: %w", entry.Asset, err)
	}

	log.Debug().
		Str("asset", entry.Asset).
		Str("active_backend", string(entry.ActiveBackend)).
		Msg("Routing entry saved to database")

	return nil
}

// LoadRoutingEntries returns every persisted routing entry.
func (s *RoutingTableStore) LoadRoutingEntries() ([]types.RoutingEntry, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	query := `SELECT asset, active_backend, supported FROM routing_entries ORDER BY asset;`

	rows, err := DB.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query routing entries: %w", err)
	}
	defer rows.Close()

	var entries []types.RoutingEntry
	for rows.Next() {
		var entry types.RoutingEntry
		var backend string
		if err := rows.Scan(&entry.Asset, &backend, &entry.Supported); err != nil {
			return nil, fmt.Errorf("failed to scan routing entry: %w", err)
		}
		entry.ActiveBackend = types.BackendID(backend)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating routing entries: %w", err)
	}

	return entries, nil
}
