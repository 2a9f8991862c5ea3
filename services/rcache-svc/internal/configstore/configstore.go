// Package configstore is the Postgres-backed afcmodels.ConfigStore that
// rcache-svc serves over its Config Queries REST surface
// (GET /rulesetIds, GET /afcConfig/{ruleset}). Grounded on
// pkg/rcache.PostgresStore's query/scan shape, re-pointed from the aps
// table to a single afc_configs table keyed by ruleset ID.
package configstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"afc-coordinator/pkg/afcmodels"
	"afc-coordinator/pkg/database"
)

// Store is a pgx-backed afcmodels.ConfigStore over the afc_configs table.
type Store struct {
	db database.DB
}

// New wraps a database.DB as an afcmodels.ConfigStore.
func New(db database.DB) *Store {
	return &Store{db: db}
}

// RulesetIDs lists every ruleset currently on file.
func (s *Store) RulesetIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT ruleset_id FROM afc_configs ORDER BY ruleset_id`)
	if err != nil {
		return nil, fmt.Errorf("configstore: rulesetIds failed: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("configstore: scan failed: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Config fetches one ruleset's config, returning (nil, nil) if unknown.
func (s *Store) Config(ctx context.Context, rulesetID string) (*afcmodels.Config, error) {
	var (
		cfg     afcmodels.Config
		rawJSON []byte
	)
	cfg.RulesetID = rulesetID

	err := s.db.QueryRow(ctx, `
		SELECT region_str, max_link_distance_km, raw
		FROM afc_configs
		WHERE ruleset_id = $1
	`, rulesetID).Scan(&cfg.RegionStr, &cfg.MaxLinkDistanceKM, &rawJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("configstore: config fetch failed: %w", err)
	}

	if len(rawJSON) > 0 {
		if err := json.Unmarshal(rawJSON, &cfg.Raw); err != nil {
			return nil, fmt.Errorf("configstore: raw unmarshal failed: %w", err)
		}
	}

	return &cfg, nil
}

// Upsert writes or replaces one ruleset's config, used by the
// administrative Control Plane seed path and by tests.
func (s *Store) Upsert(ctx context.Context, cfg *afcmodels.Config) error {
	rawJSON, err := json.Marshal(cfg.Raw)
	if err != nil {
		return fmt.Errorf("configstore: raw marshal failed: %w", err)
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO afc_configs (ruleset_id, region_str, max_link_distance_km, raw, updated_at)
		VALUES ($1, $2, $3, $4::jsonb, now())
		ON CONFLICT (ruleset_id) DO UPDATE SET
			region_str = EXCLUDED.region_str,
			max_link_distance_km = EXCLUDED.max_link_distance_km,
			raw = EXCLUDED.raw,
			updated_at = EXCLUDED.updated_at
	`, cfg.RulesetID, cfg.RegionStr, cfg.MaxLinkDistanceKM, rawJSON)
	if err != nil {
		return fmt.Errorf("configstore: upsert failed: %w", err)
	}
	return nil
}
