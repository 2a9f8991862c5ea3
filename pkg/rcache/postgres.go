package rcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"afc-coordinator/pkg/database"
	"afc-coordinator/pkg/telemetry"
)

// PostgresStore is a pgx-backed Store over the aps/switches tables.
// Coordinates are stored as plain float8 lat/lon columns with a btree
// index rather than a PostGIS geography column: no PostGIS-aware Go driver
// appears anywhere in the corpus, so spatial invalidation is expressed as
// a plain range predicate over lat/lon instead of ga.Geography/ST_DWithin.
type PostgresStore struct {
	db database.DB
}

// NewPostgresStore wraps a database.DB as a Store.
func NewPostgresStore(db database.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Lookup(ctx context.Context, fingerprints []string) (map[string]*Entry, error) {
	ctx, span := telemetry.StartSpan(ctx, "PostgresStore.Lookup")
	defer span.End()

	if len(fingerprints) == 0 {
		return map[string]*Entry{}, nil
	}

	query := `
		SELECT serial_number, rulesets, cert_ids, state, config_ruleset,
			lat, lon, last_update, req_cfg_digest, validity_period_sec,
			request, response
		FROM aps
		WHERE req_cfg_digest = ANY($1) AND state = $2
			AND (validity_period_sec IS NULL
				OR last_update >= now() - validity_period_sec * interval '1 second')
	`
	rows, err := s.db.Query(ctx, query, fingerprints, StateValid)
	if err != nil {
		// Retry a failed query once.
		rows, err = s.db.Query(ctx, query, fingerprints, StateValid)
	}
	if err != nil {
		return nil, fmt.Errorf("rcache: lookup failed: %w", err)
	}
	defer rows.Close()

	results := make(map[string]*Entry, len(fingerprints))
	for rows.Next() {
		e := &Entry{}
		if err := rows.Scan(
			&e.SerialNumber, &e.Rulesets, &e.CertIDs, &e.State, &e.ConfigRuleset,
			&e.Lat, &e.Lon, &e.LastUpdate, &e.Fingerprint, &e.ValidityPeriodSec,
			&e.Request, &e.Response,
		); err != nil {
			return nil, fmt.Errorf("rcache: scan failed: %w", err)
		}
		results[e.Fingerprint] = e
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rcache: rows error: %w", err)
	}
	return results, nil
}

func (s *PostgresStore) Update(ctx context.Context, entries []*Entry) error {
	ctx, span := telemetry.StartSpan(ctx, "PostgresStore.Update")
	defer span.End()

	if len(entries) == 0 {
		return nil
	}

	query := `
		INSERT INTO aps (
			serial_number, rulesets, cert_ids, state, config_ruleset,
			lat, lon, last_update, req_cfg_digest, validity_period_sec,
			request, response
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (req_cfg_digest) DO UPDATE SET
			serial_number = EXCLUDED.serial_number,
			rulesets = EXCLUDED.rulesets,
			cert_ids = EXCLUDED.cert_ids,
			state = EXCLUDED.state,
			config_ruleset = EXCLUDED.config_ruleset,
			lat = EXCLUDED.lat,
			lon = EXCLUDED.lon,
			last_update = EXCLUDED.last_update,
			validity_period_sec = EXCLUDED.validity_period_sec,
			request = EXCLUDED.request,
			response = EXCLUDED.response
	`

	for _, e := range entries {
		if e.LastUpdate.IsZero() {
			e.LastUpdate = time.Now()
		}
		if e.State == "" {
			e.State = StateValid
		}
		args := []any{
			e.SerialNumber, e.Rulesets, e.CertIDs, e.State, e.ConfigRuleset,
			e.Lat, e.Lon, e.LastUpdate, e.Fingerprint, e.ValidityPeriodSec,
			e.Request, e.Response,
		}
		_, err := s.db.Exec(ctx, query, args...)
		if err != nil {
			// Retry a failed upsert once.
			_, err = s.db.Exec(ctx, query, args...)
		}
		if err != nil {
			return fmt.Errorf("rcache: update failed for %q: %w", e.Fingerprint, err)
		}
	}
	return nil
}

func (s *PostgresStore) InvalidateAll(ctx context.Context, limit int) (int, error) {
	return s.invalidateWhere(ctx, "state = $1", []any{StateValid}, limit)
}

func (s *PostgresStore) InvalidateRuleset(ctx context.Context, rulesetID string, limit int) (int, error) {
	return s.invalidateWhere(ctx, "state = $1 AND config_ruleset = $2", []any{StateValid, rulesetID}, limit)
}

func (s *PostgresStore) invalidateWhere(ctx context.Context, where string, args []any, limit int) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "PostgresStore.invalidateWhere")
	defer span.End()

	if limit <= 0 {
		limit = InvalidationChunkSize
	}

	query := fmt.Sprintf(`
		UPDATE aps SET state = $%d
		WHERE req_cfg_digest IN (
			SELECT req_cfg_digest FROM aps WHERE %s LIMIT $%d
		)
	`, len(args)+1, where, len(args)+2)
	args = append(args, StateInvalid, limit)

	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("rcache: invalidate failed: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) SpatialInvalidate(ctx context.Context, rect LatLonRect) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "PostgresStore.SpatialInvalidate")
	defer span.End()

	query := `
		UPDATE aps SET state = $1
		WHERE state = $2 AND lat BETWEEN $3 AND $4 AND lon BETWEEN $5 AND $6
	`
	tag, err := s.db.Exec(ctx, query, StateInvalid, StateValid,
		rect.MinLat, rect.MaxLat, rect.MinLon, rect.MaxLon)
	if err != nil {
		return 0, fmt.Errorf("rcache: spatial invalidate failed: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) NumInvalidEntries(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM aps WHERE state = $1`, StateInvalid).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("rcache: count invalid failed: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) CacheSize(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM aps`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("rcache: count all failed: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) InvalidEntries(ctx context.Context, limit int) ([]*Entry, error) {
	ctx, span := telemetry.StartSpan(ctx, "PostgresStore.InvalidEntries")
	defer span.End()

	if limit <= 0 {
		return nil, nil
	}

	query := `
		SELECT serial_number, rulesets, cert_ids, state, config_ruleset,
			lat, lon, last_update, req_cfg_digest, validity_period_sec,
			request, response
		FROM aps
		WHERE state = $1
		LIMIT $2
	`
	rows, err := s.db.Query(ctx, query, StateInvalid, limit)
	if err != nil {
		return nil, fmt.Errorf("rcache: invalid entries failed: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		e := &Entry{}
		if err := rows.Scan(
			&e.SerialNumber, &e.Rulesets, &e.CertIDs, &e.State, &e.ConfigRuleset,
			&e.Lat, &e.Lon, &e.LastUpdate, &e.Fingerprint, &e.ValidityPeriodSec,
			&e.Request, &e.Response,
		); err != nil {
			return nil, fmt.Errorf("rcache: scan failed: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *PostgresStore) NumPrecomputing(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM aps WHERE state = $1`, statePrecomputing).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("rcache: count precomputing failed: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) ResetPrecomputations(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `UPDATE aps SET state = $1 WHERE state = $2`, StateInvalid, statePrecomputing)
	if err != nil {
		return fmt.Errorf("rcache: reset precomputations failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) MarkPrecomputing(ctx context.Context, fingerprint string) error {
	_, err := s.db.Exec(ctx, `UPDATE aps SET state = $1 WHERE req_cfg_digest = $2`, statePrecomputing, fingerprint)
	if err != nil {
		return fmt.Errorf("rcache: mark precomputing failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, fingerprint string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM aps WHERE req_cfg_digest = $1`, fingerprint)
	if err != nil {
		return fmt.Errorf("rcache: delete failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) SwitchState(ctx context.Context, name string) (bool, error) {
	var state bool
	err := s.db.QueryRow(ctx, `SELECT state FROM switches WHERE name = $1`, name).Scan(&state)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return true, nil // switches default to enabled, matching the Python original
		}
		return false, fmt.Errorf("rcache: switch state failed: %w", err)
	}
	return state, nil
}

func (s *PostgresStore) SetSwitchState(ctx context.Context, name string, value bool) error {
	query := `
		INSERT INTO switches (name, state) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET state = EXCLUDED.state
	`
	_, err := s.db.Exec(ctx, query, name, value)
	if err != nil {
		return fmt.Errorf("rcache: set switch state failed: %w", err)
	}
	return nil
}

// statePrecomputing is an internal marker state, distinct from the two
// RespState values exposed on Entry, used only to track in-flight
// precomputation rows.
const statePrecomputing = "precomputing"
