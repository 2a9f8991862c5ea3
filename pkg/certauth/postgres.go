package certauth

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"afc-coordinator/pkg/database"
	"afc-coordinator/pkg/telemetry"
)

// PostgresRepository is a pgx-backed Repository over a cert_authorizations
// table, adapted from the donor's PostgresUserRepository.
type PostgresRepository struct {
	db database.DB
}

// NewPostgresRepository wraps a database.DB as a Repository.
func NewPostgresRepository(db database.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Lookup(ctx context.Context, serialNumber, rulesetID, certID string) (*Record, error) {
	ctx, span := telemetry.StartSpan(ctx, "PostgresRepository.Lookup")
	defer span.End()

	query := `
		SELECT serial_number, ruleset_id, cert_id, authorized, created_at, updated_at
		FROM cert_authorizations
		WHERE serial_number = $1 AND ruleset_id = $2 AND cert_id = $3
	`

	rec := &Record{}
	err := r.db.QueryRow(ctx, query, serialNumber, rulesetID, certID).Scan(
		&rec.SerialNumber,
		&rec.RulesetID,
		&rec.CertID,
		&rec.Authorized,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("certauth: lookup failed: %w", err)
	}

	return rec, nil
}

func (r *PostgresRepository) Upsert(ctx context.Context, rec *Record) error {
	ctx, span := telemetry.StartSpan(ctx, "PostgresRepository.Upsert")
	defer span.End()

	query := `
		INSERT INTO cert_authorizations (serial_number, ruleset_id, cert_id, authorized)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (serial_number, ruleset_id, cert_id)
		DO UPDATE SET authorized = $4, updated_at = now()
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query, rec.SerialNumber, rec.RulesetID, rec.CertID, rec.Authorized).
		Scan(&rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("certauth: upsert failed: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Revoke(ctx context.Context, serialNumber, rulesetID, certID string) error {
	ctx, span := telemetry.StartSpan(ctx, "PostgresRepository.Revoke")
	defer span.End()

	query := `
		UPDATE cert_authorizations
		SET authorized = false, updated_at = now()
		WHERE serial_number = $1 AND ruleset_id = $2 AND cert_id = $3
	`

	result, err := r.db.Exec(ctx, query, serialNumber, rulesetID, certID)
	if err != nil {
		return fmt.Errorf("certauth: revoke failed: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
