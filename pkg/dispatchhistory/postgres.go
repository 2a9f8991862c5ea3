package dispatchhistory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"afc-coordinator/pkg/database"
	"afc-coordinator/pkg/telemetry"
)

// PostgresRepository is a pgx-backed Repository over a dispatch_history
// table, adapted from the donor's PostgresCalculationRepository.
type PostgresRepository struct {
	db database.DB
}

// NewPostgresRepository wraps a database.DB as a Repository.
func NewPostgresRepository(db database.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, rec *Record) error {
	ctx, span := telemetry.StartSpan(ctx, "PostgresRepository.Create")
	defer span.End()

	query := `
		INSERT INTO dispatch_history (
			serial_number, fingerprint, ruleset_id, task_id,
			request_data, outcome, dispatched_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	return r.db.QueryRow(ctx, query,
		rec.SerialNumber, rec.Fingerprint, rec.RulesetID, rec.TaskID,
		rec.RequestData, rec.Outcome, rec.DispatchedAt,
	).Scan(&rec.ID)
}

func (r *PostgresRepository) Complete(ctx context.Context, taskID string, outcome Outcome, responseData []byte) error {
	ctx, span := telemetry.StartSpan(ctx, "PostgresRepository.Complete")
	defer span.End()

	query := `
		UPDATE dispatch_history
		SET outcome = $2, response_data = $3, completed_at = now(),
			duration_ms = EXTRACT(EPOCH FROM (now() - dispatched_at)) * 1000
		WHERE task_id = $1
	`

	result, err := r.db.Exec(ctx, query, taskID, outcome, responseData)
	if err != nil {
		return fmt.Errorf("dispatchhistory: complete failed: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Record, error) {
	ctx, span := telemetry.StartSpan(ctx, "PostgresRepository.GetByID")
	defer span.End()

	query := `
		SELECT id, serial_number, fingerprint, ruleset_id, task_id,
			request_data, response_data, outcome, dispatched_at, completed_at, duration_ms
		FROM dispatch_history
		WHERE id = $1
	`

	rec := &Record{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&rec.ID, &rec.SerialNumber, &rec.Fingerprint, &rec.RulesetID, &rec.TaskID,
		&rec.RequestData, &rec.ResponseData, &rec.Outcome, &rec.DispatchedAt,
		&rec.CompletedAt, &rec.DurationMs,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("dispatchhistory: get failed: %w", err)
	}
	return rec, nil
}

func (r *PostgresRepository) ListBySerial(ctx context.Context, serialNumber string, opts *ListOptions) ([]*Record, int64, error) {
	ctx, span := telemetry.StartSpan(ctx, "PostgresRepository.ListBySerial")
	defer span.End()

	if opts == nil {
		opts = &ListOptions{Limit: 20}
	}
	if opts.Limit <= 0 || opts.Limit > 100 {
		opts.Limit = 20
	}

	where := "serial_number = $1"
	args := []any{serialNumber}
	argNum := 2

	if opts.Filter != nil {
		if opts.Filter.RulesetID != "" {
			where += fmt.Sprintf(" AND ruleset_id = $%d", argNum)
			args = append(args, opts.Filter.RulesetID)
			argNum++
		}
		if opts.Filter.Outcome != "" {
			where += fmt.Sprintf(" AND outcome = $%d", argNum)
			args = append(args, opts.Filter.Outcome)
			argNum++
		}
		if opts.Filter.StartTime != nil {
			where += fmt.Sprintf(" AND dispatched_at >= $%d", argNum)
			args = append(args, *opts.Filter.StartTime)
			argNum++
		}
		if opts.Filter.EndTime != nil {
			where += fmt.Sprintf(" AND dispatched_at <= $%d", argNum)
			args = append(args, *opts.Filter.EndTime)
			argNum++
		}
	}

	var total int64
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM dispatch_history WHERE %s`, where)
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("dispatchhistory: count failed: %w", err)
	}

	selectQuery := fmt.Sprintf(`
		SELECT id, serial_number, fingerprint, ruleset_id, task_id,
			request_data, response_data, outcome, dispatched_at, completed_at, duration_ms
		FROM dispatch_history
		WHERE %s
		ORDER BY dispatched_at DESC
		LIMIT $%d OFFSET $%d
	`, where, argNum, argNum+1)
	args = append(args, opts.Limit, opts.Offset)

	rows, err := r.db.Query(ctx, selectQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("dispatchhistory: list failed: %w", err)
	}
	defer rows.Close()

	var results []*Record
	for rows.Next() {
		rec := &Record{}
		if err := rows.Scan(
			&rec.ID, &rec.SerialNumber, &rec.Fingerprint, &rec.RulesetID, &rec.TaskID,
			&rec.RequestData, &rec.ResponseData, &rec.Outcome, &rec.DispatchedAt,
			&rec.CompletedAt, &rec.DurationMs,
		); err != nil {
			return nil, 0, fmt.Errorf("dispatchhistory: scan failed: %w", err)
		}
		results = append(results, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("dispatchhistory: rows error: %w", err)
	}

	return results, total, nil
}

func (r *PostgresRepository) GetStats(ctx context.Context, serialNumber string, startTime, endTime *time.Time) (*Stats, error) {
	ctx, span := telemetry.StartSpan(ctx, "PostgresRepository.GetStats")
	defer span.End()

	stats := &Stats{CountByOutcome: make(map[Outcome]int)}

	where := "serial_number = $1"
	args := []any{serialNumber}
	argNum := 2
	if startTime != nil {
		where += fmt.Sprintf(" AND dispatched_at >= $%d", argNum)
		args = append(args, *startTime)
		argNum++
	}
	if endTime != nil {
		where += fmt.Sprintf(" AND dispatched_at <= $%d", argNum)
		args = append(args, *endTime)
	}

	statsQuery := fmt.Sprintf(`
		SELECT COUNT(*), COALESCE(AVG(duration_ms), 0)
		FROM dispatch_history
		WHERE %s
	`, where)
	if err := r.db.QueryRow(ctx, statsQuery, args...).Scan(&stats.Total, &stats.AverageDurationMs); err != nil {
		return nil, fmt.Errorf("dispatchhistory: stats failed: %w", err)
	}

	outcomeQuery := fmt.Sprintf(`
		SELECT outcome, COUNT(*) FROM dispatch_history WHERE %s GROUP BY outcome
	`, where)
	rows, err := r.db.Query(ctx, outcomeQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("dispatchhistory: outcome stats failed: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var outcome Outcome
		var count int
		if err := rows.Scan(&outcome, &count); err != nil {
			return nil, fmt.Errorf("dispatchhistory: scan outcome stats failed: %w", err)
		}
		stats.CountByOutcome[outcome] = count
	}

	return stats, nil
}
