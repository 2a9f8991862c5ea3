package rcache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pgxMockAdapter struct {
	mock pgxmock.PgxPoolIface
}

func (a *pgxMockAdapter) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return a.mock.Exec(ctx, sql, args...)
}

func (a *pgxMockAdapter) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return a.mock.Query(ctx, sql, args...)
}

func (a *pgxMockAdapter) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return a.mock.QueryRow(ctx, sql, args...)
}

func (a *pgxMockAdapter) BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error) {
	return a.mock.BeginTx(ctx, txOptions)
}

func (a *pgxMockAdapter) Close() {
	a.mock.Close()
}

func (a *pgxMockAdapter) Ping(ctx context.Context) error {
	return a.mock.Ping(ctx)
}

func setupMockStore(t *testing.T) (pgxmock.PgxPoolIface, *PostgresStore) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)

	store := NewPostgresStore(&pgxMockAdapter{mock: mock})
	return mock, store
}

func TestPostgresStore_LookupReturnsValidEntries(t *testing.T) {
	mock, store := setupMockStore(t)
	defer mock.Close()

	now := time.Now()
	rows := pgxmock.NewRows([]string{
		"serial_number", "rulesets", "cert_ids", "state", "config_ruleset",
		"lat", "lon", "last_update", "req_cfg_digest", "validity_period_sec",
		"request", "response",
	}).AddRow(
		"AP-1", []string{"US_47_GHZ"}, []string{"cert-1"}, StateValid, "US_47_GHZ",
		37.4, -122.1, now, "fp-1", (*float64)(nil),
		[]byte(`{}`), []byte(`{}`),
	)

	mock.ExpectQuery(`SELECT .* FROM aps`).
		WithArgs([]string{"fp-1"}, StateValid).
		WillReturnRows(rows)

	result, err := store.Lookup(context.Background(), []string{"fp-1"})

	require.NoError(t, err)
	require.Contains(t, result, "fp-1")
	assert.Equal(t, "AP-1", result["fp-1"].SerialNumber)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LookupEmptyInputSkipsQuery(t *testing.T) {
	mock, store := setupMockStore(t)
	defer mock.Close()

	result, err := store.Lookup(context.Background(), nil)

	require.NoError(t, err)
	assert.Empty(t, result)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateUpserts(t *testing.T) {
	mock, store := setupMockStore(t)
	defer mock.Close()

	mock.ExpectExec(`INSERT INTO aps`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := store.Update(context.Background(), []*Entry{{
		SerialNumber: "AP-1", Fingerprint: "fp-1", ConfigRuleset: "US_47_GHZ",
	}})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InvalidateAllChunked(t *testing.T) {
	mock, store := setupMockStore(t)
	defer mock.Close()

	mock.ExpectExec(`UPDATE aps SET state`).
		WithArgs(StateValid, StateInvalid, InvalidationChunkSize).
		WillReturnResult(pgxmock.NewResult("UPDATE", 42))

	n, err := store.InvalidateAll(context.Background(), InvalidationChunkSize)

	require.NoError(t, err)
	assert.Equal(t, 42, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SpatialInvalidate(t *testing.T) {
	mock, store := setupMockStore(t)
	defer mock.Close()

	rect := LatLonRect{MinLat: 37.0, MaxLat: 38.0, MinLon: -123.0, MaxLon: -122.0}

	mock.ExpectExec(`UPDATE aps SET state`).
		WithArgs(StateInvalid, StateValid, rect.MinLat, rect.MaxLat, rect.MinLon, rect.MaxLon).
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))

	n, err := store.SpatialInvalidate(context.Background(), rect)

	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SwitchStateDefaultsToTrueWhenAbsent(t *testing.T) {
	mock, store := setupMockStore(t)
	defer mock.Close()

	mock.ExpectQuery(`SELECT state FROM switches WHERE name = \$1`).
		WithArgs(SwitchInvalidationEnabled).
		WillReturnError(pgx.ErrNoRows)

	enabled, err := store.SwitchState(context.Background(), SwitchInvalidationEnabled)

	require.NoError(t, err)
	assert.True(t, enabled)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SwitchStateReadsStoredValue(t *testing.T) {
	mock, store := setupMockStore(t)
	defer mock.Close()

	rows := pgxmock.NewRows([]string{"state"}).AddRow(false)
	mock.ExpectQuery(`SELECT state FROM switches WHERE name = \$1`).
		WithArgs(SwitchUpdateEnabled).
		WillReturnRows(rows)

	enabled, err := store.SwitchState(context.Background(), SwitchUpdateEnabled)

	require.NoError(t, err)
	assert.False(t, enabled)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SwitchStateDatabaseError(t *testing.T) {
	mock, store := setupMockStore(t)
	defer mock.Close()

	mock.ExpectQuery(`SELECT state FROM switches WHERE name = \$1`).
		WithArgs(SwitchUpdateEnabled).
		WillReturnError(errors.New("connection lost"))

	_, err := store.SwitchState(context.Background(), SwitchUpdateEnabled)

	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteRemovesEntry(t *testing.T) {
	mock, store := setupMockStore(t)
	defer mock.Close()

	mock.ExpectExec(`DELETE FROM aps WHERE req_cfg_digest = \$1`).
		WithArgs("fp-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	err := store.Delete(context.Background(), "fp-1")

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
