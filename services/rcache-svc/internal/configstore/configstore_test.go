package configstore

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"afc-coordinator/pkg/afcmodels"
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

func setupMockStore(t *testing.T) (pgxmock.PgxPoolIface, *Store) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)

	return mock, New(&pgxMockAdapter{mock: mock})
}

func TestStore_RulesetIDsListsOrdered(t *testing.T) {
	mock, store := setupMockStore(t)
	defer mock.Close()

	rows := pgxmock.NewRows([]string{"ruleset_id"}).
		AddRow("CA_RES_DBS-06").
		AddRow("US_47_CFR_PART_15_SUBPART_E")

	mock.ExpectQuery(`SELECT ruleset_id FROM afc_configs`).WillReturnRows(rows)

	ids, err := store.RulesetIDs(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"CA_RES_DBS-06", "US_47_CFR_PART_15_SUBPART_E"}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ConfigReturnsNilWhenUnknown(t *testing.T) {
	mock, store := setupMockStore(t)
	defer mock.Close()

	mock.ExpectQuery(`SELECT region_str, max_link_distance_km, raw`).
		WithArgs("UNKNOWN").
		WillReturnError(pgx.ErrNoRows)

	cfg, err := store.Config(context.Background(), "UNKNOWN")

	require.NoError(t, err)
	assert.Nil(t, cfg)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ConfigUnmarshalsRawJSON(t *testing.T) {
	mock, store := setupMockStore(t)
	defer mock.Close()

	rows := pgxmock.NewRows([]string{"region_str", "max_link_distance_km", "raw"}).
		AddRow("US", 150.0, []byte(`{"maxEirp": 36}`))

	mock.ExpectQuery(`SELECT region_str, max_link_distance_km, raw`).
		WithArgs("US_47_CFR_PART_15_SUBPART_E").
		WillReturnRows(rows)

	cfg, err := store.Config(context.Background(), "US_47_CFR_PART_15_SUBPART_E")

	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, "US_47_CFR_PART_15_SUBPART_E", cfg.RulesetID)
	assert.Equal(t, "US", cfg.RegionStr)
	assert.Equal(t, 150.0, cfg.MaxLinkDistanceKM)
	assert.Equal(t, float64(36), cfg.Raw["maxEirp"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_UpsertWritesThrough(t *testing.T) {
	mock, store := setupMockStore(t)
	defer mock.Close()

	mock.ExpectExec(`INSERT INTO afc_configs`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := store.Upsert(context.Background(), &afcmodels.Config{
		RulesetID:         "US_47_CFR_PART_15_SUBPART_E",
		RegionStr:         "US",
		MaxLinkDistanceKM: 150.0,
		Raw:               map[string]any{"maxEirp": 36.0},
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
