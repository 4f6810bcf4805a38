package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPostgresWithPool(mock), mock
}

func TestPostgres_GetQuery(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT points FROM query_cache`).
		WithArgs("usgs:box:50").
		WillReturnRows(pgxmock.NewRows([]string{"points"}).
			AddRow([]byte(`[{"id":"A","latitude":30.1,"longitude":-97.5}]`)))

	points, hit, err := st.GetQuery(context.Background(), "usgs:box:50")
	require.NoError(t, err)
	require.True(t, hit)
	require.Len(t, points, 1)
	assert.Equal(t, "A", points[0].ID)
	assert.Equal(t, 30.1, *points[0].Latitude)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetQueryMiss(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT points FROM query_cache`).
		WithArgs("absent").
		WillReturnError(pgx.ErrNoRows)

	_, hit, err := st.GetQuery(context.Background(), "absent")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_PutQuery(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO query_cache`).
		WithArgs(pgxmock.AnyArg(), "usgs:box:50", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := st.PutQuery(context.Background(), "usgs:box:50", samplePoints(), time.Hour)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_PurgeExpired(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectExec(`DELETE FROM query_cache`).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	n, err := st.PurgeExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Migrate(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS query_cache`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, st.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Ping(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectExec(`SELECT 1`).WillReturnResult(pgxmock.NewResult("SELECT", 1))

	require.NoError(t, st.Ping(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
