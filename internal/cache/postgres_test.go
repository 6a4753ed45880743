package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/synthpop/internal/resilience"
)

func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := newPostgresStore(mock)
	s.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	s.retry = resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}
	return s, mock
}

func TestPostgresStore_GetMiss(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT crs, source, row_count FROM synthpop_join_entries WHERE cache_key = \$1`).
		WithArgs("k1").
		WillReturnError(pgx.ErrNoRows)

	got, err := s.Get(context.Background(), "k1")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetHit(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	sr, err := encodeRow(joinedTable(t).Row(0))
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT crs, source, row_count FROM synthpop_join_entries`).
		WithArgs("k1").
		WillReturnRows(mock.NewRows([]string{"crs", "source", "row_count"}).AddRow("EPSG:7844", "gnaf", 1))
	mock.ExpectQuery(`SELECT address_id, region, geom, attrs FROM synthpop_join_rows WHERE cache_key = \$1 ORDER BY ord`).
		WithArgs("k1").
		WillReturnRows(mock.NewRows([]string{"address_id", "region", "geom", "attrs"}).
			AddRow(sr.ID, sr.Region, sr.Geom, sr.Attrs))

	got, err := s.Get(context.Background(), "k1")
	require.NoError(t, err)
	require.Equal(t, 1, got.Len())
	assert.Equal(t, "GANSW1", got.Row(0).ID)
	assert.Equal(t, "11703133801", got.Row(0).Region)
	assert.Equal(t, map[string]string{"STATE": "NSW"}, got.Row(0).Attrs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetShortRows(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT crs, source, row_count FROM synthpop_join_entries`).
		WithArgs("k1").
		WillReturnRows(mock.NewRows([]string{"crs", "source", "row_count"}).AddRow("EPSG:7844", "gnaf", 5))
	mock.ExpectQuery(`SELECT address_id, region, geom, attrs FROM synthpop_join_rows`).
		WithArgs("k1").
		WillReturnRows(mock.NewRows([]string{"address_id", "region", "geom", "attrs"}))

	_, err := s.Get(context.Background(), "k1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has 0 rows, expected 5")
}

func TestPostgresStore_Put(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM synthpop_join_rows WHERE cache_key = \$1`).
		WithArgs("k1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"synthpop_join_rows"}, pgRowColumns).WillReturnResult(2)
	mock.ExpectExec(`(?s)INSERT INTO synthpop_join_entries .* ON CONFLICT \(cache_key\) DO UPDATE`).
		WithArgs("k1", "EPSG:7844", "gnaf", 2, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.Put(context.Background(), "k1", joinedTable(t)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_PutCopyError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM synthpop_join_rows`).
		WithArgs("k1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"synthpop_join_rows"}, pgRowColumns).WillReturnError(fmt.Errorf("connection reset"))

	err := s.Put(context.Background(), "k1", joinedTable(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: store rows k1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_List(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT cache_key, crs, source, row_count, created_at FROM synthpop_join_entries`).
		WillReturnRows(mock.NewRows([]string{"cache_key", "crs", "source", "row_count", "created_at"}).
			AddRow("k1", "EPSG:7844", "gnaf", 3, created))

	entries, err := s.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Entry{{Key: "k1", CRS: "EPSG:7844", Source: "gnaf", Rows: 3, CreatedAt: created}}, entries)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Delete(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM synthpop_join_entries`).WithArgs("k1").WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(`DELETE FROM synthpop_join_rows`).WithArgs("k1").WillReturnResult(pgxmock.NewResult("DELETE", 2))

	require.NoError(t, s.Delete(context.Background(), "k1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS synthpop_join_entries`).WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteRetriesConnectionFailure(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM synthpop_join_entries`).WithArgs("k1").
		WillReturnError(&pgconn.PgError{Code: "08006", Message: "connection failure"})
	mock.ExpectExec(`DELETE FROM synthpop_join_entries`).WithArgs("k1").WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(`DELETE FROM synthpop_join_rows`).WithArgs("k1").WillReturnResult(pgxmock.NewResult("DELETE", 2))

	require.NoError(t, s.Delete(context.Background(), "k1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListGivesUpAfterMaxAttempts(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	for range 3 {
		mock.ExpectQuery(`SELECT cache_key`).WillReturnError(&pgconn.PgError{Code: "40001", Message: "could not serialize access"})
	}

	_, err := s.List(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: list entries")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_MigrateDoesNotRetrySyntaxError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS`).WillReturnError(&pgconn.PgError{Code: "42601", Message: "syntax error"})

	err := s.Migrate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: migrate")
	assert.NoError(t, mock.ExpectationsWereMet())
}
