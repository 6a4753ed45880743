package cache

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/synthpop/internal/geotable"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS join_entries (
	cache_key  TEXT PRIMARY KEY,
	crs        TEXT NOT NULL,
	source     TEXT NOT NULL,
	row_count  INTEGER NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS join_rows (
	cache_key  TEXT NOT NULL,
	ord        INTEGER NOT NULL,
	address_id TEXT NOT NULL,
	region     TEXT NOT NULL,
	geom       BLOB,
	attrs      TEXT NOT NULL DEFAULT '{}',
	PRIMARY KEY (cache_key, ord)
);
`

// Migrate creates the cache tables.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Get(ctx context.Context, key Key) (*geotable.Table, error) {
	var code, source string
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT crs, source, row_count FROM join_entries WHERE cache_key = ?`, string(key),
	).Scan(&code, &source, &count)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get entry %s", key)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT address_id, region, geom, attrs FROM join_rows WHERE cache_key = ? ORDER BY ord`, string(key))
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get rows %s", key)
	}
	defer rows.Close() //nolint:errcheck

	out := make([]geotable.Row, 0, count)
	for rows.Next() {
		var sr storedRow
		if err := rows.Scan(&sr.ID, &sr.Region, &sr.Geom, &sr.Attrs); err != nil {
			return nil, eris.Wrapf(err, "sqlite: scan row %s", key)
		}
		r, err := decodeRow(sr)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(err, "sqlite: iterate rows %s", key)
	}
	if len(out) != count {
		return nil, eris.Errorf("sqlite: entry %s has %d rows, expected %d", key, len(out), count)
	}
	return geotable.New(code, source, out)
}

func (s *SQLiteStore) Put(ctx context.Context, key Key, t *geotable.Table) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, q := range []string{
		`DELETE FROM join_rows WHERE cache_key = ?`,
		`DELETE FROM join_entries WHERE cache_key = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, string(key)); err != nil {
			return eris.Wrapf(err, "sqlite: clear %s", key)
		}
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO join_rows (cache_key, ord, address_id, region, geom, attrs) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare insert")
	}
	defer stmt.Close() //nolint:errcheck

	for i, r := range t.Rows() {
		sr, err := encodeRow(r)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, string(key), i, sr.ID, sr.Region, sr.Geom, sr.Attrs); err != nil {
			return eris.Wrapf(err, "sqlite: insert row %s", r.ID)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO join_entries (cache_key, crs, source, row_count, created_at) VALUES (?, ?, ?, ?, ?)`,
		string(key), t.CRS(), t.Source(), t.Len(), s.now().Unix(),
	); err != nil {
		return eris.Wrapf(err, "sqlite: insert entry %s", key)
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit")
}

func (s *SQLiteStore) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT cache_key, crs, source, row_count, created_at FROM join_entries ORDER BY created_at DESC, cache_key`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list entries")
	}
	defer rows.Close() //nolint:errcheck

	var out []Entry
	for rows.Next() {
		var e Entry
		var key string
		var created int64
		if err := rows.Scan(&key, &e.CRS, &e.Source, &e.Rows, &created); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan entry")
		}
		e.Key = Key(key)
		e.CreatedAt = time.Unix(created, 0).UTC()
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate entries")
}

func (s *SQLiteStore) Delete(ctx context.Context, key Key) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, q := range []string{
		`DELETE FROM join_rows WHERE cache_key = ?`,
		`DELETE FROM join_entries WHERE cache_key = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, string(key)); err != nil {
			return eris.Wrapf(err, "sqlite: delete %s", key)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit")
}
