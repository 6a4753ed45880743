package cache

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/synthpop/internal/db"
	"github.com/sells-group/synthpop/internal/geotable"
	"github.com/sells-group/synthpop/internal/resilience"
)

const pgRowsTable = "synthpop_join_rows"

var pgRowColumns = []string{"cache_key", "ord", "address_id", "region", "geom", "attrs"}

// PostgresStore implements Store on a shared Postgres database, so a team
// can reuse one join across machines.
type PostgresStore struct {
	pool  db.Pool
	now   func() time.Time
	retry resilience.RetryConfig
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	s := newPostgresStore(pool)
	if err := resilience.Do(ctx, s.retryFor("ping"), pool.Ping); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return s, nil
}

func newPostgresStore(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, now: time.Now, retry: resilience.DefaultRetryConfig()}
}

// retryFor returns the retry policy for one operation, logging each retry.
func (s *PostgresStore) retryFor(op string) resilience.RetryConfig {
	cfg := s.retry
	cfg.OnRetry = resilience.RetryLogger("postgres", op)
	return cfg
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS synthpop_join_entries (
	cache_key  TEXT PRIMARY KEY,
	crs        TEXT NOT NULL,
	source     TEXT NOT NULL,
	row_count  INTEGER NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS synthpop_join_rows (
	cache_key  TEXT NOT NULL,
	ord        INTEGER NOT NULL,
	address_id TEXT NOT NULL,
	region     TEXT NOT NULL,
	geom       BYTEA,
	attrs      TEXT NOT NULL DEFAULT '{}',
	PRIMARY KEY (cache_key, ord)
);
`

// Migrate creates the cache tables.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	err := resilience.Do(ctx, s.retryFor("migrate"), func(ctx context.Context) error {
		_, err := s.pool.Exec(ctx, postgresMigration)
		return err
	})
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Get retries the whole read on transient errors.
func (s *PostgresStore) Get(ctx context.Context, key Key) (*geotable.Table, error) {
	return resilience.DoVal(ctx, s.retryFor("get"), func(ctx context.Context) (*geotable.Table, error) {
		return s.get(ctx, key)
	})
}

func (s *PostgresStore) get(ctx context.Context, key Key) (*geotable.Table, error) {
	var code, source string
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT crs, source, row_count FROM synthpop_join_entries WHERE cache_key = $1`, string(key),
	).Scan(&code, &source, &count)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get entry %s", key)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT address_id, region, geom, attrs FROM synthpop_join_rows WHERE cache_key = $1 ORDER BY ord`, string(key))
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get rows %s", key)
	}
	defer rows.Close()

	out := make([]geotable.Row, 0, count)
	for rows.Next() {
		var sr storedRow
		if err := rows.Scan(&sr.ID, &sr.Region, &sr.Geom, &sr.Attrs); err != nil {
			return nil, eris.Wrapf(err, "postgres: scan row %s", key)
		}
		r, err := decodeRow(sr)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(err, "postgres: iterate rows %s", key)
	}
	if len(out) != count {
		return nil, eris.Errorf("postgres: entry %s has %d rows, expected %d", key, len(out), count)
	}
	return geotable.New(code, source, out)
}

// Put replaces the rows under key with COPY, then upserts the entry. The
// entry is written last; Get treats a row-count mismatch as unreadable.
// Every step is idempotent, so a transient failure retries the whole write.
func (s *PostgresStore) Put(ctx context.Context, key Key, t *geotable.Table) error {
	return resilience.Do(ctx, s.retryFor("put"), func(ctx context.Context) error {
		return s.put(ctx, key, t)
	})
}

func (s *PostgresStore) put(ctx context.Context, key Key, t *geotable.Table) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM synthpop_join_rows WHERE cache_key = $1`, string(key)); err != nil {
		return eris.Wrapf(err, "postgres: clear %s", key)
	}

	rows := make([][]any, 0, t.Len())
	for i, r := range t.Rows() {
		sr, err := encodeRow(r)
		if err != nil {
			return err
		}
		rows = append(rows, []any{string(key), i, sr.ID, sr.Region, sr.Geom, sr.Attrs})
	}
	if _, err := db.CopyFrom(ctx, s.pool, pgRowsTable, pgRowColumns, rows); err != nil {
		return eris.Wrapf(err, "postgres: store rows %s", key)
	}

	if _, err := s.pool.Exec(ctx, `
		INSERT INTO synthpop_join_entries (cache_key, crs, source, row_count, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (cache_key) DO UPDATE SET
			crs = EXCLUDED.crs,
			source = EXCLUDED.source,
			row_count = EXCLUDED.row_count,
			created_at = EXCLUDED.created_at`,
		string(key), t.CRS(), t.Source(), t.Len(), s.now().UTC(),
	); err != nil {
		return eris.Wrapf(err, "postgres: store entry %s", key)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]Entry, error) {
	return resilience.DoVal(ctx, s.retryFor("list"), s.list)
}

func (s *PostgresStore) list(ctx context.Context) ([]Entry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT cache_key, crs, source, row_count, created_at FROM synthpop_join_entries ORDER BY created_at DESC, cache_key`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list entries")
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var key string
		if err := rows.Scan(&key, &e.CRS, &e.Source, &e.Rows, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan entry")
		}
		e.Key = Key(key)
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate entries")
}

func (s *PostgresStore) Delete(ctx context.Context, key Key) error {
	return resilience.Do(ctx, s.retryFor("delete"), func(ctx context.Context) error {
		return s.delete(ctx, key)
	})
}

func (s *PostgresStore) delete(ctx context.Context, key Key) error {
	for _, q := range []string{
		`DELETE FROM synthpop_join_entries WHERE cache_key = $1`,
		`DELETE FROM synthpop_join_rows WHERE cache_key = $1`,
	} {
		if _, err := s.pool.Exec(ctx, q, string(key)); err != nil {
			return eris.Wrapf(err, "postgres: delete %s", key)
		}
	}
	return nil
}
