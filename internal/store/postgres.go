package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/gcp-support/internal/db"
	"github.com/sells-group/gcp-support/internal/model"
)

// PostgresStore implements Store using pgxpool. It suits shared deployments
// where several operators hit the same cache.
type PostgresStore struct {
	pool db.Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hot cache paths.
var preparedStatements = map[string]string{
	"get_query":     `SELECT points FROM query_cache WHERE query_key = $1 AND expires_at > now() ORDER BY cached_at DESC LIMIT 1`,
	"put_query":     `INSERT INTO query_cache (id, query_key, points, cached_at, expires_at) VALUES ($1, $2, $3, $4, $5) ON CONFLICT (query_key) DO UPDATE SET points = $3, cached_at = $4, expires_at = $5`,
	"purge_expired": `DELETE FROM query_cache WHERE expires_at <= now()`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
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

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresWithPool wraps an existing pool. Tests hand in a pgxmock pool.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS query_cache (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	query_key  TEXT NOT NULL UNIQUE,
	points     JSONB NOT NULL,
	cached_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_query_cache_key ON query_cache(query_key);
CREATE INDEX IF NOT EXISTS idx_query_cache_expires_at ON query_cache(expires_at);
CREATE INDEX IF NOT EXISTS idx_query_cache_key_expires ON query_cache(query_key, expires_at DESC);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) GetQuery(ctx context.Context, key string) ([]model.GroundControlPoint, bool, error) {
	var pointsJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT points FROM query_cache
		 WHERE query_key = $1 AND expires_at > now()
		 ORDER BY cached_at DESC LIMIT 1`,
		key,
	).Scan(&pointsJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, eris.Wrap(err, "postgres: get cached query")
	}

	var points []model.GroundControlPoint
	if err := json.Unmarshal(pointsJSON, &points); err != nil {
		return nil, false, eris.Wrap(err, "postgres: unmarshal cached points")
	}
	return points, true, nil
}

func (s *PostgresStore) PutQuery(ctx context.Context, key string, points []model.GroundControlPoint, ttl time.Duration) error {
	id := uuid.New().String()
	now := time.Now().UTC()
	expiresAt := now.Add(ttl)

	pointsJSON, err := json.Marshal(points)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal points")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO query_cache (id, query_key, points, cached_at, expires_at) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (query_key) DO UPDATE SET points = $3, cached_at = $4, expires_at = $5`,
		id, key, pointsJSON, now, expiresAt,
	)
	return eris.Wrap(err, "postgres: set cached query")
}

func (s *PostgresStore) PurgeExpired(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM query_cache WHERE expires_at <= now()`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: purge expired queries")
	}
	return tag.RowsAffected(), nil
}
