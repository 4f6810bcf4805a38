package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/gcp-support/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
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
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// sqliteTimeLayout matches datetime('now') output so text comparison of
// timestamps stays correct.
const sqliteTimeLayout = "2006-01-02 15:04:05"

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS query_cache (
	id         TEXT PRIMARY KEY,
	query_key  TEXT NOT NULL,
	points     TEXT NOT NULL,
	cached_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	expires_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_query_cache_key ON query_cache(query_key);
CREATE INDEX IF NOT EXISTS idx_query_cache_expires_at ON query_cache(expires_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetQuery(ctx context.Context, key string) ([]model.GroundControlPoint, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT points FROM query_cache
		 WHERE query_key = ? AND expires_at > datetime('now')
		 ORDER BY cached_at DESC LIMIT 1`,
		key,
	)

	var pointsJSON string
	err := row.Scan(&pointsJSON)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrap(err, "sqlite: get cached query")
	}

	var points []model.GroundControlPoint
	if err := json.Unmarshal([]byte(pointsJSON), &points); err != nil {
		return nil, false, eris.Wrap(err, "sqlite: unmarshal cached points")
	}
	return points, true, nil
}

func (s *SQLiteStore) PutQuery(ctx context.Context, key string, points []model.GroundControlPoint, ttl time.Duration) error {
	id := uuid.New().String()
	now := time.Now().UTC()
	expiresAt := now.Add(ttl)

	pointsJSON, err := json.Marshal(points)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal points")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO query_cache (id, query_key, points, cached_at, expires_at) VALUES (?, ?, ?, ?, ?)`,
		id, key, string(pointsJSON), now.Format(sqliteTimeLayout), expiresAt.Format(sqliteTimeLayout),
	)
	return eris.Wrap(err, "sqlite: set cached query")
}

func (s *SQLiteStore) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM query_cache WHERE expires_at <= datetime('now')`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: purge expired queries")
	}
	n, err := res.RowsAffected()
	return n, eris.Wrap(err, "sqlite: rows affected")
}
