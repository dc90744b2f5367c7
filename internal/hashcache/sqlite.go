package hashcache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/openmined/syftsync/internal/db"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS hash_cache (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    expires_at INTEGER NOT NULL DEFAULT 0 -- unix seconds, 0 = never
);

CREATE INDEX IF NOT EXISTS idx_hash_cache_expires_at ON hash_cache(expires_at);
`

type sqliteEntry struct {
	Key       string `db:"key"`
	Value     string `db:"value"`
	ExpiresAt int64  `db:"expires_at"`
}

// SqliteCache persists entries across runs. Expired rows read as misses until
// Purge removes them.
type SqliteCache struct {
	db  *sqlx.DB
	ttl time.Duration
	now func() time.Time
}

var _ Cache = (*SqliteCache)(nil)

// NewSqliteCache opens (or creates) the cache database at path.
func NewSqliteCache(path string, ttl time.Duration) (*SqliteCache, error) {
	conn, err := db.NewSqliteDB(db.WithPath(path), db.WithMaxOpenConns(1))
	if err != nil {
		return nil, fmt.Errorf("open hash cache: %w", err)
	}
	return newSqliteCache(conn, ttl)
}

func newSqliteCache(conn *sqlx.DB, ttl time.Duration) (*SqliteCache, error) {
	if _, err := conn.Exec(sqliteSchema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initialize hash cache schema: %w", err)
	}
	return &SqliteCache{db: conn, ttl: ttl, now: time.Now}, nil
}

func (c *SqliteCache) Get(ctx context.Context, key string) (string, bool, error) {
	var entry sqliteEntry
	err := c.db.GetContext(ctx, &entry, "SELECT key, value, expires_at FROM hash_cache WHERE key = ?", key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get %s: %w", key, err)
	}
	if entry.ExpiresAt != 0 && c.now().Unix() >= entry.ExpiresAt {
		return "", false, nil
	}
	return entry.Value, true, nil
}

func (c *SqliteCache) Set(ctx context.Context, key, value string) error {
	entry := sqliteEntry{Key: key, Value: value}
	if c.ttl > 0 {
		entry.ExpiresAt = c.now().Add(c.ttl).Unix()
	}

	query := `INSERT OR REPLACE INTO hash_cache (key, value, expires_at) VALUES (:key, :value, :expires_at)`
	if _, err := c.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (c *SqliteCache) Delete(ctx context.Context, key string) error {
	if _, err := c.db.ExecContext(ctx, "DELETE FROM hash_cache WHERE key = ?", key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// Purge removes expired rows. With all=true every row is removed.
func (c *SqliteCache) Purge(ctx context.Context, all bool) (int64, error) {
	var res sql.Result
	var err error
	if all {
		res, err = c.db.ExecContext(ctx, "DELETE FROM hash_cache")
	} else {
		res, err = c.db.ExecContext(ctx, "DELETE FROM hash_cache WHERE expires_at != 0 AND expires_at <= ?", c.now().Unix())
	}
	if err != nil {
		return 0, fmt.Errorf("purge hash cache: %w", err)
	}
	n, _ := res.RowsAffected()
	slog.Debug("hash cache purged", "rows", n, "all", all)
	return n, nil
}

func (c *SqliteCache) Count(ctx context.Context) (int, error) {
	var n int
	if err := c.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM hash_cache"); err != nil {
		return 0, fmt.Errorf("count hash cache: %w", err)
	}
	return n, nil
}

func (c *SqliteCache) Close() error {
	return c.db.Close()
}
