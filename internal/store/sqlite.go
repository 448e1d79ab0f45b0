package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/benaskins/securestore/internal/crypto"
	"github.com/benaskins/securestore/internal/policy"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS entries (
    id          TEXT PRIMARY KEY,
    policy      TEXT NOT NULL,
    suite       TEXT NOT NULL,
    nonce       BLOB NOT NULL,
    ciphertext  BLOB NOT NULL,
    version     INTEGER NOT NULL,
    created_at  INTEGER NOT NULL,
    updated_at  INTEGER NOT NULL
);
`

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// SQLiteRecords persists records in a SQLite database, one row per id.
// Every write is a single transaction.
type SQLiteRecords struct {
	sqlDB *sql.DB
}

// OpenSQLiteRecords opens a SQLite record store and ensures the schema.
func OpenSQLiteRecords(path string) (*SQLiteRecords, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(FULL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(sqliteSchema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteRecords{sqlDB: sqlDB}, nil
}

func (s *SQLiteRecords) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *SQLiteRecords) Load(ctx context.Context, id string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, policy, suite, nonce, ciphertext, version, created_at, updated_at
		   FROM entries
		  WHERE id = ?`,
		id,
	)

	var rec Record
	var tag, suite string
	var createdAt, updatedAt int64
	err := row.Scan(&rec.ID, &tag, &suite, &rec.Nonce, &rec.Ciphertext, &rec.Version, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("load entry: %w", err)
	}
	rec.Policy = policy.Tag(tag)
	rec.Suite = crypto.Suite(suite)
	rec.CreatedAt = fromMillis(createdAt)
	rec.UpdatedAt = fromMillis(updatedAt)
	return &rec, nil
}

func (s *SQLiteRecords) Save(rec *Record) error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	tx, err := s.sqlDB.BeginTx(context.Background(), nil)
	if err != nil {
		return mapSQLiteErr(fmt.Errorf("begin save: %w", err))
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO entries (id, policy, suite, nonce, ciphertext, version, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   policy = excluded.policy,
		   suite = excluded.suite,
		   nonce = excluded.nonce,
		   ciphertext = excluded.ciphertext,
		   version = excluded.version,
		   created_at = excluded.created_at,
		   updated_at = excluded.updated_at`,
		rec.ID,
		string(rec.Policy),
		string(rec.Suite),
		rec.Nonce,
		rec.Ciphertext,
		rec.Version,
		toMillis(rec.CreatedAt),
		toMillis(rec.UpdatedAt),
	)
	if err != nil {
		return mapSQLiteErr(fmt.Errorf("save entry: %w", err))
	}
	if err := tx.Commit(); err != nil {
		return mapSQLiteErr(fmt.Errorf("commit save: %w", err))
	}
	return nil
}

func (s *SQLiteRecords) Remove(id string) error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	tx, err := s.sqlDB.BeginTx(context.Background(), nil)
	if err != nil {
		return fmt.Errorf("begin remove: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`DELETE FROM entries WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("remove entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("remove entry: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit remove: %w", err)
	}
	return nil
}

func (s *SQLiteRecords) IDs(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT id FROM entries ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("list entries: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	return ids, nil
}

// mapSQLiteErr marks out-of-space failures as ErrStorageFull.
func mapSQLiteErr(err error) error {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code()&0xff == sqlite3lib.SQLITE_FULL {
		return fmt.Errorf("%w: %w", ErrStorageFull, err)
	}
	return err
}

var _ Records = (*SQLiteRecords)(nil)
