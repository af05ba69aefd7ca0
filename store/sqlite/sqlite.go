// Package sqlite is a core.DataStore on an embedded SQLite database using
// the pure Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/hupe1980/teammesh/core"
)

const schema = `
CREATE TABLE IF NOT EXISTS records (
	id         TEXT PRIMARY KEY,
	key        TEXT NOT NULL,
	content    TEXT NOT NULL DEFAULT '',
	meta1      TEXT NOT NULL DEFAULT '',
	meta2      TEXT NOT NULL DEFAULT '',
	meta3      TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_records_key ON records (key, created_at DESC);
`

// Store is a SQLite backed core.DataStore.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (and creates) the database at path. ":memory:" gives a private
// in-memory database.
func Open(ctx context.Context, path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}

	// One writer at a time; a single connection also keeps ":memory:" alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", pragma, err)
		}
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: migrate: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// StoreData implements core.DataStore.
func (s *Store) StoreData(ctx context.Context, rec core.Record, allowMultiple bool) (string, error) {
	if rec.Key == "" {
		return "", fmt.Errorf("sqlite: record key is empty")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("sqlite: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if !allowMultiple {
		var id string
		err := tx.QueryRowContext(ctx, `SELECT id FROM records
			WHERE key = ? AND meta1 = ? AND meta2 = ? AND meta3 = ?
			ORDER BY created_at DESC, id DESC LIMIT 1`,
			rec.Key, rec.Meta.Meta1, rec.Meta.Meta2, rec.Meta.Meta3).Scan(&id)

		switch {
		case err == nil:
			if _, err := tx.ExecContext(ctx, `UPDATE records SET content = ? WHERE id = ?`, rec.Content, id); err != nil {
				return "", fmt.Errorf("sqlite: update: %w", err)
			}
			return id, tx.Commit()
		case !errors.Is(err, sql.ErrNoRows):
			return "", fmt.Errorf("sqlite: lookup: %w", err)
		}
	}

	if rec.ID == "" {
		rec.ID = core.NewID()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO records (id, key, content, meta1, meta2, meta3, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET content = excluded.content`,
		rec.ID, rec.Key, rec.Content, rec.Meta.Meta1, rec.Meta.Meta2, rec.Meta.Meta3, rec.CreatedAt.UnixNano()); err != nil {
		return "", fmt.Errorf("sqlite: insert: %w", err)
	}

	return rec.ID, tx.Commit()
}

// GetDataSingle implements core.DataStore.
func (s *Store) GetDataSingle(ctx context.Context, key string, filter core.Meta) (*core.Record, bool, error) {
	recs, err := s.query(ctx, key, filter, 1)
	if err != nil {
		return nil, false, err
	}
	if len(recs) == 0 {
		return nil, false, nil
	}
	return &recs[0], true, nil
}

// GetDataMany implements core.DataStore.
func (s *Store) GetDataMany(ctx context.Context, key string, filter core.Meta, limit int) ([]core.Record, error) {
	return s.query(ctx, key, filter, limit)
}

// DeleteData implements core.DataStore.
func (s *Store) DeleteData(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: delete: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("record %q: %w", id, core.ErrNotFound)
	}
	return nil
}

func (s *Store) query(ctx context.Context, key string, filter core.Meta, limit int) ([]core.Record, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, key, content, meta1, meta2, meta3, created_at FROM records
		WHERE key = ?
		  AND (? = '' OR meta1 = ?)
		  AND (? = '' OR meta2 = ?)
		  AND (? = '' OR meta3 = ?)
		ORDER BY created_at DESC, id DESC
		LIMIT ?`,
		key,
		filter.Meta1, filter.Meta1,
		filter.Meta2, filter.Meta2,
		filter.Meta3, filter.Meta3,
		limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query: %w", err)
	}
	defer rows.Close()

	var out []core.Record
	for rows.Next() {
		var (
			r  core.Record
			ns int64
		)
		if err := rows.Scan(&r.ID, &r.Key, &r.Content, &r.Meta.Meta1, &r.Meta.Meta2, &r.Meta.Meta3, &ns); err != nil {
			return nil, fmt.Errorf("sqlite: scan: %w", err)
		}
		r.CreatedAt = time.Unix(0, ns)
		out = append(out, r)
	}

	return out, rows.Err()
}
