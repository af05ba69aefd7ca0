// Package postgres is a core.DataStore on PostgreSQL through a pgx
// connection pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hupe1980/teammesh/core"
)

// Options configure a Store.
type Options struct {
	// Table holds the records. Must be a trusted identifier.
	Table string
	// Migrate creates the table and its index when missing.
	Migrate bool
}

// Store is a PostgreSQL backed core.DataStore.
type Store struct {
	pool  *pgxpool.Pool
	table string
	now   func() time.Time
}

// Connect opens a pool on dsn and returns a Store using it.
func Connect(ctx context.Context, dsn string, optFns ...func(o *Options)) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}

	s, err := New(ctx, pool, optFns...)
	if err != nil {
		pool.Close()
		return nil, err
	}

	return s, nil
}

// New wraps an existing pool.
func New(ctx context.Context, pool *pgxpool.Pool, optFns ...func(o *Options)) (*Store, error) {
	opts := Options{
		Table:   "teammesh_records",
		Migrate: true,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	s := &Store{pool: pool, table: opts.Table, now: time.Now}

	if opts.Migrate {
		if err := s.migrate(ctx); err != nil {
			return nil, fmt.Errorf("postgres migrate: %w", err)
		}
	}

	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			id         TEXT PRIMARY KEY,
			key        TEXT NOT NULL,
			content    TEXT NOT NULL DEFAULT '',
			meta1      TEXT NOT NULL DEFAULT '',
			meta2      TEXT NOT NULL DEFAULT '',
			meta3      TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_%[1]s_key ON %[1]s (key, created_at DESC);
	`, s.table)

	_, err := s.pool.Exec(ctx, ddl)
	return err
}

// Close releases the pool.
func (s *Store) Close() { s.pool.Close() }

// HealthCheck pings the database.
func (s *Store) HealthCheck(ctx context.Context) error { return s.pool.Ping(ctx) }

// StoreData implements core.DataStore.
func (s *Store) StoreData(ctx context.Context, rec core.Record, allowMultiple bool) (string, error) {
	if rec.Key == "" {
		return "", fmt.Errorf("postgres: record key is empty")
	}

	if rec.ID == "" {
		rec.ID = core.NewID()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}

	var id string

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if !allowMultiple {
			err := tx.QueryRow(ctx, fmt.Sprintf(`SELECT id FROM %s
				WHERE key = $1 AND meta1 = $2 AND meta2 = $3 AND meta3 = $4
				ORDER BY created_at DESC, id DESC LIMIT 1
				FOR UPDATE`, s.table),
				rec.Key, rec.Meta.Meta1, rec.Meta.Meta2, rec.Meta.Meta3).Scan(&id)

			switch {
			case err == nil:
				_, err = tx.Exec(ctx, fmt.Sprintf(`UPDATE %s SET content = $1 WHERE id = $2`, s.table), rec.Content, id)
				return err
			case !errors.Is(err, pgx.ErrNoRows):
				return err
			}
		}

		id = rec.ID
		_, err := tx.Exec(ctx, fmt.Sprintf(`INSERT INTO %s (id, key, content, meta1, meta2, meta3, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id) DO UPDATE SET content = EXCLUDED.content`, s.table),
			rec.ID, rec.Key, rec.Content, rec.Meta.Meta1, rec.Meta.Meta2, rec.Meta.Meta3, rec.CreatedAt)

		return err
	})
	if err != nil {
		return "", fmt.Errorf("postgres store: %w", err)
	}

	return id, nil
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
	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, s.table), id)
	if err != nil {
		return fmt.Errorf("postgres delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("record %q: %w", id, core.ErrNotFound)
	}
	return nil
}

func (s *Store) query(ctx context.Context, key string, filter core.Meta, limit int) ([]core.Record, error) {
	q := fmt.Sprintf(`SELECT id, key, content, meta1, meta2, meta3, created_at FROM %s
		WHERE key = $1
		  AND ($2 = '' OR meta1 = $2)
		  AND ($3 = '' OR meta2 = $3)
		  AND ($4 = '' OR meta3 = $4)
		ORDER BY created_at DESC, id DESC`, s.table)

	args := []any{key, filter.Meta1, filter.Meta2, filter.Meta3}
	if limit > 0 {
		q += " LIMIT $5"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres query: %w", err)
	}
	defer rows.Close()

	var out []core.Record
	for rows.Next() {
		var r core.Record
		if err := rows.Scan(&r.ID, &r.Key, &r.Content, &r.Meta.Meta1, &r.Meta.Meta2, &r.Meta.Meta3, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres scan: %w", err)
		}
		out = append(out, r)
	}

	return out, rows.Err()
}
