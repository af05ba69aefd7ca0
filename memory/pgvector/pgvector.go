// Package pgvector is a semantic core.Searcher and core.Indexer on
// PostgreSQL with the pgvector extension.
package pgvector

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hupe1980/teammesh/core"
	"github.com/hupe1980/teammesh/logging"
	"github.com/hupe1980/teammesh/model"
)

// Options configure an Index.
type Options struct {
	// Dimensions of the embedding vectors. Must match the embedder.
	Dimensions int
	// Table must be a trusted identifier.
	Table  string
	Logger logging.Logger
}

// Index stores documents with their embeddings and ranks them by cosine
// similarity to the query.
type Index struct {
	pool     *pgxpool.Pool
	embedder model.Embedder
	table    string
	logger   logging.Logger
}

// Connect opens a pool on dsn, creates the extension and table when missing
// and returns an Index using embedder.
func Connect(ctx context.Context, dsn string, embedder model.Embedder, optFns ...func(o *Options)) (*Index, error) {
	opts := Options{
		Dimensions: 1536,
		Table:      "teammesh_vectors",
		Logger:     logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgvector connect: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgvector ping: %w", err)
	}

	idx := &Index{pool: pool, embedder: embedder, table: opts.Table, logger: opts.Logger}
	if err := idx.migrate(ctx, opts.Dimensions); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgvector migrate: %w", err)
	}

	opts.Logger.Info("pgvector.index.ready", "table", opts.Table, "dims", opts.Dimensions)

	return idx, nil
}

func (x *Index) migrate(ctx context.Context, dims int) error {
	ddl := fmt.Sprintf(`
		CREATE EXTENSION IF NOT EXISTS vector;

		CREATE TABLE IF NOT EXISTS %[1]s (
			id         TEXT NOT NULL,
			namespace  TEXT NOT NULL,
			content    TEXT NOT NULL DEFAULT '',
			metadata   JSONB NOT NULL DEFAULT '{}',
			embedding  vector(%[2]d) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (namespace, id)
		);

		CREATE INDEX IF NOT EXISTS idx_%[1]s_ns ON %[1]s (namespace);
	`, x.table, dims)

	_, err := x.pool.Exec(ctx, ddl)
	return err
}

// Close releases the pool.
func (x *Index) Close() { x.pool.Close() }

// Index implements core.Indexer.
func (x *Index) Index(ctx context.Context, namespace string, doc core.SearchResult) error {
	vecs, err := x.embedder.Embed(ctx, []string{doc.Content})
	if err != nil {
		return fmt.Errorf("pgvector embed: %w", err)
	}
	if len(vecs) != 1 {
		return fmt.Errorf("pgvector embed: got %d vectors, want 1", len(vecs))
	}

	if doc.ID == "" {
		doc.ID = core.NewID()
	}
	meta := doc.Metadata
	if meta == nil {
		meta = map[string]any{}
	}

	_, err = x.pool.Exec(ctx, fmt.Sprintf(`INSERT INTO %s (id, namespace, content, metadata, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5::vector, $6)
		ON CONFLICT (namespace, id) DO UPDATE SET
			content = EXCLUDED.content,
			metadata = EXCLUDED.metadata,
			embedding = EXCLUDED.embedding`, x.table),
		doc.ID, namespace, doc.Content, meta, Literal(vecs[0]), time.Now())
	if err != nil {
		return fmt.Errorf("pgvector upsert: %w", err)
	}

	return nil
}

// Search implements core.Searcher. filter is matched by JSONB containment on
// the document metadata.
func (x *Index) Search(ctx context.Context, query, namespace string, filter map[string]any, topK int) ([]core.SearchResult, error) {
	if topK <= 0 {
		topK = 10
	}

	vecs, err := x.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("pgvector embed: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("pgvector embed: got %d vectors, want 1", len(vecs))
	}

	q := fmt.Sprintf(`SELECT id, content, metadata, 1 - (embedding <=> $1::vector) AS score
		FROM %s
		WHERE namespace = $2`, x.table)
	args := []any{Literal(vecs[0]), namespace}

	if len(filter) > 0 {
		q += " AND metadata @> $3"
		args = append(args, filter)
	}

	q += fmt.Sprintf(" ORDER BY embedding <=> $1::vector LIMIT $%d", len(args)+1)
	args = append(args, topK)

	rows, err := x.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("pgvector search: %w", err)
	}
	defer rows.Close()

	results := make([]core.SearchResult, 0, topK)
	for rows.Next() {
		var r core.SearchResult
		if err := rows.Scan(&r.ID, &r.Content, &r.Metadata, &r.Score); err != nil {
			return nil, fmt.Errorf("pgvector scan: %w", err)
		}
		results = append(results, r)
	}

	x.logger.Debug("pgvector.search", "namespace", namespace, "hits", len(results))

	return results, rows.Err()
}

// Delete removes a document from a namespace.
func (x *Index) Delete(ctx context.Context, namespace, id string) error {
	tag, err := x.pool.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE namespace = $1 AND id = $2", x.table), namespace, id)
	if err != nil {
		return fmt.Errorf("pgvector delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("document %q: %w", id, core.ErrNotFound)
	}
	return nil
}

// Literal renders v in pgvector's text input format, e.g. "[1,0.5,-2]".
func Literal(v []float32) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatFloat(float64(f), 'g', -1, 32))
	}
	sb.WriteByte(']')
	return sb.String()
}
