// Package docstore owns the Postgres side of the system: schema setup,
// the source registry, document upserts, and similarity search. Nothing
// else in the module issues SQL.
package docstore

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvector "github.com/pgvector/pgvector-go/pgx"

	"github.com/docvault/docvault/engine/domain"
)

// Store wraps a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to Postgres and registers the pgvector codec on every
// connection.
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("docstore: parse dsn: %w", err)
	}
	cfg.MaxConns = 10
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("docstore: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("docstore: ping: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the pool.
func (s *Store) Close() { s.pool.Close() }

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// migrations run in order inside one transaction. The embedding column has
// no vector index: at 3072 dimensions it exceeds pgvector's 2000-dim index
// limit, so similarity queries scan sequentially.
var migrations = []string{
	`CREATE EXTENSION IF NOT EXISTS vector`,
	`CREATE EXTENSION IF NOT EXISTS "uuid-ossp"`,
	`DO $$ BEGIN
		CREATE TYPE doc_type AS ENUM (
			'rust', 'jupyter', 'birdeye', 'cilium', 'talos',
			'meteora', 'raydium', 'solana', 'ebpf', 'rust_best_practices'
		);
	EXCEPTION WHEN duplicate_object THEN NULL; END $$`,
	`CREATE TABLE IF NOT EXISTS documents (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		doc_type doc_type NOT NULL,
		source_name VARCHAR(255) NOT NULL,
		doc_path TEXT NOT NULL,
		content TEXT NOT NULL,
		metadata JSONB DEFAULT '{}',
		embedding vector(3072),
		token_count INTEGER,
		created_at TIMESTAMPTZ DEFAULT now(),
		updated_at TIMESTAMPTZ DEFAULT now(),
		UNIQUE(doc_type, source_name, doc_path)
	)`,
	`CREATE TABLE IF NOT EXISTS document_sources (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		doc_type doc_type NOT NULL,
		source_name VARCHAR(255) NOT NULL,
		config JSONB DEFAULT '{}',
		enabled BOOLEAN DEFAULT true,
		total_docs INTEGER DEFAULT 0,
		total_tokens INTEGER DEFAULT 0,
		created_at TIMESTAMPTZ DEFAULT now(),
		updated_at TIMESTAMPTZ DEFAULT now(),
		UNIQUE(doc_type, source_name)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_documents_doc_type ON documents(doc_type)`,
	`CREATE INDEX IF NOT EXISTS idx_documents_source_name ON documents(source_name)`,
	`CREATE INDEX IF NOT EXISTS idx_document_sources_doc_type ON document_sources(doc_type)`,
}

// Migrate creates extensions, the doc_type enum, tables, and indexes.
// Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("docstore: migrate begin: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, stmt := range migrations {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("docstore: migrate: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("docstore: migrate commit: %w", err)
	}
	return nil
}

// EnsureSource registers a source. An existing row keeps its enabled flag
// and stats but takes the new config, so each run records how and when the
// source was last ingested.
func (s *Store) EnsureSource(ctx context.Context, docType domain.DocType, sourceName string, config []byte) error {
	if len(config) == 0 {
		config = []byte(`{}`)
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO document_sources (doc_type, source_name, config, enabled)
		VALUES ($1, $2, $3, true)
		ON CONFLICT (doc_type, source_name)
		DO UPDATE SET config = EXCLUDED.config, updated_at = now()`,
		docType, sourceName, config)
	if err != nil {
		return fmt.Errorf("docstore: ensure source %s/%s: %w", docType, sourceName, err)
	}
	return nil
}

// UpsertDocument inserts or replaces a document row keyed by
// (doc_type, source_name, doc_path).
func (s *Store) UpsertDocument(ctx context.Context, doc domain.Document) error {
	metadata := doc.Metadata
	if len(metadata) == 0 {
		metadata = []byte(`{}`)
	}
	var embedding any
	if doc.Embedding != nil {
		embedding = pgvector.NewVector(doc.Embedding)
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO documents (doc_type, source_name, doc_path, content, metadata, embedding, token_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (doc_type, source_name, doc_path)
		DO UPDATE SET
			content = EXCLUDED.content,
			metadata = EXCLUDED.metadata,
			embedding = EXCLUDED.embedding,
			token_count = EXCLUDED.token_count,
			updated_at = now()`,
		doc.DocType, doc.SourceName, doc.DocPath, doc.Content, metadata, embedding, doc.TokenCount)
	if err != nil {
		return fmt.Errorf("docstore: upsert %s: %w", doc.DocPath, err)
	}
	return nil
}

// UpdateSourceStats rolls total_docs and total_tokens for a source up from
// the documents table.
func (s *Store) UpdateSourceStats(ctx context.Context, docType domain.DocType, sourceName string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE document_sources ds SET
			total_docs = stats.docs,
			total_tokens = stats.tokens,
			updated_at = now()
		FROM (
			SELECT count(*) AS docs, coalesce(sum(token_count), 0) AS tokens
			FROM documents
			WHERE doc_type = $1 AND source_name = $2
		) stats
		WHERE ds.doc_type = $1 AND ds.source_name = $2`,
		docType, sourceName)
	if err != nil {
		return fmt.Errorf("docstore: update stats %s/%s: %w", docType, sourceName, err)
	}
	return nil
}

// ContentHash is the fingerprint compared by ContentUnchanged.
func ContentHash(content string) string {
	sum := md5.Sum([]byte(content))
	return hex.EncodeToString(sum[:])
}

// ContentUnchanged reports whether the stored document for a key has the
// given content hash and already carries an embedding. Callers use it to
// skip re-embedding on re-runs.
func (s *Store) ContentUnchanged(ctx context.Context, docType domain.DocType, sourceName, docPath, hash string) (bool, error) {
	var unchanged bool
	err := s.pool.QueryRow(ctx, `
		SELECT md5(content) = $4 AND embedding IS NOT NULL
		FROM documents
		WHERE doc_type = $1 AND source_name = $2 AND doc_path = $3`,
		docType, sourceName, docPath, hash).Scan(&unchanged)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("docstore: content check %s: %w", docPath, err)
	}
	return unchanged, nil
}

// HasDocument reports whether a row exists for the key.
func (s *Store) HasDocument(ctx context.Context, docType domain.DocType, sourceName, docPath string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM documents
			WHERE doc_type = $1 AND source_name = $2 AND doc_path = $3
		)`, docType, sourceName, docPath).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("docstore: exists %s: %w", docPath, err)
	}
	return exists, nil
}

// SearchResult is one hit from a similarity query.
type SearchResult struct {
	DocType    domain.DocType `json:"doc_type"`
	SourceName string         `json:"source_name"`
	DocPath    string         `json:"doc_path"`
	Title      string         `json:"title"`
	Distance   float64        `json:"distance"`
	Preview    string         `json:"preview"`
}

// searchQuery builds the similarity SQL. Separated out so the filter
// plumbing is testable without a database.
func searchQuery(docType domain.DocType) (string, int) {
	var b strings.Builder
	b.WriteString(`SELECT doc_type, source_name, doc_path,
		coalesce(metadata->>'title', doc_path) AS title,
		embedding <=> $1 AS distance,
		left(content, 240) AS preview
	FROM documents
	WHERE embedding IS NOT NULL`)
	args := 2
	if docType != "" {
		b.WriteString(` AND doc_type = $2`)
		args = 3
	}
	fmt.Fprintf(&b, ` ORDER BY distance LIMIT $%d`, args)
	return b.String(), args
}

// Search runs cosine-distance similarity over stored embeddings. docType
// narrows the scan when non-empty; limit defaults to 10.
func (s *Store) Search(ctx context.Context, embedding []float32, docType domain.DocType, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 10
	}
	query, _ := searchQuery(docType)
	args := []any{pgvector.NewVector(embedding)}
	if docType != "" {
		args = append(args, docType)
	}
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("docstore: search: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.DocType, &r.SourceName, &r.DocPath, &r.Title, &r.Distance, &r.Preview); err != nil {
			return nil, fmt.Errorf("docstore: search scan: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("docstore: search rows: %w", err)
	}
	return results, nil
}

// BackfillCandidate is a document whose embedding is missing or has the
// wrong dimension.
type BackfillCandidate struct {
	ID      string
	DocPath string
	Content string
}

// SelectForBackfill returns documents needing (re-)embedding: null
// embeddings, or embeddings whose dimension differs from wantDims.
func (s *Store) SelectForBackfill(ctx context.Context, wantDims, limit int) ([]BackfillCandidate, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, doc_path, content
		FROM documents
		WHERE embedding IS NULL OR vector_dims(embedding) <> $1
		ORDER BY updated_at
		LIMIT $2`, wantDims, limit)
	if err != nil {
		return nil, fmt.Errorf("docstore: backfill select: %w", err)
	}
	defer rows.Close()

	var out []BackfillCandidate
	for rows.Next() {
		var c BackfillCandidate
		if err := rows.Scan(&c.ID, &c.DocPath, &c.Content); err != nil {
			return nil, fmt.Errorf("docstore: backfill scan: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpdateEmbedding writes a fresh embedding for one document.
func (s *Store) UpdateEmbedding(ctx context.Context, id string, embedding []float32, tokenCount int) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE documents SET embedding = $2, token_count = $3, updated_at = now()
		WHERE id = $1`, id, pgvector.NewVector(embedding), tokenCount)
	if err != nil {
		return fmt.Errorf("docstore: update embedding %s: %w", id, err)
	}
	return nil
}
