package docstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/docvault/docvault/engine/domain"
)

// ColumnInfo describes one column of the documents table.
type ColumnInfo struct {
	Name     string
	DataType string
	Nullable bool
}

// TableColumns lists the documents table's columns from information_schema.
func (s *Store) TableColumns(ctx context.Context) ([]ColumnInfo, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT column_name, data_type, is_nullable = 'YES'
		FROM information_schema.columns
		WHERE table_name = 'documents'
		ORDER BY ordinal_position`)
	if err != nil {
		return nil, fmt.Errorf("docstore: table columns: %w", err)
	}
	defer rows.Close()

	var cols []ColumnInfo
	for rows.Next() {
		var c ColumnInfo
		if err := rows.Scan(&c.Name, &c.DataType, &c.Nullable); err != nil {
			return nil, fmt.Errorf("docstore: table columns scan: %w", err)
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

// EnumValues returns the labels of the doc_type enum in sort order.
func (s *Store) EnumValues(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT e.enumlabel
		FROM pg_enum e
		JOIN pg_type t ON t.oid = e.enumtypid
		WHERE t.typname = 'doc_type'
		ORDER BY e.enumsortorder`)
	if err != nil {
		return nil, fmt.Errorf("docstore: enum values: %w", err)
	}
	defer rows.Close()

	var labels []string
	for rows.Next() {
		var l string
		if err := rows.Scan(&l); err != nil {
			return nil, fmt.Errorf("docstore: enum values scan: %w", err)
		}
		labels = append(labels, l)
	}
	return labels, rows.Err()
}

// TypeCount is a per-doc-type row count.
type TypeCount struct {
	DocType domain.DocType
	Count   int
}

// CountsByType returns document counts grouped by doc_type.
func (s *Store) CountsByType(ctx context.Context) ([]TypeCount, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT doc_type, count(*)
		FROM documents
		GROUP BY doc_type
		ORDER BY count(*) DESC`)
	if err != nil {
		return nil, fmt.Errorf("docstore: counts by type: %w", err)
	}
	defer rows.Close()

	var counts []TypeCount
	for rows.Next() {
		var c TypeCount
		if err := rows.Scan(&c.DocType, &c.Count); err != nil {
			return nil, fmt.Errorf("docstore: counts scan: %w", err)
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// Coverage summarises embedding completeness.
type Coverage struct {
	Total     int
	Embedded  int
	SampleDim int // 0 when no embeddings exist
}

// EmbeddingCoverage counts embedded rows and probes one embedding's
// dimension.
func (s *Store) EmbeddingCoverage(ctx context.Context) (Coverage, error) {
	var cov Coverage
	err := s.pool.QueryRow(ctx, `
		SELECT count(*), count(embedding)
		FROM documents`).Scan(&cov.Total, &cov.Embedded)
	if err != nil {
		return cov, fmt.Errorf("docstore: coverage: %w", err)
	}
	if cov.Embedded > 0 {
		err = s.pool.QueryRow(ctx, `
			SELECT vector_dims(embedding)
			FROM documents
			WHERE embedding IS NOT NULL
			LIMIT 1`).Scan(&cov.SampleDim)
		if err != nil {
			return cov, fmt.Errorf("docstore: dimension probe: %w", err)
		}
	}
	return cov, nil
}

// DuplicateKey is a uniqueness-violation group. The UNIQUE constraint
// should make this impossible; the check exists to prove it.
type DuplicateKey struct {
	DocType    domain.DocType
	SourceName string
	DocPath    string
	Count      int
}

// DuplicateKeys returns any (doc_type, source_name, doc_path) groups with
// more than one row.
func (s *Store) DuplicateKeys(ctx context.Context) ([]DuplicateKey, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT doc_type, source_name, doc_path, count(*)
		FROM documents
		GROUP BY doc_type, source_name, doc_path
		HAVING count(*) > 1`)
	if err != nil {
		return nil, fmt.Errorf("docstore: duplicates: %w", err)
	}
	defer rows.Close()

	var dups []DuplicateKey
	for rows.Next() {
		var d DuplicateKey
		if err := rows.Scan(&d.DocType, &d.SourceName, &d.DocPath, &d.Count); err != nil {
			return nil, fmt.Errorf("docstore: duplicates scan: %w", err)
		}
		dups = append(dups, d)
	}
	return dups, rows.Err()
}

// Sample is a recent document excerpt.
type Sample struct {
	DocType    domain.DocType
	DocPath    string
	TokenCount int
	Excerpt    string
}

// RecentSamples returns the n most recently updated non-empty documents.
func (s *Store) RecentSamples(ctx context.Context, n int) ([]Sample, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT doc_type, doc_path, coalesce(token_count, 0), left(content, 160)
		FROM documents
		WHERE length(trim(content)) > 0
		ORDER BY updated_at DESC
		LIMIT $1`, n)
	if err != nil {
		return nil, fmt.Errorf("docstore: samples: %w", err)
	}
	defer rows.Close()

	var samples []Sample
	for rows.Next() {
		var smp Sample
		if err := rows.Scan(&smp.DocType, &smp.DocPath, &smp.TokenCount, &smp.Excerpt); err != nil {
			return nil, fmt.Errorf("docstore: samples scan: %w", err)
		}
		samples = append(samples, smp)
	}
	return samples, rows.Err()
}

// SearchProbe verifies vector search works by asking for the nearest
// neighbours of a stored embedding. The first hit must be the document
// itself at distance zero (within float tolerance). With nothing embedded
// there is nothing to probe; that is reported as ok with an empty probed
// path, not as a failure.
func (s *Store) SearchProbe(ctx context.Context) (ok bool, probed string, err error) {
	var id, docPath string
	err = s.pool.QueryRow(ctx, `
		SELECT id, doc_path
		FROM documents
		WHERE embedding IS NOT NULL
		LIMIT 1`).Scan(&id, &docPath)
	if errors.Is(err, pgx.ErrNoRows) {
		return true, "", nil
	}
	if err != nil {
		return false, "", fmt.Errorf("docstore: search probe pick: %w", err)
	}

	var nearest string
	var distance float64
	err = s.pool.QueryRow(ctx, `
		SELECT d.id, d.embedding <-> probe.embedding
		FROM documents d, (SELECT embedding FROM documents WHERE id = $1) probe
		WHERE d.embedding IS NOT NULL
		ORDER BY d.embedding <-> probe.embedding
		LIMIT 1`, id).Scan(&nearest, &distance)
	if err != nil {
		return false, docPath, fmt.Errorf("docstore: search probe query: %w", err)
	}
	return nearest == id && distance < 1e-6, docPath, nil
}

// SourceStats is one row of the source registry with its actual count.
type SourceStats struct {
	DocType     domain.DocType
	SourceName  string
	Enabled     bool
	TotalDocs   int
	TotalTokens int
	ActualDocs  int
}

// ListSources returns every registered source joined with the live count
// of its documents, exposing stats drift.
func (s *Store) ListSources(ctx context.Context) ([]SourceStats, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT ds.doc_type, ds.source_name, ds.enabled,
			ds.total_docs, ds.total_tokens,
			count(d.id)
		FROM document_sources ds
		LEFT JOIN documents d
			ON d.doc_type = ds.doc_type AND d.source_name = ds.source_name
		GROUP BY ds.id, ds.doc_type, ds.source_name, ds.enabled, ds.total_docs, ds.total_tokens
		ORDER BY ds.doc_type, ds.source_name`)
	if err != nil {
		return nil, fmt.Errorf("docstore: list sources: %w", err)
	}
	defer rows.Close()

	var sources []SourceStats
	for rows.Next() {
		var ss SourceStats
		if err := rows.Scan(&ss.DocType, &ss.SourceName, &ss.Enabled, &ss.TotalDocs, &ss.TotalTokens, &ss.ActualDocs); err != nil {
			return nil, fmt.Errorf("docstore: list sources scan: %w", err)
		}
		sources = append(sources, ss)
	}
	return sources, rows.Err()
}
