package docstore

import (
	"strings"
	"testing"
)

func TestSearchQuery_NoFilter(t *testing.T) {
	query, args := searchQuery("")
	if args != 2 {
		t.Fatalf("expected 2 args, got %d", args)
	}
	if strings.Contains(query, "doc_type = $2") {
		t.Error("unfiltered query should not mention doc_type")
	}
	if !strings.Contains(query, "ORDER BY distance LIMIT $2") {
		t.Errorf("limit should bind to $2:\n%s", query)
	}
	if !strings.Contains(query, "embedding <=> $1") {
		t.Error("query should use the cosine distance operator")
	}
}

func TestSearchQuery_WithFilter(t *testing.T) {
	query, args := searchQuery("solana")
	if args != 3 {
		t.Fatalf("expected 3 args, got %d", args)
	}
	if !strings.Contains(query, "doc_type = $2") {
		t.Error("filtered query should bind doc_type to $2")
	}
	if !strings.Contains(query, "ORDER BY distance LIMIT $3") {
		t.Errorf("limit should shift to $3:\n%s", query)
	}
}

func TestContentHash(t *testing.T) {
	a := ContentHash("hello")
	b := ContentHash("hello")
	c := ContentHash("hello!")
	if a != b {
		t.Error("same content must hash equal")
	}
	if a == c {
		t.Error("different content must hash differently")
	}
	if len(a) != 32 {
		t.Errorf("expected 32 hex chars, got %d", len(a))
	}
}

func TestMigrations_Shape(t *testing.T) {
	joined := strings.Join(migrations, "\n")

	for _, want := range []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`"uuid-ossp"`,
		`UNIQUE(doc_type, source_name, doc_path)`,
		`UNIQUE(doc_type, source_name)`,
		`embedding vector(3072)`,
		`'rust_best_practices'`,
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("migrations missing %q", want)
		}
	}

	// 3072 dims exceed pgvector's index limit; there must be no vector index.
	for _, forbidden := range []string{"ivfflat", "hnsw", "USING vector"} {
		if strings.Contains(joined, forbidden) {
			t.Errorf("migrations must not create a vector index (%q found)", forbidden)
		}
	}
}
