// Package domain defines core document types, the doc-type registry, and the
// validation gate applied at ingestion entry points.
package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// DocType identifies a documentation family. Values mirror the doc_type
// Postgres enum; adding one here requires a schema migration too.
type DocType string

const (
	DocTypeRust              DocType = "rust"
	DocTypeJupyter           DocType = "jupyter"
	DocTypeBirdEye           DocType = "birdeye"
	DocTypeCilium            DocType = "cilium"
	DocTypeTalos             DocType = "talos"
	DocTypeMeteora           DocType = "meteora"
	DocTypeRaydium           DocType = "raydium"
	DocTypeSolana            DocType = "solana"
	DocTypeEBPF              DocType = "ebpf"
	DocTypeRustBestPractices DocType = "rust_best_practices"
)

// ValidDocTypes is the set of recognised doc types.
var ValidDocTypes = map[DocType]bool{
	DocTypeRust: true, DocTypeJupyter: true, DocTypeBirdEye: true,
	DocTypeCilium: true, DocTypeTalos: true, DocTypeMeteora: true,
	DocTypeRaydium: true, DocTypeSolana: true, DocTypeEBPF: true,
	DocTypeRustBestPractices: true,
}

// Document is a row in the documents table. Identity is the composite
// (DocType, SourceName, DocPath); the database enforces its uniqueness.
type Document struct {
	ID         uuid.UUID       `json:"id"`
	DocType    DocType         `json:"doc_type"`
	SourceName string          `json:"source_name"`
	DocPath    string          `json:"doc_path"`
	Content    string          `json:"content"`
	Metadata   json.RawMessage `json:"metadata"`
	Embedding  []float32       `json:"embedding,omitempty"`
	TokenCount int             `json:"token_count"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Source is a row in the document_sources registry.
type Source struct {
	ID          uuid.UUID       `json:"id"`
	DocType     DocType         `json:"doc_type"`
	SourceName  string          `json:"source_name"`
	Config      json.RawMessage `json:"config"`
	Enabled     bool            `json:"enabled"`
	TotalDocs   int             `json:"total_docs"`
	TotalTokens int             `json:"total_tokens"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// EstimateTokens approximates the token count of content at 4 chars/token,
// the same estimate the embedding truncation budget is derived from.
func EstimateTokens(content string) int {
	return len(content) / 4
}
