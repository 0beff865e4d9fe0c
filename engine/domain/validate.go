package domain

import (
	"strings"

	"github.com/docvault/docvault/engine/scraper"
)

// ValidateScrapedDoc checks a ScrapedDoc before ingestion. It is the single
// gate between scraper output and the pipeline.
func ValidateScrapedDoc(doc scraper.ScrapedDoc) error {
	if strings.TrimSpace(doc.Content) == "" {
		return NewValidationError("content", "", ErrEmptyContent)
	}
	if !ValidDocTypes[DocType(doc.DocType)] {
		return NewValidationError("doc_type", doc.DocType, ErrUnknownDocType)
	}
	if doc.SourceName == "" {
		return NewValidationError("source_name", "", ErrEmptySourceName)
	}
	if doc.DocPath == "" {
		return NewValidationError("doc_path", "", ErrEmptyDocPath)
	}
	if strings.HasPrefix(doc.DocPath, "/") {
		return NewValidationError("doc_path", doc.DocPath, ErrAbsoluteDocPath)
	}
	return nil
}

// ValidateEmbedding checks that an embedding matches the expected dimension.
// A nil embedding is allowed; rows may be backfilled later.
func ValidateEmbedding(embedding []float32, wantDims int) error {
	if embedding == nil {
		return nil
	}
	if len(embedding) != wantDims {
		return NewValidationError("embedding", "", ErrEmbeddingDimension)
	}
	return nil
}
