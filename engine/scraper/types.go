// Package scraper extracts documentation from external sources: the BirdEye
// API reference and a local checkout of the Solana Agave repository.
package scraper

import "time"

// ScrapedDoc represents one extracted document ready for ingestion.
type ScrapedDoc struct {
	DocType    string    `json:"doc_type"`
	SourceName string    `json:"source_name"`
	DocPath    string    `json:"doc_path"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	ScrapedAt  time.Time `json:"scraped_at"`
	Metadata   Metadata  `json:"metadata"`
}

// Metadata holds per-source extraction context, stored as JSONB alongside
// the document. Fields are source-specific; zero values are omitted.
type Metadata struct {
	SourceURL   string    `json:"source_url,omitempty"`
	APIMethod   string    `json:"api_method,omitempty"`
	APIPath     string    `json:"api_path,omitempty"`
	Title       string    `json:"title,omitempty"`
	SourceType  string    `json:"source_type,omitempty"` // markdown, bob_diagram, msc_chart, pdf
	FilePath    string    `json:"file_path,omitempty"`
	FileSize    int64     `json:"file_size,omitempty"`
	Category    string    `json:"category,omitempty"`
	Repository  string    `json:"repository,omitempty"`
	ExtractedAt time.Time `json:"extracted_at,omitempty"`
}
