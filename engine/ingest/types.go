package ingest

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/docvault/docvault/engine/domain"
	"github.com/docvault/docvault/engine/scraper"
)

const (
	// MaxContentChars is the embedding input budget. At ~4 chars per token
	// this stays under the model's 8191-token input limit.
	MaxContentChars = 30000
	// TruncationSuffix marks content that was cut at MaxContentChars.
	TruncationSuffix = "... [TRUNCATED]"
)

// Embedder turns text into vectors. pkg/openai and pkg/ollama both
// satisfy it.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dims() int
}

// DocStore is the slice of the document store the pipeline needs.
type DocStore interface {
	EnsureSource(ctx context.Context, docType domain.DocType, sourceName string, config []byte) error
	UpsertDocument(ctx context.Context, doc domain.Document) error
	UpdateSourceStats(ctx context.Context, docType domain.DocType, sourceName string) error
	ContentUnchanged(ctx context.Context, docType domain.DocType, sourceName, docPath, hash string) (bool, error)
}

// EmbeddedDoc is a scraped document with its embedding attached.
type EmbeddedDoc struct {
	scraper.ScrapedDoc
	Embedding  []float32
	TokenCount int
}

// Truncate caps text at MaxContentChars, appending TruncationSuffix when
// it cuts. The cut lands on a rune boundary: splitting a multibyte rune
// would produce invalid UTF-8, which Postgres rejects on insert.
func Truncate(text string) string {
	if len(text) <= MaxContentChars {
		return text
	}
	cut := MaxContentChars
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + TruncationSuffix
}

// trimmedForEmbedding is what actually goes to the embedding API.
func trimmedForEmbedding(text string) string {
	return strings.TrimSpace(Truncate(text))
}
