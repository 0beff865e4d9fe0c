// Package ingest runs scraped documents through validation, truncation,
// embedding, and storage. It serves both one-shot batch runs and a NATS
// consumer with retry and dead-lettering.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/docvault/docvault/engine/docstore"
	"github.com/docvault/docvault/engine/domain"
	"github.com/docvault/docvault/engine/scraper"
	"github.com/docvault/docvault/pkg/fn"
	"github.com/docvault/docvault/pkg/metrics"
	"github.com/docvault/docvault/pkg/natsutil"
)

const (
	// IngestSubject is the NATS subject for incoming scraped documents.
	IngestSubject = "docvault.ingest"
	// DLQSubject receives messages that exhausted their retries.
	DLQSubject = "docvault.ingest.dlq"
	// MaxRetries before a message is dead-lettered.
	MaxRetries = 3
)

// Deps holds the pipeline's external dependencies.
type Deps struct {
	Embedder Embedder
	Store    DocStore
	Logger   *slog.Logger
	Metrics  *metrics.Registry
	// SkipUnchanged short-circuits embedding when the stored row already
	// has this content and an embedding.
	SkipUnchanged bool
}

func (d Deps) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// ErrSkipped marks a document that was deliberately not re-embedded.
var ErrSkipped = errors.New("ingest: unchanged, skipped")

// Validate gates scraped documents on the domain rules.
var Validate fn.Stage[scraper.ScrapedDoc, scraper.ScrapedDoc] = func(_ context.Context, doc scraper.ScrapedDoc) fn.Result[scraper.ScrapedDoc] {
	if err := domain.ValidateScrapedDoc(doc); err != nil {
		return fn.Err[scraper.ScrapedDoc](err)
	}
	return fn.Ok(doc)
}

// TruncateStage caps content at the embedding budget. The stored content
// matches what was embedded.
var TruncateStage fn.Stage[scraper.ScrapedDoc, scraper.ScrapedDoc] = func(_ context.Context, doc scraper.ScrapedDoc) fn.Result[scraper.ScrapedDoc] {
	doc.Content = Truncate(doc.Content)
	return fn.Ok(doc)
}

// NewDedupe creates a stage that errors with ErrSkipped when the stored
// document already matches this content.
func NewDedupe(store DocStore) fn.Stage[scraper.ScrapedDoc, scraper.ScrapedDoc] {
	return func(ctx context.Context, doc scraper.ScrapedDoc) fn.Result[scraper.ScrapedDoc] {
		hash := docstore.ContentHash(doc.Content)
		unchanged, err := store.ContentUnchanged(ctx, domain.DocType(doc.DocType), doc.SourceName, doc.DocPath, hash)
		if err != nil {
			// A failed check is not worth losing the document over.
			slog.Warn("ingest: dedup check failed", "doc_path", doc.DocPath, "error", err)
			return fn.Ok(doc)
		}
		if unchanged {
			return fn.Err[scraper.ScrapedDoc](fmt.Errorf("%w: %s", ErrSkipped, doc.DocPath))
		}
		return fn.Ok(doc)
	}
}

// NewEmbed creates the embedding stage.
func NewEmbed(embedder Embedder) fn.Stage[scraper.ScrapedDoc, EmbeddedDoc] {
	return func(ctx context.Context, doc scraper.ScrapedDoc) fn.Result[EmbeddedDoc] {
		embedding, err := embedder.Embed(ctx, trimmedForEmbedding(doc.Content))
		if err != nil {
			return fn.Err[EmbeddedDoc](fmt.Errorf("ingest: embed %s: %w", doc.DocPath, err))
		}
		if err := domain.ValidateEmbedding(embedding, embedder.Dims()); err != nil {
			return fn.Err[EmbeddedDoc](fmt.Errorf("ingest: embed %s: %w", doc.DocPath, err))
		}
		return fn.Ok(EmbeddedDoc{
			ScrapedDoc: doc,
			Embedding:  embedding,
			TokenCount: domain.EstimateTokens(doc.Content),
		})
	}
}

// NewStore creates the storage stage. It returns the doc path of the
// upserted row.
func NewStore(store DocStore) fn.Stage[EmbeddedDoc, string] {
	return func(ctx context.Context, doc EmbeddedDoc) fn.Result[string] {
		metadata, err := json.Marshal(doc.Metadata)
		if err != nil {
			return fn.Err[string](fmt.Errorf("ingest: metadata %s: %w", doc.DocPath, err))
		}
		row := domain.Document{
			DocType:    domain.DocType(doc.DocType),
			SourceName: doc.SourceName,
			DocPath:    doc.DocPath,
			Content:    doc.Content,
			Metadata:   metadata,
			Embedding:  doc.Embedding,
			TokenCount: doc.TokenCount,
		}
		if err := store.UpsertDocument(ctx, row); err != nil {
			return fn.Err[string](err)
		}
		return fn.Ok(doc.DocPath)
	}
}

// NewPipeline composes validate → truncate → (dedupe) → embed → store,
// with tracing on each stage.
func NewPipeline(deps Deps) fn.Stage[scraper.ScrapedDoc, string] {
	validated := fn.TracedStage("validate", Validate)
	truncated := fn.Then(validated, fn.TracedStage("truncate", TruncateStage))

	gated := truncated
	if deps.SkipUnchanged {
		gated = fn.Then(truncated, fn.TracedStage("dedupe", NewDedupe(deps.Store)))
	}

	embedded := fn.Then(gated, fn.TracedStage("embed", NewEmbed(deps.Embedder)))
	return fn.Then(embedded, fn.TracedStage("store", NewStore(deps.Store)))
}

// BatchResult summarises one RunBatch call.
type BatchResult struct {
	Stored  int
	Skipped int
	Failed  int
	Errors  []error
}

// RunBatch ensures source rows, runs every document through the pipeline
// sequentially, collects per-document errors, and rolls up source stats.
// It fails fast only on context cancellation.
func RunBatch(ctx context.Context, deps Deps, docs []scraper.ScrapedDoc) (BatchResult, error) {
	log := deps.logger()
	pipeline := NewPipeline(deps)
	var res BatchResult

	seen := map[string]bool{}
	for _, doc := range docs {
		key := doc.DocType + "/" + doc.SourceName
		if seen[key] {
			continue
		}
		seen[key] = true
		if err := deps.Store.EnsureSource(ctx, domain.DocType(doc.DocType), doc.SourceName, sourceConfig(doc)); err != nil {
			return res, err
		}
	}

	for i, doc := range docs {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		start := time.Now()
		result := pipeline(ctx, doc)
		docPath, err := result.Unwrap()

		switch {
		case err == nil:
			res.Stored++
			deps.count("ingest_docs_stored_total", doc.SourceName)
			log.Info("ingest: stored", "doc_path", docPath, "elapsed", time.Since(start), "progress", fmt.Sprintf("%d/%d", i+1, len(docs)))
		case isSkipped(err):
			res.Skipped++
			deps.count("ingest_docs_skipped_total", doc.SourceName)
			log.Info("ingest: skipped unchanged", "doc_path", doc.DocPath)
		default:
			res.Failed++
			res.Errors = append(res.Errors, fmt.Errorf("%s: %w", doc.DocPath, err))
			deps.count("ingest_docs_failed_total", doc.SourceName)
			log.Error("ingest: failed", "doc_path", doc.DocPath, "error", err)
		}
	}

	for key := range seen {
		docType, sourceName := splitKey(key)
		if err := deps.Store.UpdateSourceStats(ctx, docType, sourceName); err != nil {
			log.Warn("ingest: stats rollup failed", "source", key, "error", err)
		}
	}

	return res, nil
}

func (d Deps) count(name, source string) {
	if d.Metrics == nil {
		return
	}
	d.Metrics.Counter(metrics.WithLabels(name, "source", source), "").Inc()
}

func isSkipped(err error) bool { return errors.Is(err, ErrSkipped) }

// sourceConfig builds the registry config recorded for a source on each
// run: how its documents are extracted and when the run happened.
func sourceConfig(doc scraper.ScrapedDoc) []byte {
	cfg := map[string]string{
		"extraction_method": extractionMethod(doc),
		"last_ingestion":    time.Now().UTC().Format(time.RFC3339),
	}
	if doc.Metadata.Repository != "" {
		cfg["repository"] = doc.Metadata.Repository
	}
	if doc.Metadata.SourceURL != "" {
		cfg["source_url"] = doc.Metadata.SourceURL
	}
	data, _ := json.Marshal(cfg)
	return data
}

func extractionMethod(doc scraper.ScrapedDoc) string {
	if doc.Metadata.APIMethod != "" || doc.Metadata.APIPath != "" {
		return "dereference-api"
	}
	return "repository-walk"
}

func splitKey(key string) (domain.DocType, string) {
	docType, sourceName, _ := strings.Cut(key, "/")
	return domain.DocType(docType), sourceName
}

// dlqMessage is the payload published on dead-lettering.
type dlqMessage struct {
	Doc     scraper.ScrapedDoc `json:"doc"`
	Error   string             `json:"error"`
	Retries int                `json:"retries"`
}

// StartConsumer subscribes to IngestSubject and runs each message through
// the pipeline, continuing the trace the publisher started. Failures are
// re-published with an incremented retry header; after MaxRetries the
// message goes to the DLQ.
func StartConsumer(nc *nats.Conn, deps Deps) (*nats.Subscription, error) {
	pipeline := NewPipeline(deps)
	log := deps.logger()

	return natsutil.SubscribeMsg(nc, IngestSubject, func(ctx context.Context, doc scraper.ScrapedDoc, msg *nats.Msg) {
		if err := deps.Store.EnsureSource(ctx, domain.DocType(doc.DocType), doc.SourceName, sourceConfig(doc)); err != nil {
			log.Error("ingest: ensure source failed", "error", err)
		}

		retries := 0
		if msg.Header != nil {
			if v := msg.Header.Get("X-Retry-Count"); v != "" {
				fmt.Sscanf(v, "%d", &retries)
			}
		}

		result := pipeline(ctx, doc)
		if docPath, err := result.Unwrap(); err == nil {
			deps.count("ingest_docs_stored_total", doc.SourceName)
			log.Info("ingest: stored", "doc_path", docPath)
		} else if isSkipped(err) {
			deps.count("ingest_docs_skipped_total", doc.SourceName)
			log.Info("ingest: skipped unchanged", "doc_path", doc.DocPath)
		} else {
			retries++
			log.Error("ingest: pipeline failed", "doc_path", doc.DocPath, "error", err, "retry", retries)

			if retries >= MaxRetries {
				dlq := dlqMessage{Doc: doc, Error: err.Error(), Retries: retries}
				data, _ := json.Marshal(dlq)
				if err := nc.Publish(DLQSubject, data); err != nil {
					log.Error("ingest: DLQ publish failed", "error", err)
				}
			} else {
				retry := nats.NewMsg(IngestSubject)
				retry.Data = msg.Data
				retry.Header.Set("X-Retry-Count", fmt.Sprintf("%d", retries))
				if err := nc.PublishMsg(retry); err != nil {
					log.Error("ingest: retry publish failed", "error", err)
				}
			}
		}

		if msg.Reply != "" {
			_ = msg.Ack()
		}
	})
}
