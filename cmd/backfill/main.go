// Command backfill re-embeds documents whose embeddings are missing or
// have the wrong dimension, in batches, until none remain.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"

	"github.com/docvault/docvault/engine/docstore"
	"github.com/docvault/docvault/engine/domain"
	"github.com/docvault/docvault/engine/ingest"
	"github.com/docvault/docvault/pkg/fn"
	"github.com/docvault/docvault/pkg/metrics"
	"github.com/docvault/docvault/pkg/openai"
	"github.com/docvault/docvault/pkg/resilience"
)

var met = metrics.New()

var (
	mBackfilled = met.Counter("docvault_backfill_docs_total", "Documents re-embedded")
	mFailed     = met.Counter("docvault_backfill_errors_total", "Backfill failures")
	mEmbedDur   = met.Histogram("docvault_backfill_embed_duration_seconds", "Embed call time", nil)
)

func main() {
	_ = godotenv.Load()

	var (
		dsn         = flag.String("dsn", os.Getenv("DATABASE_URL"), "Postgres DSN")
		batch       = flag.Int("batch", 50, "documents per round")
		embedRate   = flag.Float64("embed-rate", 2, "embedding requests per second")
		dryRun      = flag.Bool("dry-run", false, "report candidates without embedding")
		metricsPort = flag.Int("metrics-port", 9092, "metrics port")
	)
	flag.Parse()

	if *dsn == "" {
		log.Fatal("-dsn or DATABASE_URL is required")
	}
	key := os.Getenv("OPENAI_API_KEY")
	if key == "" && !*dryRun {
		log.Fatal("OPENAI_API_KEY is required")
	}

	met.CollectRuntime("docvault_backfill", 15*time.Second)
	met.ServeAsync(*metricsPort)

	logger := slog.Default()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	store, err := docstore.New(ctx, *dsn)
	if err != nil {
		log.Fatalf("postgres connect failed: %v", err)
	}
	defer store.Close()

	lim := resilience.NewLimiter(resilience.LimiterOpts{Rate: *embedRate, Burst: 1})
	embedder := ingest.NewLimitedEmbedder(openai.NewClient(key), lim, fn.RetryOpts{
		MaxAttempts: 4,
		InitialWait: 2 * time.Second,
		MaxWait:     30 * time.Second,
		Jitter:      true,
	})

	total, failures := 0, 0
	for {
		if ctx.Err() != nil {
			break
		}

		candidates, err := store.SelectForBackfill(ctx, embedder.Dims(), *batch)
		if err != nil {
			log.Fatalf("select failed: %v", err)
		}
		if len(candidates) == 0 {
			break
		}
		if *dryRun {
			for _, c := range candidates {
				logger.Info("would backfill", "doc_path", c.DocPath)
			}
			log.Printf("dry run: %d candidates in first round", len(candidates))
			return
		}

		roundFailures := 0
		for _, c := range candidates {
			if ctx.Err() != nil {
				break
			}

			start := time.Now()
			embedding, err := embedder.Embed(ctx, ingest.Truncate(c.Content))
			mEmbedDur.Since(start)
			if err != nil {
				logger.Error("embed failed", "doc_path", c.DocPath, "error", err)
				mFailed.Inc()
				roundFailures++
				continue
			}

			tokens := domain.EstimateTokens(ingest.Truncate(c.Content))
			if err := store.UpdateEmbedding(ctx, c.ID, embedding, tokens); err != nil {
				logger.Error("update failed", "doc_path", c.DocPath, "error", err)
				mFailed.Inc()
				roundFailures++
				continue
			}
			mBackfilled.Inc()
			total++
		}

		failures += roundFailures
		logger.Info("round complete", "processed", len(candidates), "failed", roundFailures, "total", total)
		// Every candidate in this round failed; stop instead of spinning on
		// the same rows.
		if roundFailures == len(candidates) {
			break
		}
	}

	log.Printf("backfill done: %d re-embedded, %d failures", total, failures)
	if failures > 0 {
		os.Exit(1)
	}
}
