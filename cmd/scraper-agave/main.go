// Command scraper-agave walks a local Agave checkout and emits its
// documentation files as scraped documents, to NATS or as JSON lines.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"

	"github.com/docvault/docvault/engine/ingest"
	"github.com/docvault/docvault/engine/scraper"
	"github.com/docvault/docvault/pkg/metrics"
	"github.com/docvault/docvault/pkg/natsutil"
)

var met = metrics.New()

var (
	mDocsScraped = met.Counter("docvault_agave_docs_scraped_total", "Files collected")
	mScrapeDur   = met.Histogram("docvault_agave_scrape_duration_seconds", "Full walk time", nil)
)

func main() {
	_ = godotenv.Load()

	var (
		repo        = flag.String("repo", "", "path to the Agave checkout (required)")
		source      = flag.String("source", "", "source name override")
		natsURL     = flag.String("nats", "", "NATS URL; when set, docs are published instead of written")
		subject     = flag.String("subject", ingest.IngestSubject, "NATS subject to publish to")
		out         = flag.String("out", "-", "output file for JSON lines (- for stdout)")
		metricsPort = flag.Int("metrics-port", 9094, "metrics port")
	)
	flag.Parse()

	if *repo == "" {
		log.Fatal("-repo is required")
	}

	met.CollectRuntime("docvault_agave", 15*time.Second)
	met.ServeAsync(*metricsPort)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	s := scraper.NewAgaveScraper(scraper.AgaveConfig{
		RepoPath:   *repo,
		SourceName: *source,
	})

	start := time.Now()
	docs, err := s.FetchAll(ctx)
	if err != nil {
		log.Fatalf("walk failed: %v", err)
	}
	mScrapeDur.Since(start)
	mDocsScraped.Add(int64(len(docs)))
	log.Printf("collected %d files in %s", len(docs), time.Since(start).Round(time.Millisecond))

	if *natsURL != "" {
		if err := publish(ctx, *natsURL, *subject, docs); err != nil {
			log.Fatalf("publish failed: %v", err)
		}
		return
	}
	if err := writeJSONLines(*out, docs); err != nil {
		log.Fatalf("write failed: %v", err)
	}
}

func publish(ctx context.Context, url, subject string, docs []scraper.ScrapedDoc) error {
	nc, err := nats.Connect(url)
	if err != nil {
		return err
	}
	defer nc.Drain()

	for _, doc := range docs {
		if err := natsutil.Publish(ctx, nc, subject, doc); err != nil {
			return err
		}
	}
	log.Printf("published %d docs to %s", len(docs), subject)
	return nil
}

func writeJSONLines(out string, docs []scraper.ScrapedDoc) error {
	w := os.Stdout
	if out != "-" {
		f, err := os.Create(out)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}

	enc := json.NewEncoder(w)
	for _, doc := range docs {
		if err := enc.Encode(doc); err != nil {
			return err
		}
	}
	return nil
}
