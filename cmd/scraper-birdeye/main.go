// Command scraper-birdeye extracts BirdEye API endpoint documentation and
// either publishes it to NATS or writes it as JSON lines.
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
	mDocsScraped = met.Counter("docvault_birdeye_docs_scraped_total", "Endpoints extracted")
	mScrapeDur   = met.Histogram("docvault_birdeye_scrape_duration_seconds", "Full scrape time", nil)
)

func main() {
	_ = godotenv.Load()

	var (
		natsURL     = flag.String("nats", "", "NATS URL; when set, docs are published instead of written")
		subject     = flag.String("subject", ingest.IngestSubject, "NATS subject to publish to")
		out         = flag.String("out", "-", "output file for JSON lines (- for stdout)")
		baseURL     = flag.String("base", "", "docs site base URL override")
		rps         = flag.Float64("rate", 0.1, "requests per second against the docs site")
		metricsPort = flag.Int("metrics-port", 9093, "metrics port")
	)
	flag.Parse()

	met.CollectRuntime("docvault_birdeye", 15*time.Second)
	met.ServeAsync(*metricsPort)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	s := scraper.NewBirdEyeScraper(scraper.BirdEyeConfig{
		BaseURL: *baseURL,
		Rate:    *rps,
	})

	start := time.Now()
	docs, err := s.FetchAll(ctx)
	if err != nil {
		log.Fatalf("scrape failed: %v", err)
	}
	mScrapeDur.Since(start)
	mDocsScraped.Add(int64(len(docs)))
	log.Printf("extracted %d endpoints in %s", len(docs), time.Since(start).Round(time.Second))

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
