// Command ingest embeds scraped documents and upserts them into Postgres.
// It either drains JSON-lines files from a directory (one-shot) or
// consumes a NATS subject until interrupted.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"

	"github.com/docvault/docvault/engine/docstore"
	"github.com/docvault/docvault/engine/ingest"
	"github.com/docvault/docvault/engine/scraper"
	"github.com/docvault/docvault/pkg/fn"
	"github.com/docvault/docvault/pkg/metrics"
	"github.com/docvault/docvault/pkg/ollama"
	"github.com/docvault/docvault/pkg/openai"
	"github.com/docvault/docvault/pkg/resilience"
)

var met = metrics.New()

func main() {
	_ = godotenv.Load()

	var (
		dsn           = flag.String("dsn", os.Getenv("DATABASE_URL"), "Postgres DSN")
		dir           = flag.String("dir", "", "directory of JSON-lines files to ingest (one-shot)")
		natsURL       = flag.String("nats", "", "NATS URL; when set, runs as a consumer")
		embedderKind  = flag.String("embedder", "openai", "embedder: openai or ollama")
		model         = flag.String("model", "", "embedding model override")
		dims          = flag.Int("dims", 0, "embedding dimensions override")
		ollamaURL     = flag.String("ollama", "http://localhost:11434", "Ollama base URL")
		embedRate     = flag.Float64("embed-rate", 2, "embedding requests per second")
		skipUnchanged = flag.Bool("skip-unchanged", true, "skip re-embedding unchanged documents")
		migrate       = flag.Bool("migrate", true, "run schema migration on startup")
		metricsPort   = flag.Int("metrics-port", 9091, "metrics port")
	)
	flag.Parse()

	if *dsn == "" {
		log.Fatal("-dsn or DATABASE_URL is required")
	}
	if *dir == "" && *natsURL == "" {
		log.Fatal("one of -dir or -nats is required")
	}

	met.CollectRuntime("docvault_ingest", 15*time.Second)
	met.ServeAsync(*metricsPort)

	logger := slog.Default()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	store, err := docstore.New(ctx, *dsn)
	if err != nil {
		log.Fatalf("postgres connect failed: %v", err)
	}
	defer store.Close()
	if *migrate {
		if err := store.Migrate(ctx); err != nil {
			log.Fatalf("migration failed: %v", err)
		}
		logger.Info("schema ready")
	}

	embedder := buildEmbedder(*embedderKind, *model, *dims, *ollamaURL, *embedRate)
	logger.Info("embedder ready", "kind", *embedderKind, "dims", embedder.Dims())

	deps := ingest.Deps{
		Embedder:      embedder,
		Store:         store,
		Logger:        logger,
		Metrics:       met,
		SkipUnchanged: *skipUnchanged,
	}

	if *natsURL != "" {
		runConsumer(ctx, *natsURL, deps)
		return
	}
	runDir(ctx, *dir, deps)
}

func buildEmbedder(kind, model string, dims int, ollamaURL string, rate float64) ingest.Embedder {
	var inner ingest.Embedder
	switch kind {
	case "openai":
		key := os.Getenv("OPENAI_API_KEY")
		if key == "" {
			log.Fatal("OPENAI_API_KEY is required for the openai embedder")
		}
		var opts []openai.Option
		if model != "" {
			if dims <= 0 {
				log.Fatal("-dims is required with -model")
			}
			opts = append(opts, openai.WithModel(model, dims))
		}
		inner = openai.NewClient(key, opts...)
	case "ollama":
		if model == "" {
			model = "nomic-embed-text"
		}
		if dims <= 0 {
			dims = ollama.DefaultDims
		}
		inner = ollama.NewEmbedClient(ollamaURL, model, dims)
	default:
		log.Fatalf("unknown embedder %q", kind)
	}

	lim := resilience.NewLimiter(resilience.LimiterOpts{Rate: rate, Burst: 1})
	return ingest.NewLimitedEmbedder(inner, lim, fn.RetryOpts{
		MaxAttempts: 4,
		InitialWait: 2 * time.Second,
		MaxWait:     30 * time.Second,
		Jitter:      true,
	})
}

func runConsumer(ctx context.Context, url string, deps ingest.Deps) {
	nc, err := nats.Connect(url)
	if err != nil {
		log.Fatalf("nats connect failed: %v", err)
	}
	defer nc.Drain()

	sub, err := ingest.StartConsumer(nc, deps)
	if err != nil {
		log.Fatalf("subscribe failed: %v", err)
	}
	defer sub.Unsubscribe()

	log.Printf("consuming %s", ingest.IngestSubject)
	<-ctx.Done()
	log.Print("shutting down")
}

func runDir(ctx context.Context, dir string, deps ingest.Deps) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		log.Fatalf("readdir failed: %v", err)
	}

	var docs []scraper.ScrapedDoc
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") || e.Name()[0] == '.' {
			continue
		}
		fileDocs, err := readJSONLines(filepath.Join(dir, e.Name()))
		if err != nil {
			log.Fatalf("read %s failed: %v", e.Name(), err)
		}
		docs = append(docs, fileDocs...)
	}
	if len(docs) == 0 {
		log.Fatalf("no documents found in %s", dir)
	}
	log.Printf("ingesting %d documents", len(docs))

	start := time.Now()
	res, err := ingest.RunBatch(ctx, deps, docs)
	if err != nil {
		log.Fatalf("batch aborted: %v", err)
	}
	log.Printf("done in %s: stored=%d skipped=%d failed=%d",
		time.Since(start).Round(time.Second), res.Stored, res.Skipped, res.Failed)
	if res.Failed > 0 {
		os.Exit(1)
	}
}

func readJSONLines(path string) ([]scraper.ScrapedDoc, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var docs []scraper.ScrapedDoc
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var doc scraper.ScrapedDoc
		if err := json.Unmarshal([]byte(line), &doc); err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, sc.Err()
}
