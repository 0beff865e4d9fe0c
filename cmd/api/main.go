// Command api serves similarity search over the document store.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/docvault/docvault/engine/docstore"
	"github.com/docvault/docvault/engine/domain"
	"github.com/docvault/docvault/engine/ingest"
	"github.com/docvault/docvault/pkg/metrics"
	"github.com/docvault/docvault/pkg/mid"
	"github.com/docvault/docvault/pkg/openai"
)

var met = metrics.New()

var (
	mSearches  = met.Counter("docvault_api_searches_total", "Search requests served")
	mSearchDur = met.Histogram("docvault_api_search_duration_seconds", "Search latency", nil)
)

type server struct {
	store    *docstore.Store
	embedder ingest.Embedder
	log      *slog.Logger
}

type searchRequest struct {
	Query   string `json:"query"`
	DocType string `json:"doc_type,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}

type searchResponse struct {
	Query   string                  `json:"query"`
	Results []docstore.SearchResult `json:"results"`
}

func main() {
	_ = godotenv.Load()

	var (
		dsn  = flag.String("dsn", os.Getenv("DATABASE_URL"), "Postgres DSN")
		port = flag.Int("port", 8080, "HTTP port")
	)
	flag.Parse()

	if *dsn == "" {
		log.Fatal("-dsn or DATABASE_URL is required")
	}
	key := os.Getenv("OPENAI_API_KEY")
	if key == "" {
		log.Fatal("OPENAI_API_KEY is required")
	}

	met.CollectRuntime("docvault_api", 15*time.Second)

	logger := slog.Default()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	store, err := docstore.New(ctx, *dsn)
	if err != nil {
		log.Fatalf("postgres connect failed: %v", err)
	}
	defer store.Close()

	srv := &server{
		store:    store,
		embedder: openai.NewClient(key),
		log:      logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /search", srv.handleSearch)
	mux.HandleFunc("GET /healthz", srv.handleHealthz)
	mux.Handle("GET /metrics", met.Handler())

	handler := mid.Chain(mux,
		mid.RequestID(),
		mid.Logger(logger),
		mid.Recover(logger),
		mid.OTel("docvault-api"),
	)

	httpSrv := &http.Server{
		Addr:              ":" + strconv.Itoa(*port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		httpSrv.Shutdown(shutdownCtx)
	}()

	logger.Info("api listening", "port", *port)
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("serve failed: %v", err)
	}
}

func (s *server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.Query == "" {
		http.Error(w, "query is required", http.StatusBadRequest)
		return
	}
	if req.DocType != "" && !domain.ValidDocTypes[domain.DocType(req.DocType)] {
		http.Error(w, "unknown doc_type", http.StatusBadRequest)
		return
	}

	start := time.Now()
	embedding, err := s.embedder.Embed(r.Context(), req.Query)
	if err != nil {
		s.log.Error("api: embed failed", "error", err, "request_id", mid.GetRequestID(r.Context()))
		http.Error(w, "embedding failed", http.StatusBadGateway)
		return
	}

	results, err := s.store.Search(r.Context(), embedding, domain.DocType(req.DocType), req.Limit)
	if err != nil {
		s.log.Error("api: search failed", "error", err, "request_id", mid.GetRequestID(r.Context()))
		http.Error(w, "search failed", http.StatusInternalServerError)
		return
	}
	mSearches.Inc()
	mSearchDur.Since(start)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(searchResponse{Query: req.Query, Results: results})
}

func (s *server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		http.Error(w, "database unreachable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
