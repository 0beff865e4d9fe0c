package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/docvault/docvault/pkg/fn"
	"github.com/docvault/docvault/pkg/resilience"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"
)

const birdeyeBaseURL = "https://docs.birdeye.so"

// DefaultBirdEyeSlugs is the curated endpoint list. The docs site renders
// its navigation client-side, so discovery by crawling is not possible.
var DefaultBirdEyeSlugs = []string{
	// Core price endpoints
	"get-defi-price",
	"get-defi-multi_price",
	"post-defi-multi_price",
	"get-defi-historical_price_unix",
	"get-defi-history_price",
	"get-defi-price_volume-single",
	"post-defi-price_volume-multi",

	// Trading data endpoints
	"get-defi-txs-token",
	"get-defi-txs-pair",
	"get-defi-txs-token-seek_by_time",
	"get-defi-txs-pair-seek_by_time",
	"get-defi-v3-txs",
	"get-defi-v3-token-txs",
	"get-defi-v3-txs-recent",

	// OHLCV endpoints
	"get-defi-ohlcv",
	"get-defi-ohlcv-pair",
	"get-defi-ohlcv-base_quote",
	"get-defi-v3-ohlcv",
	"get-defi-v3-ohlcv-pair",

	// Token endpoints
	"get-defi-token_overview",
	"get-defi-token_security",
	"get-defi-token_creation_info",
	"get-defi-tokenlist",
	"get-defi-token_trending",
	"get-defi-v3-token-list",
	"get-defi-v3-token-list-scroll",
	"get-defi-v3-token-meta-data-single",
	"get-defi-v3-token-meta-data-multiple",
	"get-defi-v3-token-market-data",
	"get-defi-v3-token-market-data-multiple",
	"get-defi-v3-token-trade-data-single",
	"get-defi-v3-token-trade-data-multiple",

	// Wallet endpoints
	"get-trader-gainers-losers",
	"get-trader-txs-seek_by_time",
	"get-v1-wallet-balance_change",
	"get-v1-wallet-portfolio",
	"get-v1-wallet-token_balance",
	"get-v1-wallet-tx_list",
	"get-v1-wallet-net_worth",

	// Utility endpoints
	"get-defi-v3-search",
	"get-defi-networks",
	"get-v1-wallet-list_supported_chain",
}

// BirdEyeConfig configures the BirdEye scraper.
type BirdEyeConfig struct {
	BaseURL string   // defaults to https://docs.birdeye.so
	Slugs   []string // defaults to DefaultBirdEyeSlugs
	// Rate is requests per second against the docs site. The site is not
	// ours; default is deliberately slow (one request every 10s).
	Rate  float64
	Burst int
	// Retry overrides the per-endpoint retry policy when MaxAttempts > 0.
	Retry fn.RetryOpts
}

// BirdEyeScraper extracts API endpoint documentation through the docs
// site's dereference API, which returns the resolved OpenAPI document as
// JSON instead of a client-rendered page.
type BirdEyeScraper struct {
	cfg     BirdEyeConfig
	client  *http.Client
	limiter *rate.Limiter
	breaker *resilience.Breaker
}

// NewBirdEyeScraper creates a BirdEyeScraper with the given config.
func NewBirdEyeScraper(cfg BirdEyeConfig) *BirdEyeScraper {
	if cfg.BaseURL == "" {
		cfg.BaseURL = birdeyeBaseURL
	}
	if len(cfg.Slugs) == 0 {
		cfg.Slugs = DefaultBirdEyeSlugs
	}
	if cfg.Rate <= 0 {
		cfg.Rate = 0.1
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = fn.RetryOpts{
			MaxAttempts: 3,
			InitialWait: 5 * time.Second,
			MaxWait:     30 * time.Second,
			Jitter:      true,
		}
	}
	return &BirdEyeScraper{
		cfg: cfg,
		client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		limiter: rate.NewLimiter(rate.Limit(cfg.Rate), cfg.Burst),
		breaker: resilience.NewBreaker(resilience.BreakerOpts{
			FailThreshold: 5,
			Timeout:       2 * time.Minute,
		}),
	}
}

// dereference API response shapes. Only the fields we consume.
type birdeyeDereference struct {
	Data *birdeyeDereferenceData `json:"data"`
}

type birdeyeDereferenceData struct {
	Title   string          `json:"title"`
	API     *birdeyeAPIInfo `json:"api"`
	Content struct {
		Body string `json:"body"`
	} `json:"content"`
	Metadata map[string]any `json:"metadata"`
}

type birdeyeAPIInfo struct {
	Method string          `json:"method"`
	Path   string          `json:"path"`
	Schema json.RawMessage `json:"schema"`
}

// FetchAll extracts every configured endpoint, skipping ones that fail.
// It only returns an error when the context is cancelled or nothing at
// all could be extracted.
func (s *BirdEyeScraper) FetchAll(ctx context.Context) ([]ScrapedDoc, error) {
	docs := make([]ScrapedDoc, 0, len(s.cfg.Slugs))

	for i, slug := range s.cfg.Slugs {
		if err := s.limiter.Wait(ctx); err != nil {
			return docs, err
		}

		result := fn.Retry(ctx, s.cfg.Retry, func(ctx context.Context) fn.Result[ScrapedDoc] {
			return resilience.CallResult(s.breaker, ctx, func(ctx context.Context) fn.Result[ScrapedDoc] {
				return s.fetchEndpoint(ctx, slug)
			})
		})

		doc, err := result.Unwrap()
		if err != nil {
			slog.Warn("birdeye: endpoint skipped", "slug", slug, "error", err)
			continue
		}
		docs = append(docs, doc)
		slog.Info("birdeye: extracted", "slug", slug, "method", doc.Metadata.APIMethod, "path", doc.Metadata.APIPath, "progress", fmt.Sprintf("%d/%d", i+1, len(s.cfg.Slugs)))
	}

	if len(docs) == 0 {
		return nil, fmt.Errorf("birdeye: no endpoints extracted")
	}
	return docs, nil
}

// DereferenceURL returns the JSON API URL for an endpoint slug.
func (s *BirdEyeScraper) DereferenceURL(slug string) string {
	return fmt.Sprintf("%s/birdeyedotso/api-next/v2/branches/1.0/reference/%s?dereference=true&reduce=false", s.cfg.BaseURL, slug)
}

func (s *BirdEyeScraper) fetchEndpoint(ctx context.Context, slug string) fn.Result[ScrapedDoc] {
	req, err := http.NewRequestWithContext(ctx, "GET", s.DereferenceURL(slug), nil)
	if err != nil {
		return fn.Err[ScrapedDoc](err)
	}
	// Browser-like headers; identity encoding avoids Brotli responses.
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	req.Header.Set("Accept-Encoding", "identity")

	resp, err := s.client.Do(req)
	if err != nil {
		return fn.Errf[ScrapedDoc]("birdeye: fetch %s: %w", slug, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		io.Copy(io.Discard, resp.Body)
		return fn.Errf[ScrapedDoc]("birdeye: fetch %s: status %d", slug, resp.StatusCode)
	}

	var deref birdeyeDereference
	if err := json.NewDecoder(resp.Body).Decode(&deref); err != nil {
		return fn.Errf[ScrapedDoc]("birdeye: decode %s: %w", slug, err)
	}
	if deref.Data == nil {
		return fn.Errf[ScrapedDoc]("birdeye: %s: no data section in response", slug)
	}

	data := deref.Data
	title := data.Title
	if title == "" {
		title = "Unknown Endpoint"
	}

	method, path := "GET", "/unknown"
	var schema json.RawMessage
	if data.API != nil {
		if data.API.Method != "" {
			method = strings.ToUpper(data.API.Method)
		}
		if data.API.Path != "" {
			path = data.API.Path
		}
		schema = data.API.Schema
	}

	doc := ScrapedDoc{
		DocType:    "birdeye",
		SourceName: "birdeye-api",
		DocPath:    EndpointDocPath(method, path),
		Title:      title,
		Content:    buildEndpointContent(title, method, path, data.Content.Body, schema, data.Metadata),
		ScrapedAt:  time.Now().UTC(),
		Metadata: Metadata{
			SourceURL:   s.cfg.BaseURL + "/reference/" + slug,
			APIMethod:   method,
			APIPath:     path,
			Title:       title,
			ExtractedAt: time.Now().UTC(),
		},
	}
	return fn.Ok(doc)
}

// EndpointDocPath derives the uniqueness key for an API endpoint document:
// lowercased method followed by the path with slashes folded to underscores,
// e.g. GET /defi/price -> get_defi_price.
func EndpointDocPath(method, path string) string {
	return strings.ToLower(method) + strings.ReplaceAll(path, "/", "_")
}

// buildEndpointContent assembles the markdown document stored and embedded
// for one endpoint.
func buildEndpointContent(title, method, path, body string, schema json.RawMessage, meta map[string]any) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n", title)
	fmt.Fprintf(&b, "**Method:** %s\n", method)
	fmt.Fprintf(&b, "**Path:** %s\n\n", path)

	if body != "" {
		fmt.Fprintf(&b, "**Description:**\n%s\n\n", body)
	}

	if len(schema) > 0 {
		pretty, err := prettyJSON(schema)
		if err == nil {
			b.WriteString("## OpenAPI Specification\n```json\n")
			b.WriteString(pretty)
			b.WriteString("\n```\n\n")
		}
	}

	if len(meta) > 0 {
		var lines []string
		for k, v := range meta {
			if v == nil || v == "" {
				continue
			}
			lines = append(lines, fmt.Sprintf("**%s:** %v", titleCase(k), v))
		}
		if len(lines) > 0 {
			b.WriteString("## Metadata\n")
			// Deterministic order for stable content hashes.
			sort.Strings(lines)
			b.WriteString(strings.Join(lines, "\n"))
			b.WriteString("\n")
		}
	}

	return strings.TrimRight(b.String(), "\n") + "\n"
}

func prettyJSON(raw json.RawMessage) (string, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", err
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

