package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newFakeAPI(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient("test-key", WithBaseURL(srv.URL), WithModel("text-embedding-3-large", 3))
	return c, srv
}

func TestEmbedSingle(t *testing.T) {
	c, _ := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("missing bearer auth, got %q", auth)
		}
		var req embedRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Model != "text-embedding-3-large" || req.EncodingFormat != "float" {
			t.Errorf("unexpected request: %+v", req)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"index": 0, "embedding": []float32{0.1, 0.2, 0.3}},
			},
		})
	})

	vec, err := c.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(vec) != 3 || vec[0] != 0.1 {
		t.Fatalf("unexpected vector: %v", vec)
	}
}

func TestEmbedBatchOrdering(t *testing.T) {
	c, _ := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		var req embedRequest
		json.NewDecoder(r.Body).Decode(&req)
		// Return embeddings out of order; the client must place by index.
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"index": 1, "embedding": []float32{2}},
				{"index": 0, "embedding": []float32{1}},
			},
		})
	})

	vecs, err := c.EmbedBatch(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("embed batch: %v", err)
	}
	if vecs[0][0] != 1 || vecs[1][0] != 2 {
		t.Fatalf("embeddings not ordered by index: %v", vecs)
	}
}

func TestEmbedBatchEmpty(t *testing.T) {
	c := NewClient("k")
	vecs, err := c.EmbedBatch(context.Background(), nil)
	if err != nil || vecs != nil {
		t.Fatalf("empty batch should be a no-op, got %v %v", vecs, err)
	}
}

func TestEmbedAPIError(t *testing.T) {
	c, _ := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(429)
		w.Write([]byte(`{"error":{"message":"rate limit exceeded"}}`))
	})

	_, err := c.Embed(context.Background(), "hello")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "429") || !strings.Contains(err.Error(), "rate limit exceeded") {
		t.Fatalf("error should carry status and body: %v", err)
	}
}

func TestEmbedCountMismatch(t *testing.T) {
	c, _ := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"data": []map[string]any{}})
	})

	_, err := c.Embed(context.Background(), "hello")
	if err == nil || !strings.Contains(err.Error(), "0 embeddings for 1 inputs") {
		t.Fatalf("expected count mismatch error, got %v", err)
	}
}

func TestDims(t *testing.T) {
	if NewClient("k").Dims() != DefaultDims {
		t.Fatal("default dims should match model")
	}
	if NewClient("k", WithModel("small", 1536)).Dims() != 1536 {
		t.Fatal("WithModel should set dims")
	}
}
