package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestCounter(t *testing.T) {
	r := New()
	c := r.Counter("docvault_docs_total", "Total docs")
	c.Inc()
	c.Add(4)
	if c.Value() != 5 {
		t.Fatalf("expected 5, got %d", c.Value())
	}
	// Same name returns the same counter.
	if r.Counter("docvault_docs_total", "") != c {
		t.Fatal("counter should be reused by name")
	}
}

func TestGauge(t *testing.T) {
	r := New()
	g := r.Gauge("docvault_queue_depth", "Queue depth")
	g.Set(10)
	g.Inc()
	g.Dec()
	g.Dec()
	if g.Value() != 9 {
		t.Fatalf("expected 9, got %d", g.Value())
	}
}

func TestHistogramObserve(t *testing.T) {
	r := New()
	h := r.Histogram("docvault_embed_seconds", "Embed time", []float64{0.1, 1, 10})
	h.Observe(0.05)
	h.Observe(0.5)
	h.Observe(5)
	h.Observe(50) // above all buckets, only counted in +Inf

	out := r.Render()
	if !strings.Contains(out, `docvault_embed_seconds_bucket{le="0.1"} 1`) {
		t.Errorf("missing 0.1 bucket line:\n%s", out)
	}
	if !strings.Contains(out, `docvault_embed_seconds_bucket{le="10"} 3`) {
		t.Errorf("buckets should be cumulative:\n%s", out)
	}
	if !strings.Contains(out, `docvault_embed_seconds_bucket{le="+Inf"} 4`) {
		t.Errorf("missing +Inf bucket:\n%s", out)
	}
	if !strings.Contains(out, "docvault_embed_seconds_count 4") {
		t.Errorf("missing count:\n%s", out)
	}
}

func TestWithLabels(t *testing.T) {
	name := WithLabels("docvault_docs_total", "source", "birdeye-api")
	if name != `docvault_docs_total{source="birdeye-api"}` {
		t.Fatalf("unexpected name: %s", name)
	}
	// Odd kv count falls back to the bare name.
	if WithLabels("x", "only-key") != "x" {
		t.Fatal("odd label count should return base name")
	}
}

func TestRenderLabeledCounters(t *testing.T) {
	r := New()
	r.Counter(WithLabels("docs_total", "source", "a"), "Docs by source").Add(2)
	r.Counter(WithLabels("docs_total", "source", "b"), "").Add(3)

	out := r.Render()
	if !strings.Contains(out, "# TYPE docs_total counter") {
		t.Errorf("missing TYPE line:\n%s", out)
	}
	if !strings.Contains(out, `docs_total{source="a"} 2`) || !strings.Contains(out, `docs_total{source="b"} 3`) {
		t.Errorf("missing labeled series:\n%s", out)
	}
	// TYPE must be emitted once for the shared base name.
	if strings.Count(out, "# TYPE docs_total") != 1 {
		t.Errorf("TYPE emitted more than once:\n%s", out)
	}
}

func TestHandler(t *testing.T) {
	r := New()
	r.Counter("up", "").Inc()

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("unexpected content type %s", ct)
	}
}

func TestHistogramSince(t *testing.T) {
	r := New()
	h := r.Histogram("dur", "", nil)
	h.Since(time.Now().Add(-time.Millisecond))
	_, _, _, count := h.snapshot()
	if count != 1 {
		t.Fatalf("expected one observation, got %d", count)
	}
}
