package scraper

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func fakeRepo(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, root, "README.md", "# Agave\n\nValidator client.\n")
	writeFile(t, root, "docs/src/consensus/tower-bft.md", "# Tower BFT\n\nFork choice.\n")
	writeFile(t, root, "docs/src/cli/install.md", "## Install the CLI\n\nSteps.\n")
	writeFile(t, root, "runtime/README.md", "No heading here, just prose.\n")
	writeFile(t, root, "gossip/diagrams/cluster.bob", "+----+\n|node|\n+----+\n")
	writeFile(t, root, "validator/flow.msc", "msc { a=>b; }\n")
	writeFile(t, root, "node_modules/pkg/README.md", "# Should be skipped\n")
	writeFile(t, root, "target/debug/notes.md", "# Build output\n")
	writeFile(t, root, "CODEOWNERS", "* @someone\n")
	writeFile(t, root, "core/src/lib.rs", "// not a doc file\n")
	writeFile(t, root, "docs/empty.md", "   \n")
	return root
}

func docsByPath(docs []ScrapedDoc) map[string]ScrapedDoc {
	m := make(map[string]ScrapedDoc, len(docs))
	for _, d := range docs {
		m[d.DocPath] = d
	}
	return m
}

func TestAgaveFetchAll(t *testing.T) {
	s := NewAgaveScraper(AgaveConfig{RepoPath: fakeRepo(t)})
	docs, err := s.FetchAll(context.Background())
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}

	byPath := docsByPath(docs)
	wantPaths := []string{
		"README.md",
		"docs/src/consensus/tower-bft.md",
		"docs/src/cli/install.md",
		"runtime/README.md",
		"gossip/diagrams/cluster.bob",
		"validator/flow.msc",
	}
	if len(docs) != len(wantPaths) {
		t.Fatalf("expected %d docs, got %d: %v", len(wantPaths), len(docs), keysOf(byPath))
	}
	for _, p := range wantPaths {
		if _, ok := byPath[p]; !ok {
			t.Errorf("missing doc for %s", p)
		}
	}
	for _, skipped := range []string{"node_modules/pkg/README.md", "target/debug/notes.md", "CODEOWNERS", "docs/empty.md"} {
		if _, ok := byPath[skipped]; ok {
			t.Errorf("%s should have been skipped", skipped)
		}
	}

	for _, d := range docs {
		if d.DocType != "solana" || d.SourceName != "Solana Agave" {
			t.Errorf("identity fields wrong for %s: %+v", d.DocPath, d)
		}
	}
}

func TestAgaveTitles(t *testing.T) {
	s := NewAgaveScraper(AgaveConfig{RepoPath: fakeRepo(t)})
	docs, err := s.FetchAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	byPath := docsByPath(docs)

	tests := []struct {
		path, want string
	}{
		{"docs/src/consensus/tower-bft.md", "Tower BFT"},
		{"docs/src/cli/install.md", "Install the CLI"},
		{"runtime/README.md", "runtime"}, // no heading, README falls back to parent dir
		{"README.md", "Agave"},
	}
	for _, tt := range tests {
		if got := byPath[tt.path].Title; got != tt.want {
			t.Errorf("title for %s = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestAgaveCategories(t *testing.T) {
	s := NewAgaveScraper(AgaveConfig{RepoPath: fakeRepo(t)})
	docs, err := s.FetchAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	byPath := docsByPath(docs)

	tests := []struct {
		path, want string
	}{
		{"docs/src/consensus/tower-bft.md", "consensus"},
		{"docs/src/cli/install.md", "cli"},
		{"README.md", "project-root"},
		{"runtime/README.md", "module-runtime"},
		{"gossip/diagrams/cluster.bob", "architecture-diagrams"},
		{"validator/flow.msc", "sequence-diagrams"},
	}
	for _, tt := range tests {
		if got := byPath[tt.path].Metadata.Category; got != tt.want {
			t.Errorf("category for %s = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestAgaveFetchAll_BadPath(t *testing.T) {
	s := NewAgaveScraper(AgaveConfig{RepoPath: filepath.Join(t.TempDir(), "missing")})
	if _, err := s.FetchAll(context.Background()); err == nil {
		t.Fatal("expected error for missing repo path")
	}
}

func TestCleanMarkdown(t *testing.T) {
	in := "# Title\r\n\r\n\r\n\r\nBody\n\n\n\nMore\n"
	want := "# Title\n\nBody\n\nMore\n"
	if got := cleanMarkdown(in); got != want {
		t.Errorf("cleanMarkdown = %q, want %q", got, want)
	}
}

func keysOf(m map[string]ScrapedDoc) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
