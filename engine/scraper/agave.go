package scraper

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// AgaveConfig configures the repository file scraper.
type AgaveConfig struct {
	// RepoPath is the local checkout of the Agave repository.
	RepoPath string
	// SourceName identifies this source in storage. Defaults to "Solana Agave".
	SourceName string
}

// AgaveScraper walks a local Agave checkout and collects documentation
// files: markdown, bob/msc diagram sources, and PDFs.
type AgaveScraper struct {
	cfg AgaveConfig
}

// NewAgaveScraper creates an AgaveScraper for the given checkout.
func NewAgaveScraper(cfg AgaveConfig) *AgaveScraper {
	if cfg.SourceName == "" {
		cfg.SourceName = "Solana Agave"
	}
	return &AgaveScraper{cfg: cfg}
}

var agaveExtensions = map[string]bool{
	".md":  true,
	".mdx": true,
	".bob": true,
	".msc": true,
	".pdf": true,
}

var agaveSkipDirs = map[string]bool{
	"node_modules": true,
	".git":         true,
	"target":       true,
	"build":        true,
	"dist":         true,
}

var agaveSkipFiles = map[string]bool{
	"CODEOWNERS": true,
	"NOTICE":     true,
}

// FetchAll walks the repository and returns one ScrapedDoc per collected
// file. Unreadable files are logged and skipped.
func (s *AgaveScraper) FetchAll(ctx context.Context) ([]ScrapedDoc, error) {
	info, err := os.Stat(s.cfg.RepoPath)
	if err != nil {
		return nil, fmt.Errorf("agave: repo path: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("agave: repo path %s is not a directory", s.cfg.RepoPath)
	}

	var docs []ScrapedDoc
	err = filepath.WalkDir(s.cfg.RepoPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if agaveSkipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if agaveSkipFiles[d.Name()] {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(d.Name()))
		if !agaveExtensions[ext] {
			return nil
		}

		doc, err := s.collect(path, ext)
		if err != nil {
			slog.Warn("agave: file skipped", "path", path, "error", err)
			return nil
		}
		docs = append(docs, doc)
		return nil
	})
	if err != nil {
		return docs, fmt.Errorf("agave: walk: %w", err)
	}

	slog.Info("agave: walk complete", "files", len(docs))
	return docs, nil
}

func (s *AgaveScraper) collect(path, ext string) (ScrapedDoc, error) {
	rel, err := filepath.Rel(s.cfg.RepoPath, path)
	if err != nil {
		return ScrapedDoc{}, err
	}
	rel = filepath.ToSlash(rel)

	info, err := os.Stat(path)
	if err != nil {
		return ScrapedDoc{}, err
	}

	var content string
	switch ext {
	case ".pdf":
		content, err = ExtractPDFText(path)
		if err != nil {
			return ScrapedDoc{}, fmt.Errorf("pdf extract: %w", err)
		}
	case ".bob", ".msc":
		raw, err := os.ReadFile(path)
		if err != nil {
			return ScrapedDoc{}, err
		}
		content = wrapDiagram(rel, ext, string(raw))
	default:
		raw, err := os.ReadFile(path)
		if err != nil {
			return ScrapedDoc{}, err
		}
		content = cleanMarkdown(string(raw))
	}

	if strings.TrimSpace(content) == "" {
		return ScrapedDoc{}, fmt.Errorf("empty after extraction")
	}

	sourceType := map[string]string{
		".bob": "bob_diagram",
		".msc": "msc_chart",
		".pdf": "pdf",
	}[ext]
	if sourceType == "" {
		sourceType = "markdown"
	}

	now := time.Now().UTC()
	return ScrapedDoc{
		DocType:    "solana",
		SourceName: s.cfg.SourceName,
		DocPath:    rel,
		Title:      titleFor(rel, content),
		Content:    content,
		ScrapedAt:  now,
		Metadata: Metadata{
			SourceType:  sourceType,
			FilePath:    rel,
			FileSize:    info.Size(),
			Category:    categoryFor(rel, ext),
			Repository:  "anza-xyz/agave",
			Title:       titleFor(rel, content),
			ExtractedAt: now,
		},
	}, nil
}

// wrapDiagram frames an ASCII diagram source in a markdown document so the
// embedding carries what the diagram depicts and where it lives.
func wrapDiagram(rel, ext, body string) string {
	kind := "Block Diagram"
	if ext == ".msc" {
		kind = "Sequence Diagram"
	}
	name := strings.TrimSuffix(filepath.Base(rel), ext)
	return fmt.Sprintf("# %s (%s)\n\nSource file: %s\n\n```\n%s\n```\n", name, kind, rel, strings.TrimRight(body, "\n"))
}

// cleanMarkdown normalises line endings and collapses runs of blank lines.
func cleanMarkdown(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	for strings.Contains(s, "\n\n\n") {
		s = strings.ReplaceAll(s, "\n\n\n", "\n\n")
	}
	return strings.TrimSpace(s) + "\n"
}

// titleFor returns the first level-1 or level-2 markdown heading, falling
// back to a name derived from the file path. A README takes its parent
// directory's name.
func titleFor(rel, content string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if h, ok := strings.CutPrefix(line, "# "); ok {
			return strings.TrimSpace(h)
		}
		if h, ok := strings.CutPrefix(line, "## "); ok {
			return strings.TrimSpace(h)
		}
	}

	base := filepath.Base(rel)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	if strings.EqualFold(name, "README") {
		dir := filepath.Base(filepath.Dir(rel))
		if dir != "." && dir != "/" {
			return dir
		}
	}
	return name
}

// categoryFor buckets a repository file by its path for later filtering.
func categoryFor(rel, ext string) string {
	switch ext {
	case ".bob":
		return "architecture-diagrams"
	case ".msc":
		return "sequence-diagrams"
	}

	parts := strings.Split(rel, "/")
	top := parts[0]

	switch {
	case strings.HasPrefix(rel, "docs/src/consensus"):
		return "consensus"
	case strings.HasPrefix(rel, "docs/src/cli"):
		return "cli"
	case strings.HasPrefix(rel, "docs/src/validator"):
		return "validator"
	case strings.HasPrefix(rel, "docs/src/runtime"):
		return "runtime"
	case strings.HasPrefix(rel, "docs/src/proposals"):
		return "proposals"
	case strings.HasPrefix(rel, "docs/src/operations"):
		return "operations"
	case strings.HasPrefix(rel, "docs/"):
		return "core-docs"
	case len(parts) == 1:
		return "project-root"
	default:
		return "module-" + top
	}
}
