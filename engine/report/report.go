// Package report runs integrity checks against the document store and
// renders them as a text report. A failed required check makes the whole
// report fail; cmd/validate turns that into a non-zero exit.
package report

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/docvault/docvault/engine/docstore"
	"github.com/docvault/docvault/engine/domain"
)

// Checker is the slice of docstore the report needs.
type Checker interface {
	TableColumns(ctx context.Context) ([]docstore.ColumnInfo, error)
	EnumValues(ctx context.Context) ([]string, error)
	CountsByType(ctx context.Context) ([]docstore.TypeCount, error)
	EmbeddingCoverage(ctx context.Context) (docstore.Coverage, error)
	DuplicateKeys(ctx context.Context) ([]docstore.DuplicateKey, error)
	RecentSamples(ctx context.Context, n int) ([]docstore.Sample, error)
	SearchProbe(ctx context.Context) (bool, string, error)
	ListSources(ctx context.Context) ([]docstore.SourceStats, error)
}

// Check is one named result.
type Check struct {
	Name     string
	Passed   bool
	Required bool
	Details  []string
}

// Report is the full set of check results.
type Report struct {
	Checks []Check
}

// Passed reports whether every required check passed.
func (r Report) Passed() bool {
	for _, c := range r.Checks {
		if c.Required && !c.Passed {
			return false
		}
	}
	return true
}

// requiredColumns of the documents table.
var requiredColumns = []string{
	"id", "doc_type", "source_name", "doc_path", "content",
	"metadata", "embedding", "token_count", "created_at", "updated_at",
}

// Opts tunes the report.
type Opts struct {
	// WantDims is the expected embedding dimension. Defaults to 3072.
	WantDims int
	// Samples is how many recent documents to excerpt. Defaults to 3.
	Samples int
}

// Run executes every check. Query errors fail the corresponding check
// rather than aborting the report.
func Run(ctx context.Context, c Checker, opts Opts) Report {
	if opts.WantDims <= 0 {
		opts.WantDims = 3072
	}
	if opts.Samples <= 0 {
		opts.Samples = 3
	}

	var r Report
	r.Checks = append(r.Checks, checkColumns(ctx, c))
	r.Checks = append(r.Checks, checkEnum(ctx, c))
	r.Checks = append(r.Checks, checkCounts(ctx, c))
	r.Checks = append(r.Checks, checkCoverage(ctx, c, opts.WantDims))
	r.Checks = append(r.Checks, checkDuplicates(ctx, c))
	r.Checks = append(r.Checks, checkSamples(ctx, c, opts.Samples))
	r.Checks = append(r.Checks, checkSearch(ctx, c))
	r.Checks = append(r.Checks, checkSources(ctx, c))
	return r
}

func failed(name string, required bool, err error) Check {
	return Check{Name: name, Required: required, Details: []string{"query failed: " + err.Error()}}
}

func checkColumns(ctx context.Context, c Checker) Check {
	check := Check{Name: "documents table structure", Required: true}
	cols, err := c.TableColumns(ctx)
	if err != nil {
		return failed(check.Name, true, err)
	}

	present := map[string]bool{}
	for _, col := range cols {
		present[col.Name] = true
		check.Details = append(check.Details, fmt.Sprintf("%s (%s, nullable=%t)", col.Name, col.DataType, col.Nullable))
	}

	check.Passed = true
	for _, want := range requiredColumns {
		if !present[want] {
			check.Passed = false
			check.Details = append(check.Details, "MISSING column: "+want)
		}
	}
	return check
}

func checkEnum(ctx context.Context, c Checker) Check {
	check := Check{Name: "doc_type enum values", Required: true}
	labels, err := c.EnumValues(ctx)
	if err != nil {
		return failed(check.Name, true, err)
	}

	have := map[string]bool{}
	for _, l := range labels {
		have[l] = true
	}
	check.Details = append(check.Details, strings.Join(labels, ", "))

	check.Passed = true
	for dt := range domain.ValidDocTypes {
		if !have[string(dt)] {
			check.Passed = false
			check.Details = append(check.Details, "MISSING enum value: "+string(dt))
		}
	}
	return check
}

func checkCounts(ctx context.Context, c Checker) Check {
	check := Check{Name: "documents by type", Required: false}
	counts, err := c.CountsByType(ctx)
	if err != nil {
		return failed(check.Name, false, err)
	}

	total := 0
	for _, tc := range counts {
		total += tc.Count
		check.Details = append(check.Details, fmt.Sprintf("%s: %d", tc.DocType, tc.Count))
	}
	check.Details = append(check.Details, fmt.Sprintf("total: %d", total))
	check.Passed = true
	return check
}

func checkCoverage(ctx context.Context, c Checker, wantDims int) Check {
	check := Check{Name: "embedding coverage", Required: true}
	cov, err := c.EmbeddingCoverage(ctx)
	if err != nil {
		return failed(check.Name, true, err)
	}

	pct := 0.0
	if cov.Total > 0 {
		pct = 100 * float64(cov.Embedded) / float64(cov.Total)
	}
	check.Details = append(check.Details,
		fmt.Sprintf("%d/%d embedded (%.1f%%)", cov.Embedded, cov.Total, pct))

	check.Passed = true
	if cov.Embedded > 0 {
		check.Details = append(check.Details, fmt.Sprintf("dimension: %d (want %d)", cov.SampleDim, wantDims))
		if cov.SampleDim != wantDims {
			check.Passed = false
		}
	}
	return check
}

func checkDuplicates(ctx context.Context, c Checker) Check {
	check := Check{Name: "duplicate document keys", Required: true}
	dups, err := c.DuplicateKeys(ctx)
	if err != nil {
		return failed(check.Name, true, err)
	}

	if len(dups) == 0 {
		check.Passed = true
		check.Details = append(check.Details, "none")
		return check
	}
	for _, d := range dups {
		check.Details = append(check.Details,
			fmt.Sprintf("%s/%s/%s x%d", d.DocType, d.SourceName, d.DocPath, d.Count))
	}
	return check
}

func checkSamples(ctx context.Context, c Checker, n int) Check {
	check := Check{Name: "content samples", Required: false}
	samples, err := c.RecentSamples(ctx, n)
	if err != nil {
		return failed(check.Name, false, err)
	}

	for _, smp := range samples {
		excerpt := strings.ReplaceAll(smp.Excerpt, "\n", " ")
		check.Details = append(check.Details,
			fmt.Sprintf("[%s] %s (%d tokens): %s", smp.DocType, smp.DocPath, smp.TokenCount, excerpt))
	}
	check.Passed = true
	return check
}

func checkSearch(ctx context.Context, c Checker) Check {
	check := Check{Name: "vector search probe", Required: true}
	ok, probed, err := c.SearchProbe(ctx)
	if err != nil {
		return failed(check.Name, true, err)
	}

	check.Passed = ok
	switch {
	case ok && probed == "":
		check.Details = append(check.Details, "no embedded documents to probe")
	case ok:
		check.Details = append(check.Details, "self-similarity holds for "+probed)
	default:
		check.Details = append(check.Details, "nearest neighbour of "+probed+" is not itself")
	}
	return check
}

func checkSources(ctx context.Context, c Checker) Check {
	check := Check{Name: "source registry", Required: false}
	sources, err := c.ListSources(ctx)
	if err != nil {
		return failed(check.Name, false, err)
	}

	check.Passed = true
	for _, s := range sources {
		line := fmt.Sprintf("%s/%s enabled=%t docs=%d tokens=%d",
			s.DocType, s.SourceName, s.Enabled, s.TotalDocs, s.TotalTokens)
		if s.TotalDocs != s.ActualDocs {
			line += fmt.Sprintf(" DRIFT(actual=%d)", s.ActualDocs)
		}
		check.Details = append(check.Details, line)
	}
	return check
}

// Render formats the report for stdout.
func (r Report) Render() string {
	var b strings.Builder
	b.WriteString("=== docvault validation report ===\n\n")

	for _, c := range r.Checks {
		mark := "PASS"
		if !c.Passed {
			mark = "FAIL"
			if !c.Required {
				mark = "WARN"
			}
		}
		fmt.Fprintf(&b, "[%s] %s\n", mark, c.Name)
		for _, d := range c.Details {
			fmt.Fprintf(&b, "    %s\n", d)
		}
		b.WriteString("\n")
	}

	if r.Passed() {
		b.WriteString("all required checks passed\n")
	} else {
		var bad []string
		for _, c := range r.Checks {
			if c.Required && !c.Passed {
				bad = append(bad, c.Name)
			}
		}
		sort.Strings(bad)
		fmt.Fprintf(&b, "FAILED: %s\n", strings.Join(bad, "; "))
	}
	return b.String()
}
