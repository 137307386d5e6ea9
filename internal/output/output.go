// Package output formats CLI results as styled text or JSON.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/Aman-CERP/mixsearch/internal/index"
	"github.com/Aman-CERP/mixsearch/internal/search"
	"github.com/Aman-CERP/mixsearch/internal/tokenize"
	"github.com/Aman-CERP/mixsearch/internal/ui"
)

// Format selects the output encoding.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// ParseFormat validates a --format flag value.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatText:
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	}
	return "", fmt.Errorf("unknown format %q (expected text or json)", s)
}

// Writer provides formatted output for CLI.
type Writer struct {
	out    io.Writer
	styles ui.Styles
}

// New creates a Writer that colors output only on a terminal without
// NO_COLOR set.
func New(out io.Writer) *Writer {
	return NewWithColor(out, ui.IsTTY(out) && !ui.DetectNoColor())
}

// NewWithColor creates a Writer with color forced on or off.
func NewWithColor(out io.Writer, color bool) *Writer {
	return &Writer{out: out, styles: ui.NewStyles(color)}
}

// Status prints a status message with an icon.
// Errors from writing are intentionally ignored for console output.
func (w *Writer) Status(icon, msg string) {
	if icon != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
	} else {
		_, _ = fmt.Fprintf(w.out, "   %s\n", msg)
	}
}

// Statusf prints a formatted status message with an icon.
func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

// Success prints a success message with checkmark.
func (w *Writer) Success(msg string) {
	w.Status(w.styles.Done.Render("✅"), msg)
}

// Successf prints a formatted success message.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a warning message.
func (w *Writer) Warning(msg string) {
	w.Status(w.styles.Skipped.Render("⚠️ "), msg)
}

// Warningf prints a formatted warning message.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Error prints an error message.
func (w *Writer) Error(msg string) {
	w.Status(w.styles.Failed.Render("❌"), msg)
}

// Errorf prints a formatted error message.
func (w *Writer) Errorf(format string, args ...any) {
	w.Error(fmt.Sprintf(format, args...))
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}

// JSON writes v as indented JSON.
func (w *Writer) JSON(v any) error {
	enc := json.NewEncoder(w.out)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// SearchResults prints a search response.
func (w *Writer) SearchResults(resp *search.Response, format Format) error {
	if format == FormatJSON {
		return w.JSON(resp)
	}

	if len(resp.Results) == 0 {
		w.Status("", fmt.Sprintf("No results found for %q", resp.Query))
		return nil
	}

	header := fmt.Sprintf("Found %d results for %q", resp.TotalResults, resp.Query)
	if resp.Scope != "" {
		header += fmt.Sprintf(" in %s", resp.Scope)
	}
	if len(resp.Results) < resp.TotalResults {
		header += fmt.Sprintf(" (showing %d)", len(resp.Results))
	}
	w.Status("🔍", w.styles.Title.Render(header+":"))
	if resp.Degraded {
		w.Warning("Embedding unavailable; results are lexical only.")
	}
	w.Newline()

	for i, r := range resp.Results {
		title := r.Title
		if title == "" {
			title = r.DocID
		}
		w.Statusf("", "%d. %s %s", i+1, w.styles.Hit.Render(title),
			w.styles.Muted.Render(fmt.Sprintf("[%s] %s", r.Source, r.DocID)))
		w.Status("", w.styles.Faint.Render(fmt.Sprintf("   score %.3f | bm25 %.3f | embedding %.3f",
			r.Score, r.BM25Score, r.EmbeddingScore)))
		if r.Snippet != "" {
			w.Status("", "   "+r.Snippet)
		}
		w.Newline()
	}
	w.Status("", w.styles.Muted.Render(fmt.Sprintf("%.1fms", resp.ElapsedMS)))
	return nil
}

// buildJSON is the JSON shape of a build result.
type buildJSON struct {
	Success       bool    `json:"success"`
	IndexedCount  int     `json:"indexedCount"`
	SkippedCount  int     `json:"skippedCount"`
	EmbeddedCount int     `json:"embeddedCount"`
	TotalTerms    int     `json:"totalTerms"`
	AvgDocLength  float64 `json:"avgDocLength"`
	Generation    string  `json:"generation"`
	DurationMS    int64   `json:"durationMs"`
}

// BuildResult prints the outcome of an index build.
func (w *Writer) BuildResult(res *index.BuildResult, format Format) error {
	if format == FormatJSON {
		return w.JSON(buildJSON{
			Success:       res.Success,
			IndexedCount:  res.IndexedCount,
			SkippedCount:  res.SkippedCount,
			EmbeddedCount: res.EmbeddedCount,
			TotalTerms:    res.TotalTerms,
			AvgDocLength:  res.AvgDocLength,
			Generation:    res.Generation,
			DurationMS:    res.Duration.Milliseconds(),
		})
	}

	if !res.Success {
		w.Error("Index build failed")
		return nil
	}
	w.Successf("Indexed %d documents in %s", res.IndexedCount, res.Duration.Round(time.Millisecond))
	w.Statusf("", "Terms: %d  Avg length: %.1f", res.TotalTerms, res.AvgDocLength)
	if res.EmbeddedCount > 0 {
		w.Statusf("", "Embedded: %d", res.EmbeddedCount)
	}
	if res.SkippedCount > 0 {
		w.Warningf("Skipped %d documents (see log for details)", res.SkippedCount)
	}
	w.Status("", w.styles.Muted.Render("Generation "+res.Generation))
	return nil
}

// Tokens prints tokenizer output. Frequencies are listed highest first,
// ties by term.
func (w *Writer) Tokens(st tokenize.Stats, withStats bool, format Format) error {
	if format == FormatJSON {
		if withStats {
			return w.JSON(st)
		}
		return w.JSON(st.Tokens)
	}

	if len(st.Tokens) == 0 {
		w.Status("", "(no tokens)")
		return nil
	}
	_, _ = fmt.Fprintln(w.out, strings.Join(st.Tokens, " "))
	if !withStats {
		return nil
	}

	w.Newline()
	w.Status("", w.styles.Title.Render(fmt.Sprintf("length %d, unique %d", st.Length, st.UniqueTerms)))
	terms := make([]string, 0, len(st.TF))
	for term := range st.TF {
		terms = append(terms, term)
	}
	sort.Slice(terms, func(i, j int) bool {
		if st.TF[terms[i]] != st.TF[terms[j]] {
			return st.TF[terms[i]] > st.TF[terms[j]]
		}
		return terms[i] < terms[j]
	})
	for _, term := range terms {
		w.Statusf("", "%s %s", w.styles.Term.Render(fmt.Sprintf("%-12s", term)), w.styles.Faint.Render(fmt.Sprintf("%g", st.TF[term])))
	}
	return nil
}

// Summary prints the committed index summary.
func (w *Writer) Summary(sum *search.IndexSummary, format Format) error {
	if format == FormatJSON {
		return w.JSON(sum)
	}
	if sum.Documents == 0 {
		w.Warning("Index is empty. Run 'mixsearch index' first.")
		return nil
	}

	w.Status("📚", w.styles.Title.Render(fmt.Sprintf("%d documents, %d terms", sum.Documents, sum.Terms)))
	w.Statusf("", "Avg length: %.1f", sum.AvgDocLength)
	if !sum.BuiltAt.IsZero() {
		w.Statusf("", "Built: %s (%s)", sum.BuiltAt.Local().Format(time.RFC3339), sum.Generation)
	}
	sources := make([]string, 0, len(sum.Sources))
	for s := range sum.Sources {
		sources = append(sources, s)
	}
	sort.Strings(sources)
	for _, s := range sources {
		w.Statusf("", "%s: %d", s, sum.Sources[s])
	}
	return nil
}
