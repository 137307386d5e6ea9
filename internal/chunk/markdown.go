package chunk

import (
	"path/filepath"
	"strings"
	"unicode"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// MarkdownExtractor turns Markdown sources into plain text plus a title.
// Block boundaries become newlines so the chunker can split on them.
type MarkdownExtractor struct {
	md goldmark.Markdown
}

// NewMarkdownExtractor creates an extractor with GFM tables enabled.
func NewMarkdownExtractor() *MarkdownExtractor {
	return &MarkdownExtractor{
		md: goldmark.New(goldmark.WithExtensions(extension.Table)),
	}
}

// Extract returns the document title and its plain text. The title is the
// first level-1 heading, else the first level-2 heading, else derived from
// filename.
func (e *MarkdownExtractor) Extract(content []byte, filename string) (title, body string) {
	if len(content) == 0 {
		return titleFromFilename(filename), ""
	}

	doc := e.md.Parser().Parse(text.NewReader(content))

	var h1, h2 string
	var b strings.Builder

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if n.Type() == ast.TypeBlock || isTableCell(n) {
				b.WriteByte('\n')
			}
			return ast.WalkContinue, nil
		}

		switch v := n.(type) {
		case *ast.Heading:
			heading := nodeText(v, content)
			if v.Level == 1 && h1 == "" {
				h1 = heading
			} else if v.Level == 2 && h2 == "" {
				h2 = heading
			}
		case *ast.Text:
			b.Write(v.Segment.Value(content))
			if v.SoftLineBreak() || v.HardLineBreak() {
				b.WriteByte('\n')
			}
		case *ast.String:
			b.Write(v.Value)
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				b.Write(seg.Value(content))
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})

	switch {
	case h1 != "":
		title = h1
	case h2 != "":
		title = h2
	default:
		title = titleFromFilename(filename)
	}
	return title, strings.TrimSpace(b.String())
}

func isTableCell(n ast.Node) bool {
	return n.Kind() == east.KindTableCell
}

func nodeText(n ast.Node, content []byte) string {
	var b strings.Builder
	_ = ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch v := node.(type) {
		case *ast.Text:
			b.Write(v.Segment.Value(content))
		case *ast.String:
			b.Write(v.Value)
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(b.String())
}

// titleFromFilename turns "release-notes_2026.md" into "Release Notes 2026".
func titleFromFilename(filename string) string {
	name := filepath.Base(filename)
	name = strings.TrimSuffix(name, filepath.Ext(name))
	words := strings.FieldsFunc(name, func(r rune) bool {
		return r == '-' || r == '_' || unicode.IsSpace(r)
	})
	for i, w := range words {
		runes := []rune(w)
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}
