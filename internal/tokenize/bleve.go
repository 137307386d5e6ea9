package tokenize

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"
	"golang.org/x/text/cases"
)

const (
	// BleveTokenizerName is the registry name of the document-mode tokenizer.
	BleveTokenizerName = "mixsearch_tokenizer"

	// BleveAnalyzerName is the analyzer added by AddBleveAnalyzer.
	BleveAnalyzerName = "mixsearch"
)

func init() {
	_ = registry.RegisterTokenizer(BleveTokenizerName, bleveTokenizerConstructor)
}

// bleveTokenizerConstructor accepts an optional "cjk_mode" entry.
func bleveTokenizerConstructor(config map[string]interface{}, _ *registry.Cache) (analysis.Tokenizer, error) {
	cfg := DefaultConfig()
	if v, ok := config["cjk_mode"].(string); ok {
		mode, ok := ParseCJKMode(v)
		if !ok {
			return nil, fmt.Errorf("unknown cjk_mode %q", v)
		}
		cfg.Core.CJKMode = mode
	}
	return &bleveTokenizer{tok: New(cfg)}, nil
}

// bleveTokenizer exposes the document-mode pipeline as a bleve tokenizer so
// bleve indexes get the same mixed-script terms as the inverted index.
type bleveTokenizer struct {
	tok *Tokenizer
}

// Tokenize implements analysis.Tokenizer. Terms are located in a per-rune
// folded copy of the input and mapped back, so Start and End always fall on
// rune boundaries of the original bytes. Overlapping CJK bigrams advance the
// cursor only to their start. A term the folded text does not contain (a
// hyphen-joined form, say) gets a zero-width span at the cursor.
func (b *bleveTokenizer) Tokenize(input []byte) analysis.TokenStream {
	text := string(input)
	terms := b.tok.Terms(text, Options{Mode: ModeDocument})
	folded := foldWithOffsets(text, b.tok.Config().Normalize)

	stream := make(analysis.TokenStream, 0, len(terms))
	cursor := 0
	for _, term := range terms {
		var start, end int
		if i := strings.Index(folded.text[cursor:], term.Text); i >= 0 && term.Text != "" {
			cursor += i
			start = folded.starts[cursor]
			end = folded.ends[cursor+len(term.Text)-1]
		} else {
			start = folded.offset(cursor)
			end = start
		}

		stream = append(stream, &analysis.Token{
			Term:     []byte(term.Text),
			Start:    start,
			End:      end,
			Position: term.Position + 1,
			Type:     tokenType(term.Text),
		})
	}
	return stream
}

// foldedText is the input folded rune by rune. starts[i] and ends[i] give
// the original byte span of the rune that produced folded byte i.
type foldedText struct {
	text   string
	starts []int
	ends   []int
	size   int
}

func foldWithOffsets(input string, cfg NormalizeConfig) foldedText {
	form, formErr := unicodeForm(cfg.UnicodeForm)
	caser := cases.Fold()

	var b strings.Builder
	b.Grow(len(input))
	f := foldedText{
		starts: make([]int, 0, len(input)),
		ends:   make([]int, 0, len(input)),
		size:   len(input),
	}
	for i := 0; i < len(input); {
		_, width := utf8.DecodeRuneInString(input[i:])
		piece := input[i : i+width]
		if cfg.UnicodeForm != "" && formErr == nil {
			piece = form.String(piece)
		}
		if cfg.LowerCase {
			piece = caser.String(piece)
		}
		b.WriteString(piece)
		for range len(piece) {
			f.starts = append(f.starts, i)
			f.ends = append(f.ends, i+width)
		}
		i += width
	}
	f.text = b.String()
	return f
}

// offset maps a folded byte position to an original one.
func (f foldedText) offset(pos int) int {
	if pos < len(f.starts) {
		return f.starts[pos]
	}
	return f.size
}

func tokenType(text string) analysis.TokenType {
	switch {
	case IsCJKToken(text):
		return analysis.Ideographic
	case IsNumeral(text):
		return analysis.Numeric
	default:
		return analysis.AlphaNumeric
	}
}

// AddBleveAnalyzer registers the mixsearch analyzer on m and makes it the
// default analyzer. An empty mode keeps the default CJK mode.
func AddBleveAnalyzer(m *mapping.IndexMappingImpl, mode CJKMode) error {
	tokenizer := BleveTokenizerName
	if mode != "" {
		tokenizer = BleveTokenizerName + "_" + string(mode)
		err := m.AddCustomTokenizer(tokenizer, map[string]interface{}{
			"type":     BleveTokenizerName,
			"cjk_mode": string(mode),
		})
		if err != nil {
			return fmt.Errorf("failed to add custom tokenizer: %w", err)
		}
	}

	err := m.AddCustomAnalyzer(BleveAnalyzerName, map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": tokenizer,
	})
	if err != nil {
		return fmt.Errorf("failed to add custom analyzer: %w", err)
	}
	m.DefaultAnalyzer = BleveAnalyzerName
	return nil
}
