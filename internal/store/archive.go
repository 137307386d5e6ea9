package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/Aman-CERP/mixsearch/internal/tokenize"
)

// Span is a byte range of a document's content.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// archiveDoc is the bleve document shape.
type archiveDoc struct {
	Content string `json:"content"`
	Title   string `json:"title"`
	Source  string `json:"source"`
}

var archiveFields = []string{"content", "title", "source"}

// BleveArchive keeps the text of one built generation in an in-memory bleve
// index analyzed with the mixsearch analyzer. It serves DocumentLookup and
// finds where query terms occur in a document.
//
// Replace builds the next index aside and swaps it in, so readers see one
// generation or the other.
type BleveArchive struct {
	mu         sync.RWMutex
	mode       tokenize.CJKMode
	index      bleve.Index
	generation string
	closed     bool
}

// NewBleveArchive creates an empty archive whose analyzer cuts CJK runs
// with mode. It should match the mode the index is built with.
func NewBleveArchive(mode tokenize.CJKMode) (*BleveArchive, error) {
	idx, err := newArchiveIndex(mode)
	if err != nil {
		return nil, err
	}
	return &BleveArchive{mode: mode, index: idx}, nil
}

func archiveMapping(mode tokenize.CJKMode) (*mapping.IndexMappingImpl, error) {
	m := bleve.NewIndexMapping()
	if err := tokenize.AddBleveAnalyzer(m, mode); err != nil {
		return nil, err
	}

	content := bleve.NewTextFieldMapping()
	content.Analyzer = tokenize.BleveAnalyzerName
	content.Store = true
	content.IncludeTermVectors = true

	title := bleve.NewTextFieldMapping()
	title.Analyzer = tokenize.BleveAnalyzerName
	title.Store = true

	source := bleve.NewKeywordFieldMapping()
	source.Store = true

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("content", content)
	doc.AddFieldMappingsAt("title", title)
	doc.AddFieldMappingsAt("source", source)
	m.DefaultMapping = doc
	return m, nil
}

func newArchiveIndex(mode tokenize.CJKMode) (bleve.Index, error) {
	m, err := archiveMapping(mode)
	if err != nil {
		return nil, err
	}
	idx, err := bleve.NewMemOnly(m)
	if err != nil {
		return nil, fmt.Errorf("failed to create archive index: %w", err)
	}
	return idx, nil
}

// Replace swaps in docs as the archived text of generation.
func (a *BleveArchive) Replace(ctx context.Context, generation string, docs []*Document) error {
	next, err := newArchiveIndex(a.mode)
	if err != nil {
		return err
	}

	batch := next.NewBatch()
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			_ = next.Close()
			return err
		}
		if doc == nil || doc.ID == "" {
			continue
		}
		err := batch.Index(doc.ID, archiveDoc{Content: doc.Content, Title: doc.Title, Source: doc.Source})
		if err != nil {
			_ = next.Close()
			return fmt.Errorf("failed to archive document %s: %w", doc.ID, err)
		}
	}
	if err := next.Batch(batch); err != nil {
		_ = next.Close()
		return fmt.Errorf("failed to execute archive batch: %w", err)
	}

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		_ = next.Close()
		return ErrClosed
	}
	prev := a.index
	a.index = next
	a.generation = generation
	a.mu.Unlock()

	return prev.Close()
}

// Generation returns the generation passed to the last Replace.
func (a *BleveArchive) Generation() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.generation
}

// Get implements DocumentLookup.
func (a *BleveArchive) Get(ctx context.Context, id string) (*Document, error) {
	doc, _, err := a.Locate(ctx, id, nil)
	return doc, err
}

// Locate returns the archived document and the spans of its content where
// any of terms occurs, sorted by position. Terms are index terms, already
// folded. A document containing none of them comes back with no spans.
func (a *BleveArchive) Locate(ctx context.Context, id string, terms []string) (*Document, []Span, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return nil, nil, ErrClosed
	}

	if len(terms) > 0 {
		hit, err := a.find(ctx, withTerms(id, terms), true)
		if err != nil {
			return nil, nil, err
		}
		if hit != nil {
			return hitDocument(hit), contentSpans(hit), nil
		}
	}

	hit, err := a.find(ctx, bleve.NewDocIDQuery([]string{id}), false)
	if err != nil {
		return nil, nil, err
	}
	if hit == nil {
		return nil, nil, ErrNotFound
	}
	return hitDocument(hit), nil, nil
}

func withTerms(id string, terms []string) query.Query {
	should := make([]query.Query, 0, len(terms))
	for _, term := range terms {
		tq := bleve.NewTermQuery(term)
		tq.SetField("content")
		should = append(should, tq)
	}
	return bleve.NewConjunctionQuery(
		bleve.NewDocIDQuery([]string{id}),
		bleve.NewDisjunctionQuery(should...),
	)
}

func (a *BleveArchive) find(ctx context.Context, q query.Query, locations bool) (*search.DocumentMatch, error) {
	req := bleve.NewSearchRequestOptions(q, 1, 0, false)
	req.Fields = archiveFields
	req.IncludeLocations = locations

	res, err := a.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("archive search failed: %w", err)
	}
	if len(res.Hits) == 0 {
		return nil, nil
	}
	return res.Hits[0], nil
}

func hitDocument(hit *search.DocumentMatch) *Document {
	field := func(name string) string {
		s, _ := hit.Fields[name].(string)
		return s
	}
	return &Document{
		ID:      hit.ID,
		Content: field("content"),
		Title:   field("title"),
		Source:  field("source"),
	}
}

func contentSpans(hit *search.DocumentMatch) []Span {
	var spans []Span
	for _, locs := range hit.Locations["content"] {
		for _, loc := range locs {
			if loc.End <= loc.Start {
				continue
			}
			spans = append(spans, Span{Start: int(loc.Start), End: int(loc.End)})
		}
	}
	sort.Slice(spans, func(i, j int) bool {
		if spans[i].Start != spans[j].Start {
			return spans[i].Start < spans[j].Start
		}
		return spans[i].End < spans[j].End
	})
	return spans
}

// Close releases the index. Close is idempotent.
func (a *BleveArchive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	return a.index.Close()
}
