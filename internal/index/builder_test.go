package index

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mserrors "github.com/Aman-CERP/mixsearch/internal/errors"
	"github.com/Aman-CERP/mixsearch/internal/store"
	"github.com/Aman-CERP/mixsearch/internal/telemetry"
	"github.com/Aman-CERP/mixsearch/internal/tokenize"
	"github.com/Aman-CERP/mixsearch/internal/ui"
)

// mockRenderer implements ui.Renderer for testing.
type mockRenderer struct {
	mu              sync.Mutex
	progressEvents  []ui.ProgressEvent
	errorEvents     []ui.ErrorEvent
	completeCalled  bool
	completionStats ui.CompletionStats
}

func (m *mockRenderer) Start(context.Context) error { return nil }
func (m *mockRenderer) Stop() error { return nil }

func (m *mockRenderer) UpdateProgress(event ui.ProgressEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.progressEvents = append(m.progressEvents, event)
}

func (m *mockRenderer) AddError(event ui.ErrorEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorEvents = append(m.errorEvents, event)
}

func (m *mockRenderer) Complete(stats ui.CompletionStats) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completeCalled = true
	m.completionStats = stats
}

func (m *mockRenderer) stages() map[ui.Stage]bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[ui.Stage]bool)
	for _, e := range m.progressEvents {
		seen[e.Stage] = true
	}
	return seen
}

// poisonAnalyzer fails on documents containing "POISON".
type poisonAnalyzer struct {
	tok *tokenize.Tokenizer
}

func (p poisonAnalyzer) Analyze(text string) (*tokenize.Analysis, error) {
	if strings.Contains(text, "POISON") {
		return nil, errors.New("tokenizer exploded")
	}
	return p.tok.Analyze(text)
}

// failingPersistence wraps MemoryPersistence and fails Commit.
type failingPersistence struct {
	*store.MemoryPersistence
	commitErr error
	clears    int
}

func (f *failingPersistence) Commit(ctx context.Context, idx *store.InvertedIndex, stats *store.DocumentStatistics) error {
	if f.commitErr != nil {
		return f.commitErr
	}
	return f.MemoryPersistence.Commit(ctx, idx, stats)
}

func (f *failingPersistence) Clear(ctx context.Context) error {
	f.clears++
	return f.MemoryPersistence.Clear(ctx)
}

// vectorProvider returns a fixed vector per document, or an error.
type vectorProvider struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (p *vectorProvider) Embed(_ context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	if text == "" {
		return nil, nil
	}
	return []float32{float32(len(text)), 1}, nil
}

func (p *vectorProvider) Cosine(a, b []float32) float64 { return 0 }

func corpus() []*store.Document {
	return []*store.Document{
		{ID: "doc-1", Content: "Hello world. 中文分词测试", Source: "local", Title: "One"},
		{ID: "doc-2", Content: "world of search engines", Source: "remote", Title: "Two"},
		{ID: "doc-3", Content: "搜索引擎 search", Source: "local", Title: "Three"},
	}
}

func newTestBuilder(t *testing.T, deps Dependencies, cfg Config) *Builder {
	t.Helper()
	if deps.Tokenizer == nil {
		deps.Tokenizer = tokenize.New(tokenize.DefaultConfig())
	}
	if deps.Persistence == nil {
		deps.Persistence = store.NewMemoryPersistence()
	}
	b, err := NewBuilder(deps, cfg)
	require.NoError(t, err)
	return b
}

func TestNewBuilder_RequiresDependencies(t *testing.T) {
	tok := tokenize.New(tokenize.DefaultConfig())
	src := store.NewMemorySource()
	p := store.NewMemoryPersistence()

	tests := []struct {
		name string
		deps Dependencies
	}{
		{"no tokenizer", Dependencies{Source: src, Persistence: p}},
		{"no source", Dependencies{Tokenizer: tok, Persistence: p}},
		{"no persistence", Dependencies{Tokenizer: tok, Source: src}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewBuilder(tt.deps, Config{})
			require.Error(t, err)
		})
	}
}

func TestBuilder_Execute_BuildsIndexAndStats(t *testing.T) {
	// Given: a three-document corpus
	p := store.NewMemoryPersistence()
	r := &mockRenderer{}
	b := newTestBuilder(t, Dependencies{
		Source:      store.NewMemorySource(corpus()...),
		Persistence: p,
		Renderer:    r,
	}, Config{Workers: 2})

	// When: building
	result, err := b.Execute(context.Background())

	// Then: every document is indexed and committed
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 3, result.IndexedCount)
	assert.Zero(t, result.SkippedCount)
	assert.Positive(t, result.TotalTerms)
	assert.NotEmpty(t, result.Generation)

	ctx := context.Background()
	stats, err := p.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalDocuments())
	assert.Equal(t, result.Generation, stats.Generation)
	assert.InDelta(t, result.AvgDocLength, stats.AverageDocumentLength(), 1e-9)

	st, ok := stats.Get("doc-2")
	require.True(t, ok)
	assert.Equal(t, "remote", st.Source)
	assert.Equal(t, "Two", st.Title)

	// And: postings follow corpus order with one posting per document
	world, err := p.GetPostingList(ctx, "world")
	require.NoError(t, err)
	require.Len(t, world, 2)
	assert.Equal(t, "doc-1", world[0].DocID)
	assert.Equal(t, "doc-2", world[1].DocID)
	assert.Equal(t, 1, world[0].TermFrequency)
	assert.NotEmpty(t, world[0].Positions)

	idx, err := p.GetIndex(ctx)
	require.NoError(t, err)
	assert.Equal(t, result.TotalTerms, idx.TermCount())

	// And: progress was rendered
	seen := r.stages()
	assert.True(t, seen[ui.StageLoading])
	assert.True(t, seen[ui.StageTokenizing])
	assert.True(t, seen[ui.StageCommitting])
	assert.True(t, r.completeCalled)
	assert.Equal(t, 3, r.completionStats.Indexed)
}

func TestBuilder_Execute_DocumentLengthMatchesTermFrequencies(t *testing.T) {
	// Given: one document
	p := store.NewMemoryPersistence()
	b := newTestBuilder(t, Dependencies{
		Source:      store.NewMemorySource(&store.Document{ID: "d", Content: "alpha beta alpha 中文中文"}),
		Persistence: p,
	}, Config{})

	// When: building
	_, err := b.Execute(context.Background())
	require.NoError(t, err)

	// Then: the stored length equals the sum of its term frequencies
	ctx := context.Background()
	idx, err := p.GetIndex(ctx)
	require.NoError(t, err)
	stats, err := p.GetStats(ctx)
	require.NoError(t, err)

	sum := 0
	for _, term := range idx.Terms() {
		for _, posting := range idx.PostingList(term) {
			sum += posting.TermFrequency
		}
	}
	st, ok := stats.Get("d")
	require.True(t, ok)
	assert.Equal(t, st.Length, sum)

	alpha := idx.PostingList("alpha")
	require.Len(t, alpha, 1)
	assert.Equal(t, 2, alpha[0].TermFrequency)
}

func TestBuilder_Execute_SkipsPoisonedDocument(t *testing.T) {
	// Given: a corpus where one document fails tokenization
	docs := append(corpus(), &store.Document{ID: "bad", Content: "POISON pill", Source: "local"})
	m := telemetry.New()
	r := &mockRenderer{}
	p := store.NewMemoryPersistence()
	b := newTestBuilder(t, Dependencies{
		Tokenizer:   poisonAnalyzer{tok: tokenize.New(tokenize.DefaultConfig())},
		Source:      store.NewMemorySource(docs...),
		Persistence: p,
		Metrics:     m,
		Renderer:    r,
	}, Config{Workers: 4})

	// When: building
	result, err := b.Execute(context.Background())

	// Then: the build succeeds without the poisoned document
	require.NoError(t, err)
	assert.Equal(t, 3, result.IndexedCount)
	assert.Equal(t, 1, result.SkippedCount)

	stats, err := p.GetStats(context.Background())
	require.NoError(t, err)
	_, ok := stats.Get("bad")
	assert.False(t, ok)

	require.Len(t, r.errorEvents, 1)
	assert.Equal(t, "bad", r.errorEvents[0].DocID)
	assert.Equal(t, mserrors.ErrCodeDocumentSkipped, mserrors.GetCode(r.errorEvents[0].Err))

	assert.InDelta(t, 1, testutil.ToFloat64(m.DocumentsSkipped), 1e-9)
	assert.InDelta(t, 3, testutil.ToFloat64(m.DocumentsIndexed), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(m.BuildsTotal.WithLabelValues(OutcomeSuccess)), 1e-9)
}

func TestBuilder_Execute_SkipsDuplicateAndMissingIDs(t *testing.T) {
	docs := []*store.Document{
		{ID: "a", Content: "first"},
		{ID: "a", Content: "second"},
		{ID: "", Content: "anonymous"},
	}
	p := store.NewMemoryPersistence()
	b := newTestBuilder(t, Dependencies{Source: store.NewMemorySource(docs...), Persistence: p}, Config{})

	result, err := b.Execute(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, result.IndexedCount)
	assert.Equal(t, 2, result.SkippedCount)
	first, err := p.GetPostingList(context.Background(), "first")
	require.NoError(t, err)
	assert.Len(t, first, 1)
	second, err := p.GetPostingList(context.Background(), "second")
	require.NoError(t, err)
	assert.Empty(t, second)
}

func TestBuilder_Execute_EmptyCorpusClears(t *testing.T) {
	// Given: a persistence holding a previous generation
	p := &failingPersistence{MemoryPersistence: store.NewMemoryPersistence()}
	_, err := newTestBuilder(t, Dependencies{
		Source:      store.NewMemorySource(corpus()...),
		Persistence: p,
	}, Config{}).Execute(context.Background())
	require.NoError(t, err)

	m := telemetry.New()
	b := newTestBuilder(t, Dependencies{
		Source:      store.NewMemorySource(),
		Persistence: p,
		Metrics:     m,
	}, Config{})

	// When: rebuilding from an empty corpus
	result, err := b.Execute(context.Background())

	// Then: the result is zero and the old state is cleared
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Zero(t, result.IndexedCount)
	assert.Zero(t, result.TotalTerms)
	assert.Zero(t, result.AvgDocLength)
	assert.Equal(t, 1, p.clears)

	stats, err := p.GetStats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.TotalDocuments())
	assert.InDelta(t, 1, testutil.ToFloat64(m.BuildsTotal.WithLabelValues(OutcomeEmpty)), 1e-9)
}

func TestBuilder_Execute_PersistenceFailureAborts(t *testing.T) {
	// Given: a persistence whose Commit fails
	p := &failingPersistence{
		MemoryPersistence: store.NewMemoryPersistence(),
		commitErr:         errors.New("disk full"),
	}
	m := telemetry.New()
	b := newTestBuilder(t, Dependencies{
		Source:      store.NewMemorySource(corpus()...),
		Persistence: p,
		Metrics:     m,
	}, Config{})

	// When: building
	result, err := b.Execute(context.Background())

	// Then: the error surfaces as a persistence error
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Equal(t, mserrors.ErrCodePersistence, mserrors.GetCode(err))
	assert.EqualError(t, errors.Unwrap(err), "disk full")
	assert.InDelta(t, 1, testutil.ToFloat64(m.BuildsTotal.WithLabelValues(OutcomeFailed)), 1e-9)
}

func TestBuilder_Execute_SourceFailure(t *testing.T) {
	b := newTestBuilder(t, Dependencies{Source: failingSource{}}, Config{})

	_, err := b.Execute(context.Background())

	require.Error(t, err)
	assert.Equal(t, mserrors.ErrCodeSourceUnavailable, mserrors.GetCode(err))
}

type failingSource struct{}

func (failingSource) FindAll(context.Context) ([]*store.Document, error) {
	return nil, errors.New("connection refused")
}

func TestBuilder_Execute_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := store.NewMemoryPersistence()
	b := newTestBuilder(t, Dependencies{Source: store.NewMemorySource(corpus()...), Persistence: p}, Config{})

	_, err := b.Execute(ctx)

	require.Error(t, err)
	stats, statsErr := p.GetStats(context.Background())
	require.NoError(t, statsErr)
	assert.Zero(t, stats.TotalDocuments())
}

func TestBuilder_Execute_Lock(t *testing.T) {
	// Given: the rebuild lock held by someone else
	dir := t.TempDir()
	held := NewFileLock(dir)
	acquired, err := held.TryLock()
	require.NoError(t, err)
	require.True(t, acquired)

	b := newTestBuilder(t, Dependencies{Source: store.NewMemorySource(corpus()...)}, Config{LockDir: dir})

	// When: building
	_, err = b.Execute(context.Background())

	// Then: the build is refused
	require.Error(t, err)
	assert.Equal(t, mserrors.ErrCodeIndexLocked, mserrors.GetCode(err))

	// When: the lock is released
	require.NoError(t, held.Unlock())
	result, err := b.Execute(context.Background())

	// Then: the build runs and releases the lock afterwards
	require.NoError(t, err)
	assert.Equal(t, 3, result.IndexedCount)
	again := NewFileLock(dir)
	acquired, err = again.TryLock()
	require.NoError(t, err)
	assert.True(t, acquired)
	require.NoError(t, again.Unlock())
}

func TestBuilder_Execute_EmbedsDocuments(t *testing.T) {
	// Given: a provider and a vector store holding a stale vector
	vectors := store.NewHNSWStore(0)
	require.NoError(t, vectors.Put("stale", []float32{1, 1}))
	provider := &vectorProvider{}
	b := newTestBuilder(t, Dependencies{
		Source:   store.NewMemorySource(corpus()...),
		Provider: provider,
		Vectors:  vectors,
	}, Config{EmbedDocuments: true})

	// When: building
	result, err := b.Execute(context.Background())

	// Then: every document has a vector and the stale one is gone
	require.NoError(t, err)
	assert.Equal(t, 3, result.EmbeddedCount)
	assert.Equal(t, 3, vectors.Len())
	_, ok := vectors.Get("stale")
	assert.False(t, ok)
	_, ok = vectors.Get("doc-2")
	assert.True(t, ok)
}

func TestBuilder_Execute_EmbeddingFailureKeepsLexical(t *testing.T) {
	// Given: a provider that is down
	vectors := store.NewHNSWStore(0)
	provider := &vectorProvider{err: mserrors.ProviderError("backend down", nil)}
	m := telemetry.New()
	b := newTestBuilder(t, Dependencies{
		Source:   store.NewMemorySource(corpus()...),
		Provider: provider,
		Vectors:  vectors,
		Metrics:  m,
	}, Config{EmbedDocuments: true})

	// When: building
	result, err := b.Execute(context.Background())

	// Then: documents are indexed lexically and embedding stops after the first failure
	require.NoError(t, err)
	assert.Equal(t, 3, result.IndexedCount)
	assert.Zero(t, result.EmbeddedCount)
	assert.Equal(t, 1, provider.calls)
	assert.Zero(t, vectors.Len())
	assert.InDelta(t, 1, testutil.ToFloat64(m.EmbeddingFailures), 1e-9)
}

func TestBuilder_Execute_ReplacesPreviousGeneration(t *testing.T) {
	// Given: an index built from two documents
	p := store.NewMemoryPersistence()
	src := store.NewMemorySource(corpus()...)
	b := newTestBuilder(t, Dependencies{Source: src, Persistence: p}, Config{})
	first, err := b.Execute(context.Background())
	require.NoError(t, err)

	// When: a document changes and the index is rebuilt
	src.Set(&store.Document{ID: "doc-2", Content: "completely different", Source: "remote"})
	second, err := b.Execute(context.Background())
	require.NoError(t, err)

	// Then: the new generation has no stale postings
	assert.NotEqual(t, first.Generation, second.Generation)
	engines, err := p.GetPostingList(context.Background(), "engines")
	require.NoError(t, err)
	assert.Empty(t, engines)
	different, err := p.GetPostingList(context.Background(), "different")
	require.NoError(t, err)
	assert.Len(t, different, 1)
}

// failingArchive rejects every Replace.
type failingArchive struct{ calls int }

func (f *failingArchive) Replace(context.Context, string, []*store.Document) error {
	f.calls++
	return errors.New("archive full")
}

func TestBuilder_Execute_ArchivesIndexedText(t *testing.T) {
	ctx := context.Background()
	archive, err := store.NewBleveArchive(tokenize.CJKBigram)
	require.NoError(t, err)
	defer func() { _ = archive.Close() }()

	docs := append(corpus(), &store.Document{ID: "bad", Content: "POISON pill"})
	tok := tokenize.New(tokenize.DefaultConfig())

	// Given: a corpus with one document the tokenizer rejects
	b := newTestBuilder(t, Dependencies{
		Tokenizer: poisonAnalyzer{tok: tok},
		Source:    store.NewMemorySource(docs...),
		Archive:   archive,
	}, Config{})

	// When: building
	result, err := b.Execute(ctx)

	// Then: the archive holds exactly the indexed documents of this generation
	require.NoError(t, err)
	assert.Equal(t, result.Generation, archive.Generation())

	doc, spans, err := archive.Locate(ctx, "doc-3", []string{"搜索"})
	require.NoError(t, err)
	assert.Equal(t, "Three", doc.Title)
	assert.Equal(t, "local", doc.Source)
	require.NotEmpty(t, spans)
	assert.Equal(t, "搜索", doc.Content[spans[0].Start:spans[0].End])

	_, err = archive.Get(ctx, "bad")
	assert.ErrorIs(t, err, store.ErrNotFound)

	// When: rebuilding from an empty corpus
	_, err = newTestBuilder(t, Dependencies{
		Source:  store.NewMemorySource(),
		Archive: archive,
	}, Config{}).Execute(ctx)

	// Then: the archive is emptied too
	require.NoError(t, err)
	assert.Empty(t, archive.Generation())
	_, err = archive.Get(ctx, "doc-1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestBuilder_Execute_ArchiveFailureKeepsBuild(t *testing.T) {
	archive := &failingArchive{}
	p := store.NewMemoryPersistence()

	// Given: an archive that cannot be replaced
	b := newTestBuilder(t, Dependencies{
		Source:      store.NewMemorySource(corpus()...),
		Persistence: p,
		Archive:     archive,
	}, Config{})

	// When: building
	result, err := b.Execute(context.Background())

	// Then: the generation is still committed
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 1, archive.calls)
	stats, err := p.GetStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalDocuments())
}
