package search

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/mixsearch/internal/embed"
	mserrors "github.com/Aman-CERP/mixsearch/internal/errors"
	"github.com/Aman-CERP/mixsearch/internal/index"
	"github.com/Aman-CERP/mixsearch/internal/store"
	"github.com/Aman-CERP/mixsearch/internal/telemetry"
	"github.com/Aman-CERP/mixsearch/internal/tokenize"
)

func searchCorpus() []*store.Document {
	return []*store.Document{
		{ID: "lib-zh", Source: "local", Title: "图书馆", Content: "我们的图书馆很大。开放时间是早上九点。"},
		{ID: "lib-en", Source: "remote", Title: "Library", Content: "The library opens at nine. Video editing is not allowed."},
		{ID: "video", Source: "local", Title: "Editor", Content: "VideoEditEngine2026 renders clips. It is fast."},
		{ID: "mixed", Source: "remote", Title: "Mixed", Content: "CSC207是的是的是的 course notes about the 图书馆 catalogue."},
	}
}

// failingProvider always fails to embed.
type failingProvider struct{ calls int }

func (p *failingProvider) Embed(context.Context, string) ([]float32, error) {
	p.calls++
	return nil, mserrors.ProviderError("model failed to load", errors.New("connection refused"))
}

func (p *failingProvider) Cosine(a, b []float32) float64 { return embed.Cosine(a, b) }

type testEnv struct {
	tok         *tokenize.Tokenizer
	source      *store.MemorySource
	persistence *store.MemoryPersistence
	vectors     *store.HNSWStore
	metrics     *telemetry.Metrics
	queryLog    *telemetry.QueryLog
}

// buildEnv indexes searchCorpus, embedding documents with the static
// embedder.
func buildEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		tok:         tokenize.New(tokenize.DefaultConfig()),
		source:      store.NewMemorySource(searchCorpus()...),
		persistence: store.NewMemoryPersistence(),
		vectors:     store.NewHNSWStore(0),
		metrics:     telemetry.New(),
		queryLog:    telemetry.NewQueryLog(100, 10),
	}

	static := embed.NewStaticEmbedderWithTokenizer(env.tok)
	provider := embed.NewLazy(func(context.Context) (embed.Embedder, error) { return static, nil })

	b, err := index.NewBuilder(index.Dependencies{
		Tokenizer:   env.tok,
		Source:      env.source,
		Persistence: env.persistence,
		Provider:    provider,
		Vectors:     env.vectors,
	}, index.Config{EmbedDocuments: true})
	require.NoError(t, err)
	_, err = b.Execute(context.Background())
	require.NoError(t, err)
	return env
}

func (env *testEnv) engine(t *testing.T, opts ...EngineOption) *Engine {
	t.Helper()
	base := []EngineOption{
		WithDocumentLookup(env.source),
		WithMetrics(env.metrics),
		WithQueryLog(env.queryLog),
	}
	e, err := NewEngine(env.tok, env.persistence, DefaultConfig(), append(base, opts...)...)
	require.NoError(t, err)
	return e
}

func ids(resp *Response) []string {
	out := make([]string, 0, len(resp.Results))
	for _, r := range resp.Results {
		out = append(out, r.DocID)
	}
	return out
}

func TestNewEngine_RequiresDependencies(t *testing.T) {
	_, err := NewEngine(nil, store.NewMemoryPersistence(), DefaultConfig())
	assert.ErrorIs(t, err, ErrNilDependency)

	_, err = NewEngine(tokenize.New(tokenize.DefaultConfig()), nil, DefaultConfig())
	assert.ErrorIs(t, err, ErrNilDependency)
}

func TestEngine_Search_CJKQuery(t *testing.T) {
	// Given: an indexed mixed-script corpus
	env := buildEnv(t)
	e := env.engine(t)

	// When: searching a Chinese word
	resp, err := e.Search(context.Background(), "图书馆", "", SearchOptions{})

	// Then: both documents containing it are found with snippets
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"lib-zh", "mixed"}, ids(resp))
	assert.Equal(t, 2, resp.TotalResults)
	for _, r := range resp.Results {
		assert.Contains(t, r.Snippet, "图书馆")
		assert.LessOrEqual(t, len([]rune(r.Snippet)), MaxSnippetRunes)
		assert.Positive(t, r.BM25Score)
		assert.Zero(t, r.EmbeddingScore)
	}
	assert.False(t, resp.Degraded)
	assert.Equal(t, 1.0, resp.Results[0].Score)
}

func TestEngine_Search_CamelCaseQuery(t *testing.T) {
	env := buildEnv(t)
	e := env.engine(t)

	resp, err := e.Search(context.Background(), "engine", "", SearchOptions{})

	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, "video", resp.Results[0].DocID)
	assert.Equal(t, "Editor", resp.Results[0].Title)
}

func TestEngine_Search_ScopeLocalNeverReturnsRemote(t *testing.T) {
	env := buildEnv(t)
	e := env.engine(t)

	for _, q := range []string{"图书馆", "library video", "notes", "CSC207"} {
		t.Run(q, func(t *testing.T) {
			resp, err := e.Search(context.Background(), q, "local", SearchOptions{Limit: -1})
			require.NoError(t, err)
			assert.Equal(t, "local", resp.Scope)
			for _, r := range resp.Results {
				assert.NotEqual(t, "remote", r.Source)
			}
		})
	}
}

func TestEngine_Search_EmptyQuery(t *testing.T) {
	env := buildEnv(t)
	e := env.engine(t)

	for _, q := range []string{"", "   ", "。，！"} {
		resp, err := e.Search(context.Background(), q, "", SearchOptions{})
		require.NoError(t, err)
		assert.NotNil(t, resp.Results)
		assert.Empty(t, resp.Results)
		assert.Zero(t, resp.TotalResults)
	}
	assert.InDelta(t, 3, testutil.ToFloat64(env.metrics.SearchQueriesTotal.WithLabelValues("zero_result")), 1e-9)
}

func TestEngine_Search_Hybrid(t *testing.T) {
	// Given: an engine with the static embedder and indexed vectors
	env := buildEnv(t)
	static := embed.NewStaticEmbedderWithTokenizer(env.tok)
	provider := embed.NewLazy(func(context.Context) (embed.Embedder, error) { return static, nil })
	e := env.engine(t, WithEmbeddings(provider, env.vectors))

	// When: searching with embeddings
	resp, err := e.Search(context.Background(), "图书馆", "", SearchOptions{UseEmbedding: true})

	// Then: semantic scores contribute
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	assert.False(t, resp.Degraded)
	assert.NotZero(t, resp.Results[0].EmbeddingScore)
	for _, r := range resp.Results {
		assert.GreaterOrEqual(t, r.Score, 0.0)
		assert.LessOrEqual(t, r.Score, 1.0)
	}
	snap := env.queryLog.Snapshot(5)
	assert.Equal(t, int64(1), snap.KindCounts[telemetry.QueryKindHybrid])
}

func TestEngine_Search_DegradesWhenProviderFails(t *testing.T) {
	// Given: a provider that cannot load
	env := buildEnv(t)
	provider := &failingProvider{}
	e := env.engine(t, WithEmbeddings(provider, env.vectors))

	// When: searching with embeddings
	resp, err := e.Search(context.Background(), "library", "", SearchOptions{UseEmbedding: true})

	// Then: lexical results come back flagged as degraded
	require.NoError(t, err)
	assert.True(t, resp.Degraded)
	assert.Equal(t, 1, provider.calls)
	assert.Equal(t, []string{"lib-en"}, ids(resp))
	assert.Zero(t, resp.Results[0].EmbeddingScore)
	assert.InDelta(t, 1, testutil.ToFloat64(env.metrics.SearchDegradedTotal), 1e-9)
	assert.Equal(t, int64(1), env.queryLog.Snapshot(5).KindCounts[telemetry.QueryKindDegraded])
}

func TestEngine_Search_EmbeddingWithoutProviderIsDegraded(t *testing.T) {
	env := buildEnv(t)
	e := env.engine(t)

	resp, err := e.Search(context.Background(), "library", "", SearchOptions{UseEmbedding: true})

	require.NoError(t, err)
	assert.True(t, resp.Degraded)
	assert.NotEmpty(t, resp.Results)
}

func TestEngine_Search_Limit(t *testing.T) {
	env := buildEnv(t)
	e := env.engine(t)

	resp, err := e.Search(context.Background(), "图书馆 library", "", SearchOptions{Limit: 1})

	require.NoError(t, err)
	assert.Len(t, resp.Results, 1)
	assert.Equal(t, 3, resp.TotalResults)
}

func TestEngine_Search_AlphaOverride(t *testing.T) {
	env := buildEnv(t)
	static := embed.NewStaticEmbedderWithTokenizer(env.tok)
	provider := embed.NewLazy(func(context.Context) (embed.Embedder, error) { return static, nil })
	e := env.engine(t, WithEmbeddings(provider, env.vectors))

	lexicalOnly, err := e.Search(context.Background(), "图书馆", "", SearchOptions{})
	require.NoError(t, err)

	alpha := 4.0
	clamped, err := e.Search(context.Background(), "图书馆", "", SearchOptions{UseEmbedding: true, Alpha: &alpha})
	require.NoError(t, err)

	// alpha clamps to 1, so the blend equals the lexical ranking
	assert.Equal(t, ids(lexicalOnly), ids(clamped))
	for i := range clamped.Results {
		assert.InDelta(t, lexicalOnly.Results[i].Score, clamped.Results[i].Score, 1e-12)
	}
}

func TestEngine_Search_RecordsQueryLog(t *testing.T) {
	env := buildEnv(t)
	e := env.engine(t)

	_, err := e.Search(context.Background(), "library", "", SearchOptions{})
	require.NoError(t, err)
	_, err = e.Search(context.Background(), "nonexistentterm", "", SearchOptions{})
	require.NoError(t, err)

	snap := env.queryLog.Snapshot(10)
	assert.Equal(t, int64(2), snap.TotalQueries)
	assert.Equal(t, int64(1), snap.ZeroResultCount)
	assert.Contains(t, snap.ZeroResultQueries, "nonexistentterm")
	assert.InDelta(t, 1, testutil.ToFloat64(env.metrics.SearchQueriesTotal.WithLabelValues("hit")), 1e-9)
}

func TestEngine_Search_PersistenceError(t *testing.T) {
	tok := tokenize.New(tokenize.DefaultConfig())
	m := telemetry.New()
	e, err := NewEngine(tok, brokenPersistence{store.NewMemoryPersistence()}, DefaultConfig(), WithMetrics(m))
	require.NoError(t, err)

	_, err = e.Search(context.Background(), "library", "", SearchOptions{})

	require.Error(t, err)
	assert.Equal(t, mserrors.ErrCodePersistence, mserrors.GetCode(err))
	assert.InDelta(t, 1, testutil.ToFloat64(m.SearchQueriesTotal.WithLabelValues("error")), 1e-9)
}

func TestEngine_Search_JSONShape(t *testing.T) {
	env := buildEnv(t)
	e := env.engine(t)

	resp, err := e.Search(context.Background(), "library", "all", SearchOptions{})
	require.NoError(t, err)

	raw, err := json.Marshal(resp)
	require.NoError(t, err)
	out := string(raw)
	for _, key := range []string{`"query"`, `"scope"`, `"totalResults"`, `"elapsed"`, `"docId"`, `"bm25Score"`, `"embeddingScore"`, `"snippet"`} {
		assert.True(t, strings.Contains(out, key), key)
	}
}

func TestEngine_Summary(t *testing.T) {
	env := buildEnv(t)
	e := env.engine(t)

	summary, err := e.Summary(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 4, summary.Documents)
	assert.Positive(t, summary.Terms)
	assert.Positive(t, summary.AvgDocLength)
	assert.NotEmpty(t, summary.Generation)
	assert.Equal(t, map[string]int{"local": 2, "remote": 2}, summary.Sources)
}

func TestSnippet(t *testing.T) {
	long := strings.Repeat("长", 300)

	tests := []struct {
		name     string
		content  string
		terms    []string
		fallback string
		want     string
	}{
		{"first matching chunk", "Alpha beta. Gamma delta.", []string{"gamma"}, "T", "Gamma delta."},
		{"no match uses fallback", "Alpha beta.", []string{"zeta"}, "Title", "Title"},
		{"no content", "", []string{"x"}, "Title", "Title"},
		{"truncated", long, []string{"长"}, "", strings.Repeat("长", MaxSnippetRunes-1) + "…"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Snippet(tt.content, tt.terms, tt.fallback))
		})
	}
}

func TestSnippetAt(t *testing.T) {
	long := strings.Repeat("前", 40) + "图书馆"
	at := strings.Index(long, "图书馆")

	tests := []struct {
		name     string
		content  string
		at       int
		fallback string
		want     string
	}{
		{"starts at enclosing line", "Intro.\nThe GPU  is\tfast.", strings.Index("Intro.\nThe GPU  is\tfast.", "GPU"), "T", "The GPU is fast."},
		{"long line keeps lead", long, at, "T", "…" + strings.Repeat("前", snippetLead) + "图书馆"},
		{"mid-rune offset snaps back", "图书馆", 1, "T", "图书馆"},
		{"offset past content", "abc", 3, "Title", "Title"},
		{"negative offset", "abc", -1, "Title", "Title"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SnippetAt(tt.content, tt.at, tt.fallback))
		})
	}
}

func TestEngine_Search_SnippetFromTermLocator(t *testing.T) {
	ctx := context.Background()
	doc := &store.Document{
		ID:      "fw",
		Source:  "local",
		Title:   "Hardware",
		Content: "Notes first line.\nＧＰＵ加速 makes rendering quick.",
	}

	// Given: a build that also archives the indexed text
	tok := tokenize.New(tokenize.DefaultConfig())
	source := store.NewMemorySource(doc)
	persistence := store.NewMemoryPersistence()
	archive, err := store.NewBleveArchive(tokenize.CJKBigram)
	require.NoError(t, err)
	defer func() { _ = archive.Close() }()

	b, err := index.NewBuilder(index.Dependencies{
		Tokenizer:   tok,
		Source:      source,
		Persistence: persistence,
		Archive:     archive,
	}, index.Config{})
	require.NoError(t, err)
	result, err := b.Execute(ctx)
	require.NoError(t, err)
	require.Equal(t, result.Generation, archive.Generation())

	e, err := NewEngine(tok, persistence, DefaultConfig(),
		WithDocumentLookup(source), WithTermLocator(archive))
	require.NoError(t, err)

	tests := []struct {
		name       string
		generation string
		want       string
	}{
		{"archive holds the searched generation", result.Generation, "ＧＰＵ加速 makes rendering quick."},
		{"archive holds another generation", "gen-elsewhere", "Hardware"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, archive.Replace(ctx, tt.generation, []*store.Document{doc}))

			// When: searching a term the content only holds in fullwidth form
			resp, err := e.Search(ctx, "gpu", "", SearchOptions{})

			// Then: the snippet starts at the matched line only when the
			// archive matches the ranked generation
			require.NoError(t, err)
			require.Len(t, resp.Results, 1)
			assert.Equal(t, tt.want, resp.Results[0].Snippet)
		})
	}
}
