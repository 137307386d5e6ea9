package mcp

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/mixsearch/internal/async"
	mserrors "github.com/Aman-CERP/mixsearch/internal/errors"
	"github.com/Aman-CERP/mixsearch/internal/index"
	"github.com/Aman-CERP/mixsearch/internal/search"
	"github.com/Aman-CERP/mixsearch/internal/telemetry"
	"github.com/Aman-CERP/mixsearch/internal/tokenize"
)

// MockSearcher implements Searcher for testing.
type MockSearcher struct {
	SearchFn  func(ctx context.Context, query, scope string, opts search.SearchOptions) (*search.Response, error)
	SummaryFn func(ctx context.Context) (*search.IndexSummary, error)
}

func (m *MockSearcher) Search(ctx context.Context, query, scope string, opts search.SearchOptions) (*search.Response, error) {
	if m.SearchFn != nil {
		return m.SearchFn(ctx, query, scope, opts)
	}
	return &search.Response{Query: query, Scope: scope, Results: []search.Result{}}, nil
}

func (m *MockSearcher) Summary(ctx context.Context) (*search.IndexSummary, error) {
	if m.SummaryFn != nil {
		return m.SummaryFn(ctx)
	}
	return &search.IndexSummary{}, nil
}

var _ Searcher = (*MockSearcher)(nil)

// MockBuilder implements Builder for testing.
type MockBuilder struct {
	Result *index.BuildResult
	Err    error
	Calls  int
}

func (m *MockBuilder) Execute(_ context.Context) (*index.BuildResult, error) {
	m.Calls++
	return m.Result, m.Err
}

func newTestServer(t *testing.T, deps Dependencies) *Server {
	t.Helper()
	if deps.Engine == nil {
		deps.Engine = &MockSearcher{}
	}
	if deps.Tokenizer == nil {
		deps.Tokenizer = tokenize.New(tokenize.DefaultConfig())
	}
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	}
	srv, err := NewServer(deps)
	require.NoError(t, err)
	return srv
}

func TestNewServer_RequiresEngineAndTokenizer(t *testing.T) {
	_, err := NewServer(Dependencies{Tokenizer: tokenize.New(tokenize.DefaultConfig())})
	assert.Error(t, err)

	_, err = NewServer(Dependencies{Engine: &MockSearcher{}})
	assert.Error(t, err)
}

func TestServer_ListTools(t *testing.T) {
	tests := []struct {
		name    string
		builder Builder
		want    []string
	}{
		{"without builder", nil, []string{"search", "tokenize", "stats"}},
		{"with builder", &MockBuilder{}, []string{"search", "tokenize", "stats", "build_index"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, Dependencies{Builder: tt.builder})

			var names []string
			for _, tool := range srv.ListTools() {
				names = append(names, tool.Name)
				assert.NotEmpty(t, tool.Description)
			}
			assert.Equal(t, tt.want, names)
		})
	}
}

func TestServer_Info(t *testing.T) {
	srv := newTestServer(t, Dependencies{})

	name, ver := srv.Info()

	assert.Equal(t, "mixsearch", name)
	assert.NotEmpty(t, ver)
	assert.NotNil(t, srv.MCPServer())
}

func TestServer_SearchTool_PassesOptions(t *testing.T) {
	// Given: a searcher recording its arguments
	var gotQuery, gotScope string
	var gotOpts search.SearchOptions
	engine := &MockSearcher{
		SearchFn: func(_ context.Context, query, scope string, opts search.SearchOptions) (*search.Response, error) {
			gotQuery, gotScope, gotOpts = query, scope, opts
			return &search.Response{
				Query:        query,
				Scope:        scope,
				TotalResults: 1,
				ElapsedMS:    1.5,
				Results: []search.Result{
					{DocID: "d1", Title: "北京 guide", Score: 1, BM25Score: 2.3, Source: "local"},
				},
			}, nil
		},
	}
	srv := newTestServer(t, Dependencies{Engine: engine})

	// When: calling search with every option
	out, err := srv.CallTool(context.Background(), "search", map[string]any{
		"query": "北京 travel",
		"scope": "local",
		"alpha": 0.25,
		"embed": true,
		"limit": 5,
	})

	// Then: options reach the engine and results come back
	require.NoError(t, err)
	assert.Equal(t, "北京 travel", gotQuery)
	assert.Equal(t, "local", gotScope)
	require.NotNil(t, gotOpts.Alpha)
	assert.InDelta(t, 0.25, *gotOpts.Alpha, 1e-9)
	assert.True(t, gotOpts.UseEmbedding)
	assert.Equal(t, 5, gotOpts.Limit)

	res, ok := out.(SearchOutput)
	require.True(t, ok)
	assert.Equal(t, 1, res.TotalResults)
	assert.InDelta(t, 1.5, res.Elapsed, 1e-9)
	require.Len(t, res.Results, 1)
	assert.Equal(t, "d1", res.Results[0].DocID)
}

func TestServer_SearchTool_AllScopeMeansEverySource(t *testing.T) {
	var gotScope = "unset"
	engine := &MockSearcher{
		SearchFn: func(_ context.Context, query, scope string, _ search.SearchOptions) (*search.Response, error) {
			gotScope = scope
			return &search.Response{Query: query, Results: []search.Result{}}, nil
		},
	}
	srv := newTestServer(t, Dependencies{Engine: engine})

	_, err := srv.CallTool(context.Background(), "search", map[string]any{"query": "x", "scope": "ALL"})

	require.NoError(t, err)
	assert.Equal(t, "", gotScope)
}

func TestServer_SearchTool_RejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		args map[string]any
	}{
		{"missing query", map[string]any{}},
		{"whitespace query", map[string]any{"query": "   "}},
		{"alpha above one", map[string]any{"query": "x", "alpha": 1.5}},
		{"alpha below zero", map[string]any{"query": "x", "alpha": -0.1}},
		{"wrong type", map[string]any{"query": 42}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, Dependencies{})

			_, err := srv.CallTool(context.Background(), "search", tt.args)

			var mcpErr *MCPError
			require.ErrorAs(t, err, &mcpErr)
			assert.Equal(t, ErrCodeInvalidParams, mcpErr.Code)
		})
	}
}

func TestServer_SearchTool_MapsEngineErrors(t *testing.T) {
	engine := &MockSearcher{
		SearchFn: func(context.Context, string, string, search.SearchOptions) (*search.Response, error) {
			return nil, mserrors.PersistenceError("failed to load index", errors.New("disk"))
		},
	}
	srv := newTestServer(t, Dependencies{Engine: engine})

	_, err := srv.CallTool(context.Background(), "search", map[string]any{"query": "x"})

	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeIndexUnavailable, mcpErr.Code)
}

func TestServer_TokenizeTool(t *testing.T) {
	tests := []struct {
		name       string
		args       map[string]any
		wantTokens []string
	}{
		{
			name:       "document mode span",
			args:       map[string]any{"text": "图书馆", "cjkMode": "span"},
			wantTokens: []string{"图书馆"},
		},
		{
			name:       "document mode char",
			args:       map[string]any{"text": "图书馆", "cjkMode": "CHAR"},
			wantTokens: []string{"图", "书", "馆"},
		},
		{
			name:       "empty text",
			args:       map[string]any{"text": ""},
			wantTokens: []string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, Dependencies{})

			out, err := srv.CallTool(context.Background(), "tokenize", tt.args)

			require.NoError(t, err)
			res := out.(TokenizeOutput)
			assert.Equal(t, tt.wantTokens, res.Tokens)
			assert.Equal(t, len(tt.wantTokens), res.Length)
		})
	}
}

func TestServer_TokenizeTool_QueryModeMergesPasses(t *testing.T) {
	srv := newTestServer(t, Dependencies{})

	out, err := srv.CallTool(context.Background(), "tokenize", map[string]any{"text": "图书馆", "mode": "query"})

	require.NoError(t, err)
	res := out.(TokenizeOutput)
	assert.ElementsMatch(t, []string{"图", "书", "馆", "图书", "书馆"}, res.Tokens)
	assert.Equal(t, 2.0, res.TF["图"])
	assert.Equal(t, 1.0, res.TF["图书"])
	assert.Equal(t, 5, res.UniqueTerms)
}

func TestServer_TokenizeTool_RejectsUnknownModes(t *testing.T) {
	srv := newTestServer(t, Dependencies{})

	_, err := srv.CallTool(context.Background(), "tokenize", map[string]any{"text": "x", "mode": "fuzzy"})
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeInvalidParams, mcpErr.Code)

	_, err = srv.CallTool(context.Background(), "tokenize", map[string]any{"text": "x", "cjkMode": "trigram"})
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeInvalidParams, mcpErr.Code)
}

func TestServer_StatsTool(t *testing.T) {
	// Given: a summary and a query log with one recorded search
	builtAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	engine := &MockSearcher{
		SummaryFn: func(context.Context) (*search.IndexSummary, error) {
			return &search.IndexSummary{
				Documents:    3,
				Terms:        42,
				AvgDocLength: 14,
				Generation:   "gen-1",
				BuiltAt:      builtAt,
				Sources:      map[string]int{"local": 3},
			}, nil
		},
	}
	qlog := telemetry.NewQueryLog(100, 10)
	qlog.Record(telemetry.QueryEvent{
		Query:       "北京",
		Kind:        telemetry.QueryKindLexical,
		Terms:       []string{"北", "京", "北京"},
		ResultCount: 0,
		Latency:     3 * time.Millisecond,
	})
	srv := newTestServer(t, Dependencies{Engine: engine, QueryLog: qlog})

	// When: calling stats
	out, err := srv.CallTool(context.Background(), "stats", nil)

	// Then: the summary and query activity are reported
	require.NoError(t, err)
	res := out.(StatsOutput)
	assert.Equal(t, 3, res.Documents)
	assert.Equal(t, 42, res.Terms)
	assert.Equal(t, "gen-1", res.Generation)
	assert.Equal(t, "2026-03-01T12:00:00Z", res.BuiltAt)
	assert.Equal(t, map[string]int{"local": 3}, res.Sources)
	require.NotNil(t, res.Queries)
	assert.Equal(t, int64(1), res.Queries.Total)
	assert.Equal(t, int64(1), res.Queries.ZeroResults)
	assert.Equal(t, int64(1), res.Queries.Kinds["lexical"])
}

func TestServer_StatsTool_EmptyIndex(t *testing.T) {
	srv := newTestServer(t, Dependencies{})

	out, err := srv.CallTool(context.Background(), "stats", nil)

	require.NoError(t, err)
	res := out.(StatsOutput)
	assert.Zero(t, res.Documents)
	assert.Empty(t, res.BuiltAt)
	assert.NotNil(t, res.Sources)
	assert.Nil(t, res.Queries)
}

func TestServer_StatsTool_IndexingStatus(t *testing.T) {
	// Given: builds tracked by a background indexer
	b := &MockBuilder{Result: &index.BuildResult{Success: true, IndexedCount: 5, Generation: "gen-bg"}}
	indexer := async.NewBackgroundIndexer(b, nil)
	srv := newTestServer(t, Dependencies{Builder: indexer, BuildStatus: indexer})

	// When: a build runs through the tool, then stats is called
	_, err := srv.CallTool(context.Background(), "build_index", nil)
	require.NoError(t, err)
	out, err := srv.CallTool(context.Background(), "stats", nil)

	// Then: the last build is reported
	require.NoError(t, err)
	res := out.(StatsOutput)
	require.NotNil(t, res.Indexing)
	assert.Equal(t, "ready", res.Indexing.State)
	assert.Equal(t, 1, res.Indexing.Builds)
	assert.Equal(t, "gen-bg", res.Indexing.Generation)
	assert.NotEmpty(t, res.Indexing.FinishedAt)
}

func TestServer_BuildIndexTool(t *testing.T) {
	b := &MockBuilder{Result: &index.BuildResult{
		Success:      true,
		IndexedCount: 4,
		SkippedCount: 1,
		TotalTerms:   90,
		AvgDocLength: 22.5,
		Generation:   "gen-2",
		Duration:     1500 * time.Millisecond,
	}}
	srv := newTestServer(t, Dependencies{Builder: b})

	out, err := srv.CallTool(context.Background(), "build_index", nil)

	require.NoError(t, err)
	assert.Equal(t, 1, b.Calls)
	res := out.(BuildIndexOutput)
	assert.True(t, res.Success)
	assert.Equal(t, 4, res.IndexedCount)
	assert.Equal(t, 1, res.SkippedCount)
	assert.Equal(t, "gen-2", res.Generation)
	assert.Equal(t, int64(1500), res.DurationMS)
}

func TestServer_BuildIndexTool_Locked(t *testing.T) {
	b := &MockBuilder{Err: mserrors.New(mserrors.ErrCodeIndexLocked, "another build is running", nil)}
	srv := newTestServer(t, Dependencies{Builder: b})

	_, err := srv.CallTool(context.Background(), "build_index", nil)

	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeIndexBusy, mcpErr.Code)
}

func TestServer_CallTool_Unknown(t *testing.T) {
	tests := []struct {
		name string
		tool string
	}{
		{"unknown tool", "explode"},
		{"build without builder", "build_index"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, Dependencies{})

			_, err := srv.CallTool(context.Background(), tt.tool, nil)

			var mcpErr *MCPError
			require.ErrorAs(t, err, &mcpErr)
			assert.Equal(t, ErrCodeMethodNotFound, mcpErr.Code)
		})
	}
}
