// Package search ranks indexed documents against a query, blending BM25 with
// optional embedding similarity.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Aman-CERP/mixsearch/internal/embed"
	mserrors "github.com/Aman-CERP/mixsearch/internal/errors"
	"github.com/Aman-CERP/mixsearch/internal/store"
	"github.com/Aman-CERP/mixsearch/internal/telemetry"
	"github.com/Aman-CERP/mixsearch/internal/tokenize"
)

// Engine defaults.
const (
	DefaultAlpha = 0.5
	DefaultLimit = 10
	MaxLimit     = 100
)

// ErrNilDependency is returned when a required collaborator is missing.
var ErrNilDependency = errors.New("nil dependency")

// Config configures the engine.
type Config struct {
	Ranker RankerConfig `yaml:"ranker" json:"ranker"`

	// DefaultAlpha applies when SearchOptions.Alpha is nil.
	DefaultAlpha float64 `yaml:"alpha" json:"alpha"`

	// DefaultLimit applies when SearchOptions.Limit is 0.
	DefaultLimit int `yaml:"limit" json:"limit"`
}

// DefaultConfig returns BM25 defaults, alpha 0.5 and limit 10.
func DefaultConfig() Config {
	return Config{
		Ranker:       DefaultRankerConfig(),
		DefaultAlpha: DefaultAlpha,
		DefaultLimit: DefaultLimit,
	}
}

// SearchOptions configures one search.
type SearchOptions struct {
	// Alpha overrides the configured lexical weight. Values outside [0, 1]
	// are clamped.
	Alpha *float64

	// UseEmbedding blends in embedding similarity.
	UseEmbedding bool

	// Limit is the maximum number of results (0: default, negative: all,
	// capped at MaxLimit otherwise).
	Limit int
}

// Result is one search hit.
type Result struct {
	DocID          string  `json:"docId"`
	Title          string  `json:"title"`
	Snippet        string  `json:"snippet"`
	Score          float64 `json:"score"`
	BM25Score      float64 `json:"bm25Score"`
	EmbeddingScore float64 `json:"embeddingScore"`
	Source         string  `json:"source"`
}

// Response is the outcome of a search.
type Response struct {
	Query        string        `json:"query"`
	Scope        string        `json:"scope"`
	TotalResults int           `json:"totalResults"`
	Elapsed      time.Duration `json:"-"`
	ElapsedMS    float64       `json:"elapsed"`
	Degraded     bool          `json:"degraded,omitempty"`
	Results      []Result      `json:"results"`
}

// Engine runs searches against the committed index.
type Engine struct {
	cfg      Config
	ranker   *Ranker
	provider embed.Provider
	vectors  VectorLookup
	lookup   store.DocumentLookup
	locator  TermLocator
	metrics  *telemetry.Metrics
	queryLog *telemetry.QueryLog
	logger   *slog.Logger
}

// EngineOption configures the search engine.
type EngineOption func(*Engine)

// WithEmbeddings enables semantic scoring with provider for queries and
// vectors for documents.
func WithEmbeddings(provider embed.Provider, vectors VectorLookup) EngineOption {
	return func(e *Engine) {
		e.provider = provider
		e.vectors = vectors
	}
}

// WithDocumentLookup sets where snippet text comes from.
func WithDocumentLookup(lookup store.DocumentLookup) EngineOption {
	return func(e *Engine) {
		e.lookup = lookup
	}
}

// TermLocator finds where matched terms occur in the text of one index
// generation. *store.BleveArchive implements it.
type TermLocator interface {
	Generation() string
	Locate(ctx context.Context, id string, terms []string) (*store.Document, []store.Span, error)
}

// WithTermLocator centers snippets on the first matched term. It is used
// only while its generation is the one being searched; other searches fall
// back to the document lookup.
func WithTermLocator(locator TermLocator) EngineOption {
	return func(e *Engine) {
		e.locator = locator
	}
}

// WithMetrics records search metrics.
func WithMetrics(m *telemetry.Metrics) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithQueryLog records every search in log.
func WithQueryLog(log *telemetry.QueryLog) EngineOption {
	return func(e *Engine) {
		e.queryLog = log
	}
}

// WithLogger sets the logger, slog.Default() otherwise.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// NewEngine creates a search engine over index.
func NewEngine(tok *tokenize.Tokenizer, index store.IndexPersistence, cfg Config, opts ...EngineOption) (*Engine, error) {
	if tok == nil {
		return nil, fmt.Errorf("%w: tokenizer", ErrNilDependency)
	}
	if index == nil {
		return nil, fmt.Errorf("%w: index persistence", ErrNilDependency)
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = DefaultLimit
	}
	cfg.DefaultAlpha = clampAlpha(cfg.DefaultAlpha)

	e := &Engine{
		cfg:    cfg,
		ranker: NewRanker(tok, index, cfg.Ranker),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Search ranks the committed index against query. Persistence errors are
// returned; embedding failures degrade to lexical-only scoring.
func (e *Engine) Search(ctx context.Context, query, scope string, opts SearchOptions) (*Response, error) {
	start := time.Now()
	query = strings.TrimSpace(query)
	resp := &Response{Query: query, Scope: scope, Results: []Result{}}

	weights, terms := e.ranker.QueryWeights(query)
	if len(weights) == 0 {
		e.finish(resp, terms, start, false, nil)
		return resp, nil
	}

	alpha := e.cfg.DefaultAlpha
	if opts.Alpha != nil {
		alpha = clampAlpha(*opts.Alpha)
	}

	req := RankRequest{
		Weights: weights,
		Scope:   scope,
		Alpha:   alpha,
		Limit:   e.limit(opts.Limit),
	}

	if opts.UseEmbedding {
		vec, err := e.queryVector(ctx, query)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			resp.Degraded = true
			e.logger.Warn("search_degraded",
				slog.String("query", query),
				slog.String("error", err.Error()))
			if e.metrics != nil {
				e.metrics.SearchDegradedTotal.Inc()
			}
		} else if vec != nil {
			req.QueryVector = vec
			req.Vectors = e.vectors
			req.Cosine = e.provider.Cosine
		}
	}

	ranking, err := e.ranker.Rank(ctx, req)
	if err != nil {
		e.finish(resp, terms, start, false, err)
		return nil, err
	}

	resp.TotalResults = ranking.Total
	for _, s := range ranking.Results {
		resp.Results = append(resp.Results, Result{
			DocID:          s.DocID,
			Title:          s.Stat.Title,
			Snippet:        e.snippet(ctx, ranking.Generation, s),
			Score:          s.Score,
			BM25Score:      s.BM25,
			EmbeddingScore: s.Semantic,
			Source:         s.Stat.Source,
		})
	}

	e.finish(resp, terms, start, ranking.Semantic, nil)
	return resp, nil
}

// queryVector embeds the query. A nil vector with nil error means the
// provider produced no embedding for this text.
func (e *Engine) queryVector(ctx context.Context, query string) ([]float32, error) {
	if e.provider == nil || e.vectors == nil {
		return nil, mserrors.ProviderError("embedding provider is not configured", nil)
	}
	vec, err := e.provider.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	return vec, nil
}

func (e *Engine) limit(requested int) int {
	switch {
	case requested < 0:
		return 0
	case requested == 0:
		return e.cfg.DefaultLimit
	case requested > MaxLimit:
		return MaxLimit
	default:
		return requested
	}
}

func (e *Engine) snippet(ctx context.Context, generation string, s Scored) string {
	if e.locator != nil && generation != "" && e.locator.Generation() == generation {
		doc, spans, err := e.locator.Locate(ctx, s.DocID, s.Terms)
		switch {
		case err != nil:
			e.logger.Debug("snippet_locate_failed",
				slog.String("doc_id", s.DocID),
				slog.String("error", err.Error()))
		case len(spans) > 0:
			return SnippetAt(doc.Content, spans[0].Start, s.Stat.Title)
		default:
			return Snippet(doc.Content, s.Terms, s.Stat.Title)
		}
	}
	if e.lookup == nil {
		return Snippet("", nil, s.Stat.Title)
	}
	doc, err := e.lookup.Get(ctx, s.DocID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			e.logger.Debug("snippet_lookup_failed",
				slog.String("doc_id", s.DocID),
				slog.String("error", err.Error()))
		}
		return Snippet("", nil, s.Stat.Title)
	}
	return Snippet(doc.Content, s.Terms, s.Stat.Title)
}

// finish stamps the elapsed time and records telemetry.
func (e *Engine) finish(resp *Response, terms []string, start time.Time, semantic bool, searchErr error) {
	resp.Elapsed = time.Since(start)
	resp.ElapsedMS = float64(resp.Elapsed.Microseconds()) / 1000

	kind := telemetry.QueryKindLexical
	switch {
	case resp.Degraded:
		kind = telemetry.QueryKindDegraded
	case semantic:
		kind = telemetry.QueryKindHybrid
	}

	if e.metrics != nil {
		resultType := "hit"
		switch {
		case searchErr != nil:
			resultType = "error"
		case len(resp.Results) == 0:
			resultType = "zero_result"
		}
		e.metrics.SearchQueriesTotal.WithLabelValues(resultType).Inc()
		e.metrics.SearchLatency.Observe(resp.Elapsed.Seconds())
		e.metrics.SearchResultsCount.Observe(float64(len(resp.Results)))
	}

	if e.queryLog != nil && searchErr == nil {
		e.queryLog.Record(telemetry.QueryEvent{
			Query:       resp.Query,
			Kind:        kind,
			Terms:       terms,
			ResultCount: len(resp.Results),
			Latency:     resp.Elapsed,
		})
	}

	e.logger.Debug("search_complete",
		slog.String("query", resp.Query),
		slog.String("scope", resp.Scope),
		slog.Int("results", len(resp.Results)),
		slog.Bool("degraded", resp.Degraded),
		slog.Int64("elapsed_us", resp.Elapsed.Microseconds()))
}

// IndexSummary describes the committed generation.
type IndexSummary struct {
	Documents    int            `json:"documents"`
	Terms        int            `json:"terms"`
	AvgDocLength float64        `json:"avgDocLength"`
	Generation   string         `json:"generation,omitempty"`
	BuiltAt      time.Time      `json:"builtAt,omitzero"`
	Sources      map[string]int `json:"sources"`
}

// Summary reports the size of the committed index.
func (e *Engine) Summary(ctx context.Context) (*IndexSummary, error) {
	stats, err := e.ranker.index.GetStats(ctx)
	if err != nil {
		return nil, mserrors.PersistenceError("failed to load document statistics", err)
	}
	idx, err := e.ranker.index.GetIndex(ctx)
	if err != nil {
		return nil, mserrors.PersistenceError("failed to load index", err)
	}

	sources := make(map[string]int)
	for _, id := range stats.DocIDs() {
		st, _ := stats.Get(id)
		sources[st.Source]++
	}
	return &IndexSummary{
		Documents:    stats.TotalDocuments(),
		Terms:        idx.TermCount(),
		AvgDocLength: stats.AverageDocumentLength(),
		Generation:   stats.Generation,
		BuiltAt:      stats.BuiltAt,
		Sources:      sources,
	}, nil
}
