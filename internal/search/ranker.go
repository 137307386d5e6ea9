package search

import (
	"context"
	"math"
	"sort"

	mserrors "github.com/Aman-CERP/mixsearch/internal/errors"
	"github.com/Aman-CERP/mixsearch/internal/store"
	"github.com/Aman-CERP/mixsearch/internal/tokenize"
)

// BM25 defaults.
const (
	DefaultK1 = 1.2
	DefaultB  = 0.75
)

// ScopeAll disables scope filtering, as does the empty scope.
const ScopeAll = "all"

// RankerConfig configures BM25.
type RankerConfig struct {
	K1 float64 `yaml:"k1" json:"k1"`
	B  float64 `yaml:"b" json:"b"`
}

// DefaultRankerConfig returns k1=1.2, b=0.75.
func DefaultRankerConfig() RankerConfig {
	return RankerConfig{K1: DefaultK1, B: DefaultB}
}

// VectorLookup returns the stored embedding of a document.
// *store.HNSWStore implements it.
type VectorLookup interface {
	Get(docID string) ([]float32, bool)
}

// RankRequest is the input of one ranking.
type RankRequest struct {
	// Query is the raw query. Ignored when Weights is set.
	Query string

	// Weights maps query-mode terms to their query weight.
	Weights map[string]float64

	// Scope restricts candidates to one DocStat.Source. "" and "all" mean
	// no restriction.
	Scope string

	// Alpha weighs lexical against semantic scores, in [0, 1].
	Alpha float64

	// QueryVector enables semantic scoring when non-nil.
	QueryVector []float32

	// Vectors holds document embeddings for semantic scoring.
	Vectors VectorLookup

	// Cosine computes similarity. Semantic scoring is off when nil.
	Cosine func(a, b []float32) float64

	// Limit truncates the output. 0 means no limit.
	Limit int
}

// Scored is one ranked document.
type Scored struct {
	DocID string
	Stat  store.DocStat

	// Score is the blended score in [0, 1].
	Score float64

	// BM25 is the raw lexical score.
	BM25 float64

	// Semantic is the raw cosine similarity, 0 without an embedding.
	Semantic float64

	// Terms are the query terms that matched, in lexical order.
	Terms []string
}

// Ranking is the output of Rank.
type Ranking struct {
	Results []Scored

	// Total is the number of candidates before Limit.
	Total int

	// Semantic reports whether semantic scores took part in the blend.
	Semantic bool

	// Generation identifies the index generation that was ranked.
	Generation string
}

// Ranker scores documents against a query using BM25 over the committed
// index, optionally blended with embedding similarity. It is stateless apart
// from its collaborators and safe for concurrent use.
type Ranker struct {
	cfg   RankerConfig
	tok   *tokenize.Tokenizer
	index store.IndexPersistence
}

// NewRanker creates a Ranker reading through index.
func NewRanker(tok *tokenize.Tokenizer, index store.IndexPersistence, cfg RankerConfig) *Ranker {
	if cfg.K1 <= 0 {
		cfg.K1 = DefaultK1
	}
	if cfg.B < 0 || cfg.B > 1 {
		cfg.B = DefaultB
	}
	return &Ranker{cfg: cfg, tok: tok, index: index}
}

// QueryWeights tokenizes query in query mode and returns the term weights
// and the ordered term list.
func (r *Ranker) QueryWeights(query string) (map[string]float64, []string) {
	st := r.tok.Stats(query, tokenize.Options{Mode: tokenize.ModeQuery})
	return st.TF, st.Tokens
}

// Rank scores and orders candidates.
func (r *Ranker) Rank(ctx context.Context, req RankRequest) (*Ranking, error) {
	weights := req.Weights
	if weights == nil {
		weights, _ = r.QueryWeights(req.Query)
	}
	if len(weights) == 0 {
		return &Ranking{Results: []Scored{}}, nil
	}

	// Statistics and postings must come from one generation.
	view, err := r.index.Snapshot(ctx)
	if err != nil {
		return nil, mserrors.PersistenceError("failed to load document statistics", err)
	}
	generation := view.Stats().Generation
	candidates, err := r.lexical(ctx, weights, view, req.Scope)
	view.Release()
	if err != nil {
		return nil, err
	}

	semantic := req.QueryVector != nil && req.Vectors != nil && req.Cosine != nil
	if semantic {
		for i := range candidates {
			if vec, ok := req.Vectors.Get(candidates[i].DocID); ok {
				candidates[i].Semantic = req.Cosine(req.QueryVector, vec)
			}
		}
	}

	blend(candidates, clampAlpha(req.Alpha), semantic)

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].DocID < candidates[j].DocID
	})

	total := len(candidates)
	if req.Limit > 0 && len(candidates) > req.Limit {
		candidates = candidates[:req.Limit]
	}
	return &Ranking{Results: candidates, Total: total, Semantic: semantic, Generation: generation}, nil
}

// lexical accumulates BM25 per document. Terms are visited in sorted order
// so float sums are reproducible.
func (r *Ranker) lexical(ctx context.Context, weights map[string]float64, view store.IndexView, scope string) ([]Scored, error) {
	stats := view.Stats()
	n := float64(stats.TotalDocuments())
	avgdl := stats.AverageDocumentLength()
	k1, b := r.cfg.K1, r.cfg.B

	terms := make([]string, 0, len(weights))
	for term := range weights {
		terms = append(terms, term)
	}
	sort.Strings(terms)

	byDoc := make(map[string]*Scored)
	for _, term := range terms {
		w := weights[term]
		if w <= 0 {
			continue
		}

		postings, err := view.PostingList(ctx, term)
		if err != nil {
			return nil, mserrors.PersistenceError("failed to read posting list", err).WithDetail("term", term)
		}
		df := float64(len(postings))
		if df == 0 {
			continue
		}
		idf := math.Log(1 + (n-df+0.5)/(df+0.5))

		for _, p := range postings {
			st, ok := stats.Get(p.DocID)
			if !ok || !inScope(st, scope) {
				continue
			}

			ratio := 1.0
			if avgdl > 0 {
				ratio = float64(st.Length) / avgdl
			}
			tf := float64(p.TermFrequency)
			contrib := w * idf * tf * (k1 + 1) / (tf + k1*(1-b+b*ratio))
			if contrib <= 0 || math.IsNaN(contrib) {
				continue
			}

			s, ok := byDoc[p.DocID]
			if !ok {
				s = &Scored{DocID: p.DocID, Stat: st}
				byDoc[p.DocID] = s
			}
			s.BM25 += contrib
			s.Terms = append(s.Terms, term)
		}
	}

	out := make([]Scored, 0, len(byDoc))
	for _, s := range byDoc {
		if s.BM25 > 0 {
			out = append(out, *s)
		}
	}
	return out, nil
}

func inScope(st store.DocStat, scope string) bool {
	return scope == "" || scope == ScopeAll || st.Source == scope
}

// blend min-max normalizes both score families over the candidates and
// combines them.
func blend(candidates []Scored, alpha float64, semantic bool) {
	lex := make([]float64, len(candidates))
	sem := make([]float64, len(candidates))
	for i, c := range candidates {
		lex[i] = c.BM25
		sem[i] = c.Semantic
	}
	normalize(lex)
	normalize(sem)

	for i := range candidates {
		if semantic {
			candidates[i].Score = alpha*lex[i] + (1-alpha)*sem[i]
		} else {
			candidates[i].Score = lex[i]
		}
	}
}

// normalize rescales values to [0, 1]. When all values are equal the result
// is 1 if they are positive and 0 otherwise.
func normalize(values []float64) {
	if len(values) == 0 {
		return
	}
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		lo = min(lo, v)
		hi = max(hi, v)
	}

	if hi == lo {
		fill := 0.0
		if hi > 0 {
			fill = 1
		}
		for i := range values {
			values[i] = fill
		}
		return
	}
	for i, v := range values {
		values[i] = (v - lo) / (hi - lo)
	}
}

func clampAlpha(a float64) float64 {
	if math.IsNaN(a) {
		return DefaultAlpha
	}
	return min(max(a, 0), 1)
}
