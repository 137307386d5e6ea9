package mcp

import (
	"time"

	"github.com/Aman-CERP/mixsearch/internal/async"
	"github.com/Aman-CERP/mixsearch/internal/search"
	"github.com/Aman-CERP/mixsearch/internal/telemetry"
)

// TokenizeInput defines the input schema for the tokenize tool.
type TokenizeInput struct {
	Text    string `json:"text" jsonschema:"the text to tokenize"`
	Mode    string `json:"mode,omitempty" jsonschema:"document (default) or query"`
	CJKMode string `json:"cjkMode,omitempty" jsonschema:"document-mode CJK granularity: span, char or bigram"`
}

// TokenizeOutput defines the output schema for the tokenize tool.
type TokenizeOutput struct {
	Tokens      []string           `json:"tokens" jsonschema:"tokens in emission order"`
	TF          map[string]float64 `json:"tf" jsonschema:"term frequencies; query mode weighs bigrams"`
	Length      int                `json:"length" jsonschema:"number of tokens"`
	UniqueTerms int                `json:"uniqueTerms" jsonschema:"number of distinct terms"`
}

// BuildIndexInput defines the input schema for the build_index tool (no parameters).
type BuildIndexInput struct{}

// BuildIndexOutput defines the output schema for the build_index tool.
type BuildIndexOutput struct {
	Success      bool    `json:"success"`
	IndexedCount int     `json:"indexedCount"`
	SkippedCount int     `json:"skippedCount"`
	TotalTerms   int     `json:"totalTerms"`
	AvgDocLength float64 `json:"avgDocLength"`
	Generation   string  `json:"generation,omitempty"`
	DurationMS   int64   `json:"durationMs"`
}

// SearchInput defines the input schema for the search tool.
type SearchInput struct {
	Query string   `json:"query" jsonschema:"the search query; Latin, CJK or mixed"`
	Scope string   `json:"scope,omitempty" jsonschema:"restrict to one document source, e.g. local; all or empty for every source"`
	Alpha *float64 `json:"alpha,omitempty" jsonschema:"lexical weight between 0 and 1, default 0.5"`
	Embed bool     `json:"embed,omitempty" jsonschema:"blend in embedding similarity"`
	Limit int      `json:"limit,omitempty" jsonschema:"maximum number of results, default 10, max 100"`
}

// SearchOutput defines the output schema for the search tool.
type SearchOutput struct {
	Query        string          `json:"query"`
	Scope        string          `json:"scope"`
	TotalResults int             `json:"totalResults"`
	Elapsed      float64         `json:"elapsed" jsonschema:"milliseconds"`
	Degraded     bool            `json:"degraded,omitempty" jsonschema:"true when embedding failed and results are lexical only"`
	Results      []search.Result `json:"results"`
}

// StatsInput defines the input schema for the stats tool (no parameters).
type StatsInput struct{}

// StatsOutput defines the output schema for the stats tool.
type StatsOutput struct {
	Documents    int            `json:"documents"`
	Terms        int            `json:"terms"`
	AvgDocLength float64        `json:"avgDocLength"`
	Generation   string         `json:"generation,omitempty"`
	BuiltAt      string         `json:"builtAt,omitempty"`
	Sources      map[string]int `json:"sources"`
	Queries      *QueryStats    `json:"queries,omitempty"`
	// Indexing is the state of builds run by this process.
	Indexing *IndexingStatus `json:"indexing,omitempty"`
}

// IndexingStatus reports background and tool-triggered builds.
type IndexingStatus struct {
	State        string `json:"state" jsonschema:"idle, building, ready or error"`
	Builds       int    `json:"builds"`
	Generation   string `json:"generation,omitempty"`
	IndexedCount int    `json:"indexedCount"`
	StartedAt    string `json:"startedAt,omitempty"`
	FinishedAt   string `json:"finishedAt,omitempty"`
	Error        string `json:"error,omitempty"`
}

func toIndexingStatus(snap async.Snapshot) *IndexingStatus {
	return &IndexingStatus{
		State:        string(snap.State),
		Builds:       snap.Builds,
		Generation:   snap.Generation,
		IndexedCount: snap.IndexedCount,
		StartedAt:    formatTime(snap.StartedAt),
		FinishedAt:   formatTime(snap.FinishedAt),
		Error:        snap.ErrorMessage,
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// QueryStats summarizes searches served by this process.
type QueryStats struct {
	Total               int64                 `json:"total"`
	ZeroResults         int64                 `json:"zeroResults"`
	Kinds               map[string]int64      `json:"kinds"`
	LatencyDistribution map[string]int64      `json:"latencyDistribution"`
	TopTerms            []telemetry.TermCount `json:"topTerms"`
}

func toSearchOutput(r *search.Response) SearchOutput {
	return SearchOutput{
		Query:        r.Query,
		Scope:        r.Scope,
		TotalResults: r.TotalResults,
		Elapsed:      r.ElapsedMS,
		Degraded:     r.Degraded,
		Results:      r.Results,
	}
}

func toQueryStats(s telemetry.QueryLogSnapshot) *QueryStats {
	q := &QueryStats{
		Total:               s.TotalQueries,
		ZeroResults:         s.ZeroResultCount,
		Kinds:               make(map[string]int64, len(s.KindCounts)),
		LatencyDistribution: make(map[string]int64, len(s.LatencyDistribution)),
		TopTerms:            s.TopTerms,
	}
	for k, v := range s.KindCounts {
		q.Kinds[string(k)] = v
	}
	for k, v := range s.LatencyDistribution {
		q.LatencyDistribution[string(k)] = v
	}
	if q.TopTerms == nil {
		q.TopTerms = []telemetry.TermCount{}
	}
	return q
}
