package telemetry

import (
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// QueryKind classifies how a search was scored.
type QueryKind string

const (
	QueryKindLexical  QueryKind = "lexical"
	QueryKindHybrid   QueryKind = "hybrid"
	QueryKindDegraded QueryKind = "degraded"
)

// LatencyBucket is a coarse latency class.
type LatencyBucket string

const (
	BucketP10   LatencyBucket = "p10"   // <10ms
	BucketP50   LatencyBucket = "p50"   // 10-50ms
	BucketP100  LatencyBucket = "p100"  // 50-100ms
	BucketP500  LatencyBucket = "p500"  // 100-500ms
	BucketP1000 LatencyBucket = "p1000" // >=500ms
)

// LatencyToBucket converts a duration to its bucket.
func LatencyToBucket(d time.Duration) LatencyBucket {
	ms := d.Milliseconds()
	switch {
	case ms < 10:
		return BucketP10
	case ms < 50:
		return BucketP50
	case ms < 100:
		return BucketP100
	case ms < 500:
		return BucketP500
	default:
		return BucketP1000
	}
}

// QueryEvent is one search as seen by the engine.
type QueryEvent struct {
	Query       string
	Kind        QueryKind
	Terms       []string
	ResultCount int
	Latency     time.Duration
}

// TermCount is a query term and how often it was searched.
type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// QueryLogSnapshot is an immutable view of a QueryLog.
type QueryLogSnapshot struct {
	TotalQueries        int64                   `json:"total_queries"`
	ZeroResultCount     int64                   `json:"zero_result_count"`
	KindCounts          map[QueryKind]int64     `json:"kind_counts"`
	LatencyDistribution map[LatencyBucket]int64 `json:"latency_distribution"`
	TopTerms            []TermCount             `json:"top_terms"`
	ZeroResultQueries   []string                `json:"zero_result_queries"`
	Since               time.Time               `json:"since"`
}

// QueryLog aggregates recent search activity in memory. Safe for
// concurrent use.
type QueryLog struct {
	mu          sync.Mutex
	kinds       map[QueryKind]int64
	latencies   map[LatencyBucket]int64
	terms       *lru.Cache[string, int64]
	zeroResults []string
	zeroHead    int
	zeroCap     int
	total       int64
	zeroCount   int64
	since       time.Time
}

// NewQueryLog tracks up to termCapacity distinct terms and the last
// zeroCapacity zero-result queries. Non-positive values default to 100.
func NewQueryLog(termCapacity, zeroCapacity int) *QueryLog {
	if termCapacity <= 0 {
		termCapacity = 100
	}
	if zeroCapacity <= 0 {
		zeroCapacity = 100
	}
	terms, _ := lru.New[string, int64](termCapacity)
	return &QueryLog{
		kinds:     make(map[QueryKind]int64),
		latencies: make(map[LatencyBucket]int64),
		terms:     terms,
		zeroCap:   zeroCapacity,
		since:     time.Now(),
	}
}

// Record adds one search.
func (l *QueryLog) Record(e QueryEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.total++
	l.kinds[e.Kind]++
	l.latencies[LatencyToBucket(e.Latency)]++

	for _, t := range e.Terms {
		n, _ := l.terms.Get(t)
		l.terms.Add(t, n+1)
	}

	if e.ResultCount == 0 {
		l.zeroCount++
		// Ring buffer: oldest entry is overwritten once full.
		if len(l.zeroResults) < l.zeroCap {
			l.zeroResults = append(l.zeroResults, e.Query)
		} else {
			l.zeroResults[l.zeroHead] = e.Query
			l.zeroHead = (l.zeroHead + 1) % l.zeroCap
		}
	}
}

// Snapshot returns the aggregates. TopTerms holds at most topN entries,
// most frequent first.
func (l *QueryLog) Snapshot(topN int) QueryLogSnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := QueryLogSnapshot{
		TotalQueries:        l.total,
		ZeroResultCount:     l.zeroCount,
		KindCounts:          make(map[QueryKind]int64, len(l.kinds)),
		LatencyDistribution: make(map[LatencyBucket]int64, len(l.latencies)),
		Since:               l.since,
	}
	for k, v := range l.kinds {
		s.KindCounts[k] = v
	}
	for k, v := range l.latencies {
		s.LatencyDistribution[k] = v
	}

	for _, term := range l.terms.Keys() {
		n, _ := l.terms.Peek(term)
		s.TopTerms = append(s.TopTerms, TermCount{Term: term, Count: n})
	}
	sort.Slice(s.TopTerms, func(i, j int) bool {
		if s.TopTerms[i].Count != s.TopTerms[j].Count {
			return s.TopTerms[i].Count > s.TopTerms[j].Count
		}
		return s.TopTerms[i].Term < s.TopTerms[j].Term
	})
	if topN > 0 && len(s.TopTerms) > topN {
		s.TopTerms = s.TopTerms[:topN]
	}

	// Oldest first.
	s.ZeroResultQueries = make([]string, 0, len(l.zeroResults))
	s.ZeroResultQueries = append(s.ZeroResultQueries, l.zeroResults[l.zeroHead:]...)
	s.ZeroResultQueries = append(s.ZeroResultQueries, l.zeroResults[:l.zeroHead]...)
	return s
}
