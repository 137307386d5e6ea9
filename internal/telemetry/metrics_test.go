package telemetry

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_IndependentRegistries(t *testing.T) {
	// Given: two metric sets in one process
	a := New()
	b := New()

	// When: only one records a build
	a.BuildsTotal.WithLabelValues("success").Inc()

	// Then: the other is unaffected
	assert.Equal(t, 1.0, testutil.ToFloat64(a.BuildsTotal.WithLabelValues("success")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.BuildsTotal.WithLabelValues("success")))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.DocumentsIndexed.Add(3)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "mixsearch_documents_indexed_total 3")
}

func TestLatencyToBucket(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want LatencyBucket
	}{
		{5 * time.Millisecond, BucketP10},
		{10 * time.Millisecond, BucketP50},
		{75 * time.Millisecond, BucketP100},
		{499 * time.Millisecond, BucketP500},
		{2 * time.Second, BucketP1000},
	}
	for _, tt := range tests {
		t.Run(tt.d.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, LatencyToBucket(tt.d))
		})
	}
}

func TestQueryLog_Snapshot(t *testing.T) {
	// Given: a log with room for two zero-result queries
	l := NewQueryLog(10, 2)

	// When: four searches are recorded
	l.Record(QueryEvent{Query: "搜索", Kind: QueryKindLexical, Terms: []string{"搜", "索", "搜索"}, ResultCount: 3})
	l.Record(QueryEvent{Query: "none1", Kind: QueryKindHybrid, Terms: []string{"none1"}})
	l.Record(QueryEvent{Query: "none2", Kind: QueryKindDegraded, Terms: []string{"搜索"}})
	l.Record(QueryEvent{Query: "none3", Kind: QueryKindLexical, Latency: time.Second})

	s := l.Snapshot(1)

	// Then: counts, top terms and the newest zero-result queries are kept
	assert.Equal(t, int64(4), s.TotalQueries)
	assert.Equal(t, int64(3), s.ZeroResultCount)
	assert.Equal(t, int64(2), s.KindCounts[QueryKindLexical])
	assert.Equal(t, int64(1), s.LatencyDistribution[BucketP1000])
	require.Len(t, s.TopTerms, 1)
	assert.Equal(t, TermCount{Term: "搜索", Count: 2}, s.TopTerms[0])
	assert.Equal(t, []string{"none2", "none3"}, s.ZeroResultQueries)
}
