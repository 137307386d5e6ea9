package store

import (
	"sort"
	"time"
)

// DocumentStatistics records per-document lengths and corpus averages.
// AverageDocumentLength is kept current on every Add.
type DocumentStatistics struct {
	docs        map[string]DocStat
	totalLength int
	avgLength   float64

	// Generation identifies the build that produced these statistics.
	Generation string
	// BuiltAt is when that build started.
	BuiltAt time.Time
}

// NewDocumentStatistics returns empty statistics.
func NewDocumentStatistics() *DocumentStatistics {
	return &DocumentStatistics{docs: make(map[string]DocStat)}
}

// Add records st for docID, replacing any earlier entry.
func (s *DocumentStatistics) Add(docID string, st DocStat) {
	if docID == "" {
		return
	}
	if prev, ok := s.docs[docID]; ok {
		s.totalLength -= prev.Length
	}
	s.docs[docID] = st
	s.totalLength += st.Length
	s.avgLength = float64(s.totalLength) / float64(len(s.docs))
}

// Get returns the statistics of docID.
func (s *DocumentStatistics) Get(docID string) (DocStat, bool) {
	st, ok := s.docs[docID]
	return st, ok
}

// TotalDocuments returns the number of recorded documents.
func (s *DocumentStatistics) TotalDocuments() int {
	return len(s.docs)
}

// AverageDocumentLength returns sum(length)/totalDocuments, or 0 if empty.
func (s *DocumentStatistics) AverageDocumentLength() float64 {
	return s.avgLength
}

// DocIDs returns the recorded document IDs in lexical order.
func (s *DocumentStatistics) DocIDs() []string {
	ids := make([]string, 0, len(s.docs))
	for id := range s.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
