package store

import (
	"sort"
)

// InvertedIndex maps each term to its postings in insertion order. A term's
// list holds at most one posting per document.
type InvertedIndex struct {
	postings map[string][]Posting
	// slot remembers where each (term, doc) posting lives so a repeated
	// AddPosting replaces instead of duplicating.
	slot map[string]map[string]int
}

// NewInvertedIndex returns an empty index.
func NewInvertedIndex() *InvertedIndex {
	return &InvertedIndex{
		postings: make(map[string][]Posting),
		slot:     make(map[string]map[string]int),
	}
}

// AddPosting appends p to the list of term, or replaces the existing
// posting for p.DocID.
func (x *InvertedIndex) AddPosting(term string, p Posting) {
	if term == "" || p.DocID == "" {
		return
	}

	docs, ok := x.slot[term]
	if !ok {
		docs = make(map[string]int)
		x.slot[term] = docs
	}
	if i, exists := docs[p.DocID]; exists {
		x.postings[term][i] = p
		return
	}

	docs[p.DocID] = len(x.postings[term])
	x.postings[term] = append(x.postings[term], p)
}

// PostingList returns a copy of the postings of term. Missing terms yield an
// empty, non-nil slice.
func (x *InvertedIndex) PostingList(term string) []Posting {
	list := x.postings[term]
	out := make([]Posting, len(list))
	copy(out, list)
	return out
}

// DocumentFrequency returns the number of documents containing term.
func (x *InvertedIndex) DocumentFrequency(term string) int {
	return len(x.postings[term])
}

// TermCount returns the number of unique terms.
func (x *InvertedIndex) TermCount() int {
	return len(x.postings)
}

// Terms returns every term in lexical order.
func (x *InvertedIndex) Terms() []string {
	terms := make([]string, 0, len(x.postings))
	for t := range x.postings {
		terms = append(terms, t)
	}
	sort.Strings(terms)
	return terms
}

// DocIDs returns the distinct documents referenced by any posting.
func (x *InvertedIndex) DocIDs() map[string]struct{} {
	ids := make(map[string]struct{})
	for _, list := range x.postings {
		for _, p := range list {
			ids[p.DocID] = struct{}{}
		}
	}
	return ids
}
