// Package store holds the inverted index, document statistics and the
// collaborator interfaces used to fetch documents and persist index state.
//
// InvertedIndex and DocumentStatistics are plain typed aggregates. They are
// only serialized at the persistence boundary (see codec.go); the in-memory
// shape is never the wire format.
package store

import (
	"context"
	"errors"
)

// Document is a unit of text fetched from a DocumentSource.
type Document struct {
	ID      string `json:"id"`
	Content string `json:"content"`
	// Source is the category used by scope filtering, e.g. "local".
	Source string `json:"source"`
	Title  string `json:"title"`
}

// Posting links a term to one document.
type Posting struct {
	DocID         string `json:"docId"`
	TermFrequency int    `json:"termFrequency"`
	// Positions are token offsets of the term in the document. May be empty.
	Positions []int `json:"positions,omitempty"`
}

// DocStat is the per-document entry of DocumentStatistics.
type DocStat struct {
	Length int    `json:"length"`
	Source string `json:"source"`
	Title  string `json:"title"`
}

// DocumentSource provides the corpus for a full rebuild.
type DocumentSource interface {
	// FindAll returns every document in the corpus.
	FindAll(ctx context.Context) ([]*Document, error)
}

// DocumentLookup is implemented by sources that can fetch a single document,
// which the search engine uses to build snippets.
type DocumentLookup interface {
	Get(ctx context.Context, id string) (*Document, error)
}

// IndexPersistence stores the committed index and statistics.
//
// Implementations must be safe for concurrent readers while a build commits:
// a reader sees either the previous generation or the new one, never a mix.
// Aggregates passed to SaveIndex, SaveStats or Commit, and those returned by
// GetIndex and GetStats, must not be modified afterwards.
type IndexPersistence interface {
	// Clear removes the committed index and statistics.
	Clear(ctx context.Context) error

	// SaveIndex replaces the committed index.
	SaveIndex(ctx context.Context, idx *InvertedIndex) error

	// SaveStats replaces the committed statistics.
	SaveStats(ctx context.Context, stats *DocumentStatistics) error

	// Commit replaces index and statistics as one unit.
	Commit(ctx context.Context, idx *InvertedIndex, stats *DocumentStatistics) error

	// GetIndex returns the committed index, empty if none.
	GetIndex(ctx context.Context) (*InvertedIndex, error)

	// GetStats returns the committed statistics, empty if none.
	GetStats(ctx context.Context) (*DocumentStatistics, error)

	// GetPostingList returns the postings of term. A missing term yields an
	// empty, non-nil slice.
	GetPostingList(ctx context.Context, term string) ([]Posting, error)

	// Snapshot pins the committed generation for a sequence of reads. The
	// caller must Release the view.
	Snapshot(ctx context.Context) (IndexView, error)

	Close() error
}

// IndexView reads one committed generation: statistics and postings always
// come from the same commit, whatever is committed meanwhile.
type IndexView interface {
	Stats() *DocumentStatistics

	// PostingList behaves like IndexPersistence.GetPostingList.
	PostingList(ctx context.Context, term string) ([]Posting, error)

	// Release ends the view. Calling it again is a no-op.
	Release()
}

// ErrNotFound is returned by DocumentLookup for unknown IDs.
var ErrNotFound = errors.New("document not found")

// ErrClosed is returned by stores used after Close.
var ErrClosed = errors.New("store is closed")
