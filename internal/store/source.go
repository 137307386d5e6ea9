package store

import (
	"context"
	"sync"
)

// MemorySource is a DocumentSource over a fixed slice of documents.
type MemorySource struct {
	mu   sync.RWMutex
	docs []*Document
	byID map[string]*Document
}

var (
	_ DocumentSource = (*MemorySource)(nil)
	_ DocumentLookup = (*MemorySource)(nil)
)

// NewMemorySource returns a source serving docs in the given order.
func NewMemorySource(docs ...*Document) *MemorySource {
	s := &MemorySource{}
	s.Set(docs...)
	return s
}

// Set replaces the corpus.
func (s *MemorySource) Set(docs ...*Document) {
	byID := make(map[string]*Document, len(docs))
	kept := make([]*Document, 0, len(docs))
	for _, d := range docs {
		if d == nil {
			continue
		}
		kept = append(kept, d)
		byID[d.ID] = d
	}

	s.mu.Lock()
	s.docs, s.byID = kept, byID
	s.mu.Unlock()
}

// FindAll returns the corpus.
func (s *MemorySource) FindAll(ctx context.Context) ([]*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Document, len(s.docs))
	copy(out, s.docs)
	return out, nil
}

// Get returns the document with id.
func (s *MemorySource) Get(_ context.Context, id string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return d, nil
}
