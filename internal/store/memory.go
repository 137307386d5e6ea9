package store

import (
	"context"
	"sync"
)

// MemoryPersistence keeps the committed generation in memory. Commit swaps
// both aggregates under one lock.
type MemoryPersistence struct {
	mu     sync.RWMutex
	idx    *InvertedIndex
	stats  *DocumentStatistics
	closed bool
}

// Verify interface implementation at compile time
var _ IndexPersistence = (*MemoryPersistence)(nil)

// NewMemoryPersistence returns an empty in-memory persistence.
func NewMemoryPersistence() *MemoryPersistence {
	return &MemoryPersistence{
		idx:   NewInvertedIndex(),
		stats: NewDocumentStatistics(),
	}
}

// Clear drops the committed generation.
func (m *MemoryPersistence) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.idx = NewInvertedIndex()
	m.stats = NewDocumentStatistics()
	return nil
}

// SaveIndex replaces the committed index.
func (m *MemoryPersistence) SaveIndex(_ context.Context, idx *InvertedIndex) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if idx == nil {
		idx = NewInvertedIndex()
	}
	m.idx = idx
	return nil
}

// SaveStats replaces the committed statistics.
func (m *MemoryPersistence) SaveStats(_ context.Context, stats *DocumentStatistics) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if stats == nil {
		stats = NewDocumentStatistics()
	}
	m.stats = stats
	return nil
}

// Commit swaps in idx and stats together.
func (m *MemoryPersistence) Commit(_ context.Context, idx *InvertedIndex, stats *DocumentStatistics) error {
	if idx == nil {
		idx = NewInvertedIndex()
	}
	if stats == nil {
		stats = NewDocumentStatistics()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.idx, m.stats = idx, stats
	return nil
}

// GetIndex returns the committed index.
func (m *MemoryPersistence) GetIndex(_ context.Context) (*InvertedIndex, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	return m.idx, nil
}

// GetStats returns the committed statistics.
func (m *MemoryPersistence) GetStats(_ context.Context) (*DocumentStatistics, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	return m.stats, nil
}

// GetPostingList returns the postings of term from the committed index.
func (m *MemoryPersistence) GetPostingList(_ context.Context, term string) ([]Posting, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	return m.idx.PostingList(term), nil
}

// Snapshot returns the committed pair. Commit swaps both pointers at once
// and committed aggregates are never modified, so the view needs no lock.
func (m *MemoryPersistence) Snapshot(_ context.Context) (IndexView, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	return memoryView{idx: m.idx, stats: m.stats}, nil
}

type memoryView struct {
	idx   *InvertedIndex
	stats *DocumentStatistics
}

func (v memoryView) Stats() *DocumentStatistics { return v.stats }

func (v memoryView) PostingList(_ context.Context, term string) ([]Posting, error) {
	return v.idx.PostingList(term), nil
}

func (memoryView) Release() {}

// Close marks the persistence closed.
func (m *MemoryPersistence) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
