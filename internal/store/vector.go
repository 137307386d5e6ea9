package store

import (
	"bufio"
	"encoding/gob"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/coder/hnsw"
)

// ErrDimensionMismatch is returned when a vector's length differs from the
// store's dimensions.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}

// VectorResult is one nearest-neighbour hit.
type VectorResult struct {
	DocID string
	// Score is the cosine similarity in [-1, 1].
	Score float64
}

// HNSWStore holds one embedding per document in an HNSW graph. Vectors are
// stored unit-normalized, so Get returns a vector with the original
// direction and cosine similarity is preserved.
type HNSWStore struct {
	mu         sync.RWMutex
	graph      *hnsw.Graph[uint64]
	dimensions int

	idMap   map[string]uint64 // DocID -> graph key
	keyMap  map[uint64]string // graph key -> DocID
	nextKey uint64

	closed bool
}

type hnswMetadata struct {
	IDMap      map[string]uint64
	NextKey    uint64
	Dimensions int
}

// NewHNSWStore creates an empty store. dimensions 0 means "take the length
// of the first vector".
func NewHNSWStore(dimensions int) *HNSWStore {
	return &HNSWStore{
		graph:      newGraph(),
		dimensions: dimensions,
		idMap:      make(map[string]uint64),
		keyMap:     make(map[uint64]string),
	}
}

func newGraph() *hnsw.Graph[uint64] {
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	g.M = 16
	g.EfSearch = 20
	g.Ml = 0.25
	return g
}

// Dimensions returns the vector length, 0 while empty and unset.
func (s *HNSWStore) Dimensions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dimensions
}

// Put stores vec for docID, replacing any earlier vector.
func (s *HNSWStore) Put(docID string, vec []float32) error {
	if docID == "" || len(vec) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.dimensions == 0 {
		s.dimensions = len(vec)
	}
	if len(vec) != s.dimensions {
		return ErrDimensionMismatch{Expected: s.dimensions, Got: len(vec)}
	}

	// Replaced nodes stay in the graph unmapped; Search skips them.
	if old, ok := s.idMap[docID]; ok {
		delete(s.keyMap, old)
	}

	key := s.nextKey
	s.nextKey++

	v := make([]float32, len(vec))
	copy(v, vec)
	normalizeInPlace(v)
	s.graph.Add(hnsw.MakeNode(key, v))

	s.idMap[docID] = key
	s.keyMap[key] = docID
	return nil
}

// Get returns the unit vector stored for docID.
func (s *HNSWStore) Get(docID string) ([]float32, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, false
	}
	key, ok := s.idMap[docID]
	if !ok {
		return nil, false
	}
	vec, ok := s.graph.Lookup(key)
	if !ok {
		return nil, false
	}
	out := make([]float32, len(vec))
	copy(out, vec)
	return out, true
}

// Search returns up to k documents nearest to query, best first.
func (s *HNSWStore) Search(query []float32, k int) ([]VectorResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	if len(s.idMap) == 0 || k <= 0 {
		return []VectorResult{}, nil
	}
	if len(query) != s.dimensions {
		return nil, ErrDimensionMismatch{Expected: s.dimensions, Got: len(query)}
	}

	q := make([]float32, len(query))
	copy(q, query)
	normalizeInPlace(q)

	// Over-fetch to make up for replaced nodes.
	nodes := s.graph.Search(q, k+s.graph.Len()-len(s.idMap))
	results := make([]VectorResult, 0, len(nodes))
	for _, n := range nodes {
		id, ok := s.keyMap[n.Key]
		if !ok {
			continue
		}
		results = append(results, VectorResult{
			DocID: id,
			Score: 1 - float64(s.graph.Distance(q, n.Value)),
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].DocID < results[j].DocID
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Swap moves fresh's content into s in one step. fresh is closed afterwards.
// Readers of s see either the old vectors or the new ones.
func (s *HNSWStore) Swap(fresh *HNSWStore) error {
	if fresh == s {
		return nil
	}
	fresh.mu.Lock()
	defer fresh.mu.Unlock()
	if fresh.closed {
		return ErrClosed
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	s.graph, s.dimensions = fresh.graph, fresh.dimensions
	s.idMap, s.keyMap, s.nextKey = fresh.idMap, fresh.keyMap, fresh.nextKey

	fresh.graph, fresh.idMap, fresh.keyMap = nil, nil, nil
	fresh.closed = true
	return nil
}

// Len returns the number of documents with a vector.
func (s *HNSWStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.idMap)
}

// Save writes the graph to path and the ID mapping to path+".meta". Both
// go through a temp file and rename.
func (s *HNSWStore) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if err := writeAtomic(path, func(f *os.File) error {
		return s.graph.Export(f)
	}); err != nil {
		return fmt.Errorf("failed to export graph: %w", err)
	}

	meta := hnswMetadata{IDMap: s.idMap, NextKey: s.nextKey, Dimensions: s.dimensions}
	if err := writeAtomic(path+".meta", func(f *os.File) error {
		return gob.NewEncoder(f).Encode(meta)
	}); err != nil {
		return fmt.Errorf("failed to save metadata: %w", err)
	}
	return nil
}

// Load replaces the store's content with what Save wrote at path.
func (s *HNSWStore) Load(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	metaFile, err := os.Open(path + ".meta")
	if err != nil {
		return fmt.Errorf("open metadata: %w", err)
	}
	var meta hnswMetadata
	err = gob.NewDecoder(metaFile).Decode(&meta)
	_ = metaFile.Close()
	if err != nil {
		return fmt.Errorf("decode metadata: %w", err)
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open graph: %w", err)
	}
	defer file.Close()

	graph := newGraph()
	// Import needs an io.ByteReader.
	if err := graph.Import(bufio.NewReader(file)); err != nil {
		return fmt.Errorf("import graph: %w", err)
	}

	s.graph = graph
	s.dimensions = meta.Dimensions
	s.nextKey = meta.NextKey
	s.idMap = meta.IDMap
	if s.idMap == nil {
		s.idMap = make(map[string]uint64)
	}
	s.keyMap = make(map[uint64]string, len(s.idMap))
	for id, key := range s.idMap {
		s.keyMap[key] = id
	}
	return nil
}

// Close releases the graph.
func (s *HNSWStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.graph = nil
	return nil
}

func writeAtomic(path string, write func(*os.File) error) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		if closeErr := f.Close(); closeErr != nil {
			slog.Warn("failed to close temp file during cleanup", slog.String("error", closeErr.Error()))
		}
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func normalizeInPlace(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
}
