package embed

import (
	"context"
	"errors"
	"hash/fnv"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/Aman-CERP/mixsearch/internal/tokenize"
)

// StaticEmbedder generates embeddings by hashing query-mode tokens and
// character trigrams into a fixed-size vector. It needs no network or model,
// is deterministic, and handles CJK through the mixed-script tokenizer.
type StaticEmbedder struct {
	tok *tokenize.Tokenizer

	mu     sync.RWMutex
	closed bool
}

// Weights for vector generation
const (
	tokenWeight = 0.7
	ngramWeight = 0.3
	ngramSize   = 3
)

var errEmbedderClosed = errors.New("embedder is closed")

// Verify interface implementation at compile time
var _ Embedder = (*StaticEmbedder)(nil)

// NewStaticEmbedder creates a static embedder using the default tokenizer
// configuration.
func NewStaticEmbedder() *StaticEmbedder {
	return NewStaticEmbedderWithTokenizer(tokenize.New(tokenize.DefaultConfig()))
}

// NewStaticEmbedderWithTokenizer creates a static embedder that shares tok.
func NewStaticEmbedderWithTokenizer(tok *tokenize.Tokenizer) *StaticEmbedder {
	return &StaticEmbedder{tok: tok}
}

// Embed returns the unit vector of text, or nil when text yields no
// features.
func (e *StaticEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return nil, errEmbedderClosed
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, nil
	}

	vector, ok := e.generateVector(trimmed)
	if !ok {
		return nil, nil
	}
	return normalizeVector(vector), nil
}

func (e *StaticEmbedder) generateVector(text string) ([]float32, bool) {
	vector := make([]float32, StaticDimensions)
	features := 0

	stats := e.tok.Stats(text, tokenize.Options{Mode: tokenize.ModeQuery})
	terms := make([]string, 0, len(stats.TF))
	for term := range stats.TF {
		terms = append(terms, term)
	}
	// Fixed order keeps float sums deterministic.
	sort.Strings(terms)
	for _, term := range terms {
		vector[hashToIndex(term, StaticDimensions)] += tokenWeight * float32(stats.TF[term])
		features++
	}

	for _, ngram := range extractNgrams(normalizeForNgrams(text), ngramSize) {
		vector[hashToIndex(ngram, StaticDimensions)] += ngramWeight
		features++
	}

	return vector, features > 0
}

// normalizeForNgrams keeps lower-cased letters and digits.
func normalizeForNgrams(text string) []rune {
	var out []rune
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			out = append(out, r)
		}
	}
	return out
}

// extractNgrams extracts n-rune sliding windows.
func extractNgrams(runes []rune, n int) []string {
	if len(runes) < n {
		return []string{}
	}

	ngrams := make([]string, 0, len(runes)-n+1)
	for i := 0; i <= len(runes)-n; i++ {
		ngrams = append(ngrams, string(runes[i:i+n]))
	}
	return ngrams
}

// hashToIndex uses FNV-64 to map a string to an index.
func hashToIndex(s string, size int) int {
	h := fnv.New64()
	_, _ = h.Write([]byte(s))
	return int(h.Sum64() % uint64(size))
}

// EmbedBatch generates embeddings for multiple texts.
func (e *StaticEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		results[i] = emb
	}
	return results, nil
}

// Dimensions returns the embedding dimension.
func (e *StaticEmbedder) Dimensions() int {
	return StaticDimensions
}

// ModelName returns the model identifier.
func (e *StaticEmbedder) ModelName() string {
	return "static"
}

// Available reports whether the embedder is open.
func (e *StaticEmbedder) Available(_ context.Context) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.closed
}

// Close releases resources.
func (e *StaticEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}
