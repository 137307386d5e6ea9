package tokenize

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTokenizer() *Tokenizer {
	return New(DefaultConfig())
}

func TestTokenizer_EmptyInput(t *testing.T) {
	tok := newTestTokenizer()

	for _, mode := range []Mode{ModeDocument, ModeQuery} {
		t.Run(string(mode), func(t *testing.T) {
			tokens := tok.Tokenize("", Options{Mode: mode})
			require.NotNil(t, tokens)
			assert.Empty(t, tokens)

			stats := tok.Stats("", Options{Mode: mode})
			assert.Equal(t, Stats{TF: map[string]float64{}, Length: 0, UniqueTerms: 0, Tokens: []string{}}, stats)

			stats = tok.Stats("   !!! ", Options{Mode: mode})
			assert.Empty(t, stats.TF)
			assert.Equal(t, 0, stats.Length)
		})
	}
}

func TestTokenizer_DocumentModeRepeats(t *testing.T) {
	// Given: a course code followed by repeated function characters
	tok := newTestTokenizer()

	// When: tokenizing in document mode
	stats := tok.Stats("CSC207是的是的是的", Options{Mode: ModeDocument})

	// Then: repeated terms make the length exceed the unique count
	assert.Greater(t, stats.Length, stats.UniqueTerms)
	assert.Contains(t, stats.Tokens, "csc207")
	assert.Equal(t, 3.0, stats.TF["是"])
	// And: the all-noise bigrams are gone
	assert.NotContains(t, stats.TF, "是的")
	assert.NotContains(t, stats.TF, "的是")
}

func TestTokenizer_QueryModeUnion(t *testing.T) {
	// Given: a three character CJK query
	tok := newTestTokenizer()

	// When: tokenizing in query mode
	tokens := tok.Tokenize("图书馆", Options{Mode: ModeQuery})

	// Then: single characters and bigrams are both present, once each
	for _, want := range []string{"图", "书", "馆", "图书", "书馆"} {
		assert.Contains(t, tokens, want)
	}
	assert.Len(t, tokens, 5)
}

func TestTokenizer_QueryModeMergesFrequencies(t *testing.T) {
	tok := newTestTokenizer()

	stats := tok.Stats("图书馆", Options{Mode: ModeQuery})

	// Singles come from both passes, bigrams only from the bigram pass.
	assert.Equal(t, 2.0, stats.TF["图"])
	assert.Equal(t, 1.0, stats.TF["图书"])
	assert.Equal(t, 8, stats.Length)
	assert.Equal(t, 5, stats.UniqueTerms)

	weighted := tok.Stats("图书馆", Options{Mode: ModeQuery, BigramWeight: 0.5})
	assert.Equal(t, 1.5, weighted.TF["图"])
	assert.Equal(t, 0.5, weighted.TF["书馆"])
}

func TestTokenizer_QueryModeCountsLatinInBothPasses(t *testing.T) {
	// Given: a query with one Latin word and one CJK pair
	tok := newTestTokenizer()

	// When: computing query stats
	stats := tok.Stats("library 图书", Options{Mode: ModeQuery})

	// Then: the Latin word is counted by both passes and listed once
	assert.Equal(t, 2.0, stats.TF["library"])
	assert.Equal(t, []string{"library", "图", "书", "图书"}, stats.Tokens)
	assert.Equal(t, 7, stats.Length)
	assert.Equal(t, 4, stats.UniqueTerms)
}

func TestTokenizer_LatinDecomposition(t *testing.T) {
	tok := newTestTokenizer()

	tokens := tok.Tokenize("VideoEditEngine2026", Options{Mode: ModeDocument})

	assert.Subset(t, tokens, []string{"video", "edit", "engine", "2026", "videoeditengine2026"})
}

func TestTokenizer_DocumentCJKModeOverride(t *testing.T) {
	tok := newTestTokenizer()

	tokens := tok.Tokenize("图书馆", Options{Mode: ModeDocument, CJKMode: CJKSpan})

	assert.Equal(t, []string{"图书馆"}, tokens)
}

func TestTokenizer_MixedDocument(t *testing.T) {
	// Given: mixed script text with sentences, stopwords and a URL
	tok := newTestTokenizer()
	text := "The GPU加速 guide。Visit https://docs.example.com for details!"

	// When: tokenizing
	tokens := tok.Tokenize(text, Options{Mode: ModeDocument})

	// Then: stopwords are gone, both scripts are present
	assert.NotContains(t, tokens, "the")
	assert.NotContains(t, tokens, "for")
	assert.Contains(t, tokens, "gpu")
	assert.Contains(t, tokens, "加速")
	assert.Contains(t, tokens, "guide")
	assert.Contains(t, tokens, "docs")
	assert.Contains(t, tokens, "details")
}

func TestTokenizer_TermsPositions(t *testing.T) {
	tok := newTestTokenizer()

	terms := tok.Terms("search the index", Options{Mode: ModeDocument})

	// "the" is removed but positions still count it.
	assert.Equal(t, []Term{{"search", 0}, {"index", 2}}, terms)
}

func TestTokenizer_Analyze(t *testing.T) {
	tok := newTestTokenizer()

	a, err := tok.Analyze("index index search")
	require.NoError(t, err)

	assert.Equal(t, map[string]int{"index": 2, "search": 1}, a.TF)
	assert.Equal(t, []int{0, 1}, a.Positions["index"])
	assert.Equal(t, 3, a.Length)

	empty, err := tok.Analyze("")
	require.NoError(t, err)
	assert.Empty(t, empty.TF)
	assert.Zero(t, empty.Length)
}

func TestTokenizer_NeverPanics(t *testing.T) {
	tok := newTestTokenizer()
	inputs := []string{
		"\x00\xff\xfe",
		strings.Repeat("的", 1000),
		"https://",
		"@@@ ... --- ___",
		"́́abc",
		"한국어 テスト カタカナ",
	}

	for _, in := range inputs {
		assert.NotPanics(t, func() {
			tok.Tokenize(in, Options{Mode: ModeDocument})
			tok.Stats(in, Options{Mode: ModeQuery})
		})
	}
}

func TestTokenizer_ConcurrentUse(t *testing.T) {
	tok := newTestTokenizer()
	want := tok.Tokenize("VideoEditEngine2026 图书馆", Options{Mode: ModeQuery})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Equal(t, want, tok.Tokenize("VideoEditEngine2026 图书馆", Options{Mode: ModeQuery}))
		}()
	}
	wg.Wait()
}
