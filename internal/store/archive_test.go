package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/mixsearch/internal/tokenize"
)

func TestBleveArchive_Locate(t *testing.T) {
	ctx := context.Background()
	a, err := NewBleveArchive(tokenize.CJKBigram)
	require.NoError(t, err)
	defer func() { _ = a.Close() }()

	// Given: an archived generation with mixed-width text
	require.NoError(t, a.Replace(ctx, "gen-1", []*Document{
		{ID: "fw", Source: "local", Title: "Hardware", Content: "Intro ＧＰＵ加速 and GPU again"},
		{ID: "zh", Source: "remote", Title: "图书", Content: "我在图书馆看书"},
		nil,
		{ID: "", Content: "ignored"},
	}))

	tests := []struct {
		name      string
		id        string
		terms     []string
		wantSpans []string
	}{
		{"fullwidth and ascii occurrences", "fw", []string{"gpu"}, []string{"ＧＰＵ", "GPU"}},
		{"cjk bigram", "zh", []string{"图书"}, []string{"图书"}},
		{"no matching term", "zh", []string{"gpu"}, nil},
		{"no terms", "fw", nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// When: locating terms in one document
			doc, spans, err := a.Locate(ctx, tt.id, tt.terms)

			// Then: the stored document comes back with the matching spans
			require.NoError(t, err)
			assert.Equal(t, tt.id, doc.ID)
			assert.NotEmpty(t, doc.Content)
			var got []string
			for _, s := range spans {
				got = append(got, doc.Content[s.Start:s.End])
			}
			assert.Equal(t, tt.wantSpans, got)
		})
	}
}

func TestBleveArchive_ReplaceSwapsGeneration(t *testing.T) {
	ctx := context.Background()
	a, err := NewBleveArchive(tokenize.CJKBigram)
	require.NoError(t, err)
	defer func() { _ = a.Close() }()

	assert.Empty(t, a.Generation())
	_, err = a.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound)

	// Given: two generations archived one after the other
	require.NoError(t, a.Replace(ctx, "gen-1", []*Document{{ID: "a", Content: "first text"}}))
	require.NoError(t, a.Replace(ctx, "gen-2", []*Document{{ID: "b", Content: "second text", Title: "B"}}))

	// Then: only the last one is visible
	assert.Equal(t, "gen-2", a.Generation())
	_, err = a.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound)
	doc, err := a.Get(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, &Document{ID: "b", Content: "second text", Title: "B"}, doc)
}

func TestBleveArchive_Closed(t *testing.T) {
	ctx := context.Background()
	a, err := NewBleveArchive(tokenize.CJKBigram)
	require.NoError(t, err)

	require.NoError(t, a.Close())
	require.NoError(t, a.Close())

	_, err = a.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, a.Replace(ctx, "gen", nil), ErrClosed)
}
