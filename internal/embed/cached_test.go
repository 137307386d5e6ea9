package embed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCachedEmbedder_CacheHit(t *testing.T) {
	// Given: a cached mock embedder
	mock := newMockEmbedder(1, 0)
	cached := NewCachedEmbedder(mock, 10)
	ctx := context.Background()

	// When: the same text is embedded twice
	_, err := cached.Embed(ctx, "查询")
	require.NoError(t, err)
	v, err := cached.Embed(ctx, "查询")
	require.NoError(t, err)

	// Then: the backend is called once
	assert.Equal(t, int64(1), mock.embedCalls.Load())
	assert.Equal(t, []float32{1, 0}, v)
	assert.Equal(t, 1, cached.Len())
}

func TestCachedEmbedder_ErrorsAreNotCached(t *testing.T) {
	mock := newMockEmbedder(1)
	mock.err = errBackendDown
	cached := NewCachedEmbedder(mock, 10)

	_, err := cached.Embed(context.Background(), "q")
	require.ErrorIs(t, err, errBackendDown)
	_, err = cached.Embed(context.Background(), "q")
	require.ErrorIs(t, err, errBackendDown)

	assert.Equal(t, int64(2), mock.embedCalls.Load())
	assert.Equal(t, 0, cached.Len())
}

func TestCachedEmbedder_BatchOnlySendsMisses(t *testing.T) {
	mock := newMockEmbedder(0, 1)
	cached := NewCachedEmbedder(mock, 10)
	ctx := context.Background()
	_, err := cached.Embed(ctx, "a")
	require.NoError(t, err)

	vecs, err := cached.EmbedBatch(ctx, []string{"a", "b"})

	require.NoError(t, err)
	assert.Len(t, vecs, 2)
	assert.Equal(t, int64(1), mock.batchCalls.Load())
	assert.Equal(t, 2, cached.Len())
}

func TestCachedEmbedder_Eviction(t *testing.T) {
	mock := newMockEmbedder(1)
	cached := NewCachedEmbedder(mock, 2)
	ctx := context.Background()

	for _, q := range []string{"a", "b", "c"} {
		_, err := cached.Embed(ctx, q)
		require.NoError(t, err)
	}
	_, err := cached.Embed(ctx, "a")
	require.NoError(t, err)

	assert.Equal(t, 2, cached.Len())
	assert.Equal(t, int64(4), mock.embedCalls.Load())
}

func TestCachedEmbedder_Passthrough(t *testing.T) {
	mock := newMockEmbedder(1, 2, 3)
	cached := NewCachedEmbedder(mock, 0)

	assert.Equal(t, 3, cached.Dimensions())
	assert.Equal(t, "mock-model", cached.ModelName())
	assert.True(t, cached.Available(context.Background()))
	assert.Same(t, mock, cached.Inner())
	require.NoError(t, cached.Close())
	assert.True(t, mock.closed.Load())
}
