package embed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mserrors "github.com/Aman-CERP/mixsearch/internal/errors"
)

func TestParseProviderType(t *testing.T) {
	tests := []struct {
		in      string
		want    ProviderType
		wantErr bool
	}{
		{"", ProviderNone, false},
		{"none", ProviderNone, false},
		{" Static ", ProviderStatic, false},
		{"OLLAMA", ProviderOllama, false},
		{"mlx", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseProviderType(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewEmbedder_StaticIsCached(t *testing.T) {
	e, err := NewEmbedder(context.Background(), DefaultConfig(), nil)

	require.NoError(t, err)
	cached, ok := e.(*CachedEmbedder)
	require.True(t, ok)
	assert.IsType(t, &StaticEmbedder{}, cached.Inner())
}

func TestNewEmbedder_CacheDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CacheSize = -1

	e, err := NewEmbedder(context.Background(), cfg, nil)

	require.NoError(t, err)
	assert.IsType(t, &StaticEmbedder{}, e)
}

func TestNewEmbedder_OllamaFallback(t *testing.T) {
	// Given: an unreachable Ollama host
	cfg := DefaultConfig()
	cfg.Provider = ProviderOllama
	cfg.Host = "http://127.0.0.1:1"
	cfg.CacheSize = -1

	// When: fallback is off, creation fails
	_, err := NewEmbedder(context.Background(), cfg, nil)
	require.Error(t, err)

	// Then: with fallback on, the static embedder is used
	cfg.FallbackToStatic = true
	e, err := NewEmbedder(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, "static", e.ModelName())
}

func TestNewEmbedder_Disabled(t *testing.T) {
	_, err := NewEmbedder(context.Background(), Config{Provider: ProviderNone}, nil)

	assert.Equal(t, mserrors.ErrCodeProviderUnavailable, mserrors.GetCode(err))
}

func TestNewProvider(t *testing.T) {
	assert.Nil(t, NewProvider(Config{Provider: ProviderNone}, nil))

	p := NewProvider(DefaultConfig(), nil)
	require.NotNil(t, p)
	assert.Equal(t, StateUninitialized, p.State())

	v, err := p.Embed(context.Background(), "搜索")
	require.NoError(t, err)
	assert.Len(t, v, StaticDimensions)
	assert.Equal(t, StateReady, p.State())
}
