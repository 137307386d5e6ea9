package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mserrors "github.com/Aman-CERP/mixsearch/internal/errors"
)

// fakeOllama serves /api/tags and /api/embed. failFirst makes the first
// failFirst embed requests return 503.
func fakeOllama(t *testing.T, models []string, failFirst int64) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var embedCalls atomic.Int64

	mux := http.NewServeMux()
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, _ *http.Request) {
		resp := OllamaModelListResponse{}
		for _, m := range models {
			resp.Models = append(resp.Models, OllamaModelInfo{Name: m})
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("/api/embed", func(w http.ResponseWriter, r *http.Request) {
		if embedCalls.Add(1) <= failFirst {
			http.Error(w, "loading", http.StatusServiceUnavailable)
			return
		}
		var req struct {
			Model string `json:"model"`
			Input any    `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		n := 1
		if list, ok := req.Input.([]any); ok {
			n = len(list)
		}
		resp := OllamaEmbedResponse{Model: req.Model}
		for i := 0; i < n; i++ {
			resp.Embeddings = append(resp.Embeddings, []float64{3, 4, float64(i)})
		}
		_ = json.NewEncoder(w).Encode(resp)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &embedCalls
}

func fastRetry() mserrors.RetryConfig {
	return mserrors.RetryConfig{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 2}
}

func TestOllamaEmbedder_DiscoversModelAndDimensions(t *testing.T) {
	// Given: an Ollama with only a fallback model installed
	srv, _ := fakeOllama(t, []string{"nomic-embed-text:latest"}, 0)

	// When: the embedder starts
	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host:  srv.URL,
		Model: "bge-m3",
		Retry: fastRetry(),
	})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	// Then: the fallback is chosen and dimensions detected
	assert.Equal(t, "nomic-embed-text:latest", e.ModelName())
	assert.Equal(t, 3, e.Dimensions())
	assert.True(t, e.Available(context.Background()))
}

func TestOllamaEmbedder_NoModel(t *testing.T) {
	srv, _ := fakeOllama(t, []string{"llama3"}, 0)

	_, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host:           srv.URL,
		Model:          "bge-m3",
		FallbackModels: []string{},
		Retry:          fastRetry(),
	})

	require.Error(t, err)
	assert.Equal(t, mserrors.ErrCodeProviderUnavailable, mserrors.GetCode(err))
}

func TestOllamaEmbedder_RetriesTransientFailures(t *testing.T) {
	// Given: a server that fails the first request
	srv, calls := fakeOllama(t, nil, 1)
	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host:            srv.URL,
		Dimensions:      3,
		Retry:           fastRetry(),
		SkipHealthCheck: true,
	})
	require.NoError(t, err)

	// When: a text is embedded
	v, err := e.Embed(context.Background(), "混合 text")

	// Then: the retry succeeds with a normalized vector
	require.NoError(t, err)
	assert.Equal(t, int64(2), calls.Load())
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)
}

func TestOllamaEmbedder_GivesUp(t *testing.T) {
	srv, calls := fakeOllama(t, nil, 100)
	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host:            srv.URL,
		Retry:           fastRetry(),
		SkipHealthCheck: true,
	})
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), "q")

	require.Error(t, err)
	assert.Equal(t, mserrors.ErrCodeEmbeddingFailed, mserrors.GetCode(err))
	assert.Equal(t, int64(3), calls.Load())
}

func TestOllamaEmbedder_BatchSkipsBlank(t *testing.T) {
	srv, calls := fakeOllama(t, nil, 0)
	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host:            srv.URL,
		BatchSize:       2,
		Retry:           fastRetry(),
		SkipHealthCheck: true,
	})
	require.NoError(t, err)

	vecs, err := e.EmbedBatch(context.Background(), []string{"a", " ", "b", "c"})

	require.NoError(t, err)
	require.Len(t, vecs, 4)
	assert.Nil(t, vecs[1])
	assert.NotNil(t, vecs[3])
	assert.Equal(t, int64(2), calls.Load())
}

func TestOllamaEmbedder_Closed(t *testing.T) {
	srv, _ := fakeOllama(t, nil, 0)
	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{Host: srv.URL, SkipHealthCheck: true})
	require.NoError(t, err)
	require.NoError(t, e.Close())

	_, err = e.Embed(context.Background(), "q")

	assert.Error(t, err)
	assert.False(t, e.Available(context.Background()))
}
