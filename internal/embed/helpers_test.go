package embed

import (
	"context"
	"errors"
	"sync/atomic"
)

// mockEmbedder is a test double that counts calls.
type mockEmbedder struct {
	embedCalls atomic.Int64
	batchCalls atomic.Int64
	closed     atomic.Bool
	vector     []float32
	err        error
}

func newMockEmbedder(vec ...float32) *mockEmbedder {
	return &mockEmbedder{vector: vec}
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	m.embedCalls.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	return m.vector, nil
}

func (m *mockEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	m.batchCalls.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = m.vector
	}
	return out, nil
}

func (m *mockEmbedder) Dimensions() int                { return len(m.vector) }
func (m *mockEmbedder) ModelName() string              { return "mock-model" }
func (m *mockEmbedder) Available(context.Context) bool { return m.err == nil }
func (m *mockEmbedder) Close() error {
	m.closed.Store(true)
	return nil
}

var errBackendDown = errors.New("backend down")
