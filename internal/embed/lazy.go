package embed

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	mserrors "github.com/Aman-CERP/mixsearch/internal/errors"
)

// State is the initialization state of a Lazy provider.
type State int32

const (
	StateUninitialized State = iota
	StateLoading
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Factory creates the underlying embedder.
type Factory func(ctx context.Context) (Embedder, error)

// Lazy is a Provider whose embedder is created on first use. Concurrent first
// callers share one in-flight initialization. A failed initialization is
// retried by the next caller.
type Lazy struct {
	factory Factory
	group   singleflight.Group

	mu       sync.RWMutex
	state    State
	embedder Embedder
	lastErr  error

	inits atomic.Int64
}

// Verify interface implementation at compile time
var _ Provider = (*Lazy)(nil)

// NewLazy returns a provider that calls factory on first use.
func NewLazy(factory Factory) *Lazy {
	return &Lazy{factory: factory}
}

// State returns the current initialization state.
func (l *Lazy) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// Err returns the error of the last failed initialization.
func (l *Lazy) Err() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lastErr
}

// Initializations returns how many times the factory has been called.
func (l *Lazy) Initializations() int64 {
	return l.inits.Load()
}

// Embedder returns the initialized embedder, initializing it if needed.
func (l *Lazy) Embedder(ctx context.Context) (Embedder, error) {
	l.mu.RLock()
	if l.state == StateReady {
		e := l.embedder
		l.mu.RUnlock()
		return e, nil
	}
	l.mu.RUnlock()

	// The shared init must outlive the caller that happened to start it.
	initCtx := context.WithoutCancel(ctx)
	ch := l.group.DoChan("init", func() (any, error) {
		return l.initialize(initCtx)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(Embedder), nil
	}
}

func (l *Lazy) initialize(ctx context.Context) (Embedder, error) {
	l.mu.Lock()
	if l.state == StateReady {
		e := l.embedder
		l.mu.Unlock()
		return e, nil
	}
	l.state = StateLoading
	l.mu.Unlock()

	l.inits.Add(1)
	e, err := l.factory(ctx)
	if err == nil && e == nil {
		err = mserrors.ProviderError("embedding factory returned no embedder", nil)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err != nil {
		l.state = StateFailed
		l.lastErr = err
		slog.Warn("embedder_init_failed", slog.String("error", err.Error()))
		return nil, err
	}
	l.state = StateReady
	l.embedder = e
	l.lastErr = nil
	return e, nil
}

// Embed embeds text with the lazily created embedder.
func (l *Lazy) Embed(ctx context.Context, text string) ([]float32, error) {
	e, err := l.Embedder(ctx)
	if err != nil {
		return nil, err
	}
	return e.Embed(ctx, text)
}

// Cosine returns the cosine similarity of a and b.
func (l *Lazy) Cosine(a, b []float32) float64 {
	return Cosine(a, b)
}

// Close closes the embedder if it was created.
func (l *Lazy) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.embedder == nil {
		return nil
	}
	err := l.embedder.Close()
	l.embedder = nil
	l.state = StateUninitialized
	return err
}
