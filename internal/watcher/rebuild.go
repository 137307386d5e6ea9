package watcher

import (
	"context"
	"errors"
	"log/slog"

	mserrors "github.com/Aman-CERP/mixsearch/internal/errors"
	"github.com/Aman-CERP/mixsearch/internal/index"
)

// Builder runs one full index rebuild.
type Builder interface {
	Execute(ctx context.Context) (*index.BuildResult, error)
}

// Rebuilder runs a full rebuild for every batch of changes. Batches that
// arrive during a rebuild collapse into a single follow-up rebuild.
type Rebuilder struct {
	builder  Builder
	logger   *slog.Logger
	onResult func(*index.BuildResult, error)
}

// RebuilderOption configures a Rebuilder.
type RebuilderOption func(*Rebuilder)

// WithResultHook calls fn after every rebuild attempt.
func WithResultHook(fn func(*index.BuildResult, error)) RebuilderOption {
	return func(r *Rebuilder) {
		r.onResult = fn
	}
}

// NewRebuilder creates a Rebuilder. A nil logger uses slog.Default().
func NewRebuilder(builder Builder, logger *slog.Logger, opts ...RebuilderOption) *Rebuilder {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Rebuilder{builder: builder, logger: logger}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run consumes batches until ctx is done or batches is closed. A failed
// rebuild is logged and the previous generation stays live; Run keeps going.
func (r *Rebuilder) Run(ctx context.Context, batches <-chan []FileEvent) error {
	trigger := make(chan struct{}, 1)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-trigger:
				if !ok {
					return
				}
				r.rebuild(ctx)
			}
		}
	}()

	defer func() {
		close(trigger)
		<-done
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case batch, ok := <-batches:
			if !ok {
				return nil
			}
			if len(batch) == 0 {
				continue
			}
			r.logger.Info("corpus_changed",
				slog.Int("changes", len(batch)),
				slog.String("first", batch[0].Path),
				slog.String("op", batch[0].Operation.String()))
			select {
			case trigger <- struct{}{}:
			default:
				// a rebuild is already queued
			}
		}
	}
}

func (r *Rebuilder) rebuild(ctx context.Context) {
	result, err := r.builder.Execute(ctx)
	switch {
	case err == nil:
		r.logger.Info("watch_rebuild_complete",
			slog.Int("indexed", result.IndexedCount),
			slog.String("generation", result.Generation))
	case errors.Is(err, context.Canceled):
	case mserrors.GetCode(err) == mserrors.ErrCodeIndexLocked:
		r.logger.Warn("watch_rebuild_skipped", slog.String("reason", "index locked"))
	default:
		r.logger.Error("watch_rebuild_failed", slog.String("error", err.Error()))
	}
	if r.onResult != nil {
		r.onResult(result, err)
	}
}
