package async

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Aman-CERP/mixsearch/internal/index"
)

// Builder runs one full index rebuild.
type Builder interface {
	Execute(ctx context.Context) (*index.BuildResult, error)
}

// BackgroundIndexer wraps a Builder so every build, foreground or
// background, is reflected in one BuildStatus.
type BackgroundIndexer struct {
	builder Builder
	status  *BuildStatus
	logger  *slog.Logger

	// now is replaceable in tests.
	now func() time.Time

	mu      sync.Mutex
	running bool
	done    chan struct{}
	err     error
}

// NewBackgroundIndexer creates an indexer. A nil logger uses slog.Default().
func NewBackgroundIndexer(builder Builder, logger *slog.Logger) *BackgroundIndexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &BackgroundIndexer{
		builder: builder,
		status:  NewBuildStatus(),
		logger:  logger,
		now:     time.Now,
	}
}

// Status returns the current build state.
func (b *BackgroundIndexer) Status() Snapshot {
	return b.status.Snapshot()
}

// Execute runs a build in the caller's goroutine.
func (b *BackgroundIndexer) Execute(ctx context.Context) (*index.BuildResult, error) {
	b.status.Begin(b.now())
	res, err := b.builder.Execute(ctx)
	b.status.Finish(res, err, b.now())
	return res, err
}

// Start begins a build in a background goroutine and returns immediately.
// It reports false when a background build is already running.
func (b *BackgroundIndexer) Start(ctx context.Context) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return false
	}
	b.running = true
	b.err = nil
	b.done = make(chan struct{})

	go b.run(ctx, b.done)
	return true
}

func (b *BackgroundIndexer) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	res, err := b.Execute(ctx)
	if err != nil {
		b.logger.Warn("background_index_failed", slog.String("error", err.Error()))
	} else {
		b.logger.Info("background_index_complete",
			slog.Int("indexed", res.IndexedCount),
			slog.String("generation", res.Generation))
	}

	b.mu.Lock()
	b.running = false
	b.err = err
	b.mu.Unlock()
}

// IsRunning reports whether a background build started by Start is running.
func (b *BackgroundIndexer) IsRunning() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

// Wait blocks until the last background build finishes and returns its
// error. It returns nil immediately if Start was never called.
func (b *BackgroundIndexer) Wait() error {
	b.mu.Lock()
	done := b.done
	b.mu.Unlock()
	if done == nil {
		return nil
	}
	<-done

	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}
