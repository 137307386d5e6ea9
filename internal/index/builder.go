// Package index runs full rebuilds of the inverted index and document
// statistics from a document source.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/mixsearch/internal/embed"
	mserrors "github.com/Aman-CERP/mixsearch/internal/errors"
	"github.com/Aman-CERP/mixsearch/internal/store"
	"github.com/Aman-CERP/mixsearch/internal/telemetry"
	"github.com/Aman-CERP/mixsearch/internal/tokenize"
	"github.com/Aman-CERP/mixsearch/internal/ui"
)

// Build outcomes, used as the metrics label.
const (
	OutcomeSuccess = "success"
	OutcomeEmpty   = "empty"
	OutcomeFailed  = "failed"
)

// Config configures a Builder.
type Config struct {
	// Workers bounds concurrent per-document tokenization. 0 means NumCPU.
	Workers int

	// LockDir holds the rebuild lock file. Empty disables locking.
	LockDir string

	// EmbedDocuments computes a document embedding for every indexed
	// document when a provider and vector store are configured.
	EmbedDocuments bool

	// VectorPath, when set, is where the vector store is saved after a
	// successful build.
	VectorPath string
}

// Analyzer produces the document-mode term statistics of one document.
// *tokenize.Tokenizer implements it.
type Analyzer interface {
	Analyze(text string) (*tokenize.Analysis, error)
}

// DocumentArchive receives the text of every committed generation.
// *store.BleveArchive implements it.
type DocumentArchive interface {
	Replace(ctx context.Context, generation string, docs []*store.Document) error
}

// Dependencies are the collaborators of a Builder.
type Dependencies struct {
	// Tokenizer runs the document-mode pipeline (required).
	Tokenizer Analyzer

	// Source provides the corpus (required).
	Source store.DocumentSource

	// Persistence receives the new generation (required).
	Persistence store.IndexPersistence

	// Provider computes document embeddings. Optional.
	Provider embed.Provider

	// Vectors receives the document embeddings. Optional; it is replaced
	// wholesale on every successful build.
	Vectors *store.HNSWStore

	// Archive keeps the indexed text for snippets. Optional.
	Archive DocumentArchive

	// Metrics records build counters. Optional.
	Metrics *telemetry.Metrics

	// Renderer shows progress. Optional.
	Renderer ui.Renderer

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// BuildResult is the outcome of a full rebuild.
type BuildResult struct {
	Success       bool          `json:"success"`
	IndexedCount  int           `json:"indexedCount"`
	SkippedCount  int           `json:"skippedCount"`
	EmbeddedCount int           `json:"embeddedCount,omitempty"`
	TotalTerms    int           `json:"totalTerms"`
	AvgDocLength  float64       `json:"avgDocLength"`
	Generation    string        `json:"generation,omitempty"`
	Duration      time.Duration `json:"duration"`
}

// Builder rebuilds the index from scratch. The previous generation stays
// queryable until Commit swaps the new one in.
type Builder struct {
	cfg         Config
	tok         Analyzer
	source      store.DocumentSource
	persistence store.IndexPersistence
	provider    embed.Provider
	vectors     *store.HNSWStore
	archive     DocumentArchive
	metrics     *telemetry.Metrics
	renderer    ui.Renderer
	logger      *slog.Logger
}

// NewBuilder creates a Builder with injected dependencies.
func NewBuilder(deps Dependencies, cfg Config) (*Builder, error) {
	if deps.Tokenizer == nil {
		return nil, fmt.Errorf("tokenizer is required")
	}
	if deps.Source == nil {
		return nil, fmt.Errorf("document source is required")
	}
	if deps.Persistence == nil {
		return nil, fmt.Errorf("index persistence is required")
	}

	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	renderer := deps.Renderer
	if renderer == nil {
		renderer = ui.Nop{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Builder{
		cfg:         cfg,
		tok:         deps.Tokenizer,
		source:      deps.Source,
		persistence: deps.Persistence,
		provider:    deps.Provider,
		vectors:     deps.Vectors,
		archive:     deps.Archive,
		metrics:     deps.Metrics,
		renderer:    renderer,
		logger:      logger,
	}, nil
}

// analyzed is one document's tokenization output.
type analyzed struct {
	analysis *tokenize.Analysis
	err      error
}

// Execute runs a full rebuild.
func (b *Builder) Execute(ctx context.Context) (result *BuildResult, err error) {
	start := time.Now()
	generation := uuid.NewString()

	defer func() {
		outcome := OutcomeFailed
		if err == nil {
			outcome = OutcomeSuccess
			if result.IndexedCount == 0 {
				outcome = OutcomeEmpty
			}
		}
		b.observeBuild(outcome, time.Since(start))
	}()

	if b.cfg.LockDir != "" {
		lock := NewFileLock(b.cfg.LockDir)
		acquired, lockErr := lock.TryLock()
		if lockErr != nil {
			return nil, mserrors.New(mserrors.ErrCodeIndexFailed, "failed to acquire rebuild lock", lockErr)
		}
		if !acquired {
			return nil, mserrors.New(mserrors.ErrCodeIndexLocked, "another index build is running", nil).
				WithDetail("lock", lock.Path()).
				WithSuggestion("Wait for the running build to finish and retry")
		}
		defer func() {
			if unlockErr := lock.Unlock(); unlockErr != nil {
				b.logger.Warn("rebuild_lock_release_failed", slog.String("error", unlockErr.Error()))
			}
		}()
	}

	b.logger.Info("index_build_started",
		slog.String("generation", generation),
		slog.Int("workers", b.cfg.Workers))

	// Stage 1: load
	b.renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageLoading, Message: "reading corpus"})
	docs, err := b.source.FindAll(ctx)
	if err != nil {
		return nil, mserrors.New(mserrors.ErrCodeSourceUnavailable, "failed to read corpus", err)
	}
	docs, skipped := b.dedupe(docs)

	if len(docs) == 0 {
		return b.finishEmpty(ctx, generation, start, skipped)
	}

	// Stage 2: tokenize
	results, err := b.analyzeAll(ctx, docs)
	if err != nil {
		return nil, err
	}

	idx := store.NewInvertedIndex()
	stats := store.NewDocumentStatistics()
	stats.Generation = generation
	stats.BuiltAt = start

	indexed := make([]*store.Document, 0, len(docs))
	for i, doc := range docs {
		res := results[i]
		if res.err != nil {
			skipped++
			b.skip(doc.ID, res.err)
			continue
		}
		addDocument(idx, stats, doc, res.analysis)
		indexed = append(indexed, doc)
	}

	// Stage 3: embed
	fresh, embedded, err := b.embedAll(ctx, indexed)
	if err != nil {
		return nil, err
	}

	// Stage 4: commit
	b.renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageCommitting, Message: "committing generation " + generation})
	if len(indexed) == 0 {
		if err := b.persistence.Clear(ctx); err != nil {
			return nil, mserrors.PersistenceError("failed to clear index", err)
		}
	} else if err := b.persistence.Commit(ctx, idx, stats); err != nil {
		return nil, mserrors.PersistenceError("failed to commit index generation", err).
			WithDetail("generation", generation)
	}
	b.publishVectors(fresh)
	if len(indexed) == 0 {
		b.publishArchive(ctx, "", nil)
	} else {
		b.publishArchive(ctx, generation, indexed)
	}

	result = &BuildResult{
		Success:       true,
		IndexedCount:  len(indexed),
		SkippedCount:  skipped,
		EmbeddedCount: embedded,
		TotalTerms:    idx.TermCount(),
		AvgDocLength:  stats.AverageDocumentLength(),
		Generation:    generation,
		Duration:      time.Since(start),
	}
	b.complete(result)
	return result, nil
}

// dedupe drops nil documents, documents without an ID and repeated IDs.
// The first occurrence of an ID wins.
func (b *Builder) dedupe(docs []*store.Document) ([]*store.Document, int) {
	seen := make(map[string]struct{}, len(docs))
	out := make([]*store.Document, 0, len(docs))
	skipped := 0
	for _, doc := range docs {
		if doc == nil || doc.ID == "" {
			skipped++
			b.skip("", fmt.Errorf("document has no id"))
			continue
		}
		if _, dup := seen[doc.ID]; dup {
			skipped++
			b.skip(doc.ID, fmt.Errorf("duplicate document id"))
			continue
		}
		seen[doc.ID] = struct{}{}
		out = append(out, doc)
	}
	return out, skipped
}

// analyzeAll tokenizes docs on a bounded pool. Results are positional so the
// merge that follows runs in corpus order.
func (b *Builder) analyzeAll(ctx context.Context, docs []*store.Document) ([]analyzed, error) {
	results := make([]analyzed, len(docs))
	total := len(docs)
	var done atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.cfg.Workers)
	for i, doc := range docs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			a, err := b.tok.Analyze(doc.Content)
			results[i] = analyzed{analysis: a, err: err}

			b.renderer.UpdateProgress(ui.ProgressEvent{
				Stage:   ui.StageTokenizing,
				Current: int(done.Add(1)),
				Total:   total,
				DocID:   doc.ID,
			})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// addDocument records doc in stats and adds one posting per term.
func addDocument(idx *store.InvertedIndex, stats *store.DocumentStatistics, doc *store.Document, a *tokenize.Analysis) {
	stats.Add(doc.ID, store.DocStat{
		Length: a.Length,
		Source: doc.Source,
		Title:  doc.Title,
	})

	terms := make([]string, 0, len(a.TF))
	for term := range a.TF {
		terms = append(terms, term)
	}
	sort.Strings(terms)

	for _, term := range terms {
		idx.AddPosting(term, store.Posting{
			DocID:         doc.ID,
			TermFrequency: a.TF[term],
			Positions:     a.Positions[term],
		})
	}
}

// embedAll embeds every indexed document into a fresh vector store. A
// document whose embedding fails stays lexical-only. An unavailable provider
// ends the stage early.
func (b *Builder) embedAll(ctx context.Context, docs []*store.Document) (*store.HNSWStore, int, error) {
	if b.vectors == nil {
		return nil, 0, nil
	}
	fresh := store.NewHNSWStore(0)
	if !b.cfg.EmbedDocuments || b.provider == nil {
		return fresh, 0, nil
	}

	embedded := 0
	for i, doc := range docs {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		b.renderer.UpdateProgress(ui.ProgressEvent{
			Stage:   ui.StageEmbedding,
			Current: i + 1,
			Total:   len(docs),
			DocID:   doc.ID,
		})

		vec, err := b.provider.Embed(ctx, doc.Content)
		if err != nil {
			if ctx.Err() != nil {
				return nil, 0, ctx.Err()
			}
			b.embeddingFailed(doc.ID, err)
			if mserrors.GetCode(err) == mserrors.ErrCodeProviderUnavailable {
				b.logger.Warn("document_embedding_stopped",
					slog.Int("remaining", len(docs)-i-1))
				break
			}
			continue
		}
		if vec == nil {
			continue
		}
		if err := fresh.Put(doc.ID, vec); err != nil {
			b.embeddingFailed(doc.ID, err)
			continue
		}
		embedded++
	}
	return fresh, embedded, nil
}

func (b *Builder) embeddingFailed(docID string, err error) {
	b.logger.Warn("document_embedding_failed",
		slog.String("doc_id", docID),
		slog.String("error", err.Error()))
	b.renderer.AddError(ui.ErrorEvent{DocID: docID, Err: err, IsWarn: true})
	if b.metrics != nil {
		b.metrics.EmbeddingFailures.Inc()
	}
}

// publishVectors swaps the freshly built vectors in and saves them.
func (b *Builder) publishVectors(fresh *store.HNSWStore) {
	if b.vectors == nil || fresh == nil {
		return
	}
	if err := b.vectors.Swap(fresh); err != nil {
		b.logger.Warn("vector_store_swap_failed", slog.String("error", err.Error()))
		return
	}
	if b.cfg.VectorPath == "" {
		return
	}
	if err := b.vectors.Save(b.cfg.VectorPath); err != nil {
		b.logger.Warn("vector_store_save_failed",
			slog.String("path", b.cfg.VectorPath),
			slog.String("error", err.Error()))
	}
}

// publishArchive replaces the archived text. The index is already
// committed, so a failure only costs snippet quality.
func (b *Builder) publishArchive(ctx context.Context, generation string, docs []*store.Document) {
	if b.archive == nil {
		return
	}
	if err := b.archive.Replace(ctx, generation, docs); err != nil {
		b.logger.Warn("document_archive_replace_failed",
			slog.String("generation", generation),
			slog.String("error", err.Error()))
	}
}

func (b *Builder) finishEmpty(ctx context.Context, generation string, start time.Time, skipped int) (*BuildResult, error) {
	b.renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageCommitting, Message: "empty corpus, clearing index"})
	if err := b.persistence.Clear(ctx); err != nil {
		return nil, mserrors.PersistenceError("failed to clear index", err)
	}
	b.publishVectors(store.NewHNSWStore(0))
	b.publishArchive(ctx, "", nil)

	result := &BuildResult{
		Success:      true,
		SkippedCount: skipped,
		Generation:   generation,
		Duration:     time.Since(start),
	}
	b.complete(result)
	return result, nil
}

func (b *Builder) skip(docID string, err error) {
	skipErr := mserrors.New(mserrors.ErrCodeDocumentSkipped, "document skipped", err)
	b.logger.Warn("document_skipped",
		slog.String("doc_id", docID),
		slog.String("error", err.Error()))
	b.renderer.AddError(ui.ErrorEvent{DocID: docID, Err: skipErr, IsWarn: true})
	if b.metrics != nil {
		b.metrics.DocumentsSkipped.Inc()
	}
}

func (b *Builder) complete(result *BuildResult) {
	if b.metrics != nil {
		b.metrics.DocumentsIndexed.Add(float64(result.IndexedCount))
		b.metrics.IndexTerms.Set(float64(result.TotalTerms))
		b.metrics.IndexDocuments.Set(float64(result.IndexedCount))
	}

	b.renderer.Complete(ui.CompletionStats{
		Indexed:      result.IndexedCount,
		Skipped:      result.SkippedCount,
		Embedded:     result.EmbeddedCount,
		Terms:        result.TotalTerms,
		AvgDocLength: result.AvgDocLength,
		Generation:   result.Generation,
		Duration:     result.Duration,
	})

	b.logger.Info("index_build_complete",
		slog.String("generation", result.Generation),
		slog.Int("indexed", result.IndexedCount),
		slog.Int("skipped", result.SkippedCount),
		slog.Int("embedded", result.EmbeddedCount),
		slog.Int("terms", result.TotalTerms),
		slog.Float64("avg_doc_length", result.AvgDocLength),
		slog.Int64("duration_ms", result.Duration.Milliseconds()))
}

func (b *Builder) observeBuild(outcome string, d time.Duration) {
	if b.metrics == nil {
		return
	}
	b.metrics.BuildsTotal.WithLabelValues(outcome).Inc()
	b.metrics.BuildDuration.Observe(d.Seconds())
}
