package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/Aman-CERP/mixsearch/internal/config"
	"github.com/Aman-CERP/mixsearch/internal/embed"
	"github.com/Aman-CERP/mixsearch/internal/index"
	"github.com/Aman-CERP/mixsearch/internal/logging"
	"github.com/Aman-CERP/mixsearch/internal/search"
	"github.com/Aman-CERP/mixsearch/internal/store"
	"github.com/Aman-CERP/mixsearch/internal/telemetry"
	"github.com/Aman-CERP/mixsearch/internal/tokenize"
	"github.com/Aman-CERP/mixsearch/internal/ui"
)

// logMode selects where an app logs.
type logMode int

const (
	// logQuiet logs to the configured file only; stdout and stderr stay
	// clean for command output.
	logQuiet logMode = iota
	// logStderr honours the configured stderr setting.
	logStderr
	// logMCP logs to a file only; stdio carries the protocol.
	logMCP
)

// app holds the components shared by every command.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	tok      *tokenize.Tokenizer
	index    store.IndexPersistence
	source   store.DocumentSource
	lookup   store.DocumentLookup
	archive  *store.BleveArchive
	provider *embed.Lazy
	vectors  *store.HNSWStore
	metrics  *telemetry.Metrics
	queryLog *telemetry.QueryLog
	engine   *search.Engine

	closers []func() error
}

// loadConfig resolves the configuration for the global flags.
func loadConfig() (*config.Config, error) {
	if globals.configPath != "" {
		return config.LoadFile(globals.configPath)
	}
	root, err := config.FindProjectRoot(globals.dir)
	if err != nil {
		return nil, err
	}
	return config.Load(root)
}

// openApp loads configuration and opens storage, source and engine.
func openApp(mode logMode) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg}
	if err := a.setupLogging(mode); err != nil {
		return nil, err
	}
	if err := a.open(); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) setupLogging(mode logMode) error {
	logCfg := a.cfg.Logging
	if globals.debug {
		logCfg.Level = "debug"
		if logCfg.FilePath == "" {
			logCfg.FilePath = logging.DefaultLogPath()
		}
	}

	switch mode {
	case logMCP:
		cleanup, err := logging.SetupMCPMode(logCfg)
		if err != nil {
			return fmt.Errorf("failed to set up logging: %w", err)
		}
		a.closers = append(a.closers, func() error { cleanup(); return nil })
		a.logger = slog.Default()
		return nil
	case logQuiet:
		logCfg.WriteToStderr = globals.debug
	}

	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	a.closers = append(a.closers, func() error { cleanup(); return nil })
	a.logger = logger
	slog.SetDefault(logger)
	return nil
}

func (a *app) open() error {
	cfg := a.cfg
	a.tok = tokenize.New(cfg.Tokenize, tokenize.WithLogger(a.logger))
	a.metrics = telemetry.New()
	a.queryLog = telemetry.NewQueryLog(1000, 50)

	switch cfg.Storage.Backend {
	case config.BackendMemory:
		a.index = store.NewMemoryPersistence()
	default:
		p, err := store.NewSQLitePersistence(store.SQLiteConfig{Path: cfg.Storage.Path, Driver: cfg.Storage.Driver})
		if err != nil {
			return fmt.Errorf("failed to open index database: %w", err)
		}
		a.index = p
		a.closers = append(a.closers, p.Close)
	}

	switch cfg.Source.Kind {
	case config.SourceSQL:
		src, err := store.NewSQLSource(store.SQLSourceConfig{
			Driver: cfg.Source.Driver,
			DSN:    cfg.Source.DSN,
			Table:  cfg.Source.Table,
		})
		if err != nil {
			return err
		}
		a.source, a.lookup = src, src
		a.closers = append(a.closers, src.Close)
	default:
		src, err := store.NewDirSource(cfg.Source.Path, cfg.Source.Label)
		if err != nil {
			return err
		}
		a.source, a.lookup = src, src
	}

	opts := []search.EngineOption{
		search.WithDocumentLookup(a.lookup),
		search.WithMetrics(a.metrics),
		search.WithQueryLog(a.queryLog),
		search.WithLogger(a.logger),
	}

	if cfg.Index.ArchiveText {
		archive, err := store.NewBleveArchive(cfg.Tokenize.Core.CJKMode)
		if err != nil {
			return err
		}
		a.archive = archive
		a.closers = append(a.closers, archive.Close)
		opts = append(opts, search.WithTermLocator(archive))
	}

	// A nil *embed.Lazy must not reach the interfaces below.
	if provider := embed.NewProvider(cfg.Embeddings, a.tok); provider != nil {
		a.provider = provider
		a.vectors = store.NewHNSWStore(0)
		a.closers = append(a.closers, provider.Close, a.vectors.Close)
		a.loadVectors()
		opts = append(opts, search.WithEmbeddings(a.provider, a.vectors))
	}

	engine, err := search.NewEngine(a.tok, a.index, cfg.Ranking, opts...)
	if err != nil {
		return err
	}
	a.engine = engine
	return nil
}

// loadVectors restores document embeddings saved by a previous build.
// A missing or unreadable file leaves the store empty.
func (a *app) loadVectors() {
	path := a.cfg.Index.VectorPath
	if path == "" {
		return
	}
	if _, err := os.Stat(path); err != nil {
		return
	}
	if err := a.vectors.Load(path); err != nil {
		a.logger.Warn("vector_store_load_failed",
			slog.String("path", path),
			slog.String("error", err.Error()))
	}
}

// newBuilder creates an index builder reporting progress to renderer.
func (a *app) newBuilder(renderer ui.Renderer) (*index.Builder, error) {
	deps := index.Dependencies{
		Tokenizer:   a.tok,
		Source:      a.source,
		Persistence: a.index,
		Metrics:     a.metrics,
		Renderer:    renderer,
		Logger:      a.logger,
	}
	if a.archive != nil {
		deps.Archive = a.archive
	}
	if a.provider != nil {
		deps.Provider = a.provider
		deps.Vectors = a.vectors
	}
	return index.NewBuilder(deps, index.Config{
		Workers:        a.cfg.Index.Workers,
		LockDir:        a.cfg.Index.LockDir,
		EmbedDocuments: a.cfg.Index.EmbedDocuments,
		VectorPath:     a.cfg.Index.VectorPath,
	})
}

// newRenderer returns a progress renderer for w.
func newRenderer(w io.Writer, plain bool, title string) ui.Renderer {
	return ui.NewRenderer(ui.Config{
		Output:     w,
		ForcePlain: plain,
		NoColor:    ui.DetectNoColor(),
		Title:      title,
	})
}

// isEmpty reports whether no generation has been committed.
func (a *app) isEmpty(ctx context.Context) (bool, error) {
	sum, err := a.engine.Summary(ctx)
	if err != nil {
		return false, err
	}
	return sum.Documents == 0, nil
}

// Close releases everything openApp opened, in reverse order.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
