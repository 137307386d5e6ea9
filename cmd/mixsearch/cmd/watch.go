package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/mixsearch/internal/config"
	"github.com/Aman-CERP/mixsearch/internal/gitignore"
	"github.com/Aman-CERP/mixsearch/internal/index"
	"github.com/Aman-CERP/mixsearch/internal/output"
	"github.com/Aman-CERP/mixsearch/internal/store"
	"github.com/Aman-CERP/mixsearch/internal/watcher"
)

func newWatchCmd() *cobra.Command {
	var (
		poll  bool
		plain bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Rebuild the index whenever documents change",
		Long: `Build the index once, then watch the document directory and run a
full rebuild after each burst of changes.

Changes arriving while a rebuild runs are folded into one follow-up
rebuild. A failed rebuild is reported and the previous generation
stays searchable. Stop with Ctrl+C.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatchCmd(cmd.Context(), cmd, poll, plain)
		},
	}

	cmd.Flags().BoolVar(&poll, "poll", false, "Poll the directory instead of using native file events")
	cmd.Flags().BoolVar(&plain, "plain", false, "Disable TUI mode for the initial build")

	return cmd
}

func runWatchCmd(ctx context.Context, cmd *cobra.Command, poll, plain bool) error {
	a, err := openApp(logStderr)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if a.cfg.Source.Kind != config.SourceDir {
		return fmt.Errorf("watch needs a directory source, configured source is %q", a.cfg.Source.Kind)
	}

	out := output.New(cmd.OutOrStdout())

	renderer := newRenderer(cmd.ErrOrStderr(), plain, a.cfg.Source.Path)
	initial, err := a.newBuilder(renderer)
	if err != nil {
		return err
	}
	if err := renderer.Start(ctx); err != nil {
		a.logger.Warn("progress_renderer_start_failed", slog.String("error", err.Error()))
	}
	res, err := initial.Execute(ctx)
	_ = renderer.Stop()
	if err != nil {
		return fmt.Errorf("initial index build failed: %w", err)
	}
	if err := out.BuildResult(res, output.FormatText); err != nil {
		return err
	}

	// Rebuilds after the first report through the result hook only.
	builder, err := a.newBuilder(nil)
	if err != nil {
		return err
	}
	out.Statusf("👀", "Watching %s (Ctrl+C to stop)", a.cfg.Source.Path)

	err = a.watch(ctx, builder, poll, func(res *index.BuildResult, err error) {
		switch {
		case errors.Is(err, context.Canceled):
			return
		case err != nil:
			out.Errorf("Rebuild failed: %v", err)
		default:
			out.Successf("Rebuilt: %d documents, generation %s", res.IndexedCount, res.Generation)
		}
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// watch rebuilds through builder on every batch of document changes until
// ctx is done.
func (a *app) watch(ctx context.Context, builder watcher.Builder, poll bool, onResult func(*index.BuildResult, error)) error {
	opts := watcher.Options{
		Debounce:     a.cfg.Watch.Debounce,
		PollInterval: a.cfg.Watch.PollInterval,
		ConfigFiles:  append([]string{config.ProjectConfigFile, config.ProjectConfigFileAlt}, gitignore.IgnoreFiles...),
		ForcePolling: poll,
	}
	if dir, ok := a.source.(*store.DirSource); ok {
		opts.Ignore = dir.Ignored
	}
	w, err := watcher.New(opts)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = w.Stop() }()

	a.logger.Info("watch_started",
		slog.String("root", a.cfg.Source.Path),
		slog.String("mode", w.Mode()))

	var rebuilderOpts []watcher.RebuilderOption
	if onResult != nil {
		rebuilderOpts = append(rebuilderOpts, watcher.WithResultHook(onResult))
	}
	rebuilder := watcher.NewRebuilder(builder, a.logger, rebuilderOpts...)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return w.Start(gctx, a.cfg.Source.Path)
	})
	g.Go(func() error {
		return rebuilder.Run(gctx, w.Events())
	})
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case err, ok := <-w.Errors():
				if !ok {
					return nil
				}
				a.logger.Warn("watcher_error", slog.String("error", err.Error()))
			}
		}
	})
	return g.Wait()
}
