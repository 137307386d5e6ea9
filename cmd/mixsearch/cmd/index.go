package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/mixsearch/internal/output"
)

func newIndexCmd() *cobra.Command {
	var (
		reset  bool
		plain  bool
		format string
	)

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Rebuild the index from the configured source",
		Long: `Rebuild the inverted index and document statistics from every document
in the configured source.

Each build is a full rebuild. The new generation replaces the previous
one atomically; a failed build leaves the previous generation in place.
Only one build runs at a time per project.

Use --reset to drop the committed index and saved vectors first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := output.ParseFormat(format)
			if err != nil {
				return err
			}
			// JSON output must not be interleaved with progress.
			return runIndex(cmd.Context(), cmd, reset, plain || f == output.FormatJSON, f)
		},
	}

	cmd.Flags().BoolVar(&reset, "reset", false, "Clear the committed index before rebuilding")
	cmd.Flags().BoolVar(&plain, "plain", false, "Disable TUI mode, use plain text output")
	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, reset, plain bool, format output.Format) error {
	a, err := openApp(logQuiet)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if reset {
		if err := a.reset(ctx); err != nil {
			return err
		}
	}

	progress := cmd.ErrOrStderr()
	renderer := newRenderer(progress, plain, a.cfg.Source.Path)
	builder, err := a.newBuilder(renderer)
	if err != nil {
		return err
	}

	if err := renderer.Start(ctx); err != nil {
		a.logger.Warn("progress_renderer_start_failed", slog.String("error", err.Error()))
	}
	res, buildErr := builder.Execute(ctx)
	_ = renderer.Stop()
	if buildErr != nil {
		return fmt.Errorf("index build failed: %w", buildErr)
	}

	return output.New(cmd.OutOrStdout()).BuildResult(res, format)
}

// reset drops the committed generation and the saved vectors.
func (a *app) reset(ctx context.Context) error {
	if err := a.index.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear index: %w", err)
	}
	if path := a.cfg.Index.VectorPath; path != "" {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove vectors: %w", err)
		}
	}
	a.logger.Info("index_reset", slog.String("storage", a.cfg.Storage.Path))
	return nil
}
