package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/mixsearch/internal/output"
	"github.com/Aman-CERP/mixsearch/internal/search"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	scope  string
	alpha  float64
	embed  bool
	limit  int
	format string
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the committed index",
		Long: `Search the committed index.

Documents are scored with BM25 over the query terms. With --embed the
scores are blended with embedding similarity: both score sets are
min-max normalized and combined as alpha*bm25 + (1-alpha)*embedding.
Ties are broken by document ID.

Examples:
  mixsearch search "北京 travel"
  mixsearch search 图书馆 --scope wiki --limit 5
  mixsearch search "gpu 加速" --embed --alpha 0.3 --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var alpha *float64
			if cmd.Flags().Changed("alpha") {
				if opts.alpha < 0 || opts.alpha > 1 {
					return fmt.Errorf("--alpha must be between 0 and 1, got %g", opts.alpha)
				}
				alpha = &opts.alpha
			}
			return runSearch(cmd.Context(), cmd, strings.Join(args, " "), alpha, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.scope, "scope", "s", "", "Only return documents from this source")
	cmd.Flags().Float64Var(&opts.alpha, "alpha", 0.5, "Lexical weight in [0,1] when blending with embeddings")
	cmd.Flags().BoolVarP(&opts.embed, "embed", "e", false, "Blend BM25 with embedding similarity")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Maximum number of results (0 uses the configured limit)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, alpha *float64, opts searchOptions) error {
	format, err := output.ParseFormat(opts.format)
	if err != nil {
		return err
	}

	a, err := openApp(logQuiet)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	resp, err := a.engine.Search(ctx, query, opts.scope, search.SearchOptions{
		Alpha:        alpha,
		UseEmbedding: opts.embed,
		Limit:        opts.limit,
	})
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	out := output.New(cmd.OutOrStdout())
	if opts.embed && a.provider == nil && format == output.FormatText {
		out.Warning("Embeddings are disabled in the configuration; ranking by BM25 only.")
	}
	return out.SearchResults(resp, format)
}
