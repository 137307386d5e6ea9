package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/mixsearch/internal/async"
	"github.com/Aman-CERP/mixsearch/internal/config"
	"github.com/Aman-CERP/mixsearch/internal/mcp"
)

// metricsShutdownTimeout bounds the metrics server's graceful shutdown.
const metricsShutdownTimeout = 5 * time.Second

func newServeCmd() *cobra.Command {
	var (
		metricsAddr string
		watch       bool
		poll        bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server over stdio",
		Long: `Start the MCP server on stdin/stdout.

Tools: search, tokenize, stats and build_index.
Resources: mixsearch://query_metrics and mixsearch://doc/{id}.

stdout carries the protocol only; logs go to ~/.mixsearch/logs/.
An empty index is built in the background at startup. With --watch the
index is rebuilt whenever documents change.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), metricsAddr, watch, poll)
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve prometheus metrics on this address (overrides server.metrics_addr)")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Rebuild the index when documents change")
	cmd.Flags().BoolVar(&poll, "poll", false, "Poll the directory instead of using native file events")

	return cmd
}

func runServe(ctx context.Context, metricsAddr string, watch, poll bool) error {
	a, err := openApp(logMCP)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	builder, err := a.newBuilder(nil)
	if err != nil {
		return err
	}
	// Every build, whoever triggers it, shows up in the stats tool.
	indexer := async.NewBackgroundIndexer(builder, a.logger)

	srv, err := mcp.NewServer(mcp.Dependencies{
		Engine:      a.engine,
		Tokenizer:   a.tok,
		Builder:     indexer,
		BuildStatus: indexer,
		Lookup:      a.lookup,
		QueryLog:    a.queryLog,
		Logger:      a.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	if metricsAddr == "" {
		metricsAddr = a.cfg.Server.MetricsAddr
	}
	if watch && a.cfg.Source.Kind != config.SourceDir {
		return fmt.Errorf("--watch needs a directory source, configured source is %q", a.cfg.Source.Kind)
	}

	g, gctx := errgroup.WithContext(ctx)

	// The server must answer immediately, so the first build runs alongside it.
	if empty, err := a.isEmpty(ctx); err == nil && empty {
		indexer.Start(gctx)
	}
	defer func() { _ = indexer.Wait() }()

	if metricsAddr != "" {
		httpSrv := &http.Server{
			Addr:              metricsAddr,
			Handler:           a.metricsMux(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			a.logger.Info("metrics_server_starting", slog.String("addr", metricsAddr))
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
			defer cancel()
			return httpSrv.Shutdown(shutdownCtx)
		})
	}

	if watch {
		g.Go(func() error {
			err := a.watch(gctx, indexer, poll, nil)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	// The client closing stdin ends the session and everything else with it.
	g.Go(func() error {
		if err := srv.Serve(gctx); err != nil {
			return err
		}
		return errServerDone
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errServerDone) && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// errServerDone cancels the errgroup once the MCP session ends.
var errServerDone = errors.New("mcp session ended")

// metricsMux serves prometheus metrics and a liveness probe.
func (a *app) metricsMux() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	return mux
}
