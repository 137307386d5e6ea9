// Package cmd provides the CLI commands for mixsearch.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/mixsearch/internal/profiling"
	"github.com/Aman-CERP/mixsearch/pkg/version"
)

// globalFlags are the persistent flags shared by every command.
type globalFlags struct {
	configPath string
	dir        string
	debug      bool
	profile    profiling.Options
}

var (
	globals  globalFlags
	profiler *profiling.Session
)

// NewRootCmd creates the root command for the mixsearch CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mixsearch",
		Short: "Mixed-script full-text search for Latin and CJK documents",
		Long: `mixsearch indexes Markdown and text documents that mix Latin and CJK
scripts, and ranks them with BM25 blended with embedding similarity.

Run 'mixsearch init' in a project directory, then 'mixsearch index'
and 'mixsearch search <query>'. 'mixsearch serve' exposes the same
operations to MCP clients over stdio.`,
		Version:            version.Version,
		SilenceUsage:       true,
		PersistentPreRunE:  startProfiling,
		PersistentPostRunE: stopProfiling,
	}
	cmd.SetVersionTemplate("mixsearch version {{.Version}}\n")

	globals = globalFlags{}
	pf := cmd.PersistentFlags()
	pf.StringVarP(&globals.configPath, "config", "c", "", "Config file (default: <project>/.mixsearch.yaml)")
	pf.StringVarP(&globals.dir, "dir", "C", ".", "Project directory")
	pf.BoolVar(&globals.debug, "debug", false, "Enable debug logging to ~/.mixsearch/logs/")
	pf.StringVar(&globals.profile.CPU, "profile-cpu", "", "Write CPU profile to file")
	pf.StringVar(&globals.profile.Heap, "profile-mem", "", "Write memory profile to file")
	pf.StringVar(&globals.profile.Trace, "profile-trace", "", "Write execution trace to file")

	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newTokenizeCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func startProfiling(_ *cobra.Command, _ []string) error {
	if !globals.profile.Enabled() {
		return nil
	}
	s, err := profiling.Start(globals.profile)
	if err != nil {
		return err
	}
	profiler = s
	return nil
}

func stopProfiling(_ *cobra.Command, _ []string) error {
	if profiler == nil {
		return nil
	}
	s := profiler
	profiler = nil
	if err := s.Stop(); err != nil {
		return fmt.Errorf("failed to stop profiling: %w", err)
	}
	return nil
}

// Execute runs the root command. Interrupts cancel the command context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCmd().ExecuteContext(ctx)
}
