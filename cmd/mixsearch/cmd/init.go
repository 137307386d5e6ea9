package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/mixsearch/configs"
	"github.com/Aman-CERP/mixsearch/internal/config"
	"github.com/Aman-CERP/mixsearch/internal/output"
)

func newInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a project configuration file",
		Long: `Write a commented .mixsearch.yaml to the project directory (--dir).

The template indexes Markdown and text files under the directory with
bigram CJK tokenization, stores the index in .mixsearch/index.db and
enables the offline static embedding provider.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInit(cmd, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing configuration")

	return cmd
}

func runInit(cmd *cobra.Command, force bool) error {
	out := output.New(cmd.OutOrStdout())

	root, err := filepath.Abs(globals.dir)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	path := filepath.Join(root, config.ProjectConfigFile)

	if _, err := os.Stat(path); err == nil && !force {
		out.Warning("Project configuration already exists")
		out.Statusf("📁", "Location: %s", path)
		out.Status("💡", "Use --force to overwrite it")
		return nil
	}

	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("failed to create project directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(configs.ProjectConfigTemplate), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	out.Success("Created project configuration")
	out.Statusf("📁", "Location: %s", path)
	out.Newline()
	out.Status("📋", "Next steps:")
	out.Status("", "  1. Run 'mixsearch index' to build the index")
	out.Status("", "  2. Run 'mixsearch search <query>' to query it")
	return nil
}
