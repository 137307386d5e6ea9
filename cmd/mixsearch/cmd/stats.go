package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/mixsearch/internal/output"
)

func newStatsCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show committed index statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := output.ParseFormat(format)
			if err != nil {
				return err
			}

			a, err := openApp(logQuiet)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			sum, err := a.engine.Summary(cmd.Context())
			if err != nil {
				return err
			}
			return output.New(cmd.OutOrStdout()).Summary(sum, f)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, json")

	return cmd
}
