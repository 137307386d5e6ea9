package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/mixsearch/internal/output"
	"github.com/Aman-CERP/mixsearch/internal/tokenize"
)

func newTokenizeCmd() *cobra.Command {
	var (
		mode    string
		cjkMode string
		stats   bool
		format  string
	)

	cmd := &cobra.Command{
		Use:   "tokenize [text...]",
		Short: "Show how text is tokenized",
		Long: `Run text through the same pipeline the index uses and print the terms.

Text comes from the arguments, or from stdin when none are given.
Document mode uses the configured CJK mode; query mode always combines
single characters with bigrams.

Examples:
  mixsearch tokenize "北京大学 Peking University"
  mixsearch tokenize --cjk-mode char 图书馆
  echo "gpu 加速" | mixsearch tokenize --mode query --stats`,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := output.ParseFormat(format)
			if err != nil {
				return err
			}
			opts, err := tokenizeOptions(mode, cjkMode)
			if err != nil {
				return err
			}

			text := strings.Join(args, " ")
			if len(args) == 0 {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("failed to read stdin: %w", err)
				}
				text = string(data)
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			tok := tokenize.New(cfg.Tokenize)
			return output.New(cmd.OutOrStdout()).Tokens(tok.Stats(text, opts), stats, f)
		},
	}

	cmd.Flags().StringVarP(&mode, "mode", "m", "document", "Tokenization mode: document, query")
	cmd.Flags().StringVar(&cjkMode, "cjk-mode", "", "CJK mode override: span, char, bigram")
	cmd.Flags().BoolVar(&stats, "stats", false, "Show term frequencies and length")
	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func tokenizeOptions(mode, cjkMode string) (tokenize.Options, error) {
	opts := tokenize.Options{Mode: tokenize.ModeDocument}
	switch tokenize.Mode(strings.ToLower(mode)) {
	case "", tokenize.ModeDocument:
	case tokenize.ModeQuery:
		opts.Mode = tokenize.ModeQuery
	default:
		return opts, fmt.Errorf("unknown mode %q (expected document or query)", mode)
	}
	if cjkMode != "" {
		m, ok := tokenize.ParseCJKMode(cjkMode)
		if !ok {
			return opts, fmt.Errorf("unknown CJK mode %q (expected span, char or bigram)", cjkMode)
		}
		opts.CJKMode = m
	}
	return opts, nil
}
