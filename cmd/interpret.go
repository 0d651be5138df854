package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/wallet-search-cli/internal/interpret"
	"github.com/sells-group/wallet-search-cli/internal/model"
)

var interpretCmd = &cobra.Command{
	Use:   "interpret",
	Short: "Parse a provider response read from stdin",
	Long:  "Reads free-text provider output from stdin and prints what the search would extract from it. Useful when tuning prompts.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return eris.Wrap(err, "read stdin")
		}
		writeInterpretation(cmd.OutOrStdout(), string(data))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(interpretCmd)
}

func writeInterpretation(out io.Writer, text string) {
	text = strings.TrimSpace(text)
	exists, ambiguous := interpret.ParseExistence(text)
	username := interpret.ExtractUsername(text)
	confidence := interpret.ExtractConfidence(text)

	existence := fmt.Sprintf("%t", exists)
	if ambiguous {
		existence += " (ambiguous)"
	}
	handle := "-"
	if username != "" {
		handle = "@" + username
	}
	level := string(confidence)
	if level == "" {
		level = fmt.Sprintf("- (defaults to %s)", model.ConfidenceMedium)
	}

	_, _ = fmt.Fprintf(out, "existence:  %s\n", existence)
	_, _ = fmt.Fprintf(out, "username:   %s\n", handle)
	_, _ = fmt.Fprintf(out, "confidence: %s\n", level)
}
