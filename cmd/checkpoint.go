package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/sells-group/wallet-search-cli/internal/checkpoint"
	"github.com/sells-group/wallet-search-cli/internal/model"
	"github.com/sells-group/wallet-search-cli/internal/store"
)

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Inspect or clear the saved resume row of each worksheet",
}

var checkpointShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the next row each worksheet will resume from",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withCheckpoints(cmd, func(ctx context.Context, cps checkpoint.Store, names []string) error {
			return showCheckpoints(ctx, cmd.OutOrStdout(), cps, names)
		})
	},
}

var checkpointResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear saved checkpoints so the next search starts from the first row",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withCheckpoints(cmd, func(ctx context.Context, cps checkpoint.Store, names []string) error {
			for _, n := range names {
				if err := cps.Reset(ctx, n); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: checkpoint cleared\n", n)
			}
			return nil
		})
	},
}

func init() {
	checkpointCmd.PersistentFlags().StringSlice("worksheet", nil, "worksheet(s) to act on (overrides config)")
	checkpointCmd.AddCommand(checkpointShowCmd)
	checkpointCmd.AddCommand(checkpointResetCmd)
	rootCmd.AddCommand(checkpointCmd)
}

// withCheckpoints opens the configured backend for fn.
func withCheckpoints(cmd *cobra.Command, fn func(context.Context, checkpoint.Store, []string) error) error {
	if cmd.Flags().Changed("worksheet") {
		names, _ := cmd.Flags().GetStringSlice("worksheet")
		cfg.Sheet.Worksheets = joinNames(names)
	}
	if err := cfg.Validate("checkpoint"); err != nil {
		return err
	}
	ctx := cmd.Context()

	var st store.Store
	if cfg.Checkpoint.Backend == "store" {
		var err error
		if st, err = initStore(ctx); err != nil {
			return err
		}
		if st != nil {
			defer st.Close() //nolint:errcheck
		}
	}
	cps, release, err := initCheckpoints(ctx, st)
	if err != nil {
		return err
	}
	defer release()

	return fn(ctx, cps, cfg.Worksheets())
}

func showCheckpoints(ctx context.Context, out io.Writer, cps checkpoint.Store, names []string) error {
	for _, n := range names {
		row, ok, err := cps.Load(ctx, n)
		if err != nil {
			return err
		}
		if !ok {
			_, _ = fmt.Fprintf(out, "%s: no checkpoint (starts at row %d)\n", n, model.FirstDataRow)
			continue
		}
		_, _ = fmt.Fprintf(out, "%s: next row %d\n", n, row)
	}
	return nil
}
