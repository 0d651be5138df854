package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/wallet-search-cli/internal/model"
	"github.com/sells-group/wallet-search-cli/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List worksheet run history",
	Long:  "Lists audited worksheet runs, newest first. Subcommands show a single run's results or aggregate statistics.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("runs"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		worksheet, _ := cmd.Flags().GetString("worksheet")
		limit, _ := cmd.Flags().GetInt("limit")
		format, _ := cmd.Flags().GetString("format")

		runs, err := st.ListRuns(ctx, store.RunFilter{
			Status:    model.RunStatus(status),
			Worksheet: worksheet,
			Limit:     limit,
		})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if format == "table" {
			if len(runs) == 0 {
				_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "No runs found.")
				return nil
			}
			formatRunsList(cmd.OutOrStdout(), runs)
			return nil
		}
		return encode(cmd.OutOrStdout(), format, runs)
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show a run and every wallet result it recorded",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("runs"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}
		results, err := st.ListResults(ctx, run.ID)
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		format, _ := cmd.Flags().GetString("format")
		if format == "table" {
			formatRunsList(cmd.OutOrStdout(), []model.Run{*run})
			_, _ = fmt.Fprintln(cmd.OutOrStdout())
			writeResults(cmd.OutOrStdout(), results)
			return nil
		}
		return encode(cmd.OutOrStdout(), format, runDetail{Run: *run, Results: results})
	},
}

// -- runs stats --

var runsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate run statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("runs"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		worksheet, _ := cmd.Flags().GetString("worksheet")
		runs, err := st.ListRuns(ctx, store.RunFilter{Worksheet: worksheet, Limit: 10000})
		if err != nil {
			return eris.Wrap(err, "runs stats")
		}

		formatRunStats(cmd.OutOrStdout(), computeRunStats(runs))
		return nil
	},
}

func init() {
	runsCmd.Flags().String("status", "", "filter by run status (running, complete, failed, interrupted)")
	runsCmd.Flags().String("worksheet", "", "filter by worksheet")
	runsCmd.Flags().Int("limit", 20, "max number of runs to display")
	runsCmd.PersistentFlags().String("format", "table", "output format: table, json or yaml")

	runsStatsCmd.Flags().String("worksheet", "", "filter by worksheet")

	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsStatsCmd)
	rootCmd.AddCommand(runsCmd)
}

type runDetail struct {
	Run     model.Run               `json:"run" yaml:"run"`
	Results []model.InferenceResult `json:"results" yaml:"results"`
}

// encode writes v as indented JSON or YAML.
func encode(out io.Writer, format string, v any) error {
	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return eris.Wrap(err, "encode yaml")
		}
		return enc.Close()
	default:
		return eris.Errorf("unknown format %q (want table, json or yaml)", format)
	}
}

// runStats holds aggregate statistics computed from a set of runs.
type runStats struct {
	Total       int
	Complete    int
	Failed      int
	Interrupted int
	Running     int
	Wallets     int
	Found       int
	NoPosts     int
	Errors      int
	CostUSD     float64
	AvgDurSecs  float64
}

// computeRunStats computes aggregate statistics from a list of runs.
func computeRunStats(runs []model.Run) runStats {
	var s runStats
	s.Total = len(runs)

	var totalDur time.Duration
	var durCount int

	for _, r := range runs {
		switch r.Status {
		case model.RunStatusComplete:
			s.Complete++
			totalDur += r.UpdatedAt.Sub(r.CreatedAt)
			durCount++
		case model.RunStatusFailed:
			s.Failed++
		case model.RunStatusInterrupted:
			s.Interrupted++
		default:
			s.Running++
		}
		if r.Summary != nil {
			s.Wallets += r.Summary.Processed
			s.Found += r.Summary.Found
			s.NoPosts += r.Summary.NoPosts
			s.Errors += r.Summary.Errors
			s.CostUSD += r.Summary.EstimatedCostUSD
		}
	}

	if durCount > 0 {
		s.AvgDurSecs = totalDur.Seconds() / float64(durCount)
	}
	return s
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tWORKSHEET\tSTATUS\tSTART_ROW\tPROCESSED\tFOUND\tCREATED\tDURATION")
	_, _ = fmt.Fprintln(w, "--\t---------\t------\t---------\t---------\t-----\t-------\t--------")

	for _, r := range runs {
		dur := r.UpdatedAt.Sub(r.CreatedAt).Round(time.Second).String()

		processed, found := "-", "-"
		if r.Summary != nil {
			processed = fmt.Sprint(r.Summary.Processed)
			found = fmt.Sprint(r.Summary.Found)
		}

		worksheet := r.Worksheet
		if len(worksheet) > 30 {
			worksheet = worksheet[:27] + "..."
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
			truncateID(r.ID),
			worksheet,
			r.Status,
			r.StartRow,
			processed,
			found,
			r.CreatedAt.Format("2006-01-02 15:04"),
			dur,
		)
	}
	_ = w.Flush()
}

// formatRunStats writes aggregate stats to w.
func formatRunStats(out io.Writer, s runStats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Total runs:\t%d\n", s.Total)
	_, _ = fmt.Fprintf(w, "Complete:\t%d\n", s.Complete)
	_, _ = fmt.Fprintf(w, "Failed:\t%d\n", s.Failed)
	_, _ = fmt.Fprintf(w, "Interrupted:\t%d\n", s.Interrupted)
	_, _ = fmt.Fprintf(w, "Running:\t%d\n", s.Running)
	_, _ = fmt.Fprintf(w, "Wallets processed:\t%d\n", s.Wallets)
	_, _ = fmt.Fprintf(w, "  Posts found:\t%d\n", s.Found)
	_, _ = fmt.Fprintf(w, "  No posts:\t%d\n", s.NoPosts)
	_, _ = fmt.Fprintf(w, "  With errors:\t%d\n", s.Errors)
	_, _ = fmt.Fprintf(w, "Estimated cost:\t$%.4f\n", s.CostUSD)
	if s.AvgDurSecs > 0 {
		_, _ = fmt.Fprintf(w, "Avg duration:\t%.1fs\n", s.AvgDurSecs)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
