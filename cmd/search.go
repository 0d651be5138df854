package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/wallet-search-cli/internal/checkpoint"
	"github.com/sells-group/wallet-search-cli/internal/cost"
	"github.com/sells-group/wallet-search-cli/internal/evaluator"
	"github.com/sells-group/wallet-search-cli/internal/inference"
	"github.com/sells-group/wallet-search-cli/internal/metrics"
	"github.com/sells-group/wallet-search-cli/internal/model"
	"github.com/sells-group/wallet-search-cli/internal/ratelimit"
	"github.com/sells-group/wallet-search-cli/internal/scheduler"
	"github.com/sells-group/wallet-search-cli/internal/sheet"
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search X for each wallet and write the results to the sheet",
	Long:  "Processes every configured worksheet: checks whether any post references each wallet, infers the posting account and its ownership confidence, and writes the outcome back. Interrupted runs resume from the saved checkpoint.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		applySearchFlags(cmd)
		if err := cfg.Validate("search"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		dryRun, _ := cmd.Flags().GetBool("dry-run")
		startRow, _ := cmd.Flags().GetInt("start-row")
		return runSearch(ctx, cmd.OutOrStdout(), startRow, dryRun)
	},
}

func init() {
	addSearchFlags(searchCmd.Flags())
	rootCmd.AddCommand(searchCmd)
}

func addSearchFlags(fs *pflag.FlagSet) {
	fs.StringSlice("worksheet", nil, "worksheet(s) to process (overrides config)")
	fs.Int("limit", 0, "max wallets per worksheet (0 = all)")
	fs.Int("start-row", 0, "sheet row to start at (0 = resume from checkpoint)")
	fs.Bool("sequential", false, "process wallets and worksheets one at a time")
	fs.Bool("dry-run", false, "evaluate against an in-memory copy of each worksheet without writing results or checkpoints")
	fs.String("xlsx", "", "read and write a local .xlsx workbook instead of Google Sheets")
	fs.String("provider", "", "inference provider: xai, perplexity or anthropic")
}

// applySearchFlags copies explicitly set flags over the loaded config.
func applySearchFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	if f.Changed("worksheet") {
		names, _ := f.GetStringSlice("worksheet")
		cfg.Sheet.Worksheets = joinNames(names)
	}
	if f.Changed("limit") {
		cfg.Search.Limit, _ = f.GetInt("limit")
	}
	if seq, _ := f.GetBool("sequential"); seq {
		cfg.Search.Parallel = false
	}
	if f.Changed("xlsx") {
		cfg.Sheet.XLSXPath, _ = f.GetString("xlsx")
	}
	if f.Changed("provider") {
		cfg.Provider, _ = f.GetString("provider")
	}
}

func joinNames(names []string) string {
	return strings.Join(names, ",")
}

// runSearch wires the pipeline from config and runs every worksheet.
func runSearch(ctx context.Context, out io.Writer, startRow int, dryRun bool) error {
	p := cfg.ActiveProvider()
	completer, err := inference.NewCompleter(inference.ProviderConfig{
		Name:    cfg.Provider,
		APIKey:  p.Key,
		Model:   p.Model,
		BaseURL: p.BaseURL,
	})
	if err != nil {
		return err
	}

	worksheets, err := openWorksheets(cfg.Worksheets())
	if err != nil {
		return err
	}

	deps := searchDeps{completer: completer, worksheets: worksheets, startRow: startRow}

	if dryRun {
		if deps.worksheets, err = memoryCopies(ctx, worksheets); err != nil {
			return err
		}
		dir, err := os.MkdirTemp("", "wallet-search-dry-run-")
		if err != nil {
			return eris.Wrap(err, "create dry-run checkpoint dir")
		}
		defer os.RemoveAll(dir) //nolint:errcheck
		deps.checkpoints = checkpoint.NewFileStore(dir)
	} else {
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		if st != nil {
			defer st.Close() //nolint:errcheck
			deps.recorder = st
		}
		cps, release, err := initCheckpoints(ctx, st)
		if err != nil {
			return err
		}
		defer release()
		deps.checkpoints = cps
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	deps.registry = reg

	metricsCtx, stopMetrics := context.WithCancel(ctx)
	defer stopMetrics()
	var g errgroup.Group
	if cfg.Metrics.Addr != "" {
		g.Go(func() error {
			return metrics.Serve(metricsCtx, cfg.Metrics.Addr, reg)
		})
	}

	reports, totals, err := executeSearch(ctx, deps)
	stopMetrics()
	if mErr := g.Wait(); mErr != nil {
		zap.L().Warn("metrics server failed", zap.Error(mErr))
	}

	writeReports(out, reports, totals, dryRun)
	if err != nil {
		if ctx.Err() != nil {
			zap.L().Warn("search interrupted, progress saved; rerun to resume")
			return eris.Wrap(ctx.Err(), "search interrupted")
		}
		return err
	}
	return checkReports(reports)
}

// searchDeps are the collaborators executeSearch needs beyond config.
type searchDeps struct {
	completer   inference.Completer
	worksheets  []sheet.Worksheet
	checkpoints checkpoint.Store
	recorder    scheduler.Recorder
	registry    prometheus.Registerer
	sleeper     ratelimit.Sleeper
	startRow    int
}

// executeSearch builds the limiter, inference client, evaluator and
// scheduler and runs the worksheets through them.
func executeSearch(ctx context.Context, d searchDeps) ([]scheduler.Report, cost.Totals, error) {
	prompts, err := inference.LoadPrompts(cfg.Search.PromptsFile)
	if err != nil {
		return nil, cost.Totals{}, err
	}

	var limiterOpts []ratelimit.Option
	if d.sleeper != nil {
		limiterOpts = append(limiterOpts, ratelimit.WithSleeper(d.sleeper))
	}
	limiter := ratelimit.New(cfg.RateLimit.Limiter(), limiterOpts...)

	meter := cost.NewMeter(cost.NewCalculator(cfg.Pricing))
	m := metrics.New(d.registry)

	retryDelay, batchPause, worksheetPause := cfg.Search.Durations()
	clientOpts := []inference.Option{
		inference.WithConfig(inference.Config{MaxRetries: cfg.Search.MaxRetries, RetryBaseDelay: retryDelay}),
		inference.WithPrompts(prompts),
		inference.WithObserver(inference.Observers{meter, m}),
	}
	schedOpts := []scheduler.Option{
		scheduler.WithObserver(m),
		scheduler.WithCostMeter(meter),
	}
	if d.recorder != nil {
		schedOpts = append(schedOpts, scheduler.WithRecorder(d.recorder))
	}
	if d.sleeper != nil {
		clientOpts = append(clientOpts, inference.WithSleeper(d.sleeper))
		schedOpts = append(schedOpts, scheduler.WithSleeper(d.sleeper))
	}

	client := inference.New(d.completer, limiter, clientOpts...)
	sched := scheduler.New(evaluator.New(client), d.checkpoints, scheduler.Options{
		Limit:          cfg.Search.Limit,
		StartRow:       d.startRow,
		Parallel:       cfg.Search.Parallel,
		MaxConcurrent:  cfg.Search.MaxConcurrent,
		BatchPause:     batchPause,
		WorksheetPause: worksheetPause,
	}, schedOpts...)

	units := make([]scheduler.Unit, 0, len(d.worksheets))
	for _, ws := range d.worksheets {
		units = append(units, sheet.NewTarget(ws))
	}

	zap.L().Info("starting search",
		zap.String("provider", cfg.Provider),
		zap.Int("worksheets", len(units)),
		zap.Int("limit", cfg.Search.Limit),
		zap.Bool("parallel", cfg.Search.Parallel),
		zap.Int("max_concurrent", cfg.Search.MaxConcurrent),
	)

	reports, err := sched.RunAll(ctx, units, cfg.Search.Parallel)
	return reports, meter.Totals(), err
}

// memoryCopies snapshots each worksheet into an in-memory sheet.
func memoryCopies(ctx context.Context, worksheets []sheet.Worksheet) ([]sheet.Worksheet, error) {
	out := make([]sheet.Worksheet, 0, len(worksheets))
	for _, ws := range worksheets {
		rows, err := ws.Rows(ctx)
		if err != nil {
			return nil, eris.Wrapf(err, "read worksheet %s", ws.Title())
		}
		out = append(out, sheet.NewMemory(ws.Title(), rows))
	}
	return out, nil
}

// checkReports fails when no worksheet could be processed at all.
func checkReports(reports []scheduler.Report) error {
	failed := 0
	for _, r := range reports {
		if r.Err != nil {
			failed++
		}
	}
	if len(reports) > 0 && failed == len(reports) {
		return eris.Errorf("all %d worksheet(s) failed", failed)
	}
	return nil
}

// writeReports prints the per-worksheet summary and, for dry runs, every
// result.
func writeReports(out io.Writer, reports []scheduler.Report, totals cost.Totals, verbose bool) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "WORKSHEET\tPROCESSED\tFOUND\tNO_POSTS\tERRORS\tFAILED\tELAPSED\tSTATUS")
	for _, r := range reports {
		status := "ok"
		if r.Err != nil {
			status = r.Err.Error()
		}
		s := r.Summary
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\t%s\t%s\n",
			r.Worksheet, s.Processed, s.Found, s.NoPosts, s.Errors, s.Failed,
			s.Elapsed.Round(time.Second), status)
	}
	_ = w.Flush()

	_, _ = fmt.Fprintf(out, "\nProvider calls: %d  tokens in/out: %d/%d  sources: %d  estimated cost: $%.4f\n",
		totals.Calls, totals.InputTokens, totals.OutputTokens, totals.Sources, totals.USD)

	if !verbose {
		return
	}
	for _, r := range reports {
		if len(r.Results) == 0 {
			continue
		}
		_, _ = fmt.Fprintf(out, "\n%s\n", r.Worksheet)
		writeResults(out, r.Results)
	}
}

// writeResults prints one line per wallet result.
func writeResults(out io.Writer, results []model.InferenceResult) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ROW\tWALLET\tPOST\tHANDLE\tCONFIDENCE\tERROR")
	for _, res := range results {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			res.Row, model.ShortAddress(res.Address), res.Status, res.Handle(), res.Confidence, res.Error)
	}
	_ = w.Flush()
}
