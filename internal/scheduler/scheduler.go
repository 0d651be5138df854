// Package scheduler walks a worksheet's wallet rows, evaluates them in
// bounded concurrent batches, persists each result and advances the resume
// checkpoint.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/sells-group/wallet-search-cli/internal/checkpoint"
	"github.com/sells-group/wallet-search-cli/internal/inference"
	"github.com/sells-group/wallet-search-cli/internal/model"
	"github.com/sells-group/wallet-search-cli/internal/ratelimit"
)

const (
	defaultMaxConcurrent  = 5
	defaultBatchPause     = time.Second
	defaultWorksheetPause = 5 * time.Second
)

// Evaluator produces the result for one wallet.
type Evaluator interface {
	EvaluateRecord(ctx context.Context, rec model.WalletRecord) (model.InferenceResult, error)
}

// Sink persists one result to the worksheet.
type Sink interface {
	WriteResult(ctx context.Context, res model.InferenceResult) error
}

// Unit is one worksheet to process.
type Unit interface {
	Sink
	Title() string
	// Load prepares the worksheet and returns every row (header included)
	// and the 0-based wallet column.
	Load(ctx context.Context) (rows [][]string, walletCol int, err error)
}

// Recorder keeps an audit trail of runs and results.
type Recorder interface {
	CreateRun(ctx context.Context, worksheet string, startRow int) (*model.Run, error)
	FinishRun(ctx context.Context, runID string, status model.RunStatus, summary *model.RunSummary) error
	SaveResult(ctx context.Context, runID string, res model.InferenceResult) error
}

// Observer receives per-wallet outcomes.
type Observer interface {
	ObserveResult(worksheet string, res model.InferenceResult, elapsed time.Duration)
	ObserveCheckpoint(worksheet string, row int)
}

// CostMeter reports the running estimated spend of a worksheet. Usage is
// attributed through the worksheet label Run puts on the context.
type CostMeter interface {
	WorksheetUSD(worksheet string) float64
}

// Options controls range selection and concurrency.
type Options struct {
	// Limit caps the number of wallets per worksheet. Zero means all.
	Limit int
	// StartRow is the 1-based sheet row to start at. Zero resumes from the
	// checkpoint.
	StartRow int
	// Parallel enables batched concurrent evaluation.
	Parallel bool
	// MaxConcurrent bounds in-flight evaluations. Default: 5.
	MaxConcurrent int
	// BatchPause is the wait between batches. Default: 1s.
	BatchPause time.Duration
	// WorksheetPause is the wait between worksheets in sequential RunAll.
	// Default: 5s.
	WorksheetPause time.Duration
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithPermits shares a permit pool across schedulers.
func WithPermits(p *semaphore.Weighted) Option {
	return func(s *Scheduler) {
		s.permits = p
	}
}

// WithRecorder attaches an audit Recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Scheduler) {
		s.recorder = r
	}
}

// WithObserver attaches an Observer.
func WithObserver(o Observer) Option {
	return func(s *Scheduler) {
		s.observer = o
	}
}

// WithCostMeter attaches a CostMeter used for the summary estimate.
func WithCostMeter(m CostMeter) Option {
	return func(s *Scheduler) {
		s.cost = m
	}
}

// WithSleeper overrides the pause between batches and worksheets.
func WithSleeper(sl ratelimit.Sleeper) Option {
	return func(s *Scheduler) {
		s.sleep = sl
	}
}

// Scheduler runs worksheets through an Evaluator.
type Scheduler struct {
	eval        Evaluator
	checkpoints checkpoint.Store
	opts        Options
	permits     *semaphore.Weighted
	recorder    Recorder
	observer    Observer
	cost        CostMeter
	sleep       ratelimit.Sleeper
}

// New creates a Scheduler.
func New(eval Evaluator, checkpoints checkpoint.Store, opts Options, extra ...Option) *Scheduler {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = defaultMaxConcurrent
	}
	if opts.BatchPause <= 0 {
		opts.BatchPause = defaultBatchPause
	}
	if opts.WorksheetPause <= 0 {
		opts.WorksheetPause = defaultWorksheetPause
	}
	s := &Scheduler{
		eval:        eval,
		checkpoints: checkpoints,
		opts:        opts,
		sleep:       ratelimit.Sleep,
	}
	for _, o := range extra {
		o(s)
	}
	if s.permits == nil {
		s.permits = semaphore.NewWeighted(int64(opts.MaxConcurrent))
	}
	return s
}

// BatchSize is the number of wallets dispatched together in parallel mode.
func (s *Scheduler) BatchSize() int {
	return 2 * s.opts.MaxConcurrent
}

// SelectRange returns the wallets from sheet row start onward, at most
// limit of them (limit <= 0 means all). rows includes the header row.
// Rows with a blank or missing wallet cell are skipped.
func SelectRange(rows [][]string, walletCol, start, limit int) []model.WalletRecord {
	if start < model.FirstDataRow {
		start = model.FirstDataRow
	}
	from := start - 1 // rows[0] is sheet row 1
	if from >= len(rows) {
		return nil
	}
	to := len(rows)
	if limit > 0 && from+limit < to {
		to = from + limit
	}

	out := make([]model.WalletRecord, 0, to-from)
	for i := from; i < to; i++ {
		if walletCol < 0 || walletCol >= len(rows[i]) {
			continue
		}
		if rec, ok := model.NewWalletRecord(i+1, rows[i][walletCol]); ok {
			out = append(out, rec)
		}
	}
	return out
}

// run holds per-worksheet state.
type run struct {
	unit  Unit
	runID string
	log   *zap.Logger

	attempted atomic.Int64

	mu   sync.Mutex
	mark int
}

// Run processes one worksheet. Per-wallet failures are logged and left out
// of the results. When ctx is cancelled, in-flight wallets finish, no new
// batch starts, and ctx.Err() is returned with the partial results.
func (s *Scheduler) Run(ctx context.Context, unit Unit) (model.RunSummary, []model.InferenceResult, error) {
	name := unit.Title()
	log := zap.L().With(zap.String("worksheet", name))
	start := time.Now()
	ctx = inference.WithWorksheet(ctx, name)
	costBefore := s.worksheetCost(name)

	rows, walletCol, err := unit.Load(ctx)
	if err != nil {
		return model.RunSummary{Worksheet: name}, nil, err
	}

	startRow := s.startRow(ctx, name, log)
	records := SelectRange(rows, walletCol, startRow, s.opts.Limit)
	if len(records) == 0 {
		log.Info("no wallets to process", zap.Int("start_row", startRow))
		return model.RunSummary{Worksheet: name}, nil, nil
	}

	last := records[len(records)-1].Row
	log.Info("processing wallets",
		zap.Int("count", len(records)),
		zap.Int("from_row", records[0].Row),
		zap.Int("to_row", last),
		zap.Bool("parallel", s.opts.Parallel),
	)

	r := &run{unit: unit, log: log, mark: startRow}
	s.beginAudit(ctx, r, startRow)

	var results []model.InferenceResult
	if s.opts.Parallel && len(records) > 1 {
		results = s.runBatches(ctx, r, records)
	} else {
		results = s.runSequential(ctx, r, records)
	}

	summary := model.Summarize(name, results, time.Since(start))
	summary.Failed = int(r.attempted.Load()) - len(results)
	summary.EstimatedCostUSD = s.worksheetCost(name) - costBefore

	status := model.RunStatusComplete
	if ctx.Err() != nil {
		status = model.RunStatusInterrupted
		log.Warn("run interrupted, progress saved", zap.Int("next_row", r.nextRow()))
	}
	s.finishAudit(r, status, &summary)
	logSummary(log, summary)

	if ctx.Err() != nil {
		return summary, results, ctx.Err()
	}
	return summary, results, nil
}

func (s *Scheduler) startRow(ctx context.Context, name string, log *zap.Logger) int {
	if s.opts.StartRow > 0 {
		return s.opts.StartRow
	}
	row, ok, err := s.checkpoints.Load(ctx, name)
	switch {
	case err != nil:
		log.Warn("error loading checkpoint, starting from beginning", zap.Error(err))
		return model.FirstDataRow
	case !ok:
		log.Info("no checkpoint found, starting from beginning")
		return model.FirstDataRow
	default:
		log.Info("resuming from checkpoint", zap.Int("row", row))
		return row
	}
}

func (s *Scheduler) runSequential(ctx context.Context, r *run, records []model.WalletRecord) []model.InferenceResult {
	results := make([]model.InferenceResult, 0, len(records))
	for i, rec := range records {
		if ctx.Err() != nil {
			break
		}
		r.log.Info("processing wallet", zap.Int("n", i+1), zap.Int("of", len(records)), zap.Int("row", rec.Row))
		if res, ok := s.process(ctx, r, rec); ok {
			results = append(results, res)
		}
	}
	return results
}

func (s *Scheduler) runBatches(ctx context.Context, r *run, records []model.WalletRecord) []model.InferenceResult {
	size := s.BatchSize()
	total := (len(records) + size - 1) / size
	results := make([]model.InferenceResult, 0, len(records))

	for b := 0; b*size < len(records); b++ {
		if ctx.Err() != nil {
			break
		}
		batch := records[b*size : min((b+1)*size, len(records))]
		r.log.Info("processing batch",
			zap.Int("batch", b+1),
			zap.Int("of", total),
			zap.Int("wallets", len(batch)),
		)

		out := make([]model.InferenceResult, len(batch))
		done := make([]bool, len(batch))
		var ok atomic.Int64

		var g errgroup.Group
		for i, rec := range batch {
			g.Go(func() error {
				out[i], done[i] = s.process(ctx, r, rec)
				if done[i] {
					ok.Add(1)
				}
				return nil // one wallet never aborts its siblings
			})
		}
		_ = g.Wait()

		for i := range batch {
			if done[i] {
				results = append(results, out[i])
			}
		}
		r.log.Info("batch complete",
			zap.Int("batch", b+1),
			zap.Int64("succeeded", ok.Load()),
			zap.Int("failed", len(batch)-int(ok.Load())),
		)

		if (b+1)*size < len(records) {
			if err := s.sleep(ctx, s.opts.BatchPause); err != nil {
				break
			}
		}
	}
	return results
}

// process evaluates and persists one wallet. It reports false when the
// wallet produced no result.
func (s *Scheduler) process(ctx context.Context, r *run, rec model.WalletRecord) (res model.InferenceResult, ok bool) {
	log := r.log.With(zap.Int("row", rec.Row), zap.String("wallet", rec.Short()))
	defer func() {
		if p := recover(); p != nil {
			log.Error("wallet evaluation panicked", zap.String("panic", fmt.Sprint(p)))
			res, ok = model.InferenceResult{}, false
		}
	}()

	if err := s.permits.Acquire(ctx, 1); err != nil {
		return model.InferenceResult{}, false
	}
	defer s.permits.Release(1)
	r.attempted.Add(1)

	start := time.Now()
	res, err := s.eval.EvaluateRecord(ctx, rec)
	if err != nil {
		log.Error("wallet evaluation failed", zap.Error(err))
		return model.InferenceResult{}, false
	}
	res.Row = rec.Row

	// Persistence failures never abort the run.
	if err := r.unit.WriteResult(ctx, res); err != nil {
		log.Error("failed to write result to worksheet", zap.Error(err))
	}
	if s.recorder != nil && r.runID != "" {
		if err := s.recorder.SaveResult(ctx, r.runID, res); err != nil {
			log.Warn("failed to record result", zap.Error(err))
		}
	}
	s.advance(ctx, r, rec.Row+1)

	if s.observer != nil {
		s.observer.ObserveResult(r.unit.Title(), res, time.Since(start))
	}
	return res, true
}

// advance saves row as the resume point unless a later row was already saved.
func (s *Scheduler) advance(ctx context.Context, r *run, row int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if row <= r.mark {
		return
	}
	if err := s.checkpoints.Save(context.WithoutCancel(ctx), r.unit.Title(), row); err != nil {
		r.log.Warn("error saving checkpoint", zap.Int("row", row), zap.Error(err))
		return
	}
	r.mark = row
	if s.observer != nil {
		s.observer.ObserveCheckpoint(r.unit.Title(), row)
	}
}

func (r *run) nextRow() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mark
}

func (s *Scheduler) beginAudit(ctx context.Context, r *run, startRow int) {
	if s.recorder == nil {
		return
	}
	rec, err := s.recorder.CreateRun(ctx, r.unit.Title(), startRow)
	if err != nil {
		r.log.Warn("failed to create audit run", zap.Error(err))
		return
	}
	r.runID = rec.ID
}

func (s *Scheduler) finishAudit(r *run, status model.RunStatus, summary *model.RunSummary) {
	if s.recorder == nil || r.runID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.recorder.FinishRun(ctx, r.runID, status, summary); err != nil {
		r.log.Warn("failed to finish audit run", zap.Error(err))
	}
}

func (s *Scheduler) worksheetCost(name string) float64 {
	if s.cost == nil {
		return 0
	}
	return s.cost.WorksheetUSD(name)
}

func logSummary(log *zap.Logger, s model.RunSummary) {
	log.Info("processing complete",
		zap.Int("processed", s.Processed),
		zap.Int("found", s.Found),
		zap.Int("no_posts", s.NoPosts),
		zap.Int("errors", s.Errors),
		zap.Int("failed", s.Failed),
		zap.Duration("elapsed", s.Elapsed),
		zap.Float64("wallets_per_second", s.PerSecond),
		zap.Float64("estimated_cost_usd", s.EstimatedCostUSD),
	)
}
