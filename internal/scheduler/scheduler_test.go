package scheduler

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/semaphore"

	"github.com/sells-group/wallet-search-cli/internal/checkpoint"
	"github.com/sells-group/wallet-search-cli/internal/cost"
	"github.com/sells-group/wallet-search-cli/internal/inference"
	"github.com/sells-group/wallet-search-cli/internal/model"
)

// memUnit is an in-memory worksheet.
type memUnit struct {
	title    string
	rows     [][]string
	loadErr  error
	writeErr error

	mu      sync.Mutex
	written []model.InferenceResult
}

func newUnit(title string, wallets ...string) *memUnit {
	rows := [][]string{{"Name", "Wallet Address"}}
	for i, w := range wallets {
		rows = append(rows, []string{string(rune('a' + i)), w})
	}
	return &memUnit{title: title, rows: rows}
}

func (u *memUnit) Title() string { return u.title }

func (u *memUnit) Load(context.Context) ([][]string, int, error) {
	return u.rows, 1, u.loadErr
}

func (u *memUnit) WriteResult(_ context.Context, res model.InferenceResult) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.written = append(u.written, res)
	return u.writeErr
}

func (u *memUnit) Written() []model.InferenceResult {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]model.InferenceResult(nil), u.written...)
}

// funcEvaluator adapts a function to Evaluator and tracks concurrency.
type funcEvaluator struct {
	fn       func(ctx context.Context, rec model.WalletRecord) (model.InferenceResult, error)
	inflight atomic.Int64
	peak     atomic.Int64

	mu   sync.Mutex
	rows []int
}

func (e *funcEvaluator) EvaluateRecord(ctx context.Context, rec model.WalletRecord) (model.InferenceResult, error) {
	n := e.inflight.Add(1)
	defer e.inflight.Add(-1)
	for {
		p := e.peak.Load()
		if n <= p || e.peak.CompareAndSwap(p, n) {
			break
		}
	}
	e.mu.Lock()
	e.rows = append(e.rows, rec.Row)
	e.mu.Unlock()

	if e.fn != nil {
		return e.fn(ctx, rec)
	}
	time.Sleep(time.Millisecond)
	return model.InferenceResult{Address: rec.Address, Status: model.StatusFalse, Confidence: model.ConfidenceNone}, nil
}

func (e *funcEvaluator) Rows() []int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]int(nil), e.rows...)
}

type pauses struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (p *pauses) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	p.sleeps = append(p.sleeps, d)
	p.mu.Unlock()
	return nil
}

type failingCheckpoints struct{ checkpoint.Store }

func (failingCheckpoints) Load(context.Context, string) (int, bool, error) {
	return 0, false, errors.New("disk on fire")
}

func newScheduler(t *testing.T, eval Evaluator, opts Options, extra ...Option) (*Scheduler, *checkpoint.FileStore, *pauses) {
	t.Helper()
	cp := checkpoint.NewFileStore(t.TempDir())
	p := &pauses{}
	return New(eval, cp, opts, append([]Option{WithSleeper(p.Sleep)}, extra...)...), cp, p
}

func loadCheckpoint(t *testing.T, cp checkpoint.Store, unit string) int {
	t.Helper()
	row, ok, err := cp.Load(context.Background(), unit)
	require.NoError(t, err)
	require.True(t, ok)
	return row
}

func TestSelectRange(t *testing.T) {
	rows := [][]string{
		{"Name", "Wallet"},
		{"a", "0xA"},
		{"b", "  "},
		{"c", "0xC"},
		{"d"},
		{"e", " 0xE "},
	}
	tests := []struct {
		name  string
		start int
		limit int
		want  []int
	}{
		{"all", 2, 0, []int{2, 4, 6}},
		{"clamped_start", 0, 0, []int{2, 4, 6}},
		{"from_row_4", 4, 0, []int{4, 6}},
		{"limit_counts_rows", 2, 3, []int{2, 4}},
		{"past_end", 7, 0, nil},
		{"last_row", 6, 10, []int{6}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SelectRange(rows, 1, tt.start, tt.limit)
			var gotRows []int
			for _, r := range got {
				gotRows = append(gotRows, r.Row)
			}
			assert.Equal(t, tt.want, gotRows)
		})
	}

	assert.Equal(t, "0xE", SelectRange(rows, 1, 6, 0)[0].Address)
	assert.Empty(t, SelectRange(rows, 5, 2, 0))
}

func TestRun_ParallelEndToEnd(t *testing.T) {
	unit := newUnit("Gigabud Holders", "0x1111111111111111111111111111111111111111", "0x2222222222222222222222222222222222222222", "0x3333333333333333333333333333333333333333")
	eval := &funcEvaluator{}
	s, cp, p := newScheduler(t, eval, Options{Parallel: true, MaxConcurrent: 2})

	summary, results, err := s.Run(context.Background(), unit)
	require.NoError(t, err)
	assert.Len(t, results, 3)
	assert.Len(t, unit.Written(), 3)
	assert.Equal(t, 3, summary.Processed)
	assert.Equal(t, 3, summary.NoPosts)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, 5, loadCheckpoint(t, cp, "Gigabud Holders"))
	assert.Empty(t, p.sleeps, "single batch needs no pause")
	assert.LessOrEqual(t, eval.peak.Load(), int64(2))

	rows := eval.Rows()
	sort.Ints(rows)
	assert.Equal(t, []int{2, 3, 4}, rows)
}

func TestRun_BatchesRespectConcurrencyAndPause(t *testing.T) {
	wallets := make([]string, 10)
	for i := range wallets {
		wallets[i] = "wallet-" + string(rune('A'+i))
	}
	unit := newUnit("Sheet1", wallets...)
	eval := &funcEvaluator{fn: func(_ context.Context, rec model.WalletRecord) (model.InferenceResult, error) {
		time.Sleep(5 * time.Millisecond)
		return model.InferenceResult{Address: rec.Address, Status: model.StatusTrue, Username: "u", Confidence: model.ConfidenceHigh}, nil
	}}
	s, cp, p := newScheduler(t, eval, Options{Parallel: true, MaxConcurrent: 2, BatchPause: 250 * time.Millisecond})
	assert.Equal(t, 4, s.BatchSize())

	summary, results, err := s.Run(context.Background(), unit)
	require.NoError(t, err)
	assert.Len(t, results, 10)
	assert.Equal(t, 10, summary.Found)
	assert.LessOrEqual(t, eval.peak.Load(), int64(2))
	assert.Equal(t, []time.Duration{250 * time.Millisecond, 250 * time.Millisecond}, p.sleeps)
	assert.Equal(t, 12, loadCheckpoint(t, cp, "Sheet1"))

	for i, r := range results {
		assert.Equal(t, i+2, r.Row, "results keep sheet order")
	}
}

func TestRun_BatchIsolatesFailures(t *testing.T) {
	unit := newUnit("Sheet1", "w2", "w3", "w4", "w5")
	eval := &funcEvaluator{fn: func(_ context.Context, rec model.WalletRecord) (model.InferenceResult, error) {
		switch rec.Row {
		case 3:
			return model.InferenceResult{}, errors.New("evaluation exploded")
		case 5:
			panic("unexpected nil")
		}
		return model.InferenceResult{Address: rec.Address, Status: model.StatusFalse, Confidence: model.ConfidenceNone}, nil
	}}
	s, cp, _ := newScheduler(t, eval, Options{Parallel: true, MaxConcurrent: 2})

	summary, results, err := s.Run(context.Background(), unit)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 2, results[0].Row)
	assert.Equal(t, 4, results[1].Row)
	assert.Equal(t, 2, summary.Failed)
	assert.Len(t, unit.Written(), 2)
	assert.Equal(t, 5, loadCheckpoint(t, cp, "Sheet1"))
}

func TestRun_SequentialInOrder(t *testing.T) {
	unit := newUnit("Sheet1", "w2", "w3", "w4")
	eval := &funcEvaluator{}
	var saved []int
	obs := &recordingObserver{onCheckpoint: func(row int) { saved = append(saved, row) }}
	s, _, p := newScheduler(t, eval, Options{Parallel: false}, WithObserver(obs))

	_, results, err := s.Run(context.Background(), unit)
	require.NoError(t, err)
	assert.Len(t, results, 3)
	assert.Equal(t, []int{2, 3, 4}, eval.Rows())
	assert.Equal(t, []int{3, 4, 5}, saved)
	assert.Empty(t, p.sleeps)
	assert.Len(t, obs.results, 3)
}

func TestRun_ResumesFromCheckpoint(t *testing.T) {
	unit := newUnit("Sheet1", "w2", "w3", "w4", "w5")
	eval := &funcEvaluator{}
	s, cp, _ := newScheduler(t, eval, Options{Parallel: true, MaxConcurrent: 2})
	require.NoError(t, cp.Save(context.Background(), "Sheet1", 4))

	_, results, err := s.Run(context.Background(), unit)
	require.NoError(t, err)
	assert.Len(t, results, 2)
	rows := eval.Rows()
	sort.Ints(rows)
	assert.Equal(t, []int{4, 5}, rows)
	assert.Equal(t, 6, loadCheckpoint(t, cp, "Sheet1"))
}

func TestRun_StartRowAndLimitOverrideCheckpoint(t *testing.T) {
	unit := newUnit("Sheet1", "w2", "w3", "w4", "w5")
	eval := &funcEvaluator{}
	s, cp, _ := newScheduler(t, eval, Options{StartRow: 3, Limit: 2})
	require.NoError(t, cp.Save(context.Background(), "Sheet1", 5))

	_, results, err := s.Run(context.Background(), unit)
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Equal(t, []int{3, 4}, eval.Rows())
}

func TestRun_CheckpointLoadErrorStartsFromBeginning(t *testing.T) {
	unit := newUnit("Sheet1", "w2", "w3")
	eval := &funcEvaluator{}
	s := New(eval, failingCheckpoints{checkpoint.NewFileStore(t.TempDir())}, Options{})

	_, results, err := s.Run(context.Background(), unit)
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Equal(t, []int{2, 3}, eval.Rows())
}

func TestRun_NothingToDo(t *testing.T) {
	unit := newUnit("Sheet1", "w2")
	eval := &funcEvaluator{}
	s, cp, _ := newScheduler(t, eval, Options{})
	require.NoError(t, cp.Save(context.Background(), "Sheet1", 3))

	summary, results, err := s.Run(context.Background(), unit)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, 0, summary.Processed)
	assert.Empty(t, eval.Rows())
}

func TestRun_LoadError(t *testing.T) {
	unit := newUnit("Sheet1", "w2")
	unit.loadErr = errors.New("no wallet column")
	s, _, _ := newScheduler(t, &funcEvaluator{}, Options{})

	_, _, err := s.Run(context.Background(), unit)
	require.EqualError(t, err, "no wallet column")
}

func TestRun_SinkFailureDoesNotAbort(t *testing.T) {
	unit := newUnit("Sheet1", "w2", "w3")
	unit.writeErr = errors.New("quota exceeded")
	s, cp, _ := newScheduler(t, &funcEvaluator{}, Options{Parallel: true})

	_, results, err := s.Run(context.Background(), unit)
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Equal(t, 4, loadCheckpoint(t, cp, "Sheet1"))
}

func TestRun_CancelStopsDispatch(t *testing.T) {
	wallets := make([]string, 8)
	for i := range wallets {
		wallets[i] = "w"
	}

	t.Run("sequential", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		eval := &funcEvaluator{fn: func(_ context.Context, rec model.WalletRecord) (model.InferenceResult, error) {
			cancel()
			return model.InferenceResult{Address: rec.Address, Status: model.StatusFalse, Confidence: model.ConfidenceNone}, nil
		}}
		s, cp, _ := newScheduler(t, eval, Options{})

		summary, results, err := s.Run(ctx, newUnit("Sheet1", wallets...))
		require.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, []int{2}, eval.Rows(), "no wallet starts after cancellation")
		assert.Len(t, results, 1)
		assert.Equal(t, 1, summary.Processed)
		assert.Equal(t, 3, loadCheckpoint(t, cp, "Sheet1"))
	})

	t.Run("parallel", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		eval := &funcEvaluator{fn: func(_ context.Context, rec model.WalletRecord) (model.InferenceResult, error) {
			cancel()
			return model.InferenceResult{Address: rec.Address, Status: model.StatusFalse, Confidence: model.ConfidenceNone}, nil
		}}
		s, cp, p := newScheduler(t, eval, Options{Parallel: true, MaxConcurrent: 1})

		_, results, err := s.Run(ctx, newUnit("Sheet1", wallets...))
		require.ErrorIs(t, err, context.Canceled)
		rows := eval.Rows()
		assert.NotEmpty(t, rows)
		for _, r := range rows {
			assert.Contains(t, []int{2, 3}, r, "only the first batch runs")
		}
		assert.Len(t, results, len(rows))
		assert.Empty(t, p.sleeps)
		assert.GreaterOrEqual(t, loadCheckpoint(t, cp, "Sheet1"), 3)
	})
}

type recordingObserver struct {
	mu           sync.Mutex
	results      []model.InferenceResult
	onCheckpoint func(row int)
}

func (o *recordingObserver) ObserveResult(_ string, res model.InferenceResult, _ time.Duration) {
	o.mu.Lock()
	o.results = append(o.results, res)
	o.mu.Unlock()
}

func (o *recordingObserver) ObserveCheckpoint(_ string, row int) {
	if o.onCheckpoint != nil {
		o.onCheckpoint(row)
	}
}

type fakeRecorder struct {
	mu       sync.Mutex
	created  []string
	saved    map[string][]model.InferenceResult
	finished map[string]model.RunStatus
	summary  *model.RunSummary
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{saved: map[string][]model.InferenceResult{}, finished: map[string]model.RunStatus{}}
}

func (r *fakeRecorder) CreateRun(_ context.Context, worksheet string, startRow int) (*model.Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created = append(r.created, worksheet)
	return &model.Run{ID: "run-" + worksheet, Worksheet: worksheet, StartRow: startRow, Status: model.RunStatusRunning}, nil
}

func (r *fakeRecorder) FinishRun(_ context.Context, runID string, status model.RunStatus, summary *model.RunSummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished[runID] = status
	r.summary = summary
	return nil
}

func (r *fakeRecorder) SaveResult(_ context.Context, runID string, res model.InferenceResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saved[runID] = append(r.saved[runID], res)
	return nil
}

type fixedCost struct{ calls atomic.Int64 }

func (c *fixedCost) WorksheetUSD(string) float64 {
	return float64(c.calls.Add(1)) * 0.5
}

func TestRun_RecordsAudit(t *testing.T) {
	unit := newUnit("Sheet1", "w2", "w3")
	rec := newFakeRecorder()
	cost := &fixedCost{}
	s, _, _ := newScheduler(t, &funcEvaluator{}, Options{Parallel: true}, WithRecorder(rec), WithCostMeter(cost))

	summary, _, err := s.Run(context.Background(), unit)
	require.NoError(t, err)
	assert.Equal(t, []string{"Sheet1"}, rec.created)
	assert.Len(t, rec.saved["run-Sheet1"], 2)
	assert.Equal(t, model.RunStatusComplete, rec.finished["run-Sheet1"])
	require.NotNil(t, rec.summary)
	assert.Equal(t, 2, rec.summary.Processed)
	assert.InDelta(t, 0.5, summary.EstimatedCostUSD, 1e-9)
}

func TestRunAll(t *testing.T) {
	good := newUnit("Good", "w2", "w3")
	bad := newUnit("Bad", "w2")
	bad.loadErr = errors.New("missing wallet column")
	other := newUnit("Other", "w2")

	t.Run("sequential", func(t *testing.T) {
		s, _, p := newScheduler(t, &funcEvaluator{}, Options{})
		reports, err := s.RunAll(context.Background(), []Unit{good, bad, other}, false)
		require.NoError(t, err)
		require.Len(t, reports, 3)
		assert.Len(t, reports[0].Results, 2)
		assert.Error(t, reports[1].Err)
		assert.Empty(t, reports[1].Results)
		assert.Equal(t, "Bad", reports[1].Worksheet)
		assert.Len(t, reports[2].Results, 1)
		assert.Equal(t, []time.Duration{defaultWorksheetPause, defaultWorksheetPause}, p.sleeps)
	})

	t.Run("parallel_shares_permits", func(t *testing.T) {
		eval := &funcEvaluator{}
		permits := semaphore.NewWeighted(1)
		s, _, p := newScheduler(t, eval, Options{Parallel: true, MaxConcurrent: 3}, WithPermits(permits))
		a := newUnit("A", "w2", "w3", "w4")
		b := newUnit("B", "w2", "w3", "w4")

		reports, err := s.RunAll(context.Background(), []Unit{a, b}, true)
		require.NoError(t, err)
		assert.Len(t, reports[0].Results, 3)
		assert.Len(t, reports[1].Results, 3)
		assert.Equal(t, int64(1), eval.peak.Load())
		assert.Empty(t, p.sleeps)
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		s, _, _ := newScheduler(t, &funcEvaluator{}, Options{})
		reports, err := s.RunAll(ctx, []Unit{newUnit("X", "w2"), newUnit("Y", "w2")}, false)
		require.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, "Y", reports[1].Worksheet)
		assert.Empty(t, reports[1].Results)
	})
}

func TestRunAll_AttributesCostPerWorksheet(t *testing.T) {
	meter := cost.NewMeter(cost.NewCalculator(cost.Rates{XAISearchSource: 0.5}))
	eval := &funcEvaluator{fn: func(ctx context.Context, rec model.WalletRecord) (model.InferenceResult, error) {
		meter.ObserveUsage(inference.StageExistence, inference.Usage{
			Provider:  inference.ProviderXAI,
			Sources:   1,
			Worksheet: inference.WorksheetFrom(ctx),
		})
		return model.InferenceResult{Address: rec.Address, Status: model.StatusFalse, Confidence: model.ConfidenceNone}, nil
	}}
	s, _, _ := newScheduler(t, eval, Options{Parallel: true, MaxConcurrent: 2}, WithCostMeter(meter))

	reports, err := s.RunAll(context.Background(), []Unit{
		newUnit("A", "w2", "w3", "w4"),
		newUnit("B", "w2"),
	}, true)
	require.NoError(t, err)
	require.Len(t, reports, 2)

	assert.InDelta(t, 1.5, reports[0].Summary.EstimatedCostUSD, 1e-9)
	assert.InDelta(t, 0.5, reports[1].Summary.EstimatedCostUSD, 1e-9)
	assert.InDelta(t, 2.0, meter.Totals().USD, 1e-9)
}
