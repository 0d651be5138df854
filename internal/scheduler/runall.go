package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/wallet-search-cli/internal/model"
)

// Report is the outcome of one worksheet in a multi-worksheet run.
type Report struct {
	Worksheet string
	Summary   model.RunSummary
	Results   []model.InferenceResult
	Err       error
}

// RunAll processes several worksheets that share this Scheduler's permit
// pool. In parallel mode worksheets run concurrently; otherwise they run in
// order with a pause between them. A failing worksheet is reported with
// empty results and does not stop the others. Only ctx cancellation is
// returned as an error.
func (s *Scheduler) RunAll(ctx context.Context, units []Unit, parallel bool) ([]Report, error) {
	start := time.Now()
	reports := make([]Report, len(units))
	for i, u := range units {
		reports[i].Worksheet = u.Title()
	}

	runOne := func(i int) {
		u := units[i]
		summary, results, err := s.Run(ctx, u)
		reports[i] = Report{Worksheet: u.Title(), Summary: summary, Results: results, Err: err}
		if err != nil && ctx.Err() == nil {
			zap.L().Error("worksheet failed", zap.String("worksheet", u.Title()), zap.Error(err))
			reports[i].Results = nil
		}
	}

	if parallel && len(units) > 1 {
		zap.L().Info("processing worksheets in parallel", zap.Int("worksheets", len(units)))
		var g errgroup.Group
		for i := range units {
			g.Go(func() error {
				runOne(i)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i := range units {
			if ctx.Err() != nil {
				break
			}
			runOne(i)
			if i < len(units)-1 {
				zap.L().Info("pausing before next worksheet", zap.Duration("pause", s.opts.WorksheetPause))
				if err := s.sleep(ctx, s.opts.WorksheetPause); err != nil {
					break
				}
			}
		}
	}

	var total int
	for _, r := range reports {
		total += len(r.Results)
	}
	zap.L().Info("all worksheets complete",
		zap.Int("worksheets", len(units)),
		zap.Int("wallets", total),
		zap.Duration("elapsed", time.Since(start)),
	)
	return reports, ctx.Err()
}
