// Package store keeps the audit trail of worksheet runs: one record per run,
// every per-wallet result with its raw provider text, and the resume
// checkpoints when they are stored alongside.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/wallet-search-cli/internal/model"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = eris.New("store: not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status    model.RunStatus `json:"status,omitempty"`
	Worksheet string          `json:"worksheet,omitempty"`
	Limit     int             `json:"limit,omitempty"`
	Offset    int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for run auditing.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, worksheet string, startRow int) (*model.Run, error)
	FinishRun(ctx context.Context, runID string, status model.RunStatus, summary *model.RunSummary) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Results
	SaveResult(ctx context.Context, runID string, res model.InferenceResult) error
	ListResults(ctx context.Context, runID string) ([]model.InferenceResult, error)

	// Checkpoints
	LoadCheckpoint(ctx context.Context, key string) (int, bool, error)
	SaveCheckpoint(ctx context.Context, key string, row int) error
	ResetCheckpoint(ctx context.Context, key string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

const defaultListLimit = 100

func listLimit(n int) int {
	if n <= 0 {
		return defaultListLimit
	}
	return n
}
