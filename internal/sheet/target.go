package sheet

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/sells-group/wallet-search-cli/internal/model"
)

// Target is a worksheet prepared for a scheduler run.
type Target struct {
	ws Worksheet

	mu     sync.RWMutex
	writer *Writer
	layout Layout
}

// NewTarget wraps ws.
func NewTarget(ws Worksheet) *Target {
	return &Target{ws: ws}
}

// Title returns the worksheet title.
func (t *Target) Title() string {
	return t.ws.Title()
}

// Layout returns the layout found by the last Load.
func (t *Target) Layout() Layout {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.layout
}

// Load bootstraps the result columns and reads every row. The returned
// wallet column is 0-based.
func (t *Target) Load(ctx context.Context) ([][]string, int, error) {
	layout, err := Bootstrap(ctx, t.ws)
	if err != nil {
		return nil, 0, err
	}
	rows, err := t.ws.Rows(ctx)
	if err != nil {
		return nil, 0, eris.Wrapf(err, "sheet: read rows of %s", t.ws.Title())
	}

	t.mu.Lock()
	t.layout = layout
	t.writer = NewWriter(t.ws, layout)
	t.mu.Unlock()

	return rows, layout.Wallet - 1, nil
}

// WriteResult persists res. Load must have succeeded first.
func (t *Target) WriteResult(ctx context.Context, res model.InferenceResult) error {
	t.mu.RLock()
	w := t.writer
	t.mu.RUnlock()
	if w == nil {
		return eris.Errorf("sheet: worksheet %q not loaded", t.ws.Title())
	}
	return w.WriteResult(ctx, res)
}
