package sheet

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/wallet-search-cli/internal/model"
)

// processedMarker is written to the script run column of every handled row.
const processedMarker = "true"

// Writer persists results into the layout's columns.
type Writer struct {
	ws     Worksheet
	layout Layout
}

// NewWriter creates a Writer.
func NewWriter(ws Worksheet, layout Layout) *Writer {
	return &Writer{ws: ws, layout: layout}
}

// Cells returns the values written for res, keyed by column.
func (w *Writer) Cells(res model.InferenceResult) map[int]string {
	confidence := string(res.Confidence.OrDefault(model.ConfidenceNone))
	return map[int]string{
		w.layout.PostExists: string(res.Status),
		w.layout.Handle:     res.Handle(),
		w.layout.Confidence: confidence,
		w.layout.ScriptRun:  processedMarker,
	}
}

// WriteResult writes status, handle, confidence and the processed marker to
// the result's row.
func (w *Writer) WriteResult(ctx context.Context, res model.InferenceResult) error {
	cells := w.Cells(res)

	if cw, ok := w.ws.(CellWriter); ok {
		if err := cw.WriteCells(ctx, res.Row, cells); err != nil {
			return eris.Wrapf(err, "sheet: update row %d", res.Row)
		}
	} else {
		for _, col := range []int{w.layout.PostExists, w.layout.Handle, w.layout.Confidence, w.layout.ScriptRun} {
			if err := w.ws.WriteCell(ctx, res.Row, col, cells[col]); err != nil {
				return eris.Wrapf(err, "sheet: update row %d column %d", res.Row, col)
			}
		}
	}

	zap.L().Info("updated row",
		zap.String("worksheet", w.ws.Title()),
		zap.Int("row", res.Row),
	)
	return nil
}
