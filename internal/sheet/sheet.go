// Package sheet adapts spreadsheet backends to the scheduler: it finds or
// creates the result columns, reads the wallet rows and writes each result
// back to its row.
package sheet

import "context"

// Worksheet is the cell API of a single worksheet. Rows and columns are
// 1-based.
type Worksheet interface {
	Title() string
	// Header returns the first row.
	Header(ctx context.Context) ([]string, error)
	// Rows returns every row, header included.
	Rows(ctx context.Context) ([][]string, error)
	// InsertColumn inserts a column at col, shifting later columns right,
	// and sets its header cell.
	InsertColumn(ctx context.Context, col int, header string) error
	WriteCell(ctx context.Context, row, col int, value string) error
}

// CellWriter is implemented by backends that can write several cells of a
// row in one call.
type CellWriter interface {
	WriteCells(ctx context.Context, row int, cells map[int]string) error
}
