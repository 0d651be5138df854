package sheet

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// Workbook is a local .xlsx file. Every write is saved back to disk.
type Workbook struct {
	path string

	mu   sync.Mutex
	file *xlsx.File
}

// OpenWorkbook opens the workbook at path.
func OpenWorkbook(path string) (*Workbook, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "sheet: open workbook %s", path)
	}
	return &Workbook{path: path, file: f}, nil
}

// Worksheet returns the worksheet named title.
func (wb *Workbook) Worksheet(title string) (Worksheet, error) {
	wb.mu.Lock()
	defer wb.mu.Unlock()
	s, ok := wb.file.Sheet[title]
	if !ok {
		return nil, eris.Errorf("sheet: worksheet %q not found in %s", title, wb.path)
	}
	return &xlsxSheet{wb: wb, sheet: s}, nil
}

func (wb *Workbook) save() error {
	if err := wb.file.Save(wb.path); err != nil {
		return eris.Wrapf(err, "sheet: save workbook %s", wb.path)
	}
	return nil
}

type xlsxSheet struct {
	wb    *Workbook
	sheet *xlsx.Sheet
}

func (s *xlsxSheet) Title() string { return s.sheet.Name }

func (s *xlsxSheet) Header(context.Context) ([]string, error) {
	s.wb.mu.Lock()
	defer s.wb.mu.Unlock()
	if len(s.sheet.Rows) == 0 {
		return nil, nil
	}
	return rowValues(s.sheet.Rows[0]), nil
}

func (s *xlsxSheet) Rows(context.Context) ([][]string, error) {
	s.wb.mu.Lock()
	defer s.wb.mu.Unlock()
	rows := make([][]string, len(s.sheet.Rows))
	for i, r := range s.sheet.Rows {
		rows[i] = rowValues(r)
	}
	return rows, nil
}

func (s *xlsxSheet) InsertColumn(_ context.Context, col int, header string) error {
	s.wb.mu.Lock()
	defer s.wb.mu.Unlock()
	if len(s.sheet.Rows) == 0 {
		s.sheet.AddRow()
	}
	for i, r := range s.sheet.Rows {
		if i > 0 && len(r.Cells) < col {
			continue
		}
		growRow(r, col-1)
		c := r.AddCell()
		copy(r.Cells[col:], r.Cells[col-1:])
		r.Cells[col-1] = c
	}
	s.sheet.Rows[0].Cells[col-1].SetString(header)
	return s.wb.save()
}

func (s *xlsxSheet) WriteCell(_ context.Context, row, col int, value string) error {
	s.wb.mu.Lock()
	defer s.wb.mu.Unlock()
	s.cell(row, col).SetString(value)
	return s.wb.save()
}

// WriteCells writes several cells of one row with a single save.
func (s *xlsxSheet) WriteCells(_ context.Context, row int, cells map[int]string) error {
	s.wb.mu.Lock()
	defer s.wb.mu.Unlock()
	for col, v := range cells {
		s.cell(row, col).SetString(v)
	}
	return s.wb.save()
}

func (s *xlsxSheet) cell(row, col int) *xlsx.Cell {
	for len(s.sheet.Rows) < row {
		s.sheet.AddRow()
	}
	r := s.sheet.Rows[row-1]
	growRow(r, col)
	return r.Cells[col-1]
}

func growRow(r *xlsx.Row, n int) {
	for len(r.Cells) < n {
		r.AddCell()
	}
}

func rowValues(r *xlsx.Row) []string {
	out := make([]string, len(r.Cells))
	for i, c := range r.Cells {
		out[i] = c.String()
	}
	return out
}
