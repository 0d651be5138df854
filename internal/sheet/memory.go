package sheet

import (
	"context"
	"sync"
)

// Memory is an in-memory Worksheet.
type Memory struct {
	title string

	mu   sync.Mutex
	rows [][]string
}

// NewMemory creates a worksheet holding a copy of rows.
func NewMemory(title string, rows [][]string) *Memory {
	return &Memory{title: title, rows: cloneRows(rows)}
}

func (m *Memory) Title() string { return m.title }

func (m *Memory) Header(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.rows) == 0 {
		return nil, nil
	}
	return append([]string(nil), m.rows[0]...), nil
}

func (m *Memory) Rows(context.Context) ([][]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneRows(m.rows), nil
}

func (m *Memory) InsertColumn(_ context.Context, col int, header string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.rows) == 0 {
		m.rows = append(m.rows, nil)
	}
	for i, row := range m.rows {
		if i > 0 && len(row) < col {
			continue
		}
		m.rows[i] = insertAt(padTo(row, col-1), col-1, "")
	}
	m.rows[0][col-1] = header
	return nil
}

func (m *Memory) WriteCell(_ context.Context, row, col int, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.set(row, col, value)
	return nil
}

// WriteCells writes several cells of one row.
func (m *Memory) WriteCells(_ context.Context, row int, cells map[int]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for col, v := range cells {
		m.set(row, col, v)
	}
	return nil
}

// Cell returns the value at row, col, or "".
func (m *Memory) Cell(row, col int) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row < 1 || row > len(m.rows) || col < 1 || col > len(m.rows[row-1]) {
		return ""
	}
	return m.rows[row-1][col-1]
}

func (m *Memory) set(row, col int, value string) {
	for len(m.rows) < row {
		m.rows = append(m.rows, nil)
	}
	r := padTo(m.rows[row-1], col)
	r[col-1] = value
	m.rows[row-1] = r
}

func padTo(row []string, n int) []string {
	for len(row) < n {
		row = append(row, "")
	}
	return row
}

func insertAt(row []string, i int, v string) []string {
	row = append(row, "")
	copy(row[i+1:], row[i:])
	row[i] = v
	return row
}

func cloneRows(rows [][]string) [][]string {
	out := make([][]string, len(rows))
	for i, r := range rows {
		out[i] = append([]string(nil), r...)
	}
	return out
}
