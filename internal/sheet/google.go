package sheet

import (
	"context"
	"sort"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/sells-group/wallet-search-cli/pkg/gsheets"
)

// GoogleSheet is a worksheet of a Google spreadsheet.
type GoogleSheet struct {
	client        gsheets.Client
	spreadsheetID string
	title         string

	mu      sync.Mutex
	sheetID *int64
}

// NewGoogleSheet creates a worksheet adapter over client.
func NewGoogleSheet(client gsheets.Client, spreadsheetID, title string) *GoogleSheet {
	return &GoogleSheet{client: client, spreadsheetID: spreadsheetID, title: title}
}

func (g *GoogleSheet) Title() string { return g.title }

func (g *GoogleSheet) Header(ctx context.Context) ([]string, error) {
	rows, err := g.client.GetValues(ctx, g.spreadsheetID, gsheets.RowRange(g.title, 1))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (g *GoogleSheet) Rows(ctx context.Context) ([][]string, error) {
	return g.client.GetValues(ctx, g.spreadsheetID, gsheets.SheetRange(g.title))
}

func (g *GoogleSheet) InsertColumn(ctx context.Context, col int, header string) error {
	id, err := g.id(ctx)
	if err != nil {
		return err
	}
	if err := g.client.InsertColumn(ctx, g.spreadsheetID, id, col-1); err != nil {
		return err
	}
	if header == "" {
		return nil
	}
	return g.WriteCell(ctx, 1, col, header)
}

func (g *GoogleSheet) WriteCell(ctx context.Context, row, col int, value string) error {
	return g.client.UpdateValues(ctx, g.spreadsheetID, gsheets.ValueRange{
		Range:  gsheets.Cell(g.title, row, col),
		Values: [][]string{{value}},
	})
}

// WriteCells writes several cells of one row in a single batch request.
func (g *GoogleSheet) WriteCells(ctx context.Context, row int, cells map[int]string) error {
	cols := make([]int, 0, len(cells))
	for c := range cells {
		cols = append(cols, c)
	}
	sort.Ints(cols)

	data := make([]gsheets.ValueRange, len(cols))
	for i, c := range cols {
		data[i] = gsheets.ValueRange{
			Range:  gsheets.Cell(g.title, row, c),
			Values: [][]string{{cells[c]}},
		}
	}
	return g.client.BatchUpdateValues(ctx, g.spreadsheetID, data)
}

func (g *GoogleSheet) id(ctx context.Context) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sheetID != nil {
		return *g.sheetID, nil
	}
	id, err := g.client.SheetID(ctx, g.spreadsheetID, g.title)
	if err != nil {
		return 0, eris.Wrapf(err, "sheet: resolve id of %s", g.title)
	}
	g.sheetID = &id
	return id, nil
}
