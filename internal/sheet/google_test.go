package sheet

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/wallet-search-cli/pkg/gsheets"
	"github.com/sells-group/wallet-search-cli/pkg/gsheets/mocks"
)

func TestGoogleSheet_Read(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("GetValues", mock.Anything, "sid", "'Holders'!1:1").
		Return([][]string{{"Name", "Wallet Address"}}, nil)
	client.On("GetValues", mock.Anything, "sid", "'Holders'").
		Return([][]string{{"Name", "Wallet Address"}, {"a", "0x1"}}, nil)

	g := NewGoogleSheet(client, "sid", "Holders")
	header, err := g.Header(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Name", "Wallet Address"}, header)

	rows, err := g.Rows(context.Background())
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestGoogleSheet_InsertColumn(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("SheetID", mock.Anything, "sid", "Holders").Return(int64(42), nil).Once()
	client.On("InsertColumn", mock.Anything, "sid", int64(42), 2).Return(nil).Once()
	client.On("InsertColumn", mock.Anything, "sid", int64(42), 7).Return(nil).Once()
	client.On("UpdateValues", mock.Anything, "sid", gsheets.ValueRange{
		Range:  "'Holders'!H1",
		Values: [][]string{{"Script Run"}},
	}).Return(nil).Once()

	g := NewGoogleSheet(client, "sid", "Holders")
	require.NoError(t, g.InsertColumn(context.Background(), 3, ""))
	require.NoError(t, g.InsertColumn(context.Background(), 8, "Script Run"))
}

func TestGoogleSheet_SheetIDFailureNotCached(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("SheetID", mock.Anything, "sid", "Holders").Return(int64(0), errors.New("boom")).Once()
	client.On("SheetID", mock.Anything, "sid", "Holders").Return(int64(5), nil).Once()
	client.On("InsertColumn", mock.Anything, "sid", int64(5), 0).Return(nil).Once()

	g := NewGoogleSheet(client, "sid", "Holders")
	err := g.InsertColumn(context.Background(), 1, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resolve id")

	require.NoError(t, g.InsertColumn(context.Background(), 1, ""))
}

func TestGoogleSheet_WriteCells(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("BatchUpdateValues", mock.Anything, "sid", []gsheets.ValueRange{
		{Range: "'Holders'!C5", Values: [][]string{{"true"}}},
		{Range: "'Holders'!D5", Values: [][]string{{"@alice"}}},
		{Range: "'Holders'!E5", Values: [][]string{{"High"}}},
		{Range: "'Holders'!H5", Values: [][]string{{"true"}}},
	}).Return(nil).Once()

	g := NewGoogleSheet(client, "sid", "Holders")
	err := g.WriteCells(context.Background(), 5, map[int]string{
		8: "true", 3: "true", 5: "High", 4: "@alice",
	})
	require.NoError(t, err)
}
