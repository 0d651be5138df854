package sheet

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSheet struct {
	*Memory
	inserts int
	writes  int
}

func (c *countingSheet) InsertColumn(ctx context.Context, col int, header string) error {
	c.inserts++
	return c.Memory.InsertColumn(ctx, col, header)
}

func (c *countingSheet) WriteCell(ctx context.Context, row, col int, value string) error {
	c.writes++
	return c.Memory.WriteCell(ctx, row, col, value)
}

func TestDiscover(t *testing.T) {
	tests := []struct {
		name   string
		header []string
		want   Layout
	}{
		{
			name:   "exact",
			header: []string{"Name", "Wallet Address", "Post Exist?", "Twitter Handle", "Confidence Score", "", "", "Script Run"},
			want:   Layout{Wallet: 2, PostExists: 3, Handle: 4, Confidence: 5, ScriptRun: 8},
		},
		{
			name:   "case_and_underscore",
			header: []string{"WALLET_ADDRESS", "post_exist", "twitter handle (x)", "Confidence score"},
			want:   Layout{Wallet: 1, PostExists: 2, Handle: 3, Confidence: 4},
		},
		{
			name:   "typos",
			header: []string{"Walet Adress", "Post Exists", "Twiter Handle", "Confidense Score", "Scrpt Run"},
			want:   Layout{Wallet: 1, PostExists: 2, Handle: 3, Confidence: 4, ScriptRun: 5},
		},
		{
			name:   "first_match_wins",
			header: []string{"Wallet Address", "Old Wallet Address"},
			want:   Layout{Wallet: 1},
		},
		{
			name:   "unrelated",
			header: []string{"Notes", "Wallet", "Score"},
			want:   Layout{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Discover(tt.header))
		})
	}
}

func TestBootstrap_NarrowSheet(t *testing.T) {
	ws := NewMemory("Holders", [][]string{
		{"Name", "Wallet Address"},
		{"alice", "0xabc"},
	})

	l, err := Bootstrap(context.Background(), ws)
	require.NoError(t, err)
	assert.Equal(t, Layout{Wallet: 2, PostExists: 3, Handle: 4, Confidence: 5, ScriptRun: 8}, l)

	header, _ := ws.Header(context.Background())
	assert.Equal(t, []string{"Name", "Wallet Address", "Post Exist?", "Twitter Handle", "Confidence Score", "", "", "Script Run"}, header)
	assert.Equal(t, "0xabc", ws.Cell(2, 2))
}

func TestBootstrap_AlreadyLaidOut(t *testing.T) {
	ws := &countingSheet{Memory: NewMemory("Holders", [][]string{
		{"Name", "Wallet Address", "Post Exist?", "Twitter Handle", "Confidence Score", "Notes", "Tags", "Script Run"},
	})}

	l, err := Bootstrap(context.Background(), ws)
	require.NoError(t, err)
	assert.Equal(t, Layout{Wallet: 2, PostExists: 3, Handle: 4, Confidence: 5, ScriptRun: 8}, l)
	assert.Zero(t, ws.inserts)
	assert.Zero(t, ws.writes)
}

func TestBootstrap_RelabelsColumnEight(t *testing.T) {
	ws := &countingSheet{Memory: NewMemory("Holders", [][]string{
		{"A", "B", "C", "D", "E", "F", "G", "Notes", "Wallet Address", "Post Exist?"},
	})}

	l, err := Bootstrap(context.Background(), ws)
	require.NoError(t, err)
	assert.Equal(t, Layout{Wallet: 9, PostExists: 10, Handle: 11, Confidence: 12, ScriptRun: 8}, l)
	assert.Equal(t, 2, ws.inserts)
	assert.Equal(t, 1, ws.writes)
	assert.Equal(t, HeaderScriptRun, ws.Cell(1, 8))
}

func TestBootstrap_InsertsBeforeDataInColumnEight(t *testing.T) {
	ws := NewMemory("Holders", [][]string{
		{"A", "B", "C", "D", "E", "F", "G", "Confidence Score", "Wallet Address", "Twitter Handle", "Post Exist?"},
		{"", "", "", "", "", "", "", "High", "0xabc", "@alice", "true"},
	})

	l, err := Bootstrap(context.Background(), ws)
	require.NoError(t, err)
	assert.Equal(t, Layout{Wallet: 10, PostExists: 12, Handle: 11, Confidence: 9, ScriptRun: 8}, l)
	assert.Equal(t, HeaderScriptRun, ws.Cell(1, 8))
	assert.Equal(t, "High", ws.Cell(2, 9))
	assert.Equal(t, "0xabc", ws.Cell(2, 10))
}

func TestBootstrap_KeepsPopulatedColumnEight(t *testing.T) {
	ws := &countingSheet{Memory: NewMemory("Holders", [][]string{
		{"Wallet Address", "Post Exist?", "Twitter Handle", "Confidence Score", "A", "B", "C", "Notes"},
		{"0xabc", "", "", "", "", "", "", "keep me"},
	})}

	l, err := Bootstrap(context.Background(), ws)
	require.NoError(t, err)
	assert.Equal(t, Layout{Wallet: 1, PostExists: 2, Handle: 3, Confidence: 4, ScriptRun: 8}, l)
	assert.Equal(t, 1, ws.inserts)
	assert.Zero(t, ws.writes)
	assert.Equal(t, HeaderScriptRun, ws.Cell(1, 8))
	assert.Equal(t, "Notes", ws.Cell(1, 9))
	assert.Equal(t, "keep me", ws.Cell(2, 9))
}

func TestBootstrap_RelabelsBlankColumnEight(t *testing.T) {
	ws := &countingSheet{Memory: NewMemory("Holders", [][]string{
		{"Wallet Address", "Post Exist?", "Twitter Handle", "Confidence Score", "A", "B", "C", "Notes"},
		{"0xabc", "", "", "", "", "", "", "  "},
		{"0xdef"},
	})}

	l, err := Bootstrap(context.Background(), ws)
	require.NoError(t, err)
	assert.Equal(t, ScriptRunColumn, l.ScriptRun)
	assert.Zero(t, ws.inserts)
	assert.Equal(t, 1, ws.writes)
	assert.Equal(t, HeaderScriptRun, ws.Cell(1, 8))
}

func TestBootstrap_ScriptRunElsewhere(t *testing.T) {
	ws := NewMemory("Holders", [][]string{
		{"Script Run", "Wallet Address"},
	})

	l, err := Bootstrap(context.Background(), ws)
	require.NoError(t, err)
	assert.Equal(t, ScriptRunColumn, l.ScriptRun)
	assert.Equal(t, HeaderScriptRun, ws.Cell(1, 8))
}

func TestBootstrap_MissingWallet(t *testing.T) {
	ws := NewMemory("Holders", [][]string{{"Name", "Notes"}})

	_, err := Bootstrap(context.Background(), ws)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no wallet address column")
}
