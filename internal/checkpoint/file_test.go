package checkpoint

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "nested", "dir")
	s := NewFileStore(dir)

	_, ok, err := s.Load(ctx, "Gigabud Holders")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Save(ctx, "Gigabud Holders", 42))
	row, ok, err := s.Load(ctx, "Gigabud Holders")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 42, row)

	data, err := os.ReadFile(filepath.Join(dir, "grok_checkpoint_gigabud_holders.txt"))
	require.NoError(t, err)
	assert.Equal(t, "42", string(data))

	require.NoError(t, s.Save(ctx, "Gigabud Holders", 43))
	row, _, err = s.Load(ctx, "Gigabud Holders")
	require.NoError(t, err)
	assert.Equal(t, 43, row)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestFileStore_UnitsAreIndependent(t *testing.T) {
	ctx := context.Background()
	s := NewFileStore(t.TempDir())

	require.NoError(t, s.Save(ctx, "A", 5))
	require.NoError(t, s.Save(ctx, "B", 9))

	a, _, err := s.Load(ctx, "A")
	require.NoError(t, err)
	b, _, err := s.Load(ctx, "B")
	require.NoError(t, err)
	assert.Equal(t, 5, a)
	assert.Equal(t, 9, b)
}

func TestFileStore_ToleratesWhitespace(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(dir)
	require.NoError(t, os.WriteFile(s.Path("Sheet1"), []byte(" 17\n"), 0o600))

	row, ok, err := s.Load(context.Background(), "Sheet1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 17, row)
}

func TestFileStore_Corrupt(t *testing.T) {
	s := NewFileStore(t.TempDir())
	require.NoError(t, os.WriteFile(s.Path("Sheet1"), []byte("abc"), 0o600))

	_, ok, err := s.Load(context.Background(), "Sheet1")
	require.Error(t, err)
	assert.False(t, ok)
	assert.Contains(t, err.Error(), "checkpoint: parse")
}

func TestFileStore_Reset(t *testing.T) {
	ctx := context.Background()
	s := NewFileStore(t.TempDir())

	require.NoError(t, s.Reset(ctx, "missing"))
	require.NoError(t, s.Save(ctx, "Sheet1", 10))
	require.NoError(t, s.Reset(ctx, "Sheet1"))

	_, ok, err := s.Load(ctx, "Sheet1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewFileStore_DefaultDir(t *testing.T) {
	assert.Equal(t, DefaultDir, NewFileStore("").Dir)
	assert.Equal(t, "/data/grok_checkpoint_sheet1.txt", NewFileStore("/data").Path("Sheet1"))
}
