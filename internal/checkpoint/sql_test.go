package checkpoint

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memRows map[string]int

func (m memRows) LoadCheckpoint(_ context.Context, key string) (int, bool, error) {
	row, ok := m[key]
	return row, ok, nil
}

func (m memRows) SaveCheckpoint(_ context.Context, key string, row int) error {
	m[key] = row
	return nil
}

func (m memRows) ResetCheckpoint(_ context.Context, key string) error {
	delete(m, key)
	return nil
}

func TestSQLStore_UsesKey(t *testing.T) {
	ctx := context.Background()
	rows := memRows{}
	var s Store = NewSQLStore(rows)

	require.NoError(t, s.Save(ctx, "Gigabud Holders", 8))
	assert.Equal(t, 8, rows["grok_checkpoint_gigabud_holders"])

	row, ok, err := s.Load(ctx, "Gigabud Holders")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 8, row)

	require.NoError(t, s.Reset(ctx, "Gigabud Holders"))
	assert.Empty(t, rows)
}
