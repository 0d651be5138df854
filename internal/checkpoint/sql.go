package checkpoint

import "context"

// RowStore is implemented by the run audit store, which keeps checkpoints
// in its own table.
type RowStore interface {
	LoadCheckpoint(ctx context.Context, key string) (int, bool, error)
	SaveCheckpoint(ctx context.Context, key string, row int) error
	ResetCheckpoint(ctx context.Context, key string) error
}

// SQLStore adapts a RowStore to Store.
type SQLStore struct {
	rows RowStore
}

// NewSQLStore creates an SQLStore.
func NewSQLStore(rows RowStore) *SQLStore {
	return &SQLStore{rows: rows}
}

// Load implements Store.
func (s *SQLStore) Load(ctx context.Context, unit string) (int, bool, error) {
	return s.rows.LoadCheckpoint(ctx, Key(unit))
}

// Save implements Store.
func (s *SQLStore) Save(ctx context.Context, unit string, row int) error {
	return s.rows.SaveCheckpoint(ctx, Key(unit), row)
}

// Reset implements Store.
func (s *SQLStore) Reset(ctx context.Context, unit string) error {
	return s.rows.ResetCheckpoint(ctx, Key(unit))
}
