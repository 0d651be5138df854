package checkpoint

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// DefaultDir is used when no checkpoint directory is configured.
const DefaultDir = "/tmp"

// FileStore keeps one small text file per worksheet holding the next row.
type FileStore struct {
	Dir string
}

// NewFileStore creates a FileStore rooted at dir, or DefaultDir when empty.
func NewFileStore(dir string) *FileStore {
	if dir == "" {
		dir = DefaultDir
	}
	return &FileStore{Dir: dir}
}

// Path returns the checkpoint file for unit.
func (s *FileStore) Path(unit string) string {
	return filepath.Join(s.Dir, Key(unit)+".txt")
}

// Load implements Store.
func (s *FileStore) Load(_ context.Context, unit string) (int, bool, error) {
	data, err := os.ReadFile(s.Path(unit))
	if errors.Is(err, fs.ErrNotExist) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, eris.Wrapf(err, "checkpoint: read %s", s.Path(unit))
	}
	row, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, false, eris.Wrapf(err, "checkpoint: parse %s", s.Path(unit))
	}
	return row, true, nil
}

// Save implements Store. The file is replaced atomically.
func (s *FileStore) Save(_ context.Context, unit string, row int) error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return eris.Wrapf(err, "checkpoint: create dir %s", s.Dir)
	}

	tmp, err := os.CreateTemp(s.Dir, Key(unit)+".*.tmp")
	if err != nil {
		return eris.Wrap(err, "checkpoint: create temp file")
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := tmp.WriteString(strconv.Itoa(row)); err != nil {
		tmp.Close() //nolint:errcheck,gosec
		return eris.Wrap(err, "checkpoint: write temp file")
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrap(err, "checkpoint: close temp file")
	}
	if err := os.Rename(tmp.Name(), s.Path(unit)); err != nil {
		return eris.Wrapf(err, "checkpoint: replace %s", s.Path(unit))
	}

	zap.L().Debug("checkpoint saved", zap.String("worksheet", unit), zap.Int("row", row))
	return nil
}

// Reset implements Store.
func (s *FileStore) Reset(_ context.Context, unit string) error {
	err := os.Remove(s.Path(unit))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return eris.Wrapf(err, "checkpoint: remove %s", s.Path(unit))
	}
	return nil
}
